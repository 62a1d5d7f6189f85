package testutil

import (
	"fmt"
	"sync"
	"time"
)

// Epoch is the first instant handed out by Clock.
var Epoch = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// Clock returns a func that advances by one second on every call, so rows
// created in sequence get strictly increasing created_at values.
func Clock() func() time.Time {
	var mu sync.Mutex
	next := Epoch
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(time.Second)
		return t
	}
}

// IDs returns a generator of predictable ids: prefix-1, prefix-2, ...
func IDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}
