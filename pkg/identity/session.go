// Package identity holds the signed-in user of an application session and the
// directory that owns the users table.
package identity

import (
	"errors"
	"sync"

	"github.com/aretw0/aether/pkg/core"
)

// ErrSignedOut is returned by MustUser when nobody is signed in.
var ErrSignedOut = errors.New("no user is signed in")

// AuthEventType tells sign-ins from sign-outs.
type AuthEventType string

const (
	SignedIn  AuthEventType = "SIGNED_IN"
	SignedOut AuthEventType = "SIGNED_OUT"
)

// AuthEvent is delivered to session subscribers. User is the zero value on
// sign-out.
type AuthEvent struct {
	Type AuthEventType
	User core.User
}

// Session is the explicit per-application auth context. It is safe for
// concurrent use; listeners run synchronously on the caller of SignIn/SignOut.
type Session struct {
	mu        sync.RWMutex
	user      *core.User
	listeners map[uint64]func(AuthEvent)
	nextID    uint64
}

// NewSession creates a signed-out session.
func NewSession() *Session {
	return &Session{listeners: make(map[uint64]func(AuthEvent))}
}

// CurrentUser returns the signed-in user, if any.
func (s *Session) CurrentUser() (core.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return core.User{}, false
	}
	return *s.user, true
}

// MustUser returns the signed-in user or ErrSignedOut.
func (s *Session) MustUser() (core.User, error) {
	u, ok := s.CurrentUser()
	if !ok {
		return core.User{}, ErrSignedOut
	}
	return u, nil
}

// SignIn replaces the current user and notifies listeners.
func (s *Session) SignIn(u core.User) {
	s.mu.Lock()
	s.user = &u
	listeners := s.snapshot()
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(AuthEvent{Type: SignedIn, User: u})
	}
}

// SignOut clears the current user. Signing out twice notifies once.
func (s *Session) SignOut() {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return
	}
	s.user = nil
	listeners := s.snapshot()
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(AuthEvent{Type: SignedOut})
	}
}

// Subscribe registers fn for sign-in/sign-out events until Cancel.
func (s *Session) Subscribe(fn func(AuthEvent)) core.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn

	var once sync.Once
	return core.SubscriptionFunc(func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	})
}

func (s *Session) snapshot() []func(AuthEvent) {
	out := make([]func(AuthEvent), 0, len(s.listeners))
	for _, fn := range s.listeners {
		out = append(out, fn)
	}
	return out
}
