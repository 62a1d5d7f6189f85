// Package events fans row-level change notifications out to subscribers.
package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/aretw0/introspection"
	"github.com/aretw0/lifecycle"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/aretw0/aether/pkg/core"
)

// DefaultBuffer is the per-subscriber queue size used when none is given.
const DefaultBuffer = 100

// ErrClosed is returned when subscribing to a closed broker.
var ErrClosed = errors.New("broker is closed")

// Broker implements core.Notifier for adapters that do not have a native
// change feed. Publish never blocks: each subscriber owns a bounded queue that
// is drained by its own goroutine. A full queue drops the event, since a
// notification already pending for that subscriber triggers the same re-read.
type Broker struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64
	buffer int
	logger *slog.Logger
	closed bool

	published atomic.Int64
	dropped   atomic.Int64
}

type subscriber struct {
	id       uint64
	pattern  string
	filters  []core.Filter
	queue    chan core.Event
	onChange func(core.Event)
	done     chan struct{}
	once     sync.Once
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

// NewBroker creates a broker. buffer <= 0 selects DefaultBuffer.
func NewBroker(buffer int, logger *slog.Logger) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Broker{
		subs:   make(map[uint64]*subscriber),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers onChange for events on tables matching pattern whose
// record satisfies filters. Events without a record match any filter.
func (b *Broker) Subscribe(ctx context.Context, pattern string, filters []core.Filter, onChange func(core.Event)) (core.Subscription, error) {
	if onChange == nil {
		return nil, fmt.Errorf("subscribe %q: nil callback", pattern)
	}
	if pattern == "" {
		pattern = "*"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("subscribe: invalid table pattern %q", pattern)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.nextID++
	sub := &subscriber{
		id:       b.nextID,
		pattern:  pattern,
		filters:  append([]core.Filter(nil), filters...),
		queue:    make(chan core.Event, b.buffer),
		onChange: onChange,
		done:     make(chan struct{}),
	}
	b.subs[sub.id] = sub
	b.mu.Unlock()

	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer b.remove(sub.id)
		for {
			select {
			case <-sub.done:
				return nil
			case <-ctx.Done():
				sub.stop()
				return nil
			case e := <-sub.queue:
				sub.onChange(e)
			}
		}
	}, lifecycle.WithErrorHandler(func(err error) {
		b.logger.Error("subscriber callback panic", "pattern", pattern, "error", err)
	}))

	b.logger.Debug("subscribed", "pattern", pattern, "filters", len(filters))
	return core.SubscriptionFunc(func() {
		sub.stop()
		b.remove(sub.id)
	}), nil
}

// Publish delivers e to every matching subscriber without blocking.
func (b *Broker) Publish(e core.Event) {
	b.published.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if !sub.matches(e) {
			continue
		}
		select {
		case sub.queue <- e:
		default:
			b.dropped.Add(1)
			b.logger.Debug("subscriber queue full, event coalesced", "pattern", sub.pattern, "event", e.String())
		}
	}
}

// Close cancels every subscription. Further subscriptions fail with ErrClosed.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for id, sub := range b.subs {
		sub.stop()
		delete(b.subs, id)
	}
}

func (b *Broker) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

func (s *subscriber) matches(e core.Event) bool {
	ok, err := doublestar.Match(s.pattern, e.Table)
	if err != nil || !ok {
		return false
	}
	if e.Record == nil {
		return true
	}
	return core.MatchAll(e.Record, s.filters)
}

// BrokerState exposes internal state for observability.
type BrokerState struct {
	Subscribers int   `json:"subscribers"`
	BufferSize  int   `json:"buffer_size"`
	Published   int64 `json:"published"`
	Dropped     int64 `json:"dropped"`
	Closed      bool  `json:"closed"`
}

// State implements introspection.Introspectable.
func (b *Broker) State() any {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return BrokerState{
		Subscribers: len(b.subs),
		BufferSize:  b.buffer,
		Published:   b.published.Load(),
		Dropped:     b.dropped.Load(),
		Closed:      b.closed,
	}
}

// ComponentType implements introspection.Component.
func (b *Broker) ComponentType() string {
	return "broker"
}

var _ introspection.Introspectable = (*Broker)(nil)
var _ introspection.Component = (*Broker)(nil)
var _ core.Notifier = (*Broker)(nil)
