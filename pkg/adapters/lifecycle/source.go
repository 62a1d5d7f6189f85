// Package lifecycle bridges store change notifications to lifecycle sources.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/aether/pkg/core"
)

type storeSource struct {
	notifier core.Notifier
	pattern  string
	filters  []core.Filter
	in       chan core.Event
	out      chan lifecycle.Event
}

// NewSource creates a lifecycle.Source that emits the row changes of the
// tables matching pattern (narrowed by filters).
func NewSource(notifier core.Notifier, pattern string, filters ...core.Filter) lifecycle.Source {
	return &storeSource{
		notifier: notifier,
		pattern:  pattern,
		filters:  filters,
		in:       make(chan core.Event, 16),
		out:      make(chan lifecycle.Event),
	}
}

func (s *storeSource) Events() <-chan lifecycle.Event {
	return s.out
}

// Start subscribes and forwards events until ctx is done, then closes Events.
func (s *storeSource) Start(ctx context.Context) error {
	sub, err := s.notifier.Subscribe(ctx, s.pattern, s.filters, func(e core.Event) {
		select {
		case s.in <- e:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("source %q: %w", s.pattern, err)
	}

	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(s.out)
		defer sub.Cancel()
		for {
			select {
			case <-ctx.Done():
				return nil
			case e := <-s.in:
				// core.Event implements lifecycle.Event (has String())
				select {
				case s.out <- e:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	return nil
}
