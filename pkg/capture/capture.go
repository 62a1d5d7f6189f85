// Package capture records thoughts and links. Captures are immutable; they
// can only be created, listed and deleted.
package capture

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/aether/pkg/core"
	"github.com/aretw0/aether/pkg/typed"
)

// DefaultRecent is the number of captures shown on the dashboard.
const DefaultRecent = 5

// Service manages captures.
type Service struct {
	captures *typed.Repository[core.Capture]
	links    *typed.Repository[core.Resonance]
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator replaces the uuid generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// New creates a Service over store.
func New(store core.Store, opts ...Option) *Service {
	s := &Service{
		captures: typed.NewRepository[core.Capture](store, core.TableCaptures),
		links:    typed.NewRepository[core.Resonance](store, core.TableResonance),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create records a capture. A THOUGHT needs a body, an EXTERNAL_LINK an
// absolute URL.
func (s *Service) Create(ctx context.Context, userID string, kind core.CaptureKind, text string) (core.Capture, error) {
	return s.create(ctx, userID, kind, text, "")
}

// CreateLink records an EXTERNAL_LINK with an optional note as its body.
func (s *Service) CreateLink(ctx context.Context, userID, rawURL, note string) (core.Capture, error) {
	return s.create(ctx, userID, core.KindLink, rawURL, note)
}

func (s *Service) create(ctx context.Context, userID string, kind core.CaptureKind, text, note string) (core.Capture, error) {
	if strings.TrimSpace(userID) == "" {
		return core.Capture{}, core.Required("user_id")
	}
	text = strings.TrimSpace(text)

	c := core.Capture{
		ID:        s.newID(),
		UserID:    userID,
		Kind:      kind,
		CreatedAt: core.NewTimestamp(s.now()),
	}

	switch kind {
	case core.KindThought:
		if text == "" {
			return core.Capture{}, core.Required("body")
		}
		c.Body = &text
	case core.KindLink:
		if text == "" {
			return core.Capture{}, core.Required("url")
		}
		u, err := url.Parse(text)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return core.Capture{}, core.Invalid("url", "must be an absolute URL")
		}
		c.URL = &text
		c.Body = core.Optional(strings.TrimSpace(note))
	default:
		return core.Capture{}, core.Invalid("kind", "unknown capture kind "+string(kind))
	}

	ctx = core.WithChangeReason(ctx, "capture "+strings.ToLower(string(kind)))
	if _, err := s.captures.Insert(ctx, c); err != nil {
		return core.Capture{}, core.Persistence("create capture", err)
	}

	s.logger.Debug("capture created", "user_id", userID, "capture_id", c.ID, "kind", kind)
	return c, nil
}

// Filter narrows a feed listing. A zero Kind lists every kind.
type Filter struct {
	Kind      core.CaptureKind
	Ascending bool
}

// List returns the user's captures, newest first unless Ascending.
func (s *Service) List(ctx context.Context, userID string, f Filter) ([]core.Capture, error) {
	filters := []core.Filter{core.Eq("user_id", userID)}
	if f.Kind != "" {
		filters = append(filters, core.Eq("kind", string(f.Kind)))
	}
	out, err := s.captures.Find(ctx, filters, typed.OrderBy("created_at", !f.Ascending))
	if err != nil {
		return nil, core.Persistence("list captures", err)
	}
	return out, nil
}

// Recent returns the newest captures. limit <= 0 selects DefaultRecent.
func (s *Service) Recent(ctx context.Context, userID string, limit int) ([]core.Capture, error) {
	if limit <= 0 {
		limit = DefaultRecent
	}
	out, err := s.captures.Find(ctx, []core.Filter{core.Eq("user_id", userID)}, typed.Newest(), typed.Limit(limit))
	if err != nil {
		return nil, core.Persistence("recent captures", err)
	}
	return out, nil
}

// Get returns a capture owned by userID.
func (s *Service) Get(ctx context.Context, userID, id string) (core.Capture, error) {
	c, err := s.captures.Get(ctx, id)
	if err != nil {
		return core.Capture{}, core.Persistence("get capture", err)
	}
	if c.UserID != userID {
		return core.Capture{}, core.NotFound(core.TableCaptures, id)
	}
	return c, nil
}

// Delete removes a capture that no resonance refers to.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	linked, err := s.links.Exists(ctx, core.Eq("capture_id", id))
	if err != nil {
		return core.Persistence("check capture dependents", err)
	}
	if linked {
		return core.HasDependents(core.TableCaptures, id, core.TableResonance)
	}

	ctx = core.WithChangeReason(ctx, "delete capture")
	if err := s.captures.Delete(ctx, id); err != nil {
		return core.Persistence("delete capture", err)
	}
	return nil
}
