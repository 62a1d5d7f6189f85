// Package ledger implements the append-only XP ledger. A user's XP is the sum
// of their entries; levels are derived from that sum and never stored.
package ledger

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/aether/pkg/core"
	"github.com/aretw0/aether/pkg/typed"
)

// DefaultRecent is the number of entries shown as recent activity.
const DefaultRecent = 5

// Source carries the optional weak back-references of an entry.
type Source struct {
	TaskID      string
	ResonanceID string
}

// Ledger appends and aggregates XP entries.
type Ledger struct {
	entries *typed.Repository[core.LedgerEntry]
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock replaces time.Now for created_at stamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithIDGenerator replaces the uuid generator.
func WithIDGenerator(fn func() string) Option {
	return func(l *Ledger) {
		if fn != nil {
			l.newID = fn
		}
	}
}

// New creates a Ledger over the xp_ledger table of store.
func New(store core.Store, opts ...Option) *Ledger {
	l := &Ledger{
		entries: typed.NewRepository[core.LedgerEntry](store, core.TableLedger),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records a delta for userID. Any signed delta is accepted.
// Failures are returned as persistence errors and never retried.
func (l *Ledger) Append(ctx context.Context, userID string, delta int, description string, src Source) (core.LedgerEntry, error) {
	if strings.TrimSpace(userID) == "" {
		return core.LedgerEntry{}, core.Required("user_id")
	}

	entry := core.LedgerEntry{
		ID:                l.newID(),
		UserID:            userID,
		Delta:             delta,
		SourceDescription: description,
		SourceActionID:    core.Optional(src.TaskID),
		SourceResonanceID: core.Optional(src.ResonanceID),
		CreatedAt:         core.NewTimestamp(l.now()),
	}

	ctx = core.WithChangeReason(ctx, description)
	if _, err := l.entries.Insert(ctx, entry); err != nil {
		l.logger.Error("xp append failed", "user_id", userID, "delta", delta, "error", err)
		return core.LedgerEntry{}, core.Persistence("append xp", err)
	}

	l.logger.Debug("xp appended", "user_id", userID, "delta", delta, "description", description)
	return entry, nil
}

// Entries returns every entry of userID, oldest first.
func (l *Ledger) Entries(ctx context.Context, userID string) ([]core.LedgerEntry, error) {
	entries, err := l.entries.Find(ctx, []core.Filter{core.Eq("user_id", userID)}, typed.OrderBy("created_at", false))
	if err != nil {
		return nil, core.Persistence("list xp", err)
	}
	return entries, nil
}

// Recent returns the newest entries of userID. limit <= 0 selects DefaultRecent.
func (l *Ledger) Recent(ctx context.Context, userID string, limit int) ([]core.LedgerEntry, error) {
	if limit <= 0 {
		limit = DefaultRecent
	}
	entries, err := l.entries.Find(ctx, []core.Filter{core.Eq("user_id", userID)}, typed.Newest(), typed.Limit(limit))
	if err != nil {
		return nil, core.Persistence("recent xp", err)
	}
	return entries, nil
}

// TotalXP sums every delta of userID. Zero when there are no entries.
func (l *Ledger) TotalXP(ctx context.Context, userID string) (int, error) {
	entries, err := l.entries.Find(ctx, []core.Filter{core.Eq("user_id", userID)})
	if err != nil {
		return 0, core.Persistence("total xp", err)
	}
	total := 0
	for _, e := range entries {
		total += e.Delta
	}
	return total, nil
}

// Summary returns the derived progress of userID.
func (l *Ledger) Summary(ctx context.Context, userID string) (Progress, error) {
	total, err := l.TotalXP(ctx, userID)
	if err != nil {
		return Progress{}, err
	}
	return ProgressFor(total), nil
}
