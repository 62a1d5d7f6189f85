// Package board keeps a user's kanban view of their tasks and applies status
// changes optimistically, granting XP when a task enters DONE.
package board

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/introspection"
	"github.com/google/uuid"

	"github.com/aretw0/aether/pkg/core"
	"github.com/aretw0/aether/pkg/ledger"
	"github.com/aretw0/aether/pkg/typed"
)

// ErrNoNotifier is returned by Watch when the store has no change feed.
var ErrNoNotifier = errors.New("store does not support change notifications")

// Board is one user's task board. The in-memory view is provisional: it is
// replaced by the store's rows on Refresh, after a failed write and on every
// change notification received while watching.
type Board struct {
	userID   string
	actions  *typed.Repository[core.Action]
	ledger   *ledger.Ledger
	notifier core.Notifier
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string

	mu    sync.RWMutex
	tasks map[string]core.Action
	sub   core.Subscription

	refreshes atomic.Int64
}

// Option configures a Board.
type Option func(*Board)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Board) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithClock replaces time.Now for created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(b *Board) {
		if now != nil {
			b.now = now
		}
	}
}

// WithIDGenerator replaces the uuid generator for new tasks.
func WithIDGenerator(fn func() string) Option {
	return func(b *Board) {
		if fn != nil {
			b.newID = fn
		}
	}
}

// WithNotifier sets the change feed used by Watch. By default the store is
// used when it implements core.Notifier.
func WithNotifier(n core.Notifier) Option {
	return func(b *Board) {
		b.notifier = n
	}
}

// New creates an empty board for userID. Call Refresh to load it.
func New(store core.Store, l *ledger.Ledger, userID string, opts ...Option) *Board {
	b := &Board{
		userID:  userID,
		actions: typed.NewRepository[core.Action](store, core.TableActions),
		ledger:  l,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
		newID:   uuid.NewString,
		tasks:   make(map[string]core.Action),
	}
	if n, ok := store.(core.Notifier); ok {
		b.notifier = n
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// UserID returns the owner of the board.
func (b *Board) UserID() string {
	return b.userID
}

// Create adds a task in TODO.
func (b *Board) Create(ctx context.Context, title string) (core.Action, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return core.Action{}, core.Required("title")
	}

	now := core.NewTimestamp(b.now())
	task := core.Action{
		ID:        b.newID(),
		UserID:    b.userID,
		Title:     title,
		Status:    core.StatusTodo,
		CreatedAt: now,
		UpdatedAt: now,
	}

	ctx = core.WithChangeReason(ctx, "create action: "+title)
	if _, err := b.actions.Insert(ctx, task); err != nil {
		return core.Action{}, core.Persistence("create action", err)
	}

	b.mu.Lock()
	b.tasks[task.ID] = task
	b.mu.Unlock()

	b.logger.Debug("action created", "user_id", b.userID, "task_id", task.ID)
	return task, nil
}

// Refresh replaces the view with the store's canonical rows.
func (b *Board) Refresh(ctx context.Context) error {
	rows, err := b.actions.Find(ctx, []core.Filter{core.Eq("user_id", b.userID)})
	if err != nil {
		return core.Persistence("load actions", err)
	}

	tasks := make(map[string]core.Action, len(rows))
	for _, t := range rows {
		tasks[t.ID] = t
	}

	b.mu.Lock()
	b.tasks = tasks
	b.refreshes.Add(1)
	b.mu.Unlock()
	return nil
}

// resync is Refresh for failure paths: the original error wins.
func (b *Board) resync(ctx context.Context) {
	if err := b.Refresh(ctx); err != nil {
		b.logger.Warn("board resync failed", "user_id", b.userID, "error", err)
	}
}

// Columns partitions the view by status, each column newest-created first.
// Every status has an entry, possibly empty.
func (b *Board) Columns() map[core.Status][]core.Action {
	b.mu.RLock()
	defer b.mu.RUnlock()

	cols := make(map[core.Status][]core.Action, len(core.Statuses))
	for _, s := range core.Statuses {
		cols[s] = []core.Action{}
	}
	for _, t := range b.tasks {
		cols[t.Status] = append(cols[t.Status], t)
	}
	for _, s := range core.Statuses {
		slices.SortFunc(cols[s], newestFirst)
	}
	return cols
}

func newestFirst(a, b core.Action) int {
	if c := b.CreatedAt.Compare(a.CreatedAt.Time); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// Task returns a task from the view.
func (b *Board) Task(id string) (core.Action, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.tasks[id]
	return t, ok
}

func (b *Board) lookup(ctx context.Context, id string) (core.Action, error) {
	if t, ok := b.Task(id); ok {
		return t, nil
	}
	t, err := b.actions.Get(ctx, id)
	if err != nil {
		return core.Action{}, core.Persistence("get action", err)
	}
	if t.UserID != b.userID {
		return core.Action{}, core.NotFound(core.TableActions, id)
	}
	return t, nil
}

// SetStatus moves a task to status.
//
// The view is updated before anything is written. A failed status write
// rolls the view back, resynchronizes it and returns a RolledBack operation.
// Entering DONE then appends the completion reward; if that append fails the
// task stays DONE, the operation is Committed without Grant and the
// persistence error is returned with it.
func (b *Board) SetStatus(ctx context.Context, id string, status core.Status) (*Operation, error) {
	if !status.Valid() {
		return nil, core.Invalid("status", fmt.Sprintf("unknown status %q", status))
	}

	task, err := b.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	// The transition is decided and applied to the view under one lock so
	// that concurrent moves of the same task see each other.
	b.mu.Lock()
	if current, ok := b.tasks[id]; ok {
		task = current
	}
	effect := Transition(task.Status, status)
	if !effect.Changed {
		b.mu.Unlock()
		return committedNoop(task), nil
	}
	next := task
	next.Status = status
	next.UpdatedAt = core.NewTimestamp(b.now())
	b.tasks[id] = next
	b.mu.Unlock()

	op := newOperation(id, task.Status, status, func() {
		b.mu.Lock()
		b.tasks[id] = task
		b.mu.Unlock()
	})

	patch := core.Fields{"status": string(status), "updated_at": next.UpdatedAt.String()}
	writeCtx := core.WithChangeReason(ctx, fmt.Sprintf("move action %s to %s", task.Title, status))
	if _, err := b.actions.Update(writeCtx, id, patch); err != nil {
		op.Rollback()
		b.resync(ctx)
		b.logger.Error("status write failed", "user_id", b.userID, "task_id", id, "to", status, "error", err)
		return op, core.Persistence("update action status", err)
	}
	op.commit()

	b.logger.Debug("status changed", "user_id", b.userID, "task_id", id, "from", task.Status, "to", status)

	if !effect.GrantsXP {
		return op, nil
	}

	entry, err := b.ledger.Append(ctx, b.userID, ledger.TaskCompletionReward, "Completed Action: "+task.Title, ledger.Source{TaskID: id})
	if err != nil {
		b.logger.Warn("action completed without xp grant", "user_id", b.userID, "task_id", id, "error", err)
		return op, err
	}
	op.Grant = &entry
	return op, nil
}

// Delete removes a task. Ledger entries that refer to it are kept.
func (b *Board) Delete(ctx context.Context, id string) error {
	task, err := b.lookup(ctx, id)
	if err != nil {
		return err
	}

	b.mu.Lock()
	delete(b.tasks, id)
	b.mu.Unlock()

	ctx = core.WithChangeReason(ctx, "delete action: "+task.Title)
	if err := b.actions.Delete(ctx, id); err != nil {
		b.resync(ctx)
		return core.Persistence("delete action", err)
	}
	return nil
}

// Watch subscribes to changes on the user's actions and refreshes the view on
// each notification until ctx is done or Close is called.
func (b *Board) Watch(ctx context.Context) error {
	if b.notifier == nil {
		return ErrNoNotifier
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != nil {
		return nil
	}

	sub, err := b.notifier.Subscribe(ctx, core.TableActions, []core.Filter{core.Eq("user_id", b.userID)}, func(e core.Event) {
		b.logger.Debug("board invalidated", "user_id", b.userID, "event", e.String())
		if err := b.Refresh(ctx); err != nil {
			b.logger.Warn("board refresh after notification failed", "user_id", b.userID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("watch actions: %w", err)
	}
	b.sub = sub
	return nil
}

// Close stops watching.
func (b *Board) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != nil {
		b.sub.Cancel()
		b.sub = nil
	}
}

// BoardState exposes the board for observability.
type BoardState struct {
	UserID    string `json:"user_id"`
	Todo      int    `json:"todo"`
	Doing     int    `json:"doing"`
	Done      int    `json:"done"`
	Watching  bool   `json:"watching"`
	Refreshes int64  `json:"refreshes"`
}

// State implements introspection.Introspectable.
func (b *Board) State() any {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := BoardState{UserID: b.userID, Watching: b.sub != nil, Refreshes: b.refreshes.Load()}
	for _, t := range b.tasks {
		switch t.Status {
		case core.StatusTodo:
			s.Todo++
		case core.StatusDoing:
			s.Doing++
		case core.StatusDone:
			s.Done++
		}
	}
	return s
}

// ComponentType implements introspection.Component.
func (b *Board) ComponentType() string {
	return "board"
}

var _ introspection.Introspectable = (*Board)(nil)
var _ introspection.Component = (*Board)(nil)
