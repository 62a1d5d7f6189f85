package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/introspection"

	"github.com/aretw0/aether/pkg/adapters/fs"
	"github.com/aretw0/aether/pkg/adapters/sqlite"
	"github.com/aretw0/aether/pkg/board"
	"github.com/aretw0/aether/pkg/capture"
	"github.com/aretw0/aether/pkg/core"
	"github.com/aretw0/aether/pkg/dashboard"
	"github.com/aretw0/aether/pkg/demo"
	"github.com/aretw0/aether/pkg/identity"
	"github.com/aretw0/aether/pkg/ledger"
	"github.com/aretw0/aether/pkg/resonance"
)

// App wires the services of one Aether store.
//
//	app, err := platform.Open("./data", platform.WithAutoInit(true))
type App struct {
	Store     core.Store
	Ledger    *ledger.Ledger
	Resonance *resonance.Service
	Captures  *capture.Service
	Directory *identity.Directory
	Session   *identity.Session
	Dashboard *dashboard.Dashboard

	logger *slog.Logger
	boards map[string]*board.Board
	bopts  []board.Option
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// Open initializes the store at uri and builds the services on top of it.
// The URI argument is adapter-specific (see Init).
func Open(uri string, opts ...Option) (*App, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	store, err := initStore(ctx, uri, o)
	if err != nil {
		cancel()
		return nil, err
	}

	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var (
		lopts []ledger.Option
		copts []capture.Option
		ropts []resonance.Option
		bopts []board.Option
	)
	lopts = append(lopts, ledger.WithLogger(logger))
	copts = append(copts, capture.WithLogger(logger))
	ropts = append(ropts, resonance.WithLogger(logger))
	bopts = append(bopts, board.WithLogger(logger))
	if o.now != nil {
		lopts = append(lopts, ledger.WithClock(o.now))
		copts = append(copts, capture.WithClock(o.now))
		ropts = append(ropts, resonance.WithClock(o.now))
		bopts = append(bopts, board.WithClock(o.now))
	}
	if o.newID != nil {
		lopts = append(lopts, ledger.WithIDGenerator(o.newID))
		copts = append(copts, capture.WithIDGenerator(o.newID))
		ropts = append(ropts, resonance.WithIDGenerator(o.newID))
		bopts = append(bopts, board.WithIDGenerator(o.newID))
	}

	l := ledger.New(store, lopts...)
	captures := capture.New(store, copts...)
	res := resonance.New(store, l, ropts...)

	app := &App{
		Store:     store,
		Ledger:    l,
		Resonance: res,
		Captures:  captures,
		Directory: identity.NewDirectory(store),
		Session:   identity.NewSession(),
		Dashboard: dashboard.New(l, captures, res),
		logger:    logger,
		boards:    make(map[string]*board.Board),
		bopts:     bopts,
		ctx:       ctx,
		cancel:    cancel,
	}

	if o.bool("watch", false) {
		if err := app.watch(); err != nil {
			_ = app.Close()
			return nil, err
		}
	}
	return app, nil
}

func (a *App) watch() error {
	repo, ok := a.Store.(*fs.Repository)
	if !ok {
		// SQLite stores only change through this process.
		a.logger.Debug("store has no external changes to watch", "store", fmt.Sprintf("%T", a.Store))
		return nil
	}
	if err := repo.Watch(a.ctx, "*"); err != nil {
		return fmt.Errorf("watch store: %w", err)
	}
	return nil
}

// SignIn resolves (or registers) the user and makes it the current user.
func (a *App) SignIn(ctx context.Context, email, name string) (core.User, error) {
	u, err := a.Directory.Resolve(ctx, email, name)
	if err != nil {
		return core.User{}, err
	}
	a.Session.SignIn(u)
	return u, nil
}

// Board returns the live board of userID, loading it on first use.
// Boards follow store changes until the app is closed.
func (a *App) Board(ctx context.Context, userID string) (*board.Board, error) {
	if userID == "" {
		return nil, core.Required("user_id")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, errors.New("app is closed")
	}
	if b, ok := a.boards[userID]; ok {
		return b, nil
	}

	b := board.New(a.Store, a.Ledger, userID, a.bopts...)
	if err := b.Refresh(ctx); err != nil {
		return nil, err
	}
	if err := b.Watch(a.ctx); err != nil && !errors.Is(err, board.ErrNoNotifier) {
		return nil, err
	}
	a.boards[userID] = b
	return b, nil
}

// BoardView returns the board of userID without caching or watching it,
// unless the user already has a live board. Used for one-off reads.
func (a *App) BoardView(ctx context.Context, userID string) (*board.Board, error) {
	if userID == "" {
		return nil, core.Required("user_id")
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, errors.New("app is closed")
	}
	b, ok := a.boards[userID]
	a.mu.Unlock()
	if ok {
		return b, nil
	}

	b = board.New(a.Store, a.Ledger, userID, a.bopts...)
	if err := b.Refresh(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// Seed loads the sample dataset for userID.
func (a *App) Seed(ctx context.Context, userID string) (demo.Result, error) {
	b, err := a.Board(ctx, userID)
	if err != nil {
		return demo.Result{}, err
	}
	return demo.Seed(ctx, demo.Services{Captures: a.Captures, Resonance: a.Resonance, Board: b}, userID)
}

// AppState exposes the app for observability.
type AppState struct {
	Adapter string `json:"adapter"`
	Store   any    `json:"store,omitempty"`
	User    string `json:"user,omitempty"`
	Boards  []any  `json:"boards"`
}

// State implements introspection.Introspectable.
func (a *App) State() any {
	s := AppState{Adapter: adapterOf(a.Store), Boards: []any{}}
	if in, ok := a.Store.(interface{ State() any }); ok {
		s.Store = in.State()
	}
	if u, ok := a.Session.CurrentUser(); ok {
		s.User = u.Email
	}

	a.mu.Lock()
	ids := make([]string, 0, len(a.boards))
	for id := range a.boards {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		s.Boards = append(s.Boards, a.boards[id].State())
	}
	a.mu.Unlock()
	return s
}

// ComponentType implements introspection.Component.
func (a *App) ComponentType() string {
	return "aether-app"
}

var _ introspection.Introspectable = (*App)(nil)
var _ introspection.Component = (*App)(nil)

// Close stops the boards and the watcher, then closes the store.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	for _, b := range a.boards {
		b.Close()
	}
	a.mu.Unlock()

	a.cancel()
	if c, ok := a.Store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func adapterOf(store core.Store) string {
	switch s := store.(type) {
	case *fs.Repository:
		return AdapterFS
	case *sqlite.Store:
		if s.Path() == sqlite.MemoryPath {
			return AdapterMemory
		}
		return AdapterSQLite
	}
	return fmt.Sprintf("%T", store)
}
