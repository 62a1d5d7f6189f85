package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/aretw0/lifecycle/pkg/core/supervisor"
	"github.com/aretw0/lifecycle/pkg/core/worker"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/aretw0/aether/pkg/core"
)

// ErrAlreadyWatching is returned by a second concurrent Watch.
var ErrAlreadyWatching = errors.New("repository is already being watched")

// DebounceInterval is how long a path must stay quiet before it is re-read.
const DebounceInterval = 50 * time.Millisecond

// Watch publishes changes made to row files outside the store (editors,
// git checkouts, other processes) until ctx is done. pattern is a glob over
// table names. The watcher runs under a supervisor that restarts it when
// fsnotify fails.
func (r *Repository) Watch(ctx context.Context, pattern string) error {
	if pattern == "" {
		pattern = "*"
	}
	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("watch: invalid table pattern %q", pattern)
	}

	r.mu.Lock()
	if r.watching {
		r.mu.Unlock()
		return ErrAlreadyWatching
	}
	r.watching = true
	r.mu.Unlock()

	spec := supervisor.Spec{
		Name: "fs-watcher",
		Type: string(worker.TypeGoroutine),
		Factory: func() (worker.Worker, error) {
			return newWatchWorker(r, pattern, r.Publish), nil
		},
		Backoff: supervisor.Backoff{
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			Multiplier:      2,
			ResetDuration:   time.Minute,
			MaxRestarts:     10,
			MaxDuration:     10 * time.Minute,
		},
		RestartPolicy: supervisor.RestartOnFailure,
	}

	sup := supervisor.New("aether-watch", supervisor.StrategyOneForOne, spec)
	if err := sup.Start(ctx); err != nil {
		r.mu.Lock()
		r.watching = false
		r.mu.Unlock()
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	lifecycle.Go(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := sup.Stop(stopCtx)

		r.mu.Lock()
		r.watching = false
		r.mu.Unlock()
		return err
	}, lifecycle.WithErrorHandler(r.report))

	r.config.Logger.Debug("watching store", "path", r.Path, "pattern", pattern)
	return nil
}

// watchDirs lists the table directories matched by pattern.
func (r *Repository) watchDirs(pattern string) []string {
	var dirs []string
	for _, table := range r.config.Schema.Names() {
		if ok, _ := doublestar.Match(pattern, table); ok {
			dirs = append(dirs, filepath.Join(r.Path, table))
		}
	}
	return dirs
}

// resolve maps an absolute path to the row it stores.
func (r *Repository) resolve(path, pattern string) (table, id, ext string, ok bool) {
	rel, err := filepath.Rel(r.Path, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", "", "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 2 {
		return "", "", "", false
	}
	table = parts[0]
	if _, known := r.config.Schema.Table(table); !known {
		return "", "", "", false
	}
	if match, _ := doublestar.Match(pattern, table); !match {
		return "", "", "", false
	}
	id, ext, ok = r.rowFile(parts[1])
	return table, id, ext, ok
}

// observe compares a row file with the cache and returns the change it
// represents. Writes made by the store refresh the cache before they hit the
// disk watcher, so they compare equal here and are not reported twice.
func (r *Repository) observe(table, id, ext string) (core.Event, bool) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	rel := filepath.Join(table, id+ext)
	key := filepath.ToSlash(rel)
	prev, known := r.cache.Peek(key)

	info, err := os.Stat(filepath.Join(r.Path, rel))
	if os.IsNotExist(err) {
		if !known {
			return core.Event{}, false
		}
		r.cache.Delete(key)
		return core.NewEvent(core.EventDelete, table, id, prev.Fields.Clone()), true
	}
	if err != nil {
		r.report(err)
		return core.Event{}, false
	}
	if known && prev.LastModified.Equal(info.ModTime()) && prev.Size == info.Size() {
		return core.Event{}, false
	}

	row, err := r.readRow(rel, ext, id)
	if err != nil {
		r.report(err)
		return core.Event{}, false
	}

	eType := core.EventUpdate
	if !known {
		eType = core.EventInsert
	}
	return core.NewEvent(eType, table, id, row.Clone()), true
}

// debouncer coalesces bursts of events per key into one callback.
type debouncer struct {
	mu      sync.Mutex
	wait    time.Duration
	timers  map[string]*time.Timer
	wg      sync.WaitGroup
	stopped bool
}

func newDebouncer(wait time.Duration) *debouncer {
	return &debouncer{
		wait:   wait,
		timers: make(map[string]*time.Timer),
	}
}

// add (re)arms the timer for key. Only the last fn of a burst runs.
func (d *debouncer) add(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if t, ok := d.timers[key]; ok && t.Stop() {
		d.wg.Done()
	}

	d.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(d.wait, func() {
		defer d.wg.Done()
		d.mu.Lock()
		if d.timers[key] == t {
			delete(d.timers, key)
		}
		d.mu.Unlock()
		fn()
	})
	d.timers[key] = t
}

// stopAndWait drops pending timers and waits for running callbacks.
func (d *debouncer) stopAndWait(timeout time.Duration) bool {
	d.mu.Lock()
	d.stopped = true
	for key, t := range d.timers {
		if t.Stop() {
			d.wg.Done()
		}
		delete(d.timers, key)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
