package fs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/aether/pkg/core"
	"github.com/aretw0/aether/pkg/events"
	"github.com/aretw0/aether/pkg/git"
)

// ErrGitless is returned by history operations on an unversioned store.
var ErrGitless = errors.New("store is not versioned (gitless mode)")

// Repository implements core.Store on plain files, one file per row laid out
// as <Path>/<table>/<id>.<ext>. Every write is committed to Git unless the
// store is gitless. Change notifications for its own writes are published
// through the embedded Broker; Watch adds notifications for external edits.
type Repository struct {
	*events.Broker

	Path        string
	git         *git.Client
	cache       *cache
	config      Config
	serializers map[string]Serializer

	// writeMu serializes writes so the uniqueness scan and the file write
	// happen atomically within this process.
	writeMu sync.Mutex

	mu            sync.RWMutex
	readOnly      bool
	watching      bool
	watcherActive bool
	lastReconcile *time.Time
}

// Config holds the configuration for the filesystem repository.
type Config struct {
	Path      string
	AutoInit  bool
	Gitless   bool
	MustExist bool
	ReadOnly  bool
	Logger    *slog.Logger
	SystemDir string // e.g. ".aether"
	// Format is the extension used for new rows (".json", ".yaml" or ".yml").
	Format string
	// Strict keeps numbers as json.Number instead of float64.
	Strict bool
	Schema core.Schema
	// EventBuffer is the per-subscriber queue size of the broker.
	EventBuffer  int
	ErrorHandler func(error)
	// CommitMessage rewrites every commit message before it is recorded.
	CommitMessage func(string) string
}

// NewRepository creates a new filesystem-backed repository.
func NewRepository(config Config) *Repository {
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.SystemDir == "" {
		config.SystemDir = ".aether"
	}
	if config.Format == "" {
		config.Format = ".json"
	}
	if !strings.HasPrefix(config.Format, ".") {
		config.Format = "." + config.Format
	}
	if config.Schema == nil {
		config.Schema = core.DefaultSchema()
	}

	return &Repository{
		Broker:      events.NewBroker(config.EventBuffer, config.Logger),
		Path:        config.Path,
		git:         git.NewClient(config.Path, config.SystemDir+".lock", config.Logger),
		config:      config,
		cache:       newCache(config.Path, config.SystemDir),
		serializers: DefaultSerializers(config.Strict),
		readOnly:    config.ReadOnly,
	}
}

// Initialize performs the necessary setup for the repository (mkdir, git init).
func (r *Repository) Initialize(ctx context.Context) error {
	if _, ok := r.serializers[r.config.Format]; !ok {
		return fmt.Errorf("unsupported row format %q", r.config.Format)
	}

	// 1. Directory Initialization
	if r.config.MustExist || r.readOnly {
		info, err := os.Stat(r.Path)
		if os.IsNotExist(err) {
			return fmt.Errorf("store path does not exist: %s", r.Path)
		}
		if err != nil {
			return fmt.Errorf("failed to stat store path: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("store path is not a directory: %s", r.Path)
		}
	}
	if !r.readOnly {
		if err := os.MkdirAll(filepath.Join(r.Path, r.config.SystemDir), 0755); err != nil {
			return fmt.Errorf("failed to create system directory: %w", err)
		}
		for _, table := range r.config.Schema.Names() {
			if err := os.MkdirAll(filepath.Join(r.Path, table), 0755); err != nil {
				return fmt.Errorf("failed to create table directory: %w", err)
			}
		}
	}

	if err := r.cache.Load(); err != nil {
		r.config.Logger.Warn("ignoring unreadable cache", "error", err)
	}

	// 2. Git Initialization
	if r.config.Gitless || r.readOnly {
		return nil
	}
	if !git.IsInstalled() {
		return fmt.Errorf("git is not installed")
	}

	wasNewRepo := false
	if !r.git.IsRepo() {
		if !r.config.AutoInit {
			return fmt.Errorf("path is not a git repository: %s", r.Path)
		}
		if err := r.git.Init(ctx); err != nil {
			return fmt.Errorf("failed to git init: %w", err)
		}
		wasNewRepo = true
	}

	// Ensure .gitignore has the system directory and the lock file
	mod, err := r.ensureIgnore()
	if err != nil {
		return fmt.Errorf("failed to ensure .gitignore: %w", err)
	}

	if mod && wasNewRepo {
		unlock, err := r.git.Lock(ctx)
		if err != nil {
			return fmt.Errorf("failed to acquire git lock: %w", err)
		}
		defer unlock()

		if err := r.git.Add(ctx, ".gitignore"); err != nil {
			return fmt.Errorf("failed to add .gitignore: %w", err)
		}
		if err := r.git.Commit(ctx, fmt.Sprintf("chore: configure %s ignore", r.config.SystemDir)); err != nil {
			return fmt.Errorf("failed to commit .gitignore: %w", err)
		}
	}

	return nil
}

func (r *Repository) ensureIgnore() (bool, error) {
	ignorePath := filepath.Join(r.Path, ".gitignore")
	wanted := []string{r.config.SystemDir + "/", r.config.SystemDir + ".lock"}

	content, err := os.ReadFile(ignorePath)
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}

	present := make(map[string]bool)
	for _, line := range strings.Split(string(content), "\n") {
		present[strings.TrimSpace(line)] = true
	}

	var missing []string
	for _, entry := range wanted {
		if !present[entry] {
			missing = append(missing, entry)
		}
	}
	if len(missing) == 0 {
		return false, nil
	}

	f, err := os.OpenFile(ignorePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return false, err
	}
	defer f.Close()

	if len(content) > 0 && !bytes.HasSuffix(content, []byte("\n")) {
		if _, err := f.WriteString("\n"); err != nil {
			return false, err
		}
	}
	if _, err := f.WriteString(strings.Join(missing, "\n") + "\n"); err != nil {
		return false, err
	}

	return true, nil
}

// Insert writes a new row file and commits it.
//
// Workflow:
//  1. Validate table and id.
//  2. Under the write lock, reject an existing id or a unique-group collision.
//  3. Serialize and write atomically, then refresh the cache entry.
//  4. (If Git enabled) 'git add' and 'git commit' with the change reason.
//  5. Publish an INSERT event.
func (r *Repository) Insert(ctx context.Context, table string, fields core.Fields) error {
	t, err := r.writable(table)
	if err != nil {
		return err
	}
	id := fields.ID()
	if err := validateID(id); err != nil {
		return err
	}
	row := fields.Clone()

	err = r.locked(ctx, func() error {
		if _, _, found := r.locate(table, id); found {
			return &core.ConflictError{Table: table, Columns: []string{"id"}}
		}
		if err := r.checkUnique(t, row); err != nil {
			return err
		}

		rel := filepath.Join(table, id+r.config.Format)
		return r.apply(ctx, fmt.Sprintf("insert %s/%s", table, id), rel, false, func() error {
			return r.writeRow(rel, r.config.Format, table, id, row)
		})
	})
	if err != nil {
		return err
	}

	r.Publish(core.NewEvent(core.EventInsert, table, id, row.Clone()))
	return nil
}

// Get retrieves a row by id.
func (r *Repository) Get(ctx context.Context, table, id string) (core.Fields, error) {
	if _, err := r.table(table); err != nil {
		return nil, err
	}
	if err := validateID(id); err != nil {
		return nil, core.NotFound(table, id)
	}

	rel, ext, found := r.locate(table, id)
	if !found {
		return nil, core.NotFound(table, id)
	}
	row, err := r.readRow(rel, ext, id)
	if err != nil {
		return nil, err
	}
	return row.Clone(), nil
}

// Update merges patch into the stored row. The id column is immutable and the
// row keeps the format it was written in.
func (r *Repository) Update(ctx context.Context, table, id string, patch core.Fields) (core.Fields, error) {
	t, err := r.writable(table)
	if err != nil {
		return nil, err
	}
	if err := validateID(id); err != nil {
		return nil, core.NotFound(table, id)
	}

	var next core.Fields
	err = r.locked(ctx, func() error {
		rel, ext, found := r.locate(table, id)
		if !found {
			return core.NotFound(table, id)
		}
		current, err := r.readRow(rel, ext, id)
		if err != nil {
			return err
		}

		next = current.Clone()
		for k, v := range patch {
			if k == "id" {
				continue
			}
			next[k] = v
		}
		if err := r.checkUnique(t, next); err != nil {
			return err
		}

		return r.apply(ctx, fmt.Sprintf("update %s/%s", table, id), rel, false, func() error {
			return r.writeRow(rel, ext, table, id, next)
		})
	})
	if err != nil {
		return nil, err
	}

	r.Publish(core.NewEvent(core.EventUpdate, table, id, next.Clone()))
	return next.Clone(), nil
}

// Delete removes a row file (git rm when versioned).
func (r *Repository) Delete(ctx context.Context, table, id string) error {
	if _, err := r.writable(table); err != nil {
		return err
	}
	if err := validateID(id); err != nil {
		return core.NotFound(table, id)
	}

	var last core.Fields
	err := r.locked(ctx, func() error {
		rel, ext, found := r.locate(table, id)
		if !found {
			return core.NotFound(table, id)
		}
		row, err := r.readRow(rel, ext, id)
		if err != nil {
			// A broken file can still be deleted; the event just carries no record.
			r.config.Logger.Warn("failed to read row before delete", "path", filepath.ToSlash(rel), "error", err)
		} else {
			last = row
		}

		return r.apply(ctx, fmt.Sprintf("delete %s/%s", table, id), rel, true, func() error {
			if r.config.Gitless {
				if err := os.Remove(filepath.Join(r.Path, rel)); err != nil {
					return fmt.Errorf("failed to remove file: %w", err)
				}
			}
			r.cache.Delete(filepath.ToSlash(rel))
			return nil
		})
	})
	if err != nil {
		return err
	}

	r.Publish(core.NewEvent(core.EventDelete, table, id, last))
	return nil
}

// Query scans a table and returns the matching rows.
func (r *Repository) Query(ctx context.Context, q core.Query) ([]core.Fields, error) {
	if _, err := r.table(q.Table); err != nil {
		return nil, err
	}

	rows, err := r.scanTable(q.Table)
	if err != nil {
		return nil, err
	}

	var out []core.Fields
	for _, row := range rows {
		if core.MatchAll(row, q.Filters) {
			out = append(out, row.Clone())
		}
	}
	if q.OrderBy != "" {
		slices.SortStableFunc(out, func(a, b core.Fields) int {
			c := core.CompareValues(a[q.OrderBy], b[q.OrderBy])
			if q.Descending {
				return -c
			}
			return c
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Reconcile rescans every table and returns the changes that happened on
// disk without passing through the store (edits, git checkouts, deletions).
// The cache is updated so each change is reported once.
func (r *Repository) Reconcile(ctx context.Context) ([]core.Event, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	before := r.cache.Snapshot()

	var changes []core.Event
	for _, table := range r.config.Schema.Names() {
		if err := ctx.Err(); err != nil {
			return changes, err
		}

		rows, err := r.scanTable(table)
		if err != nil {
			return changes, err
		}

		seen := make(map[string]bool, len(rows))
		for path, entry := range r.cache.Snapshot() {
			if entry.Table != table {
				continue
			}
			seen[path] = true
			prev, existed := before[path]
			switch {
			case !existed:
				changes = append(changes, core.NewEvent(core.EventInsert, table, entry.ID, entry.Fields.Clone()))
			case !prev.LastModified.Equal(entry.LastModified) || prev.Size != entry.Size:
				changes = append(changes, core.NewEvent(core.EventUpdate, table, entry.ID, entry.Fields.Clone()))
			}
		}
		for path, prev := range before {
			if prev.Table == table && !seen[path] {
				changes = append(changes, core.NewEvent(core.EventDelete, table, prev.ID, prev.Fields.Clone()))
			}
		}
	}

	r.recordReconcile()
	if err := r.cache.Save(); err != nil {
		r.config.Logger.Warn("failed to save cache", "error", err)
	}
	return changes, nil
}

// History returns the most recent commits, newest first. An empty table
// selects the whole store.
func (r *Repository) History(ctx context.Context, table string, limit int) ([]git.Commit, error) {
	if r.config.Gitless || !r.git.IsRepo() {
		return nil, ErrGitless
	}
	var paths []string
	if table != "" {
		if _, err := r.table(table); err != nil {
			return nil, err
		}
		paths = append(paths, table)
	}
	return r.git.Log(ctx, limit, paths...)
}

// Close cancels subscriptions and persists the cache.
func (r *Repository) Close() error {
	r.Broker.Close()
	if r.readOnly {
		return nil
	}
	return r.cache.Save()
}

// IsGitInstalled checks if git is available in the system path.
func IsGitInstalled() bool {
	return git.IsInstalled()
}

// --- Private helpers ---

func (r *Repository) table(name string) (core.TableSchema, error) {
	t, ok := r.config.Schema.Table(name)
	if !ok {
		return core.TableSchema{}, fmt.Errorf("unknown table %q", name)
	}
	return t, nil
}

func (r *Repository) writable(name string) (core.TableSchema, error) {
	if r.readOnly {
		return core.TableSchema{}, core.ErrReadOnly
	}
	return r.table(name)
}

// locked runs fn holding both the in-process write mutex and the cross-process
// lock file.
func (r *Repository) locked(ctx context.Context, fn func() error) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	unlock, err := r.git.Lock(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire store lock: %w", err)
	}
	defer unlock()

	return fn()
}

// rowBackup is the on-disk content of a row file before a write.
type rowBackup struct {
	rel     string
	data    []byte
	existed bool
}

// apply runs write and commits rel. When the commit fails the row file, its
// cache entry and the index are put back, so a failed write leaves no trace.
func (r *Repository) apply(ctx context.Context, msg, rel string, remove bool, write func() error) error {
	if r.config.Gitless {
		return write()
	}
	prev := rowBackup{rel: rel}
	if data, err := os.ReadFile(filepath.Join(r.Path, rel)); err == nil {
		prev.data, prev.existed = data, true
	}

	if err := write(); err != nil {
		return err
	}
	if err := r.commit(ctx, msg, rel, remove); err != nil {
		r.restore(prev)
		return err
	}
	return nil
}

// restore undoes a write whose commit failed. It runs without ctx so that a
// cancelled request still cleans up.
func (r *Repository) restore(b rowBackup) {
	ctx := context.Background()
	key := filepath.ToSlash(b.rel)
	if err := r.git.Unstage(ctx, key); err != nil {
		r.config.Logger.Warn("failed to unstage row", "path", key, "error", err)
	}

	fullPath := filepath.Join(r.Path, b.rel)
	var err error
	if b.existed {
		// git rm drops the table directory along with its last row.
		if err = os.MkdirAll(filepath.Dir(fullPath), 0755); err == nil {
			err = writeFileAtomic(fullPath, b.data, 0644)
		}
	} else if rmErr := os.Remove(fullPath); rmErr != nil && !os.IsNotExist(rmErr) {
		err = rmErr
	}
	if err != nil {
		r.config.Logger.Error("failed to restore row after commit failure", "path", key, "error", err)
	}
	r.cache.Delete(key)
}

func (r *Repository) commit(ctx context.Context, fallback, rel string, remove bool) error {
	if r.config.Gitless {
		return nil
	}

	rel = filepath.ToSlash(rel)
	if remove {
		if err := r.git.Rm(ctx, rel); err != nil {
			return fmt.Errorf("failed to git rm: %w", err)
		}
	} else if err := r.git.Add(ctx, rel); err != nil {
		return fmt.Errorf("failed to git add: %w", err)
	}

	msg := fallback
	if reason, ok := core.ChangeReason(ctx); ok {
		msg = reason
	}
	if r.config.CommitMessage != nil {
		msg = r.config.CommitMessage(msg)
	}
	if err := r.git.Commit(ctx, msg); err != nil {
		return fmt.Errorf("failed to git commit: %w", err)
	}
	return nil
}

func (r *Repository) checkUnique(t core.TableSchema, candidate core.Fields) error {
	if len(t.Unique) == 0 {
		return nil
	}
	rows, err := r.scanTable(t.Name)
	if err != nil {
		return err
	}
	for _, existing := range rows {
		if cols := t.Conflicts(existing, candidate); cols != nil {
			return &core.ConflictError{Table: t.Name, Columns: cols}
		}
	}
	return nil
}

// extensions returns the supported extensions, the configured format first.
func (r *Repository) extensions() []string {
	exts := []string{r.config.Format}
	for ext := range r.serializers {
		if ext != r.config.Format {
			exts = append(exts, ext)
		}
	}
	slices.Sort(exts[1:])
	return exts
}

// locate finds the file of a row in any supported format.
func (r *Repository) locate(table, id string) (rel, ext string, found bool) {
	for _, ext := range r.extensions() {
		rel := filepath.Join(table, id+ext)
		info, err := os.Stat(filepath.Join(r.Path, rel))
		if err == nil && !info.IsDir() {
			return rel, ext, true
		}
	}
	return "", "", false
}

// readRow parses a row file, going through the cache.
func (r *Repository) readRow(rel, ext, id string) (core.Fields, error) {
	fullPath := filepath.Join(r.Path, rel)
	info, err := os.Stat(fullPath)
	if os.IsNotExist(err) {
		return nil, core.NotFound(filepath.Dir(rel), id)
	}
	if err != nil {
		return nil, err
	}

	key := filepath.ToSlash(rel)
	if entry, ok := r.cache.Get(key, info.ModTime(), info.Size()); ok {
		return entry.Fields, nil
	}

	f, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", rel, err)
	}
	defer f.Close()

	row, err := r.serializers[ext].Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", rel, err)
	}
	// The file name is authoritative for the id.
	row["id"] = id

	r.cache.Set(key, &indexEntry{
		ID:           id,
		Table:        filepath.Dir(key),
		Fields:       row,
		LastModified: info.ModTime(),
		Size:         info.Size(),
	})
	return row, nil
}

func (r *Repository) writeRow(rel, ext, table, id string, row core.Fields) error {
	data, err := r.serializers[ext].Serialize(row)
	if err != nil {
		return fmt.Errorf("failed to serialize row: %w", err)
	}

	fullPath := filepath.Join(r.Path, rel)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	if err := writeFileAtomic(fullPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return err
	}
	r.cache.Set(filepath.ToSlash(rel), &indexEntry{
		ID:           id,
		Table:        table,
		Fields:       row.Clone(),
		LastModified: info.ModTime(),
		Size:         info.Size(),
	})
	return nil
}

// scanTable lists every row of a table in file name order. Unparseable files
// are reported and skipped.
func (r *Repository) scanTable(table string) ([]core.Fields, error) {
	entries, err := os.ReadDir(filepath.Join(r.Path, table))
	if os.IsNotExist(err) {
		r.cache.PruneTable(table, nil)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read table %s: %w", table, err)
	}

	keep := make(map[string]bool, len(entries))
	rows := make([]core.Fields, 0, len(entries))
	for _, entry := range entries {
		id, ext, ok := r.rowFile(entry.Name())
		if !ok || entry.IsDir() {
			continue
		}
		rel := filepath.Join(table, entry.Name())
		row, err := r.readRow(rel, ext, id)
		if err != nil {
			if !errors.Is(err, core.ErrNotFound) {
				r.report(err)
			}
			continue
		}
		keep[filepath.ToSlash(rel)] = true
		rows = append(rows, row)
	}
	r.cache.PruneTable(table, keep)
	return rows, nil
}

// rowFile splits a file name into id and extension when it names a row.
func (r *Repository) rowFile(name string) (id, ext string, ok bool) {
	if strings.HasPrefix(name, TempFilePrefix) || strings.HasPrefix(name, ".") {
		return "", "", false
	}
	ext = filepath.Ext(name)
	if _, supported := r.serializers[ext]; !supported {
		return "", "", false
	}
	id = strings.TrimSuffix(name, ext)
	return id, ext, id != ""
}

func (r *Repository) report(err error) {
	r.config.Logger.Warn("skipping row", "error", err)
	if r.config.ErrorHandler != nil {
		r.config.ErrorHandler(err)
	}
}

func validateID(id string) error {
	if id == "" {
		return core.Required("id")
	}
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return core.Invalid("id", "must be a plain file name")
	}
	return nil
}

var _ core.Store = (*Repository)(nil)
var _ core.Notifier = (*Repository)(nil)
