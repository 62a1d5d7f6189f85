// Package sqlite implements core.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/aretw0/introspection"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/aretw0/aether/pkg/core"
	"github.com/aretw0/aether/pkg/events"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Config holds the configuration for the SQLite store.
type Config struct {
	// Path of the database file, or MemoryPath.
	Path        string
	ReadOnly    bool
	Logger      *slog.Logger
	Schema      core.Schema
	EventBuffer int
}

// Store implements core.Store with one SQL table per schema table. Unique
// groups become UNIQUE constraints, so conflicts are detected by the engine.
// Change notifications are published through the embedded Broker.
type Store struct {
	*events.Broker

	config Config
	db     *sql.DB
}

// New creates a store. Call Initialize before use.
func New(config Config) *Store {
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.Schema == nil {
		config.Schema = core.DefaultSchema()
	}
	return &Store{
		Broker: events.NewBroker(config.EventBuffer, config.Logger),
		config: config,
	}
}

// Initialize opens the database and applies migrations.
func (s *Store) Initialize(ctx context.Context) error {
	if s.config.Path == "" {
		return fmt.Errorf("open: empty db path")
	}

	var dsn string
	switch {
	case s.config.Path == MemoryPath:
		dsn = MemoryPath
	case s.config.ReadOnly:
		if _, err := os.Stat(s.config.Path); err != nil {
			return fmt.Errorf("open: %w", err)
		}
		dsn = "file:" + s.config.Path + "?mode=ro"
	default:
		if err := os.MkdirAll(filepath.Dir(s.config.Path), 0o755); err != nil {
			return fmt.Errorf("open: create db dir: %w", err)
		}
		dsn = "file:" + s.config.Path + "?mode=rwc&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open: sql open: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("open: ping: %w", err)
	}

	if !s.config.ReadOnly {
		if err := Migrate(ctx, db, s.config.Schema); err != nil {
			_ = db.Close()
			return fmt.Errorf("open: migrate: %w", err)
		}
	}

	s.db = db
	s.config.Logger.Debug("sqlite store opened", "path", s.config.Path)
	return nil
}

// Insert creates a row.
func (s *Store) Insert(ctx context.Context, table string, fields core.Fields) error {
	t, err := s.writable(table)
	if err != nil {
		return err
	}
	if fields.ID() == "" {
		return core.Required("id")
	}
	if err := checkColumns(t, fields); err != nil {
		return err
	}

	cols := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields))
	for _, name := range t.ColumnNames() {
		v, ok := fields[name]
		if !ok {
			continue
		}
		cols = append(cols, quote(name))
		args = append(args, bind(v))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(table), strings.Join(cols, ", "), placeholders(len(cols)))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return translate(table, err)
	}

	s.Publish(core.NewEvent(core.EventInsert, table, fields.ID(), normalizeRow(fields)))
	return nil
}

// Get returns a row by id.
func (s *Store) Get(ctx context.Context, table, id string) (core.Fields, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	return s.get(ctx, s.db, t, id)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) get(ctx context.Context, q queryer, t core.TableSchema, id string) (core.Fields, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", selectList(t), quote(t.Name))
	rows, err := scan(ctx, q, t, query, id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, core.NotFound(t.Name, id)
	}
	return rows[0], nil
}

// Update applies patch to a row and returns the stored row.
func (s *Store) Update(ctx context.Context, table, id string, patch core.Fields) (core.Fields, error) {
	t, err := s.writable(table)
	if err != nil {
		return nil, err
	}
	if err := checkColumns(t, patch); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var sets []string
	var args []any
	for _, name := range t.ColumnNames() {
		v, ok := patch[name]
		if !ok || name == "id" {
			continue
		}
		sets = append(sets, quote(name)+" = ?")
		args = append(args, bind(v))
	}

	if len(sets) > 0 {
		query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", quote(table), strings.Join(sets, ", "))
		res, err := tx.ExecContext(ctx, query, append(args, id)...)
		if err != nil {
			return nil, translate(table, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return nil, core.NotFound(table, id)
		}
	}

	row, err := s.get(ctx, tx, t, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.Publish(core.NewEvent(core.EventUpdate, table, id, row.Clone()))
	return row, nil
}

// Delete removes a row.
func (s *Store) Delete(ctx context.Context, table, id string) error {
	t, err := s.writable(table)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	last, err := s.get(ctx, tx, t, id)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", quote(table)), id); err != nil {
		return translate(table, err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.Publish(core.NewEvent(core.EventDelete, table, id, last))
	return nil
}

// Query returns the rows matching q in insertion order unless OrderBy is set.
func (s *Store) Query(ctx context.Context, q core.Query) ([]core.Fields, error) {
	t, err := s.table(q.Table)
	if err != nil {
		return nil, err
	}

	var where []string
	var args []any
	for _, f := range q.Filters {
		if !t.HasColumn(f.Field) {
			return nil, fmt.Errorf("unknown column %s.%s", q.Table, f.Field)
		}
		if f.Value == nil {
			where = append(where, quote(f.Field)+" IS NULL")
			continue
		}
		where = append(where, quote(f.Field)+" = ?")
		args = append(args, bind(f.Value))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", selectList(t), quote(q.Table))
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	if q.OrderBy != "" {
		if !t.HasColumn(q.OrderBy) {
			return nil, fmt.Errorf("unknown column %s.%s", q.Table, q.OrderBy)
		}
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY %s %s, rowid ASC", quote(q.OrderBy), dir)
	} else {
		b.WriteString(" ORDER BY rowid ASC")
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}

	return scan(ctx, s.db, t, b.String(), args...)
}

// Close cancels subscriptions and closes the database.
func (s *Store) Close() error {
	s.Broker.Close()
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database file (or MemoryPath).
func (s *Store) Path() string { return s.config.Path }

func (s *Store) table(name string) (core.TableSchema, error) {
	if s.db == nil {
		return core.TableSchema{}, fmt.Errorf("sqlite store is not initialized")
	}
	t, ok := s.config.Schema.Table(name)
	if !ok {
		return core.TableSchema{}, fmt.Errorf("unknown table %q", name)
	}
	return t, nil
}

func (s *Store) writable(name string) (core.TableSchema, error) {
	if s.config.ReadOnly {
		return core.TableSchema{}, core.ErrReadOnly
	}
	return s.table(name)
}

func scan(ctx context.Context, q queryer, t core.TableSchema, query string, args ...any) ([]core.Fields, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := t.ColumnNames()
	var out []core.Fields
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(core.Fields, len(names))
		for i, name := range names {
			if b, ok := values[i].([]byte); ok {
				row[name] = string(b)
				continue
			}
			row[name] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func checkColumns(t core.TableSchema, fields core.Fields) error {
	for name := range fields {
		if !t.HasColumn(name) {
			return core.Invalid(name, fmt.Sprintf("is not a column of %s", t.Name))
		}
	}
	return nil
}

// bind converts JSON-ish values into driver values. Integral floats become
// integers so INTEGER columns keep integer storage.
func bind(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x)
		}
		return x
	case int:
		return int64(x)
	case string, int64, []byte, bool, nil:
		return v
	case fmt.Stringer:
		return x.String()
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.String {
		return rv.String()
	}
	return v
}

// normalizeRow makes a published record look like a row read back.
func normalizeRow(fields core.Fields) core.Fields {
	out := make(core.Fields, len(fields))
	for k, v := range fields {
		out[k] = bind(v)
	}
	return out
}

// translate maps engine constraint violations to *core.ConflictError.
func translate(table string, err error) error {
	var serr *msqlite.Error
	unique := errors.As(err, &serr) &&
		(serr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || serr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY)
	msg := err.Error()
	if !unique && !strings.Contains(msg, "UNIQUE constraint failed") {
		return err
	}
	return &core.ConflictError{Table: table, Columns: conflictColumns(msg)}
}

// conflictColumns extracts "a, b" from "UNIQUE constraint failed: t.a, t.b".
func conflictColumns(msg string) []string {
	const marker = "constraint failed: "
	i := strings.LastIndex(msg, marker)
	if i < 0 {
		return nil
	}
	list := msg[i+len(marker):]
	if i := strings.IndexAny(list, "()"); i >= 0 {
		list = list[:i]
	}
	var cols []string
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if _, col, found := strings.Cut(part, "."); found {
			part = col
		}
		if part != "" {
			cols = append(cols, part)
		}
	}
	return cols
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func selectList(t core.TableSchema) string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = quote(c.Name)
	}
	return strings.Join(cols, ", ")
}

// StoreState exposes internal state for observability.
type StoreState struct {
	Path          string             `json:"path"`
	ReadOnly      bool               `json:"read_only"`
	Tables        []string           `json:"tables"`
	SchemaVersion int                `json:"schema_version"`
	OpenConns     int                `json:"open_connections"`
	Events        events.BrokerState `json:"events"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	brokerState, _ := s.Broker.State().(events.BrokerState)
	state := StoreState{
		Path:          s.config.Path,
		ReadOnly:      s.config.ReadOnly,
		Tables:        s.config.Schema.Names(),
		SchemaVersion: SchemaVersion,
		Events:        brokerState,
	}
	if s.db != nil {
		state.OpenConns = s.db.Stats().OpenConnections
	}
	return state
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "sqlite-store"
}

var _ core.Store = (*Store)(nil)
var _ core.Notifier = (*Store)(nil)
var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)
