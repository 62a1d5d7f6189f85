// Package testutil provides an in-memory core.Store with failure injection.
package testutil

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/aretw0/aether/pkg/core"
	"github.com/aretw0/aether/pkg/events"
)

// Op names used with Fail.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
	OpQuery  = "query"
	OpGet    = "get"
)

// Store keeps rows in memory and enforces the schema's unique constraints
// like the real adapters do. It publishes change events through a Broker.
type Store struct {
	*events.Broker

	mu       sync.Mutex
	schema   core.Schema
	rows     map[string]map[string]core.Fields
	order    map[string][]string
	failures map[string][]error
	calls    []string
}

// NewStore creates an empty store over the default schema.
func NewStore() *Store {
	s := &Store{
		Broker:   events.NewBroker(0, nil),
		schema:   core.DefaultSchema(),
		rows:     make(map[string]map[string]core.Fields),
		order:    make(map[string][]string),
		failures: make(map[string][]error),
	}
	for _, name := range s.schema.Names() {
		s.rows[name] = make(map[string]core.Fields)
	}
	return s
}

// Fail makes the next call of op on table return err. Calls queue up.
func (s *Store) Fail(op, table string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := op + ":" + table
	s.failures[key] = append(s.failures[key], err)
}

// Calls returns the "op:table" log of write calls.
func (s *Store) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Rows returns a snapshot of a table in insertion order.
func (s *Store) Rows(table string) []core.Fields {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Fields, 0, len(s.order[table]))
	for _, id := range s.order[table] {
		out = append(out, s.rows[table][id].Clone())
	}
	return out
}

func (s *Store) takeFailure(op, table string) error {
	key := op + ":" + table
	queue := s.failures[key]
	if len(queue) == 0 {
		return nil
	}
	s.failures[key] = queue[1:]
	return queue[0]
}

func (s *Store) table(name string) (core.TableSchema, error) {
	t, ok := s.schema.Table(name)
	if !ok {
		return core.TableSchema{}, fmt.Errorf("unknown table %q", name)
	}
	return t, nil
}

func (s *Store) Initialize(ctx context.Context) error { return nil }

func (s *Store) Insert(ctx context.Context, table string, fields core.Fields) error {
	s.mu.Lock()
	s.calls = append(s.calls, OpInsert+":"+table)
	if err := s.takeFailure(OpInsert, table); err != nil {
		s.mu.Unlock()
		return err
	}
	t, err := s.table(table)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	id := fields.ID()
	if id == "" {
		s.mu.Unlock()
		return fmt.Errorf("insert %s: missing id", table)
	}
	if _, exists := s.rows[table][id]; exists {
		s.mu.Unlock()
		return &core.ConflictError{Table: table, Columns: []string{"id"}}
	}
	for _, existing := range s.rows[table] {
		if cols := t.Conflicts(existing, fields); cols != nil {
			s.mu.Unlock()
			return &core.ConflictError{Table: table, Columns: cols}
		}
	}
	row := fields.Clone()
	s.rows[table][id] = row
	s.order[table] = append(s.order[table], id)
	s.mu.Unlock()

	s.Publish(core.NewEvent(core.EventInsert, table, id, row.Clone()))
	return nil
}

func (s *Store) Get(ctx context.Context, table, id string) (core.Fields, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(OpGet, table); err != nil {
		return nil, err
	}
	row, ok := s.rows[table][id]
	if !ok {
		return nil, core.NotFound(table, id)
	}
	return row.Clone(), nil
}

func (s *Store) Update(ctx context.Context, table, id string, patch core.Fields) (core.Fields, error) {
	s.mu.Lock()
	s.calls = append(s.calls, OpUpdate+":"+table)
	if err := s.takeFailure(OpUpdate, table); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	t, err := s.table(table)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	row, ok := s.rows[table][id]
	if !ok {
		s.mu.Unlock()
		return nil, core.NotFound(table, id)
	}
	next := row.Clone()
	for k, v := range patch {
		if k == "id" {
			continue
		}
		next[k] = v
	}
	for otherID, existing := range s.rows[table] {
		if otherID == id {
			continue
		}
		if cols := t.Conflicts(existing, next); cols != nil {
			s.mu.Unlock()
			return nil, &core.ConflictError{Table: table, Columns: cols}
		}
	}
	s.rows[table][id] = next
	s.mu.Unlock()

	s.Publish(core.NewEvent(core.EventUpdate, table, id, next.Clone()))
	return next.Clone(), nil
}

func (s *Store) Delete(ctx context.Context, table, id string) error {
	s.mu.Lock()
	s.calls = append(s.calls, OpDelete+":"+table)
	if err := s.takeFailure(OpDelete, table); err != nil {
		s.mu.Unlock()
		return err
	}
	row, ok := s.rows[table][id]
	if !ok {
		s.mu.Unlock()
		return core.NotFound(table, id)
	}
	delete(s.rows[table], id)
	s.order[table] = slices.DeleteFunc(s.order[table], func(x string) bool { return x == id })
	s.mu.Unlock()

	s.Publish(core.NewEvent(core.EventDelete, table, id, row))
	return nil
}

func (s *Store) Query(ctx context.Context, q core.Query) ([]core.Fields, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(OpQuery, q.Table); err != nil {
		return nil, err
	}
	if _, err := s.table(q.Table); err != nil {
		return nil, err
	}

	var out []core.Fields
	for _, id := range s.order[q.Table] {
		row := s.rows[q.Table][id]
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

var _ core.Store = (*Store)(nil)
var _ core.Notifier = (*Store)(nil)
