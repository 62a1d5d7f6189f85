package core

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Fields is a single row as column name -> value.
type Fields map[string]any

// ID returns the "id" column as a string.
func (f Fields) ID() string {
	return f.String("id")
}

// String returns the column formatted as text, or "" when absent or null.
func (f Fields) String(key string) string {
	v, ok := f[key]
	if !ok || v == nil {
		return ""
	}
	return FormatValue(v)
}

// Clone returns a shallow copy.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Filter is an equality predicate on a single column.
type Filter struct {
	Field string
	Value any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// Matches reports whether the row satisfies the filter.
func (f Filter) Matches(row Fields) bool {
	v, ok := row[f.Field]
	if !ok || v == nil {
		return f.Value == nil
	}
	if f.Value == nil {
		return false
	}
	return FormatValue(v) == FormatValue(f.Value)
}

// MatchAll reports whether the row satisfies every filter.
func MatchAll(row Fields, filters []Filter) bool {
	for _, f := range filters {
		if !f.Matches(row) {
			return false
		}
	}
	return true
}

// Query selects rows of one table.
type Query struct {
	Table      string
	Filters    []Filter
	OrderBy    string
	Descending bool
	// Limit <= 0 means no limit.
	Limit int
}

// Store is the row-oriented persistence contract. Adapters enforce the
// uniqueness constraints of the Schema they were opened with and report
// violations as *ConflictError.
type Store interface {
	// Initialize prepares the backend (directories, schema migration).
	Initialize(ctx context.Context) error

	// Insert creates a row. fields must contain "id".
	Insert(ctx context.Context, table string, fields Fields) error

	// Get returns the row with the given id or ErrNotFound.
	Get(ctx context.Context, table, id string) (Fields, error)

	// Update applies a partial patch to a row and returns the stored row.
	Update(ctx context.Context, table, id string, patch Fields) (Fields, error)

	// Delete removes a row or returns ErrNotFound.
	Delete(ctx context.Context, table, id string) error

	// Query returns the rows matching q.
	Query(ctx context.Context, q Query) ([]Fields, error)
}

// Subscription is the cancellation handle of a change subscription.
type Subscription interface {
	Cancel()
}

// Notifier pushes row-level change notifications.
// table is a glob pattern; filters narrow the rows of interest.
type Notifier interface {
	Subscribe(ctx context.Context, table string, filters []Filter, onChange func(Event)) (Subscription, error)
}

// SubscriptionFunc adapts a function to Subscription.
type SubscriptionFunc func()

func (f SubscriptionFunc) Cancel() { f() }

// EventType represents the kind of row change.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Event is a row-level change. Record is nil when the adapter could not
// recover the row (e.g. a file removed behind the store's back).
type Event struct {
	Type      EventType
	Table     string
	ID        string
	Record    Fields
	Timestamp int64 // Unix timestamp
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s/%s", e.Type, e.Table, e.ID)
}

// NewEvent stamps an event with the current time.
func NewEvent(t EventType, table, id string, record Fields) Event {
	return Event{Type: t, Table: table, ID: id, Record: record, Timestamp: time.Now().Unix()}
}

type contextKey string

// ChangeReasonKey is the context key for passing an audit message
// (commit message on versioned adapters) with a write.
const ChangeReasonKey contextKey = "change_reason"

// WithChangeReason attaches an audit message to ctx.
func WithChangeReason(ctx context.Context, reason string) context.Context {
	return context.WithValue(ctx, ChangeReasonKey, reason)
}

// ChangeReason extracts the audit message from ctx.
func ChangeReason(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ChangeReasonKey).(string)
	return v, ok && v != ""
}

// FormatValue renders a column value in its canonical text form, so that
// 10, int64(10) and float64(10) compare equal.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return FormatValue(float64(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprintf("%v", v)
}

// CompareValues orders two column values: numerically when both are numbers,
// otherwise by their text form. Nulls sort first.
func CompareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	as, bs := FormatValue(a), FormatValue(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	}
	return 0, false
}
