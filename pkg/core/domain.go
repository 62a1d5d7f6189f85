// Package core holds the domain entities and the contracts Aether expects from
// its collaborators (row store, change notifications, identity).
package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Table names as seen by every store adapter.
const (
	TableUsers     = "users"
	TableValues    = "values"
	TableCaptures  = "captures"
	TableActions   = "actions"
	TableResonance = "resonate"
	TableLedger    = "xp_ledger"
)

// Status is the kanban column of an Action.
type Status string

const (
	StatusTodo  Status = "TODO"
	StatusDoing Status = "DOING"
	StatusDone  Status = "DONE"
)

// Statuses lists the board columns in display order.
var Statuses = []Status{StatusTodo, StatusDoing, StatusDone}

// Valid reports whether s is one of the three board states.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusDoing, StatusDone:
		return true
	}
	return false
}

// ParseStatus accepts the canonical upper-case names and their lower-case forms.
func ParseStatus(s string) (Status, error) {
	st := Status(upper(s))
	if !st.Valid() {
		return "", Invalid("status", fmt.Sprintf("unknown status %q", s))
	}
	return st, nil
}

// CaptureKind distinguishes free text from links.
type CaptureKind string

const (
	KindThought CaptureKind = "THOUGHT"
	KindLink    CaptureKind = "EXTERNAL_LINK"
)

// Valid reports whether k is a known capture kind.
func (k CaptureKind) Valid() bool {
	return k == KindThought || k == KindLink
}

// ParseCaptureKind accepts "thought", "link" and the canonical names.
func ParseCaptureKind(s string) (CaptureKind, error) {
	switch upper(s) {
	case "THOUGHT":
		return KindThought, nil
	case "LINK", "EXTERNAL_LINK", "URL":
		return KindLink, nil
	}
	return "", Invalid("kind", fmt.Sprintf("unknown capture kind %q", s))
}

// TimestampLayout is fixed width so lexical order equals chronological order
// in every adapter (SQL ORDER BY on TEXT, file stores comparing strings).
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

// Timestamp is a UTC instant with a stable text encoding.
type Timestamp struct {
	time.Time
}

// NewTimestamp normalizes t to UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

// String returns the stored form of the timestamp.
func (t Timestamp) String() string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimestampLayout)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.String())
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	t.Time = parsed.UTC()
	return nil
}

// User is owned by the identity provider. The core only references it.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// DisplayName falls back to the email when no name is known.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// Value is a user-defined category of personal significance.
type Value struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	CreatedAt   Timestamp `json:"created_at"`
}

// Capture is a recorded thought or link. Immutable once created.
type Capture struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	Kind      CaptureKind `json:"kind"`
	Body      *string     `json:"body"`
	URL       *string     `json:"url"`
	CreatedAt Timestamp   `json:"created_at"`
}

// Text returns the body of a thought or the url of a link.
func (c Capture) Text() string {
	if c.Kind == KindLink && c.URL != nil {
		return *c.URL
	}
	if c.Body != nil {
		return *c.Body
	}
	if c.URL != nil {
		return *c.URL
	}
	return ""
}

// Action is a task on the kanban board.
type Action struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Status    Status    `json:"status"`
	CreatedAt Timestamp `json:"created_at"`
	UpdatedAt Timestamp `json:"updated_at"`
}

// Resonance links a capture to a value, at most once per (user, capture, value).
type Resonance struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	CaptureID  string    `json:"capture_id"`
	ValueID    string    `json:"value_id"`
	Reflection *string   `json:"reflection"`
	XPGranted  int       `json:"xp_granted"`
	CreatedAt  Timestamp `json:"created_at"`
}

// LedgerEntry is an immutable XP delta. The source ids are weak references.
type LedgerEntry struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	Delta             int       `json:"delta"`
	SourceDescription string    `json:"source_description"`
	SourceActionID    *string   `json:"source_action_id"`
	SourceResonanceID *string   `json:"source_resonate_id"`
	CreatedAt         Timestamp `json:"created_at"`
}

// Optional returns nil for the empty string, otherwise a pointer to s.
func Optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func upper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
