// Package resonance manages a user's values and the links between captures
// and values. Every new link grants a fixed XP reward.
package resonance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/aether/pkg/core"
	"github.com/aretw0/aether/pkg/ledger"
	"github.com/aretw0/aether/pkg/typed"
)

// Service implements value management and resonance linking.
type Service struct {
	values   *typed.Repository[core.Value]
	links    *typed.Repository[core.Resonance]
	captures *typed.Repository[core.Capture]
	ledger   *ledger.Ledger
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

// New creates a Service over store. XP is appended to l.
func New(store core.Store, l *ledger.Ledger, opts ...Option) *Service {
	s := &Service{
		values:   typed.NewRepository[core.Value](store, core.TableValues),
		links:    typed.NewRepository[core.Resonance](store, core.TableResonance),
		captures: typed.NewRepository[core.Capture](store, core.TableCaptures),
		ledger:   l,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func translateValueConflict(err error) error {
	if errors.Is(err, core.ErrConflict) {
		return core.Translate(core.ErrDuplicateName, err)
	}
	return err
}

// CreateValue adds a value. Names are trimmed and unique per user.
func (s *Service) CreateValue(ctx context.Context, userID, name, description string) (core.Value, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Value{}, core.Required("name")
	}

	v := core.Value{
		ID:          s.newID(),
		UserID:      userID,
		Name:        name,
		Description: core.Optional(strings.TrimSpace(description)),
		CreatedAt:   core.NewTimestamp(s.now()),
	}

	ctx = core.WithChangeReason(ctx, "create value: "+name)
	if _, err := s.values.Insert(ctx, v); err != nil {
		return core.Value{}, core.Persistence("create value", translateValueConflict(err))
	}

	s.logger.Debug("value created", "user_id", userID, "value_id", v.ID)
	return v, nil
}

// GetValue returns a value owned by userID.
func (s *Service) GetValue(ctx context.Context, userID, id string) (core.Value, error) {
	v, err := s.values.Get(ctx, id)
	if err != nil {
		return core.Value{}, core.Persistence("get value", err)
	}
	if v.UserID != userID {
		return core.Value{}, core.NotFound(core.TableValues, id)
	}
	return v, nil
}

// ValuePatch holds the editable fields of a value. Nil leaves a field as is.
type ValuePatch struct {
	Name        *string
	Description *string
}

// UpdateValue renames or re-describes a value. An empty description clears it.
func (s *Service) UpdateValue(ctx context.Context, userID, id string, patch ValuePatch) (core.Value, error) {
	fields := core.Fields{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return core.Value{}, core.Required("name")
		}
		fields["name"] = name
	}
	if patch.Description != nil {
		if d := strings.TrimSpace(*patch.Description); d != "" {
			fields["description"] = d
		} else {
			fields["description"] = nil
		}
	}

	current, err := s.GetValue(ctx, userID, id)
	if err != nil {
		return core.Value{}, err
	}
	if len(fields) == 0 {
		return current, nil
	}

	ctx = core.WithChangeReason(ctx, "update value: "+current.Name)
	v, err := s.values.Update(ctx, id, fields)
	if err != nil {
		return core.Value{}, core.Persistence("update value", translateValueConflict(err))
	}
	return v, nil
}

// DeleteValue removes a value that no resonance refers to.
func (s *Service) DeleteValue(ctx context.Context, userID, id string) error {
	v, err := s.GetValue(ctx, userID, id)
	if err != nil {
		return err
	}

	linked, err := s.links.Exists(ctx, core.Eq("value_id", id))
	if err != nil {
		return core.Persistence("check value dependents", err)
	}
	if linked {
		return core.HasDependents(core.TableValues, id, core.TableResonance)
	}

	ctx = core.WithChangeReason(ctx, "delete value: "+v.Name)
	if err := s.values.Delete(ctx, id); err != nil {
		return core.Persistence("delete value", err)
	}
	return nil
}

// ValueSummary is a value with its current resonance count.
type ValueSummary struct {
	core.Value
	Resonances int `json:"resonances"`
}

// ListValues returns the user's values ordered by name with their counts.
func (s *Service) ListValues(ctx context.Context, userID string) ([]ValueSummary, error) {
	values, err := s.values.Find(ctx, []core.Filter{core.Eq("user_id", userID)}, typed.OrderBy("name", false))
	if err != nil {
		return nil, core.Persistence("list values", err)
	}
	counts, err := s.countsByValue(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]ValueSummary, len(values))
	for i, v := range values {
		out[i] = ValueSummary{Value: v, Resonances: counts[v.ID]}
	}
	return out, nil
}

func (s *Service) countsByValue(ctx context.Context, userID string) (map[string]int, error) {
	links, err := s.links.Find(ctx, []core.Filter{core.Eq("user_id", userID)})
	if err != nil {
		return nil, core.Persistence("list resonances", err)
	}
	counts := make(map[string]int)
	for _, l := range links {
		counts[l.ValueID]++
	}
	return counts, nil
}

// Resonate links a capture to a value and grants ResonanceReward XP.
// A repeated (user, capture, value) triple fails with ErrDuplicateLink and
// grants nothing. If the XP append fails the link is kept and returned with
// the persistence error.
func (s *Service) Resonate(ctx context.Context, userID, captureID, valueID, reflection string) (core.Resonance, error) {
	if strings.TrimSpace(userID) == "" {
		return core.Resonance{}, core.Required("user_id")
	}

	value, err := s.GetValue(ctx, userID, valueID)
	if err != nil {
		return core.Resonance{}, err
	}
	capture, err := s.captures.Get(ctx, captureID)
	if err != nil {
		return core.Resonance{}, core.Persistence("get capture", err)
	}
	if capture.UserID != userID {
		return core.Resonance{}, core.NotFound(core.TableCaptures, captureID)
	}

	link := core.Resonance{
		ID:         s.newID(),
		UserID:     userID,
		CaptureID:  captureID,
		ValueID:    valueID,
		Reflection: core.Optional(strings.TrimSpace(reflection)),
		XPGranted:  ledger.ResonanceReward,
		CreatedAt:  core.NewTimestamp(s.now()),
	}

	writeCtx := core.WithChangeReason(ctx, "resonate with value: "+value.Name)
	if _, err := s.links.Insert(writeCtx, link); err != nil {
		if errors.Is(err, core.ErrConflict) {
			return core.Resonance{}, core.Translate(core.ErrDuplicateLink, err)
		}
		return core.Resonance{}, core.Persistence("create resonance", err)
	}

	if _, err := s.ledger.Append(ctx, userID, ledger.ResonanceReward, "Resonated with Value: "+value.Name, ledger.Source{ResonanceID: link.ID}); err != nil {
		s.logger.Warn("resonance created without xp grant", "user_id", userID, "resonance_id", link.ID, "error", err)
		return link, err
	}

	s.logger.Debug("resonance created", "user_id", userID, "capture_id", captureID, "value_id", valueID)
	return link, nil
}

// ResonanceCount counts the links referring to valueID.
func (s *Service) ResonanceCount(ctx context.Context, valueID string) (int, error) {
	n, err := s.links.Count(ctx, core.Eq("value_id", valueID))
	if err != nil {
		return 0, core.Persistence("count resonances", err)
	}
	return n, nil
}

// ForCapture lists the links of one capture, oldest first.
func (s *Service) ForCapture(ctx context.Context, userID, captureID string) ([]core.Resonance, error) {
	links, err := s.links.Find(ctx, []core.Filter{core.Eq("user_id", userID), core.Eq("capture_id", captureID)}, typed.OrderBy("created_at", false))
	if err != nil {
		return nil, core.Persistence("list capture resonances", err)
	}
	return links, nil
}

// MandalaPoint is one axis of the values radar chart.
type MandalaPoint struct {
	ValueID string `json:"value_id"`
	Name    string `json:"name"`
	Count   int    `json:"count"`
}

// Mandala returns one point per value, ordered by name.
func (s *Service) Mandala(ctx context.Context, userID string) ([]MandalaPoint, error) {
	values, err := s.ListValues(ctx, userID)
	if err != nil {
		return nil, err
	}
	points := make([]MandalaPoint, len(values))
	for i, v := range values {
		points[i] = MandalaPoint{ValueID: v.ID, Name: v.Name, Count: v.Resonances}
	}
	return points, nil
}
