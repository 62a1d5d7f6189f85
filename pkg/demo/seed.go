// Package demo fills an empty account with a sample dataset. Everything goes
// through the regular services, so XP is earned the normal way.
package demo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/aether/pkg/board"
	"github.com/aretw0/aether/pkg/capture"
	"github.com/aretw0/aether/pkg/core"
	"github.com/aretw0/aether/pkg/resonance"
)

// ErrAlreadySeeded is returned when the user already has values.
var ErrAlreadySeeded = errors.New("account already has data")

// Services are the collaborators Seed writes through. Board must belong to
// the seeded user.
type Services struct {
	Captures  *capture.Service
	Resonance *resonance.Service
	Board     *board.Board
}

// Result counts what was created.
type Result struct {
	Values     int `json:"values"`
	Captures   int `json:"captures"`
	Resonances int `json:"resonances"`
	Tasks      int `json:"tasks"`
}

type valueSeed struct {
	name, description string
	// links is how many captures resonate with the value.
	links int
}

var values = []valueSeed{
	{"Growth", "Continuously learning and evolving as a person", 8},
	{"Connection", "Building meaningful relationships with others", 5},
	{"Freedom", "Having autonomy and choice in life decisions", 7},
	{"Creativity", "Expressing myself through innovation and imagination", 6},
	{"Wisdom", "Seeking deeper understanding and making good judgments", 4},
	{"Adventure", "Exploring new experiences and taking calculated risks", 3},
}

type captureSeed struct {
	kind      core.CaptureKind
	text, url string
}

// Oldest first, so the feed shows them newest first.
var captures = []captureSeed{
	{core.KindThought, "Thinking about how we can better integrate our values into our daily work practices.", ""},
	{core.KindLink, "Useful productivity framework that might help our team", "https://example.com/productivity-framework"},
	{core.KindThought, "Need to remember to update the dashboard design with more visualizations.", ""},
	{core.KindThought, "Reflection after today's meeting: We should focus more on user feedback earlier in the development cycle.", ""},
	{core.KindLink, "Fantastic article about mindfulness in the workplace", "https://example.com/mindfulness-article"},
	{core.KindLink, "Great article about productivity systems", "https://example.com/article"},
	{core.KindThought, "Just had a great idea for improving our team's communication system through better async updates.", ""},
	{core.KindThought, "I should implement a new feature that allows users to tag captures with custom categories.", ""},
}

type taskSeed struct {
	title  string
	status core.Status
}

var tasks = []taskSeed{
	{"Design dashboard layout", core.StatusDone},
	{"Implement drag and drop for kanban board", core.StatusDoing},
	{"Add value resonance feature", core.StatusDoing},
	{"Create onboarding tutorial", core.StatusTodo},
	{"Implement user settings page", core.StatusTodo},
}

// Seed creates the sample dataset for userID.
func Seed(ctx context.Context, s Services, userID string) (Result, error) {
	var res Result
	if s.Board != nil && s.Board.UserID() != userID {
		return res, fmt.Errorf("seed: board belongs to %s, not %s", s.Board.UserID(), userID)
	}

	existing, err := s.Resonance.ListValues(ctx, userID)
	if err != nil {
		return res, err
	}
	if len(existing) > 0 {
		return res, ErrAlreadySeeded
	}

	captureIDs := make([]string, 0, len(captures))
	for _, c := range captures {
		var created core.Capture
		if c.kind == core.KindLink {
			created, err = s.Captures.CreateLink(ctx, userID, c.url, c.text)
		} else {
			created, err = s.Captures.Create(ctx, userID, c.kind, c.text)
		}
		if err != nil {
			return res, fmt.Errorf("seed capture: %w", err)
		}
		captureIDs = append(captureIDs, created.ID)
		res.Captures++
	}

	for _, v := range values {
		created, err := s.Resonance.CreateValue(ctx, userID, v.name, v.description)
		if err != nil {
			return res, fmt.Errorf("seed value %s: %w", v.name, err)
		}
		res.Values++

		for i := 0; i < v.links && i < len(captureIDs); i++ {
			if _, err := s.Resonance.Resonate(ctx, userID, captureIDs[i], created.ID, ""); err != nil {
				return res, fmt.Errorf("seed resonance %s: %w", v.name, err)
			}
			res.Resonances++
		}
	}

	if s.Board == nil {
		return res, nil
	}
	for _, t := range tasks {
		task, err := s.Board.Create(ctx, t.title)
		if err != nil {
			return res, fmt.Errorf("seed task: %w", err)
		}
		res.Tasks++
		if t.status == core.StatusTodo {
			continue
		}
		if _, err := s.Board.SetStatus(ctx, task.ID, t.status); err != nil {
			return res, fmt.Errorf("seed task status: %w", err)
		}
	}
	return res, nil
}
