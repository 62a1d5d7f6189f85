package board

import "github.com/aretw0/aether/pkg/core"

// Effect describes what a status change does.
type Effect struct {
	// Changed is false for a no-op (same status).
	Changed bool
	// GrantsXP is true when the task enters DONE from another state.
	GrantsXP bool
}

// Transition evaluates a move between two states. Every pair of valid
// states is allowed; leaving DONE is permitted and never retracts XP.
func Transition(from, to core.Status) Effect {
	if from == to {
		return Effect{}
	}
	return Effect{Changed: true, GrantsXP: to == core.StatusDone}
}
