package board

import (
	"sync"

	"github.com/aretw0/aether/pkg/core"
)

// OperationState is the outcome of an optimistic change.
type OperationState int

const (
	Pending OperationState = iota
	Committed
	RolledBack
)

func (s OperationState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled-back"
	}
	return "unknown"
}

// Operation tracks one optimistic status change. It starts Pending as soon as
// the in-memory view is updated and ends Committed or RolledBack.
type Operation struct {
	TaskID string
	From   core.Status
	To     core.Status
	// Grant is the ledger entry created by the change, if any.
	Grant *core.LedgerEntry

	mu       sync.Mutex
	state    OperationState
	rollback func()
}

func newOperation(taskID string, from, to core.Status, rollback func()) *Operation {
	return &Operation{TaskID: taskID, From: from, To: to, rollback: rollback}
}

func committedNoop(task core.Action) *Operation {
	return &Operation{TaskID: task.ID, From: task.Status, To: task.Status, state: Committed}
}

// State returns the current outcome.
func (o *Operation) State() OperationState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Rollback undoes the optimistic change. It only acts on a pending operation
// and reports whether it did.
func (o *Operation) Rollback() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != Pending {
		return false
	}
	if o.rollback != nil {
		o.rollback()
	}
	o.state = RolledBack
	return true
}

func (o *Operation) commit() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == Pending {
		o.state = Committed
	}
}
