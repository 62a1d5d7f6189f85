// Package dashboard assembles the home screen read model.
package dashboard

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/aether/pkg/capture"
	"github.com/aretw0/aether/pkg/core"
	"github.com/aretw0/aether/pkg/ledger"
	"github.com/aretw0/aether/pkg/resonance"
)

// RecentLimit is the length of both recent lists.
const RecentLimit = 5

// Snapshot is everything the dashboard shows for one user.
type Snapshot struct {
	Progress       ledger.Progress          `json:"progress"`
	RecentActivity []core.LedgerEntry       `json:"recent_activity"`
	RecentCaptures []core.Capture           `json:"recent_captures"`
	Mandala        []resonance.MandalaPoint `json:"mandala"`
}

// Dashboard reads from the ledger, capture and resonance services.
type Dashboard struct {
	ledger    *ledger.Ledger
	captures  *capture.Service
	resonance *resonance.Service
}

// New creates a Dashboard.
func New(l *ledger.Ledger, c *capture.Service, r *resonance.Service) *Dashboard {
	return &Dashboard{ledger: l, captures: c, resonance: r}
}

// Snapshot loads the independent parts concurrently. The first failure wins.
func (d *Dashboard) Snapshot(ctx context.Context, userID string) (Snapshot, error) {
	var snap Snapshot
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		p, err := d.ledger.Summary(ctx, userID)
		snap.Progress = p
		return err
	})
	g.Go(func() error {
		entries, err := d.ledger.Recent(ctx, userID, RecentLimit)
		snap.RecentActivity = entries
		return err
	})
	g.Go(func() error {
		captures, err := d.captures.Recent(ctx, userID, RecentLimit)
		snap.RecentCaptures = captures
		return err
	})
	g.Go(func() error {
		points, err := d.resonance.Mandala(ctx, userID)
		snap.Mandala = points
		return err
	})

	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
