package dashboard_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/aether/internal/testutil"
	"github.com/aretw0/aether/pkg/capture"
	"github.com/aretw0/aether/pkg/core"
	"github.com/aretw0/aether/pkg/dashboard"
	"github.com/aretw0/aether/pkg/ledger"
	"github.com/aretw0/aether/pkg/resonance"
)

func newDashboard(store *testutil.Store) (*dashboard.Dashboard, *capture.Service, *resonance.Service) {
	clock := testutil.Clock()
	l := ledger.New(store, ledger.WithClock(clock))
	caps := capture.New(store, capture.WithClock(clock))
	res := resonance.New(store, l, resonance.WithClock(clock))
	return dashboard.New(l, caps, res), caps, res
}

func TestSnapshot_NewUser(t *testing.T) {
	store := testutil.NewStore()
	defer store.Close()
	d, _, _ := newDashboard(store)

	snap, err := d.Snapshot(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, ledger.Progress{Level: 1, ToNextLevel: 100}, snap.Progress)
	assert.Empty(t, snap.RecentActivity)
	assert.Empty(t, snap.RecentCaptures)
	assert.Empty(t, snap.Mandala)
}

func TestSnapshot(t *testing.T) {
	store := testutil.NewStore()
	defer store.Close()
	d, caps, res := newDashboard(store)
	ctx := context.Background()

	growth, err := res.CreateValue(ctx, "u1", "Growth", "")
	require.NoError(t, err)
	c, err := caps.Create(ctx, "u1", core.KindThought, "first")
	require.NoError(t, err)
	_, err = res.Resonate(ctx, "u1", c.ID, growth.ID, "")
	require.NoError(t, err)

	snap, err := d.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 10, snap.Progress.TotalXP)
	assert.Equal(t, 10, snap.Progress.CurrentLevelXP)
	require.Len(t, snap.RecentActivity, 1)
	require.Len(t, snap.RecentCaptures, 1)
	require.Len(t, snap.Mandala, 1)
	assert.Equal(t, 1, snap.Mandala[0].Count)
}

func TestSnapshot_PropagatesFailure(t *testing.T) {
	store := testutil.NewStore()
	defer store.Close()
	d, _, _ := newDashboard(store)
	store.Fail(testutil.OpQuery, core.TableCaptures, errors.New("down"))

	_, err := d.Snapshot(context.Background(), "u1")
	assert.ErrorIs(t, err, core.ErrPersistence)
}
