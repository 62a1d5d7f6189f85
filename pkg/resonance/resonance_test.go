package resonance_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/aether/internal/testutil"
	"github.com/aretw0/aether/pkg/core"
	"github.com/aretw0/aether/pkg/ledger"
	"github.com/aretw0/aether/pkg/resonance"
)

type fixture struct {
	store  *testutil.Store
	ledger *ledger.Ledger
	svc    *resonance.Service
}

func setup(t *testing.T) fixture {
	t.Helper()
	store := testutil.NewStore()
	t.Cleanup(store.Close)
	clock := testutil.Clock()
	l := ledger.New(store, ledger.WithClock(clock), ledger.WithIDGenerator(testutil.IDs("xp")))
	svc := resonance.New(store, l, resonance.WithClock(clock), resonance.WithIDGenerator(testutil.IDs("id")))
	return fixture{store: store, ledger: l, svc: svc}
}

func (f fixture) capture(t *testing.T, id, userID string) {
	t.Helper()
	require.NoError(t, f.store.Insert(context.Background(), core.TableCaptures, core.Fields{
		"id": id, "user_id": userID, "kind": "THOUGHT", "body": "a thought",
	}))
}

func TestCreateValue(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CreateValue(ctx, "u1", "  ", "")
	assert.ErrorIs(t, err, core.ErrValidation)

	v, err := f.svc.CreateValue(ctx, "u1", " Growth ", "")
	require.NoError(t, err)
	assert.Equal(t, "Growth", v.Name)
	assert.Nil(t, v.Description)

	_, err = f.svc.CreateValue(ctx, "u1", "Growth", "again")
	assert.ErrorIs(t, err, core.ErrDuplicateName)
	assert.NotErrorIs(t, err, core.ErrPersistence)

	// Names are unique per user only.
	_, err = f.svc.CreateValue(ctx, "u2", "Growth", "")
	assert.NoError(t, err)
}

func TestUpdateValue(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	growth, err := f.svc.CreateValue(ctx, "u1", "Growth", "learning")
	require.NoError(t, err)
	_, err = f.svc.CreateValue(ctx, "u1", "Wisdom", "")
	require.NoError(t, err)

	name, empty := "Wisdom", ""
	_, err = f.svc.UpdateValue(ctx, "u1", growth.ID, resonance.ValuePatch{Name: &name})
	assert.ErrorIs(t, err, core.ErrDuplicateName)

	updated, err := f.svc.UpdateValue(ctx, "u1", growth.ID, resonance.ValuePatch{Description: &empty})
	require.NoError(t, err)
	assert.Nil(t, updated.Description)
	assert.Equal(t, "Growth", updated.Name)

	_, err = f.svc.UpdateValue(ctx, "u1", growth.ID, resonance.ValuePatch{Name: &empty})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = f.svc.UpdateValue(ctx, "u2", growth.ID, resonance.ValuePatch{Description: &empty})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestResonate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	growth, err := f.svc.CreateValue(ctx, "u1", "Growth", "")
	require.NoError(t, err)
	f.capture(t, "c1", "u1")

	link, err := f.svc.Resonate(ctx, "u1", "c1", growth.ID, "  made me think ")
	require.NoError(t, err)
	assert.Equal(t, "made me think", core.Deref(link.Reflection))
	assert.Equal(t, ledger.ResonanceReward, link.XPGranted)

	entries, err := f.ledger.Entries(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 10, entries[0].Delta)
	assert.Equal(t, "Resonated with Value: Growth", entries[0].SourceDescription)
	assert.Equal(t, link.ID, core.Deref(entries[0].SourceResonanceID))
	assert.Nil(t, entries[0].SourceActionID)

	n, err := f.svc.ResonanceCount(ctx, growth.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestResonate_DuplicateGrantsNothing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	growth, err := f.svc.CreateValue(ctx, "u1", "Growth", "")
	require.NoError(t, err)
	f.capture(t, "c1", "u1")

	_, err = f.svc.Resonate(ctx, "u1", "c1", growth.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Resonate(ctx, "u1", "c1", growth.ID, "once more")
	assert.ErrorIs(t, err, core.ErrDuplicateLink)
	assert.ErrorIs(t, err, core.ErrConflict)

	total, err := f.ledger.TotalXP(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 10, total)
	assert.Len(t, f.store.Rows(core.TableLedger), 1)
}

func TestResonate_OwnershipAndExistence(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	growth, err := f.svc.CreateValue(ctx, "u1", "Growth", "")
	require.NoError(t, err)
	f.capture(t, "c-other", "u2")

	_, err = f.svc.Resonate(ctx, "u1", "missing", growth.ID, "")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.svc.Resonate(ctx, "u1", "c-other", growth.ID, "")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.svc.Resonate(ctx, "u2", "c-other", growth.ID, "")
	assert.ErrorIs(t, err, core.ErrNotFound, "value belongs to u1")

	assert.Empty(t, f.store.Rows(core.TableResonance))
	assert.Empty(t, f.store.Rows(core.TableLedger))
}

func TestResonate_LedgerFailureKeepsLink(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	growth, err := f.svc.CreateValue(ctx, "u1", "Growth", "")
	require.NoError(t, err)
	f.capture(t, "c1", "u1")
	f.store.Fail(testutil.OpInsert, core.TableLedger, errors.New("boom"))

	link, err := f.svc.Resonate(ctx, "u1", "c1", growth.ID, "")
	assert.ErrorIs(t, err, core.ErrPersistence)
	assert.NotEmpty(t, link.ID)
	assert.Len(t, f.store.Rows(core.TableResonance), 1)
}

func TestDeleteValue(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	growth, err := f.svc.CreateValue(ctx, "u1", "Growth", "")
	require.NoError(t, err)
	wisdom, err := f.svc.CreateValue(ctx, "u1", "Wisdom", "")
	require.NoError(t, err)
	f.capture(t, "c1", "u1")
	_, err = f.svc.Resonate(ctx, "u1", "c1", growth.ID, "")
	require.NoError(t, err)

	err = f.svc.DeleteValue(ctx, "u1", growth.ID)
	assert.ErrorIs(t, err, core.ErrHasDependents)
	still, err := f.svc.GetValue(ctx, "u1", growth.ID)
	require.NoError(t, err)
	assert.Equal(t, growth, still)

	require.NoError(t, f.svc.DeleteValue(ctx, "u1", wisdom.ID))
	_, err = f.svc.GetValue(ctx, "u1", wisdom.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestListValuesAndMandala(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	for _, name := range []string{"Wisdom", "Adventure", "Growth"} {
		_, err := f.svc.CreateValue(ctx, "u1", name, "")
		require.NoError(t, err)
	}
	values, err := f.svc.ListValues(ctx, "u1")
	require.NoError(t, err)
	byName := map[string]string{}
	for _, v := range values {
		byName[v.Name] = v.ID
	}

	f.capture(t, "c1", "u1")
	f.capture(t, "c2", "u1")
	for _, pair := range [][2]string{{"c1", "Growth"}, {"c2", "Growth"}, {"c1", "Wisdom"}} {
		_, err := f.svc.Resonate(ctx, "u1", pair[0], byName[pair[1]], "")
		require.NoError(t, err)
	}

	points, err := f.svc.Mandala(ctx, "u1")
	require.NoError(t, err)
	want := []resonance.MandalaPoint{
		{ValueID: byName["Adventure"], Name: "Adventure", Count: 0},
		{ValueID: byName["Growth"], Name: "Growth", Count: 2},
		{ValueID: byName["Wisdom"], Name: "Wisdom", Count: 1},
	}
	if diff := cmp.Diff(want, points); diff != "" {
		t.Errorf("mandala mismatch (-want +got):\n%s", diff)
	}

	links, err := f.svc.ForCapture(ctx, "u1", "c1")
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, byName["Growth"], links[0].ValueID)
}
