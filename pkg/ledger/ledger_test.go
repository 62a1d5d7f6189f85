package ledger_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/aether/internal/testutil"
	"github.com/aretw0/aether/pkg/core"
	"github.com/aretw0/aether/pkg/ledger"
)

func TestLevel(t *testing.T) {
	cases := []struct {
		xp    int
		level int
	}{
		{0, 1}, {1, 1}, {99, 1}, {100, 2}, {150, 2}, {199, 2}, {200, 3}, {1000, 11},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.level, ledger.Level(tc.xp), "xp=%d", tc.xp)
	}
}

func TestLevel_MonotonicAndStableWithinBand(t *testing.T) {
	prev := ledger.Level(0)
	for xp := 0; xp <= 1000; xp++ {
		lvl := ledger.Level(xp)
		assert.GreaterOrEqual(t, lvl, prev)
		assert.Equal(t, xp/100+1, lvl)
		assert.Equal(t, ledger.Level((xp/100)*100), lvl, "same band as its floor")
		prev = lvl
	}
}

func TestProgressWithinLevel(t *testing.T) {
	current, fraction := ledger.ProgressWithinLevel(10)
	assert.Equal(t, 10, current)
	assert.InDelta(t, 0.10, fraction, 1e-9)

	current, fraction = ledger.ProgressWithinLevel(200)
	assert.Equal(t, 0, current)
	assert.Zero(t, fraction)

	for xp := 0; xp < 500; xp += 7 {
		c, f := ledger.ProgressWithinLevel(xp)
		assert.GreaterOrEqual(t, c, 0)
		assert.Less(t, c, ledger.LevelSize)
		assert.Less(t, f, 1.0)
	}
}

func TestNegativeTotalsStayConsistent(t *testing.T) {
	// -30 sits 70 XP into level 0.
	assert.Equal(t, 0, ledger.Level(-30))
	current, _ := ledger.ProgressWithinLevel(-30)
	assert.Equal(t, 70, current)
	assert.Equal(t, 30, ledger.XPToNextLevel(-30))
	assert.Equal(t, -1, ledger.Level(-101))
}

func TestXPRequiredForLevel(t *testing.T) {
	assert.Equal(t, 0, ledger.XPRequiredForLevel(1))
	assert.Equal(t, 200, ledger.XPRequiredForLevel(3))
	assert.Equal(t, 3, ledger.Level(ledger.XPRequiredForLevel(3)))
	assert.Equal(t, 2, ledger.Level(ledger.XPRequiredForLevel(3)-1))
}

func newLedger(store core.Store) *ledger.Ledger {
	return ledger.New(store, ledger.WithClock(testutil.Clock()), ledger.WithIDGenerator(testutil.IDs("xp")))
}

func TestAppend(t *testing.T) {
	store := testutil.NewStore()
	l := newLedger(store)
	ctx := context.Background()

	entry, err := l.Append(ctx, "u1", 10, "Completed Action: Write report", ledger.Source{TaskID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, "xp-1", entry.ID)
	assert.Equal(t, "a1", core.Deref(entry.SourceActionID))
	assert.Nil(t, entry.SourceResonanceID)
	assert.False(t, entry.CreatedAt.IsZero())

	rows := store.Rows(core.TableLedger)
	require.Len(t, rows, 1)
	assert.Equal(t, "Completed Action: Write report", rows[0]["source_description"])
}

func TestAppend_RequiresUser(t *testing.T) {
	store := testutil.NewStore()
	_, err := newLedger(store).Append(context.Background(), " ", 10, "x", ledger.Source{})
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.Empty(t, store.Calls())
}

func TestAppend_PersistenceFailureIsNotRetried(t *testing.T) {
	store := testutil.NewStore()
	boom := errors.New("connection reset")
	store.Fail(testutil.OpInsert, core.TableLedger, boom)

	_, err := newLedger(store).Append(context.Background(), "u1", 10, "x", ledger.Source{})
	assert.ErrorIs(t, err, core.ErrPersistence)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"insert:xp_ledger"}, store.Calls())
	assert.Empty(t, store.Rows(core.TableLedger))
}

func TestTotalXP_IsSumOfDeltasInAnyOrder(t *testing.T) {
	deltas := []int{10, 10, -5, 25, 10, 0, 3}
	want := 0
	for _, d := range deltas {
		want += d
	}

	for seed := int64(1); seed <= 5; seed++ {
		shuffled := append([]int(nil), deltas...)
		rand.New(rand.NewSource(seed)).Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		store := testutil.NewStore()
		l := newLedger(store)
		for _, d := range shuffled {
			_, err := l.Append(context.Background(), "u1", d, "adjustment", ledger.Source{})
			require.NoError(t, err)
		}
		_, err := l.Append(context.Background(), "someone-else", 1000, "other", ledger.Source{})
		require.NoError(t, err)

		total, err := l.TotalXP(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, want, total)
	}
}

func TestTotalXP_ZeroWithoutEntries(t *testing.T) {
	total, err := newLedger(testutil.NewStore()).TotalXP(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, total)

	summary, err := newLedger(testutil.NewStore()).Summary(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, ledger.Progress{Level: 1, ToNextLevel: 100}, summary)
}

func TestRecent(t *testing.T) {
	l := newLedger(testutil.NewStore())
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		_, err := l.Append(ctx, "u1", 10, "grant", ledger.Source{})
		require.NoError(t, err)
	}

	recent, err := l.Recent(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, recent, ledger.DefaultRecent)
	assert.Equal(t, "xp-7", recent[0].ID)
	assert.Equal(t, "xp-3", recent[4].ID)

	all, err := l.Entries(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, all, 7)
	assert.Equal(t, "xp-1", all[0].ID)
}

func TestSummary(t *testing.T) {
	l := newLedger(testutil.NewStore())
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		_, err := l.Append(ctx, "u1", 10, "grant", ledger.Source{})
		require.NoError(t, err)
	}

	summary, err := l.Summary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 150, summary.TotalXP)
	assert.Equal(t, 2, summary.Level)
	assert.Equal(t, 50, summary.CurrentLevelXP)
	assert.InDelta(t, 0.5, summary.Fraction, 1e-9)
	assert.Equal(t, 50, summary.ToNextLevel)
}
