package board_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/aether/internal/testutil"
	"github.com/aretw0/aether/pkg/board"
	"github.com/aretw0/aether/pkg/core"
	"github.com/aretw0/aether/pkg/ledger"
)

type fixture struct {
	store  *testutil.Store
	ledger *ledger.Ledger
	board  *board.Board
}

func setup(t *testing.T) fixture {
	t.Helper()
	store := testutil.NewStore()
	t.Cleanup(store.Close)
	clock := testutil.Clock()
	l := ledger.New(store, ledger.WithClock(clock), ledger.WithIDGenerator(testutil.IDs("xp")))
	b := board.New(store, l, "u1", board.WithClock(clock), board.WithIDGenerator(testutil.IDs("task")))
	t.Cleanup(b.Close)
	return fixture{store: store, ledger: l, board: b}
}

func (f fixture) total(t *testing.T) int {
	t.Helper()
	total, err := f.ledger.TotalXP(context.Background(), "u1")
	require.NoError(t, err)
	return total
}

func ids(tasks []core.Action) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestTransition(t *testing.T) {
	assert.Equal(t, board.Effect{}, board.Transition(core.StatusDone, core.StatusDone))
	assert.Equal(t, board.Effect{Changed: true}, board.Transition(core.StatusTodo, core.StatusDoing))
	assert.Equal(t, board.Effect{Changed: true}, board.Transition(core.StatusDone, core.StatusTodo))
	assert.Equal(t, board.Effect{Changed: true, GrantsXP: true}, board.Transition(core.StatusTodo, core.StatusDone))
	assert.Equal(t, board.Effect{Changed: true, GrantsXP: true}, board.Transition(core.StatusDoing, core.StatusDone))
}

func TestCreate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.board.Create(ctx, "   ")
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.Empty(t, f.store.Calls())

	task, err := f.board.Create(ctx, "  Write report ")
	require.NoError(t, err)
	assert.Equal(t, "Write report", task.Title)
	assert.Equal(t, core.StatusTodo, task.Status)
	assert.Equal(t, task.CreatedAt, task.UpdatedAt)

	got, ok := f.board.Task(task.ID)
	require.True(t, ok)
	assert.Equal(t, task, got)
}

func TestSetStatus_CompletionGrantsOncePerEntry(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	task, err := f.board.Create(ctx, "Write report")
	require.NoError(t, err)

	op, err := f.board.SetStatus(ctx, task.ID, core.StatusDoing)
	require.NoError(t, err)
	assert.Equal(t, board.Committed, op.State())
	assert.Nil(t, op.Grant)
	assert.Equal(t, 0, f.total(t))

	op, err = f.board.SetStatus(ctx, task.ID, core.StatusDone)
	require.NoError(t, err)
	require.NotNil(t, op.Grant)
	assert.Equal(t, 10, op.Grant.Delta)
	assert.Equal(t, "Completed Action: Write report", op.Grant.SourceDescription)
	assert.Equal(t, task.ID, core.Deref(op.Grant.SourceActionID))
	assert.Equal(t, 10, f.total(t))

	// Leaving DONE neither grants nor retracts.
	op, err = f.board.SetStatus(ctx, task.ID, core.StatusTodo)
	require.NoError(t, err)
	assert.Nil(t, op.Grant)
	assert.Equal(t, 10, f.total(t))

	// Re-completion is rewarded again.
	_, err = f.board.SetStatus(ctx, task.ID, core.StatusDone)
	require.NoError(t, err)
	assert.Equal(t, 20, f.total(t))

	entries, err := f.ledger.Entries(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, task.ID, core.Deref(e.SourceActionID))
	}
}

func TestSetStatus_ConcurrentCompletionGrantsOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	task, err := f.board.Create(ctx, "Write report")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.board.SetStatus(ctx, task.ID, core.StatusDone)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, ledger.TaskCompletionReward, f.total(t))
	got, ok := f.board.Task(task.ID)
	require.True(t, ok)
	assert.Equal(t, core.StatusDone, got.Status)
}

func TestSetStatus_SameStatusIsNoop(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	task, err := f.board.Create(ctx, "Write report")
	require.NoError(t, err)
	before := f.store.Calls()

	op, err := f.board.SetStatus(ctx, task.ID, core.StatusTodo)
	require.NoError(t, err)
	assert.Equal(t, board.Committed, op.State())
	assert.Equal(t, before, f.store.Calls())

	got, _ := f.board.Task(task.ID)
	assert.Equal(t, task.UpdatedAt, got.UpdatedAt)
}

func TestSetStatus_UpdatesTimestamp(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	task, err := f.board.Create(ctx, "Write report")
	require.NoError(t, err)

	_, err = f.board.SetStatus(ctx, task.ID, core.StatusDoing)
	require.NoError(t, err)

	got, _ := f.board.Task(task.ID)
	assert.True(t, got.UpdatedAt.After(task.UpdatedAt.Time))
	assert.Equal(t, task.CreatedAt, got.CreatedAt)

	row, err := f.store.Get(ctx, core.TableActions, task.ID)
	require.NoError(t, err)
	assert.Equal(t, got.UpdatedAt.String(), row["updated_at"])
	assert.Equal(t, "DOING", row["status"])
}

func TestSetStatus_FailedWriteRollsBack(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	task, err := f.board.Create(ctx, "Write report")
	require.NoError(t, err)

	boom := errors.New("503 service unavailable")
	f.store.Fail(testutil.OpUpdate, core.TableActions, boom)

	op, err := f.board.SetStatus(ctx, task.ID, core.StatusDone)
	assert.ErrorIs(t, err, core.ErrPersistence)
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, op)
	assert.Equal(t, board.RolledBack, op.State())
	assert.False(t, op.Rollback(), "already rolled back")

	got, _ := f.board.Task(task.ID)
	assert.Equal(t, core.StatusTodo, got.Status)
	assert.Equal(t, 0, f.total(t))
	assert.Empty(t, f.store.Rows(core.TableLedger))
}

func TestSetStatus_LedgerFailureLeavesTaskDone(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	task, err := f.board.Create(ctx, "Write report")
	require.NoError(t, err)

	f.store.Fail(testutil.OpInsert, core.TableLedger, errors.New("timeout"))

	op, err := f.board.SetStatus(ctx, task.ID, core.StatusDone)
	assert.ErrorIs(t, err, core.ErrPersistence)
	require.NotNil(t, op)
	assert.Equal(t, board.Committed, op.State())
	assert.Nil(t, op.Grant)

	row, err := f.store.Get(ctx, core.TableActions, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "DONE", row["status"])
	assert.Equal(t, 0, f.total(t))
}

func TestSetStatus_Errors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.board.SetStatus(ctx, "missing", core.StatusDone)
	assert.ErrorIs(t, err, core.ErrNotFound)

	task, err := f.board.Create(ctx, "Write report")
	require.NoError(t, err)
	_, err = f.board.SetStatus(ctx, task.ID, core.Status("BLOCKED"))
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestSetStatus_OtherUsersTaskIsNotFound(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.store.Insert(ctx, core.TableActions, core.Fields{
		"id": "foreign", "user_id": "u2", "title": "theirs", "status": "TODO",
	}))

	_, err := f.board.SetStatus(ctx, "foreign", core.StatusDone)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestColumns(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	var created []core.Action
	for _, title := range []string{"a", "b", "c", "d"} {
		task, err := f.board.Create(ctx, title)
		require.NoError(t, err)
		created = append(created, task)
	}
	_, err := f.board.SetStatus(ctx, created[0].ID, core.StatusDone)
	require.NoError(t, err)
	_, err = f.board.SetStatus(ctx, created[2].ID, core.StatusDoing)
	require.NoError(t, err)

	cols := f.board.Columns()
	want := map[core.Status][]string{
		core.StatusTodo:  {created[3].ID, created[1].ID},
		core.StatusDoing: {created[2].ID},
		core.StatusDone:  {created[0].ID},
	}
	got := map[core.Status][]string{}
	for s, tasks := range cols {
		got[s] = ids(tasks)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}

	state := f.board.State().(board.BoardState)
	assert.Equal(t, 2, state.Todo)
	assert.Equal(t, 1, state.Doing)
	assert.Equal(t, 1, state.Done)
}

func TestRefresh_LoadsOnlyOwnTasks(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.store.Insert(ctx, core.TableActions, core.Fields{"id": "mine", "user_id": "u1", "title": "mine", "status": "DOING"}))
	require.NoError(t, f.store.Insert(ctx, core.TableActions, core.Fields{"id": "theirs", "user_id": "u2", "title": "theirs", "status": "TODO"}))

	require.NoError(t, f.board.Refresh(ctx))

	cols := f.board.Columns()
	assert.Empty(t, cols[core.StatusTodo])
	assert.Equal(t, []string{"mine"}, ids(cols[core.StatusDoing]))
}

func TestDelete_KeepsLedger(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	task, err := f.board.Create(ctx, "Write report")
	require.NoError(t, err)
	_, err = f.board.SetStatus(ctx, task.ID, core.StatusDone)
	require.NoError(t, err)

	require.NoError(t, f.board.Delete(ctx, task.ID))
	_, ok := f.board.Task(task.ID)
	assert.False(t, ok)
	assert.Equal(t, 10, f.total(t))
}

func TestDelete_FailureResyncs(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	task, err := f.board.Create(ctx, "Write report")
	require.NoError(t, err)
	f.store.Fail(testutil.OpDelete, core.TableActions, errors.New("offline"))

	err = f.board.Delete(ctx, task.ID)
	assert.ErrorIs(t, err, core.ErrPersistence)
	_, ok := f.board.Task(task.ID)
	assert.True(t, ok, "view restored from store")
}

func TestWatch_RefreshesOnExternalChange(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	task, err := f.board.Create(ctx, "Write report")
	require.NoError(t, err)

	require.NoError(t, f.board.Watch(ctx))
	require.NoError(t, f.board.Watch(ctx), "second watch is a no-op")
	assert.True(t, f.board.State().(board.BoardState).Watching)

	// Another device moves the task.
	_, err = f.store.Update(ctx, core.TableActions, task.ID, core.Fields{"status": "DOING"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, _ := f.board.Task(task.ID)
		return got.Status == core.StatusDoing
	}, 2*time.Second, 10*time.Millisecond)

	// Rows of other users do not invalidate the board.
	before := f.board.State().(board.BoardState).Refreshes
	require.NoError(t, f.store.Insert(ctx, core.TableActions, core.Fields{"id": "x", "user_id": "u2", "title": "x", "status": "TODO"}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, f.board.State().(board.BoardState).Refreshes)

	f.board.Close()
	assert.False(t, f.board.State().(board.BoardState).Watching)
}

type plainStore struct{ core.Store }

func TestWatch_WithoutNotifier(t *testing.T) {
	store := testutil.NewStore()
	defer store.Close()
	b := board.New(plainStore{store}, ledger.New(store), "u1")
	assert.ErrorIs(t, b.Watch(context.Background()), board.ErrNoNotifier)
}

func TestOperationState_String(t *testing.T) {
	assert.Equal(t, "pending", board.Pending.String())
	assert.Equal(t, "committed", board.Committed.String())
	assert.Equal(t, "rolled-back", board.RolledBack.String())
}
