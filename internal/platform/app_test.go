package platform_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/aether/internal/platform"
	"github.com/aretw0/aether/pkg/board"
	"github.com/aretw0/aether/internal/testutil"
	"github.com/aretw0/aether/pkg/core"
	"github.com/aretw0/aether/pkg/demo"
	"github.com/aretw0/aether/pkg/git"
	"github.com/aretw0/aether/pkg/ledger"
)

func openMemory(t *testing.T, opts ...platform.Option) *platform.App {
	t.Helper()
	opts = append([]platform.Option{platform.WithAdapter(platform.AdapterMemory)}, opts...)
	app, err := platform.Open("", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestApp_CompletingTaskGrantsXP(t *testing.T) {
	app := openMemory(t, platform.WithClock(testutil.Clock()))
	ctx := context.Background()

	user, err := app.SignIn(ctx, "Ada@Example.com", "Ada")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)

	current, ok := app.Session.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, user.ID, current.ID)

	b, err := app.Board(ctx, user.ID)
	require.NoError(t, err)
	task, err := b.Create(ctx, "Ship release")
	require.NoError(t, err)

	_, err = b.SetStatus(ctx, task.ID, core.StatusDone)
	require.NoError(t, err)

	snap, err := app.Dashboard.Snapshot(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.TaskCompletionReward, snap.Progress.TotalXP)
	require.Len(t, snap.RecentActivity, 1)
	assert.Equal(t, "Completed Action: Ship release", snap.RecentActivity[0].SourceDescription)

	again, err := app.Board(ctx, user.ID)
	require.NoError(t, err)
	assert.Same(t, b, again, "boards are cached per user")
}

func TestApp_Seed(t *testing.T) {
	app := openMemory(t, platform.WithClock(testutil.Clock()))
	ctx := context.Background()

	user, err := app.SignIn(ctx, "demo@example.com", "")
	require.NoError(t, err)

	res, err := app.Seed(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, demo.Result{Values: 6, Captures: 8, Resonances: 33, Tasks: 5}, res)

	_, err = app.Seed(ctx, user.ID)
	assert.ErrorIs(t, err, demo.ErrAlreadySeeded)

	state := app.State().(platform.AppState)
	assert.Equal(t, platform.AdapterMemory, state.Adapter)
	assert.Equal(t, "demo@example.com", state.User)
	assert.Len(t, state.Boards, 1)
}

func TestApp_BoardRequiresUser(t *testing.T) {
	app := openMemory(t)
	_, err := app.Board(context.Background(), "")
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestApp_Close(t *testing.T) {
	app, err := platform.Open("", platform.WithAdapter(platform.AdapterMemory))
	require.NoError(t, err)

	require.NoError(t, app.Close())
	require.NoError(t, app.Close(), "close is idempotent")

	_, err = app.Board(context.Background(), "u1")
	assert.Error(t, err)
}

func TestApp_OpenFailsForUnknownAdapter(t *testing.T) {
	_, err := platform.Open("", platform.WithAdapter("etcd"))
	assert.Error(t, err)
}

func TestApp_BoardFollowsExternalEdits(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "store")
	app, err := platform.Open(storePath,
		platform.WithAutoInit(true),
		platform.WithVersioning(false),
		platform.WithWatch(true),
	)
	require.NoError(t, err)
	defer app.Close()
	ctx := context.Background()

	b, err := app.Board(ctx, "u1")
	require.NoError(t, err)

	// Give the watcher time to register its directories.
	time.Sleep(200 * time.Millisecond)

	row := `{"id":"ext1","user_id":"u1","title":"Edited by hand","status":"DOING","created_at":"2024-05-01T09:00:00Z","updated_at":"2024-05-01T09:00:00Z"}`
	require.NoError(t, os.WriteFile(filepath.Join(storePath, core.TableActions, "ext1.json"), []byte(row), 0644))

	require.Eventually(t, func() bool {
		task, ok := b.Task("ext1")
		return ok && task.Status == core.StatusDoing
	}, 5*time.Second, 50*time.Millisecond)

	state := app.State().(platform.AppState)
	assert.Equal(t, platform.AdapterFS, state.Adapter)
}

func TestApp_EndToEndProgression(t *testing.T) {
	app := openMemory(t, platform.WithClock(testutil.Clock()))
	ctx := context.Background()

	user, err := app.SignIn(ctx, "ada@example.com", "Ada")
	require.NoError(t, err)

	progress, err := app.Ledger.Summary(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, progress.TotalXP)
	assert.Equal(t, 1, progress.Level)

	value, err := app.Resonance.CreateValue(ctx, user.ID, "Growth", "")
	require.NoError(t, err)
	thought, err := app.Captures.Create(ctx, user.ID, core.KindThought, "Learned how floors work")
	require.NoError(t, err)
	_, err = app.Resonance.Resonate(ctx, user.ID, thought.ID, value.ID, "")
	require.NoError(t, err)

	progress, err = app.Ledger.Summary(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, progress.TotalXP)
	assert.Equal(t, 1, progress.Level)
	assert.Equal(t, 10, progress.CurrentLevelXP)
	assert.InDelta(t, 0.1, progress.Fraction, 1e-9)

	count, err := app.Resonance.ResonanceCount(ctx, value.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	b, err := app.Board(ctx, user.ID)
	require.NoError(t, err)
	report, err := b.Create(ctx, "Write report")
	require.NoError(t, err)
	op, err := b.SetStatus(ctx, report.ID, core.StatusDone)
	require.NoError(t, err)
	require.NotNil(t, op.Grant)

	total, err := app.Ledger.TotalXP(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, total)

	for i := 0; i < 17; i++ {
		task, err := b.Create(ctx, fmt.Sprintf("Chore %d", i))
		require.NoError(t, err)
		_, err = b.SetStatus(ctx, task.ID, core.StatusDone)
		require.NoError(t, err)
	}
	// The last grant comes from completing the report a second time.
	_, err = b.SetStatus(ctx, report.ID, core.StatusTodo)
	require.NoError(t, err)
	_, err = b.SetStatus(ctx, report.ID, core.StatusDone)
	require.NoError(t, err)

	progress, err = app.Ledger.Summary(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 200, progress.TotalXP)
	assert.Equal(t, 3, progress.Level)
	assert.Equal(t, 0, progress.CurrentLevelXP)
	assert.Zero(t, progress.Fraction)

	entries, err := app.Ledger.Entries(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}

func TestApp_RejectedCommitKeepsTaskRetryable(t *testing.T) {
	if !git.IsInstalled() {
		t.Skip("git not installed")
	}
	storePath := filepath.Join(t.TempDir(), "store")
	app, err := platform.Open(storePath, platform.WithAutoInit(true), platform.WithVersioning(true))
	require.NoError(t, err)
	defer app.Close()
	ctx := context.Background()

	b, err := app.Board(ctx, "u1")
	require.NoError(t, err)
	task, err := b.Create(ctx, "Ship release")
	require.NoError(t, err)

	hook := filepath.Join(storePath, ".git", "hooks", "pre-commit")
	require.NoError(t, os.MkdirAll(filepath.Dir(hook), 0755))
	require.NoError(t, os.WriteFile(hook, []byte("#!/bin/sh\nexit 1\n"), 0755))

	op, err := b.SetStatus(ctx, task.ID, core.StatusDone)
	require.ErrorIs(t, err, core.ErrPersistence)
	assert.Equal(t, board.RolledBack, op.State())

	stored, err := app.Store.Get(ctx, core.TableActions, task.ID)
	require.NoError(t, err)
	assert.Equal(t, string(core.StatusTodo), stored.String("status"))
	view, ok := b.Task(task.ID)
	require.True(t, ok)
	assert.Equal(t, core.StatusTodo, view.Status)

	_, err = app.Ledger.Append(ctx, "u1", 5, "bonus", ledger.Source{})
	require.ErrorIs(t, err, core.ErrPersistence)
	total, err := app.Ledger.TotalXP(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, total, "a rejected append is not counted")

	require.NoError(t, os.Remove(hook))
	op, err = b.SetStatus(ctx, task.ID, core.StatusDone)
	require.NoError(t, err)
	assert.Equal(t, board.Committed, op.State())
	require.NotNil(t, op.Grant)

	total, err = app.Ledger.TotalXP(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, ledger.TaskCompletionReward, total)
}
