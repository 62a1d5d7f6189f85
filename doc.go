// Package aether is the Composition Root for Aether Lite.
//
// Aether Lite is a personal journal: captures (thoughts and links) are tagged
// against the user's own values, tasks move across a three-column board, and
// an append-only XP ledger rewards both. Levels are derived from the ledger
// total and never stored.
//
// The domain lives in pkg/ (ledger, board, resonance, capture, identity,
// dashboard) and talks to storage through core.Store. Two adapters ship:
//
//   - fs: one JSON or YAML file per row, optionally versioned with Git, with an
//     fsnotify watcher that turns external edits into change notifications.
//   - sqlite: a single database file (or an in-memory database) with
//     uniqueness enforced by the engine.
//
// Usage:
//
//	app, err := aether.Open("./journal",
//		aether.WithAutoInit(true),
//		aether.WithLogger(logger),
//	)
//	user, err := app.SignIn(ctx, "ada@example.com", "Ada")
//	board, err := app.Board(ctx, user.ID)
//	task, err := board.Create(ctx, "Write the weekly review")
//	_, err = board.SetStatus(ctx, task.ID, core.StatusDone) // +10 XP
package aether
