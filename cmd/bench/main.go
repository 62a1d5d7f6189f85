package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/aether"
	"github.com/aretw0/aether/pkg/core"
)

func main() {
	count := flag.Int("count", 1000, "Number of tasks to generate")
	keep := flag.Bool("keep", false, "Keep the benchmark store after running")
	flag.Parse()

	benchDir, err := os.MkdirTemp("", "aether_bench_")
	if err != nil {
		panic(err)
	}
	defer func() {
		if !*keep {
			os.RemoveAll(benchDir)
		} else {
			fmt.Printf("Keeping bench dir: %s\n", benchDir)
		}
	}()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := context.Background()

	// Rows are written straight to disk to simulate an existing store.
	fsDir := filepath.Join(benchDir, "fs")
	if err := os.MkdirAll(filepath.Join(fsDir, core.TableActions), 0755); err != nil {
		panic(err)
	}
	fmt.Printf("Generating %d tasks in %s...\n", *count, fsDir)
	startGen := time.Now()
	for i := 0; i < *count; i++ {
		row := fmt.Sprintf(`{"id":"task_%d","user_id":"bench","title":"Task %d","status":"TODO","created_at":"%s"}`,
			i, i, core.NewTimestamp(time.Now()).String())
		filename := filepath.Join(fsDir, core.TableActions, fmt.Sprintf("task_%d.json", i))
		if err := os.WriteFile(filename, []byte(row), 0644); err != nil {
			panic(err)
		}
	}
	fmt.Printf("Generation took: %v\n", time.Since(startGen))

	// Gitless to measure parsing and IO without git overhead.
	opts := []aether.Option{
		aether.WithLogger(logger),
		aether.WithAutoInit(true),
		aether.WithVersioning(false),
		aether.WithDevSafety(false),
	}

	cold := loadBoard(ctx, fsDir, opts...)
	// A second app re-reads the persisted index, like a new CLI run.
	warm := loadBoard(ctx, fsDir, opts...)

	// SQLite: insert through the store, then read the board.
	sqlitePath := filepath.Join(benchDir, "bench.db")
	app, err := aether.Open(sqlitePath, append(opts, aether.WithAdapter(aether.AdapterSQLite))...)
	if err != nil {
		panic(err)
	}
	startInsert := time.Now()
	for i := 0; i < *count; i++ {
		err := app.Store.Insert(ctx, core.TableActions, core.Fields{
			"id": fmt.Sprintf("task_%d", i), "user_id": "bench", "title": fmt.Sprintf("Task %d", i), "status": "TODO",
		})
		if err != nil {
			panic(err)
		}
	}
	insert := time.Since(startInsert)
	if err := app.Close(); err != nil {
		panic(err)
	}
	sqliteLoad := loadBoard(ctx, sqlitePath, append(opts, aether.WithAdapter(aether.AdapterSQLite))...)

	fmt.Printf("--------------------------------------------------\n")
	fmt.Printf("Benchmark Result (%d tasks):\n", *count)
	fmt.Printf("  fs cold board:     %v\n", cold)
	fmt.Printf("  fs warm board:     %v\n", warm)
	fmt.Printf("  sqlite inserts:    %v\n", insert)
	fmt.Printf("  sqlite board:      %v\n", sqliteLoad)
	fmt.Printf("--------------------------------------------------\n")
}

func loadBoard(ctx context.Context, path string, opts ...aether.Option) time.Duration {
	app, err := aether.Open(path, opts...)
	if err != nil {
		panic(err)
	}
	defer app.Close()

	start := time.Now()
	b, err := app.Board(ctx, "bench")
	if err != nil {
		panic(err)
	}
	d := time.Since(start)
	fmt.Printf("Loaded %d tasks from %s in %v\n", len(b.Columns()[core.StatusTodo]), filepath.Base(path), d)
	return d
}
