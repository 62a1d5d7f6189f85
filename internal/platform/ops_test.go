package platform_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/aether/internal/platform"
	"github.com/aretw0/aether/internal/testutil"
	"github.com/aretw0/aether/pkg/adapters/fs"
	"github.com/aretw0/aether/pkg/adapters/sqlite"
	"github.com/aretw0/aether/pkg/core"
	"github.com/aretw0/aether/pkg/git"
)

func TestInit(t *testing.T) {
	t.Run("AutoInit=true Creates Directory and Git Repo", func(t *testing.T) {
		if !git.IsInstalled() {
			t.Skip("git not installed")
		}
		storePath := filepath.Join(t.TempDir(), "store")

		store, err := platform.Init(storePath, platform.WithAutoInit(true), platform.WithForceTemp(true))
		if err != nil {
			t.Fatalf("Init failed: %v", err)
		}

		repo, ok := store.(*fs.Repository)
		if !ok {
			t.Fatalf("Expected fs repository, got %T", store)
		}
		defer repo.Close()

		if repo.Path != storePath {
			t.Errorf("Expected path %s, got %s", storePath, repo.Path)
		}
		if info, err := os.Stat(filepath.Join(storePath, core.TableActions)); err != nil || !info.IsDir() {
			t.Errorf("table directory not created")
		}
		if _, err := os.Stat(filepath.Join(storePath, ".git")); os.IsNotExist(err) {
			t.Errorf(".git directory not found")
		}
	})

	t.Run("MustExist Fails if Directory Missing", func(t *testing.T) {
		storePath := filepath.Join(t.TempDir(), "missing")

		_, err := platform.Init(storePath, platform.WithAutoInit(false), platform.WithMustExist(true), platform.WithForceTemp(true))
		if err == nil {
			t.Error("Expected failure for missing directory when AutoInit=false")
		}
	})

	t.Run("Versioning=false Does Not Initialize Git", func(t *testing.T) {
		storePath := filepath.Join(t.TempDir(), "gitless")

		store, err := platform.Init(storePath, platform.WithAutoInit(true), platform.WithVersioning(false), platform.WithForceTemp(true))
		if err != nil {
			t.Fatalf("Init failed: %v", err)
		}
		defer store.(*fs.Repository).Close()

		if _, err := os.Stat(filepath.Join(storePath, ".git")); !os.IsNotExist(err) {
			t.Errorf(".git directory should not exist in gitless mode")
		}
	})

	t.Run("Existing Gitless Store Stays Gitless", func(t *testing.T) {
		storePath := filepath.Join(t.TempDir(), "gitless")
		first, err := platform.Init(storePath, platform.WithAutoInit(true), platform.WithVersioning(false))
		if err != nil {
			t.Fatalf("Init failed: %v", err)
		}
		first.(*fs.Repository).Close()

		// No versioning option: detected from the directory.
		second, err := platform.Init(storePath, platform.WithAutoInit(true))
		if err != nil {
			t.Fatalf("reopen failed: %v", err)
		}
		defer second.(*fs.Repository).Close()

		state := second.(*fs.Repository).State().(fs.RepositoryState)
		if !state.Gitless {
			t.Errorf("reopened store should be gitless")
		}
		if _, err := os.Stat(filepath.Join(storePath, ".git")); !os.IsNotExist(err) {
			t.Errorf(".git directory should not exist")
		}
	})

	t.Run("Custom System Dir", func(t *testing.T) {
		storePath := filepath.Join(t.TempDir(), "custom")
		store, err := platform.Init(storePath, platform.WithAutoInit(true), platform.WithVersioning(false), platform.WithSystemDir(".meta"))
		if err != nil {
			t.Fatalf("Init failed: %v", err)
		}
		repo := store.(*fs.Repository)
		if err := repo.Insert(context.Background(), core.TableUsers, core.Fields{"id": "u1", "email": "a@example.com"}); err != nil {
			t.Fatal(err)
		}
		if err := repo.Close(); err != nil {
			t.Fatal(err)
		}
		if _, err := os.Stat(filepath.Join(storePath, ".meta", "index.json")); err != nil {
			t.Errorf("index not written under custom system dir: %v", err)
		}
	})

	t.Run("SQLite Adapter Uses aether.db", func(t *testing.T) {
		dir := t.TempDir()
		store, err := platform.Init(dir, platform.WithAdapter(platform.AdapterSQLite))
		if err != nil {
			t.Fatalf("Init failed: %v", err)
		}
		s, ok := store.(*sqlite.Store)
		if !ok {
			t.Fatalf("Expected sqlite store, got %T", store)
		}
		defer s.Close()

		if got, want := s.Path(), filepath.Join(dir, platform.DatabaseFile); got != want {
			t.Errorf("path = %s, want %s", got, want)
		}
		if !platform.Exists(platform.AdapterSQLite, dir) {
			t.Errorf("Exists should report the database")
		}
		if platform.StorePath(store) != filepath.Join(dir, platform.DatabaseFile) {
			t.Errorf("StorePath = %q", platform.StorePath(store))
		}
	})

	t.Run("SQLite Adapter Accepts File Path", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "nested", "data.sqlite")
		store, err := platform.Init(file, platform.WithAdapter(platform.AdapterSQLite))
		if err != nil {
			t.Fatalf("Init failed: %v", err)
		}
		defer store.(*sqlite.Store).Close()
		if _, err := os.Stat(file); err != nil {
			t.Errorf("database not created: %v", err)
		}
	})

	t.Run("Memory Adapter", func(t *testing.T) {
		store, err := platform.Init("", platform.WithAdapter(platform.AdapterMemory))
		if err != nil {
			t.Fatalf("Init failed: %v", err)
		}
		defer store.(*sqlite.Store).Close()

		if err := store.Insert(context.Background(), core.TableUsers, core.Fields{"id": "u1", "email": "a@example.com"}); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if platform.StorePath(store) != "" {
			t.Errorf("memory store should have no path")
		}
	})

	t.Run("Unknown Adapter", func(t *testing.T) {
		if _, err := platform.Init("x", platform.WithAdapter("etcd")); err == nil {
			t.Error("expected error for unknown adapter")
		}
	})

	t.Run("Injected Store Is Returned As Is", func(t *testing.T) {
		injected := testutil.NewStore()
		store, err := platform.Init("ignored", platform.WithStore(injected), platform.WithAdapter("etcd"))
		if err != nil {
			t.Fatalf("Init failed: %v", err)
		}
		if store != injected {
			t.Errorf("expected the injected store")
		}
	})
}

func TestCommitFooter(t *testing.T) {
	if !git.IsInstalled() {
		t.Skip("git not installed")
	}
	storePath := filepath.Join(t.TempDir(), "store")
	store, err := platform.Init(storePath,
		platform.WithAutoInit(true),
		platform.WithVersioning(true),
		platform.WithCommitFooter(true),
	)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer store.(*fs.Repository).Close()

	ctx := core.WithChangeReason(context.Background(), "register user a@example.com")
	if err := store.Insert(ctx, core.TableUsers, core.Fields{"id": "u1", "email": "a@example.com"}); err != nil {
		t.Fatal(err)
	}

	body, err := git.NewClient(storePath, ".aether.lock", nil).Run(context.Background(), "log", "-1", "--format=%B")
	if err != nil {
		t.Fatal(err)
	}
	if want := "register user a@example.com\n\n" + platform.CommitFooter; body != want {
		t.Errorf("commit message = %q, want %q", body, want)
	}
}
