package platform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/aether/pkg/adapters/fs"
	"github.com/aretw0/aether/pkg/adapters/sqlite"
	"github.com/aretw0/aether/pkg/core"
)

// Init opens and initializes the store selected by the options.
// The 'uri' argument is adapter-specific: a directory for 'fs', a database
// file (or the directory holding aether.db) for 'sqlite', ignored for 'memory'.
func Init(uri string, opts ...Option) (core.Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return initStore(context.Background(), uri, o)
}

func initStore(ctx context.Context, uri string, o *options) (core.Store, error) {
	if o.store != nil {
		return o.store, nil
	}

	var store core.Store
	var err error

	switch o.adapter {
	case AdapterFS, "":
		store, err = initFS(uri, o)
	case AdapterSQLite:
		store = initSQLite(uri, o)
	case AdapterMemory:
		store = sqlite.New(sqlite.Config{
			Path:        sqlite.MemoryPath,
			Logger:      o.logger,
			EventBuffer: eventBuffer(o),
		})
	default:
		return nil, fmt.Errorf("unknown adapter: %s", o.adapter)
	}
	if err != nil {
		return nil, err
	}

	if err := store.Initialize(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func eventBuffer(o *options) int {
	n, _ := o.config["event_buffer"].(int)
	return n
}

// resolvePath applies the dev sandbox to a user supplied path.
func resolvePath(path string, o *options) (string, bool) {
	readOnly := o.bool("read_only", false)
	devSafety := o.bool("dev_safety", true)

	// Read-only stores cannot be damaged, so they skip the sandbox.
	bypassSafety := readOnly || !devSafety
	useTemp := o.bool("temp_dir", false) || (IsDevRun() && !bypassSafety)
	resolved := ResolveStorePath(path, useTemp)

	if IsDevRun() && o.logger != nil {
		switch {
		case bypassSafety && readOnly:
			o.logger.Debug("running in READ-ONLY mode (bypassing dev sandbox)", "path", resolved)
		case bypassSafety:
			o.logger.Warn("running in UNSAFE mode (bypassing dev sandbox)", "path", resolved)
		default:
			o.logger.Debug("running in SAFE mode (dev sandbox enabled)", "path", resolved)
		}
	}
	if o.logger != nil && useTemp {
		o.logger.Warn("running in SAFE MODE (Dev/Test)", "original_path", path, "resolved_path", resolved)
	}
	return resolved, useTemp
}

// initFS handles the initialization logic for the Filesystem adapter
func initFS(path string, o *options) (core.Store, error) {
	autoInit := o.bool("auto_init", false)
	gitless := o.bool("gitless", false)
	systemDir, _ := o.config["system_dir"].(string)
	if systemDir == "" {
		systemDir = DefaultSystemDir
	}
	format, _ := o.config["format"].(string)
	errorHandler, _ := o.config["watcher_error_handler"].(func(error))

	resolvedPath, useTemp := resolvePath(path, o)

	// Versioning not configured: detect it from the directory.
	if _, ok := o.config["gitless"]; !ok {
		gitless = detectGitless(resolvedPath, systemDir, autoInit)
		if gitless && o.logger != nil {
			o.logger.Debug("auto-detected gitless mode", "reason", ".git missing")
		}
	}
	if !gitless && !fs.IsGitInstalled() {
		if _, ok := o.config["gitless"]; ok {
			return nil, fmt.Errorf("versioning requested but git is not installed")
		}
		gitless = true
	}

	config := fs.Config{
		Path:         resolvedPath,
		AutoInit:     autoInit,
		Gitless:      gitless,
		MustExist:    o.bool("must_exist", false) || (!autoInit && !useTemp),
		ReadOnly:     o.bool("read_only", false),
		Logger:       o.logger,
		SystemDir:    systemDir,
		Format:       format,
		Strict:       o.bool("strict", false),
		EventBuffer:  eventBuffer(o),
		ErrorHandler: errorHandler,
	}
	if o.bool("commit_footer", false) {
		config.CommitMessage = AppendFooter
	}
	return fs.NewRepository(config), nil
}

// detectGitless decides versioning for a store directory:
// an existing .git means versioned; a fresh directory created by AutoInit
// is versioned; an existing store without .git stays gitless.
func detectGitless(path, systemDir string, autoInit bool) bool {
	if hasFile(path, ".git") {
		return false
	}
	if !autoInit {
		return true
	}
	return hasFile(path, systemDir)
}

func initSQLite(uri string, o *options) core.Store {
	path, _ := resolvePath(uri, o)
	return sqlite.New(sqlite.Config{
		Path:        databasePath(path),
		ReadOnly:    o.bool("read_only", false),
		Logger:      o.logger,
		EventBuffer: eventBuffer(o),
	})
}

// StorePath reports where a store lives on disk ("" when it has no path).
func StorePath(store core.Store) string {
	switch s := store.(type) {
	case *fs.Repository:
		return s.Path
	case *sqlite.Store:
		if p := s.Path(); p != sqlite.MemoryPath {
			return p
		}
	}
	return ""
}

// Exists reports whether a store was already created at uri for the adapter.
func Exists(adapter, uri string) bool {
	switch adapter {
	case AdapterSQLite:
		_, err := os.Stat(databasePath(uri))
		return err == nil
	case AdapterMemory:
		return false
	default:
		return hasFile(uri, DefaultSystemDir)
	}
}

// databasePath maps a directory to the aether.db inside it.
func databasePath(uri string) string {
	switch strings.ToLower(filepath.Ext(uri)) {
	case ".db", ".sqlite", ".sqlite3":
		return uri
	}
	return filepath.Join(uri, DatabaseFile)
}
