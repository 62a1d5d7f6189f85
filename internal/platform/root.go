package platform

import (
	"errors"
	"os"
	"path/filepath"
)

// DatabaseFile is the default file name of a SQLite store.
const DatabaseFile = "aether.db"

// ErrNoRoot is returned when no parent directory holds a store.
var ErrNoRoot = errors.New("no store root found")

// Root is a directory that holds a store.
type Root struct {
	Dir     string
	Adapter string
}

// markers in lookup order. The database file wins over .aether, which also
// holds the project configuration of SQLite stores. A bare .git directory
// counts as a file store.
var markers = []struct {
	name    string
	adapter string
}{
	{DatabaseFile, AdapterSQLite},
	{DefaultSystemDir, AdapterFS},
	{".git", AdapterFS},
}

// Locate walks upwards from startDir and returns the first directory
// carrying a store marker.
func Locate(startDir string) (Root, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return Root{}, err
	}
	for {
		for _, m := range markers {
			if hasFile(dir, m.name) {
				return Root{Dir: dir, Adapter: m.adapter}, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Root{}, ErrNoRoot
		}
		dir = parent
	}
}

// FindRoot returns the directory of the store enclosing startDir.
func FindRoot(startDir string) (string, error) {
	r, err := Locate(startDir)
	return r.Dir, err
}

func hasFile(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}
