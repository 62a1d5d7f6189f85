package fs

import (
	"time"

	"github.com/aretw0/introspection"

	"github.com/aretw0/aether/pkg/events"
)

// RepositoryState exposes internal state for observability.
type RepositoryState struct {
	Path          string             `json:"path"`
	SystemDir     string             `json:"system_dir"`
	Format        string             `json:"format"`
	Tables        []string           `json:"tables"`
	CacheSize     int                `json:"cache_size"`
	Gitless       bool               `json:"gitless"`
	ReadOnly      bool               `json:"read_only"`
	Strict        bool               `json:"strict"`
	Watching      bool               `json:"watching"`
	WatcherActive bool               `json:"watcher_active"`
	LastReconcile *time.Time         `json:"last_reconcile,omitempty"`
	Events        events.BrokerState `json:"events"`
}

// State implements introspection.Introspectable.
func (r *Repository) State() any {
	brokerState, _ := r.Broker.State().(events.BrokerState)

	r.mu.RLock()
	defer r.mu.RUnlock()

	return RepositoryState{
		Path:          r.Path,
		SystemDir:     r.config.SystemDir,
		Format:        r.config.Format,
		Tables:        r.config.Schema.Names(),
		CacheSize:     r.cache.Len(),
		Gitless:       r.config.Gitless,
		ReadOnly:      r.readOnly,
		Strict:        r.config.Strict,
		Watching:      r.watching,
		WatcherActive: r.watcherActive,
		LastReconcile: r.lastReconcile,
		Events:        brokerState,
	}
}

// ComponentType implements introspection.Component.
func (r *Repository) ComponentType() string {
	return "fs-store"
}

var _ introspection.Introspectable = (*Repository)(nil)
var _ introspection.Component = (*Repository)(nil)

func (r *Repository) setWatcherActive(active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watcherActive = active
}

func (r *Repository) recordReconcile() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.lastReconcile = &now
}
