// internal/catalog/catalog.go
package catalog

import (
	"context"
	"fmt"
	"sync"

	"office-affinity/internal/common/config"
	"office-affinity/internal/common/database"
	"office-affinity/internal/common/logger"
	"office-affinity/internal/models"
)

// ProfileCatalog is the read-only source of colleague profiles.
type ProfileCatalog interface {
	ListProfiles(ctx context.Context) ([]models.Profile, error)
	// OnProfileChanged registers fn and returns a func that unregisters it.
	OnProfileChanged(fn func()) (unsubscribe func())
}

// Catalog is a ProfileCatalog with a change feed that must be started and
// stopped.
type Catalog interface {
	ProfileCatalog
	Watch(ctx context.Context) error
	Close() error
}

// New builds the catalog named by catalog.source.
func New(cfg *config.Config, pg *database.PostgresClient, rdb *database.RedisClient, log logger.Logger) (Catalog, error) {
	switch cfg.Catalog.Source {
	case "file":
		return NewFileCatalog(cfg.Catalog.RosterPath, log), nil
	case "postgres":
		if pg == nil {
			return nil, fmt.Errorf("postgres catalog requires a database connection")
		}
		return NewPostgresCatalog(pg, rdb, config.GetDuration(cfg.Catalog.CacheTTL), log), nil
	default:
		return nil, fmt.Errorf("unknown catalog source %q", cfg.Catalog.Source)
	}
}

// Notifier fans change notifications out to subscribers.
type Notifier struct {
	mu   sync.Mutex
	subs map[int]func()
	next int
}

func (n *Notifier) Subscribe(fn func()) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]func())
	}
	id := n.next
	n.next++
	n.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}

// Notify calls every subscriber synchronously, outside the lock.
func (n *Notifier) Notify() {
	n.mu.Lock()
	subs := make([]func(), 0, len(n.subs))
	for _, fn := range n.subs {
		subs = append(subs, fn)
	}
	n.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}
