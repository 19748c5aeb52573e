// internal/persistence/store.go
package persistence

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"

	"office-affinity/internal/common/config"
	"office-affinity/internal/common/database"
	"office-affinity/internal/common/logger"
	"office-affinity/internal/models"
)

// PresenceStore is the external, durable copy of synced presence records.
// AppendPresence upserts by (user, day); ListPresence returns one day sorted
// by user.
type PresenceStore interface {
	AppendPresence(ctx context.Context, record models.PresenceRecord) error
	ListPresence(ctx context.Context, day civil.Date) ([]models.PresenceRecord, error)
}

// New selects the backend named by persistence.backend. "none" returns a
// nil store and no error.
func New(cfg *config.Config, pg *database.PostgresClient, rdb *database.RedisClient, log logger.Logger) (PresenceStore, error) {
	switch cfg.Persistence.Backend {
	case "", "none":
		return nil, nil
	case "postgres":
		if pg == nil {
			return nil, fmt.Errorf("postgres persistence requires a database connection")
		}
		return NewPostgresStore(pg.GetDB(), log), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("redis persistence requires a redis connection")
		}
		return NewRedisStore(rdb, config.GetDuration(cfg.Persistence.TTL), log), nil
	default:
		return nil, fmt.Errorf("unknown persistence backend %q", cfg.Persistence.Backend)
	}
}
