// internal/persistence/redis.go
package persistence

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"cloud.google.com/go/civil"

	"office-affinity/internal/common/database"
	apperrors "office-affinity/internal/common/errors"
	"office-affinity/internal/common/logger"
	"office-affinity/internal/models"
)

// RedisStore keeps one hash per day, field = user id, value = JSON record.
// The whole day expires after ttl; zero keeps it forever.
type RedisStore struct {
	client *database.RedisClient
	ttl    time.Duration
	logger logger.Logger
}

func NewRedisStore(client *database.RedisClient, ttl time.Duration, log logger.Logger) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, logger: logger.ForComponent(log, "presence-redis")}
}

func dayKey(day civil.Date) string {
	return "presence:" + day.String()
}

func (s *RedisStore) AppendPresence(ctx context.Context, rec models.PresenceRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return apperrors.NewStoreError("append", err)
	}
	key := dayKey(rec.Day)

	pipe := s.client.Client.TxPipeline()
	pipe.HSet(ctx, key, rec.UserID, raw)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.NewStoreError("append", err)
	}
	return nil
}

func (s *RedisStore) ListPresence(ctx context.Context, day civil.Date) ([]models.PresenceRecord, error) {
	fields, err := s.client.Client.HGetAll(ctx, dayKey(day)).Result()
	if err != nil {
		return nil, apperrors.NewStoreError("list", err)
	}

	out := make([]models.PresenceRecord, 0, len(fields))
	for user, raw := range fields {
		var rec models.PresenceRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			s.logger.Warn("skipping undecodable presence entry", map[string]interface{}{
				"key":   dayKey(day),
				"user":  user,
				"error": err,
			})
			continue
		}
		rec.UserID = user
		rec.Day = day
		rec.SyncState = models.SyncSynced
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
