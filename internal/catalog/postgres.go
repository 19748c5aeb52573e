// internal/catalog/postgres.go
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"

	"office-affinity/internal/common/database"
	apperrors "office-affinity/internal/common/errors"
	"office-affinity/internal/common/logger"
	"office-affinity/internal/models"
)

const (
	// ChangeChannel is the NOTIFY channel that signals profile edits.
	ChangeChannel = "profile_changed"
	cacheKey      = "catalog:profiles"
)

const selectProfiles = `
SELECT id, display_name, interests, activities, preferred_days
FROM profiles
ORDER BY id`

// PostgresCatalog reads the profiles table, caching the list in Redis when
// a client is given. Watch listens on ChangeChannel and invalidates the
// cache before notifying subscribers.
type PostgresCatalog struct {
	pg       *database.PostgresClient
	cache    *database.RedisClient
	ttl      time.Duration
	notifier Notifier
	logger   logger.Logger

	mu       sync.Mutex
	listener *pq.Listener
	done     chan struct{}
}

func NewPostgresCatalog(pg *database.PostgresClient, cache *database.RedisClient, ttl time.Duration, log logger.Logger) *PostgresCatalog {
	return &PostgresCatalog{
		pg:     pg,
		cache:  cache,
		ttl:    ttl,
		logger: logger.ForComponent(log, "postgres-catalog"),
	}
}

func (c *PostgresCatalog) ListProfiles(ctx context.Context) ([]models.Profile, error) {
	if c.cache != nil {
		var cached []models.Profile
		found, err := c.cache.GetJSON(ctx, cacheKey, &cached)
		if err != nil {
			c.logger.Warn("profile cache read failed", map[string]interface{}{"error": err})
		} else if found {
			return cached, nil
		}
	}

	profiles, err := c.query(ctx)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.SetJSON(ctx, cacheKey, profiles, c.ttl); err != nil {
			c.logger.Warn("profile cache write failed", map[string]interface{}{"error": err})
		}
	}
	return profiles, nil
}

func (c *PostgresCatalog) query(ctx context.Context) ([]models.Profile, error) {
	rows, err := c.pg.GetDB().QueryContext(ctx, selectProfiles)
	if err != nil {
		return nil, apperrors.NewStoreError("list profiles", err)
	}
	defer rows.Close()

	out := []models.Profile{}
	for rows.Next() {
		var (
			p       models.Profile
			display sql.NullString
			days    []int64
		)
		if err := rows.Scan(&p.ID, &display, pq.Array(&p.Interests), pq.Array(&p.Activities), pq.Array(&days)); err != nil {
			return nil, apperrors.NewStoreError("list profiles", err)
		}
		p.DisplayName = display.String
		for _, d := range days {
			if d < 0 || d > 6 {
				return nil, apperrors.NewInvalidProfileError(fmt.Sprintf("profile %s: weekday %d out of range", p.ID, d))
			}
			p.PreferredDays = append(p.PreferredDays, time.Weekday(d))
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreError("list profiles", err)
	}
	return out, nil
}

func (c *PostgresCatalog) OnProfileChanged(fn func()) func() {
	return c.notifier.Subscribe(fn)
}

// Invalidate drops the cached list and notifies subscribers.
func (c *PostgresCatalog) Invalidate(ctx context.Context) {
	if c.cache != nil {
		if err := c.cache.Del(ctx, cacheKey); err != nil {
			c.logger.Warn("profile cache invalidation failed", map[string]interface{}{"error": err})
		}
	}
	c.notifier.Notify()
}

// Watch opens a LISTEN connection on ChangeChannel.
func (c *PostgresCatalog) Watch(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener != nil {
		return nil
	}
	l, err := c.pg.Listen(ChangeChannel, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			c.logger.Warn("profile listener event", map[string]interface{}{"event": ev, "error": err})
		}
	})
	if err != nil {
		return apperrors.NewStoreError("listen", err)
	}
	c.listener = l
	c.done = make(chan struct{})
	go c.run(ctx, l.Notify, c.done)
	return nil
}

// run treats every notification as a change. A nil notification follows a
// reconnect, when changes may have been missed, so it counts too.
func (c *PostgresCatalog) run(ctx context.Context, notify <-chan *pq.Notification, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notify:
			if !ok {
				return
			}
			fields := map[string]interface{}{"reconnect": n == nil}
			if n != nil {
				fields["payload"] = n.Extra
			}
			c.logger.Info("profiles changed", fields)
			c.Invalidate(ctx)
		}
	}
}

func (c *PostgresCatalog) Close() error {
	c.mu.Lock()
	l, done := c.listener, c.done
	c.listener = nil
	c.mu.Unlock()
	if l == nil {
		return nil
	}
	err := l.Close()
	<-done
	return err
}
