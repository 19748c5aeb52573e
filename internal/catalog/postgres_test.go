// internal/catalog/postgres_test.go
package catalog

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"office-affinity/internal/common/database"
	apperrors "office-affinity/internal/common/errors"
	"office-affinity/internal/common/logger"
)

// ==========================
// Test Helper Functions
// ==========================

func profileRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "display_name", "interests", "activities", "preferred_days"}).
		AddRow("A", "Ada", "{chess,go}", "{climbing}", "{1,3}").
		AddRow("B", nil, "{chess}", "{}", "{}")
}

func newTestCatalog(t *testing.T, withCache bool) (*PostgresCatalog, sqlmock.Sqlmock, *miniredis.Miniredis) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var (
		cache *database.RedisClient
		mr    *miniredis.Miniredis
	)
	if withCache {
		mr, err = miniredis.Run()
		require.NoError(t, err)
		t.Cleanup(mr.Close)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })
		cache = database.NewRedisFromClient(client)
	}
	c := NewPostgresCatalog(database.NewPostgresFromDB(db), cache, 5*time.Minute, logger.NewTestLogger(t))
	return c, mock, mr
}

// ==========================
// Tests
// ==========================

func TestPostgresCatalog_ListProfiles(t *testing.T) {
	c, mock, _ := newTestCatalog(t, false)
	mock.ExpectQuery(`SELECT id, display_name, interests, activities, preferred_days`).WillReturnRows(profileRows())

	profiles, err := c.ListProfiles(context.Background())
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	assert.Equal(t, "Ada", profiles[0].DisplayName)
	assert.Equal(t, []string{"chess", "go"}, profiles[0].Interests)
	assert.Equal(t, []string{"climbing"}, profiles[0].Activities)
	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday}, profiles[0].PreferredDays)
	assert.Empty(t, profiles[1].DisplayName)
	assert.Empty(t, profiles[1].PreferredDays)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalog_CachesInRedis(t *testing.T) {
	c, mock, mr := newTestCatalog(t, true)
	ctx := context.Background()
	mock.ExpectQuery(`SELECT id`).WillReturnRows(profileRows())

	first, err := c.ListProfiles(ctx)
	require.NoError(t, err)
	assert.True(t, mr.Exists(cacheKey))
	assert.Equal(t, 5*time.Minute, mr.TTL(cacheKey))

	// served from cache: no second query expected
	second, err := c.ListProfiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalog_CacheOutageFallsBackToDatabase(t *testing.T) {
	c, mock, mr := newTestCatalog(t, true)
	mr.Close()
	mock.ExpectQuery(`SELECT id`).WillReturnRows(profileRows())

	profiles, err := c.ListProfiles(context.Background())
	require.NoError(t, err)
	assert.Len(t, profiles, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalog_Errors(t *testing.T) {
	t.Run("query failure", func(t *testing.T) {
		c, mock, _ := newTestCatalog(t, false)
		mock.ExpectQuery(`SELECT id`).WillReturnError(errors.New("relation does not exist"))
		_, err := c.ListProfiles(context.Background())
		assert.ErrorIs(t, err, apperrors.ErrStore)
	})

	t.Run("weekday out of range", func(t *testing.T) {
		c, mock, _ := newTestCatalog(t, false)
		mock.ExpectQuery(`SELECT id`).WillReturnRows(
			sqlmock.NewRows([]string{"id", "display_name", "interests", "activities", "preferred_days"}).
				AddRow("A", "", "{}", "{}", "{9}"))
		_, err := c.ListProfiles(context.Background())
		assert.ErrorIs(t, err, apperrors.ErrInvalidProfile)
	})
}

func TestPostgresCatalog_NotificationInvalidatesAndNotifies(t *testing.T) {
	c, mock, mr := newTestCatalog(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mock.ExpectQuery(`SELECT id`).WillReturnRows(profileRows())
	_, err := c.ListProfiles(ctx)
	require.NoError(t, err)
	require.True(t, mr.Exists(cacheKey))

	var changes atomic.Int32
	c.OnProfileChanged(func() { changes.Add(1) })

	notify := make(chan *pq.Notification, 2)
	done := make(chan struct{})
	go c.run(ctx, notify, done)

	notify <- &pq.Notification{Channel: ChangeChannel, Extra: "A"}
	notify <- nil // reconnect
	require.Eventually(t, func() bool { return changes.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.False(t, mr.Exists(cacheKey))

	close(notify)
	<-done
	assert.NoError(t, c.Close(), "no listener opened")
}
