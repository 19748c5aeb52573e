// internal/persistence/postgres.go
package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/lib/pq"

	apperrors "office-affinity/internal/common/errors"
	"office-affinity/internal/common/logger"
	"office-affinity/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS presence_records (
	user_id     TEXT        NOT NULL,
	day         DATE        NOT NULL,
	status      TEXT        NOT NULL,
	declared_at TIMESTAMPTZ NOT NULL,
	groups      TEXT[]      NOT NULL DEFAULT '{}',
	revision    BIGINT      NOT NULL,
	event_id    TEXT        NOT NULL DEFAULT '',
	PRIMARY KEY (user_id, day)
)`

// The WHERE clause keeps an older declaration from overwriting a newer one.
// Revisions restart at 1 with the process, so declared_at orders writes
// across restarts and revision breaks ties within one.
const upsertPresence = `
INSERT INTO presence_records (user_id, day, status, declared_at, groups, revision, event_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (user_id, day) DO UPDATE SET
	status = EXCLUDED.status,
	declared_at = EXCLUDED.declared_at,
	groups = EXCLUDED.groups,
	revision = EXCLUDED.revision,
	event_id = EXCLUDED.event_id
WHERE (presence_records.declared_at, presence_records.revision) <= (EXCLUDED.declared_at, EXCLUDED.revision)`

const selectPresence = `
SELECT user_id, status, declared_at, groups, revision, event_id
FROM presence_records
WHERE day = $1
ORDER BY user_id`

type PostgresStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewPostgresStore(db *sql.DB, log logger.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger.ForComponent(log, "presence-postgres")}
}

// EnsureSchema creates the presence table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return apperrors.NewStoreError("ensure schema", err)
	}
	return nil
}

func (s *PostgresStore) AppendPresence(ctx context.Context, rec models.PresenceRecord) error {
	groups := rec.Groups
	if groups == nil {
		groups = []string{}
	}
	res, err := s.db.ExecContext(ctx, upsertPresence,
		rec.UserID,
		rec.Day.String(),
		string(rec.Status),
		rec.DeclaredAt.UTC(),
		pq.Array(groups),
		int64(rec.Revision),
		rec.EventID,
	)
	if err != nil {
		return apperrors.NewStoreError("append", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewStoreError("append", err)
	}
	if n == 0 {
		// a newer declaration is already stored; retrying cannot change that
		stale := apperrors.NewStoreError("append", fmt.Errorf("stored declaration for %s is newer than revision %d", rec.Key(), rec.Revision))
		stale.Retryable = false
		return stale
	}
	return nil
}

func (s *PostgresStore) ListPresence(ctx context.Context, day civil.Date) ([]models.PresenceRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectPresence, day.String())
	if err != nil {
		return nil, apperrors.NewStoreError("list", err)
	}
	defer rows.Close()

	out := []models.PresenceRecord{}
	for rows.Next() {
		var (
			rec      models.PresenceRecord
			status   string
			groups   []string
			revision int64
		)
		if err := rows.Scan(&rec.UserID, &status, &rec.DeclaredAt, pq.Array(&groups), &revision, &rec.EventID); err != nil {
			return nil, apperrors.NewStoreError("list", err)
		}
		rec.Day = day
		rec.Status = models.PresenceStatus(status)
		rec.Groups = groups
		rec.Revision = uint64(revision)
		rec.SyncState = models.SyncSynced
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreError("list", err)
	}
	return out, nil
}
