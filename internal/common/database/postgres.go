// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"office-affinity/internal/common/config"

	"github.com/lib/pq"
)

// PostgresClient wraps the SQL database connection
type PostgresClient struct {
	DB  *sql.DB
	dsn string
}

// NewPostgres opens a connection pool. It does not dial; call Ping.
func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	dsn := cfg.GetDSN()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{DB: db, dsn: dsn}, nil
}

// NewPostgresFromDB wraps an existing handle, e.g. a sqlmock connection.
func NewPostgresFromDB(db *sql.DB) *PostgresClient {
	return &PostgresClient{DB: db}
}

// Ping tests the database connection
func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Close closes the database connection
func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// Listen opens a dedicated LISTEN connection on channel. The returned
// listener must be closed by the caller.
func (c *PostgresClient) Listen(channel string, onEvent func(pq.ListenerEventType, error)) (*pq.Listener, error) {
	if c.dsn == "" {
		return nil, fmt.Errorf("postgres listener requires a DSN-backed client")
	}
	l := pq.NewListener(c.dsn, 2*time.Second, time.Minute, onEvent)
	if err := l.Listen(channel); err != nil {
		l.Close()
		return nil, fmt.Errorf("listen %s: %w", channel, err)
	}
	return l, nil
}

// GetDB returns the underlying *sql.DB
func (c *PostgresClient) GetDB() *sql.DB {
	return c.DB
}
