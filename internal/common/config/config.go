// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Grouping    GroupingConfig    `mapstructure:"grouping"`
	Presence    PresenceConfig    `mapstructure:"presence"`
	Calendar    CalendarConfig    `mapstructure:"calendar"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// Configured reports whether enough settings exist to open a connection.
func (p PostgresConfig) Configured() bool {
	return p.Host != "" && p.Database != "" && p.User != ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- Engine Configuration Sections ---

// CatalogConfig selects where colleague profiles come from.
type CatalogConfig struct {
	Source     string `mapstructure:"source"` // "postgres" or "file"
	RosterPath string `mapstructure:"roster_path"`
	CacheTTL   int    `mapstructure:"cache_ttl"` // milliseconds
	Watch      bool   `mapstructure:"watch"`
}

// GroupingConfig holds the group size bounds used for automatic regrouping.
type GroupingConfig struct {
	MinSize    int `mapstructure:"min_size"`
	MaxSize    int `mapstructure:"max_size"`
	MaxWorkers int `mapstructure:"max_workers"`
}

// PresenceConfig controls date handling and startup hydration.
type PresenceConfig struct {
	Timezone    string `mapstructure:"timezone"`
	HydrateDays int    `mapstructure:"hydrate_days"`
}

type CalendarConfig struct {
	Provider ProviderConfig `mapstructure:"provider"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Event    EventConfig    `mapstructure:"event"`
}

// ProviderConfig holds the external calendar provider credentials. Empty
// credentials are legal: the coordinator runs in demo fallback.
type ProviderConfig struct {
	Name         string   `mapstructure:"name"`
	BaseURL      string   `mapstructure:"base_url"`
	CalendarID   string   `mapstructure:"calendar_id"`
	TokenURL     string   `mapstructure:"token_url"`
	RevokeURL    string   `mapstructure:"revoke_url"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	Scopes       []string `mapstructure:"scopes"`
	Timeout      int      `mapstructure:"timeout"` // milliseconds
}

// SyncConfig holds the retry policy for pushing presence to the provider.
type SyncConfig struct {
	BaseDelay      int `mapstructure:"base_delay"`      // milliseconds
	MaxDelay       int `mapstructure:"max_delay"`       // milliseconds
	MaxAttempts    int `mapstructure:"max_attempts"`    // total attempts
	AttemptTimeout int `mapstructure:"attempt_timeout"` // milliseconds
	DrainTimeout   int `mapstructure:"drain_timeout"`   // milliseconds
	QueueSize      int `mapstructure:"queue_size"`
}

// EventConfig shapes the calendar events derived from presence records.
type EventConfig struct {
	StartHour   int    `mapstructure:"start_hour"`
	EndHour     int    `mapstructure:"end_hour"`
	TitlePrefix string `mapstructure:"title_prefix"`
}

// PersistenceConfig selects the external presence store.
type PersistenceConfig struct {
	Backend string `mapstructure:"backend"` // "postgres", "redis" or "none"
	TTL     int    `mapstructure:"ttl"`     // milliseconds, redis only
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TelemetryConfig holds metrics and tracing settings.
type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TraceStdout bool   `mapstructure:"trace_stdout"`
}
