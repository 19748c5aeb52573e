// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "office-affinity/internal/common/errors"
)

// Load reads config.yaml plus config.<APP_ENVIRONMENT>.yaml from the usual
// locations and applies env overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // ignore error if not found

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	// CALENDAR_PROVIDER_CLIENT_ID overrides calendar.provider.client_id etc.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)
	return v
}

// bindEnvKeys makes AutomaticEnv see keys that are absent from the yaml files.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"app.environment",
		"database.postgres.host", "database.postgres.port", "database.postgres.database",
		"database.postgres.user", "database.postgres.password",
		"database.redis.address", "database.redis.password",
		"catalog.source", "catalog.roster_path",
		"calendar.provider.base_url", "calendar.provider.token_url", "calendar.provider.revoke_url",
		"calendar.provider.client_id", "calendar.provider.client_secret",
		"persistence.backend",
		"logging.level",
	} {
		_ = v.BindEnv(key)
	}
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars replaces ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills secrets from the conventional env names when the
// yaml leaves them blank.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Calendar.Provider.ClientID == "" {
		if val := os.Getenv("CALENDAR_CLIENT_ID"); val != "" {
			cfg.Calendar.Provider.ClientID = val
		}
	}
	if cfg.Calendar.Provider.ClientSecret == "" {
		if val := os.Getenv("CALENDAR_CLIENT_SECRET"); val != "" {
			cfg.Calendar.Provider.ClientSecret = val
		}
	}

	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "affinity-engine"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30000
	}

	// Database defaults
	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Catalog.Source == "" {
		cfg.Catalog.Source = "file"
	}
	if cfg.Catalog.CacheTTL == 0 {
		cfg.Catalog.CacheTTL = 300000
	}

	if cfg.Grouping.MinSize == 0 {
		cfg.Grouping.MinSize = 2
	}
	if cfg.Grouping.MaxSize == 0 {
		cfg.Grouping.MaxSize = 4
	}
	if cfg.Grouping.MaxWorkers == 0 {
		cfg.Grouping.MaxWorkers = 8
	}

	if cfg.Presence.Timezone == "" {
		cfg.Presence.Timezone = "UTC"
	}
	if cfg.Presence.HydrateDays == 0 {
		cfg.Presence.HydrateDays = 7
	}

	if cfg.Calendar.Provider.Name == "" {
		cfg.Calendar.Provider.Name = "calendar"
	}
	if cfg.Calendar.Provider.CalendarID == "" {
		cfg.Calendar.Provider.CalendarID = "primary"
	}
	if cfg.Calendar.Provider.Timeout == 0 {
		cfg.Calendar.Provider.Timeout = 10000
	}

	sync := &cfg.Calendar.Sync
	if sync.BaseDelay == 0 {
		sync.BaseDelay = 1000
	}
	if sync.MaxDelay == 0 {
		sync.MaxDelay = 30000
	}
	if sync.MaxAttempts == 0 {
		sync.MaxAttempts = 5
	}
	if sync.AttemptTimeout == 0 {
		sync.AttemptTimeout = 5000
	}
	if sync.DrainTimeout == 0 {
		sync.DrainTimeout = 2000
	}
	if sync.QueueSize == 0 {
		sync.QueueSize = 256
	}

	if cfg.Calendar.Event.StartHour == 0 && cfg.Calendar.Event.EndHour == 0 {
		cfg.Calendar.Event.StartHour = 9
		cfg.Calendar.Event.EndHour = 17
	}
	if cfg.Calendar.Event.TitlePrefix == "" {
		cfg.Calendar.Event.TitlePrefix = "Office presence"
	}

	if cfg.Persistence.Backend == "" {
		cfg.Persistence.Backend = "none"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Grouping.MinSize < 1 || cfg.Grouping.MaxSize < 1 {
		return apperrors.NewConfigurationError("grouping.min_size and grouping.max_size must be positive")
	}
	if cfg.Grouping.MinSize > cfg.Grouping.MaxSize {
		return apperrors.NewConfigurationError(fmt.Sprintf(
			"grouping.min_size (%d) exceeds grouping.max_size (%d)", cfg.Grouping.MinSize, cfg.Grouping.MaxSize))
	}

	if _, err := time.LoadLocation(cfg.Presence.Timezone); err != nil {
		return apperrors.NewConfigurationError(fmt.Sprintf("presence.timezone %q: %v", cfg.Presence.Timezone, err))
	}

	switch cfg.Catalog.Source {
	case "file":
		if cfg.Catalog.RosterPath == "" {
			return apperrors.NewConfigurationError("catalog.roster_path is required for the file catalog")
		}
	case "postgres":
		if !cfg.Database.Postgres.Configured() {
			return apperrors.NewConfigurationError("database.postgres host, database and user are required for the postgres catalog")
		}
	default:
		return apperrors.NewConfigurationError(fmt.Sprintf("unknown catalog.source %q", cfg.Catalog.Source))
	}

	switch cfg.Persistence.Backend {
	case "none":
	case "postgres":
		if !cfg.Database.Postgres.Configured() {
			return apperrors.NewConfigurationError("database.postgres host, database and user are required for postgres persistence")
		}
	case "redis":
		if cfg.Database.Redis.Address == "" {
			return apperrors.NewConfigurationError("database.redis.address is required for redis persistence")
		}
	default:
		return apperrors.NewConfigurationError(fmt.Sprintf("unknown persistence.backend %q", cfg.Persistence.Backend))
	}

	if cfg.Calendar.Event.StartHour < 0 || cfg.Calendar.Event.EndHour > 24 ||
		cfg.Calendar.Event.StartHour >= cfg.Calendar.Event.EndHour {
		return apperrors.NewConfigurationError("calendar.event hours must satisfy 0 <= start_hour < end_hour <= 24")
	}

	if cfg.Calendar.Sync.BaseDelay < 0 || cfg.Calendar.Sync.MaxDelay < cfg.Calendar.Sync.BaseDelay {
		return apperrors.NewConfigurationError("calendar.sync.max_delay must be >= base_delay")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// Location returns the presence timezone, defaulting to UTC.
func (p PresenceConfig) Location() *time.Location {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil || p.Timezone == "" {
		return time.UTC
	}
	return loc
}

// HasCredentials reports whether the provider can attempt authentication.
func (p ProviderConfig) HasCredentials() bool {
	return p.BaseURL != "" && p.TokenURL != "" && p.ClientID != "" && p.ClientSecret != ""
}
