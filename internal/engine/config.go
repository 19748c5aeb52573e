// internal/engine/config.go
package engine

import (
	"time"

	"office-affinity/internal/common/config"
)

type Config struct {
	MinSize     int
	MaxSize     int
	MaxWorkers  int
	Location    *time.Location
	HydrateDays int
}

func LoadConfig() *Config {
	return &Config{
		MinSize:     2,
		MaxSize:     4,
		MaxWorkers:  8,
		Location:    time.UTC,
		HydrateDays: 7,
	}
}

// FromAppConfig maps the grouping and presence sections.
func FromAppConfig(cfg *config.Config) *Config {
	c := LoadConfig()
	if cfg.Grouping.MinSize != 0 {
		c.MinSize = cfg.Grouping.MinSize
	}
	if cfg.Grouping.MaxSize != 0 {
		c.MaxSize = cfg.Grouping.MaxSize
	}
	if cfg.Grouping.MaxWorkers > 0 {
		c.MaxWorkers = cfg.Grouping.MaxWorkers
	}
	if cfg.Presence.HydrateDays >= 0 {
		c.HydrateDays = cfg.Presence.HydrateDays
	}
	c.Location = cfg.Presence.Location()
	return c
}
