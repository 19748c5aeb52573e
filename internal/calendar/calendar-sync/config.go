// internal/calendar/calendar-sync/config.go
package calendarsync

import (
	"time"

	"office-affinity/internal/common/config"
)

type Config struct {
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	MaxAttempts    int
	AttemptTimeout time.Duration
	DrainTimeout   time.Duration
	// QueueSize preallocates the pending queue. It is not a limit.
	QueueSize      int
	Event          EventWindow
}

func LoadConfig() *Config {
	return &Config{
		BaseDelay:      1 * time.Second,
		MaxDelay:       30 * time.Second,
		MaxAttempts:    5,
		AttemptTimeout: 5 * time.Second,
		DrainTimeout:   2 * time.Second,
		QueueSize:      256,
		Event: EventWindow{
			StartHour:   9,
			EndHour:     17,
			TitlePrefix: "Office presence",
			Location:    time.UTC,
		},
	}
}

// FromAppConfig maps the calendar and presence sections of the app config.
func FromAppConfig(cfg *config.Config) *Config {
	c := LoadConfig()
	s := cfg.Calendar.Sync
	if s.BaseDelay > 0 {
		c.BaseDelay = config.GetDuration(s.BaseDelay)
	}
	if s.MaxDelay > 0 {
		c.MaxDelay = config.GetDuration(s.MaxDelay)
	}
	if s.MaxAttempts > 0 {
		c.MaxAttempts = s.MaxAttempts
	}
	if s.AttemptTimeout > 0 {
		c.AttemptTimeout = config.GetDuration(s.AttemptTimeout)
	}
	if s.DrainTimeout > 0 {
		c.DrainTimeout = config.GetDuration(s.DrainTimeout)
	}
	if s.QueueSize > 0 {
		c.QueueSize = s.QueueSize
	}
	e := cfg.Calendar.Event
	if e.EndHour > e.StartHour {
		c.Event.StartHour = e.StartHour
		c.Event.EndHour = e.EndHour
	}
	if e.TitlePrefix != "" {
		c.Event.TitlePrefix = e.TitlePrefix
	}
	c.Event.Location = cfg.Presence.Location()
	return c
}

// backoff is the wait before retry number attempt (0-based), doubling from
// BaseDelay and capped at MaxDelay.
func (c *Config) backoff(attempt int) time.Duration {
	if attempt > 30 {
		return c.MaxDelay
	}
	delay := c.BaseDelay * time.Duration(1<<attempt)
	if delay > c.MaxDelay || delay <= 0 {
		delay = c.MaxDelay
	}
	return delay
}
