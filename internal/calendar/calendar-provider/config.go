// internal/calendar/calendar-provider/config.go
package calendarprovider

import (
	"time"

	"office-affinity/internal/common/config"
)

type Config struct {
	Name         string
	BaseURL      string
	CalendarID   string
	TokenURL     string
	RevokeURL    string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Timeout      time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Name:       "calendar",
		CalendarID: "primary",
		Timeout:    10 * time.Second,
	}
}

// FromAppConfig maps the calendar.provider section.
func FromAppConfig(cfg *config.Config) *Config {
	p := cfg.Calendar.Provider
	c := LoadConfig()
	if p.Name != "" {
		c.Name = p.Name
	}
	if p.CalendarID != "" {
		c.CalendarID = p.CalendarID
	}
	if p.Timeout > 0 {
		c.Timeout = config.GetDuration(p.Timeout)
	}
	c.BaseURL = p.BaseURL
	c.TokenURL = p.TokenURL
	c.RevokeURL = p.RevokeURL
	c.ClientID = p.ClientID
	c.ClientSecret = p.ClientSecret
	c.Scopes = p.Scopes
	return c
}

func (c *Config) HasCredentials() bool {
	return c.BaseURL != "" && c.TokenURL != "" && c.ClientID != "" && c.ClientSecret != ""
}
