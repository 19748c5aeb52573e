// internal/models/calendar.go
package models

import (
	"time"

	"cloud.google.com/go/civil"
)

// CalendarEvent is the provider-facing projection of a presence record. It is
// always regenerable from the record.
type CalendarEvent struct {
	ID             string         `json:"id,omitempty"`
	IdempotencyKey string         `json:"idempotencyKey"`
	UserID         string         `json:"userId"`
	Day            civil.Date     `json:"date"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Start          time.Time      `json:"start"`
	End            time.Time      `json:"end"`
	Attendees      []string       `json:"attendees,omitempty"`
	Status         PresenceStatus `json:"status"`
	Groups         []string       `json:"groups,omitempty"`
	Revision       uint64         `json:"revision"`
}

// ConnectionState is the lifecycle state of a calendar sync session.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDemoFallback ConnectionState = "demo_fallback"
)

// ConnectionStates lists every state, for metrics.
var ConnectionStates = []string{
	string(StateDisconnected),
	string(StateConnecting),
	string(StateConnected),
	string(StateDemoFallback),
}

// SessionStatus is the externally visible view of the sync session.
type SessionStatus struct {
	State      ConnectionState `json:"state"`
	Demo       bool            `json:"demo"`
	Provider   string          `json:"provider,omitempty"`
	LastSyncAt *time.Time      `json:"lastSyncAt,omitempty"`
	Pending    int             `json:"pending"`
	Failed     int             `json:"failed"`
	LastError  string          `json:"lastError,omitempty"`
}
