// internal/models/presence.go
package models

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// PresenceStatus is a declared work location for one day.
type PresenceStatus string

const (
	StatusPresent PresenceStatus = "present"
	StatusRemote  PresenceStatus = "remote"
	StatusAbsent  PresenceStatus = "absent"
)

func (s PresenceStatus) Valid() bool {
	switch s {
	case StatusPresent, StatusRemote, StatusAbsent:
		return true
	}
	return false
}

// SyncState tracks a record's reconciliation with the calendar provider.
type SyncState string

const (
	SyncLocal   SyncState = "local"
	SyncPending SyncState = "pending_sync"
	SyncSynced  SyncState = "synced"
	SyncFailed  SyncState = "sync_failed"
)

// PresenceKey identifies a record. There is at most one record per key.
type PresenceKey struct {
	UserID string     `json:"userId"`
	Day    civil.Date `json:"date"`
}

func (k PresenceKey) String() string {
	return k.UserID + "/" + k.Day.String()
}

// IdempotencyKey is the provider-side deduplication key for the key's event.
func (k PresenceKey) IdempotencyKey() string {
	return fmt.Sprintf("presence-%s-%s", k.UserID, k.Day.String())
}

// PresenceRecord is a user's declared status for a date plus its sync metadata.
type PresenceRecord struct {
	UserID     string         `json:"userId" db:"user_id"`
	Day        civil.Date     `json:"date" db:"day"`
	Status     PresenceStatus `json:"status" db:"status"`
	DeclaredAt time.Time      `json:"declaredAt" db:"declared_at"`
	Groups     []string       `json:"groups" db:"groups"`
	SyncState  SyncState      `json:"syncState" db:"sync_state"`
	Revision   uint64         `json:"revision" db:"revision"`
	EventID    string         `json:"eventId,omitempty" db:"event_id"`
	LastError  string         `json:"lastError,omitempty" db:"last_error"`
}

func (r PresenceRecord) Key() PresenceKey {
	return PresenceKey{UserID: r.UserID, Day: r.Day}
}

// Clone returns a deep copy so callers never share the Groups slice.
func (r PresenceRecord) Clone() PresenceRecord {
	c := r
	if r.Groups != nil {
		c.Groups = append([]string(nil), r.Groups...)
	}
	return c
}

// InGroup reports whether the record represents groupID.
func (r PresenceRecord) InGroup(groupID string) bool {
	for _, g := range r.Groups {
		if g == groupID {
			return true
		}
	}
	return false
}
