// internal/calendar/calendar-sync/models.go
package calendarsync

import (
	"context"

	"cloud.google.com/go/civil"

	"office-affinity/internal/models"
)

// Provider is the external calendar. CreateEvent must treat the event's
// IdempotencyKey as an upsert key.
type Provider interface {
	Name() string
	Authenticate(ctx context.Context) error
	CreateEvent(ctx context.Context, event models.CalendarEvent) (string, error)
	SignOut(ctx context.Context) error
}

// PresencePersistence is the external presence store used for hydration and
// write-through after a successful provider sync.
type PresencePersistence interface {
	AppendPresence(ctx context.Context, record models.PresenceRecord) error
	ListPresence(ctx context.Context, day civil.Date) ([]models.PresenceRecord, error)
}

// PresenceSource is the slice of the presence tracker the coordinator needs.
type PresenceSource interface {
	Get(userID string, day civil.Date) (models.PresenceRecord, bool)
	UpdateSyncState(key models.PresenceKey, revision uint64, state models.SyncState, eventID, errMsg string) (models.PresenceRecord, bool)
	Unsynced() []models.PresenceRecord
	Failed() []models.PresenceRecord
}

// emptySource stands in for a missing PresenceSource.
type emptySource struct{}

func (emptySource) Get(string, civil.Date) (models.PresenceRecord, bool) {
	return models.PresenceRecord{}, false
}

func (emptySource) UpdateSyncState(models.PresenceKey, uint64, models.SyncState, string, string) (models.PresenceRecord, bool) {
	return models.PresenceRecord{}, false
}

func (emptySource) Unsynced() []models.PresenceRecord { return nil }

func (emptySource) Failed() []models.PresenceRecord { return nil }
