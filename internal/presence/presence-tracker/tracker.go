// internal/presence/presence-tracker/tracker.go
package presencetracker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	apperrors "office-affinity/internal/common/errors"
	"office-affinity/internal/common/logger"
	"office-affinity/internal/common/metrics"
	"office-affinity/internal/models"
)

// Enqueuer receives a snapshot of every accepted declaration for syncing.
type Enqueuer interface {
	Enqueue(record models.PresenceRecord)
}

type Config struct {
	// Location decides which calendar date "today" is.
	Location *time.Location
}

func LoadConfig() *Config {
	return &Config{Location: time.UTC}
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithSink sets the declaration sink at construction time.
func WithSink(sink Enqueuer) Option {
	return func(t *Tracker) { t.sink = sink }
}

// Tracker owns the presence store. It is the only writer; every mutation
// happens under mu and readers always receive copies.
type Tracker struct {
	mu     sync.RWMutex
	store  *store
	sink   Enqueuer
	now    func() time.Time
	loc    *time.Location
	logger logger.Logger
}

func NewTracker(config *Config, log logger.Logger, opts ...Option) *Tracker {
	if config == nil {
		config = LoadConfig()
	}
	loc := config.Location
	if loc == nil {
		loc = time.UTC
	}
	t := &Tracker{
		store:  newStore(),
		now:    time.Now,
		loc:    loc,
		logger: logger.ForComponent(log, "presence-tracker"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetSink wires the sync coordinator after both sides exist.
func (t *Tracker) SetSink(sink Enqueuer) {
	t.mu.Lock()
	t.sink = sink
	t.mu.Unlock()
}

// Today is the current date in the tracker's timezone.
func (t *Tracker) Today() civil.Date {
	return civil.DateOf(t.now().In(t.loc))
}

// Declare records status for (userID, day). Redeclaring the same key
// overwrites it. Past dates fail with IMMUTABLE_HISTORY and leave the store
// untouched. The returned record is a snapshot taken before the sink saw it.
func (t *Tracker) Declare(ctx context.Context, userID string, day civil.Date, status models.PresenceStatus, groups []string) (models.PresenceRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.PresenceRecord{}, err
	}

	userID = strings.TrimSpace(userID)
	if err := t.validate(userID, day, status); err != nil {
		metrics.PresenceRejected.WithLabelValues(string(apperrors.CodeOf(err))).Inc()
		return models.PresenceRecord{}, err
	}

	t.mu.Lock()
	key := models.PresenceKey{UserID: userID, Day: day}
	rec, exists := t.store.get(key)
	if !exists {
		rec = &models.PresenceRecord{UserID: userID, Day: day}
		t.store.put(rec)
	}
	rec.Status = status
	rec.Groups = normalizeGroups(groups)
	rec.DeclaredAt = t.now().UTC()
	rec.SyncState = models.SyncLocal
	rec.Revision++
	rec.LastError = ""
	snapshot := rec.Clone()
	sink := t.sink
	t.mu.Unlock()

	metrics.PresenceDeclarations.WithLabelValues(string(status)).Inc()
	t.logger.Debug("presence declared", map[string]interface{}{
		"userId":   userID,
		"date":     day.String(),
		"status":   status,
		"revision": snapshot.Revision,
		"update":   exists,
	})

	if sink != nil {
		sink.Enqueue(snapshot)
	}
	return snapshot, nil
}

func (t *Tracker) validate(userID string, day civil.Date, status models.PresenceStatus) error {
	if userID == "" {
		return apperrors.NewInvalidDeclarationError("userId is required")
	}
	if !status.Valid() {
		return apperrors.NewInvalidDeclarationError(fmt.Sprintf("unknown status %q", status))
	}
	if !day.IsValid() {
		return apperrors.NewInvalidDeclarationError(fmt.Sprintf("invalid date %s", day))
	}
	if day.Before(t.Today()) {
		return apperrors.NewImmutableHistoryError(userID, day.String())
	}
	return nil
}

func normalizeGroups(groups []string) []string {
	set := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		if g = strings.TrimSpace(g); g != "" {
			set[g] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for g := range set {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// Get returns a copy of the record for (userID, day).
func (t *Tracker) Get(userID string, day civil.Date) (models.PresenceRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.store.get(models.PresenceKey{UserID: userID, Day: day})
	if !ok {
		return models.PresenceRecord{}, false
	}
	return rec.Clone(), true
}

func (t *Tracker) withStatus(day civil.Date, status models.PresenceStatus) []models.PresenceRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.store.onDay(day, func(r *models.PresenceRecord) bool { return r.Status == status })
}

func (t *Tracker) PresentOn(day civil.Date) []models.PresenceRecord {
	return t.withStatus(day, models.StatusPresent)
}

func (t *Tracker) RemoteOn(day civil.Date) []models.PresenceRecord {
	return t.withStatus(day, models.StatusRemote)
}

func (t *Tracker) AbsentOn(day civil.Date) []models.PresenceRecord {
	return t.withStatus(day, models.StatusAbsent)
}

// GroupPresence lists the day's records that represent groupID.
func (t *Tracker) GroupPresence(groupID string, day civil.Date) []models.PresenceRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.store.onDay(day, func(r *models.PresenceRecord) bool { return r.InGroup(groupID) })
}

// WeekGrid covers exactly seven days from weekStart. Days without
// declarations map to empty, non-nil slices.
func (t *Tracker) WeekGrid(weekStart civil.Date) map[civil.Date][]models.PresenceRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	grid := make(map[civil.Date][]models.PresenceRecord, 7)
	for i := 0; i < 7; i++ {
		day := weekStart.AddDays(i)
		grid[day] = t.store.onDay(day, nil)
	}
	return grid
}

// UpdateSyncState records a sync outcome. It applies only when revision is
// still current, so a stale attempt never overwrites a newer declaration.
// An empty eventID keeps the existing one. Past records accept it too: only
// their declaration is immutable. A synced revision never goes back to
// pending.
func (t *Tracker) UpdateSyncState(key models.PresenceKey, revision uint64, state models.SyncState, eventID, errMsg string) (models.PresenceRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.store.get(key)
	if !ok || rec.Revision != revision {
		return models.PresenceRecord{}, false
	}
	if rec.SyncState == models.SyncSynced && state == models.SyncPending {
		// this revision already reached the calendar
		return rec.Clone(), false
	}
	rec.SyncState = state
	if eventID != "" {
		rec.EventID = eventID
	}
	rec.LastError = errMsg
	return rec.Clone(), true
}

// Unsynced returns every record that still needs a sync attempt.
func (t *Tracker) Unsynced() []models.PresenceRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.store.all(func(r *models.PresenceRecord) bool { return r.SyncState != models.SyncSynced })
}

// Failed returns the records whose last sync ended in SYNC_ERROR.
func (t *Tracker) Failed() []models.PresenceRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.store.all(func(r *models.PresenceRecord) bool { return r.SyncState == models.SyncFailed })
}

// Hydrate loads records from external persistence. Keys already present in
// memory win. Loaded records are marked synced.
func (t *Tracker) Hydrate(records []models.PresenceRecord) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	loaded := 0
	for _, r := range records {
		if r.UserID == "" || !r.Day.IsValid() || !r.Status.Valid() {
			continue
		}
		if _, exists := t.store.get(r.Key()); exists {
			continue
		}
		rec := r.Clone()
		rec.Groups = normalizeGroups(rec.Groups)
		rec.SyncState = models.SyncSynced
		rec.LastError = ""
		if rec.Revision == 0 {
			rec.Revision = 1
		}
		t.store.put(&rec)
		loaded++
	}
	if loaded > 0 {
		t.logger.Info("presence hydrated", map[string]interface{}{"records": loaded})
	}
	return loaded
}

// Len is the number of stored records.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.store.len()
}
