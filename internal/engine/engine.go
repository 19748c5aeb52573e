// internal/engine/engine.go
package engine

import (
	"context"
	"io"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	compatibilityscore "office-affinity/internal/affinity/compatibility-score"
	groupformer "office-affinity/internal/affinity/group-former"
	calendarsync "office-affinity/internal/calendar/calendar-sync"
	"office-affinity/internal/catalog"
	"office-affinity/internal/common/logger"
	"office-affinity/internal/common/observability"
	"office-affinity/internal/models"
	"office-affinity/internal/persistence"
	presencetracker "office-affinity/internal/presence/presence-tracker"
)

// Dependencies are the engine's external collaborators. Provider and
// Persistence may be nil; Catalog is required for Regroup.
type Dependencies struct {
	Catalog       catalog.ProfileCatalog
	Provider      calendarsync.Provider
	Persistence   persistence.PresenceStore
	SyncConfig    *calendarsync.Config
	Observability *observability.Observability
	Logger        logger.Logger
	Clock         func() time.Time
}

// Engine wires grouping, presence and calendar sync into one surface.
type Engine struct {
	config      *Config
	catalog     catalog.ProfileCatalog
	persistence persistence.PresenceStore
	scorer      *compatibilityscore.Scorer
	former      *groupformer.Former
	tracker     *presencetracker.Tracker
	coordinator *calendarsync.Coordinator
	obs         *observability.Observability
	logger      logger.Logger
	now         func() time.Time

	mu        sync.RWMutex
	partition *models.Partition

	regroupMu sync.Mutex

	lifecycle   sync.Mutex
	started     bool
	unsubscribe func()
	changes     chan struct{}
	stop        context.CancelFunc
	loopDone    chan struct{}
}

func New(config *Config, deps Dependencies) (*Engine, error) {
	if config == nil {
		config = LoadConfig()
	}
	if err := (groupformer.Config{MinSize: config.MinSize, MaxSize: config.MaxSize}).Validate(); err != nil {
		return nil, err
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	log := logger.ForComponent(deps.Logger, "engine")

	scorer := compatibilityscore.NewScorer(&compatibilityscore.Config{MaxWorkers: config.MaxWorkers})
	tracker := presencetracker.NewTracker(&presencetracker.Config{Location: config.Location}, deps.Logger,
		presencetracker.WithClock(now))

	syncCfg := deps.SyncConfig
	if syncCfg == nil {
		syncCfg = calendarsync.LoadConfig()
		syncCfg.Event.Location = config.Location
	}
	coordinator := calendarsync.NewCoordinator(syncCfg, calendarsync.Dependencies{
		Provider:      deps.Provider,
		Persistence:   deps.Persistence,
		Source:        tracker,
		Observability: deps.Observability,
		Logger:        deps.Logger,
		Clock:         now,
	})
	tracker.SetSink(coordinator)

	return &Engine{
		config:      config,
		catalog:     deps.Catalog,
		persistence: deps.Persistence,
		scorer:      scorer,
		former:      groupformer.NewFormer(scorer, deps.Logger),
		tracker:     tracker,
		coordinator: coordinator,
		obs:         deps.Observability,
		logger:      log,
		now:         now,
	}, nil
}

// Start hydrates presence from persistence, forms the initial groups and
// subscribes to catalog changes. It does not connect the calendar.
func (e *Engine) Start(ctx context.Context) error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	if e.started {
		return nil
	}

	if err := e.hydrate(ctx); err != nil {
		e.logger.Warn("presence hydration failed, starting empty", map[string]interface{}{"error": err})
	}

	if e.catalog != nil {
		if _, err := e.Regroup(ctx); err != nil {
			return err
		}
		loopCtx, cancel := context.WithCancel(context.Background())
		e.changes = make(chan struct{}, 1)
		e.loopDone = make(chan struct{})
		e.stop = cancel
		e.unsubscribe = e.catalog.OnProfileChanged(e.profileChanged)
		go e.regroupLoop(loopCtx, e.changes, e.loopDone)
	}

	e.started = true
	e.logger.Info("engine started", map[string]interface{}{
		"minSize": e.config.MinSize,
		"maxSize": e.config.MaxSize,
	})
	return nil
}

// hydrate loads the window [today-HydrateDays, today+HydrateDays].
func (e *Engine) hydrate(ctx context.Context) error {
	if e.persistence == nil || e.config.HydrateDays <= 0 {
		return nil
	}
	today := e.tracker.Today()
	var records []models.PresenceRecord
	for d := today.AddDays(-e.config.HydrateDays); !d.After(today.AddDays(e.config.HydrateDays)); d = d.AddDays(1) {
		day, err := e.persistence.ListPresence(ctx, d)
		if err != nil {
			return err
		}
		records = append(records, day...)
	}
	e.tracker.Hydrate(records)
	return nil
}

// profileChanged coalesces bursts into one pending regroup.
func (e *Engine) profileChanged() {
	select {
	case e.changes <- struct{}{}:
	default:
	}
}

func (e *Engine) regroupLoop(ctx context.Context, changes <-chan struct{}, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			if _, err := e.Regroup(ctx); err != nil && ctx.Err() == nil {
				e.logger.Error("regroup after profile change failed, keeping previous groups", map[string]interface{}{"error": err})
			}
		}
	}
}

// Close stops the regroup loop and disconnects the calendar.
func (e *Engine) Close(ctx context.Context) error {
	e.lifecycle.Lock()
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	if e.stop != nil {
		e.stop()
		<-e.loopDone
		e.stop = nil
	}
	e.started = false
	e.lifecycle.Unlock()

	e.coordinator.Disconnect(ctx)
	e.logger.Info("engine stopped", nil)
	return nil
}

// ==========================
// Presence
// ==========================

// DeclarePresence records status for (userID, day). When groups is nil the
// user's group from the current partition is used.
func (e *Engine) DeclarePresence(ctx context.Context, userID string, day civil.Date, status models.PresenceStatus, groups []string) (models.PresenceRecord, error) {
	if groups == nil {
		if p, ok := e.Groups(); ok {
			if g, found := p.GroupOf(userID); found {
				groups = []string{g.ID}
			}
		}
	}
	return e.tracker.Declare(ctx, userID, day, status, groups)
}

func (e *Engine) Presence(userID string, day civil.Date) (models.PresenceRecord, bool) {
	return e.tracker.Get(userID, day)
}

func (e *Engine) PresentOn(day civil.Date) []models.PresenceRecord {
	return e.tracker.PresentOn(day)
}

func (e *Engine) RemoteOn(day civil.Date) []models.PresenceRecord {
	return e.tracker.RemoteOn(day)
}

func (e *Engine) AbsentOn(day civil.Date) []models.PresenceRecord {
	return e.tracker.AbsentOn(day)
}

func (e *Engine) GroupPresence(groupID string, day civil.Date) []models.PresenceRecord {
	return e.tracker.GroupPresence(groupID, day)
}

func (e *Engine) WeekGrid(weekStart civil.Date) map[civil.Date][]models.PresenceRecord {
	return e.tracker.WeekGrid(weekStart)
}

// Today is the current date in the configured timezone.
func (e *Engine) Today() civil.Date {
	return e.tracker.Today()
}

// ==========================
// Calendar
// ==========================

func (e *Engine) ConnectCalendar(ctx context.Context) models.SessionStatus {
	return e.coordinator.Connect(ctx)
}

func (e *Engine) DisconnectCalendar(ctx context.Context) models.SessionStatus {
	return e.coordinator.Disconnect(ctx)
}

func (e *Engine) SyncStatus() models.SessionStatus {
	return e.coordinator.Status()
}

// SyncPresence syncs one record now instead of waiting for the worker.
func (e *Engine) SyncPresence(ctx context.Context, userID string, day civil.Date) (models.PresenceRecord, error) {
	rec, ok := e.tracker.Get(userID, day)
	if !ok {
		rec = models.PresenceRecord{UserID: userID, Day: day}
	}
	return e.coordinator.Sync(ctx, rec)
}

func (e *Engine) RetryFailedSyncs(ctx context.Context) (int, error) {
	return e.coordinator.RetryFailed(ctx)
}

func (e *Engine) FallbackEvents() []models.CalendarEvent {
	return e.coordinator.FallbackEvents()
}

func (e *Engine) ExportFallbackICS(w io.Writer) error {
	return e.coordinator.ExportICS(w)
}
