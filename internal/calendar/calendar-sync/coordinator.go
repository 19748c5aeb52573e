// internal/calendar/calendar-sync/coordinator.go
package calendarsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	apperrors "office-affinity/internal/common/errors"
	"office-affinity/internal/common/logger"
	"office-affinity/internal/common/metrics"
	"office-affinity/internal/common/observability"
	"office-affinity/internal/models"
)

// Coordinator reconciles presence records with the external calendar. It owns
// at most one session at a time and runs one worker goroutine per session.
type Coordinator struct {
	config      *Config
	provider    Provider
	persistence PresencePersistence
	source      PresenceSource
	fallback    *FallbackCalendar
	obs         *observability.Observability
	logger      logger.Logger
	now         func() time.Time

	mu         sync.Mutex
	session    *session
	state      models.ConnectionState
	lastSyncAt *time.Time
	lastError  string

	keys *keyLocks

	// created remembers provider events created for a revision whose
	// persistence write failed, so the retry does not create them again.
	createdMu sync.Mutex
	created   map[models.PresenceKey]createdEvent
}

type createdEvent struct {
	revision uint64
	eventID  string
}

// Dependencies groups the collaborators of a Coordinator. Provider,
// Persistence and Source may be nil: without a provider every connect ends in
// demo fallback, and without a source there is nothing to resume or sync.
type Dependencies struct {
	Provider      Provider
	Persistence   PresencePersistence
	Source        PresenceSource
	Observability *observability.Observability
	Logger        logger.Logger
	Clock         func() time.Time
}

func NewCoordinator(config *Config, deps Dependencies) *Coordinator {
	if config == nil {
		config = LoadConfig()
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	source := deps.Source
	if source == nil {
		source = emptySource{}
	}
	fallback := NewFallbackCalendar()
	fallback.now = now

	c := &Coordinator{
		config:      config,
		provider:    deps.Provider,
		persistence: deps.Persistence,
		source:      source,
		fallback:    fallback,
		obs:         deps.Observability,
		logger:      logger.ForComponent(deps.Logger, "calendar-sync"),
		now:         now,
		state:       models.StateDisconnected,
		keys:        newKeyLocks(),
		created:     make(map[models.PresenceKey]createdEvent),
	}
	metrics.SetSessionState(string(c.state), models.ConnectionStates)
	return c
}

// setState must be called with mu held.
func (c *Coordinator) setState(state models.ConnectionState) {
	c.state = state
	metrics.SetSessionState(string(state), models.ConnectionStates)
}

// Connect authenticates with the provider and starts a session. Any
// authentication failure, including a missing provider, ends in demo
// fallback. Connecting an open session returns its status unchanged.
func (c *Coordinator) Connect(ctx context.Context) models.SessionStatus {
	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return c.Status()
	}
	sess := newSession(c.config.QueueSize)
	c.session = sess
	c.setState(models.StateConnecting)
	c.mu.Unlock()

	target := models.StateConnected
	var authErr error
	if c.provider == nil {
		target = models.StateDemoFallback
		authErr = apperrors.NewAuthError("calendar", errors.New("no provider configured"))
	} else {
		actx, cancel := context.WithTimeout(ctx, c.config.AttemptTimeout)
		authErr = c.provider.Authenticate(actx)
		cancel()
		if authErr != nil {
			target = models.StateDemoFallback
		}
	}

	c.mu.Lock()
	if c.session != sess {
		// disconnected while authenticating
		c.mu.Unlock()
		return c.Status()
	}
	c.setState(target)
	sess.connected = target == models.StateConnected
	if authErr != nil {
		c.lastError = authErr.Error()
	} else {
		c.lastError = ""
	}
	c.mu.Unlock()

	fields := map[string]interface{}{"state": target}
	if authErr != nil {
		fields["error"] = authErr
		c.logger.Warn("calendar provider unavailable, using demo fallback", fields)
	} else {
		c.logger.Info("calendar session connected", fields)
	}

	go c.run(sess)

	resumed := 0
	for _, rec := range c.source.Unsynced() {
		if c.enqueue(sess, rec) {
			resumed++
		}
	}
	if resumed > 0 {
		c.logger.Info("resuming unsynced presence", map[string]interface{}{"records": resumed})
	}

	return c.Status()
}

// Disconnect drains the queue for at most DrainTimeout, cancels in-flight
// attempts, signs out and clears the session. It never blocks beyond the
// configured bounds. Records left behind keep their sync state and resume
// on the next Connect.
func (c *Coordinator) Disconnect(ctx context.Context) models.SessionStatus {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		return c.Status()
	}

	drainCtx, cancel := context.WithTimeout(ctx, c.config.DrainTimeout)
	drained := sess.queue.waitIdle(drainCtx)
	cancel()

	sess.cancel()
	select {
	case <-sess.done:
	case <-time.After(c.config.DrainTimeout):
		c.logger.Warn("sync worker did not stop in time", nil)
	}

	if sess.connected && c.provider != nil {
		sctx, scancel := context.WithTimeout(context.Background(), c.config.AttemptTimeout)
		if err := c.provider.SignOut(sctx); err != nil {
			c.logger.Warn("provider sign-out failed", map[string]interface{}{"error": err})
		}
		scancel()
	}

	c.mu.Lock()
	if c.session == sess {
		c.session = nil
		c.setState(models.StateDisconnected)
	}
	c.mu.Unlock()
	metrics.PendingQueueDepth.Set(0)

	c.logger.Info("calendar session disconnected", map[string]interface{}{"drained": drained})
	return c.Status()
}

// Status reports the session state.
func (c *Coordinator) Status() models.SessionStatus {
	c.mu.Lock()
	st := models.SessionStatus{
		State:     c.state,
		Demo:      c.state == models.StateDemoFallback,
		LastError: c.lastError,
	}
	if c.provider != nil {
		st.Provider = c.provider.Name()
	}
	if c.lastSyncAt != nil {
		t := *c.lastSyncAt
		st.LastSyncAt = &t
	}
	sess := c.session
	c.mu.Unlock()

	if sess != nil {
		st.Pending = sess.queue.len()
	}
	st.Failed = len(c.source.Failed())
	return st
}

// Enqueue hands a record to the session worker. Without a session the
// record stays local until the next Connect picks it up.
func (c *Coordinator) Enqueue(rec models.PresenceRecord) {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		return
	}
	c.enqueue(sess, rec)
}

func (c *Coordinator) enqueue(sess *session, rec models.PresenceRecord) bool {
	if rec.SyncState == models.SyncSynced {
		return false
	}
	// mark pending first so the worker's outcome is the last write
	if cur, ok := c.source.UpdateSyncState(rec.Key(), rec.Revision, models.SyncPending, "", rec.LastError); ok {
		rec = cur
	}
	sess.queue.push(rec)
	metrics.PendingQueueDepth.Set(float64(sess.queue.len()))
	return true
}

// RetryFailed re-enqueues every record whose sync ended in SYNC_ERROR.
func (c *Coordinator) RetryFailed(ctx context.Context) (int, error) {
	c.mu.Lock()
	sess, state := c.session, c.state
	c.mu.Unlock()
	if sess == nil || state == models.StateConnecting {
		return 0, apperrors.NewSessionNotConnectedError(string(state))
	}
	n := 0
	for _, rec := range c.source.Failed() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if c.enqueue(sess, rec) {
			n++
		}
	}
	return n, nil
}

func (c *Coordinator) run(sess *session) {
	defer close(sess.done)
	for {
		rec, ok := sess.queue.pop(sess.ctx)
		if !ok {
			return
		}
		if _, err := c.syncRecord(sess.ctx, sess, rec.Key()); err != nil && !apperrors.HasCode(err, apperrors.ErrCodeSyncCancelled) {
			c.logger.Warn("background sync failed", map[string]interface{}{
				"key":   rec.Key().String(),
				"error": err,
			})
		}
		sess.queue.done()
		metrics.PendingQueueDepth.Set(float64(sess.queue.len()))
	}
}

// Sync pushes the record's current state and returns it. Syncing an already
// synced record is a no-op. Sync errors are also recorded on the record.
func (c *Coordinator) Sync(ctx context.Context, rec models.PresenceRecord) (models.PresenceRecord, error) {
	c.mu.Lock()
	sess, state := c.session, c.state
	c.mu.Unlock()
	if sess == nil || state == models.StateConnecting || state == models.StateDisconnected {
		return rec, apperrors.NewSessionNotConnectedError(string(state))
	}
	jctx, cancel := sess.joinContext(ctx)
	defer cancel()
	return c.syncRecord(jctx, sess, rec.Key())
}

func (c *Coordinator) currentState(sess *session) (models.ConnectionState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.session == sess
}

func (c *Coordinator) syncRecord(ctx context.Context, sess *session, key models.PresenceKey) (models.PresenceRecord, error) {
	unlock, err := c.keys.lock(ctx, key)
	if err != nil {
		return c.cancelled(key, err)
	}
	defer unlock()

	cur, ok := c.source.Get(key.UserID, key.Day)
	if !ok {
		return models.PresenceRecord{}, apperrors.NewInvalidDeclarationError(fmt.Sprintf("no presence record for %s", key))
	}
	if cur.SyncState == models.SyncSynced {
		return cur, nil
	}

	state, current := c.currentState(sess)
	if !current {
		return c.cancelled(key, context.Canceled)
	}

	ctx, span := c.obs.StartSpan(ctx, "calendar.sync",
		attribute.String("presence.key", key.String()),
		attribute.String("sync.mode", modeLabel(state)),
	)
	defer span.End()

	start := c.now()
	var out models.PresenceRecord
	if state == models.StateDemoFallback {
		out, err = c.syncFallback(cur)
	} else {
		out, err = c.syncProvider(ctx, sess, cur)
	}

	outcome := "synced"
	switch {
	case err == nil:
	case apperrors.HasCode(err, apperrors.ErrCodeSyncCancelled):
		outcome = "cancelled"
	default:
		outcome = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	c.obs.RecordSync(ctx, c.now().Sub(start), modeLabel(state), outcome)
	metrics.SyncDuration.WithLabelValues(modeLabel(state)).Observe(c.now().Sub(start).Seconds())
	return out, err
}

// syncFallback completes a sync against the local calendar.
func (c *Coordinator) syncFallback(rec models.PresenceRecord) (models.PresenceRecord, error) {
	id := c.fallback.Upsert(BuildEvent(rec, c.config.Event))
	metrics.SyncAttempts.WithLabelValues("demo").Inc()
	return c.markSynced(rec, id), nil
}

func (c *Coordinator) markSynced(rec models.PresenceRecord, eventID string) models.PresenceRecord {
	updated, ok := c.source.UpdateSyncState(rec.Key(), rec.Revision, models.SyncSynced, eventID, "")
	if !ok {
		// redeclared meanwhile; the newer revision is queued on its own
		rec.SyncState = models.SyncSynced
		rec.EventID = eventID
		updated = rec
	}
	now := c.now()
	c.mu.Lock()
	c.lastSyncAt = &now
	c.mu.Unlock()
	return updated
}

func (c *Coordinator) syncProvider(ctx context.Context, sess *session, rec models.PresenceRecord) (models.PresenceRecord, error) {
	key := rec.Key()
	var lastErr error

	for attempt := 0; attempt < c.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.config.backoff(attempt - 1)):
			case <-ctx.Done():
				return c.cancelled(key, ctx.Err())
			}
			// pick up a redeclaration made during the wait
			if latest, ok := c.source.Get(key.UserID, key.Day); ok {
				rec = latest
			}
		}
		if err := ctx.Err(); err != nil {
			return c.cancelled(key, err)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.config.AttemptTimeout)
		eventID, err := c.push(attemptCtx, rec)
		cancel()

		if err == nil {
			metrics.SyncAttempts.WithLabelValues("synced").Inc()
			return c.markSynced(rec, eventID), nil
		}
		if ctx.Err() != nil {
			return c.cancelled(key, ctx.Err())
		}

		if apperrors.HasCode(err, apperrors.ErrCodeAuth) {
			metrics.SyncAttempts.WithLabelValues("auth_failed").Inc()
			c.fallBackToDemo(sess, err)
			return c.syncFallback(rec)
		}

		lastErr = err
		metrics.SyncAttempts.WithLabelValues("failed").Inc()
		c.source.UpdateSyncState(key, rec.Revision, models.SyncFailed, "", err.Error())
		c.logger.Debug("sync attempt failed", map[string]interface{}{
			"key":     key.String(),
			"attempt": attempt + 1,
			"error":   err,
		})

		if !isTransient(err) {
			break
		}
	}

	syncErr := apperrors.NewSyncError(key.IdempotencyKey(), c.config.MaxAttempts, lastErr)
	c.source.UpdateSyncState(key, rec.Revision, models.SyncFailed, "", syncErr.Error())
	c.mu.Lock()
	c.lastError = syncErr.Error()
	c.mu.Unlock()
	return rec, syncErr
}

// isTransient treats retryable StandardErrors and bare timeouts as worth
// another attempt.
func isTransient(err error) bool {
	if apperrors.IsRetryable(err) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// push creates the provider event, unless one already exists for this
// revision, then writes the synced record through to persistence.
func (c *Coordinator) push(ctx context.Context, rec models.PresenceRecord) (string, error) {
	key := rec.Key()

	c.createdMu.Lock()
	prev, haveEvent := c.created[key]
	c.createdMu.Unlock()

	eventID := ""
	if haveEvent && prev.revision == rec.Revision {
		eventID = prev.eventID
	} else {
		id, err := c.provider.CreateEvent(ctx, BuildEvent(rec, c.config.Event))
		if err != nil {
			return "", err
		}
		eventID = id
		c.createdMu.Lock()
		c.created[key] = createdEvent{revision: rec.Revision, eventID: id}
		c.createdMu.Unlock()
	}

	if c.persistence != nil {
		synced := rec.Clone()
		synced.SyncState = models.SyncSynced
		synced.EventID = eventID
		synced.LastError = ""
		if err := c.persistence.AppendPresence(ctx, synced); err != nil {
			if apperrors.CodeOf(err) == "" {
				err = apperrors.NewStoreError("append", err)
			}
			return "", err
		}
	}

	c.createdMu.Lock()
	delete(c.created, key)
	c.createdMu.Unlock()
	return eventID, nil
}

func (c *Coordinator) fallBackToDemo(sess *session, cause error) {
	c.mu.Lock()
	switched := false
	if c.session == sess && c.state == models.StateConnected {
		c.setState(models.StateDemoFallback)
		c.lastError = cause.Error()
		switched = true
	}
	c.mu.Unlock()
	if switched {
		c.logger.Warn("provider rejected credentials, switching to demo fallback", map[string]interface{}{"error": cause})
	}
}

// cancelled leaves the record pending so a later session resumes it.
func (c *Coordinator) cancelled(key models.PresenceKey, cause error) (models.PresenceRecord, error) {
	cur, ok := c.source.Get(key.UserID, key.Day)
	if ok && cur.SyncState != models.SyncSynced {
		if updated, applied := c.source.UpdateSyncState(key, cur.Revision, models.SyncPending, "", cur.LastError); applied {
			cur = updated
		}
	}
	metrics.SyncAttempts.WithLabelValues("cancelled").Inc()
	return cur, apperrors.NewSyncCancelledError(key.IdempotencyKey(), cause)
}

// FallbackEvents lists the events synthesized in demo mode.
func (c *Coordinator) FallbackEvents() []models.CalendarEvent {
	return c.fallback.Events()
}

// ExportICS renders the demo-mode calendar as iCalendar.
func (c *Coordinator) ExportICS(w io.Writer) error {
	return c.fallback.ExportICS(w, "Office presence (demo)")
}
