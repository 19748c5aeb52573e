// internal/engine/engine_test.go
package engine

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	calendarsync "office-affinity/internal/calendar/calendar-sync"
	"office-affinity/internal/common/config"
	apperrors "office-affinity/internal/common/errors"
	"office-affinity/internal/common/logger"
	"office-affinity/internal/models"
	"office-affinity/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ==========================
// Test Helper Functions
// ==========================

// Monday 2026-10-19, 12:00 UTC
var testNow = time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC)

func profile(id string, interests ...string) models.Profile {
	return models.Profile{ID: id, Interests: interests}
}

func exampleProfiles() []models.Profile {
	return []models.Profile{
		profile("A", "coffee", "design"),
		profile("B", "coffee", "tech"),
		profile("C", "design", "art"),
	}
}

type fixture struct {
	engine      *Engine
	catalog     *testutil.StaticCatalog
	provider    *testutil.FakeProvider
	persistence *testutil.MemoryPersistence
}

func newFixture(t *testing.T, seed ...models.PresenceRecord) *fixture {
	t.Helper()
	cfg := LoadConfig()
	cfg.MinSize, cfg.MaxSize = 2, 2
	cfg.HydrateDays = 3

	syncCfg := calendarsync.LoadConfig()
	syncCfg.BaseDelay = time.Millisecond
	syncCfg.MaxDelay = 2 * time.Millisecond
	syncCfg.DrainTimeout = 200 * time.Millisecond

	f := &fixture{
		catalog:     testutil.NewStaticCatalog(exampleProfiles()...),
		provider:    testutil.NewFakeProvider(),
		persistence: testutil.NewMemoryPersistence(seed...),
	}
	clock := testutil.NewClock(testNow)
	e, err := New(cfg, Dependencies{
		Catalog:     f.catalog,
		Provider:    f.provider,
		Persistence: f.persistence,
		SyncConfig:  syncCfg,
		Logger:      logger.NewTestLogger(t),
		Clock:       clock.Now,
	})
	require.NoError(t, err)
	f.engine = e
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return f
}

func day(offset int) civil.Date {
	return civil.DateOf(testNow).AddDays(offset)
}

// ==========================
// Grouping
// ==========================

func TestNew_RejectsInvalidSizes(t *testing.T) {
	cfg := LoadConfig()
	cfg.MinSize, cfg.MaxSize = 5, 3
	_, err := New(cfg, Dependencies{})
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestStart_FormsInitialGroups(t *testing.T) {
	f := newFixture(t)
	_, ok := f.engine.Groups()
	assert.False(t, ok)

	require.NoError(t, f.engine.Start(context.Background()))
	require.NoError(t, f.engine.Start(context.Background()), "second Start is a no-op")

	p, ok := f.engine.Groups()
	require.True(t, ok)
	require.Len(t, p.Groups, 2)
	assert.Equal(t, []string{"A", "B"}, p.Groups[0].MemberIDs)
	assert.Equal(t, []string{"C"}, p.Groups[1].MemberIDs)
	assert.True(t, p.Groups[1].Overflow)
	assert.Equal(t, 2, p.MinSize)
	assert.Equal(t, testNow, p.FormedAt)
}

func TestGroups_ReturnsCopy(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.Start(context.Background()))

	p, _ := f.engine.Groups()
	p.Groups[0].MemberIDs[0] = "Z"

	again, _ := f.engine.Groups()
	assert.Equal(t, "A", again.Groups[0].MemberIDs[0])
}

func TestFormGroups_DoesNotReplacePartition(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.Start(context.Background()))

	groups, err := f.engine.FormGroups(context.Background(), exampleProfiles(), 1, 3)
	require.NoError(t, err)
	require.Len(t, groups, 1)

	p, _ := f.engine.Groups()
	assert.Len(t, p.Groups, 2)

	_, err = f.engine.FormGroups(context.Background(), exampleProfiles(), 0, 3)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestProfileChange_TriggersRegroup(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.Start(context.Background()))

	f.catalog.SetProfiles(append(exampleProfiles(), profile("D", "art", "design"))...)

	require.Eventually(t, func() bool {
		p, _ := f.engine.Groups()
		return len(p.Groups) == 2 && !p.Groups[1].Overflow
	}, 2*time.Second, 5*time.Millisecond)

	p, _ := f.engine.Groups()
	assert.Equal(t, []string{"C", "D"}, p.Groups[1].MemberIDs)
}

func TestRegroup_FailureKeepsPreviousPartition(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.Start(context.Background()))

	f.catalog.FailWith(apperrors.NewStoreError("list profiles", errors.New("down")))
	_, err := f.engine.Regroup(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrStore)

	p, ok := f.engine.Groups()
	require.True(t, ok)
	assert.Len(t, p.Groups, 2)
}

func TestStart_FailsOnInvalidCatalog(t *testing.T) {
	f := newFixture(t)
	f.catalog.SetProfiles(profile("A"), profile("A"))
	err := f.engine.Start(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrInvalidProfile)
}

func TestRegroup_WithoutCatalog(t *testing.T) {
	e, err := New(nil, Dependencies{Logger: logger.NewNoOpLogger()})
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	defer e.Close(context.Background())

	_, err = e.Regroup(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

// ==========================
// Presence
// ==========================

func TestDeclarePresence_UsesCurrentGroup(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.Start(context.Background()))
	p, _ := f.engine.Groups()

	rec, err := f.engine.DeclarePresence(context.Background(), "B", day(1), models.StatusPresent, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{p.Groups[0].ID}, rec.Groups)

	present := f.engine.PresentOn(day(1))
	require.Len(t, present, 1)
	assert.Equal(t, "B", present[0].UserID)
	assert.Len(t, f.engine.GroupPresence(p.Groups[0].ID, day(1)), 1)

	explicit, err := f.engine.DeclarePresence(context.Background(), "C", day(1), models.StatusRemote, []string{})
	require.NoError(t, err)
	assert.Empty(t, explicit.Groups)
	assert.Len(t, f.engine.RemoteOn(day(1)), 1)
	assert.Empty(t, f.engine.AbsentOn(day(1)))
}

func TestDeclarePresence_PastIsImmutable(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.DeclarePresence(context.Background(), "A", day(-1), models.StatusPresent, nil)
	assert.ErrorIs(t, err, apperrors.ErrImmutableHistory)
	assert.Equal(t, day(0), f.engine.Today())
}

func TestWeekGrid_TuesdayThursday(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	monday := day(7)

	_, err := f.engine.DeclarePresence(ctx, "A", monday.AddDays(1), models.StatusPresent, nil)
	require.NoError(t, err)
	_, err = f.engine.DeclarePresence(ctx, "B", monday.AddDays(3), models.StatusPresent, nil)
	require.NoError(t, err)

	grid := f.engine.WeekGrid(monday)
	require.Len(t, grid, 7)
	assert.Len(t, grid[monday.AddDays(1)], 1)
	assert.Len(t, grid[monday.AddDays(3)], 1)
	assert.Empty(t, grid[monday])
}

func TestStart_HydratesWindow(t *testing.T) {
	seed := []models.PresenceRecord{
		{UserID: "A", Day: day(-2), Status: models.StatusPresent, Revision: 2, EventID: "evt-old"},
		{UserID: "B", Day: day(2), Status: models.StatusRemote, Revision: 1},
		{UserID: "C", Day: day(10), Status: models.StatusPresent, Revision: 1},
	}
	f := newFixture(t, seed...)
	require.NoError(t, f.engine.Start(context.Background()))

	past, ok := f.engine.Presence("A", day(-2))
	require.True(t, ok)
	assert.Equal(t, models.SyncSynced, past.SyncState)
	assert.Equal(t, "evt-old", past.EventID)

	_, ok = f.engine.Presence("B", day(2))
	assert.True(t, ok)
	_, ok = f.engine.Presence("C", day(10))
	assert.False(t, ok, "outside the hydration window")
}

// ==========================
// Calendar
// ==========================

func TestCalendar_ConnectedFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Start(ctx))

	st := f.engine.ConnectCalendar(ctx)
	assert.Equal(t, models.StateConnected, st.State)
	assert.Equal(t, "fake", st.Provider)

	_, err := f.engine.DeclarePresence(ctx, "A", day(1), models.StatusPresent, nil)
	require.NoError(t, err)
	rec, err := f.engine.SyncPresence(ctx, "A", day(1))
	require.NoError(t, err)
	assert.Equal(t, models.SyncSynced, rec.SyncState)

	require.Eventually(t, func() bool { return f.persistence.Len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, f.provider.Events(), 1)

	n, err := f.engine.RetryFailedSyncs(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	st = f.engine.DisconnectCalendar(ctx)
	assert.Equal(t, models.StateDisconnected, st.State)

	_, err = f.engine.SyncPresence(ctx, "A", day(1))
	assert.ErrorIs(t, err, apperrors.ErrSessionNotConnected)
}

func TestCalendar_DemoFallbackExportsICS(t *testing.T) {
	f := newFixture(t)
	f.provider.RejectAuth(apperrors.NewAuthError("fake", errors.New("bad secret")))
	ctx := context.Background()

	st := f.engine.ConnectCalendar(ctx)
	require.True(t, st.Demo)

	_, err := f.engine.DeclarePresence(ctx, "A", day(1), models.StatusPresent, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(f.engine.FallbackEvents()) == 1 }, time.Second, 5*time.Millisecond)

	var buf bytes.Buffer
	require.NoError(t, f.engine.ExportFallbackICS(&buf))
	assert.Contains(t, buf.String(), "BEGIN:VCALENDAR")
	assert.Contains(t, buf.String(), "BEGIN:VEVENT")
	assert.Equal(t, 0, f.persistence.Len(), "demo mode never writes persistence")
}

func TestFromAppConfig(t *testing.T) {
	app := &config.Config{}
	app.Grouping.MinSize = 3
	app.Grouping.MaxSize = 6
	app.Presence.Timezone = "Europe/Paris"
	app.Presence.HydrateDays = 14

	c := FromAppConfig(app)
	assert.Equal(t, 3, c.MinSize)
	assert.Equal(t, 6, c.MaxSize)
	assert.Equal(t, 8, c.MaxWorkers)
	assert.Equal(t, 14, c.HydrateDays)
	assert.Equal(t, "Europe/Paris", c.Location.String())
}
