// internal/api/api_test.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	calendarsync "office-affinity/internal/calendar/calendar-sync"
	apperrors "office-affinity/internal/common/errors"
	"office-affinity/internal/common/logger"
	"office-affinity/internal/engine"
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

type fixture struct {
	server   *Server
	engine   *engine.Engine
	provider *testutil.FakeProvider
}

func newFixture(t *testing.T, checks map[string]ReadinessCheck) *fixture {
	t.Helper()
	cfg := engine.LoadConfig()
	cfg.MinSize, cfg.MaxSize = 2, 2

	syncCfg := calendarsync.LoadConfig()
	syncCfg.BaseDelay = time.Millisecond
	syncCfg.MaxDelay = 2 * time.Millisecond
	syncCfg.DrainTimeout = 200 * time.Millisecond

	provider := testutil.NewFakeProvider()
	e, err := engine.New(cfg, engine.Dependencies{
		Catalog: testutil.NewStaticCatalog(
			models.Profile{ID: "A", Interests: []string{"coffee", "design"}},
			models.Profile{ID: "B", Interests: []string{"coffee", "tech"}},
			models.Profile{ID: "C", Interests: []string{"design", "art"}},
		),
		Provider:    provider,
		Persistence: testutil.NewMemoryPersistence(),
		SyncConfig:  syncCfg,
		Logger:      logger.NewTestLogger(t),
		Clock:       testutil.NewClock(testNow).Now,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(context.Background()) })

	return &fixture{
		server:   New(e, checks, logger.NewTestLogger(t)),
		engine:   e,
		provider: provider,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]errorBody
	decodeBody(t, rec, &body)
	return body["error"].Code
}

func day(offset int) string {
	return civil.DateOf(testNow).AddDays(offset).String()
}

// ==========================
// Health and readiness
// ==========================

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestReady(t *testing.T) {
	healthy := true
	f := newFixture(t, map[string]ReadinessCheck{
		"postgres": func(ctx context.Context) error {
			if healthy {
				return nil
			}
			return errors.New("connection refused")
		},
	})

	rec := f.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "no partition before Start")

	require.NoError(t, f.engine.Start(context.Background()))
	rec = f.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	healthy = false
	rec = f.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodGet, "/health", nil)

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",route="/health",status="200"}`)
}

// ==========================
// Grouping
// ==========================

func TestGroups(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/groups", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, f.engine.Start(context.Background()))
	rec = f.do(t, http.MethodGet, "/api/groups", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var p models.Partition
	decodeBody(t, rec, &p)
	require.Len(t, p.Groups, 2)
	assert.Equal(t, []string{"A", "B"}, p.Groups[0].MemberIDs)
	assert.True(t, p.Groups[1].Overflow)

	rec = f.do(t, http.MethodPost, "/api/groups/regroup", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFormGroups(t *testing.T) {
	f := newFixture(t, nil)

	body := map[string]interface{}{
		"minSize": 1,
		"maxSize": 3,
		"profiles": []map[string]interface{}{
			{"id": "x", "interests": []string{"chess"}, "activities": []string{}},
			{"id": "y", "interests": []string{"chess"}, "activities": []string{}, "preferredDays": []string{"tue"}},
		},
	}
	rec := f.do(t, http.MethodPost, "/api/groups/form", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		Groups []models.AffinityGroup `json:"groups"`
	}
	decodeBody(t, rec, &out)
	require.Len(t, out.Groups, 1)
	assert.Equal(t, []string{"x", "y"}, out.Groups[0].MemberIDs)

	_, ok := f.engine.Groups()
	assert.False(t, ok, "a one-off grouping never replaces the partition")

	body["minSize"] = 0
	rec = f.do(t, http.MethodPost, "/api/groups/form", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "CONFIGURATION_ERROR", errorCode(t, rec))

	body["minSize"] = 1
	body["profiles"] = []map[string]interface{}{{"id": "x"}, {"id": "x"}}
	rec = f.do(t, http.MethodPost, "/api/groups/form", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PROFILE", errorCode(t, rec))
}

// ==========================
// Presence
// ==========================

func TestDeclarePresence(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.engine.Start(context.Background()))

	rec := f.do(t, http.MethodPost, "/api/presence", map[string]string{
		"userId": "A", "date": day(1), "status": "present",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var got models.PresenceRecord
	decodeBody(t, rec, &got)
	assert.Equal(t, "A", got.UserID)
	assert.Equal(t, models.StatusPresent, got.Status)
	assert.Len(t, got.Groups, 1, "defaults to the user's current group")

	rec = f.do(t, http.MethodGet, "/api/presence/"+day(1)+"?status=present", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var present []models.PresenceRecord
	decodeBody(t, rec, &present)
	require.Len(t, present, 1)
	assert.Equal(t, "A", present[0].UserID)

	rec = f.do(t, http.MethodGet, "/api/presence/"+day(1)+"/A", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/presence/"+day(1)+"/B", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/groups/"+got.Groups[0]+"/presence/"+day(1), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var members []models.PresenceRecord
	decodeBody(t, rec, &members)
	assert.Len(t, members, 1)
}

func TestDeclarePresence_Rejections(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name   string
		body   interface{}
		status int
		code   string
	}{
		{"past date", map[string]string{"userId": "A", "date": day(-1), "status": "present"}, http.StatusConflict, "IMMUTABLE_HISTORY"},
		{"unknown status", map[string]string{"userId": "A", "date": day(1), "status": "sleeping"}, http.StatusBadRequest, "INVALID_DECLARATION"},
		{"bad date", map[string]string{"userId": "A", "date": "tomorrow", "status": "present"}, http.StatusBadRequest, "INVALID_DECLARATION"},
		{"malformed json", `{"userId":`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown field", `{"userId":"A","mood":"great"}`, http.StatusBadRequest, "INVALID_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/presence", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}

	rec := f.do(t, http.MethodGet, "/api/presence/"+day(0), nil)
	var summary presenceDay
	decodeBody(t, rec, &summary)
	assert.Empty(t, summary.Present)
}

func TestWeekGrid(t *testing.T) {
	f := newFixture(t, nil)
	monday := civil.DateOf(testNow).AddDays(7)

	for _, d := range []struct {
		user   string
		offset int
	}{{"A", 1}, {"B", 3}} {
		rec := f.do(t, http.MethodPost, "/api/presence", map[string]interface{}{
			"userId": d.user, "date": monday.AddDays(d.offset).String(), "status": "present", "groups": []string{},
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := f.do(t, http.MethodGet, "/api/week/"+monday.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var week []presenceDay
	decodeBody(t, rec, &week)
	require.Len(t, week, 7)
	assert.Equal(t, monday, week[0].Date)
	assert.Empty(t, week[0].Present)
	assert.Len(t, week[1].Present, 1)
	assert.Len(t, week[3].Present, 1)
	assert.Empty(t, week[1].Present[0].Groups)
}

func TestDateParam_Today(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/presence/today", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary presenceDay
	decodeBody(t, rec, &summary)
	assert.Equal(t, civil.DateOf(testNow), summary.Date)

	rec = f.do(t, http.MethodGet, "/api/presence/not-a-date", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ==========================
// Calendar
// ==========================

func TestCalendarFlow(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.engine.Start(context.Background()))

	rec := f.do(t, http.MethodPost, "/api/calendar/connect", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st models.SessionStatus
	decodeBody(t, rec, &st)
	assert.Equal(t, models.StateConnected, st.State)

	rec = f.do(t, http.MethodPost, "/api/presence", map[string]string{"userId": "B", "date": day(2), "status": "remote"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/calendar/sync/%s/B", day(2)), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var synced models.PresenceRecord
	decodeBody(t, rec, &synced)
	assert.Equal(t, models.SyncSynced, synced.SyncState)
	assert.Len(t, f.provider.Events(), 1)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/calendar/sync/%s/C", day(2)), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/calendar/retry", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"requeued":0}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/calendar/status", nil)
	decodeBody(t, rec, &st)
	assert.Equal(t, "fake", st.Provider)

	rec = f.do(t, http.MethodPost, "/api/calendar/disconnect", nil)
	decodeBody(t, rec, &st)
	assert.Equal(t, models.StateDisconnected, st.State)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/calendar/sync/%s/B", day(2)), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "SESSION_NOT_CONNECTED", errorCode(t, rec))
}

func TestCalendarDemoFallback(t *testing.T) {
	f := newFixture(t, nil)
	f.provider.RejectAuth(apperrors.NewAuthError("fake", errors.New("bad secret")))

	rec := f.do(t, http.MethodPost, "/api/calendar/connect", nil)
	var st models.SessionStatus
	decodeBody(t, rec, &st)
	require.True(t, st.Demo)

	rec = f.do(t, http.MethodPost, "/api/presence", map[string]string{"userId": "A", "date": day(1), "status": "present"})
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Eventually(t, func() bool {
		return len(f.engine.FallbackEvents()) == 1
	}, time.Second, 5*time.Millisecond)

	rec = f.do(t, http.MethodGet, "/api/calendar/fallback", nil)
	var events []models.CalendarEvent
	decodeBody(t, rec, &events)
	assert.Len(t, events, 1)

	rec = f.do(t, http.MethodGet, "/calendar/fallback.ics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "BEGIN:VEVENT")
}

// ==========================
// Error mapping
// ==========================

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{apperrors.NewInvalidDeclarationError("x"), http.StatusBadRequest},
		{apperrors.NewInvalidProfileError("x"), http.StatusBadRequest},
		{apperrors.NewConfigurationError("x"), http.StatusBadRequest},
		{apperrors.NewImmutableHistoryError("a", "2026-01-01"), http.StatusConflict},
		{apperrors.NewSessionNotConnectedError("disconnected"), http.StatusConflict},
		{apperrors.NewAuthError("p", errors.New("x")), http.StatusBadGateway},
		{apperrors.NewProviderError("p", true, errors.New("x")), http.StatusBadGateway},
		{apperrors.NewSyncError("k", 3, errors.New("x")), http.StatusBadGateway},
		{apperrors.NewStoreError("op", errors.New("x")), http.StatusServiceUnavailable},
		{apperrors.NewSyncCancelledError("k", context.Canceled), http.StatusServiceUnavailable},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, StatusFor(tt.err), tt.err.Error())
	}
}
