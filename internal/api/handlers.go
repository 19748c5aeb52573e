// internal/api/handlers.go
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"

	apperrors "office-affinity/internal/common/errors"
	"office-affinity/internal/models"
	"office-affinity/pkg/roster"
)

const maxBodyBytes = 1 << 20

type declareRequest struct {
	UserID string                `json:"userId"`
	Date   string                `json:"date"`
	Status models.PresenceStatus `json:"status"`
	Groups *[]string             `json:"groups,omitempty"`
}

type formGroupsRequest struct {
	MinSize  int            `json:"minSize"`
	MaxSize  int            `json:"maxSize"`
	Profiles []roster.Entry `json:"profiles"`
}

type presenceDay struct {
	Date    civil.Date              `json:"date"`
	Present []models.PresenceRecord `json:"present"`
	Remote  []models.PresenceRecord `json:"remote"`
	Absent  []models.PresenceRecord `json:"absent"`
}

// ==========================
// Grouping
// ==========================

func (s *Server) getGroups(w http.ResponseWriter, r *http.Request) {
	p, ok := s.engine.Groups()
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no partition formed yet")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) regroup(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.Regroup(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// formGroups runs a one-off grouping over the posted profiles without touching
// the engine's current partition.
func (s *Server) formGroups(w http.ResponseWriter, r *http.Request) {
	var req formGroupsRequest
	if !s.decode(w, r, &req) {
		return
	}
	profiles, err := (&roster.Roster{Profiles: req.Profiles}).ToProfiles()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	groups, err := s.engine.FormGroups(r.Context(), profiles, req.MinSize, req.MaxSize)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"groups": groups})
}

func (s *Server) groupPresence(w http.ResponseWriter, r *http.Request) {
	day, ok := s.dateParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, nonNilRecords(s.engine.GroupPresence(chi.URLParam(r, "groupID"), day)))
}

// ==========================
// Presence
// ==========================

func (s *Server) declarePresence(w http.ResponseWriter, r *http.Request) {
	var req declareRequest
	if !s.decode(w, r, &req) {
		return
	}
	day, err := civil.ParseDate(req.Date)
	if err != nil {
		s.fail(w, r, apperrors.NewInvalidDeclarationError("invalid date "+req.Date))
		return
	}
	var groups []string
	if req.Groups != nil {
		groups = append([]string{}, *req.Groups...)
	}
	rec, err := s.engine.DeclarePresence(r.Context(), strings.TrimSpace(req.UserID), day, req.Status, groups)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) presenceOn(w http.ResponseWriter, r *http.Request) {
	day, ok := s.dateParam(w, r)
	if !ok {
		return
	}
	if status := r.URL.Query().Get("status"); status != "" {
		var recs []models.PresenceRecord
		switch models.PresenceStatus(status) {
		case models.StatusPresent:
			recs = s.engine.PresentOn(day)
		case models.StatusRemote:
			recs = s.engine.RemoteOn(day)
		case models.StatusAbsent:
			recs = s.engine.AbsentOn(day)
		default:
			s.fail(w, r, apperrors.NewInvalidDeclarationError("unknown status "+status))
			return
		}
		writeJSON(w, http.StatusOK, nonNilRecords(recs))
		return
	}
	writeJSON(w, http.StatusOK, presenceDay{
		Date:    day,
		Present: nonNilRecords(s.engine.PresentOn(day)),
		Remote:  nonNilRecords(s.engine.RemoteOn(day)),
		Absent:  nonNilRecords(s.engine.AbsentOn(day)),
	})
}

func (s *Server) getPresence(w http.ResponseWriter, r *http.Request) {
	day, ok := s.dateParam(w, r)
	if !ok {
		return
	}
	rec, found := s.engine.Presence(chi.URLParam(r, "userID"), day)
	if !found {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no declaration for this user and date")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) weekGrid(w http.ResponseWriter, r *http.Request) {
	day, ok := s.dateParam(w, r)
	if !ok {
		return
	}
	grid := s.engine.WeekGrid(day)
	out := make([]presenceDay, 0, len(grid))
	for i := 0; i < 7; i++ {
		d := day.AddDays(i)
		var present, remote, absent []models.PresenceRecord
		for _, rec := range grid[d] {
			switch rec.Status {
			case models.StatusPresent:
				present = append(present, rec)
			case models.StatusRemote:
				remote = append(remote, rec)
			case models.StatusAbsent:
				absent = append(absent, rec)
			}
		}
		out = append(out, presenceDay{
			Date:    d,
			Present: nonNilRecords(present),
			Remote:  nonNilRecords(remote),
			Absent:  nonNilRecords(absent),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// ==========================
// Calendar
// ==========================

func (s *Server) syncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.SyncStatus())
}

func (s *Server) connectCalendar(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.ConnectCalendar(r.Context()))
}

func (s *Server) disconnectCalendar(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.DisconnectCalendar(r.Context()))
}

func (s *Server) retryFailed(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.RetryFailedSyncs(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"requeued": n})
}

func (s *Server) syncPresence(w http.ResponseWriter, r *http.Request) {
	day, ok := s.dateParam(w, r)
	if !ok {
		return
	}
	userID := chi.URLParam(r, "userID")
	if _, found := s.engine.Presence(userID, day); !found {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no declaration for this user and date")
		return
	}
	rec, err := s.engine.SyncPresence(r.Context(), userID, day)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) fallbackEvents(w http.ResponseWriter, r *http.Request) {
	events := s.engine.FallbackEvents()
	if events == nil {
		events = []models.CalendarEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) fallbackICS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="presence.ics"`)
	if err := s.engine.ExportFallbackICS(w); err != nil {
		s.logger.Error("Failed to export fallback calendar", map[string]interface{}{"error": err})
	}
}

// ==========================
// Helpers
// ==========================

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return false
	}
	return true
}

func (s *Server) dateParam(w http.ResponseWriter, r *http.Request) (civil.Date, bool) {
	raw := chi.URLParam(r, "date")
	if raw == "today" {
		return s.engine.Today(), true
	}
	day, err := civil.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid date "+raw)
		return civil.Date{}, false
	}
	return day, true
}

func nonNilRecords(recs []models.PresenceRecord) []models.PresenceRecord {
	if recs == nil {
		return []models.PresenceRecord{}
	}
	return recs
}
