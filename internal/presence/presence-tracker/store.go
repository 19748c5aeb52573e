// internal/presence/presence-tracker/store.go
package presencetracker

import (
	"sort"

	"cloud.google.com/go/civil"

	"office-affinity/internal/models"
)

// store is the in-process presence state. It is not safe for concurrent use;
// the Tracker serializes all access.
type store struct {
	records map[models.PresenceKey]*models.PresenceRecord
	byDay   map[civil.Date]map[string]struct{}
}

func newStore() *store {
	return &store{
		records: make(map[models.PresenceKey]*models.PresenceRecord),
		byDay:   make(map[civil.Date]map[string]struct{}),
	}
}

func (s *store) get(key models.PresenceKey) (*models.PresenceRecord, bool) {
	r, ok := s.records[key]
	return r, ok
}

func (s *store) put(r *models.PresenceRecord) {
	key := r.Key()
	s.records[key] = r
	users, ok := s.byDay[key.Day]
	if !ok {
		users = make(map[string]struct{})
		s.byDay[key.Day] = users
	}
	users[key.UserID] = struct{}{}
}

func (s *store) len() int {
	return len(s.records)
}

// onDay returns copies of the day's records accepted by keep, sorted by user.
func (s *store) onDay(day civil.Date, keep func(*models.PresenceRecord) bool) []models.PresenceRecord {
	users := s.byDay[day]
	out := make([]models.PresenceRecord, 0, len(users))
	for userID := range users {
		r := s.records[models.PresenceKey{UserID: userID, Day: day}]
		if keep == nil || keep(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// all returns copies of every record accepted by keep, ordered by day then user.
func (s *store) all(keep func(*models.PresenceRecord) bool) []models.PresenceRecord {
	out := make([]models.PresenceRecord, 0)
	for _, r := range s.records {
		if keep == nil || keep(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day.Before(out[j].Day)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}
