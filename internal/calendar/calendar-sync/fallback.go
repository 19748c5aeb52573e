// internal/calendar/calendar-sync/fallback.go
package calendarsync

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"office-affinity/internal/models"
)

var fallbackNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:office-affinity:fallback-event"))

// FallbackCalendar is the local stand-in for the provider in demo mode.
// Events are keyed by idempotency key, so re-syncing a key replaces its event.
type FallbackCalendar struct {
	mu     sync.RWMutex
	events map[string]models.CalendarEvent
	now    func() time.Time
}

func NewFallbackCalendar() *FallbackCalendar {
	return &FallbackCalendar{
		events: make(map[string]models.CalendarEvent),
		now:    time.Now,
	}
}

// Upsert stores ev and returns its stable local id.
func (f *FallbackCalendar) Upsert(ev models.CalendarEvent) string {
	ev.ID = "local-" + uuid.NewSHA1(fallbackNamespace, []byte(ev.IdempotencyKey)).String()
	f.mu.Lock()
	f.events[ev.IdempotencyKey] = ev
	f.mu.Unlock()
	return ev.ID
}

func (f *FallbackCalendar) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.events)
}

// Events returns every local event ordered by start time then user.
func (f *FallbackCalendar) Events() []models.CalendarEvent {
	f.mu.RLock()
	out := make([]models.CalendarEvent, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev)
	}
	f.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// ExportICS writes the local events as an iCalendar feed.
func (f *FallbackCalendar) ExportICS(w io.Writer, name string) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//office-affinity//presence fallback//EN")
	if name != "" {
		cal.SetXWRCalName(name)
	}

	stamp := f.now().UTC()
	for _, ev := range f.Events() {
		vev := cal.AddEvent(ev.ID)
		vev.SetDtStampTime(stamp)
		vev.SetStartAt(ev.Start)
		vev.SetEndAt(ev.End)
		vev.SetSummary(ev.Title)
		if ev.Description != "" {
			vev.SetDescription(ev.Description)
		}
		for _, a := range ev.Attendees {
			vev.AddAttendee(a)
		}
	}

	if err := cal.SerializeTo(w); err != nil {
		return fmt.Errorf("serialize fallback calendar: %w", err)
	}
	return nil
}
