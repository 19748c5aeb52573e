// internal/calendar/calendar-sync/event.go
package calendarsync

import (
	"fmt"
	"time"

	"office-affinity/internal/models"
)

// EventWindow shapes the calendar event derived from a presence record.
type EventWindow struct {
	StartHour   int
	EndHour     int
	TitlePrefix string
	Location    *time.Location
}

// BuildEvent projects a presence record onto a calendar event. The result
// depends only on the record and the window.
func BuildEvent(rec models.PresenceRecord, w EventWindow) models.CalendarEvent {
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(rec.Day.Year, rec.Day.Month, rec.Day.Day, w.StartHour, 0, 0, 0, loc)
	end := time.Date(rec.Day.Year, rec.Day.Month, rec.Day.Day, w.EndHour, 0, 0, 0, loc)

	desc := fmt.Sprintf("%s is %s on %s", rec.UserID, rec.Status, rec.Day)
	if len(rec.Groups) > 0 {
		desc += fmt.Sprintf(" representing %d group(s)", len(rec.Groups))
	}

	return models.CalendarEvent{
		ID:             rec.EventID,
		IdempotencyKey: rec.Key().IdempotencyKey(),
		UserID:         rec.UserID,
		Day:            rec.Day,
		Title:          fmt.Sprintf("%s: %s (%s)", w.TitlePrefix, rec.UserID, rec.Status),
		Description:    desc,
		Start:          start,
		End:            end,
		Attendees:      []string{rec.UserID},
		Status:         rec.Status,
		Groups:         append([]string(nil), rec.Groups...),
		Revision:       rec.Revision,
	}
}
