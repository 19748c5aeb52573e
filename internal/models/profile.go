// internal/models/profile.go
package models

import (
	"fmt"
	"strings"
	"time"
)

// Profile is a colleague profile as read from the catalog. The engine never
// mutates profiles.
type Profile struct {
	ID            string         `json:"id" db:"id"`
	DisplayName   string         `json:"displayName,omitempty" db:"display_name"`
	Interests     []string       `json:"interests" db:"interests"`
	Activities    []string       `json:"activities" db:"activities"`
	PreferredDays []time.Weekday `json:"preferredDays,omitempty" db:"preferred_days"`
}

// ParseWeekday accepts full or three-letter English day names, any case.
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}

// ParseWeekdays parses every name, failing on the first unknown one.
func ParseWeekdays(names []string) ([]time.Weekday, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]time.Weekday, 0, len(names))
	for _, n := range names {
		d, err := ParseWeekday(n)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// WeekdayNames is the inverse of ParseWeekdays, using lower-case names.
func WeekdayNames(days []time.Weekday) []string {
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, strings.ToLower(d.String()))
	}
	return out
}
