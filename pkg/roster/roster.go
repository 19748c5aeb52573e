// pkg/roster/roster.go
package roster

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "office-affinity/internal/common/errors"
	"office-affinity/internal/models"
)

// Load reads and validates a roster file.
func Load(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse validates data against the roster schema and decodes it. Schema
// violations are INVALID_PROFILE errors listing every offending field.
func Parse(data []byte) (*Roster, error) {
	res, err := schema.ValidateBytes(data)
	if err != nil {
		return nil, apperrors.NewInvalidProfileError(err.Error())
	}
	if !res.Valid {
		return nil, apperrors.NewInvalidProfileError(strings.Join(res.GetErrorMessages(), "; "))
	}

	var r Roster
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, apperrors.NewInvalidProfileError(err.Error())
	}
	return &r, nil
}

// ToProfiles converts entries into core profiles. Duplicate ids are
// rejected here so every catalog source shares the rule.
func (r *Roster) ToProfiles() ([]models.Profile, error) {
	seen := make(map[string]struct{}, len(r.Profiles))
	out := make([]models.Profile, 0, len(r.Profiles))
	for i, e := range r.Profiles {
		id := strings.TrimSpace(e.ID)
		if _, dup := seen[id]; dup {
			return nil, apperrors.NewInvalidProfileError(fmt.Sprintf("duplicate profile id %q", id))
		}
		seen[id] = struct{}{}

		days, err := models.ParseWeekdays(e.PreferredDays)
		if err != nil {
			return nil, apperrors.NewInvalidProfileError(fmt.Sprintf("profiles[%d]: %v", i, err))
		}
		out = append(out, models.Profile{
			ID:            id,
			DisplayName:   e.DisplayName,
			Interests:     e.Interests,
			Activities:    e.Activities,
			PreferredDays: days,
		})
	}
	return out, nil
}

// FromProfiles builds a roster document, e.g. to snapshot a database catalog.
func FromProfiles(version string, profiles []models.Profile) *Roster {
	r := &Roster{Version: version, Profiles: make([]Entry, 0, len(profiles))}
	for _, p := range profiles {
		r.Profiles = append(r.Profiles, Entry{
			ID:            p.ID,
			DisplayName:   p.DisplayName,
			Interests:     nonNil(p.Interests),
			Activities:    nonNil(p.Activities),
			PreferredDays: models.WeekdayNames(p.PreferredDays),
		})
	}
	return r
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Save validates the roster and writes it as indented JSON, creating the
// parent directory if needed.
func (r *Roster) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal roster: %w", err)
	}
	if _, err := Parse(data); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write roster file: %w", err)
	}
	return nil
}

// Find returns the entry with id, or nil.
func (r *Roster) Find(id string) *Entry {
	for i := range r.Profiles {
		if r.Profiles[i].ID == id {
			return &r.Profiles[i]
		}
	}
	return nil
}

// Add appends e, rejecting an id already present.
func (r *Roster) Add(e Entry) error {
	e.ID = strings.TrimSpace(e.ID)
	if e.ID == "" {
		return apperrors.NewInvalidProfileError("profile id is required")
	}
	if r.Find(e.ID) != nil {
		return apperrors.NewInvalidProfileError(fmt.Sprintf("profile %q already exists", e.ID))
	}
	e.Interests = nonNil(e.Interests)
	e.Activities = nonNil(e.Activities)
	r.Profiles = append(r.Profiles, e)
	return nil
}
