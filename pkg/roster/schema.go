// pkg/roster/schema.go
package roster

import "office-affinity/internal/common/validation"

// Roster is the on-disk profile list read by the file catalog.
type Roster struct {
	Version     string  `json:"version"`
	LastUpdated string  `json:"lastUpdated,omitempty"`
	Profiles    []Entry `json:"profiles"`
}

type Entry struct {
	ID            string   `json:"id"`
	DisplayName   string   `json:"displayName,omitempty"`
	Interests     []string `json:"interests"`
	Activities    []string `json:"activities"`
	PreferredDays []string `json:"preferredDays,omitempty"`
}

const rosterSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["version", "profiles"],
	"properties": {
		"version": {"type": "string", "minLength": 1},
		"lastUpdated": {"type": "string"},
		"profiles": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id"],
				"additionalProperties": false,
				"properties": {
					"id": {"type": "string", "pattern": "\\S"},
					"displayName": {"type": "string"},
					"interests": {"type": "array", "items": {"type": "string"}},
					"activities": {"type": "array", "items": {"type": "string"}},
					"preferredDays": {
						"type": "array",
						"items": {
							"type": "string",
							"pattern": "^(?i)(mon|tue|wed|thu|fri|sat|sun)[a-z]*$"
						}
					}
				}
			}
		}
	}
}`

var schema = validation.MustCompile(rosterSchema)
