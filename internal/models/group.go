// internal/models/group.go
package models

import "time"

// AffinityGroup is one group of a partition produced by a grouping pass.
// Groups are replaced wholesale by the next pass, never patched.
type AffinityGroup struct {
	ID              string        `json:"id"`
	MemberIDs       []string      `json:"memberIds"` // join order
	CommonInterests []string      `json:"commonInterests"`
	Score           float64       `json:"score"`
	Overflow        bool          `json:"overflow,omitempty"`
	SuggestedDay    *time.Weekday `json:"suggestedDay,omitempty"`
}

func (g AffinityGroup) Size() int {
	return len(g.MemberIDs)
}

// Has reports whether userID is a member.
func (g AffinityGroup) Has(userID string) bool {
	for _, id := range g.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Partition is the result of one grouping pass.
type Partition struct {
	Groups   []AffinityGroup `json:"groups"`
	MinSize  int             `json:"minSize"`
	MaxSize  int             `json:"maxSize"`
	FormedAt time.Time       `json:"formedAt"`
}

// GroupOf returns the group containing userID.
func (p Partition) GroupOf(userID string) (AffinityGroup, bool) {
	for _, g := range p.Groups {
		if g.Has(userID) {
			return g, true
		}
	}
	return AffinityGroup{}, false
}
