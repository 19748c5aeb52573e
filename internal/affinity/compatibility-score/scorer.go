// internal/affinity/compatibility-score/scorer.go
package compatibilityscore

import (
	"strings"

	"office-affinity/internal/models"
)

// Scorer computes Jaccard compatibility between profiles. It holds no mutable
// state and is safe for concurrent use.
type Scorer struct {
	config *Config
}

func NewScorer(config *Config) *Scorer {
	if config == nil {
		config = LoadConfig()
	}
	if config.MaxWorkers < 1 {
		config.MaxWorkers = 1
	}
	return &Scorer{config: config}
}

// Score returns |A∩B| / |A∪B| over each profile's interests and activities.
// The same profile always scores 1, even with no tags. Otherwise an empty
// union scores 0.
func (s *Scorer) Score(a, b models.Profile) float64 {
	sa, sb := TokenSet(a), TokenSet(b)
	if sameProfile(a, b, sa, sb) {
		return 1.0
	}
	return jaccard(sa, sb)
}

// sameProfile matches by id. Two id-less profiles are the same only when
// neither has tags, which is the one case jaccard cannot tell apart.
func sameProfile(a, b models.Profile, sa, sb map[string]struct{}) bool {
	if a.ID != b.ID {
		return false
	}
	return a.ID != "" || (len(sa) == 0 && len(sb) == 0)
}

// GroupScore is the mean pairwise score over all unordered pairs. A single
// member scores 1, an empty group 0.
func (s *Scorer) GroupScore(members []models.Profile) float64 {
	switch len(members) {
	case 0:
		return 0
	case 1:
		return 1.0
	}
	sets := make([]map[string]struct{}, len(members))
	for i, m := range members {
		sets[i] = TokenSet(m)
	}
	var sum float64
	pairs := 0
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			if sameProfile(members[i], members[j], sets[i], sets[j]) {
				sum += 1.0
			} else {
				sum += jaccard(sets[i], sets[j])
			}
			pairs++
		}
	}
	return sum / float64(pairs)
}

// TokenSet is the normalized union of a profile's interests and activities.
func TokenSet(p models.Profile) map[string]struct{} {
	set := make(map[string]struct{}, len(p.Interests)+len(p.Activities))
	for _, t := range p.Interests {
		if n := Normalize(t); n != "" {
			set[n] = struct{}{}
		}
	}
	for _, t := range p.Activities {
		if n := Normalize(t); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// Normalize trims and lower-cases a tag so "Coffee " and "coffee" match.
func Normalize(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
