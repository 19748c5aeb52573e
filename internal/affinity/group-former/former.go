// internal/affinity/group-former/former.go
package groupformer

import (
	"container/heap"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	compatibilityscore "office-affinity/internal/affinity/compatibility-score"
	apperrors "office-affinity/internal/common/errors"
	"office-affinity/internal/common/logger"
	"office-affinity/internal/models"
)

// groupNamespace scopes the name-based group ids.
var groupNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:office-affinity:group"))

// Former partitions profiles into affinity groups. It keeps no state between
// passes.
type Former struct {
	scorer *compatibilityscore.Scorer
	logger logger.Logger
}

func NewFormer(scorer *compatibilityscore.Scorer, log logger.Logger) *Former {
	if scorer == nil {
		scorer = compatibilityscore.NewScorer(nil)
	}
	return &Former{
		scorer: scorer,
		logger: logger.ForComponent(log, "group-former"),
	}
}

// FormGroups runs one greedy agglomerative pass. Every profile ends up in
// exactly one group; every group is within [minSize, maxSize] except at most
// one group flagged Overflow, which is smaller than minSize. Output is
// deterministic for the same input.
func (f *Former) FormGroups(ctx context.Context, profiles []models.Profile, minSize, maxSize int) ([]models.AffinityGroup, error) {
	if err := (Config{MinSize: minSize, MaxSize: maxSize}).Validate(); err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return []models.AffinityGroup{}, nil
	}

	sorted, err := sortedProfiles(profiles)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	matrix, err := f.scorer.Matrix(ctx, sorted)
	if err != nil {
		return nil, err
	}

	p := newPass(sorted, matrix)
	if err := p.agglomerate(ctx, maxSize); err != nil {
		return nil, err
	}
	if err := p.placeUndersized(ctx, minSize, maxSize); err != nil {
		return nil, err
	}

	groups := p.finish(f.scorer)

	f.logger.Debug("groups formed", map[string]interface{}{
		"profiles": len(sorted),
		"groups":   len(groups),
		"minSize":  minSize,
		"maxSize":  maxSize,
		"duration": time.Since(start).String(),
	})
	return groups, nil
}

func sortedProfiles(profiles []models.Profile) ([]models.Profile, error) {
	seen := make(map[string]struct{}, len(profiles))
	out := make([]models.Profile, len(profiles))
	for i, p := range profiles {
		if strings.TrimSpace(p.ID) == "" {
			return nil, apperrors.NewInvalidProfileError(fmt.Sprintf("profile at index %d has an empty id", i))
		}
		if _, dup := seen[p.ID]; dup {
			return nil, apperrors.NewInvalidProfileError(fmt.Sprintf("duplicate profile id %q", p.ID))
		}
		seen[p.ID] = struct{}{}
		out[i] = p
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// pass is the mutable working state of one FormGroups call.
type pass struct {
	profiles []models.Profile
	ids      []string
	clusters []*cluster
	cross    [][]float64 // cross[a][b]: sum of scores between clusters a and b
	overflow map[int]bool
}

func newPass(profiles []models.Profile, m *compatibilityscore.Matrix) *pass {
	n := len(profiles)
	p := &pass{
		profiles: profiles,
		ids:      make([]string, n),
		clusters: make([]*cluster, n),
		cross:    make([][]float64, n),
		overflow: map[int]bool{},
	}
	for i := range profiles {
		p.ids[i] = profiles[i].ID
		p.clusters[i] = &cluster{members: []int{i}, alive: true}
		p.cross[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			if i != j {
				p.cross[i][j] = m.At(i, j)
			}
		}
	}
	return p
}

func (p *pass) candidate(a, b int) candidate {
	if a > b {
		a, b = b, a
	}
	ca, cb := p.clusters[a], p.clusters[b]
	return candidate{
		a:     a,
		b:     b,
		score: mergedScore(ca, cb, p.cross[a][b]),
		key:   mergeKey(p.ids, ca.members, cb.members),
		verA:  ca.version,
		verB:  cb.version,
	}
}

func (p *pass) stale(c candidate) bool {
	ca, cb := p.clusters[c.a], p.clusters[c.b]
	return !ca.alive || !cb.alive || ca.version != c.verA || cb.version != c.verB
}

// absorb merges src into dst. dst keeps its members first.
func (p *pass) absorb(dst, src int) {
	d, s := p.clusters[dst], p.clusters[src]
	d.pairSum += s.pairSum + p.cross[dst][src]
	d.members = append(d.members, s.members...)
	d.version++
	s.alive = false
	s.members = nil
	for k := range p.clusters {
		if k == dst || k == src {
			continue
		}
		p.cross[dst][k] += p.cross[src][k]
		p.cross[k][dst] = p.cross[dst][k]
	}
}

// agglomerate repeatedly merges the best legal pair until none remains.
// Stale heap entries are skipped on pop.
func (p *pass) agglomerate(ctx context.Context, maxSize int) error {
	h := &candidateHeap{}
	n := len(p.clusters)
	if maxSize >= 2 {
		for a := 0; a < n; a++ {
			for b := a + 1; b < n; b++ {
				*h = append(*h, p.candidate(a, b))
			}
		}
	}
	heap.Init(h)

	for h.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		c := heap.Pop(h).(candidate)
		if p.stale(c) {
			continue
		}
		if len(p.clusters[c.a].members)+len(p.clusters[c.b].members) > maxSize {
			continue
		}

		p.absorb(c.a, c.b)

		merged := p.clusters[c.a]
		if len(merged.members) >= maxSize {
			continue
		}
		for k, other := range p.clusters {
			if k == c.a || !other.alive {
				continue
			}
			if len(merged.members)+len(other.members) <= maxSize {
				heap.Push(h, p.candidate(c.a, k))
			}
		}
	}
	return nil
}

// placeUndersized folds groups below minSize into their best-fitting group,
// smallest first. Groups that fit nowhere are repacked by packLeftovers.
func (p *pass) placeUndersized(ctx context.Context, minSize, maxSize int) error {
	unplaceable := map[int]bool{}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		u := p.nextUndersized(minSize, unplaceable)
		if u < 0 {
			break
		}

		best := -1
		var bestCand candidate
		for k, other := range p.clusters {
			if k == u || !other.alive {
				continue
			}
			if len(other.members)+len(p.clusters[u].members) > maxSize {
				continue
			}
			c := p.candidate(u, k)
			if best < 0 || better(c, bestCand) {
				best, bestCand = k, c
			}
		}

		if best < 0 {
			unplaceable[u] = true
			continue
		}
		p.absorb(best, u)
		// the target may now be complete or still undersized; either way a
		// group that failed to fit before still cannot fit.
	}

	leftovers := make([]int, 0, len(unplaceable))
	for u := range unplaceable {
		if p.clusters[u].alive {
			leftovers = append(leftovers, u)
		}
	}
	if len(leftovers) == 0 {
		return nil
	}
	p.packLeftovers(leftovers, minSize, maxSize)
	return nil
}

// packLeftovers regroups the members of clusters that fit nowhere into as
// many legal groups as they can fill. Larger clusters come first so they stay
// whole where possible. Only members left over after that form the overflow
// group. Each leftover is below minSize, so there are always more leftover
// slots than groups to fill.
func (p *pass) packLeftovers(leftovers []int, minSize, maxSize int) {
	sort.Slice(leftovers, func(i, j int) bool {
		a, b := p.clusters[leftovers[i]], p.clusters[leftovers[j]]
		if len(a.members) != len(b.members) {
			return len(a.members) > len(b.members)
		}
		return mergeKey(p.ids, a.members, nil) < mergeKey(p.ids, b.members, nil)
	})
	var pool []int
	for _, u := range leftovers {
		pool = append(pool, p.clusters[u].members...)
	}

	chunks := chunkSizes(len(pool), minSize, maxSize)
	slots := append([]int(nil), leftovers...)
	sort.Ints(slots)
	for i, u := range slots {
		c := p.clusters[u]
		c.version++
		if i > len(chunks) || (i == len(chunks) && len(pool) == 0) {
			c.alive = false
			c.members = nil
			continue
		}
		size := len(pool)
		if i < len(chunks) {
			size = chunks[i]
		} else {
			p.overflow[u] = true
		}
		c.members = append([]int(nil), pool[:size]...)
		c.alive = true
		pool = pool[size:]
	}
}

// chunkSizes splits n members into the fewest groups within [minSize,
// maxSize], as evenly as possible. Members that cannot be covered are left
// for the caller.
func chunkSizes(n, minSize, maxSize int) []int {
	most := n / minSize
	if most == 0 {
		return nil
	}
	if n > most*maxSize {
		sizes := make([]int, most)
		for i := range sizes {
			sizes[i] = maxSize
		}
		return sizes
	}
	k := (n + maxSize - 1) / maxSize
	sizes := make([]int, k)
	for i := range sizes {
		sizes[i] = n / k
		if i < n%k {
			sizes[i]++
		}
	}
	return sizes
}

// nextUndersized returns the smallest live undersized cluster not yet known
// to be unplaceable, ties broken by member key, or -1.
func (p *pass) nextUndersized(minSize int, skip map[int]bool) int {
	pick := -1
	var pickKey string
	for i, c := range p.clusters {
		if !c.alive || skip[i] || len(c.members) >= minSize {
			continue
		}
		key := mergeKey(p.ids, c.members, nil)
		if pick < 0 ||
			len(c.members) < len(p.clusters[pick].members) ||
			(len(c.members) == len(p.clusters[pick].members) && key < pickKey) {
			pick, pickKey = i, key
		}
	}
	return pick
}

// finish converts live clusters to groups ordered by lowest member id with
// the overflow group last.
func (p *pass) finish(scorer *compatibilityscore.Scorer) []models.AffinityGroup {
	type entry struct {
		group  models.AffinityGroup
		lowest int
	}
	entries := make([]entry, 0, len(p.clusters))
	for i, c := range p.clusters {
		if !c.alive {
			continue
		}
		members := make([]models.Profile, len(c.members))
		memberIDs := make([]string, len(c.members))
		lowest := c.members[0]
		for j, idx := range c.members {
			members[j] = p.profiles[idx]
			memberIDs[j] = p.ids[idx]
			if idx < lowest {
				lowest = idx
			}
		}
		entries = append(entries, entry{
			lowest: lowest,
			group: models.AffinityGroup{
				ID:              GroupID(memberIDs),
				MemberIDs:       memberIDs,
				CommonInterests: CommonInterests(members),
				Score:           scorer.GroupScore(members),
				Overflow:        p.overflow[i],
				SuggestedDay:    SuggestedDay(members),
			},
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].group.Overflow != entries[j].group.Overflow {
			return !entries[i].group.Overflow
		}
		return entries[i].lowest < entries[j].lowest
	})

	groups := make([]models.AffinityGroup, len(entries))
	for i, e := range entries {
		groups[i] = e.group
	}
	return groups
}

// GroupID derives a stable id from the member set, independent of join order.
func GroupID(memberIDs []string) string {
	ids := append([]string(nil), memberIDs...)
	sort.Strings(ids)
	return uuid.NewSHA1(groupNamespace, []byte(strings.Join(ids, ","))).String()
}

// CommonInterests is the sorted intersection of all members' normalized
// interests. Activities are not included.
func CommonInterests(members []models.Profile) []string {
	if len(members) == 0 {
		return []string{}
	}
	counts := map[string]int{}
	for _, m := range members {
		seen := map[string]struct{}{}
		for _, t := range m.Interests {
			n := compatibilityscore.Normalize(t)
			if n == "" {
				continue
			}
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			counts[n]++
		}
	}
	out := []string{}
	for t, c := range counts {
		if c == len(members) {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// weekOrder starts the week on Monday for tie-breaking.
var weekOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday,
}

// SuggestedDay is the weekday most members prefer, earliest in a Monday-first
// week on ties, or nil when nobody states a preference.
func SuggestedDay(members []models.Profile) *time.Weekday {
	votes := map[time.Weekday]int{}
	for _, m := range members {
		seen := map[time.Weekday]bool{}
		for _, d := range m.PreferredDays {
			if d < time.Sunday || d > time.Saturday || seen[d] {
				continue
			}
			seen[d] = true
			votes[d]++
		}
	}
	var best *time.Weekday
	bestVotes := 0
	for _, d := range weekOrder {
		if votes[d] > bestVotes {
			day := d
			best, bestVotes = &day, votes[d]
		}
	}
	return best
}
