// internal/affinity/group-former/former_test.go
package groupformer

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	compatibilityscore "office-affinity/internal/affinity/compatibility-score"
	apperrors "office-affinity/internal/common/errors"
	"office-affinity/internal/common/logger"
	"office-affinity/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func newTestFormer(t *testing.T) *Former {
	return NewFormer(compatibilityscore.NewScorer(&compatibilityscore.Config{MaxWorkers: 4}), logger.NewTestLogger(t))
}

func p(id string, interests ...string) models.Profile {
	return models.Profile{ID: id, Interests: interests}
}

var tagPool = []string{"coffee", "design", "tech", "art", "running", "chess", "music", "cooking", "hiking", "film"}

func randomPopulation(seed int64, n int) []models.Profile {
	r := rand.New(rand.NewSource(seed))
	out := make([]models.Profile, n)
	for i := range out {
		k := 1 + r.Intn(4)
		interests := make([]string, 0, k)
		for j := 0; j < k; j++ {
			interests = append(interests, tagPool[r.Intn(len(tagPool))])
		}
		out[i] = models.Profile{ID: fmt.Sprintf("user-%03d", i), Interests: interests}
	}
	return out
}

func assertPartition(t *testing.T, profiles []models.Profile, groups []models.AffinityGroup, minSize, maxSize int) {
	t.Helper()
	seen := map[string]int{}
	overflow := 0
	for _, g := range groups {
		for _, id := range g.MemberIDs {
			seen[id]++
		}
		if g.Overflow {
			overflow++
			assert.Less(t, g.Size(), minSize, "overflow group %v could have been a legal group", g.MemberIDs)
			continue
		}
		assert.GreaterOrEqual(t, g.Size(), minSize, "group %v below minSize", g.MemberIDs)
		assert.LessOrEqual(t, g.Size(), maxSize, "group %v above maxSize", g.MemberIDs)
	}
	assert.LessOrEqual(t, overflow, 1, "at most one overflow group")
	require.Len(t, seen, len(profiles))
	for _, pr := range profiles {
		assert.Equal(t, 1, seen[pr.ID], "profile %s must appear exactly once", pr.ID)
	}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestFormGroups_ExampleScenario(t *testing.T) {
	f := newTestFormer(t)
	profiles := []models.Profile{
		p("A", "coffee", "design"),
		p("B", "coffee", "tech"),
		p("C", "design", "art"),
	}

	groups, err := f.FormGroups(context.Background(), profiles, 2, 2)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, []string{"A", "B"}, groups[0].MemberIDs)
	assert.InDelta(t, 1.0/3.0, groups[0].Score, 1e-9)
	assert.Equal(t, []string{"coffee"}, groups[0].CommonInterests)
	assert.False(t, groups[0].Overflow)

	assert.Equal(t, []string{"C"}, groups[1].MemberIDs)
	assert.True(t, groups[1].Overflow)
	assert.Equal(t, 1.0, groups[1].Score)
}

func TestFormGroups_ExampleScenarioMinOne(t *testing.T) {
	f := newTestFormer(t)
	profiles := []models.Profile{
		p("A", "coffee", "design"),
		p("B", "coffee", "tech"),
		p("C", "design", "art"),
	}

	groups, err := f.FormGroups(context.Background(), profiles, 1, 2)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"A", "B"}, groups[0].MemberIDs)
	assert.Equal(t, []string{"C"}, groups[1].MemberIDs)
	assert.False(t, groups[1].Overflow, "a singleton is legal when minSize is 1")
}

func TestFormGroups_PrefersHighOverlap(t *testing.T) {
	f := newTestFormer(t)
	profiles := []models.Profile{
		p("a", "chess", "film"),
		p("b", "coffee", "running"),
		p("c", "chess", "film"),
		p("d", "coffee", "running"),
	}

	groups, err := f.FormGroups(context.Background(), profiles, 2, 2)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"a", "c"}, groups[0].MemberIDs)
	assert.Equal(t, []string{"b", "d"}, groups[1].MemberIDs)
	assert.Equal(t, 1.0, groups[0].Score)
	assert.Equal(t, []string{"chess", "film"}, groups[0].CommonInterests)
}

func TestFormGroups_UndersizedMergedIntoBestFit(t *testing.T) {
	f := newTestFormer(t)
	// e overlaps both pairs and joins the pair with the lower member key
	profiles := []models.Profile{
		p("a", "chess"),
		p("b", "chess"),
		p("c", "coffee"),
		p("d", "coffee"),
		p("e", "coffee", "chess"),
	}

	groups, err := f.FormGroups(context.Background(), profiles, 2, 3)
	require.NoError(t, err)
	assertPartition(t, profiles, groups, 2, 3)
	for _, g := range groups {
		assert.False(t, g.Overflow)
	}
}

func TestFormGroups_LeftoversFillLegalGroupsBeforeOverflow(t *testing.T) {
	f := newTestFormer(t)
	// two cliques of four that cannot merge under maxSize 5
	profiles := []models.Profile{
		p("a1", "chess"), p("a2", "chess"), p("a3", "chess"), p("a4", "chess"),
		p("b1", "coffee"), p("b2", "coffee"), p("b3", "coffee"), p("b4", "coffee"),
	}

	groups, err := f.FormGroups(context.Background(), profiles, 5, 5)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assertPartition(t, profiles, groups, 5, 5)

	assert.False(t, groups[0].Overflow)
	assert.Equal(t, 5, groups[0].Size())
	assert.Subset(t, groups[0].MemberIDs, []string{"a1", "a2", "a3", "a4"}, "the first clique stays whole")
	assert.True(t, groups[1].Overflow)
	assert.Equal(t, 3, groups[1].Size())
}

func TestFormGroups_LeftoversSplitEvenly(t *testing.T) {
	f := newTestFormer(t)
	// three disjoint pairs, none of which may join another under maxSize 3
	profiles := []models.Profile{
		p("a1", "chess"), p("a2", "chess"),
		p("b1", "coffee"), p("b2", "coffee"),
		p("c1", "film"), p("c2", "film"),
	}

	groups, err := f.FormGroups(context.Background(), profiles, 3, 3)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assertPartition(t, profiles, groups, 3, 3)
	for _, g := range groups {
		assert.False(t, g.Overflow)
	}
}

func TestChunkSizes(t *testing.T) {
	tests := []struct {
		n, min, max int
		want        []int
	}{
		{n: 8, min: 5, max: 5, want: []int{5}},
		{n: 7, min: 3, max: 5, want: []int{4, 3}},
		{n: 6, min: 3, max: 3, want: []int{3, 3}},
		{n: 2, min: 3, max: 4, want: nil},
		{n: 10, min: 2, max: 4, want: []int{4, 3, 3}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d in [%d,%d]", tt.n, tt.min, tt.max), func(t *testing.T) {
			assert.Equal(t, tt.want, chunkSizes(tt.n, tt.min, tt.max))
		})
	}
}

func TestFormGroups_Validation(t *testing.T) {
	f := newTestFormer(t)

	tests := []struct {
		name     string
		profiles []models.Profile
		min, max int
		code     apperrors.ErrorCode
	}{
		{"min above max", []models.Profile{p("a")}, 3, 2, apperrors.ErrCodeConfiguration},
		{"zero max", []models.Profile{p("a")}, 0, 0, apperrors.ErrCodeConfiguration},
		{"config checked before empty input", nil, 5, 1, apperrors.ErrCodeConfiguration},
		{"duplicate id", []models.Profile{p("a"), p("a")}, 1, 2, apperrors.ErrCodeInvalidProfile},
		{"empty id", []models.Profile{p(" ")}, 1, 2, apperrors.ErrCodeInvalidProfile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups, err := f.FormGroups(context.Background(), tt.profiles, tt.min, tt.max)
			require.Error(t, err)
			assert.Nil(t, groups, "no partial list on failure")
			assert.Equal(t, tt.code, apperrors.CodeOf(err))
		})
	}
}

func TestFormGroups_EmptyInput(t *testing.T) {
	groups, err := newTestFormer(t).FormGroups(context.Background(), nil, 2, 4)
	require.NoError(t, err)
	assert.NotNil(t, groups)
	assert.Empty(t, groups)
}

func TestFormGroups_PartitionProperty(t *testing.T) {
	f := newTestFormer(t)

	bounds := []struct{ min, max int }{{1, 1}, {2, 2}, {2, 3}, {2, 4}, {3, 5}, {4, 4}}
	for seed := int64(1); seed <= 5; seed++ {
		for _, b := range bounds {
			for _, n := range []int{1, 2, 7, 13, 30} {
				t.Run(fmt.Sprintf("seed%d_n%d_%d-%d", seed, n, b.min, b.max), func(t *testing.T) {
					profiles := randomPopulation(seed, n)
					groups, err := f.FormGroups(context.Background(), profiles, b.min, b.max)
					require.NoError(t, err)
					assertPartition(t, profiles, groups, b.min, b.max)
				})
			}
		}
	}
}

func TestFormGroups_Deterministic(t *testing.T) {
	f := newTestFormer(t)
	profiles := randomPopulation(42, 25)

	first, err := f.FormGroups(context.Background(), profiles, 2, 4)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		again, err := f.FormGroups(context.Background(), profiles, 2, 4)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	shuffled := append([]models.Profile(nil), profiles...)
	rand.New(rand.NewSource(7)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	reordered, err := f.FormGroups(context.Background(), shuffled, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, first, reordered, "input order must not matter")
}

func TestFormGroups_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	groups, err := newTestFormer(t).FormGroups(ctx, randomPopulation(3, 10), 2, 3)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, groups)
}

func TestGroupID_IndependentOfOrder(t *testing.T) {
	assert.Equal(t, GroupID([]string{"b", "a"}), GroupID([]string{"a", "b"}))
	assert.NotEqual(t, GroupID([]string{"a", "b"}), GroupID([]string{"a", "c"}))
}

func TestSuggestedDay(t *testing.T) {
	members := []models.Profile{
		{ID: "a", PreferredDays: []time.Weekday{time.Tuesday, time.Thursday}},
		{ID: "b", PreferredDays: []time.Weekday{time.Thursday, time.Tuesday}},
		{ID: "c", PreferredDays: []time.Weekday{time.Friday}},
	}
	day := SuggestedDay(members)
	require.NotNil(t, day)
	assert.Equal(t, time.Tuesday, *day, "ties resolve to the earliest weekday")

	assert.Nil(t, SuggestedDay([]models.Profile{{ID: "x"}}))

	sunday := SuggestedDay([]models.Profile{
		{ID: "a", PreferredDays: []time.Weekday{time.Sunday, time.Monday}},
	})
	require.NotNil(t, sunday)
	assert.Equal(t, time.Monday, *sunday, "weeks start on Monday")
}

func TestCommonInterests(t *testing.T) {
	got := CommonInterests([]models.Profile{
		p("a", "Coffee", "art", "chess"),
		p("b", "coffee ", "chess"),
		{ID: "c", Interests: []string{"chess", "coffee"}, Activities: []string{"art"}},
	})
	assert.Equal(t, []string{"chess", "coffee"}, got)
	assert.Equal(t, []string{}, CommonInterests(nil))
}
