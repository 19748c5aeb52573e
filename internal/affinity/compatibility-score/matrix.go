// internal/affinity/compatibility-score/matrix.go
package compatibilityscore

import (
	"context"

	"golang.org/x/sync/errgroup"

	"office-affinity/internal/models"
)

// Matrix holds pairwise scores for a fixed, ordered slice of profiles.
type Matrix struct {
	scores [][]float64
}

func (m *Matrix) Len() int {
	return len(m.scores)
}

// At returns the score between profiles i and j.
func (m *Matrix) At(i, j int) float64 {
	return m.scores[i][j]
}

// Matrix fills the symmetric score matrix, one row per goroutine, bounded by
// MaxWorkers. Cancelling ctx aborts the build.
func (s *Scorer) Matrix(ctx context.Context, profiles []models.Profile) (*Matrix, error) {
	n := len(profiles)
	sets := make([]map[string]struct{}, n)
	for i, p := range profiles {
		sets[i] = TokenSet(p)
	}

	scores := make([][]float64, n)
	for i := range scores {
		scores[i] = make([]float64, n)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxWorkers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// row i owns the cells (i, j>=i) and mirrors them; no cell is
			// written by two goroutines.
			scores[i][i] = 1.0
			for j := i + 1; j < n; j++ {
				var v float64
				if sameProfile(profiles[i], profiles[j], sets[i], sets[j]) {
					v = 1.0
				} else {
					v = jaccard(sets[i], sets[j])
				}
				scores[i][j] = v
				scores[j][i] = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Matrix{scores: scores}, nil
}
