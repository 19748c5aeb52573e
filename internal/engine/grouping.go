// internal/engine/grouping.go
package engine

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	apperrors "office-affinity/internal/common/errors"
	"office-affinity/internal/common/metrics"
	"office-affinity/internal/models"
)

// FormGroups partitions profiles without touching the stored partition.
func (e *Engine) FormGroups(ctx context.Context, profiles []models.Profile, minSize, maxSize int) ([]models.AffinityGroup, error) {
	ctx, span := e.obs.StartSpan(ctx, "affinity.form_groups",
		attribute.Int("profiles", len(profiles)),
		attribute.Int("min_size", minSize),
		attribute.Int("max_size", maxSize),
	)
	defer span.End()

	start := e.now()
	groups, err := e.former.FormGroups(ctx, profiles, minSize, maxSize)
	elapsed := e.now().Sub(start)

	if err != nil {
		metrics.GroupingRuns.WithLabelValues(outcomeLabel(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	metrics.GroupingRuns.WithLabelValues("success").Inc()
	metrics.GroupingDuration.Observe(elapsed.Seconds())
	e.obs.RecordGrouping(ctx, elapsed, len(groups))
	return groups, nil
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case apperrors.CodeOf(err) != "":
		return string(apperrors.CodeOf(err))
	default:
		return "error"
	}
}

// Regroup reads the catalog and replaces the stored partition. On failure
// the previous partition stays in place.
func (e *Engine) Regroup(ctx context.Context) (models.Partition, error) {
	if e.catalog == nil {
		return models.Partition{}, apperrors.NewConfigurationError("no profile catalog configured")
	}
	e.regroupMu.Lock()
	defer e.regroupMu.Unlock()

	profiles, err := e.catalog.ListProfiles(ctx)
	if err != nil {
		metrics.GroupingRuns.WithLabelValues(outcomeLabel(err)).Inc()
		return models.Partition{}, err
	}
	groups, err := e.FormGroups(ctx, profiles, e.config.MinSize, e.config.MaxSize)
	if err != nil {
		return models.Partition{}, err
	}

	p := models.Partition{
		Groups:   groups,
		MinSize:  e.config.MinSize,
		MaxSize:  e.config.MaxSize,
		FormedAt: e.now().UTC(),
	}
	e.mu.Lock()
	e.partition = &p
	e.mu.Unlock()
	metrics.GroupsFormed.Set(float64(len(groups)))

	e.logger.Info("groups recomputed", map[string]interface{}{
		"profiles": len(profiles),
		"groups":   len(groups),
	})
	return clonePartition(p), nil
}

// Groups returns a copy of the latest partition.
func (e *Engine) Groups() (models.Partition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.partition == nil {
		return models.Partition{}, false
	}
	return clonePartition(*e.partition), true
}

func clonePartition(p models.Partition) models.Partition {
	out := p
	out.Groups = make([]models.AffinityGroup, len(p.Groups))
	for i, g := range p.Groups {
		c := g
		c.MemberIDs = append([]string(nil), g.MemberIDs...)
		c.CommonInterests = append([]string(nil), g.CommonInterests...)
		if g.SuggestedDay != nil {
			d := *g.SuggestedDay
			c.SuggestedDay = &d
		}
		out.Groups[i] = c
	}
	return out
}
