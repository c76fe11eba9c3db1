package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/veris-bms/veris/internal/commission"
	jobmetrics "github.com/veris-bms/veris/internal/jobs"
)

// TierScanHandler reports overlapping commission tier ranges. Overlap is not
// rejected at write time; this scan surfaces it for operator review.
type TierScanHandler struct {
	repo    commission.Repository
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

func NewTierScanHandler(repo commission.Repository, logger *slog.Logger, metrics *jobmetrics.Metrics) *TierScanHandler {
	return &TierScanHandler{repo: repo, logger: logger, metrics: metrics}
}

// Handle processes TaskTierScan tasks.
func (h *TierScanHandler) Handle(ctx context.Context, _ *asynq.Task) error {
	tracker := h.metrics.Track("tier_scan")
	pairs, err := h.repo.ListOverlapping(ctx)
	if err != nil {
		return tracker.End(err)
	}

	byType := map[string]int{}
	for _, pair := range pairs {
		a, b := pair[0], pair[1]
		byType[string(a.EntityType)]++
		h.logger.Warn("overlapping commission tiers",
			"entity_type", a.EntityType, "entity_id", a.EntityID,
			"tier_a", a.ID, "tier_b", b.ID,
			"range_a_min", a.MinAmount, "range_b_min", b.MinAmount)
	}
	for entityType, count := range byType {
		h.metrics.AddOverlaps(entityType, count)
	}
	h.logger.Info("tier overlap scan finished", "overlapping_pairs", len(pairs))
	return tracker.End(nil)
}
