package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/veris-bms/veris/internal/jobs"
)

// SettlementDigestHandler summarises a settlement batch for operators. The
// digest is a log line today; routing to email or chat hangs off this
// handler when that integration lands.
type SettlementDigestHandler struct {
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

func NewSettlementDigestHandler(logger *slog.Logger, metrics *jobmetrics.Metrics) *SettlementDigestHandler {
	return &SettlementDigestHandler{logger: logger, metrics: metrics}
}

// Handle processes TaskSettlementDigest tasks.
func (h *SettlementDigestHandler) Handle(_ context.Context, t *asynq.Task) error {
	tracker := h.metrics.Track("settlement_digest")
	var payload SettlementDigestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		tracker.End(err)
		return asynq.SkipRetry
	}
	h.logger.Info("settlement digest",
		"batch_id", payload.BatchID,
		"processed", payload.Processed,
		"total_amount", payload.TotalAmount)
	return tracker.End(nil)
}
