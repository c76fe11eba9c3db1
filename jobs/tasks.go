package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTierScan is the periodic commission tier overlap scan.
	TaskTierScan = "tier:scan"
	// TaskSettlementDigest summarises a finished settlement batch.
	TaskSettlementDigest = "settlement:digest"
)

// SettlementDigestPayload describes one finished settlement batch.
type SettlementDigestPayload struct {
	BatchID     string  `json:"batchId"`
	Processed   int     `json:"processed"`
	TotalAmount float64 `json:"totalAmount"`
}

// NewTierScanTask constructs the overlap-scan task. The scan takes no
// parameters; it walks every entity.
func NewTierScanTask() *asynq.Task {
	return asynq.NewTask(TaskTierScan, nil)
}

// NewSettlementDigestTask constructs a digest task for a batch.
func NewSettlementDigestTask(payload SettlementDigestPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSettlementDigest, data), nil
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueSettlementDigest satisfies the invoice service's digest hook.
func (c *Client) EnqueueSettlementDigest(ctx context.Context, batchID string, processed int, totalAmount float64) error {
	task, err := NewSettlementDigestTask(SettlementDigestPayload{
		BatchID:     batchID,
		Processed:   processed,
		TotalAmount: totalAmount,
	})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
