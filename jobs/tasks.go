package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRefundProcess is the task type for processing a return refund.
	TaskRefundProcess = "refund:process"
)

// RefundProcessPayload identifies the purchase return to refund.
type RefundProcessPayload struct {
	ReturnID int64 `json:"return_id"`
}

// NewRefundProcessTask constructs an Asynq task for refund processing.
func NewRefundProcessTask(payload RefundProcessPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRefundProcess, data), nil
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	client := asynq.NewClient(redisOpts)
	return &Client{client: client}, nil
}

// EnqueueRefundProcess enqueues a refund-process task for the given return.
// The task is retried by the queue on transient failures; refund processing
// itself is idempotent so a duplicate delivery is harmless.
func (c *Client) EnqueueRefundProcess(ctx context.Context, returnID int64) error {
	task, err := NewRefundProcessTask(RefundProcessPayload{ReturnID: returnID})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(5))
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
