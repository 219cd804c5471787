package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/harbor-erp/harbor-erp/internal/jobs"
	"github.com/harbor-erp/harbor-erp/internal/purchases"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// RefundService drives a single return through its refund lifecycle.
type RefundService interface {
	ProcessRefund(ctx context.Context, returnID int64) error
}

// RefundProcessJob settles refunds for purchase returns in the background.
type RefundProcessJob struct {
	Service RefundService
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewRefundProcessJob initialises the refund processing handler.
func NewRefundProcessJob(service RefundService, logger *slog.Logger, metrics *jobmetrics.Metrics) *RefundProcessJob {
	return &RefundProcessJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the refund processing logic.
func (j *RefundProcessJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("refund process: handler not configured")
	}
	var payload RefundProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.ReturnID <= 0 {
		return asynq.SkipRetry
	}

	start := j.now()
	tracker := j.metrics().Track(TaskRefundProcess)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int64("return_id", payload.ReturnID))
	logger.Info("starting refund processing")

	if err := j.Service.ProcessRefund(ctx, payload.ReturnID); err != nil {
		resultErr = err
		j.metrics().AddRefunds("failed", 1)
		if errors.Is(err, purchases.ErrNotFound) {
			logger.Warn("return no longer exists", slog.Any("error", err))
			return asynq.SkipRetry
		}
		logger.Error("refund processing failed", slog.Any("error", err))
		return resultErr
	}

	j.metrics().AddRefunds("completed", 1)
	logger.Info("completed refund processing",
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *RefundProcessJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRefundProcess))
	}
	return slog.Default().With(slog.String("job", TaskRefundProcess))
}

func (j *RefundProcessJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *RefundProcessJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
