package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/harbor-erp/harbor-erp/internal/jobs"
	"github.com/harbor-erp/harbor-erp/internal/purchases"
)

type stubRefundService struct {
	processed []int64
	err       error
}

func (s *stubRefundService) ProcessRefund(ctx context.Context, returnID int64) error {
	if s.err != nil {
		return s.err
	}
	s.processed = append(s.processed, returnID)
	return nil
}

func newRefundTask(t *testing.T, returnID int64) *asynq.Task {
	t.Helper()
	task, err := NewRefundProcessTask(RefundProcessPayload{ReturnID: returnID})
	require.NoError(t, err)
	return task
}

func testJob(service RefundService) *RefundProcessJob {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	return NewRefundProcessJob(service, logger, metrics)
}

func TestRefundProcessJobHandle(t *testing.T) {
	service := &stubRefundService{}
	job := testJob(service)

	require.NoError(t, job.Handle(context.Background(), newRefundTask(t, 5)))
	require.Equal(t, []int64{5}, service.processed)
}

func TestRefundProcessJobInvalidPayload(t *testing.T) {
	service := &stubRefundService{}
	job := testJob(service)

	task := asynq.NewTask(TaskRefundProcess, []byte(`{broken`))
	require.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)

	data, err := json.Marshal(RefundProcessPayload{ReturnID: 0})
	require.NoError(t, err)
	task = asynq.NewTask(TaskRefundProcess, data)
	require.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)
	require.Empty(t, service.processed)
}

func TestRefundProcessJobMissingReturnSkipsRetry(t *testing.T) {
	job := testJob(&stubRefundService{err: purchases.ErrNotFound})

	require.ErrorIs(t, job.Handle(context.Background(), newRefundTask(t, 9)), asynq.SkipRetry)
}

func TestRefundProcessJobPropagatesFailures(t *testing.T) {
	cause := errors.New("eligibility check timed out")
	job := testJob(&stubRefundService{err: cause})

	require.ErrorIs(t, job.Handle(context.Background(), newRefundTask(t, 9)), cause)
}
