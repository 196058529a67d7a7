package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
)

const (
	// TaskLowStockScan flags products whose global quantity fell below minimum.
	TaskLowStockScan = "stock:lowstock_scan"
)

// LowStockScanPayload contains options for the scan.
type LowStockScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLowStockScanTask builds a new low-stock scan task.
func NewLowStockScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, body, asynq.Queue(QueueDefault)), nil
}

// LowStockLister is implemented by the inventory service.
type LowStockLister interface {
	ListBelowMinimum(ctx context.Context) ([]inventory.ProductState, error)
}

// LowStockScanJob reports products under their minimum threshold.
type LowStockScanJob struct {
	Lister  LowStockLister
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLowStockScanJob initialises the low-stock scan handler.
func NewLowStockScanJob(lister LowStockLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{Lister: lister, Logger: logger, Metrics: metrics}
}

// Handle executes the scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Lister == nil {
		return errors.New("low-stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskLowStockScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	products, err := j.Lister.ListBelowMinimum(ctx)
	if err != nil {
		resultErr = err
		logger.Error("low-stock scan failed", slog.Any("error", err))
		return resultErr
	}

	for _, p := range products {
		logger.Warn("product below minimum stock",
			slog.Int64("product_id", p.ID),
			slog.String("code", p.Code),
			slog.Int64("quantity", p.Quantity),
			slog.Int64("min_quantity", p.MinQuantity),
		)
	}
	j.metrics().SetLowStock(len(products))
	logger.Info("completed low-stock scan", slog.Int("below_minimum", len(products)))
	return resultErr
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLowStockScan))
	}
	return slog.Default().With(slog.String("job", TaskLowStockScan))
}

func (j *LowStockScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
