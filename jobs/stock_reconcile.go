package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
)

const (
	// TaskStockReconcile recomputes every warehouse total from the ledger.
	TaskStockReconcile = "stock:reconcile"
)

// StockReconcilePayload carries scheduling metadata.
type StockReconcilePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewStockReconcileTask constructs an Asynq task for the nightly sweep.
func NewStockReconcileTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(StockReconcilePayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockReconcile, body, asynq.Queue(QueueDefault)), nil
}

// Reconciler is implemented by the inventory service.
type Reconciler interface {
	ReconcileAllWarehouses(ctx context.Context) ([]int64, error)
}

// StockReconcileJob sweeps all warehouses and repairs drifted totals.
type StockReconcileJob struct {
	Reconciler Reconciler
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewStockReconcileJob initialises the reconciliation handler.
func NewStockReconcileJob(reconciler Reconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockReconcileJob {
	return &StockReconcileJob{Reconciler: reconciler, Logger: logger, Metrics: metrics}
}

// Handle executes the reconciliation sweep.
func (j *StockReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reconciler == nil {
		return errors.New("stock reconcile: handler not configured")
	}
	var payload StockReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskStockReconcile)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting stock reconciliation sweep")

	start := time.Now()
	drifted, err := j.Reconciler.ReconcileAllWarehouses(ctx)
	if err != nil {
		resultErr = err
		logger.Error("reconciliation sweep failed", slog.Any("error", err))
		return resultErr
	}

	for _, warehouseID := range drifted {
		logger.Warn("warehouse total repaired", slog.Int64("warehouse_id", warehouseID))
		j.metrics().AddDriftRepairs(warehouseID, 1)
	}
	logger.Info("completed stock reconciliation sweep",
		slog.Int("repaired", len(drifted)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *StockReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStockReconcile))
	}
	return slog.Default().With(slog.String("job", TaskStockReconcile))
}

func (j *StockReconcileJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
