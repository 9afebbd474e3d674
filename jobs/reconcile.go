package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/odyssey-erp/inventory-ledger/internal/jobs"
	"github.com/odyssey-erp/inventory-ledger/internal/inventory"
)

// TaskLedgerReconcile checks every cell against its movement history.
const TaskLedgerReconcile = "ledger:reconcile"

// ReconcilePayload carries scheduling metadata.
type ReconcilePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
	WarehouseIDs []int64   `json:"warehouse_ids,omitempty"`
}

// NewReconcileTask constructs an Asynq task for ledger reconciliation.
func NewReconcileTask(payload ReconcilePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerReconcile, body, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}

// ReconcileSource lists warehouses and their discrepancies.
type ReconcileSource interface {
	ListWarehouseIDs(ctx context.Context) ([]int64, error)
	Reconcile(ctx context.Context, warehouseID int64) ([]inventory.Discrepancy, error)
}

// ReconcileJob reports cells whose quantity differs from the sum of their movements.
type ReconcileJob struct {
	Source      ReconcileSource
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Concurrency int
}

// NewReconcileJob initialises the reconciliation handler.
func NewReconcileJob(source ReconcileSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileJob {
	return &ReconcileJob{Source: source, Logger: logger, Metrics: metrics, Concurrency: 4}
}

// Handle executes the reconciliation.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Source == nil {
		return errors.New("reconcile: handler not configured")
	}
	var payload ReconcilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	_, err := j.Run(ctx, payload.WarehouseIDs)
	return err
}

// Run scans the given warehouses, or all of them when none are given.
func (j *ReconcileJob) Run(ctx context.Context, warehouseIDs []int64) (found []inventory.Discrepancy, err error) {
	tracker := j.Metrics.Track(TaskLedgerReconcile)
	defer func() {
		err = tracker.End(err)
	}()
	logger := j.logger()

	if len(warehouseIDs) == 0 {
		warehouseIDs, err = j.Source.ListWarehouseIDs(ctx)
		if err != nil {
			logger.Error("list warehouses failed", slog.Any("error", err))
			return nil, err
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	limit := j.Concurrency
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)
	for _, warehouseID := range warehouseIDs {
		g.Go(func() error {
			discrepancies, err := j.Source.Reconcile(gctx, warehouseID)
			if err != nil {
				return err
			}
			j.Metrics.SetDiscrepancies(warehouseID, len(discrepancies))
			mu.Lock()
			found = append(found, discrepancies...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("reconcile failed", slog.Any("error", err))
		return nil, err
	}

	sort.Slice(found, func(a, b int) bool {
		if found[a].WarehouseID != found[b].WarehouseID {
			return found[a].WarehouseID < found[b].WarehouseID
		}
		return found[a].ProductID < found[b].ProductID
	})
	for _, d := range found {
		logger.Warn("ledger discrepancy",
			slog.Int64("product_id", d.ProductID),
			slog.Int64("warehouse_id", d.WarehouseID),
			slog.String("quantity", d.Quantity.String()),
			slog.String("movement_sum", d.MovementSum.String()),
		)
	}
	logger.Info("reconcile finished", slog.Int("warehouses", len(warehouseIDs)), slog.Int("discrepancies", len(found)))
	return found, nil
}

func (j *ReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerReconcile))
	}
	return slog.Default().With(slog.String("job", TaskLedgerReconcile))
}
