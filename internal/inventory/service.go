package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CurrentQuantity(ctx context.Context, warehouseID, productID int64) (int64, error)
	ListWarehouseIDs(ctx context.Context) ([]int64, error)
	ListBelowMinimum(ctx context.Context) ([]ProductState, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort records movement outcomes and drift repairs for observability.
type MetricsPort interface {
	RecordStockMovement(movementType, operation, outcome string)
	RecordDriftRepair()
}

// Service is the stock reconciliation core. Every movement-line write in the
// application funnels through ApplyMovementLine; the ledger entry row lock is
// the single point of mutual exclusion for a (warehouse, product) pair.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	logger   *slog.Logger
	metrics  MetricsPort
	observer Observer
	cache    *QuantityCache
}

// NewService builds Service. Audit, metrics, observer and cache are optional.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger, metrics MetricsPort, observer Observer, cache *QuantityCache) *Service {
	return &Service{repo: repo, audit: audit, logger: logger, metrics: metrics, observer: observer, cache: cache}
}

// stockDelta is one ledger-entry mutation derived from a movement line.
type stockDelta struct {
	warehouseID int64
	productID   int64
	delta       int64
}

// ApplyMovementLine reconciles a single movement-line write against the
// ledger inside its own transaction. Deltas for all affected warehouses are
// applied together; a failed validation rolls everything back, including the
// debit half of a transfer. Callers that hold their own transaction use
// ApplyMovementLineTx instead so ledger and caller state commit atomically.
func (s *Service) ApplyMovementLine(ctx context.Context, movementType MovementType, op Operation, line MovementLine) error {
	var events []StockChangedEvent
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		events, err = s.ApplyMovementLineTx(ctx, tx, movementType, op, line)
		return err
	})
	if err != nil {
		return err
	}
	s.FinishMovementLine(ctx, movementType, op, line, events)
	return nil
}

// ApplyMovementLineTx reconciles a movement line against the ledger using the
// caller's open transaction, so the document write and the ledger mutation
// commit or roll back together. The returned events must be handed to
// FinishMovementLine once, after the surrounding transaction has committed.
func (s *Service) ApplyMovementLineTx(ctx context.Context, tx TxRepository, movementType MovementType, op Operation, line MovementLine) ([]StockChangedEvent, error) {
	deltas, err := computeDeltas(movementType, op, line)
	if err != nil {
		s.recordMetric(movementType, op, "rejected")
		return nil, err
	}
	if len(deltas) == 0 {
		return nil, nil
	}

	events := make([]StockChangedEvent, 0, len(deltas))
	for _, d := range deltas {
		evt, err := s.applyDelta(ctx, tx, d)
		if err != nil {
			s.recordMetric(movementType, op, "rejected")
			return nil, err
		}
		evt.MovementType = movementType
		evt.Operation = op
		events = append(events, evt)
	}
	return events, nil
}

// FinishMovementLine runs the post-commit side effects for an applied line:
// cache invalidation, observer notification, audit and metrics. Call only
// after the transaction that carried ApplyMovementLineTx has committed.
func (s *Service) FinishMovementLine(ctx context.Context, movementType MovementType, op Operation, line MovementLine, events []StockChangedEvent) {
	if len(events) == 0 {
		return
	}
	s.recordMetric(movementType, op, "applied")
	for _, evt := range events {
		s.notify(ctx, evt)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Action:   fmt.Sprintf("stock:%s:%s", movementType, op),
			Entity:   "warehouse_stock",
			EntityID: fmt.Sprintf("%d", line.ProductID),
			Meta: map[string]any{
				"origin_warehouse_id":      line.OriginWarehouseID,
				"destination_warehouse_id": line.DestinationWarehouseID,
				"previous_qty":             line.PreviousQty,
				"qty":                      line.Qty,
				"ref_id":                   line.RefID,
			},
		})
	}
}

// CurrentQuantity returns the ledger quantity for a pair, reading through the
// cache when one is configured. Pairs never credited yield
// ErrLedgerEntryNotFound.
func (s *Service) CurrentQuantity(ctx context.Context, warehouseID, productID int64) (int64, error) {
	if warehouseID <= 0 || productID <= 0 {
		return 0, errors.New("inventory: warehouse and product required")
	}
	if s.cache == nil {
		return s.repo.CurrentQuantity(ctx, warehouseID, productID)
	}
	return s.cache.Get(ctx, warehouseID, productID, func(ctx context.Context) (int64, error) {
		return s.repo.CurrentQuantity(ctx, warehouseID, productID)
	})
}

// RecomputeWarehouseTotal re-derives a warehouse's cached quantity from the
// sum of its ledger entries. Exposed as a manual repair operation and run
// nightly by the reconciliation job.
func (s *Service) RecomputeWarehouseTotal(ctx context.Context, warehouseID int64) (int64, error) {
	if warehouseID <= 0 {
		return 0, errors.New("inventory: warehouse required")
	}
	var total int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		wh, err := tx.GetWarehouseForUpdate(ctx, warehouseID)
		if err != nil {
			return err
		}
		sum, err := tx.SumWarehouseQuantity(ctx, warehouseID)
		if err != nil {
			return err
		}
		if sum != wh.Quantity {
			s.recordDriftRepair()
			if s.logger != nil {
				s.logger.Warn("warehouse total drifted from ledger sum",
					slog.Int64("warehouse_id", warehouseID),
					slog.Int64("cached", wh.Quantity),
					slog.Int64("ledger_sum", sum))
			}
		}
		total = sum
		return tx.UpdateWarehouseQuantity(ctx, warehouseID, sum)
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// ReconcileAllWarehouses recomputes every warehouse total, returning the ids
// whose cached quantity had drifted.
func (s *Service) ReconcileAllWarehouses(ctx context.Context) ([]int64, error) {
	ids, err := s.repo.ListWarehouseIDs(ctx)
	if err != nil {
		return nil, err
	}
	var drifted []int64
	for _, id := range ids {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			wh, err := tx.GetWarehouseForUpdate(ctx, id)
			if err != nil {
				return err
			}
			sum, err := tx.SumWarehouseQuantity(ctx, id)
			if err != nil {
				return err
			}
			if sum != wh.Quantity {
				drifted = append(drifted, id)
				s.recordDriftRepair()
			}
			return tx.UpdateWarehouseQuantity(ctx, id, sum)
		})
		if err != nil {
			return drifted, err
		}
	}
	return drifted, nil
}

// ListBelowMinimum exposes low-stock products for the scan job.
func (s *Service) ListBelowMinimum(ctx context.Context) ([]ProductState, error) {
	return s.repo.ListBelowMinimum(ctx)
}

// computeDeltas turns a movement-line write into signed ledger deltas,
// sorted by ascending (warehouse, product) so that concurrent transfers
// touching the same warehouses lock rows in the same order.
func computeDeltas(movementType MovementType, op Operation, line MovementLine) ([]stockDelta, error) {
	if line.ProductID <= 0 {
		return nil, errors.New("inventory: product required")
	}
	if line.PreviousQty < 0 {
		return nil, ErrInvalidQuantity
	}

	var base int64
	switch op {
	case OperationCreate:
		if line.Qty <= 0 {
			return nil, ErrInvalidQuantity
		}
		base = line.Qty
	case OperationUpdate:
		if line.Qty <= 0 {
			return nil, ErrInvalidQuantity
		}
		base = line.Qty - line.PreviousQty
	case OperationDelete:
		base = -line.PreviousQty
	default:
		return nil, fmt.Errorf("inventory: unknown operation %q", op)
	}
	if base == 0 {
		return nil, nil
	}

	var deltas []stockDelta
	switch movementType {
	case MovementInflow:
		if line.DestinationWarehouseID <= 0 {
			return nil, errors.New("inventory: destination warehouse required")
		}
		deltas = append(deltas, stockDelta{line.DestinationWarehouseID, line.ProductID, base})
	case MovementOutflow:
		if line.OriginWarehouseID <= 0 {
			return nil, errors.New("inventory: origin warehouse required")
		}
		deltas = append(deltas, stockDelta{line.OriginWarehouseID, line.ProductID, -base})
	case MovementTransfer:
		if line.OriginWarehouseID <= 0 || line.DestinationWarehouseID <= 0 {
			return nil, errors.New("inventory: origin and destination warehouse required")
		}
		if line.OriginWarehouseID == line.DestinationWarehouseID {
			return nil, errors.New("inventory: origin and destination warehouse must differ")
		}
		deltas = append(deltas,
			stockDelta{line.OriginWarehouseID, line.ProductID, -base},
			stockDelta{line.DestinationWarehouseID, line.ProductID, base})
	default:
		return nil, fmt.Errorf("inventory: unknown movement type %q", movementType)
	}

	sort.Slice(deltas, func(i, j int) bool {
		if deltas[i].warehouseID != deltas[j].warehouseID {
			return deltas[i].warehouseID < deltas[j].warehouseID
		}
		return deltas[i].productID < deltas[j].productID
	})
	return deltas, nil
}

// applyDelta mutates one ledger entry plus its product and warehouse
// aggregates. The entry row is locked first (created lazily on credit),
// then the warehouse row; validation reads come from the locked rows only.
func (s *Service) applyDelta(ctx context.Context, tx TxRepository, d stockDelta) (StockChangedEvent, error) {
	entry, err := tx.GetLedgerEntryForUpdate(ctx, d.warehouseID, d.productID)
	if err != nil {
		if !errors.Is(err, ErrLedgerEntryNotFound) {
			return StockChangedEvent{}, err
		}
		if d.delta < 0 {
			// Cannot debit a pair that has never been credited.
			return StockChangedEvent{}, ErrLedgerEntryNotFound
		}
		entry, err = tx.CreateLedgerEntry(ctx, d.warehouseID, d.productID)
		if err != nil {
			return StockChangedEvent{}, err
		}
	}

	warehouse, err := tx.GetWarehouseForUpdate(ctx, d.warehouseID)
	if err != nil {
		return StockChangedEvent{}, err
	}
	ledgerSum, err := tx.SumWarehouseQuantity(ctx, d.warehouseID)
	if err != nil {
		return StockChangedEvent{}, err
	}
	if err := validateCapacity(s.logger, warehouse, ledgerSum, entry.CurrentQuantity, d.delta); err != nil {
		return StockChangedEvent{}, err
	}

	entry.CurrentQuantity += d.delta
	if err := tx.UpdateLedgerEntry(ctx, entry); err != nil {
		return StockChangedEvent{}, err
	}

	product, err := tx.GetProductForUpdate(ctx, d.productID)
	if err != nil {
		return StockChangedEvent{}, err
	}
	productQty := product.Quantity + d.delta
	if productQty < 0 {
		return StockChangedEvent{}, ErrNegativeStock
	}
	if err := tx.UpdateProductQuantity(ctx, d.productID, productQty); err != nil {
		return StockChangedEvent{}, err
	}

	// Full recompute rather than an incremental counter, so any prior drift
	// self-heals on the next movement.
	total, err := tx.SumWarehouseQuantity(ctx, d.warehouseID)
	if err != nil {
		return StockChangedEvent{}, err
	}
	if err := tx.UpdateWarehouseQuantity(ctx, d.warehouseID, total); err != nil {
		return StockChangedEvent{}, err
	}

	return StockChangedEvent{
		WarehouseID:     d.warehouseID,
		ProductID:       d.productID,
		Delta:           d.delta,
		EntryQuantity:   entry.CurrentQuantity,
		ProductQuantity: productQty,
		WarehouseTotal:  total,
		BelowMinimum:    product.MinQuantity > 0 && productQty < product.MinQuantity,
		OccurredAt:      time.Now().UTC(),
	}, nil
}

func (s *Service) notify(ctx context.Context, evt StockChangedEvent) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, evt.WarehouseID, evt.ProductID); err != nil && s.logger != nil {
			s.logger.Warn("stock cache invalidation failed", slog.Any("error", err))
		}
	}
	if s.observer != nil {
		s.observer.StockChanged(ctx, evt)
	}
}

func (s *Service) recordMetric(movementType MovementType, op Operation, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordStockMovement(string(movementType), string(op), outcome)
	}
}

func (s *Service) recordDriftRepair() {
	if s.metrics != nil {
		s.metrics.RecordDriftRepair()
	}
}
