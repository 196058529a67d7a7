package inventory

import "log/slog"

// utilizationWarnRatio is the projected utilization at which a warning is
// logged. Observability only, the movement still succeeds.
const utilizationWarnRatio = 0.9

// validateCapacity checks a proposed delta against the locked warehouse row
// and the freshly recomputed ledger sum. The ledger sum is the source of
// truth; the cached warehouse quantity is never trusted between writes.
func validateCapacity(logger *slog.Logger, warehouse WarehouseState, ledgerSum, entryQty, delta int64) error {
	if entryQty+delta < 0 {
		return ErrNegativeStock
	}
	projected := ledgerSum + delta
	if projected < 0 {
		return ErrNegativeStock
	}
	if warehouse.Limit <= 0 {
		return nil
	}
	if projected > warehouse.Limit {
		return ErrCapacityExceeded
	}
	if logger != nil && float64(projected) >= utilizationWarnRatio*float64(warehouse.Limit) {
		logger.Warn("warehouse nearing capacity",
			slog.Int64("warehouse_id", warehouse.ID),
			slog.String("warehouse_code", warehouse.Code),
			slog.Int64("projected", projected),
			slog.Int64("limit", warehouse.Limit))
	}
	return nil
}
