package inventory

import (
	"context"
	"time"
)

// StockChangedEvent describes a committed stock mutation.
type StockChangedEvent struct {
	MovementType    MovementType
	Operation       Operation
	WarehouseID     int64
	ProductID       int64
	Delta           int64
	EntryQuantity   int64
	ProductQuantity int64
	WarehouseTotal  int64
	BelowMinimum    bool
	OccurredAt      time.Time
}

// Observer is notified after a stock mutation commits. Observers watch but
// never mutate ledger state; failures are the observer's own concern.
type Observer interface {
	StockChanged(ctx context.Context, evt StockChangedEvent)
}

// Observers fans a single event out to several observers.
type Observers []Observer

// StockChanged implements Observer.
func (o Observers) StockChanged(ctx context.Context, evt StockChangedEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.StockChanged(ctx, evt)
		}
	}
}
