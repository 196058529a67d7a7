package inventory

import (
	"errors"
	"time"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementInflow credits a warehouse from an external supplier.
	MovementInflow MovementType = "INFLOW"
	// MovementOutflow debits a warehouse towards an external customer.
	MovementOutflow MovementType = "OUTFLOW"
	// MovementTransfer moves stock between two warehouses.
	MovementTransfer MovementType = "TRANSFER"
)

// Operation enumerates write operations on a movement line.
type Operation string

const (
	// OperationCreate applies a new movement line.
	OperationCreate Operation = "CREATE"
	// OperationUpdate re-applies a line after its quantity changed.
	OperationUpdate Operation = "UPDATE"
	// OperationDelete reverses the line's original effect.
	OperationDelete Operation = "DELETE"
)

// LedgerEntry tracks the current quantity per (warehouse, product) pair.
// Entries are created lazily on the first credit and never deleted.
type LedgerEntry struct {
	WarehouseID     int64
	ProductID       int64
	CurrentQuantity int64
	UpdatedAt       time.Time
}

// WarehouseState is the warehouse row as read under lock during a mutation.
// Limit of zero or less means unlimited capacity.
type WarehouseState struct {
	ID       int64
	Code     string
	Limit    int64
	Quantity int64
}

// ProductState mirrors the product aggregate used for global totals
// and low-stock thresholds.
type ProductState struct {
	ID          int64
	Code        string
	Quantity    int64
	MinQuantity int64
	MaxQuantity int64
}

// MovementLine describes a single line item change handed to the reconciler.
// PreviousQty must be snapshotted by the caller under the same row lock that
// protects the line item write; it is zero for creates.
type MovementLine struct {
	ProductID              int64
	OriginWarehouseID      int64
	DestinationWarehouseID int64
	PreviousQty            int64
	Qty                    int64
	RefID                  string
}

var (
	// ErrCapacityExceeded indicates the projected warehouse total would
	// breach the configured capacity limit.
	ErrCapacityExceeded = errors.New("inventory: warehouse capacity exceeded")
	// ErrNegativeStock indicates a debit would drive a quantity below zero.
	ErrNegativeStock = errors.New("inventory: negative stock not allowed")
	// ErrLedgerEntryNotFound indicates no ledger entry exists for the pair.
	// Debits against untracked pairs are rejected with this error.
	ErrLedgerEntryNotFound = errors.New("inventory: ledger entry not found")
	// ErrInvalidQuantity indicates a non-positive line quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrWarehouseNotFound indicates an unknown warehouse reference.
	ErrWarehouseNotFound = errors.New("inventory: warehouse not found")
	// ErrProductNotFound indicates an unknown product reference.
	ErrProductNotFound = errors.New("inventory: product not found")
)
