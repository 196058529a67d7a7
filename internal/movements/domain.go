package movements

import (
	"errors"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
)

// Movement document lifecycle statuses.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusCancelled Status = "CANCELLED"
)

// Movement is a stock movement document header. Inflows credit the
// destination warehouse, outflows debit the origin, transfers do both.
type Movement struct {
	ID                     int64
	Number                 string
	Type                   inventory.MovementType
	Status                 Status
	OriginWarehouseID      int64
	DestinationWarehouseID int64
	SupplierID             int64
	Note                   string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Item is a single product line on a movement document.
type Item struct {
	ID         int64
	MovementID int64
	ProductID  int64
	Qty        int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

var (
	// ErrNotFound indicates the movement or item does not exist.
	ErrNotFound = errors.New("movements: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("movements: invalid input")
	// ErrInvalidState occurs when an action violates the document workflow.
	ErrInvalidState = errors.New("movements: invalid state transition")
)
