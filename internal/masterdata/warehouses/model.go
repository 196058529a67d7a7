package warehouses

import (
	"time"
)

// Warehouse represents a storage location. CapacityLimit of zero means
// unlimited; Quantity is the denormalised sum of its stock ledger entries
// and is owned by the reconciliation core.
type Warehouse struct {
	ID            int64     `json:"id"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	Address       string    `json:"address"`
	CapacityLimit int64     `json:"capacity_limit"`
	Quantity      int64     `json:"quantity"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
