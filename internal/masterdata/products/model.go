package products

import (
	"time"
)

// Product is a sellable or storable good. Quantity is the global total
// across all warehouses, maintained by the reconciliation core. MinQuantity
// and MaxQuantity are advisory thresholds for low-stock and overstock
// reporting; MaxQuantity of zero disables the upper threshold.
type Product struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	SupplierID  int64     `json:"supplier_id,omitempty"`
	Quantity    int64     `json:"quantity"`
	MinQuantity int64     `json:"min_quantity"`
	MaxQuantity int64     `json:"max_quantity"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
