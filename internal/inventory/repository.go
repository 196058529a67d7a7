package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository persists the stock ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
// Row locks acquired through the ForUpdate methods are held until the
// surrounding transaction commits or rolls back.
type TxRepository interface {
	GetLedgerEntryForUpdate(ctx context.Context, warehouseID, productID int64) (LedgerEntry, error)
	CreateLedgerEntry(ctx context.Context, warehouseID, productID int64) (LedgerEntry, error)
	UpdateLedgerEntry(ctx context.Context, entry LedgerEntry) error
	GetWarehouseForUpdate(ctx context.Context, warehouseID int64) (WarehouseState, error)
	GetProductForUpdate(ctx context.Context, productID int64) (ProductState, error)
	UpdateProductQuantity(ctx context.Context, productID, quantity int64) error
	SumWarehouseQuantity(ctx context.Context, warehouseID int64) (int64, error)
	UpdateWarehouseQuantity(ctx context.Context, warehouseID, quantity int64) error
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an already-open pgx transaction so another package
// can apply ledger mutations inside its own transaction boundary.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// CurrentQuantity reads the ledger quantity without locking.
func (r *Repository) CurrentQuantity(ctx context.Context, warehouseID, productID int64) (int64, error) {
	if r == nil {
		return 0, errors.New("inventory repository not initialised")
	}
	var qty int64
	err := r.pool.QueryRow(ctx, `SELECT current_quantity FROM warehouse_stock WHERE warehouse_id=$1 AND product_id=$2`, warehouseID, productID).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrLedgerEntryNotFound
		}
		return 0, err
	}
	return qty, nil
}

// ListWarehouseIDs returns all warehouse ids, used by the reconciliation job.
func (r *Repository) ListWarehouseIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM warehouses ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListBelowMinimum returns products whose global quantity dropped below the
// configured minimum, used by the low-stock scan job.
func (r *Repository) ListBelowMinimum(ctx context.Context) ([]ProductState, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, quantity, min_quantity, max_quantity FROM products WHERE min_quantity > 0 AND quantity < min_quantity ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var products []ProductState
	for rows.Next() {
		var p ProductState
		if err := rows.Scan(&p.ID, &p.Code, &p.Quantity, &p.MinQuantity, &p.MaxQuantity); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *txRepository) GetLedgerEntryForUpdate(ctx context.Context, warehouseID, productID int64) (LedgerEntry, error) {
	var entry LedgerEntry
	err := r.tx.QueryRow(ctx, `SELECT warehouse_id, product_id, current_quantity, updated_at FROM warehouse_stock WHERE warehouse_id=$1 AND product_id=$2 FOR UPDATE`, warehouseID, productID).
		Scan(&entry.WarehouseID, &entry.ProductID, &entry.CurrentQuantity, &entry.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LedgerEntry{WarehouseID: warehouseID, ProductID: productID}, ErrLedgerEntryNotFound
		}
		return LedgerEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) CreateLedgerEntry(ctx context.Context, warehouseID, productID int64) (LedgerEntry, error) {
	var entry LedgerEntry
	err := r.tx.QueryRow(ctx, `INSERT INTO warehouse_stock (warehouse_id, product_id, current_quantity, updated_at)
VALUES ($1,$2,0,NOW())
ON CONFLICT (warehouse_id, product_id) DO UPDATE SET updated_at=warehouse_stock.updated_at
RETURNING warehouse_id, product_id, current_quantity, updated_at`, warehouseID, productID).
		Scan(&entry.WarehouseID, &entry.ProductID, &entry.CurrentQuantity, &entry.UpdatedAt)
	if err != nil {
		return LedgerEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) UpdateLedgerEntry(ctx context.Context, entry LedgerEntry) error {
	_, err := r.tx.Exec(ctx, `UPDATE warehouse_stock SET current_quantity=$3, updated_at=NOW() WHERE warehouse_id=$1 AND product_id=$2`,
		entry.WarehouseID, entry.ProductID, entry.CurrentQuantity)
	return err
}

func (r *txRepository) GetWarehouseForUpdate(ctx context.Context, warehouseID int64) (WarehouseState, error) {
	var wh WarehouseState
	err := r.tx.QueryRow(ctx, `SELECT id, code, capacity_limit, quantity FROM warehouses WHERE id=$1 FOR UPDATE`, warehouseID).
		Scan(&wh.ID, &wh.Code, &wh.Limit, &wh.Quantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WarehouseState{}, ErrWarehouseNotFound
		}
		return WarehouseState{}, err
	}
	return wh, nil
}

func (r *txRepository) GetProductForUpdate(ctx context.Context, productID int64) (ProductState, error) {
	var p ProductState
	err := r.tx.QueryRow(ctx, `SELECT id, code, quantity, min_quantity, max_quantity FROM products WHERE id=$1 FOR UPDATE`, productID).
		Scan(&p.ID, &p.Code, &p.Quantity, &p.MinQuantity, &p.MaxQuantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductState{}, ErrProductNotFound
		}
		return ProductState{}, err
	}
	return p, nil
}

func (r *txRepository) UpdateProductQuantity(ctx context.Context, productID, quantity int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE products SET quantity=$2, updated_at=NOW() WHERE id=$1`, productID, quantity)
	return err
}

func (r *txRepository) SumWarehouseQuantity(ctx context.Context, warehouseID int64) (int64, error) {
	var total int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(current_quantity), 0) FROM warehouse_stock WHERE warehouse_id=$1`, warehouseID).Scan(&total)
	return total, err
}

func (r *txRepository) UpdateWarehouseQuantity(ctx context.Context, warehouseID, quantity int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE warehouses SET quantity=$2, updated_at=NOW() WHERE id=$1`, warehouseID, quantity)
	return err
}
