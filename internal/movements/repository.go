package movements

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for movement documents.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations. Stock returns a ledger
// repository bound to the same transaction, so document writes and their
// ledger effects commit or roll back together.
type TxRepository interface {
	CreateMovement(ctx context.Context, m Movement) (int64, error)
	InsertItem(ctx context.Context, item Item) (int64, error)
	GetItemForUpdate(ctx context.Context, movementID, itemID int64) (Item, error)
	UpdateItemQty(ctx context.Context, itemID, qty int64) error
	DeleteItem(ctx context.Context, itemID int64) error
	UpdateMovementStatus(ctx context.Context, id int64, status Status) error
	TouchMovement(ctx context.Context, id int64) error
	Stock() inventory.TxRepository
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// GetMovement returns a movement header and its items.
func (r *Repository) GetMovement(ctx context.Context, id int64) (Movement, []Item, error) {
	var m Movement
	err := r.pool.QueryRow(ctx, `
		SELECT id, number, movement_type, status, origin_warehouse_id, destination_warehouse_id, supplier_id, note, created_at, updated_at
		FROM stock_movements
		WHERE id = $1`, id).
		Scan(&m.ID, &m.Number, &m.Type, &m.Status, &m.OriginWarehouseID, &m.DestinationWarehouseID, &m.SupplierID, &m.Note, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Movement{}, nil, ErrNotFound
		}
		return Movement{}, nil, fmt.Errorf("movements: get movement: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, movement_id, product_id, qty, created_at, updated_at
		FROM stock_movement_items
		WHERE movement_id = $1
		ORDER BY id`, id)
	if err != nil {
		return Movement{}, nil, fmt.Errorf("movements: list items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.MovementID, &it.ProductID, &it.Qty, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return Movement{}, nil, err
		}
		items = append(items, it)
	}
	return m, items, rows.Err()
}

// ListFilters narrows movement listings.
type ListFilters struct {
	Type        inventory.MovementType
	Status      Status
	WarehouseID int64
}

// ListMovements returns movement headers matching filters, newest first.
func (r *Repository) ListMovements(ctx context.Context, limit, offset int, filters ListFilters) ([]Movement, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	where := "WHERE 1=1"
	args := []any{}
	idx := 1
	if filters.Type != "" {
		where += fmt.Sprintf(" AND movement_type = $%d", idx)
		args = append(args, string(filters.Type))
		idx++
	}
	if filters.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, string(filters.Status))
		idx++
	}
	if filters.WarehouseID != 0 {
		where += fmt.Sprintf(" AND (origin_warehouse_id = $%d OR destination_warehouse_id = $%d)", idx, idx)
		args = append(args, filters.WarehouseID)
		idx++
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM stock_movements "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("movements: count: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, number, movement_type, status, origin_warehouse_id, destination_warehouse_id, supplier_id, note, created_at, updated_at
		FROM stock_movements %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, where, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("movements: list: %w", err)
	}
	defer rows.Close()

	var result []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.Number, &m.Type, &m.Status, &m.OriginWarehouseID, &m.DestinationWarehouseID, &m.SupplierID, &m.Note, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, 0, err
		}
		result = append(result, m)
	}
	return result, total, rows.Err()
}

func (t *txRepo) CreateMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO stock_movements (number, movement_type, status, origin_warehouse_id, destination_warehouse_id, supplier_id, note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id`,
		m.Number, string(m.Type), string(m.Status), m.OriginWarehouseID, m.DestinationWarehouseID, m.SupplierID, m.Note).
		Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("movements: create movement: %w", err)
	}
	return id, nil
}

func (t *txRepo) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO stock_movement_items (movement_id, product_id, qty, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING id`,
		item.MovementID, item.ProductID, item.Qty).
		Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("movements: insert item: %w", err)
	}
	return id, nil
}

// GetItemForUpdate locks the item row and returns the committed quantity.
// The lock holds the read-before-write snapshot stable until commit.
func (t *txRepo) GetItemForUpdate(ctx context.Context, movementID, itemID int64) (Item, error) {
	var it Item
	err := t.tx.QueryRow(ctx, `
		SELECT id, movement_id, product_id, qty, created_at, updated_at
		FROM stock_movement_items
		WHERE id = $1 AND movement_id = $2
		FOR UPDATE`, itemID, movementID).
		Scan(&it.ID, &it.MovementID, &it.ProductID, &it.Qty, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, fmt.Errorf("movements: lock item: %w", err)
	}
	return it, nil
}

func (t *txRepo) UpdateItemQty(ctx context.Context, itemID, qty int64) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE stock_movement_items SET qty = $2, updated_at = NOW() WHERE id = $1`, itemID, qty)
	if err != nil {
		return fmt.Errorf("movements: update item qty: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) DeleteItem(ctx context.Context, itemID int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM stock_movement_items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("movements: delete item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) UpdateMovementStatus(ctx context.Context, id int64, status Status) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE stock_movements SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("movements: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) TouchMovement(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE stock_movements SET updated_at = NOW() WHERE id = $1`, id)
	return err
}

func (t *txRepo) Stock() inventory.TxRepository {
	return inventory.NewTxRepository(t.tx)
}
