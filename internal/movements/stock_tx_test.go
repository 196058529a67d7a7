package movements

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
)

// combinedStore backs both the movement document tables and the stock ledger
// with one snapshot-and-restore transaction, mirroring how the pgx
// repositories share a single database transaction in production. It lets
// tests drive the movements service through the real inventory service.
type combinedStore struct {
	movements  map[int64]Movement
	items      map[int64]Item
	nextID     int64
	entries    map[[2]int64]inventory.LedgerEntry
	warehouses map[int64]inventory.WarehouseState
	products   map[int64]inventory.ProductState
}

func newCombinedStore() *combinedStore {
	return &combinedStore{
		movements:  make(map[int64]Movement),
		items:      make(map[int64]Item),
		entries:    make(map[[2]int64]inventory.LedgerEntry),
		warehouses: make(map[int64]inventory.WarehouseState),
		products:   make(map[int64]inventory.ProductState),
	}
}

func (s *combinedStore) addWarehouse(id, limit int64) {
	s.warehouses[id] = inventory.WarehouseState{ID: id, Limit: limit}
}

func (s *combinedStore) addProduct(id int64) {
	s.products[id] = inventory.ProductState{ID: id}
}

func (s *combinedStore) entryQty(warehouseID, productID int64) int64 {
	return s.entries[[2]int64{warehouseID, productID}].CurrentQuantity
}

func (s *combinedStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	movs := make(map[int64]Movement, len(s.movements))
	for k, v := range s.movements {
		movs[k] = v
	}
	items := make(map[int64]Item, len(s.items))
	for k, v := range s.items {
		items[k] = v
	}
	entries := make(map[[2]int64]inventory.LedgerEntry, len(s.entries))
	for k, v := range s.entries {
		entries[k] = v
	}
	warehouses := make(map[int64]inventory.WarehouseState, len(s.warehouses))
	for k, v := range s.warehouses {
		warehouses[k] = v
	}
	products := make(map[int64]inventory.ProductState, len(s.products))
	for k, v := range s.products {
		products[k] = v
	}
	nextID := s.nextID
	if err := fn(ctx, &combinedTx{store: s}); err != nil {
		s.movements, s.items, s.nextID = movs, items, nextID
		s.entries, s.warehouses, s.products = entries, warehouses, products
		return err
	}
	return nil
}

func (s *combinedStore) GetMovement(ctx context.Context, id int64) (Movement, []Item, error) {
	m, ok := s.movements[id]
	if !ok {
		return Movement{}, nil, ErrNotFound
	}
	var items []Item
	for _, it := range s.items {
		if it.MovementID == id {
			items = append(items, it)
		}
	}
	return m, items, nil
}

func (s *combinedStore) ListMovements(ctx context.Context, limit, offset int, filters ListFilters) ([]Movement, int64, error) {
	var result []Movement
	for _, m := range s.movements {
		result = append(result, m)
	}
	return result, int64(len(result)), nil
}

type combinedTx struct {
	store *combinedStore
}

func (t *combinedTx) allocID() int64 {
	t.store.nextID++
	return t.store.nextID
}

func (t *combinedTx) CreateMovement(ctx context.Context, m Movement) (int64, error) {
	id := t.allocID()
	m.ID = id
	t.store.movements[id] = m
	return id, nil
}

func (t *combinedTx) InsertItem(ctx context.Context, item Item) (int64, error) {
	id := t.allocID()
	item.ID = id
	t.store.items[id] = item
	return id, nil
}

func (t *combinedTx) GetItemForUpdate(ctx context.Context, movementID, itemID int64) (Item, error) {
	it, ok := t.store.items[itemID]
	if !ok || it.MovementID != movementID {
		return Item{}, ErrNotFound
	}
	return it, nil
}

func (t *combinedTx) UpdateItemQty(ctx context.Context, itemID, qty int64) error {
	it, ok := t.store.items[itemID]
	if !ok {
		return ErrNotFound
	}
	it.Qty = qty
	t.store.items[itemID] = it
	return nil
}

func (t *combinedTx) DeleteItem(ctx context.Context, itemID int64) error {
	if _, ok := t.store.items[itemID]; !ok {
		return ErrNotFound
	}
	delete(t.store.items, itemID)
	return nil
}

func (t *combinedTx) UpdateMovementStatus(ctx context.Context, id int64, status Status) error {
	m, ok := t.store.movements[id]
	if !ok {
		return ErrNotFound
	}
	m.Status = status
	t.store.movements[id] = m
	return nil
}

func (t *combinedTx) TouchMovement(ctx context.Context, id int64) error {
	return nil
}

func (t *combinedTx) Stock() inventory.TxRepository {
	return &combinedStockTx{store: t.store}
}

// combinedStockTx implements the ledger's transactional port over the same
// store, the counterpart of inventory.NewTxRepository sharing the pgx.Tx.
type combinedStockTx struct {
	store *combinedStore
}

func (t *combinedStockTx) GetLedgerEntryForUpdate(ctx context.Context, warehouseID, productID int64) (inventory.LedgerEntry, error) {
	entry, ok := t.store.entries[[2]int64{warehouseID, productID}]
	if !ok {
		return inventory.LedgerEntry{WarehouseID: warehouseID, ProductID: productID}, inventory.ErrLedgerEntryNotFound
	}
	return entry, nil
}

func (t *combinedStockTx) CreateLedgerEntry(ctx context.Context, warehouseID, productID int64) (inventory.LedgerEntry, error) {
	key := [2]int64{warehouseID, productID}
	if entry, ok := t.store.entries[key]; ok {
		return entry, nil
	}
	entry := inventory.LedgerEntry{WarehouseID: warehouseID, ProductID: productID}
	t.store.entries[key] = entry
	return entry, nil
}

func (t *combinedStockTx) UpdateLedgerEntry(ctx context.Context, entry inventory.LedgerEntry) error {
	t.store.entries[[2]int64{entry.WarehouseID, entry.ProductID}] = entry
	return nil
}

func (t *combinedStockTx) GetWarehouseForUpdate(ctx context.Context, warehouseID int64) (inventory.WarehouseState, error) {
	wh, ok := t.store.warehouses[warehouseID]
	if !ok {
		return inventory.WarehouseState{}, inventory.ErrWarehouseNotFound
	}
	return wh, nil
}

func (t *combinedStockTx) GetProductForUpdate(ctx context.Context, productID int64) (inventory.ProductState, error) {
	p, ok := t.store.products[productID]
	if !ok {
		return inventory.ProductState{}, inventory.ErrProductNotFound
	}
	return p, nil
}

func (t *combinedStockTx) UpdateProductQuantity(ctx context.Context, productID, quantity int64) error {
	p := t.store.products[productID]
	p.Quantity = quantity
	t.store.products[productID] = p
	return nil
}

func (t *combinedStockTx) SumWarehouseQuantity(ctx context.Context, warehouseID int64) (int64, error) {
	var total int64
	for key, entry := range t.store.entries {
		if key[0] == warehouseID {
			total += entry.CurrentQuantity
		}
	}
	return total, nil
}

func (t *combinedStockTx) UpdateWarehouseQuantity(ctx context.Context, warehouseID, quantity int64) error {
	wh := t.store.warehouses[warehouseID]
	wh.Quantity = quantity
	t.store.warehouses[warehouseID] = wh
	return nil
}

func newCombinedService(store *combinedStore) *Service {
	stock := inventory.NewService(nil, nil, nil, nil, nil, nil)
	return NewService(store, stock, nil, nil)
}

func TestCreateMovementCommitsDocumentAndLedgerTogether(t *testing.T) {
	store := newCombinedStore()
	store.addWarehouse(1, 100)
	store.addProduct(10)
	store.addProduct(11)
	svc := newCombinedService(store)

	m, err := svc.CreateMovement(context.Background(), CreateMovementInput{
		Type:                   inventory.MovementInflow,
		DestinationWarehouseID: 1,
		Items:                  []ItemInput{{ProductID: 10, Qty: 30}, {ProductID: 11, Qty: 40}},
	})
	require.NoError(t, err)
	require.NotZero(t, m.ID)

	require.Equal(t, int64(30), store.entryQty(1, 10))
	require.Equal(t, int64(40), store.entryQty(1, 11))
	require.Equal(t, int64(70), store.warehouses[1].Quantity)
	require.Equal(t, int64(30), store.products[10].Quantity)
	_, items, err := store.GetMovement(context.Background(), m.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestCreateMovementPartialRejectionLeavesLedgerUntouched(t *testing.T) {
	store := newCombinedStore()
	store.addWarehouse(1, 100)
	store.addProduct(10)
	store.addProduct(11)
	svc := newCombinedService(store)

	// The first item fits; the second pushes the warehouse over its limit.
	// Both the document and the first item's ledger credit must roll back.
	_, err := svc.CreateMovement(context.Background(), CreateMovementInput{
		Type:                   inventory.MovementInflow,
		DestinationWarehouseID: 1,
		Items:                  []ItemInput{{ProductID: 10, Qty: 50}, {ProductID: 11, Qty: 60}},
	})
	require.ErrorIs(t, err, inventory.ErrCapacityExceeded)

	require.Empty(t, store.movements)
	require.Empty(t, store.items)
	require.Empty(t, store.entries)
	require.Zero(t, store.warehouses[1].Quantity)
	require.Zero(t, store.products[10].Quantity)
}

func TestUpdateItemRejectionRollsBackItemAndLedger(t *testing.T) {
	store := newCombinedStore()
	store.addWarehouse(1, 100)
	store.addProduct(10)
	svc := newCombinedService(store)

	m, err := svc.CreateMovement(context.Background(), CreateMovementInput{
		Type:                   inventory.MovementInflow,
		DestinationWarehouseID: 1,
		Items:                  []ItemInput{{ProductID: 10, Qty: 50}},
	})
	require.NoError(t, err)
	_, items, err := store.GetMovement(context.Background(), m.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)

	err = svc.UpdateItem(context.Background(), m.ID, items[0].ID, 200)
	require.ErrorIs(t, err, inventory.ErrCapacityExceeded)

	require.Equal(t, int64(50), store.entryQty(1, 10))
	require.Equal(t, int64(50), store.warehouses[1].Quantity)
	_, items, err = store.GetMovement(context.Background(), m.ID)
	require.NoError(t, err)
	require.Equal(t, int64(50), items[0].Qty)
}

func TestCancelMovementRestoresLedger(t *testing.T) {
	store := newCombinedStore()
	store.addWarehouse(1, 0)
	store.addWarehouse(2, 0)
	store.addProduct(10)
	svc := newCombinedService(store)

	inflow, err := svc.CreateMovement(context.Background(), CreateMovementInput{
		Type:                   inventory.MovementInflow,
		DestinationWarehouseID: 1,
		Items:                  []ItemInput{{ProductID: 10, Qty: 100}},
	})
	require.NoError(t, err)

	transfer, err := svc.CreateMovement(context.Background(), CreateMovementInput{
		Type:                   inventory.MovementTransfer,
		OriginWarehouseID:      1,
		DestinationWarehouseID: 2,
		Items:                  []ItemInput{{ProductID: 10, Qty: 30}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(70), store.entryQty(1, 10))
	require.Equal(t, int64(30), store.entryQty(2, 10))

	require.NoError(t, svc.CancelMovement(context.Background(), transfer.ID))
	require.Equal(t, int64(100), store.entryQty(1, 10))
	require.Equal(t, int64(0), store.entryQty(2, 10))
	require.Equal(t, int64(100), store.warehouses[1].Quantity)
	require.Equal(t, int64(0), store.warehouses[2].Quantity)

	got, _, err := store.GetMovement(context.Background(), inflow.ID)
	require.NoError(t, err)
	require.Equal(t, StatusOpen, got.Status)
}
