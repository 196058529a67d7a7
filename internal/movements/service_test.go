package movements

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
)

type memoryMovRepo struct {
	movements map[int64]Movement
	items     map[int64]Item
	nextID    int64
}

func newMemoryMovRepo() *memoryMovRepo {
	return &memoryMovRepo{
		movements: make(map[int64]Movement),
		items:     make(map[int64]Item),
	}
}

type memoryMovTx struct {
	repo *memoryMovRepo
}

func (r *memoryMovRepo) snapshot() (map[int64]Movement, map[int64]Item) {
	movs := make(map[int64]Movement, len(r.movements))
	for k, v := range r.movements {
		movs[k] = v
	}
	items := make(map[int64]Item, len(r.items))
	for k, v := range r.items {
		items[k] = v
	}
	return movs, items
}

func (r *memoryMovRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	movs, items := r.snapshot()
	if err := fn(ctx, &memoryMovTx{repo: r}); err != nil {
		r.movements, r.items = movs, items
		return err
	}
	return nil
}

func (r *memoryMovRepo) GetMovement(ctx context.Context, id int64) (Movement, []Item, error) {
	m, ok := r.movements[id]
	if !ok {
		return Movement{}, nil, ErrNotFound
	}
	var items []Item
	for _, it := range r.items {
		if it.MovementID == id {
			items = append(items, it)
		}
	}
	return m, items, nil
}

func (r *memoryMovRepo) ListMovements(ctx context.Context, limit, offset int, filters ListFilters) ([]Movement, int64, error) {
	var result []Movement
	for _, m := range r.movements {
		result = append(result, m)
	}
	return result, int64(len(result)), nil
}

func (tx *memoryMovTx) allocID() int64 {
	tx.repo.nextID++
	return tx.repo.nextID
}

func (tx *memoryMovTx) CreateMovement(ctx context.Context, m Movement) (int64, error) {
	id := tx.allocID()
	m.ID = id
	tx.repo.movements[id] = m
	return id, nil
}

func (tx *memoryMovTx) InsertItem(ctx context.Context, item Item) (int64, error) {
	id := tx.allocID()
	item.ID = id
	tx.repo.items[id] = item
	return id, nil
}

func (tx *memoryMovTx) GetItemForUpdate(ctx context.Context, movementID, itemID int64) (Item, error) {
	it, ok := tx.repo.items[itemID]
	if !ok || it.MovementID != movementID {
		return Item{}, ErrNotFound
	}
	return it, nil
}

func (tx *memoryMovTx) UpdateItemQty(ctx context.Context, itemID, qty int64) error {
	it, ok := tx.repo.items[itemID]
	if !ok {
		return ErrNotFound
	}
	it.Qty = qty
	tx.repo.items[itemID] = it
	return nil
}

func (tx *memoryMovTx) DeleteItem(ctx context.Context, itemID int64) error {
	if _, ok := tx.repo.items[itemID]; !ok {
		return ErrNotFound
	}
	delete(tx.repo.items, itemID)
	return nil
}

func (tx *memoryMovTx) UpdateMovementStatus(ctx context.Context, id int64, status Status) error {
	m, ok := tx.repo.movements[id]
	if !ok {
		return ErrNotFound
	}
	m.Status = status
	tx.repo.movements[id] = m
	return nil
}

func (tx *memoryMovTx) TouchMovement(ctx context.Context, id int64) error {
	return nil
}

func (tx *memoryMovTx) Stock() inventory.TxRepository {
	return nil
}

type appliedLine struct {
	movementType inventory.MovementType
	op           inventory.Operation
	line         inventory.MovementLine
}

type stubStock struct {
	applied  []appliedLine
	finished int
	failOn   int
}

func (s *stubStock) ApplyMovementLineTx(ctx context.Context, tx inventory.TxRepository, movementType inventory.MovementType, op inventory.Operation, line inventory.MovementLine) ([]inventory.StockChangedEvent, error) {
	if s.failOn > 0 && len(s.applied)+1 == s.failOn {
		return nil, inventory.ErrCapacityExceeded
	}
	s.applied = append(s.applied, appliedLine{movementType: movementType, op: op, line: line})
	return []inventory.StockChangedEvent{{ProductID: line.ProductID}}, nil
}

func (s *stubStock) FinishMovementLine(ctx context.Context, movementType inventory.MovementType, op inventory.Operation, line inventory.MovementLine, events []inventory.StockChangedEvent) {
	s.finished++
}

func newTestMovService(repo *memoryMovRepo, stock *stubStock) *Service {
	return NewService(repo, stock, nil, nil)
}

func TestCreateMovementAppliesAllItems(t *testing.T) {
	repo := newMemoryMovRepo()
	stock := &stubStock{}
	svc := newTestMovService(repo, stock)

	m, err := svc.CreateMovement(context.Background(), CreateMovementInput{
		Type:                   inventory.MovementInflow,
		DestinationWarehouseID: 1,
		SupplierID:             7,
		Items:                  []ItemInput{{ProductID: 10, Qty: 5}, {ProductID: 11, Qty: 3}},
	})
	require.NoError(t, err)
	require.NotZero(t, m.ID)
	require.True(t, strings.HasPrefix(m.Number, "INF-"))

	require.Len(t, stock.applied, 2)
	require.Equal(t, 2, stock.finished)
	for _, a := range stock.applied {
		require.Equal(t, inventory.MovementInflow, a.movementType)
		require.Equal(t, inventory.OperationCreate, a.op)
		require.Equal(t, int64(1), a.line.DestinationWarehouseID)
		require.Zero(t, a.line.PreviousQty)
		require.NotEmpty(t, a.line.RefID)
	}

	_, items, err := repo.GetMovement(context.Background(), m.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestCreateMovementRollsBackWhenStockRejects(t *testing.T) {
	repo := newMemoryMovRepo()
	stock := &stubStock{failOn: 2}
	svc := newTestMovService(repo, stock)

	_, err := svc.CreateMovement(context.Background(), CreateMovementInput{
		Type:                   inventory.MovementInflow,
		DestinationWarehouseID: 1,
		Items:                  []ItemInput{{ProductID: 10, Qty: 5}, {ProductID: 11, Qty: 500}},
	})
	require.ErrorIs(t, err, inventory.ErrCapacityExceeded)
	require.Empty(t, repo.movements)
	require.Empty(t, repo.items)
	require.Zero(t, stock.finished)
}

func TestUpdateItemSendsExactDifferenceInputs(t *testing.T) {
	repo := newMemoryMovRepo()
	stock := &stubStock{}
	svc := newTestMovService(repo, stock)

	m, err := svc.CreateMovement(context.Background(), CreateMovementInput{
		Type:              inventory.MovementOutflow,
		OriginWarehouseID: 2,
		Items:             []ItemInput{{ProductID: 10, Qty: 5}},
	})
	require.NoError(t, err)
	_, items, err := repo.GetMovement(context.Background(), m.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)

	require.NoError(t, svc.UpdateItem(context.Background(), m.ID, items[0].ID, 8))

	last := stock.applied[len(stock.applied)-1]
	require.Equal(t, inventory.OperationUpdate, last.op)
	require.Equal(t, int64(5), last.line.PreviousQty)
	require.Equal(t, int64(8), last.line.Qty)

	_, items, err = repo.GetMovement(context.Background(), m.ID)
	require.NoError(t, err)
	require.Equal(t, int64(8), items[0].Qty)
}

func TestUpdateItemUnchangedQtyIsNoOp(t *testing.T) {
	repo := newMemoryMovRepo()
	stock := &stubStock{}
	svc := newTestMovService(repo, stock)

	m, err := svc.CreateMovement(context.Background(), CreateMovementInput{
		Type:                   inventory.MovementInflow,
		DestinationWarehouseID: 1,
		Items:                  []ItemInput{{ProductID: 10, Qty: 5}},
	})
	require.NoError(t, err)
	_, items, _ := repo.GetMovement(context.Background(), m.ID)

	applied := len(stock.applied)
	require.NoError(t, svc.UpdateItem(context.Background(), m.ID, items[0].ID, 5))
	require.Len(t, stock.applied, applied)
}

func TestUpdateItemRejectedKeepsCommittedQty(t *testing.T) {
	repo := newMemoryMovRepo()
	stock := &stubStock{}
	svc := newTestMovService(repo, stock)

	m, err := svc.CreateMovement(context.Background(), CreateMovementInput{
		Type:                   inventory.MovementInflow,
		DestinationWarehouseID: 1,
		Items:                  []ItemInput{{ProductID: 10, Qty: 5}},
	})
	require.NoError(t, err)
	_, items, _ := repo.GetMovement(context.Background(), m.ID)

	stock.failOn = len(stock.applied) + 1
	err = svc.UpdateItem(context.Background(), m.ID, items[0].ID, 900)
	require.ErrorIs(t, err, inventory.ErrCapacityExceeded)

	_, items, err = repo.GetMovement(context.Background(), m.ID)
	require.NoError(t, err)
	require.Equal(t, int64(5), items[0].Qty)
}

func TestRemoveItemReversesLine(t *testing.T) {
	repo := newMemoryMovRepo()
	stock := &stubStock{}
	svc := newTestMovService(repo, stock)

	m, err := svc.CreateMovement(context.Background(), CreateMovementInput{
		Type:                   inventory.MovementTransfer,
		OriginWarehouseID:      1,
		DestinationWarehouseID: 2,
		Items:                  []ItemInput{{ProductID: 10, Qty: 4}},
	})
	require.NoError(t, err)
	_, items, _ := repo.GetMovement(context.Background(), m.ID)

	require.NoError(t, svc.RemoveItem(context.Background(), m.ID, items[0].ID))

	last := stock.applied[len(stock.applied)-1]
	require.Equal(t, inventory.OperationDelete, last.op)
	require.Equal(t, int64(4), last.line.PreviousQty)

	_, items, err = repo.GetMovement(context.Background(), m.ID)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestCancelMovementReversesAllAndCloses(t *testing.T) {
	repo := newMemoryMovRepo()
	stock := &stubStock{}
	svc := newTestMovService(repo, stock)

	m, err := svc.CreateMovement(context.Background(), CreateMovementInput{
		Type:                   inventory.MovementInflow,
		DestinationWarehouseID: 1,
		Items:                  []ItemInput{{ProductID: 10, Qty: 5}, {ProductID: 11, Qty: 2}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.CancelMovement(context.Background(), m.ID))

	deletes := 0
	for _, a := range stock.applied {
		if a.op == inventory.OperationDelete {
			deletes++
		}
	}
	require.Equal(t, 2, deletes)

	got, items, err := repo.GetMovement(context.Background(), m.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)
	require.Empty(t, items)

	require.ErrorIs(t, svc.CancelMovement(context.Background(), m.ID), ErrInvalidState)
}

func TestAddItemRequiresOpenStatus(t *testing.T) {
	repo := newMemoryMovRepo()
	stock := &stubStock{}
	svc := newTestMovService(repo, stock)

	m, err := svc.CreateMovement(context.Background(), CreateMovementInput{
		Type:                   inventory.MovementInflow,
		DestinationWarehouseID: 1,
		Items:                  []ItemInput{{ProductID: 10, Qty: 5}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.CancelMovement(context.Background(), m.ID))

	_, err = svc.AddItem(context.Background(), m.ID, ItemInput{ProductID: 11, Qty: 1})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestCreateMovementValidatesEndpoints(t *testing.T) {
	svc := newTestMovService(newMemoryMovRepo(), &stubStock{})
	ctx := context.Background()

	cases := []CreateMovementInput{
		{Type: inventory.MovementInflow, Items: []ItemInput{{ProductID: 1, Qty: 1}}},
		{Type: inventory.MovementOutflow, Items: []ItemInput{{ProductID: 1, Qty: 1}}},
		{Type: inventory.MovementTransfer, OriginWarehouseID: 3, DestinationWarehouseID: 3, Items: []ItemInput{{ProductID: 1, Qty: 1}}},
		{Type: "ADJUST", OriginWarehouseID: 1, Items: []ItemInput{{ProductID: 1, Qty: 1}}},
	}
	for _, input := range cases {
		_, err := svc.CreateMovement(ctx, input)
		require.ErrorIs(t, err, ErrValidation)
	}
}

func TestCreateMovementNumberPrefixes(t *testing.T) {
	repo := newMemoryMovRepo()
	stock := &stubStock{}
	svc := newTestMovService(repo, stock)
	ctx := context.Background()

	out, err := svc.CreateMovement(ctx, CreateMovementInput{
		Type:              inventory.MovementOutflow,
		OriginWarehouseID: 1,
		Items:             []ItemInput{{ProductID: 1, Qty: 1}},
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out.Number, "OUT-"))

	trf, err := svc.CreateMovement(ctx, CreateMovementInput{
		Type:                   inventory.MovementTransfer,
		OriginWarehouseID:      1,
		DestinationWarehouseID: 2,
		Items:                  []ItemInput{{ProductID: 1, Qty: 1}},
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(trf.Number, "TRF-"))
}
