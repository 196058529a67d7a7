package movements

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetMovement(ctx context.Context, id int64) (Movement, []Item, error)
	ListMovements(ctx context.Context, limit, offset int, filters ListFilters) ([]Movement, int64, error)
}

// StockPort exposes the required stock reconciliation integration. The apply
// runs inside the movements transaction via the ledger repository handed in;
// FinishMovementLine runs the deferred side effects after commit.
type StockPort interface {
	ApplyMovementLineTx(ctx context.Context, tx inventory.TxRepository, movementType inventory.MovementType, op inventory.Operation, line inventory.MovementLine) ([]inventory.StockChangedEvent, error)
	FinishMovementLine(ctx context.Context, movementType inventory.MovementType, op inventory.Operation, line inventory.MovementLine, events []inventory.StockChangedEvent)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates movement documents. Every item write and its ledger
// effect run in one shared transaction, so a rejected line leaves both the
// document and the ledger exactly as they were.
type Service struct {
	repo        RepositoryPort
	stock       StockPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
}

// NewService constructs the movements service.
func NewService(repo RepositoryPort, stock StockPort, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, stock: stock, audit: audit, idempotency: idem}
}

// ItemInput describes one product line.
type ItemInput struct {
	ProductID int64
	Qty       int64
}

// CreateMovementInput describes the creation payload.
type CreateMovementInput struct {
	Type                   inventory.MovementType
	Number                 string
	OriginWarehouseID      int64
	DestinationWarehouseID int64
	SupplierID             int64
	Note                   string
	Items                  []ItemInput
}

// CreateMovement persists the header and items and credits or debits the
// ledger for every item.
func (s *Service) CreateMovement(ctx context.Context, input CreateMovementInput) (Movement, error) {
	if err := validateEndpoints(input.Type, input.OriginWarehouseID, input.DestinationWarehouseID); err != nil {
		return Movement{}, err
	}
	if len(input.Items) == 0 {
		return Movement{}, fmt.Errorf("%w: at least one item required", ErrValidation)
	}
	for _, item := range input.Items {
		if item.ProductID == 0 || item.Qty <= 0 {
			return Movement{}, fmt.Errorf("%w: product and positive qty required", ErrValidation)
		}
	}
	if input.Number == "" {
		input.Number = generateNumber(numberPrefix(input.Type))
	}

	key := fmt.Sprintf("MOV:%s", input.Number)
	inserted := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "movements.create"); err != nil {
			return Movement{}, err
		}
		inserted = true
	}

	movement := Movement{
		Number:                 input.Number,
		Type:                   input.Type,
		Status:                 StatusOpen,
		OriginWarehouseID:      input.OriginWarehouseID,
		DestinationWarehouseID: input.DestinationWarehouseID,
		SupplierID:             input.SupplierID,
		Note:                   input.Note,
	}
	applied := make([]stockApply, 0, len(input.Items))
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		applied = applied[:0]
		id, err := tx.CreateMovement(ctx, movement)
		if err != nil {
			return err
		}
		movement.ID = id
		for _, item := range input.Items {
			itemID, err := tx.InsertItem(ctx, Item{MovementID: id, ProductID: item.ProductID, Qty: item.Qty})
			if err != nil {
				return err
			}
			line := s.lineFor(movement, item.ProductID, 0, item.Qty, itemID)
			if err := s.applyStock(ctx, tx, movement.Type, inventory.OperationCreate, line, &applied); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if inserted {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Movement{}, err
	}
	s.finishStock(ctx, movement.Type, applied)
	s.recordAudit(ctx, "MOVEMENT_CREATE", movement.ID, map[string]any{"number": movement.Number, "type": movement.Type})
	return movement, nil
}

// AddItem appends a product line to an open movement.
func (s *Service) AddItem(ctx context.Context, movementID int64, input ItemInput) (Item, error) {
	if input.ProductID == 0 || input.Qty <= 0 {
		return Item{}, fmt.Errorf("%w: product and positive qty required", ErrValidation)
	}
	movement, _, err := s.repo.GetMovement(ctx, movementID)
	if err != nil {
		return Item{}, err
	}
	if movement.Status != StatusOpen {
		return Item{}, ErrInvalidState
	}
	item := Item{MovementID: movementID, ProductID: input.ProductID, Qty: input.Qty}
	var applied []stockApply
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		applied = applied[:0]
		id, err := tx.InsertItem(ctx, item)
		if err != nil {
			return err
		}
		item.ID = id
		line := s.lineFor(movement, input.ProductID, 0, input.Qty, id)
		if err := s.applyStock(ctx, tx, movement.Type, inventory.OperationCreate, line, &applied); err != nil {
			return err
		}
		return tx.TouchMovement(ctx, movementID)
	})
	if err != nil {
		return Item{}, err
	}
	s.finishStock(ctx, movement.Type, applied)
	s.recordAudit(ctx, "MOVEMENT_ITEM_ADD", movementID, map[string]any{"product_id": input.ProductID, "qty": input.Qty})
	return item, nil
}

// UpdateItem changes the quantity of an existing line. The committed
// quantity is snapshotted under the item row lock so the ledger receives
// the exact difference.
func (s *Service) UpdateItem(ctx context.Context, movementID, itemID, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: qty must be positive", ErrValidation)
	}
	movement, _, err := s.repo.GetMovement(ctx, movementID)
	if err != nil {
		return err
	}
	if movement.Status != StatusOpen {
		return ErrInvalidState
	}
	var applied []stockApply
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		applied = applied[:0]
		item, err := tx.GetItemForUpdate(ctx, movementID, itemID)
		if err != nil {
			return err
		}
		if item.Qty == qty {
			return nil
		}
		line := s.lineFor(movement, item.ProductID, item.Qty, qty, itemID)
		if err := s.applyStock(ctx, tx, movement.Type, inventory.OperationUpdate, line, &applied); err != nil {
			return err
		}
		if err := tx.UpdateItemQty(ctx, itemID, qty); err != nil {
			return err
		}
		return tx.TouchMovement(ctx, movementID)
	})
	if err != nil {
		return err
	}
	s.finishStock(ctx, movement.Type, applied)
	s.recordAudit(ctx, "MOVEMENT_ITEM_UPDATE", movementID, map[string]any{"item_id": itemID, "qty": qty})
	return nil
}

// RemoveItem deletes a line and reverses its ledger effect.
func (s *Service) RemoveItem(ctx context.Context, movementID, itemID int64) error {
	movement, _, err := s.repo.GetMovement(ctx, movementID)
	if err != nil {
		return err
	}
	if movement.Status != StatusOpen {
		return ErrInvalidState
	}
	var applied []stockApply
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		applied = applied[:0]
		item, err := tx.GetItemForUpdate(ctx, movementID, itemID)
		if err != nil {
			return err
		}
		line := s.lineFor(movement, item.ProductID, item.Qty, 0, itemID)
		if err := s.applyStock(ctx, tx, movement.Type, inventory.OperationDelete, line, &applied); err != nil {
			return err
		}
		if err := tx.DeleteItem(ctx, itemID); err != nil {
			return err
		}
		return tx.TouchMovement(ctx, movementID)
	})
	if err != nil {
		return err
	}
	s.finishStock(ctx, movement.Type, applied)
	s.recordAudit(ctx, "MOVEMENT_ITEM_DELETE", movementID, map[string]any{"item_id": itemID})
	return nil
}

// CancelMovement reverses every remaining line and closes the document.
func (s *Service) CancelMovement(ctx context.Context, movementID int64) error {
	movement, items, err := s.repo.GetMovement(ctx, movementID)
	if err != nil {
		return err
	}
	if movement.Status != StatusOpen {
		return ErrInvalidState
	}
	applied := make([]stockApply, 0, len(items))
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		applied = applied[:0]
		for _, it := range items {
			locked, err := tx.GetItemForUpdate(ctx, movementID, it.ID)
			if err != nil {
				return err
			}
			line := s.lineFor(movement, locked.ProductID, locked.Qty, 0, locked.ID)
			if err := s.applyStock(ctx, tx, movement.Type, inventory.OperationDelete, line, &applied); err != nil {
				return err
			}
			if err := tx.DeleteItem(ctx, locked.ID); err != nil {
				return err
			}
		}
		return tx.UpdateMovementStatus(ctx, movementID, StatusCancelled)
	})
	if err != nil {
		return err
	}
	s.finishStock(ctx, movement.Type, applied)
	s.recordAudit(ctx, "MOVEMENT_CANCEL", movementID, map[string]any{"number": movement.Number})
	return nil
}

// GetMovement returns a movement with its items.
func (s *Service) GetMovement(ctx context.Context, id int64) (Movement, []Item, error) {
	return s.repo.GetMovement(ctx, id)
}

// ListMovements returns movement headers matching filters.
func (s *Service) ListMovements(ctx context.Context, limit, offset int, filters ListFilters) ([]Movement, int64, error) {
	return s.repo.ListMovements(ctx, limit, offset, filters)
}

// stockApply keeps the inputs and events of one in-transaction ledger apply
// so the post-commit side effects can run after the transaction commits.
type stockApply struct {
	op     inventory.Operation
	line   inventory.MovementLine
	events []inventory.StockChangedEvent
}

func (s *Service) applyStock(ctx context.Context, tx TxRepository, movementType inventory.MovementType, op inventory.Operation, line inventory.MovementLine, applied *[]stockApply) error {
	events, err := s.stock.ApplyMovementLineTx(ctx, tx.Stock(), movementType, op, line)
	if err != nil {
		return err
	}
	*applied = append(*applied, stockApply{op: op, line: line, events: events})
	return nil
}

func (s *Service) finishStock(ctx context.Context, movementType inventory.MovementType, applied []stockApply) {
	for _, a := range applied {
		s.stock.FinishMovementLine(ctx, movementType, a.op, a.line, a.events)
	}
}

func (s *Service) lineFor(movement Movement, productID, previousQty, qty, itemID int64) inventory.MovementLine {
	refID := uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("MOV:%d:%d", movement.ID, itemID)))
	return inventory.MovementLine{
		ProductID:              productID,
		OriginWarehouseID:      movement.OriginWarehouseID,
		DestinationWarehouseID: movement.DestinationWarehouseID,
		PreviousQty:            previousQty,
		Qty:                    qty,
		RefID:                  refID.String(),
	}
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "stock_movements", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}

func validateEndpoints(movementType inventory.MovementType, originID, destinationID int64) error {
	switch movementType {
	case inventory.MovementInflow:
		if destinationID == 0 {
			return fmt.Errorf("%w: inflow requires a destination warehouse", ErrValidation)
		}
	case inventory.MovementOutflow:
		if originID == 0 {
			return fmt.Errorf("%w: outflow requires an origin warehouse", ErrValidation)
		}
	case inventory.MovementTransfer:
		if originID == 0 || destinationID == 0 {
			return fmt.Errorf("%w: transfer requires origin and destination", ErrValidation)
		}
		if originID == destinationID {
			return fmt.Errorf("%w: transfer warehouses must differ", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown movement type %q", ErrValidation, movementType)
	}
	return nil
}

func numberPrefix(movementType inventory.MovementType) string {
	switch movementType {
	case inventory.MovementInflow:
		return "INF"
	case inventory.MovementOutflow:
		return "OUT"
	case inventory.MovementTransfer:
		return "TRF"
	}
	return "MOV"
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
