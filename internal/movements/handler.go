package movements

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for movement documents.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers movement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/cancel", h.handleCancel)
	r.Post("/{id}/items", h.handleAddItem)
	r.Put("/{id}/items/{itemID}", h.handleUpdateItem)
	r.Delete("/{id}/items/{itemID}", h.handleRemoveItem)
}

type itemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Qty       int64 `json:"qty" validate:"required,gt=0"`
}

type createRequest struct {
	Type                   string        `json:"type" validate:"required,oneof=INFLOW OUTFLOW TRANSFER"`
	Number                 string        `json:"number"`
	OriginWarehouseID      int64         `json:"origin_warehouse_id"`
	DestinationWarehouseID int64         `json:"destination_warehouse_id"`
	SupplierID             int64         `json:"supplier_id"`
	Note                   string        `json:"note"`
	Items                  []itemRequest `json:"items" validate:"required,min=1,dive"`
}

type updateItemRequest struct {
	Qty int64 `json:"qty" validate:"required,gt=0"`
}

type movementResponse struct {
	ID                     int64          `json:"id"`
	Number                 string         `json:"number"`
	Type                   string         `json:"type"`
	Status                 string         `json:"status"`
	OriginWarehouseID      int64          `json:"origin_warehouse_id,omitempty"`
	DestinationWarehouseID int64          `json:"destination_warehouse_id,omitempty"`
	SupplierID             int64          `json:"supplier_id,omitempty"`
	Note                   string         `json:"note,omitempty"`
	Items                  []itemResponse `json:"items,omitempty"`
}

type itemResponse struct {
	ID        int64 `json:"id"`
	ProductID int64 `json:"product_id"`
	Qty       int64 `json:"qty"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateMovementInput{
		Type:                   inventory.MovementType(req.Type),
		Number:                 req.Number,
		OriginWarehouseID:      req.OriginWarehouseID,
		DestinationWarehouseID: req.DestinationWarehouseID,
		SupplierID:             req.SupplierID,
		Note:                   req.Note,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, ItemInput{ProductID: item.ProductID, Qty: item.Qty})
	}
	movement, err := h.service.CreateMovement(r.Context(), input)
	if err != nil {
		h.respondError(w, "create movement", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(movement, nil))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	warehouseID, _ := strconv.ParseInt(r.URL.Query().Get("warehouse_id"), 10, 64)
	filters := ListFilters{
		Type:        inventory.MovementType(r.URL.Query().Get("type")),
		Status:      Status(r.URL.Query().Get("status")),
		WarehouseID: warehouseID,
	}
	items, total, err := h.service.ListMovements(r.Context(), limit, offset, filters)
	if err != nil {
		h.respondError(w, "list movements", err)
		return
	}
	result := make([]movementResponse, 0, len(items))
	for _, m := range items {
		result = append(result, toResponse(m, nil))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": result, "total": total, "limit": limit, "offset": offset})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid movement id")
		return
	}
	movement, items, err := h.service.GetMovement(r.Context(), id)
	if err != nil {
		h.respondError(w, "get movement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(movement, items))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid movement id")
		return
	}
	if err := h.service.CancelMovement(r.Context(), id); err != nil {
		h.respondError(w, "cancel movement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid movement id")
		return
	}
	var req itemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	item, err := h.service.AddItem(r.Context(), id, ItemInput{ProductID: req.ProductID, Qty: req.Qty})
	if err != nil {
		h.respondError(w, "add movement item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, itemResponse{ID: item.ID, ProductID: item.ProductID, Qty: item.Qty})
}

func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid movement id")
		return
	}
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid item id")
		return
	}
	var req updateItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.UpdateItem(r.Context(), id, itemID, req.Qty); err != nil {
		h.respondError(w, "update movement item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid movement id")
		return
	}
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid item id")
		return
	}
	if err := h.service.RemoveItem(r.Context(), id, itemID); err != nil {
		h.respondError(w, "remove movement item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) respondError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, inventory.ErrCapacityExceeded),
		errors.Is(err, inventory.ErrNegativeStock),
		errors.Is(err, inventory.ErrInvalidQuantity):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Stock Rejected", err.Error())
	case errors.Is(err, inventory.ErrLedgerEntryNotFound),
		errors.Is(err, inventory.ErrWarehouseNotFound),
		errors.Is(err, inventory.ErrProductNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error(action+" failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func toResponse(m Movement, items []Item) movementResponse {
	resp := movementResponse{
		ID:                     m.ID,
		Number:                 m.Number,
		Type:                   string(m.Type),
		Status:                 string(m.Status),
		OriginWarehouseID:      m.OriginWarehouseID,
		DestinationWarehouseID: m.DestinationWarehouseID,
		SupplierID:             m.SupplierID,
		Note:                   m.Note,
	}
	for _, it := range items {
		resp.Items = append(resp.Items, itemResponse{ID: it.ID, ProductID: it.ProductID, Qty: it.Qty})
	}
	return resp
}
