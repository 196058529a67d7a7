package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for ledger reads and repair.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the stock handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/warehouses/{warehouseID}/products/{productID}", h.handleCurrentQuantity)
	r.Post("/warehouses/{warehouseID}/recompute", h.handleRecompute)
}

type quantityResponse struct {
	WarehouseID int64 `json:"warehouse_id"`
	ProductID   int64 `json:"product_id"`
	Quantity    int64 `json:"quantity"`
}

type recomputeResponse struct {
	WarehouseID int64 `json:"warehouse_id"`
	Quantity    int64 `json:"quantity"`
}

func (h *Handler) handleCurrentQuantity(w http.ResponseWriter, r *http.Request) {
	warehouseID, err := strconv.ParseInt(chi.URLParam(r, "warehouseID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid warehouse id")
		return
	}
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	qty, err := h.service.CurrentQuantity(r.Context(), warehouseID, productID)
	if err != nil {
		if errors.Is(err, ErrLedgerEntryNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("get current quantity failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, quantityResponse{WarehouseID: warehouseID, ProductID: productID, Quantity: qty})
}

func (h *Handler) handleRecompute(w http.ResponseWriter, r *http.Request) {
	warehouseID, err := strconv.ParseInt(chi.URLParam(r, "warehouseID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid warehouse id")
		return
	}
	total, err := h.service.RecomputeWarehouseTotal(r.Context(), warehouseID)
	if err != nil {
		if errors.Is(err, ErrWarehouseNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("recompute warehouse total failed",
			slog.Int64("warehouse_id", warehouseID), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	h.logger.Info("warehouse total recomputed",
		slog.Int64("warehouse_id", warehouseID), slog.Int64("quantity", total))
	httpx.JSON(w, http.StatusOK, recomputeResponse{WarehouseID: warehouseID, Quantity: total})
}
