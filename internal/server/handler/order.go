package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/polysight/ctfindexer/internal/domain"
)

// OrderReader is the slice of the order store the handler needs.
type OrderReader interface {
	GetByID(ctx context.Context, id string) (domain.Order, error)
	ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error)
}

// OrderHandler serves persisted order endpoints.
type OrderHandler struct {
	orders OrderReader
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(orders OrderReader, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logger,
	}
}

// listOrdersResponse wraps the list endpoint output with metadata.
type listOrdersResponse struct {
	Orders []domain.Order `json:"orders"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// ListOrders returns recent orders, newest first, optionally bounded by
// since/until unix timestamps.
// GET /api/orders?limit=50&offset=0&since=1700000000
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	orders, err := h.orders.ListRecent(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list orders failed",
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	writeJSON(w, http.StatusOK, listOrdersResponse{
		Orders: orders,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// GetOrder returns a single order by its hash.
// GET /api/orders/{hash}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	if hash == "" {
		writeError(w, http.StatusBadRequest, "missing order hash")
		return
	}

	order, err := h.orders.GetByID(r.Context(), hash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get order failed",
			slog.String("order_hash", hash),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to get order")
		return
	}

	writeJSON(w, http.StatusOK, order)
}
