package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/polysight/ctfindexer/internal/domain"
)

// MarketReader is the slice of the market store the handler needs.
type MarketReader interface {
	GetByTokenID(ctx context.Context, tokenID string) (domain.Market, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	Count(ctx context.Context) (int64, error)
}

// MarketHandler serves market aggregate endpoints. Single-market reads go
// through the cache when one is configured; the cache is best-effort and a
// cache failure never fails the request.
type MarketHandler struct {
	markets MarketReader
	cache   domain.MarketCache
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler. cache may be nil.
func NewMarketHandler(markets MarketReader, cache domain.MarketCache, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		cache:   cache,
		logger:  logger,
	}
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets returns markets ordered by most recent activity.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.markets.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list markets failed",
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	total, err := h.markets.Count(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "count markets failed",
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to count markets")
		return
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market by its token id.
// GET /api/markets/{token}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	tokenID := r.PathValue("token")
	if tokenID == "" {
		writeError(w, http.StatusBadRequest, "missing token id")
		return
	}

	if h.cache != nil {
		if market, err := h.cache.Get(r.Context(), tokenID); err == nil {
			writeJSON(w, http.StatusOK, market)
			return
		}
	}

	market, err := h.markets.GetByTokenID(r.Context(), tokenID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get market failed",
			slog.String("token_id", tokenID),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return
	}

	if h.cache != nil {
		if err := h.cache.Set(r.Context(), market); err != nil {
			h.logger.WarnContext(r.Context(), "market cache set failed",
				slog.String("token_id", tokenID),
				slog.String("error", err.Error()))
		}
	}

	writeJSON(w, http.StatusOK, market)
}
