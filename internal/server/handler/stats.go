package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/polysight/ctfindexer/internal/domain"
)

// StatsReader is the slice of the daily stats store the handler needs.
type StatsReader interface {
	GetByDay(ctx context.Context, dayID int64) (domain.DailyStats, error)
	ListRecent(ctx context.Context, limit int) ([]domain.DailyStats, error)
}

// StatsHandler serves daily aggregate endpoints.
type StatsHandler struct {
	stats  StatsReader
	logger *slog.Logger
}

// NewStatsHandler creates a StatsHandler.
func NewStatsHandler(stats StatsReader, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		stats:  stats,
		logger: logger,
	}
}

// ListDaily returns the most recent day buckets, newest first.
// GET /api/stats/daily?days=30
func (h *StatsHandler) ListDaily(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 365 {
			days = n
		}
	}

	stats, err := h.stats.ListRecent(r.Context(), days)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list daily stats failed",
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list daily stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"days": stats})
}

// GetDay returns one day bucket by its day index (unix days since epoch).
// GET /api/stats/daily/{day}
func (h *StatsHandler) GetDay(w http.ResponseWriter, r *http.Request) {
	dayID, err := strconv.ParseInt(r.PathValue("day"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "day must be an integer")
		return
	}

	stats, err := h.stats.GetByDay(r.Context(), dayID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no stats for day")
			return
		}
		h.logger.ErrorContext(r.Context(), "get daily stats failed",
			slog.Int64("day_id", dayID),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to get daily stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
