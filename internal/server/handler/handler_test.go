package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polysight/ctfindexer/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMarkets struct {
	markets map[string]domain.Market
	listErr error
}

func (f *fakeMarkets) GetByTokenID(_ context.Context, tokenID string) (domain.Market, error) {
	m, ok := f.markets[tokenID]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (f *fakeMarkets) List(_ context.Context, _ domain.ListOpts) ([]domain.Market, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Market, 0, len(f.markets))
	for _, m := range f.markets {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeMarkets) Count(_ context.Context) (int64, error) {
	if f.listErr != nil {
		return 0, f.listErr
	}
	return int64(len(f.markets)), nil
}

type fakeCache struct {
	entries map[string]domain.Market
	sets    int
}

func (f *fakeCache) Get(_ context.Context, tokenID string) (domain.Market, error) {
	m, ok := f.entries[tokenID]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (f *fakeCache) Set(_ context.Context, m domain.Market) error {
	f.entries[m.TokenID] = m
	f.sets++
	return nil
}

func (f *fakeCache) Invalidate(_ context.Context, tokenID string) error {
	delete(f.entries, tokenID)
	return nil
}

type fakeOrders struct {
	orders map[string]domain.Order
}

func (f *fakeOrders) GetByID(_ context.Context, id string) (domain.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrders) ListRecent(_ context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	out := make([]domain.Order, 0, len(f.orders))
	for _, o := range f.orders {
		out = append(out, o)
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

type fakeStats struct {
	days map[int64]domain.DailyStats
}

func (f *fakeStats) GetByDay(_ context.Context, dayID int64) (domain.DailyStats, error) {
	d, ok := f.days[dayID]
	if !ok {
		return domain.DailyStats{}, domain.ErrNotFound
	}
	return d, nil
}

func (f *fakeStats) ListRecent(_ context.Context, limit int) ([]domain.DailyStats, error) {
	out := make([]domain.DailyStats, 0, len(f.days))
	for _, d := range f.days {
		out = append(out, d)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func marketMux(h *MarketHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/markets", h.ListMarkets)
	mux.HandleFunc("GET /api/markets/{token}", h.GetMarket)
	return mux
}

func TestMarketHandler(t *testing.T) {
	market := domain.Market{
		TokenID:     "1234",
		Question:    domain.DefaultQuestion("1234"),
		Status:      domain.MarketStatusActive,
		TotalVolume: decimal.RequireFromString("55"),
		TotalOrders: 2,
	}

	t.Run("get market caches on miss", func(t *testing.T) {
		cache := &fakeCache{entries: map[string]domain.Market{}}
		h := NewMarketHandler(&fakeMarkets{markets: map[string]domain.Market{"1234": market}}, cache, testLogger())

		rec := httptest.NewRecorder()
		marketMux(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets/1234", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
		}
		var got domain.Market
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Question != "Market 1234" {
			t.Errorf("Question = %q", got.Question)
		}
		if cache.sets != 1 {
			t.Errorf("cache sets = %d, want 1", cache.sets)
		}
	})

	t.Run("get market serves cache hit without store", func(t *testing.T) {
		cache := &fakeCache{entries: map[string]domain.Market{"1234": market}}
		// Empty store proves the hit never reaches it.
		h := NewMarketHandler(&fakeMarkets{markets: map[string]domain.Market{}}, cache, testLogger())

		rec := httptest.NewRecorder()
		marketMux(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets/1234", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("unknown market is 404", func(t *testing.T) {
		h := NewMarketHandler(&fakeMarkets{markets: map[string]domain.Market{}}, nil, testLogger())

		rec := httptest.NewRecorder()
		marketMux(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets/999", nil))

		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("list markets returns total", func(t *testing.T) {
		h := NewMarketHandler(&fakeMarkets{markets: map[string]domain.Market{"1234": market}}, nil, testLogger())

		rec := httptest.NewRecorder()
		marketMux(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets?limit=10", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var got listMarketsResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Total != 1 || len(got.Markets) != 1 {
			t.Errorf("total = %d, markets = %d", got.Total, len(got.Markets))
		}
		if got.Limit != 10 {
			t.Errorf("limit = %d", got.Limit)
		}
	})

	t.Run("store failure is 500", func(t *testing.T) {
		h := NewMarketHandler(&fakeMarkets{listErr: errors.New("pool closed")}, nil, testLogger())

		rec := httptest.NewRecorder()
		marketMux(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets", nil))

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}

func TestOrderHandler(t *testing.T) {
	order := domain.Order{
		ID:        "0xabc",
		OrderHash: "0xabc",
		Side:      domain.SideBuy,
		Price:     decimal.RequireFromString("50"),
		VolumeUSD: decimal.RequireFromString("50"),
		Timestamp: time.Unix(1700000000, 0).UTC(),
	}

	h := NewOrderHandler(&fakeOrders{orders: map[string]domain.Order{"0xabc": order}}, testLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/orders", h.ListOrders)
	mux.HandleFunc("GET /api/orders/{hash}", h.GetOrder)

	t.Run("get order by hash", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders/0xabc", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var got domain.Order
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Side != domain.SideBuy {
			t.Errorf("Side = %q", got.Side)
		}
	})

	t.Run("unknown hash is 404", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders/0xmissing", nil))

		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("list orders", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders?limit=5", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var got listOrdersResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if len(got.Orders) != 1 {
			t.Errorf("orders = %d", len(got.Orders))
		}
	})
}

func TestStatsHandler(t *testing.T) {
	day := domain.DailyStats{
		DayID:        19723,
		Date:         "2024-01-01",
		TotalVolume:  decimal.RequireFromString("110"),
		TotalOrders:  2,
		AvgOrderSize: decimal.RequireFromString("55"),
	}

	h := NewStatsHandler(&fakeStats{days: map[int64]domain.DailyStats{19723: day}}, testLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/stats/daily", h.ListDaily)
	mux.HandleFunc("GET /api/stats/daily/{day}", h.GetDay)

	t.Run("get day", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats/daily/19723", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var got domain.DailyStats
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Date != "2024-01-01" {
			t.Errorf("Date = %q", got.Date)
		}
	})

	t.Run("non-integer day is 400", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats/daily/today", nil))

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("missing day is 404", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats/daily/1", nil))

		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("list days", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats/daily?days=7", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}

func TestHealthHandler(t *testing.T) {
	t.Run("all checks pass", func(t *testing.T) {
		h := NewHealthHandler(map[string]Pinger{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return nil },
		})

		rec := httptest.NewRecorder()
		h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("failing dependency degrades", func(t *testing.T) {
		h := NewHealthHandler(map[string]Pinger{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		})

		rec := httptest.NewRecorder()
		h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d", rec.Code)
		}

		var body struct {
			Status string            `json:"status"`
			Deps   map[string]string `json:"dependencies"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if body.Status != "degraded" {
			t.Errorf("status = %q", body.Status)
		}
		if body.Deps["postgres"] != "ok" {
			t.Errorf("postgres = %q", body.Deps["postgres"])
		}
	})
}
