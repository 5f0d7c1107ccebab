package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/polysight/ctfindexer/internal/domain"
)

const marketTTL = 30 * time.Second

// MarketCache implements domain.MarketCache using JSON-serialized Market
// records under market:{tokenID} keys. The TTL is short because the record
// carries running totals that move with every fill.
type MarketCache struct {
	rdb *redis.Client
}

// NewMarketCache creates a MarketCache backed by the given Client.
func NewMarketCache(c *Client) *MarketCache {
	return &MarketCache{rdb: c.Underlying()}
}

func marketKey(tokenID string) string { return "market:" + tokenID }

// Set stores a Market in the cache.
func (mc *MarketCache) Set(ctx context.Context, market domain.Market) error {
	data, err := json.Marshal(market)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", market.TokenID, err)
	}

	if err := mc.rdb.Set(ctx, marketKey(market.TokenID), data, marketTTL).Err(); err != nil {
		return fmt.Errorf("redis: set market %s: %w", market.TokenID, err)
	}
	return nil
}

// Get retrieves a Market by token ID. It returns domain.ErrNotFound when the
// key does not exist.
func (mc *MarketCache) Get(ctx context.Context, tokenID string) (domain.Market, error) {
	data, err := mc.rdb.Get(ctx, marketKey(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market %s: %w", tokenID, err)
	}

	var market domain.Market
	if err := json.Unmarshal(data, &market); err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal market %s: %w", tokenID, err)
	}
	return market, nil
}

// Invalidate removes a Market from the cache.
func (mc *MarketCache) Invalidate(ctx context.Context, tokenID string) error {
	if err := mc.rdb.Del(ctx, marketKey(tokenID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %s: %w", tokenID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
