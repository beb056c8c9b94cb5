package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"bloodtrace/internal/platform/redis"
	"bloodtrace/pkg/domain"
)

// offerCache is an advisory cache for the on-sale view. The ledger is
// re-read before every mutation regardless, so a stale view costs a
// conflict at worst, never a wrong trade.
type offerCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func offersKey(class domain.TokenClass) string {
	return fmt.Sprintf("market:listings:%s", class)
}

func (c *offerCache) get(ctx context.Context, key string) ([]Offer, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var offers []Offer
	if err := json.Unmarshal(raw, &offers); err != nil {
		c.logger.WarnContext(ctx, "discarding undecodable cached offers", "key", key, "error", err)
		return nil, false
	}
	return offers, true
}

func (c *offerCache) put(ctx context.Context, key string, offers []Offer) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(offers)
	if err != nil {
		c.logger.WarnContext(ctx, "offer cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.DebugContext(ctx, "offer cache write failed", "key", key, "error", err)
	}
}

func (c *offerCache) invalidate(ctx context.Context, key string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.DebugContext(ctx, "offer cache invalidation failed", "error", err)
	}
}
