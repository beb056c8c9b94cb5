package provenance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"bloodtrace/internal/platform/redis"
	"bloodtrace/pkg/domain"
)

// traceCache is an advisory read-through cache over Redis. Every failure
// degrades to a miss; a trace is never wrong because the cache was down,
// only slower.
type traceCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func traceKey(class domain.TokenClass, unit domain.UnitID) string {
	return fmt.Sprintf("provenance:trace:%s:%s", class, unit)
}

func treeKey(donation domain.UnitID) string {
	return fmt.Sprintf("provenance:tree:%s", donation)
}

func (c *traceCache) getTrace(ctx context.Context, key string) (Trace, bool) {
	var t Trace
	return t, c.get(ctx, key, &t)
}

func (c *traceCache) getTree(ctx context.Context, key string) (DonationTree, bool) {
	var t DonationTree
	return t, c.get(ctx, key, &t)
}

func (c *traceCache) get(ctx context.Context, key string, dst any) bool {
	if c == nil || c.client == nil {
		return false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.logger.WarnContext(ctx, "discarding undecodable cached trace", "key", key, "error", err)
		return false
	}
	return true
}

func (c *traceCache) put(ctx context.Context, key string, v any) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.WarnContext(ctx, "trace cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.DebugContext(ctx, "trace cache write failed", "key", key, "error", err)
	}
}

func (c *traceCache) invalidate(ctx context.Context, keys ...string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.DebugContext(ctx, "trace cache invalidation failed", "error", err)
	}
}
