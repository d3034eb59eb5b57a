// Package cache provides the Redis-backed read-side cache for per-user
// order status counts. The database stays the source of truth: cache write
// and invalidation failures are logged and swallowed, a miss just falls
// through to the counting query.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/studyhub/marketplace-api/internal/order/domain"
)

// countsTTL bounds staleness when an invalidation is lost.
const countsTTL = 30 * time.Second

type CountsCache struct {
	client      *redis.Client
	serviceName string
}

func NewCountsCache(addr, serviceName string) *CountsCache {
	return &CountsCache{
		client:      redis.NewClient(&redis.Options{Addr: addr}),
		serviceName: serviceName,
	}
}

func (c *CountsCache) GetCounts(ctx context.Context, role string, userID int64) (map[domain.Status]int64, bool) {
	raw, err := c.client.Get(ctx, c.key(role, userID)).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.WarnContext(ctx, "counts cache read failed", "role", role, "user_id", userID, "error", err)
		return nil, false
	}

	var counts map[domain.Status]int64
	if err := json.Unmarshal([]byte(raw), &counts); err != nil {
		slog.WarnContext(ctx, "counts cache entry corrupt", "role", role, "user_id", userID, "error", err)
		return nil, false
	}
	return counts, true
}

func (c *CountsCache) SetCounts(ctx context.Context, role string, userID int64, counts map[domain.Status]int64) {
	data, err := json.Marshal(counts)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(role, userID), data, countsTTL).Err(); err != nil {
		slog.WarnContext(ctx, "counts cache write failed", "role", role, "user_id", userID, "error", err)
	}
}

// InvalidateCounts drops both the buyer and seller entries of every user.
func (c *CountsCache) InvalidateCounts(ctx context.Context, userIDs ...int64) {
	keys := make([]string, 0, len(userIDs)*2)
	for _, id := range userIDs {
		keys = append(keys, c.key("buyer", id), c.key("seller", id))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		slog.WarnContext(ctx, "counts cache invalidation failed", "user_ids", userIDs, "error", err)
	}
}

func (c *CountsCache) key(role string, userID int64) string {
	return fmt.Sprintf("%s:order-counts:%s:%d", c.serviceName, role, userID)
}
