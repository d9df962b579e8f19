// Package cache holds externally-owned, TTL-bounded read caches. Nothing in
// here is authoritative; every entry can be rebuilt from the database.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	registrydomain "github.com/fabworks/cbbstore/internal/registry/domain"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const popularTTL = 60 * time.Second

// PopularCache keeps recently computed popular-candidate lists in Redis so
// the browse endpoint does not hammer the catalog table. All methods are
// nil-safe and degrade to cache misses.
type PopularCache struct {
	client *redis.Client
	log    *zap.Logger
}

func NewPopularCache(client *redis.Client, log *zap.Logger) *PopularCache {
	if client == nil {
		return nil
	}
	return &PopularCache{
		client: client,
		log:    log.Named("cache.popular"),
	}
}

func key(limit int) string {
	return fmt.Sprintf("cbbstore:popular:%d", limit)
}

func (c *PopularCache) Get(ctx context.Context, limit int) ([]registrydomain.Candidate, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, key(limit)).Bytes()
	if err != nil {
		return nil, false
	}
	var out []registrydomain.Candidate
	if err := json.Unmarshal(raw, &out); err != nil {
		c.log.Warn("dropping undecodable popular cache entry", zap.Error(err))
		return nil, false
	}
	return out, true
}

func (c *PopularCache) Set(ctx context.Context, limit int, candidates []registrydomain.Candidate) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(candidates)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key(limit), raw, popularTTL).Err(); err != nil {
		c.log.Warn("popular cache write failed", zap.Error(err))
	}
}
