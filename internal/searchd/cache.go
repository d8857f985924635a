package searchd

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cversek/macf/pkg/memory"
)

// embeddingCacheScope and embeddingCacheCap bound the in-process fallback
// to a single scoped bucket holding at most this many policies' vectors,
// evicting least-recently-used entries once full.
const (
	embeddingCacheScope = "policy_embedding"
	embeddingCacheCap   = 4096
)

// EmbeddingCache memoizes precomputed embeddings keyed by policy name.
// A nil redis client (no MACF_REDIS_ADDR) degrades to an in-process,
// TTL-matched LRU (pkg/memory), the same optional-Redis shape used
// elsewhere in the pack for tool-result caching.
type EmbeddingCache struct {
	rdb   *redis.Client
	local memory.Store
}

// NewEmbeddingCache builds a cache backed by addr, or a pure in-process
// LRU when addr is empty.
func NewEmbeddingCache(addr string) *EmbeddingCache {
	if addr == "" {
		return &EmbeddingCache{local: memory.NewLRU(embeddingCacheCap)}
	}
	return &EmbeddingCache{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

// Get returns the cached embedding for name, if any.
func (c *EmbeddingCache) Get(ctx context.Context, name string) ([]float32, bool) {
	if c.rdb == nil {
		e, ok := c.local.Get(embeddingCacheScope, "", name)
		if !ok {
			return nil, false
		}
		var vec []float32
		if json.Unmarshal([]byte(e.Value), &vec) != nil {
			return nil, false
		}
		return vec, true
	}
	b, err := c.rdb.Get(ctx, redisKey(name)).Bytes()
	if err != nil {
		return nil, false
	}
	var vec []float32
	if json.Unmarshal(b, &vec) != nil {
		return nil, false
	}
	return vec, true
}

// Set stores vec for name, with a 24h TTL either way.
func (c *EmbeddingCache) Set(ctx context.Context, name string, vec []float32) {
	b, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if c.rdb == nil {
		_ = c.local.Set(embeddingCacheScope, "", name, string(b), memory.WithTTL(24*time.Hour))
		return
	}
	_ = c.rdb.Set(ctx, redisKey(name), b, 24*time.Hour).Err()
}

func redisKey(name string) string { return "macf:embedding:" + name }
