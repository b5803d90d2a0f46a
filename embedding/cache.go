package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CacheMetrics receives cache hit/miss events. Optional.
type CacheMetrics interface {
	EmbedCacheHit()
	EmbedCacheMiss()
}

// CacheConfig configures the redis vector cache.
type CacheConfig struct {
	KeyPrefix string        `yaml:"key_prefix" json:"key_prefix"`
	TTL       time.Duration `yaml:"ttl" json:"ttl"`
}

// RedisCache decorates a Provider with a redis-backed vector cache.
// Cache failures degrade to the wrapped provider and are never fatal.
// Caching lives here, at the gateway, so the retrieval core stays stateless.
type RedisCache struct {
	inner   Provider
	client  *redis.Client
	config  CacheConfig
	metrics CacheMetrics
	logger  *zap.Logger
}

// NewRedisCache wraps provider with a redis vector cache.
func NewRedisCache(inner Provider, client *redis.Client, config CacheConfig, logger *zap.Logger) *RedisCache {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "graphrag:emb"
	}
	if config.TTL == 0 {
		config.TTL = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{
		inner:  inner,
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "embedding_cache")),
	}
}

// WithMetrics attaches cache metrics.
func (c *RedisCache) WithMetrics(m CacheMetrics) *RedisCache {
	c.metrics = m
	return c
}

func (c *RedisCache) Name() string    { return c.inner.Name() }
func (c *RedisCache) Dimensions() int { return c.inner.Dimensions() }

// EmbedQuery returns the cached vector when present, otherwise embeds through
// the wrapped provider and stores the result best-effort.
func (c *RedisCache) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	key := c.key(query)

	data, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var vector []float64
		if err := json.Unmarshal(data, &vector); err == nil {
			if c.metrics != nil {
				c.metrics.EmbedCacheHit()
			}
			return vector, nil
		}
		c.logger.Warn("corrupt cache entry, re-embedding", zap.String("key", key))
	} else if err != redis.Nil {
		c.logger.Warn("cache read failed, falling through to provider", zap.Error(err))
	}
	if c.metrics != nil {
		c.metrics.EmbedCacheMiss()
	}

	vector, err := c.inner.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(vector); err == nil {
		if err := c.client.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
			c.logger.Warn("cache write failed", zap.Error(err))
		}
	}
	return vector, nil
}

// EmbedDocuments passes through to the wrapped provider; document embedding
// happens once per ingestion and does not benefit from this cache.
func (c *RedisCache) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	return c.inner.EmbedDocuments(ctx, documents)
}

// key hashes the query with FNV-1a; the query text itself never reaches redis.
func (c *RedisCache) key(query string) string {
	h := fnv.New64a()
	h.Write([]byte(query))
	return fmt.Sprintf("%s:%s:%x", c.config.KeyPrefix, c.inner.Name(), h.Sum64())
}
