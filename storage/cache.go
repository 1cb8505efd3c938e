package storage

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"paper-review/config"
)

// Cache-Keys für die Analytics-Payloads.
const (
	CacheKeyAnalytics = "analytics:global"
	CacheKeyStats     = "analytics:stats"
)

// Cache ist ein dünner Redis-Wrapper für fertig serialisierte
// Analytics-Antworten. Fehler degradieren zu Cache-Miss; der Cache darf die
// Anfrage nie scheitern lassen.
type Cache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCache verbindet sich mit Redis und prüft die Verbindung.
func NewCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Cache{
		rdb:    rdb,
		ttl:    time.Duration(cfg.AnalyticsCacheTTL) * time.Second,
		logger: logger,
	}, nil
}

// Get liefert das gecachte Payload oder false bei Miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return data, true
}

// Set legt ein Payload mit TTL ab.
func (c *Cache) Set(ctx context.Context, key string, payload []byte) {
	if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate entfernt die angegebenen Keys (nach Submissions und
// Paper-Mutationen).
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("Cache invalidation failed", zap.Error(err))
	}
}

// Close schließt die Redis-Verbindung.
func (c *Cache) Close() error {
	return c.rdb.Close()
}
