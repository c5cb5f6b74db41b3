package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sourcingdev/alibaba-visual-scout/internal/models"
)

const (
	visualKeyPrefix = "scout:visual:"
	textKeyPrefix   = "scout:text:"
)

// RedisClient is the subset of redis operations the cache needs (for testing)
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// ResultCache stores search results in Redis so repeated lookups for the
// same image or query skip the browser entirely.
type ResultCache struct {
	client RedisClient
	ttl    time.Duration
	logger *slog.Logger
}

func NewResultCache(client RedisClient, ttl time.Duration, logger *slog.Logger) *ResultCache {
	return &ResultCache{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "result_cache"),
	}
}

// ImageDigest returns the hex SHA-256 of the image bytes, used both as the
// cache key and as the stored search fingerprint.
func ImageDigest(image []byte) string {
	sum := sha256.Sum256(image)
	return hex.EncodeToString(sum[:])
}

// GetVisual returns cached visual search results for an image digest.
// A cache miss returns (nil, false, nil).
func (c *ResultCache) GetVisual(ctx context.Context, digest string) ([]models.ProductResult, bool, error) {
	return c.get(ctx, visualKeyPrefix+digest)
}

// PutVisual caches visual search results under an image digest.
func (c *ResultCache) PutVisual(ctx context.Context, digest string, results []models.ProductResult) error {
	return c.put(ctx, visualKeyPrefix+digest, results)
}

// GetText returns cached text search results for a query.
func (c *ResultCache) GetText(ctx context.Context, query string) ([]models.ProductResult, bool, error) {
	return c.get(ctx, textKeyPrefix+queryDigest(query))
}

// PutText caches text search results under a query.
func (c *ResultCache) PutText(ctx context.Context, query string, results []models.ProductResult) error {
	return c.put(ctx, textKeyPrefix+queryDigest(query), results)
}

func (c *ResultCache) get(ctx context.Context, key string) ([]models.ProductResult, bool, error) {
	raw, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}

	var results []models.ProductResult
	if err := json.Unmarshal([]byte(raw), &results); err != nil {
		// Stale or corrupt entry, treat as a miss
		c.logger.Warn("dropping unreadable cache entry", "key", key, "error", err)
		return nil, false, nil
	}
	return results, true, nil
}

func (c *ResultCache) put(ctx context.Context, key string, results []models.ProductResult) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("cache marshal %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

func queryDigest(query string) string {
	return ImageDigest([]byte(query))
}
