package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"eventrec/recommender/internal/domain"

	"github.com/goccy/go-json"
	"github.com/mmcloughlin/geohash"
	"github.com/redis/go-redis/v9"
)

// SearchCache keeps search results per geohash cell and keyword.
type SearchCache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, lat, lon float64, keyword string) ([]domain.Item, error)
	Set(ctx context.Context, lat, lon float64, keyword string, items []domain.Item) error
}

type redisSearchCache struct {
	redisClient *redis.Client
	keyPrefix   string
	precision   uint
	ttl         time.Duration
}

// NewRedisSearchCache caches results under the same geohash cell the search
// API is queried with, so every point inside one cell shares an entry.
func NewRedisSearchCache(redisClient *redis.Client, precision uint, ttl time.Duration) SearchCache {
	return &redisSearchCache{
		redisClient: redisClient,
		keyPrefix:   "recommender:search:",
		precision:   precision,
		ttl:         ttl,
	}
}

func (c *redisSearchCache) Get(ctx context.Context, lat, lon float64, keyword string) ([]domain.Item, error) {
	key := c.key(lat, lon, keyword)
	val, err := c.redisClient.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached search %s: %w", key, err)
	}

	var items []domain.Item
	if err := json.Unmarshal(val, &items); err != nil {
		return nil, fmt.Errorf("failed to decode cached search %s: %w", key, err)
	}
	return items, nil
}

func (c *redisSearchCache) Set(ctx context.Context, lat, lon float64, keyword string, items []domain.Item) error {
	key := c.key(lat, lon, keyword)
	val, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode search %s: %w", key, err)
	}
	if err := c.redisClient.Set(ctx, key, val, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache search %s: %w", key, err)
	}
	return nil
}

func (c *redisSearchCache) key(lat, lon float64, keyword string) string {
	return Key(c.keyPrefix, lat, lon, keyword, c.precision)
}

// Key builds the cache key for a search around (lat, lon).
func Key(prefix string, lat, lon float64, keyword string, precision uint) string {
	cell := geohash.EncodeWithPrecision(lat, lon, precision)
	return prefix + cell + ":" + strings.ToLower(strings.TrimSpace(keyword))
}
