package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// responseKeyVersion versions the cache key construction; bump when the key
// derivation changes so stale entries from older builds cannot collide.
const responseKeyVersion = "v1"

// ResponseCache is an optional Redis-backed, exact-key chat-response cache
// shared across skycast instances. It sits behind the in-process semantic
// cache: the semantic layer answers near-duplicate phrasings, this layer
// answers identical normalized keys from any instance.
type ResponseCache struct {
	client *redis.Client
	config *Config
	logger *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewResponseCache creates a Redis-backed response cache
func NewResponseCache(config *Config, logger *zap.Logger) (*ResponseCache, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.MaxConnections
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)

	cache := &ResponseCache{
		client: client,
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Response cache initialized",
		zap.String("redis_url", maskRedisURL(config.URL)),
		zap.Int("max_connections", config.MaxConnections),
		zap.Duration("default_ttl", config.DefaultTTL))

	return cache, nil
}

// ResponseKey builds the exact-match key for a chat response. Field order is
// fixed: prefix, version, normalized city (may be empty), request message.
// Both the normalized city and the message are hashed so arbitrary user text
// never appears in key space.
func (rc *ResponseCache) ResponseKey(normalizedCity, message string) string {
	hasher := sha256.New()
	hasher.Write([]byte(normalizedCity))
	hasher.Write([]byte{0})
	hasher.Write([]byte(message))
	digest := hex.EncodeToString(hasher.Sum(nil))
	return fmt.Sprintf("%s:resp:%s:%s", rc.config.KeyPrefix, responseKeyVersion, digest[:32])
}

// Get fetches a cached response by exact key. A Redis failure is logged and
// reported as a miss so the request path never depends on Redis health.
func (rc *ResponseCache) Get(ctx context.Context, key string) (*CachedResponse, bool) {
	data, err := rc.client.Get(ctx, key).Result()
	if err == redis.Nil {
		rc.misses.Add(1)
		rc.logger.Debug("Response cache miss", zap.String("key", key))
		return nil, false
	} else if err != nil {
		rc.logger.Error("Response cache lookup failed", zap.Error(err))
		return nil, false
	}

	var cached CachedResponse
	if err := json.Unmarshal([]byte(data), &cached); err != nil {
		rc.logger.Error("Failed to unmarshal cached response", zap.Error(err))
		rc.client.Del(ctx, key)
		return nil, false
	}

	rc.hits.Add(1)
	rc.logger.Debug("Response cache hit", zap.String("key", key))
	return &cached, true
}

// Set stores a response under the given key with the configured TTL
func (rc *ResponseCache) Set(ctx context.Context, key string, response *CachedResponse) error {
	response.Key = key
	response.CachedAt = time.Now()
	response.TTL = int64(rc.config.DefaultTTL.Seconds())

	data, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to marshal response for caching: %w", err)
	}

	if err := rc.client.Set(ctx, key, data, rc.config.DefaultTTL).Err(); err != nil {
		rc.logger.Error("Failed to cache response", zap.Error(err))
		return fmt.Errorf("failed to cache response: %w", err)
	}

	rc.logger.Debug("Response cached",
		zap.String("key", key),
		zap.String("type", response.Type))
	return nil
}

// GetStats returns cache performance statistics
func (rc *ResponseCache) GetStats(ctx context.Context) (*Stats, error) {
	info, err := rc.client.Info(ctx, "memory").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get Redis info: %w", err)
	}

	stats := &Stats{
		Hits:   rc.hits.Load(),
		Misses: rc.misses.Load(),
	}

	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	for _, line := range strings.Split(info, "\r\n") {
		if memStr, ok := strings.CutPrefix(line, "used_memory:"); ok {
			if mem, err := strconv.ParseInt(memStr, 10, 64); err == nil {
				stats.MemoryUsage = mem
			}
		}
	}

	if keys, err := rc.client.DBSize(ctx).Result(); err == nil {
		stats.TotalKeys = keys
	}

	return stats, nil
}

// Clear removes all cached responses under this cache's prefix
func (rc *ResponseCache) Clear(ctx context.Context) error {
	pattern := rc.config.KeyPrefix + ":resp:*"

	iter := rc.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}

	batchSize := 100
	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := rc.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	rc.logger.Info("Response cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (rc *ResponseCache) Close() error {
	if rc.client != nil {
		return rc.client.Close()
	}
	return nil
}

// maskRedisURL masks credentials in a Redis URL for logging
func maskRedisURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
