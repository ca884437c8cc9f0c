package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/Jyllands-Posten/solrprocessors/internal/document"
)

// ResultCache stores processed documents in Redis keyed by the processing
// chain fingerprint and the input document.
type ResultCache struct {
	client *redis.Client
	config *Config
	logger *zap.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// NewResultCache creates a new Redis-backed result cache
func NewResultCache(config *Config, logger *zap.Logger) (*ResultCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Configure connection pool
	opts.PoolSize = config.MaxConnections
	opts.MinIdleConns = config.MinIdleConns

	rc := newResultCache(redis.NewClient(opts), config, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rc.client.Ping(ctx).Err(); err != nil {
		rc.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Result cache initialized successfully",
		zap.String("redis_url", maskURL(config.RedisURL)),
		zap.Int("max_connections", config.MaxConnections),
		zap.Duration("default_ttl", config.DefaultTTL))

	return rc, nil
}

func newResultCache(client *redis.Client, config *Config, logger *zap.Logger) *ResultCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultCache{
		client: client,
		config: config,
		logger: logger,
	}
}

// Key returns the cache key for doc processed by the chain identified by
// fingerprint. encoding/json sorts map keys, so equal documents share a key.
func (rc *ResultCache) Key(fingerprint string, doc document.Document) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode document for cache key: %w", err)
	}

	hasher := sha256.New()
	hasher.Write([]byte(fingerprint))
	hasher.Write([]byte{0})
	hasher.Write(data)
	hash := hex.EncodeToString(hasher.Sum(nil))

	return fmt.Sprintf("%s:doc:%s", rc.config.KeyPrefix, hash[:32]), nil
}

// Get looks up the processed form of doc. A miss, a corrupted entry and a
// Redis failure all report ok == false; only the last returns an error.
func (rc *ResultCache) Get(ctx context.Context, fingerprint string, doc document.Document) (*CachedResult, bool, error) {
	key, err := rc.Key(fingerprint, doc)
	if err != nil {
		return nil, false, err
	}

	data, err := rc.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		rc.misses.Add(1)
		rc.logger.Debug("Cache miss", zap.String("key", key))
		return nil, false, nil
	} else if err != nil {
		rc.misses.Add(1)
		return nil, false, fmt.Errorf("cache lookup failed: %w", err)
	}

	cached, err := decodeResult(data)
	if err != nil || cached.Fingerprint != fingerprint {
		rc.misses.Add(1)
		rc.logger.Warn("Discarding unusable cache entry", zap.String("key", key), zap.Error(err))
		rc.client.Del(ctx, key)
		return nil, false, nil
	}

	rc.hits.Add(1)
	rc.logger.Debug("Cache hit", zap.String("key", key))
	return cached, true, nil
}

// decodeResult reads a cache entry. Numbers stay json.Number so a hit
// returns the same document as the uncached path.
func decodeResult(data []byte) (*CachedResult, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var cached CachedResult
	if err := dec.Decode(&cached); err != nil {
		return nil, err
	}
	return &cached, nil
}

// Set caches result as the processed form of input
func (rc *ResultCache) Set(ctx context.Context, input document.Document, result *CachedResult) error {
	key, err := rc.Key(result.Fingerprint, input)
	if err != nil {
		return err
	}

	result.CachedAt = time.Now()
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result for caching: %w", err)
	}

	if err := rc.client.Set(ctx, key, data, rc.config.DefaultTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache result: %w", err)
	}
	return nil
}

// StoreBatch caches multiple results using a Redis pipeline
func (rc *ResultCache) StoreBatch(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	pipe := rc.client.Pipeline()
	queued := 0

	for _, e := range entries {
		key, err := rc.Key(e.Result.Fingerprint, e.Input)
		if err != nil {
			rc.logger.Warn("Skipping batch cache entry", zap.Error(err))
			continue
		}

		e.Result.CachedAt = time.Now()
		data, err := json.Marshal(e.Result)
		if err != nil {
			rc.logger.Warn("Failed to marshal result for batch caching", zap.Error(err))
			continue
		}

		pipe.Set(ctx, key, data, rc.config.DefaultTTL)
		queued++
	}

	if queued == 0 {
		return nil
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("batch cache operation failed: %w", err)
	}

	rc.logger.Debug("Batch cache operation completed", zap.Int("cached_results", queued))
	return nil
}

// GetStats returns cache performance statistics
func (rc *ResultCache) GetStats(ctx context.Context) (*CacheStats, error) {
	info, err := rc.client.Info(ctx, "memory").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get Redis info: %w", err)
	}

	stats := &CacheStats{
		Hits:        rc.hits.Load(),
		Misses:      rc.misses.Load(),
		MemoryUsage: parseUsedMemory(info),
	}

	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	if keys, err := rc.client.DBSize(ctx).Result(); err == nil {
		stats.TotalKeys = keys
	}

	return stats, nil
}

// Clear removes all cached results under the key prefix
func (rc *ResultCache) Clear(ctx context.Context) error {
	iter := rc.client.Scan(ctx, 0, rc.config.KeyPrefix+":*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}

	const batchSize = 100
	for i := 0; i < len(keys); i += batchSize {
		end := min(i+batchSize, len(keys))
		if err := rc.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	rc.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (rc *ResultCache) Close() error {
	if rc.client != nil {
		return rc.client.Close()
	}
	return nil
}

// parseUsedMemory extracts used_memory from a Redis INFO reply
func parseUsedMemory(info string) int64 {
	for _, line := range strings.Split(info, "\r\n") {
		if memStr, ok := strings.CutPrefix(line, "used_memory:"); ok {
			if mem, err := strconv.ParseInt(memStr, 10, 64); err == nil {
				return mem
			}
		}
	}
	return 0
}

// maskURL masks the password of a connection URL for logging
func maskURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userPart := url[:at]
	colon := strings.LastIndex(userPart, ":")
	scheme := strings.Index(userPart, "://")
	if colon < 0 || colon <= scheme+2 {
		return url
	}
	return userPart[:colon+1] + "***" + url[at:]
}
