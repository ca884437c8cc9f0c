package cache

import (
	"time"

	"github.com/Jyllands-Posten/solrprocessors/internal/document"
)

// Config contains cache configuration
type Config struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DefaultTTL     time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// CachedResult is a processed document stored under the hash of its input
type CachedResult struct {
	Fingerprint string            `json:"fingerprint"`
	Document    document.Document `json:"document"`
	Modified    []string          `json:"modified,omitempty"`
	CachedAt    time.Time         `json:"cached_at"`
}

// Entry pairs an input document with its processing result for batch storage
type Entry struct {
	Input  document.Document
	Result *CachedResult
}

// CacheStats represents cache performance statistics
type CacheStats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	TotalKeys   int64   `json:"total_keys"`
	MemoryUsage int64   `json:"memory_usage_bytes"`
}
