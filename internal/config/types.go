package config

import (
	"time"

	"github.com/Jyllands-Posten/solrprocessors/internal/cache"
	"github.com/Jyllands-Posten/solrprocessors/internal/htmlstrip"
	"github.com/Jyllands-Posten/solrprocessors/internal/replace"
	"github.com/Jyllands-Posten/solrprocessors/internal/store"
)

// Processor types
const (
	ProcessorPatternReplace = "pattern_replace"
	ProcessorHTMLStrip      = "html_strip"
)

// Config represents the main configuration structure
type Config struct {
	Server     ServerConfig      `yaml:"server" mapstructure:"server"`
	Logging    LoggingConfig     `yaml:"logging" mapstructure:"logging"`
	Processors []ProcessorConfig `yaml:"processors" mapstructure:"processors"`
	RateLimit  RateLimitConfig   `yaml:"rate_limit" mapstructure:"rate_limit"`
	Cache      cache.Config      `yaml:"cache" mapstructure:"cache"`
	Store      store.Config      `yaml:"store" mapstructure:"store"`
	ETL        ETLConfig         `yaml:"etl" mapstructure:"etl"`
	WebSocket  WebSocketConfig   `yaml:"websocket" mapstructure:"websocket"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`

	// TrustedProxies lists addresses or CIDR ranges whose X-Forwarded-For
	// and X-Real-IP headers are believed
	TrustedProxies []string `yaml:"trusted_proxies" mapstructure:"trusted_proxies"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// ProcessorConfig declares one stage of the processing chain. Exactly the
// block matching Type must be present.
type ProcessorConfig struct {
	Name           string            `yaml:"name" mapstructure:"name" json:"name"`
	Type           string            `yaml:"type" mapstructure:"type" json:"type"`
	PatternReplace *replace.Config   `yaml:"pattern_replace" mapstructure:"pattern_replace" json:"pattern_replace,omitempty"`
	HTMLStrip      *htmlstrip.Config `yaml:"html_strip" mapstructure:"html_strip" json:"html_strip,omitempty"`
}

// RateLimitConfig contains per-client request rate limiting
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min" mapstructure:"requests_per_min"`
	Burst          int  `yaml:"burst" mapstructure:"burst"`
}

// ETLConfig contains batch processing defaults
type ETLConfig struct {
	BatchSize      int    `yaml:"batch_size" mapstructure:"batch_size"`
	WorkerCount    int    `yaml:"worker_count" mapstructure:"worker_count"`
	ProgressReport int    `yaml:"progress_report" mapstructure:"progress_report"`
	IDField        string `yaml:"id_field" mapstructure:"id_field"`
}

// WebSocketConfig contains WebSocket event feed configuration
type WebSocketConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Path     string `yaml:"path" mapstructure:"path"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Events   struct {
		BroadcastDocuments   bool `yaml:"broadcast_documents" mapstructure:"broadcast_documents"`
		BroadcastSystem      bool `yaml:"broadcast_system" mapstructure:"broadcast_system"`
		BroadcastConnections bool `yaml:"broadcast_connections" mapstructure:"broadcast_connections"`
	} `yaml:"events" mapstructure:"events"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:         8983,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodyBytes: 10 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			Enabled:        false,
			RequestsPerMin: 600,
			Burst:          50,
		},
		Cache: cache.Config{
			Enabled:        false,
			RedisURL:       "redis://localhost:6379/0",
			MaxConnections: 10,
			MinIdleConns:   2,
			DefaultTTL:     time.Hour,
			KeyPrefix:      "solrproc",
		},
		Store: store.Config{
			Enabled:         false,
			DatabaseURL:     "postgres://localhost:5432/solrproc?sslmode=disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		ETL: ETLConfig{
			BatchSize:      1000,
			WorkerCount:    4,
			ProgressReport: 10000,
			IDField:        "id",
		},
		WebSocket: WebSocketConfig{
			Enabled: true,
			Path:    "/ws",
		},
	}
	cfg.Logging.File.Path = "logs/solrproc.log"
	cfg.WebSocket.Events.BroadcastDocuments = true
	cfg.WebSocket.Events.BroadcastSystem = true
	cfg.WebSocket.Events.BroadcastConnections = true
	return cfg
}
