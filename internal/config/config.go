package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Loader reads configuration from a file and the environment. Each Loader
// owns its own viper instance.
type Loader struct {
	v  *viper.Viper
	mu sync.Mutex
}

// NewLoader prepares a loader for configPath. An empty path searches the
// usual locations for config.yaml.
func NewLoader(configPath string) *Loader {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/solrproc/")
	v.AddConfigPath("$HOME/.solrproc/")

	// Environment variable overrides
	v.SetEnvPrefix("SOLRPROC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	registerEnvKeys(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	return &Loader{v: v}
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

// Load reads the configuration file, applies environment overrides and
// validates the result.
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	config := GetDefaults()
	if err := l.v.UnmarshalExact(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Watch starts watching the configuration file for changes. onChange
// receives every configuration that decodes and validates; onError
// receives the rest, and the previous configuration stays in effect.
func (l *Loader) Watch(onChange func(*Config), onError func(error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		l.mu.Lock()
		defer l.mu.Unlock()

		newConfig, err := l.decode()
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}
		onChange(newConfig)
	})
	l.v.WatchConfig()
}

// ConfigFile returns the file the configuration was read from, if any.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// registerEnvKeys makes scalar keys known to viper so that AutomaticEnv
// can override them without a config file entry.
func registerEnvKeys(v *viper.Viper) {
	d := GetDefaults()
	defaults := map[string]any{
		"server.port":           d.Server.Port,
		"server.max_body_bytes": d.Server.MaxBodyBytes,
		"logging.level":         d.Logging.Level,
		"logging.format":        d.Logging.Format,
		"rate_limit.enabled":    d.RateLimit.Enabled,
		"cache.enabled":         d.Cache.Enabled,
		"cache.redis_url":       d.Cache.RedisURL,
		"store.enabled":         d.Store.Enabled,
		"store.database_url":    d.Store.DatabaseURL,
		"websocket.username":    d.WebSocket.Username,
		"websocket.password":    d.WebSocket.Password,
		"etl.worker_count":      d.ETL.WorkerCount,
		"etl.batch_size":        d.ETL.BatchSize,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if err := ValidateProcessors(config.Processors); err != nil {
		return err
	}

	for _, entry := range config.Server.TrustedProxies {
		if _, err := ParseTrustedProxy(entry); err != nil {
			return fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
	}

	if config.RateLimit.Enabled && config.RateLimit.RequestsPerMin <= 0 {
		return fmt.Errorf("invalid rate limit: %d requests per minute", config.RateLimit.RequestsPerMin)
	}

	if config.Cache.Enabled && config.Cache.RedisURL == "" {
		return errors.New("cache enabled without redis_url")
	}

	if config.Store.Enabled && config.Store.DatabaseURL == "" {
		return errors.New("store enabled without database_url")
	}

	if config.ETL.BatchSize <= 0 {
		return fmt.Errorf("invalid etl batch size: %d", config.ETL.BatchSize)
	}

	return nil
}

// ValidateProcessors checks the shape of the processor chain. Rule and
// field contents are validated when the chain is built.
func ValidateProcessors(processors []ProcessorConfig) error {
	seen := make(map[string]bool, len(processors))
	for i, p := range processors {
		if p.Name == "" {
			return fmt.Errorf("processor %d: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("processor %q: duplicate name", p.Name)
		}
		seen[p.Name] = true

		switch p.Type {
		case ProcessorPatternReplace:
			if p.PatternReplace == nil {
				return fmt.Errorf("processor %q: missing %s block", p.Name, ProcessorPatternReplace)
			}
			if p.HTMLStrip != nil {
				return fmt.Errorf("processor %q: unexpected %s block", p.Name, ProcessorHTMLStrip)
			}
		case ProcessorHTMLStrip:
			if p.HTMLStrip == nil {
				return fmt.Errorf("processor %q: missing %s block", p.Name, ProcessorHTMLStrip)
			}
			if p.PatternReplace != nil {
				return fmt.Errorf("processor %q: unexpected %s block", p.Name, ProcessorPatternReplace)
			}
		default:
			return fmt.Errorf("processor %q: unknown type %q", p.Name, p.Type)
		}
	}
	return nil
}

// ParseTrustedProxy parses a trusted proxy entry, either a single address
// or a CIDR range.
func ParseTrustedProxy(entry string) (netip.Prefix, error) {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return netip.Prefix{}, err
		}
		return prefix.Masked(), nil
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}
