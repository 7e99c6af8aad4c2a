// Package config loads the xstreams command configuration from a file and XSTREAMS_*
// environment variables.
package config

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Provider string     `mapstructure:"provider"`
	Backend  string     `mapstructure:"backend"`
	Log      LogConfig  `mapstructure:"log"`
	Pump     PumpConfig `mapstructure:"pump"`

	// Redis is handed to the backend as is; see redisstream.ConfigFromMap.
	Redis  map[string]any `mapstructure:"redis"`
	Memory map[string]any `mapstructure:"memory"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

type PumpConfig struct {
	BatchSize       int           `mapstructure:"batch_size"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	InitTimeout     time.Duration `mapstructure:"init_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// FaultOnError stops a queue's pump on the first handler failure.
	FaultOnError bool `mapstructure:"fault_on_error"`
}

// Load reads path (optional) and overlays XSTREAMS_* variables, for example
// XSTREAMS_REDIS_ADDR for redis.addr.
func Load(path string) (Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	}
	v.SetEnvPrefix("xstreams")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", "xstreams")
	v.SetDefault("backend", "redis-streams")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)

	v.SetDefault("pump.batch_size", 100)
	v.SetDefault("pump.poll_interval", "100ms")
	v.SetDefault("pump.init_timeout", "5s")
	v.SetDefault("pump.shutdown_timeout", "5s")
	v.SetDefault("pump.fault_on_error", false)

	// Listed so the matching XSTREAMS_REDIS_* variables are picked up.
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.tls", false)
	v.SetDefault("redis.total_queue_count", 8)
	v.SetDefault("redis.queue_name_prefix", "")
	v.SetDefault("redis.strategy", "hashring")
	v.SetDefault("redis.group", "consumer")
	v.SetDefault("redis.consumer", "")
	v.SetDefault("redis.max_stream_length", 1000)
	v.SetDefault("redis.trim_time_minutes", 5)
	v.SetDefault("redis.read_block", "0s")
	v.SetDefault("redis.cache_size", 4096)
	v.SetDefault("redis.codec", "json")

	v.SetDefault("memory.max_block", "5s")
}

func (c Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if c.Backend == "" {
		return fmt.Errorf("backend is required")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	if c.Pump.BatchSize < 1 {
		return fmt.Errorf("pump.batch_size must be >= 1, got %d", c.Pump.BatchSize)
	}
	if c.Pump.PollInterval <= 0 {
		return fmt.Errorf("pump.poll_interval must be > 0, got %v", c.Pump.PollInterval)
	}
	return nil
}

// BackendConfig is the settings map passed to the selected backend. The memory backend
// takes the provider settings from the redis section plus its own.
func (c Config) BackendConfig() map[string]any {
	out := maps.Clone(c.Redis)
	if out == nil {
		out = make(map[string]any)
	}
	if c.Backend == "memory" {
		maps.Copy(out, c.Memory)
	}
	return out
}
