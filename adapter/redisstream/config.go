package redisstream

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trickstertwo/xstreams"
)

// Config holds the Redis connection and provider settings of one stream provider.
type Config struct {
	// Connection
	Addr          string
	Username      string
	Password      string
	DB            int
	TLS           bool
	TLSServerName string

	// Queues
	TotalQueueCount int
	QueueNamePrefix string
	Strategy        xstreams.MapperStrategy

	// Receivers
	Group           string
	Consumer        string
	MaxStreamLength int64
	TrimInterval    time.Duration
	ReadBlock       time.Duration

	CacheSize int
	Codec     string
}

// Defaults returns a Config for a local Redis with the provider defaults.
func Defaults() Config {
	return Config{
		Addr:            "127.0.0.1:6379",
		TotalQueueCount: xstreams.DefaultTotalQueueCount,
		Strategy:        xstreams.StrategyHashRing,
		Group:           DefaultGroup,
		MaxStreamLength: DefaultMaxStreamLength,
		TrimInterval:    DefaultTrimInterval,
		CacheSize:       xstreams.DefaultCacheSize,
		Codec:           "json",
	}
}

// Validate checks Config before dialing.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr required")
	}
	if c.TotalQueueCount < 1 || c.TotalQueueCount > xstreams.MaxTotalQueueCount {
		return fmt.Errorf("config: total_queue_count must be in [1, %d], got %d", xstreams.MaxTotalQueueCount, c.TotalQueueCount)
	}
	if c.Group == "" {
		return fmt.Errorf("config: group required")
	}
	if c.MaxStreamLength < 1 {
		return fmt.Errorf("config: max_stream_length must be >= 1, got %d", c.MaxStreamLength)
	}
	if c.TrimInterval <= 0 {
		return fmt.Errorf("config: trim_interval must be > 0, got %v", c.TrimInterval)
	}
	if c.ReadBlock < 0 {
		return fmt.Errorf("config: read_block must be >= 0, got %v", c.ReadBlock)
	}
	if c.CacheSize < 1 {
		return fmt.Errorf("config: cache_size must be >= 1, got %d", c.CacheSize)
	}
	return nil
}

// ReceiverOptions extracts the receiver settings.
func (c Config) ReceiverOptions() ReceiverOptions {
	return ReceiverOptions{
		MaxStreamLength: c.MaxStreamLength,
		TrimInterval:    c.TrimInterval,
		Group:           c.Group,
		Consumer:        c.Consumer,
		ReadBlock:       c.ReadBlock,
	}
}

func (c Config) MapperOptions() xstreams.MapperOptions {
	return xstreams.MapperOptions{TotalQueueCount: c.TotalQueueCount, Strategy: c.Strategy}
}

// ConfigFromMap converts a generic map (for example a decoded config file section) to
// Config, starting from Defaults. Numbers may be any integer type, a float or a string;
// durations may be a time.Duration or a string accepted by time.ParseDuration.
// trim_time_minutes is accepted as an alternative to trim_interval.
func ConfigFromMap(m map[string]any) Config {
	c := Defaults()

	if v, ok := m["addr"].(string); ok && v != "" {
		c.Addr = v
	}
	if v, ok := m["username"].(string); ok {
		c.Username = v
	}
	if v, ok := m["password"].(string); ok {
		c.Password = v
	}
	if v, ok := toInt64(m["db"]); ok {
		c.DB = int(v)
	}
	if v, ok := m["tls"].(bool); ok {
		c.TLS = v
	}
	if v, ok := m["tls_server_name"].(string); ok {
		c.TLSServerName = v
	}
	if v, ok := toInt64(m["total_queue_count"]); ok && v > 0 {
		c.TotalQueueCount = int(v)
	}
	if v, ok := m["queue_name_prefix"].(string); ok {
		c.QueueNamePrefix = v
	}
	if v, ok := m["strategy"].(string); ok && v != "" {
		c.Strategy = xstreams.MapperStrategy(v)
	}
	if v, ok := m["group"].(string); ok && v != "" {
		c.Group = v
	}
	if v, ok := m["consumer"].(string); ok {
		c.Consumer = v
	}
	if v, ok := toInt64(m["max_stream_length"]); ok && v > 0 {
		c.MaxStreamLength = v
	}
	if v, ok := toInt64(m["trim_time_minutes"]); ok && v > 0 {
		c.TrimInterval = TrimTimeMinutes(int(v))
	}
	if v, ok := toDuration(m["trim_interval"]); ok && v > 0 {
		c.TrimInterval = v
	}
	if v, ok := toDuration(m["read_block"]); ok && v >= 0 {
		c.ReadBlock = v
	}
	if v, ok := toInt64(m["cache_size"]); ok && v > 0 {
		c.CacheSize = int(v)
	}
	if v, ok := m["codec"].(string); ok && v != "" {
		c.Codec = v
	}

	return c
}

// NewClient dials Redis and checks the connection with PING.
func NewClient(cfg Config) (*redis.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := &redis.Options{
		Addr:                  cfg.Addr,
		Username:              cfg.Username,
		Password:              cfg.Password,
		DB:                    cfg.DB,
		MaxRetries:            3,
		PoolSize:              10,
		MinIdleConns:          5,
		ContextTimeoutEnabled: true,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{
			MinVersion:    tls.VersionTLS12,
			ServerName:    cfg.TLSServerName,
			Renegotiation: tls.RenegotiateNever,
		}
	}

	client := redis.NewClient(opts)
	if err := ping(client); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func ping(c *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := c.Ping(ctx).Result()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("redis ping timeout: %w", err)
		}
		return err
	}
	if strings.ToUpper(res) != "PONG" {
		return fmt.Errorf("unexpected redis ping result: %s", res)
	}
	return nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	case uint32:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		if n == "" {
			return 0, false
		}
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return int64(f), true
		}
	case []byte:
		return toInt64(string(n))
	}
	return 0, false
}

func toDuration(v any) (time.Duration, bool) {
	switch d := v.(type) {
	case time.Duration:
		return d, true
	case string:
		if d == "" {
			return 0, false
		}
		p, err := time.ParseDuration(d)
		return p, err == nil
	}
	if n, ok := toInt64(v); ok {
		return time.Duration(n), true
	}
	return 0, false
}
