package redisstream

import (
	"fmt"
	"time"

	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/xstreams"
)

const (
	DefaultMaxStreamLength int64 = 1000
	DefaultTrimInterval          = 5 * time.Minute
)

// ReceiverOptions configure every receiver an adapter creates.
type ReceiverOptions struct {
	// MaxStreamLength is the approximate cap applied by XTRIM MAXLEN ~.
	MaxStreamLength int64
	// TrimInterval is the minimum time between two trims of a queue.
	TrimInterval time.Duration
	Group        string
	// Consumer is the consumer name within Group. Empty uses the queue id, which gives
	// each queue one consumer identity. Set distinct names to run several receivers on
	// the same queue.
	Consumer string
	// ReadBlock makes XREADGROUP wait for entries. Zero reads without blocking.
	ReadBlock time.Duration
	Clock     xstreams.Clock
}

func DefaultReceiverOptions() ReceiverOptions {
	return ReceiverOptions{
		MaxStreamLength: DefaultMaxStreamLength,
		TrimInterval:    DefaultTrimInterval,
		Group:           DefaultGroup,
	}
}

// TrimTimeMinutes converts the minute-granularity setting used in configuration files.
func TrimTimeMinutes(n int) time.Duration { return time.Duration(n) * time.Minute }

func (o ReceiverOptions) withDefaults() ReceiverOptions {
	if o.MaxStreamLength <= 0 {
		o.MaxStreamLength = DefaultMaxStreamLength
	}
	if o.TrimInterval <= 0 {
		o.TrimInterval = DefaultTrimInterval
	}
	if o.Group == "" {
		o.Group = DefaultGroup
	}
	if o.Clock == nil {
		o.Clock = xstreams.DefaultClock()
	}
	return o
}

func (o ReceiverOptions) Validate() error {
	if o.MaxStreamLength < 0 {
		return &xstreams.ArgumentError{Name: "MaxStreamLength", Reason: fmt.Sprintf("must be >= 0, got %d", o.MaxStreamLength)}
	}
	if o.TrimInterval < 0 {
		return &xstreams.ArgumentError{Name: "TrimInterval", Reason: fmt.Sprintf("must be >= 0, got %v", o.TrimInterval)}
	}
	if o.ReadBlock < 0 {
		return &xstreams.ArgumentError{Name: "ReadBlock", Reason: fmt.Sprintf("must be >= 0, got %v", o.ReadBlock)}
	}
	return nil
}

// Option adjusts a FactoryConfig before the factory is built.
type Option func(*FactoryConfig)

// WithLogger injects a custom xlog logger.
func WithLogger(l *xlog.Logger) Option {
	return func(c *FactoryConfig) { c.Logger = l }
}

// WithClock sets the clock receivers use for trim scheduling.
func WithClock(clk xstreams.Clock) Option {
	return func(c *FactoryConfig) {
		if c.ReceiverOptions == nil {
			o := DefaultReceiverOptions()
			c.ReceiverOptions = &o
		}
		c.ReceiverOptions.Clock = clk
	}
}

// WithCodec selects the payload codec by name (default: json).
func WithCodec(name string) Option {
	return func(c *FactoryConfig) {
		if codec, err := xstreams.NewCodec(name); err == nil {
			c.Codec = codec
		} else {
			c.codecErr = err
		}
	}
}

func WithFailureHandler(h xstreams.FailureHandler) Option {
	return func(c *FactoryConfig) { c.FailureHandler = h }
}

func WithTotalQueueCount(n int) Option {
	return func(c *FactoryConfig) {
		if c.MapperOptions == nil {
			o := xstreams.DefaultMapperOptions()
			c.MapperOptions = &o
		}
		c.MapperOptions.TotalQueueCount = n
	}
}

func WithMapperStrategy(s xstreams.MapperStrategy) Option {
	return func(c *FactoryConfig) {
		if c.MapperOptions == nil {
			o := xstreams.DefaultMapperOptions()
			c.MapperOptions = &o
		}
		c.MapperOptions.Strategy = s
	}
}

// WithQueueNamePrefix overrides the provider name as queue key prefix.
func WithQueueNamePrefix(prefix string) Option {
	return func(c *FactoryConfig) { c.QueueNamePrefix = prefix }
}

func WithReceiverOptions(o ReceiverOptions) Option {
	return func(c *FactoryConfig) { c.ReceiverOptions = &o }
}

func WithCacheSize(n int) Option {
	return func(c *FactoryConfig) { c.CacheOptions = &xstreams.CacheOptions{CacheSize: n} }
}

// WithObserver attaches observers for append and trim events.
func WithObserver(obs ...xstreams.Observer) Option {
	return func(c *FactoryConfig) { c.Observers = append(c.Observers, obs...) }
}
