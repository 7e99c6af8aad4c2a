package redisstream

import (
	"fmt"

	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/xstreams"
	"github.com/trickstertwo/xstreams/adapter/memory"
)

func init() {
	if err := xstreams.RegisterBackend(BackendName, func(provider string, cfg map[string]any, logger *xlog.Logger) (xstreams.AdapterFactory, error) {
		return Open(ConfigFromMap(cfg), provider, WithLogger(logger))
	}); err != nil {
		panic(fmt.Errorf("xstreams: failed to register backend %q: %w", BackendName, err))
	}
	if err := xstreams.RegisterBackend(MemoryBackendName, func(provider string, cfg map[string]any, logger *xlog.Logger) (xstreams.AdapterFactory, error) {
		return OpenMemory(ConfigFromMap(cfg), memory.ConfigFromMap(cfg), provider, WithLogger(logger))
	}); err != nil {
		panic(fmt.Errorf("xstreams: failed to register backend %q: %w", MemoryBackendName, err))
	}
}

// MemoryBackendName runs the provider over an in-process memory.Store.
const MemoryBackendName = "memory"

// OpenMemory builds the factory of provider over a new in-process store. The
// connection fields of cfg are ignored.
func OpenMemory(cfg Config, storeCfg memory.Config, provider string, opts ...Option) (*Factory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewFactory(factoryConfig(memory.NewStore(storeCfg), cfg, provider, opts...))
}

// Open dials Redis from cfg and builds the factory of provider. Options are applied
// after cfg, so they win.
func Open(cfg Config, provider string, opts ...Option) (*Factory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("redisstream: dial %s: %w", cfg.Addr, err)
	}
	f, err := NewFactory(factoryConfig(client, cfg, provider, opts...))
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return f, nil
}

func factoryConfig(client Streams, cfg Config, provider string, opts ...Option) FactoryConfig {
	mapperOpts := cfg.MapperOptions()
	recvOpts := cfg.ReceiverOptions()
	cacheOpts := xstreams.CacheOptions{CacheSize: cfg.CacheSize}
	fc := FactoryConfig{
		Client:          client,
		ProviderName:    provider,
		CacheOptions:    &cacheOpts,
		MapperOptions:   &mapperOpts,
		ReceiverOptions: &recvOpts,
		QueueNamePrefix: cfg.QueueNamePrefix,
	}
	if cfg.Codec != "" {
		WithCodec(cfg.Codec)(&fc)
	}
	for _, o := range opts {
		if o != nil {
			o(&fc)
		}
	}
	if fc.Logger == nil {
		fc.Logger = xlog.Default()
	}
	if fc.FailureHandler == nil {
		fc.FailureHandler = xstreams.NewLoggingFailureHandler(fc.Logger)
	}
	return fc
}

// Use builds the factory of provider and panics on failure. Mirrors xlog/xclock "Use":
// meant for process start-up where a broken configuration is fatal.
func Use(cfg Config, provider string, opts ...Option) *Factory {
	f, err := Open(cfg, provider, opts...)
	if err != nil {
		panic(fmt.Errorf("redisstream.Use: %w", err))
	}
	return f
}
