package redisstream

import (
	"io"

	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/xstreams"
)

// FactoryConfig lists the collaborators of a Factory. Every field except
// QueueNamePrefix, Codec and Observers is required.
type FactoryConfig struct {
	Client          Streams
	Logger          *xlog.Logger
	ProviderName    string
	FailureHandler  xstreams.FailureHandler
	CacheOptions    *xstreams.CacheOptions
	MapperOptions   *xstreams.MapperOptions
	ReceiverOptions *ReceiverOptions

	// QueueNamePrefix defaults to ProviderName.
	QueueNamePrefix string
	Codec           xstreams.Codec
	Observers       []xstreams.Observer

	codecErr error
}

// Factory composes the Redis Streams provider. It builds one QueueMapper shared by
// every adapter and receiver it creates.
type Factory struct {
	client    Streams
	logger    *xlog.Logger
	provider  string
	failure   xstreams.FailureHandler
	cacheOpts xstreams.CacheOptions
	mapper    xstreams.QueueMapper
	recvOpts  ReceiverOptions
	codec     xstreams.Codec
	observers []xstreams.Observer
}

// NewFactory validates cfg and builds the queue mapper. A missing collaborator yields an
// *xstreams.ArgumentError naming it.
func NewFactory(cfg FactoryConfig) (*Factory, error) {
	switch {
	case cfg.Client == nil:
		return nil, xstreams.Required("Client")
	case cfg.Logger == nil:
		return nil, xstreams.Required("Logger")
	case cfg.ProviderName == "":
		return nil, xstreams.Required("ProviderName")
	case cfg.FailureHandler == nil:
		return nil, xstreams.Required("FailureHandler")
	case cfg.CacheOptions == nil:
		return nil, xstreams.Required("CacheOptions")
	case cfg.MapperOptions == nil:
		return nil, xstreams.Required("MapperOptions")
	case cfg.ReceiverOptions == nil:
		return nil, xstreams.Required("ReceiverOptions")
	case cfg.codecErr != nil:
		return nil, cfg.codecErr
	}
	if err := cfg.CacheOptions.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ReceiverOptions.Validate(); err != nil {
		return nil, err
	}
	prefix := cfg.QueueNamePrefix
	if prefix == "" {
		prefix = cfg.ProviderName
	}
	mapper, err := xstreams.NewQueueMapper(*cfg.MapperOptions, prefix)
	if err != nil {
		return nil, err
	}
	codec := cfg.Codec
	if codec == nil {
		codec = xstreams.JSONCodec{}
	}
	return &Factory{
		client:    cfg.Client,
		logger:    cfg.Logger.With(xlog.Str("provider", cfg.ProviderName)),
		provider:  cfg.ProviderName,
		failure:   cfg.FailureHandler,
		cacheOpts: *cfg.CacheOptions,
		mapper:    mapper,
		recvOpts:  cfg.ReceiverOptions.withDefaults(),
		codec:     codec,
		observers: cfg.Observers,
	}, nil
}

func (f *Factory) Name() string { return f.provider }

// CreateAdapter returns an adapter over the factory's client and mapper.
func (f *Factory) CreateAdapter() (xstreams.Adapter, error) {
	return f.NewAdapter(), nil
}

// NewAdapter is CreateAdapter with the concrete type.
func (f *Factory) NewAdapter() *Adapter {
	return &Adapter{
		name:      f.provider,
		client:    f.client,
		mapper:    f.mapper,
		codec:     f.codec,
		logger:    f.logger,
		opts:      f.recvOpts,
		observers: f.observers,
		newID:     newEventID,
	}
}

func (f *Factory) QueueMapper() xstreams.QueueMapper { return f.mapper }

// DeliveryFailureHandler returns the configured handler for every queue.
func (f *Factory) DeliveryFailureHandler(xstreams.QueueID) (xstreams.FailureHandler, error) {
	return f.failure, nil
}

func (f *Factory) QueueAdapterCache() *xstreams.QueueAdapterCache {
	return xstreams.NewQueueAdapterCache(f.cacheOpts, f.provider, f.logger)
}

func (f *Factory) Logger() *xlog.Logger { return f.logger }

// Close closes the client when the factory dialed it itself.
func (f *Factory) Close() error {
	if c, ok := f.client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

var _ xstreams.AdapterFactory = (*Factory)(nil)
