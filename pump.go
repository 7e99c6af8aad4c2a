package xstreams

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

const (
	DefaultPumpBatchSize       = 100
	DefaultPumpPollInterval    = 100 * time.Millisecond
	DefaultPumpInitTimeout     = 5 * time.Second
	DefaultPumpShutdownTimeout = 5 * time.Second
)

// PumpConfig wires a Pump to one queue.
type PumpConfig struct {
	Provider       string
	Queue          QueueID
	Receiver       Receiver
	Handler        Handler
	Middlewares    []Middleware
	FailureHandler FailureHandler
	// Cache is optional. When set, reads pause while it is under pressure.
	Cache *QueueCache

	Codec        Codec
	Logger       *xlog.Logger
	Clock        xclock.Clock
	Observers    []Observer
	ObserverPool *ObserverPool

	BatchSize       int
	PollInterval    time.Duration
	InitTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Pump drives one Receiver: read, handle, report failures, acknowledge, repeat.
type Pump struct {
	cfg     PumpConfig
	handler Handler
	logger  *xlog.Logger
	clock   xclock.Clock
}

func NewPump(cfg PumpConfig) (*Pump, error) {
	if cfg.Receiver == nil {
		return nil, Required("Receiver")
	}
	if cfg.Handler == nil {
		return nil, ErrNoHandler
	}
	if cfg.FailureHandler == nil {
		return nil, Required("FailureHandler")
	}
	if cfg.Queue.IsZero() {
		return nil, Required("Queue")
	}
	if cfg.Codec == nil {
		cfg.Codec = JSONCodec{}
	}
	if cfg.Logger == nil {
		cfg.Logger = xlog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = xclock.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultPumpBatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPumpPollInterval
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = DefaultPumpInitTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultPumpShutdownTimeout
	}
	mws := append([]Middleware{RecoveryMiddleware()}, cfg.Middlewares...)
	return &Pump{
		cfg:     cfg,
		handler: Chain(cfg.Handler, mws...),
		logger: cfg.Logger.With(
			xlog.Str("provider", cfg.Provider),
			xlog.Str("queue", cfg.Queue.String()),
		),
		clock: cfg.Clock,
	}, nil
}

// Run initializes the receiver and pulls until ctx is done or the failure handler faults
// the subscription. A failed Initialize is retried every PollInterval before reading.
// The receiver is shut down before Run returns.
func (p *Pump) Run(ctx context.Context) error {
	ready := false
	var runErr error
	for {
		var n int
		var err error
		if !ready {
			ready, err = p.initialize(ctx)
		}
		if ready {
			n, err = p.Cycle(ctx)
		}
		if errors.Is(err, ErrSubscriptionFaulted) || errors.Is(err, ErrReceiverClosed) {
			runErr = err
			break
		}
		if ctx.Err() != nil {
			break
		}
		if n > 0 && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
		case <-After(p.clock, p.cfg.PollInterval):
		}
		if ctx.Err() != nil {
			break
		}
	}

	if err := p.cfg.Receiver.Shutdown(p.cfg.ShutdownTimeout); err != nil {
		p.logger.Warn().Err(err).Msg("receiver shutdown")
		if runErr == nil {
			runErr = err
		}
	}
	p.emit(Event{Type: EventStopped, Err: runErr})
	return runErr
}

// Cycle performs one read/handle/acknowledge round and returns the number of containers
// read. A failed read returns the read error; handler failures are reported to the
// failure handler and only surface when the subscription is faulted.
func (p *Pump) Cycle(ctx context.Context) (int, error) {
	if p.cfg.Cache != nil && p.cfg.Cache.UnderPressure() {
		p.logger.Debug().Msg("queue cache under pressure, skipping read")
		return 0, nil
	}

	start := p.clock.Now()
	res := p.cfg.Receiver.GetMessages(ctx, p.cfg.BatchSize)
	p.emit(Event{Type: EventRead, Count: len(res.Batch), Duration: p.clock.Since(start), Err: res.Err})
	switch res.Status {
	case ReadClosed:
		return 0, ErrReceiverClosed
	case ReadFailed:
		return 0, res.Err
	case ReadEmpty:
		return 0, nil
	}
	if p.cfg.Cache != nil {
		p.cfg.Cache.Add(res.Batch)
	}

	hctx := WithQueue(InjectAll(ctx, p.cfg.Codec, p.logger, p.clock), p.cfg.Queue)
	toAck := make([]BatchContainer, 0, len(res.Batch))
	var fault error
	for bc := range res.All() {
		hstart := p.clock.Now()
		err := p.handler(hctx, bc)
		p.emit(Event{Type: EventHandled, Stream: bc.StreamID().String(), Count: 1, Duration: p.clock.Since(hstart), Err: err})
		if err == nil {
			toAck = append(toAck, bc)
			continue
		}
		f := DeliveryFailure{
			Provider: p.cfg.Provider,
			Queue:    p.cfg.Queue,
			Stream:   bc.StreamID(),
			Token:    bc.Token(),
			EventID:  bc.EventID(),
			Err:      err,
		}
		if herr := p.cfg.FailureHandler.OnDeliveryFailure(ctx, f); herr != nil {
			p.logger.Warn().Err(herr).Msg("failure handler")
		}
		if p.cfg.FailureHandler.ShouldFaultSubscriptionOnError() {
			_ = p.cfg.FailureHandler.OnSubscriptionFailure(ctx, f)
			fault = fmt.Errorf("%w: %s: %w", ErrSubscriptionFaulted, bc.StreamID(), err)
			break
		}
		// Reported failures are acknowledged: the failure handler owns them from here.
		toAck = append(toAck, bc)
	}

	if len(toAck) > 0 {
		astart := p.clock.Now()
		ack := p.cfg.Receiver.AcknowledgeDelivered(ctx, toAck)
		p.emit(Event{Type: EventAck, Count: len(ack.Acked), Duration: p.clock.Since(astart), Err: ack.Err})
		if len(ack.Failed) > 0 {
			p.logger.Warn().Err(ack.Err).Str("entries", strings.Join(ack.Failed, ",")).Msg("acknowledge failed, entries stay pending in the group")
		}
		// Failed acks leave the cache too: the group keeps them pending and a restarted
		// receiver reads them back from its backlog.
		if p.cfg.Cache != nil {
			p.cfg.Cache.Remove(toAck)
		}
	}
	return len(res.Batch), fault
}

func (p *Pump) initialize(ctx context.Context) (bool, error) {
	start := p.clock.Now()
	res := p.cfg.Receiver.Initialize(ctx, p.cfg.InitTimeout)
	p.emit(Event{Type: EventInit, Duration: p.clock.Since(start), Err: res.Err})
	if !res.Ok() {
		p.logger.Warn().Err(res.Err).Msg("receiver initialize failed")
		if errors.Is(res.Err, ErrReceiverClosed) {
			return false, res.Err
		}
		return false, nil
	}
	return true, nil
}

func (p *Pump) emit(e Event) {
	e.Provider = p.cfg.Provider
	e.Queue = p.cfg.Queue.String()
	if e.Type == EventError || (e.Err != nil && e.Type != EventStopped) {
		p.logger.Debug().Str("event", string(e.Type)).Err(e.Err).Msg("pump event")
	}
	notify(p.cfg.ObserverPool, p.cfg.Observers, e)
}
