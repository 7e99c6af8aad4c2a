package xstreams

import (
	"strconv"

	"github.com/trickstertwo/xlog"
)

// Observer receives lifecycle events. Implementations should be non-blocking.
type Observer interface {
	OnEvent(e Event)
}

// ObserverFunc lets a plain function satisfy Observer.
type ObserverFunc func(e Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// LoggingObserver writes events through xlog.
type LoggingObserver struct {
	Logger *xlog.Logger
}

func (o LoggingObserver) OnEvent(e Event) {
	if o.Logger == nil {
		return
	}
	lg := o.Logger.With(
		xlog.Str("type", string(e.Type)),
		xlog.Str("provider", e.Provider),
		xlog.Str("queue", e.Queue),
		xlog.Str("count", strconv.Itoa(e.Count)),
	)
	if e.Stream != "" {
		lg = lg.With(xlog.Str("stream", e.Stream))
	}
	switch {
	case e.Type == EventError || e.Err != nil:
		lg.Warn().Err(e.Err).Msg("xstreams event")
	default:
		if e.Duration > 0 {
			lg = lg.With(xlog.Dur("duration", e.Duration))
		}
		lg.Debug().Msg("xstreams event")
	}
}

// Notify dispatches e to observers synchronously. A panicking observer does not stop
// the others.
func Notify(observers []Observer, e Event) { dispatch(observers, e) }

// notify dispatches e synchronously, or through pool when one is set. A panicking
// observer does not stop the others.
func notify(pool *ObserverPool, observers []Observer, e Event) {
	if len(observers) == 0 {
		return
	}
	if pool != nil {
		pool.Notify(e, observers)
		return
	}
	dispatch(observers, e)
}

func dispatch(observers []Observer, e Event) {
	for _, obs := range observers {
		if obs == nil {
			continue
		}
		func() {
			defer func() { _ = recover() }()
			obs.OnEvent(e)
		}()
	}
}
