package xstreams

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// Handler processes one delivered container. A non-nil error is reported to the
// provider's FailureHandler.
type Handler func(ctx context.Context, bc BatchContainer) error

// Middleware composes processing concerns around a Handler.
type Middleware func(next Handler) Handler

// RetryConfig controls retry behavior for processing middleware.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first execution.
	MaxAttempts int
	// Backoff computes the base wait before the next attempt.
	Backoff func(attempt int) time.Duration
	// RetryIf, when provided, returns true if the error should be retried.
	RetryIf func(err error) bool
	// Jitter adds up to [0, Jitter] random delay to the base backoff.
	Jitter time.Duration
}

// RetryMiddleware retries a failing handler in place, bounded by MaxAttempts.
func RetryMiddleware(cfg RetryConfig) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, bc BatchContainer) error {
			var lastErr error
			attempts := max(cfg.MaxAttempts, 1)
			shouldRetry := cfg.RetryIf
			if shouldRetry == nil {
				shouldRetry = func(error) bool { return true }
			}
			for i := 1; i <= attempts; i++ {
				lastErr = next(ctx, bc)
				if lastErr == nil {
					return nil
				}
				if ctx.Err() != nil {
					return lastErr
				}
				if i == attempts || !shouldRetry(lastErr) {
					return lastErr
				}
				if cfg.Backoff != nil {
					wait := cfg.Backoff(i)
					if cfg.Jitter > 0 {
						wait += time.Duration(rand.Int63n(int64(cfg.Jitter)))
					}
					select {
					case <-ctx.Done():
						return lastErr
					case <-time.After(wait):
					}
				}
			}
			return lastErr
		}
	}
}

// TimeoutMiddleware bounds processing time. The handler keeps running in the background
// after the deadline; its result is discarded.
func TimeoutMiddleware(d time.Duration) Middleware {
	if d <= 0 {
		return func(next Handler) Handler { return next }
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, bc BatchContainer) error {
			tctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			errCh := make(chan error, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						errCh <- fmt.Errorf("%w: %v", ErrHandlerPanic, r)
					}
				}()
				errCh <- next(tctx, bc)
			}()

			select {
			case <-tctx.Done():
				return tctx.Err()
			case err := <-errCh:
				return err
			}
		}
	}
}

// RecoveryMiddleware turns handler panics into errors wrapping ErrHandlerPanic.
func RecoveryMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, bc BatchContainer) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
				}
			}()
			return next(ctx, bc)
		}
	}
}

// LoggingMiddleware logs each handled container at debug level. A nil l logs through the
// logger injected in the handler context, and timings follow the injected clock.
func LoggingMiddleware(l *xlog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, bc BatchContainer) error {
			lg := l
			if lg == nil {
				if cl, ok := LoggerFromContext(ctx); ok {
					lg = cl
				} else {
					lg = xlog.Default()
				}
			}
			clk, ok := ClockFromContext(ctx)
			if !ok {
				clk = xclock.Default()
			}
			start := clk.Now()
			err := next(ctx, bc)
			tok := ""
			if t := bc.Token(); t != nil {
				tok = t.String()
			}
			lg = lg.With(
				xlog.Str("stream", bc.StreamID().String()),
				xlog.Str("type", bc.EventType()),
				xlog.Str("token", tok),
			)
			if q, ok := QueueFromContext(ctx); ok {
				lg = lg.With(xlog.Str("queue", q.String()))
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				lg.Warn().Err(err).Dur("dur", clk.Since(start)).Msg("handler failed")
				return err
			}
			lg.Debug().Dur("dur", clk.Since(start)).Msg("handled")
			return err
		}
	}
}

// Chain composes middlewares around a handler; the first middleware is outermost.
func Chain(h Handler, mws ...Middleware) Handler {
	wrapped := h
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		wrapped = mws[i](wrapped)
	}
	return wrapped
}
