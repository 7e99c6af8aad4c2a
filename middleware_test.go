package xstreams

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xlog/adapter/zerolog"
)

type orderCreated struct {
	N int `json:"n"`
}

func TestChain_Order(t *testing.T) {
	var calls []string
	mw := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, bc BatchContainer) error {
				calls = append(calls, name)
				return next(ctx, bc)
			}
		}
	}
	h := Chain(func(context.Context, BatchContainer) error {
		calls = append(calls, "handler")
		return nil
	}, mw("outer"), nil, mw("inner"))

	require.NoError(t, h(context.Background(), containers(1)[0]))
	assert.Equal(t, []string{"outer", "inner", "handler"}, calls)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := Chain(func(context.Context, BatchContainer) error { panic("boom") }, RecoveryMiddleware())
	err := h(context.Background(), containers(1)[0])
	require.ErrorIs(t, err, ErrHandlerPanic)
}

func TestRetryMiddleware(t *testing.T) {
	attempts := 0
	transient := errors.New("transient")
	h := Chain(func(context.Context, BatchContainer) error {
		attempts++
		if attempts < 3 {
			return transient
		}
		return nil
	}, RetryMiddleware(RetryConfig{MaxAttempts: 5, Backoff: func(int) time.Duration { return time.Millisecond }}))
	require.NoError(t, h(context.Background(), containers(1)[0]))
	assert.Equal(t, 3, attempts)

	attempts = 0
	permanent := errors.New("permanent")
	h = Chain(func(context.Context, BatchContainer) error {
		attempts++
		return permanent
	}, RetryMiddleware(RetryConfig{MaxAttempts: 5, RetryIf: func(err error) bool { return !errors.Is(err, permanent) }}))
	require.ErrorIs(t, h(context.Background(), containers(1)[0]), permanent)
	assert.Equal(t, 1, attempts)
}

func TestTimeoutMiddleware(t *testing.T) {
	h := Chain(func(ctx context.Context, _ BatchContainer) error {
		<-ctx.Done()
		return ctx.Err()
	}, TimeoutMiddleware(10*time.Millisecond))
	require.ErrorIs(t, h(context.Background(), containers(1)[0]), context.DeadlineExceeded)
}

func TestLoggingMiddleware_UsesInjectedLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.Use(zerolog.Config{
		MinLevel: xlog.LevelDebug,
		Writer:   &buf,
	}).With(xlog.Str("app", "xstreams-test"))

	ctx := WithQueue(InjectAll(context.Background(), JSONCodec{}, logger, nil), NewQueueID("p", 2, 0))
	h := Chain(func(context.Context, BatchContainer) error { return errors.New("bad order") }, LoggingMiddleware(nil))
	require.Error(t, h(ctx, containers(4)[0]))

	out := buf.String()
	assert.Contains(t, out, "handler failed")
	assert.Contains(t, out, "xstreams-test")
	assert.Contains(t, out, "p-2")
	assert.Contains(t, out, "4-0")
}

func TestDecode_UsesInjectedCodec(t *testing.T) {
	bc := containers(7)[0]
	ctx := InjectAll(context.Background(), JSONCodec{}, nil, nil)
	v, err := Decode[orderCreated](ctx, bc)
	require.NoError(t, err)
	assert.Equal(t, 7, v.N)

	v, err = Decode[orderCreated](context.Background(), bc)
	require.NoError(t, err)
	assert.Equal(t, 7, v.N)
}

type namedEvent struct{}

func (namedEvent) EventName() string { return "orders.created" }

func TestEventTypeName(t *testing.T) {
	assert.Equal(t, "orderCreated", EventTypeName(orderCreated{}))
	assert.Equal(t, "orderCreated", EventTypeName(&orderCreated{}))
	assert.Equal(t, "orders.created", EventTypeName(namedEvent{}))
	assert.Equal(t, "string", EventTypeName("x"))
	assert.Equal(t, "map[string]int", EventTypeName(map[string]int{}))
	assert.Equal(t, "nil", EventTypeName(nil))
}
