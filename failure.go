package xstreams

import (
	"context"

	"github.com/trickstertwo/xlog"
)

// DeliveryFailure describes an entry a consumer could not process.
type DeliveryFailure struct {
	Provider string
	Queue    QueueID
	Stream   StreamID
	Token    Token
	EventID  string
	Err      error
}

// FailureHandler is told about delivery and subscription failures. It does not retry.
type FailureHandler interface {
	OnDeliveryFailure(ctx context.Context, f DeliveryFailure) error
	OnSubscriptionFailure(ctx context.Context, f DeliveryFailure) error
	// ShouldFaultSubscriptionOnError reports whether a failure should stop the consumer.
	ShouldFaultSubscriptionOnError() bool
}

// LoggingFailureHandler logs each failure. It faults the subscription only when Fault is set.
type LoggingFailureHandler struct {
	Logger *xlog.Logger
	Fault  bool
}

func NewLoggingFailureHandler(l *xlog.Logger) *LoggingFailureHandler {
	if l == nil {
		l = xlog.Default()
	}
	return &LoggingFailureHandler{Logger: l}
}

func (h *LoggingFailureHandler) OnDeliveryFailure(_ context.Context, f DeliveryFailure) error {
	h.log(f, "delivery failure")
	return nil
}

func (h *LoggingFailureHandler) OnSubscriptionFailure(_ context.Context, f DeliveryFailure) error {
	h.log(f, "subscription failure")
	return nil
}

func (h *LoggingFailureHandler) ShouldFaultSubscriptionOnError() bool { return h.Fault }

func (h *LoggingFailureHandler) log(f DeliveryFailure, msg string) {
	tok := ""
	if f.Token != nil {
		tok = f.Token.String()
	}
	h.Logger.Error().
		Err(f.Err).
		Str("provider", f.Provider).
		Str("queue", f.Queue.String()).
		Str("stream", f.Stream.String()).
		Str("token", tok).
		Str("event_id", f.EventID).
		Msg(msg)
}

var _ FailureHandler = (*LoggingFailureHandler)(nil)
