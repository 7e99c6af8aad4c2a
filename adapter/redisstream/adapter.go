package redisstream

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/xstreams"
)

// Adapter appends events to Redis Streams and creates receivers.
type Adapter struct {
	name      string
	client    Streams
	mapper    xstreams.QueueMapper
	codec     xstreams.Codec
	logger    *xlog.Logger
	opts      ReceiverOptions
	observers []xstreams.Observer
	newID     func() string
}

func (a *Adapter) Name() string { return a.name }

// IsRewindable is false: consumers cannot replay from a chosen offset.
func (a *Adapter) IsRewindable() bool { return false }

func (a *Adapter) Direction() xstreams.Direction { return xstreams.ReadWrite }

// CreateReceiver returns a new receiver for q. Receivers share no state.
func (a *Adapter) CreateReceiver(q xstreams.QueueID) xstreams.Receiver {
	return a.NewReceiver(q)
}

// NewReceiver is CreateReceiver with the concrete type.
func (a *Adapter) NewReceiver(q xstreams.QueueID) *Receiver {
	return newReceiver(q, a.client, a.logger, a.opts, a.name, a.observers)
}

// QueueMessageBatch appends each event as one entry, in order, to the queue that owns s.
// Appends are sequential. The first encode or XADD failure aborts the remaining events;
// it is logged and reported in the result. token is unused: the store assigns positions.
func (a *Adapter) QueueMessageBatch(ctx context.Context, s xstreams.StreamID, events []any, _ xstreams.Token, requestContext map[string]string) xstreams.AppendResult {
	ctxFields := contextFields(requestContext)
	var res xstreams.AppendResult
	for i, ev := range events {
		q := a.mapper.QueueFor(s)
		if err := a.append(ctx, q, s, ev, ctxFields); err != nil {
			res.Err = fmt.Errorf("append %s event %d to %s: %w", s, i, q, err)
			a.logger.Error().
				Err(err).
				Str("stream", s.String()).
				Str("queue", q.String()).
				Str("appended", strconv.Itoa(res.Appended)).
				Msg("error adding event to stream")
			xstreams.Notify(a.observers, xstreams.Event{Type: xstreams.EventError, Provider: a.name, Queue: q.String(), Stream: s.String(), Count: res.Appended, Err: err})
			return res
		}
		res.Appended++
	}
	if res.Appended > 0 {
		xstreams.Notify(a.observers, xstreams.Event{Type: xstreams.EventAppend, Provider: a.name, Queue: a.mapper.QueueFor(s).String(), Stream: s.String(), Count: res.Appended})
	}
	return res
}

func (a *Adapter) append(ctx context.Context, q xstreams.QueueID, s xstreams.StreamID, ev any, ctxFields []any) error {
	data, err := a.codec.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", xstreams.EventTypeName(ev), err)
	}
	values := make([]any, 0, 10+len(ctxFields))
	values = append(values,
		fieldStreamNamespace, s.Namespace,
		fieldStreamKey, s.Key,
		fieldEventType, xstreams.EventTypeName(ev),
		fieldData, data,
		fieldEventID, a.newID(),
	)
	values = append(values, ctxFields...)
	return a.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.String(),
		ID:     "*",
		Values: values,
	}).Err()
}

// contextFields flattens the request context into sorted ctx:<name> pairs.
func contextFields(rc map[string]string) []any {
	if len(rc) == 0 {
		return nil
	}
	keys := make([]string, 0, len(rc))
	for k := range rc {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		out = append(out, fieldCtxPrefix+k, rc[k])
	}
	return out
}

func newEventID() string { return uuid.NewString() }

var _ xstreams.Adapter = (*Adapter)(nil)
