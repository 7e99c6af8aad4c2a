package redisstream

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/xstreams"
)

// Receiver reads one queue through the provider's consumer group.
//
// Public operations are serialized by opMu. The in-flight handle is tracked under
// stateMu so Shutdown can wait on it without queuing behind opMu.
type Receiver struct {
	queue     xstreams.QueueID
	key       string
	client    Streams
	logger    *xlog.Logger
	opts      ReceiverOptions
	consumer  string
	provider  string
	observers []xstreams.Observer

	opMu     sync.Mutex
	cursor   string
	lastTrim time.Time

	stateMu  sync.Mutex
	inflight chan struct{}
	closed   bool
}

// NewReceiver binds a receiver to q. The last trim time starts at construction, so the
// first trim happens one TrimInterval after it.
func NewReceiver(q xstreams.QueueID, client Streams, logger *xlog.Logger, opts ReceiverOptions) (*Receiver, error) {
	if q.IsZero() {
		return nil, xstreams.Required("queue")
	}
	if client == nil {
		return nil, xstreams.Required("client")
	}
	if logger == nil {
		return nil, xstreams.ErrNilLogger
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return newReceiver(q, client, logger, opts.withDefaults(), "", nil), nil
}

func newReceiver(q xstreams.QueueID, client Streams, logger *xlog.Logger, opts ReceiverOptions, provider string, observers []xstreams.Observer) *Receiver {
	consumer := opts.Consumer
	if consumer == "" {
		consumer = q.String()
	}
	return &Receiver{
		queue:     q,
		key:       q.String(),
		client:    client,
		logger:    logger.With(xlog.Str("queue", q.String()), xlog.Str("group", opts.Group)),
		opts:      opts,
		consumer:  consumer,
		provider:  provider,
		observers: observers,
		cursor:    cursorBacklog,
		lastTrim:  opts.Clock.Now(),
	}
}

func (r *Receiver) Queue() xstreams.QueueID { return r.queue }

// begin marks an operation in flight. The returned func settles it.
func (r *Receiver) begin() (func(), error) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	if r.closed {
		return nil, xstreams.ErrReceiverClosed
	}
	ch := make(chan struct{})
	r.inflight = ch
	return func() {
		r.stateMu.Lock()
		if r.inflight == ch {
			r.inflight = nil
		}
		r.stateMu.Unlock()
		close(ch)
	}, nil
}

// Initialize creates the consumer group at the stream tail, creating the stream if
// needed. An existing group is success. The call is abandoned after timeout.
func (r *Receiver) Initialize(ctx context.Context, timeout time.Duration) xstreams.InitResult {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	done, err := r.begin()
	if err != nil {
		return xstreams.InitResult{Err: err}
	}
	defer done()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.client.XGroupCreateMkStream(ctx, r.key, r.opts.Group, groupStart).Err()
	}()
	select {
	case err = <-errCh:
	case <-ctx.Done():
		err = fmt.Errorf("create group: %w", ctx.Err())
	}

	switch {
	case err == nil:
		r.logger.Debug().Msg("consumer group created")
		return xstreams.InitResult{}
	case isGroupExists(err):
		return xstreams.InitResult{Existed: true}
	default:
		r.logger.Error().Err(err).Str("op", "initialize").Msg("error initializing stream")
		return xstreams.InitResult{Err: err}
	}
}

func isGroupExists(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "BUSYGROUP") || strings.Contains(msg, "already exists")
}

// GetMessages reads up to maxCount entries; maxCount <= 0 reads without a count limit.
// The first call reads this consumer's pending backlog ("0") and, when the backlog is
// empty, goes on to new entries; later calls only read new entries (">").
// A successful read runs the trim check before returning.
func (r *Receiver) GetMessages(ctx context.Context, maxCount int) xstreams.ReadResult {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	done, err := r.begin()
	if err != nil {
		return xstreams.ReadResult{Status: xstreams.ReadClosed, Err: err}
	}
	defer done()

	cursor := r.cursor
	r.cursor = cursorNew
	batch, err := r.read(ctx, cursor, maxCount)
	if err == nil && len(batch) == 0 && cursor == cursorBacklog {
		cursor = cursorNew
		batch, err = r.read(ctx, cursor, maxCount)
	}
	if err != nil {
		r.logger.Error().Err(err).Str("op", "read").Str("cursor", cursor).Msg("error reading from stream")
		return xstreams.ReadResult{Status: xstreams.ReadFailed, Err: err}
	}

	r.trimLocked(ctx)
	if len(batch) == 0 {
		return xstreams.ReadResult{Status: xstreams.ReadEmpty}
	}
	return xstreams.ReadResult{Status: xstreams.ReadOK, Batch: batch}
}

func (r *Receiver) read(ctx context.Context, cursor string, maxCount int) ([]xstreams.BatchContainer, error) {
	block := time.Duration(-1)
	if r.opts.ReadBlock > 0 && cursor == cursorNew {
		block = r.opts.ReadBlock
	}
	streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.opts.Group,
		Consumer: r.consumer,
		Streams:  []string{r.key, cursor},
		Count:    int64(max(maxCount, 0)),
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return r.containers(streams), nil
}

func (r *Receiver) containers(streams []redis.XStream) []xstreams.BatchContainer {
	var batch []xstreams.BatchContainer
	for _, s := range streams {
		if s.Stream != r.key {
			continue
		}
		for _, msg := range s.Messages {
			bc, err := NewBatchContainer(msg)
			if err != nil {
				// Left pending in the group: a malformed id is upstream corruption.
				r.logger.Warn().Err(err).Str("entry", msg.ID).Msg("skipping entry with malformed id")
				continue
			}
			batch = append(batch, bc)
		}
	}
	return batch
}

// TrimIfNeeded caps the stream when more than TrimInterval passed since the last
// successful trim.
func (r *Receiver) TrimIfNeeded(ctx context.Context) xstreams.TrimResult {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	done, err := r.begin()
	if err != nil {
		return xstreams.TrimResult{Err: err}
	}
	defer done()
	return r.trimLocked(ctx)
}

func (r *Receiver) trimLocked(ctx context.Context) xstreams.TrimResult {
	if r.opts.Clock.Now().Sub(r.lastTrim) <= r.opts.TrimInterval {
		return xstreams.TrimResult{}
	}
	removed, err := r.client.XTrimMaxLenApprox(ctx, r.key, r.opts.MaxStreamLength, 0).Result()
	if err != nil {
		r.logger.Error().Err(err).Str("op", "trim").Msg("error trimming stream")
		xstreams.Notify(r.observers, xstreams.Event{Type: xstreams.EventError, Provider: r.provider, Queue: r.key, Err: err})
		return xstreams.TrimResult{Err: err}
	}
	r.lastTrim = r.opts.Clock.Now()
	r.logger.Debug().
		Str("max_len", strconv.FormatInt(r.opts.MaxStreamLength, 10)).
		Str("removed", strconv.FormatInt(removed, 10)).
		Msg("trimmed stream")
	xstreams.Notify(r.observers, xstreams.Event{Type: xstreams.EventTrim, Provider: r.provider, Queue: r.key, Count: int(removed)})
	return xstreams.TrimResult{Trimmed: true, Removed: removed}
}

// AcknowledgeDelivered issues one XACK per container, in order, keyed by the entry id.
// Containers from other providers are skipped. A failed XACK is logged and the rest are
// still attempted.
func (r *Receiver) AcknowledgeDelivered(ctx context.Context, delivered []xstreams.BatchContainer) xstreams.AckResult {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	done, err := r.begin()
	if err != nil {
		return xstreams.AckResult{Err: err}
	}
	defer done()

	var res xstreams.AckResult
	var errs []error
	for _, d := range delivered {
		bc, ok := d.(*BatchContainer)
		if !ok || bc == nil {
			res.Skipped++
			continue
		}
		if err := r.client.XAck(ctx, r.key, r.opts.Group, bc.EntryID()).Err(); err != nil {
			r.logger.Error().Err(err).Str("op", "ack").Str("entry", bc.EntryID()).Msg("error acknowledging message")
			res.Failed = append(res.Failed, bc.EntryID())
			errs = append(errs, fmt.Errorf("ack %s: %w", bc.EntryID(), err))
			continue
		}
		res.Acked = append(res.Acked, bc.EntryID())
	}
	res.Err = errors.Join(errs...)
	return res
}

// Shutdown waits for the in-flight operation, bounded by timeout, and rejects every
// later call. The store call itself is not cancelled.
func (r *Receiver) Shutdown(timeout time.Duration) error {
	r.stateMu.Lock()
	if r.closed {
		r.stateMu.Unlock()
		return nil
	}
	r.closed = true
	pending := r.inflight
	r.stateMu.Unlock()

	var err error
	if pending != nil {
		select {
		case <-pending:
		case <-xstreams.After(r.opts.Clock, timeout):
			err = xstreams.ErrShutdownTimeout
		}
	}
	r.logger.Info().Err(err).Msg("shutting down stream")
	return err
}

var _ xstreams.Receiver = (*Receiver)(nil)
