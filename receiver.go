package xstreams

import (
	"context"
	"iter"
	"time"
)

// Direction tells the host which paths an Adapter supports.
type Direction int

const (
	ReadOnly Direction = iota + 1
	WriteOnly
	ReadWrite
)

func (d Direction) String() string {
	switch d {
	case ReadOnly:
		return "read-only"
	case WriteOnly:
		return "write-only"
	case ReadWrite:
		return "read-write"
	default:
		return "unknown"
	}
}

// Receiver is the consumer side of one queue. A Receiver has a single logical owner;
// its methods are serialized internally but are not meant to be driven by several
// callers at once.
//
// Store failures never surface as Go errors from these methods; they are logged and
// reported through the returned result values.
type Receiver interface {
	// Initialize idempotently creates the queue's consumer group, bounded by timeout.
	Initialize(ctx context.Context, timeout time.Duration) InitResult
	// GetMessages reads up to maxCount entries not yet handed to this receiver.
	GetMessages(ctx context.Context, maxCount int) ReadResult
	// AcknowledgeDelivered acknowledges each container in order. A failure on one entry
	// does not stop the rest.
	AcknowledgeDelivered(ctx context.Context, delivered []BatchContainer) AckResult
	// Shutdown waits for an in-flight operation, bounded by timeout, then rejects
	// further calls. It returns ErrShutdownTimeout when the wait was cut short.
	Shutdown(timeout time.Duration) error
}

// Adapter is the producer side and the receiver factory of a provider.
type Adapter interface {
	Name() string
	IsRewindable() bool
	Direction() Direction
	CreateReceiver(q QueueID) Receiver
	// QueueMessageBatch appends events in order to the queue owning s. The first failure
	// aborts the remaining events.
	QueueMessageBatch(ctx context.Context, s StreamID, events []any, token Token, requestContext map[string]string) AppendResult
}

// AdapterFactory composes a provider from its collaborators.
type AdapterFactory interface {
	CreateAdapter() (Adapter, error)
	QueueMapper() QueueMapper
	DeliveryFailureHandler(q QueueID) (FailureHandler, error)
	// QueueAdapterCache returns a new cache on every call.
	QueueAdapterCache() *QueueAdapterCache
}

// ReadStatus classifies a GetMessages outcome.
type ReadStatus int

const (
	ReadOK ReadStatus = iota
	ReadEmpty
	// ReadFailed means "try again later", never "the queue is empty".
	ReadFailed
	ReadClosed
)

func (s ReadStatus) String() string {
	switch s {
	case ReadOK:
		return "ok"
	case ReadEmpty:
		return "empty"
	case ReadFailed:
		return "failed"
	case ReadClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ReadResult is the outcome of GetMessages. Batch is in delivery order.
type ReadResult struct {
	Status ReadStatus
	Batch  []BatchContainer
	Err    error
}

// Ok reports whether the read reached the store and succeeded, with or without data.
func (r ReadResult) Ok() bool { return r.Status == ReadOK || r.Status == ReadEmpty }

// All yields the delivered containers in order.
func (r ReadResult) All() iter.Seq[BatchContainer] {
	return func(yield func(BatchContainer) bool) {
		for _, bc := range r.Batch {
			if !yield(bc) {
				return
			}
		}
	}
}

// AckResult lists the entry ids acknowledged and the ones that failed, in call order.
type AckResult struct {
	Acked   []string
	Failed  []string
	Skipped int
	Err     error
}

// Partial reports whether some but not all entries were acknowledged.
func (r AckResult) Partial() bool { return len(r.Acked) > 0 && len(r.Failed) > 0 }

// InitResult is the outcome of Initialize. Existed is set when the group was already there.
type InitResult struct {
	Existed bool
	Err     error
}

func (r InitResult) Ok() bool { return r.Err == nil }

// TrimResult is the outcome of a trim check.
type TrimResult struct {
	Trimmed bool
	Removed int64
	Err     error
}

// AppendResult reports how many events of a batch were appended before the first failure.
type AppendResult struct {
	Appended int
	Err      error
}

func (r AppendResult) Ok() bool { return r.Err == nil }
