package xstreams

// BatchContainer is one delivered entry: the stream it belongs to, its position and the
// encoded event with the request context captured at append time.
type BatchContainer interface {
	StreamID() StreamID
	Token() Token
	// EventType is the declared type name of the encoded event.
	EventType() string
	// EventID is the producer-assigned idempotency key; empty for entries appended by
	// other writers.
	EventID() string
	Data() []byte
	RequestContext() map[string]string
}

// Named lets an event choose the type name recorded next to its payload.
type Named interface {
	EventName() string
}
