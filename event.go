package xstreams

import "time"

// EventType enumerates lifecycle events reported to observers.
type EventType string

const (
	EventInit    EventType = "init"
	EventRead    EventType = "read"
	EventHandled EventType = "handled"
	EventAck     EventType = "ack"
	EventTrim    EventType = "trim"
	EventAppend  EventType = "append"
	EventError   EventType = "error"
	EventStopped EventType = "stopped"
)

// Event carries telemetry for observers.
type Event struct {
	Type     EventType
	Provider string
	Queue    string
	Stream   string
	Count    int
	Duration time.Duration
	Err      error
}

// PoolStats returns telemetry about an ObserverPool.
type PoolStats struct {
	Dropped      uint64
	Processed    uint64
	ActiveEvents int
	Workers      int
	BufferSize   int
}
