package xstreams

import (
	"fmt"
	"strings"
)

// StreamID identifies a producer-defined logical stream. It is not a storage key;
// a QueueMapper decides which physical queue holds its events.
type StreamID struct {
	Namespace string
	Key       string
}

// NewStreamID builds a StreamID from its two parts.
func NewStreamID(namespace, key string) StreamID {
	return StreamID{Namespace: namespace, Key: key}
}

func (s StreamID) String() string {
	return fmt.Sprintf("%s/%s", s.Namespace, s.Key)
}

// QueueID names one physical queue. The zero value is not a valid queue.
type QueueID struct {
	prefix string
	index  uint32
	hash   uint32
}

// NewQueueID returns the identifier for queue index of a ring whose names share prefix.
// The prefix is lower-cased so the physical key is stable regardless of provider casing.
func NewQueueID(prefix string, index, hash uint32) QueueID {
	return QueueID{prefix: strings.ToLower(prefix), index: index, hash: hash}
}

func (q QueueID) Prefix() string { return q.prefix }
func (q QueueID) Index() uint32  { return q.index }

// Hash is the queue's position on the hash ring.
func (q QueueID) Hash() uint32 { return q.hash }

// String is the physical store key of the queue.
func (q QueueID) String() string {
	return fmt.Sprintf("%s-%d", q.prefix, q.index)
}

// IsZero reports whether q was never constructed.
func (q QueueID) IsZero() bool { return q == QueueID{} }
