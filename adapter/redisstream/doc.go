// Package redisstream stores xstreams queues in Redis Streams.
//
// Each queue is one stream key named after its QueueID ("<provider>-<index>"). Producers
// XADD one entry per event; receivers join the consumer group "consumer" and read with
// XREADGROUP, starting from their pending backlog ("0") and then only new entries (">").
// Entries are acknowledged with XACK and the stream is capped periodically with
// XTRIM MAXLEN ~.
//
// Entry fields:
//   - streamNamespace, streamKey: logical stream identity
//   - eventType: declared event type name
//   - data: encoded event
//   - eventId: producer idempotency key (uuid)
//   - ctx:<name>: request context captured at append time
//
// Example:
//
//	f := redisstream.Use(redisstream.Config{Addr: "localhost:6379"}, "orders",
//	    redisstream.WithLogger(logger),
//	    redisstream.WithTotalQueueCount(8),
//	)
//	adapter, _ := f.CreateAdapter()
//	res := adapter.QueueMessageBatch(ctx, xstreams.NewStreamID("orders", "42"), []any{evt}, nil, nil)
package redisstream
