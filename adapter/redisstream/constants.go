package redisstream

// Entry field names. Every appended entry carries the stream identity next to the
// encoded event so a consumer can rebuild it without the producer's mapper.
const (
	fieldStreamNamespace = "streamNamespace"
	fieldStreamKey       = "streamKey"
	fieldEventType       = "eventType"
	fieldData            = "data"
	fieldEventID         = "eventId"
	fieldCtxPrefix       = "ctx:"
)

const (
	// DefaultGroup is the consumer group every receiver of a provider joins.
	DefaultGroup = "consumer"

	// BackendName is the registry name of this backend.
	BackendName = "redis-streams"

	cursorBacklog = "0"
	cursorNew     = ">"
	groupStart    = "$"
)
