package redisstream

import (
	"fmt"
	"maps"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/trickstertwo/xstreams"
)

// BatchContainer is one delivered entry.
type BatchContainer struct {
	entryID   string
	token     SequenceToken
	stream    xstreams.StreamID
	eventType string
	eventID   string
	data      []byte
	reqCtx    map[string]string
}

// NewBatchContainer wraps a read entry. Missing fields decode as empty values; only a
// malformed entry id is an error.
func NewBatchContainer(msg redis.XMessage) (*BatchContainer, error) {
	tok, err := ParseSequenceToken(msg.ID)
	if err != nil {
		return nil, err
	}
	bc := &BatchContainer{entryID: msg.ID, token: tok}
	for k, v := range msg.Values {
		switch k {
		case fieldStreamNamespace:
			bc.stream.Namespace = asString(v)
		case fieldStreamKey:
			bc.stream.Key = asString(v)
		case fieldEventType:
			bc.eventType = asString(v)
		case fieldEventID:
			bc.eventID = asString(v)
		case fieldData:
			bc.data = asBytes(v)
		default:
			if name, ok := strings.CutPrefix(k, fieldCtxPrefix); ok {
				if bc.reqCtx == nil {
					bc.reqCtx = make(map[string]string)
				}
				bc.reqCtx[name] = asString(v)
			}
		}
	}
	return bc, nil
}

// EntryID is the id the store assigned; acknowledgements are keyed by it.
func (c *BatchContainer) EntryID() string              { return c.entryID }
func (c *BatchContainer) StreamID() xstreams.StreamID  { return c.stream }
func (c *BatchContainer) Token() xstreams.Token        { return c.token }
func (c *BatchContainer) SequenceToken() SequenceToken { return c.token }
func (c *BatchContainer) EventType() string            { return c.eventType }
func (c *BatchContainer) EventID() string              { return c.eventID }
func (c *BatchContainer) Data() []byte                 { return c.data }

// RequestContext returns a copy of the captured request context.
func (c *BatchContainer) RequestContext() map[string]string {
	if c.reqCtx == nil {
		return nil
	}
	return maps.Clone(c.reqCtx)
}

func (c *BatchContainer) String() string {
	return fmt.Sprintf("%s@%s[%s]", c.stream, c.entryID, c.eventType)
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}

func asBytes(v any) []byte {
	switch b := v.(type) {
	case []byte:
		return b
	case string:
		return []byte(b)
	case nil:
		return nil
	default:
		return []byte(fmt.Sprintf("%v", b))
	}
}

var _ xstreams.BatchContainer = (*BatchContainer)(nil)
