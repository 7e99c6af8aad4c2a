package xstreams

import (
	"cmp"
	"fmt"
)

type seqToken int64

func (t seqToken) SequenceNumber() int64 { return int64(t) }
func (t seqToken) EventIndex() int32     { return 0 }
func (t seqToken) String() string        { return fmt.Sprintf("%d-0", int64(t)) }

func (t seqToken) Compare(other Token) (int, error) {
	o, ok := other.(seqToken)
	if !ok {
		return 0, ErrTokenMismatch
	}
	return cmp.Compare(t, o), nil
}

func (t seqToken) Equal(other Token) bool {
	o, ok := other.(seqToken)
	return ok && o == t
}

type testContainer struct {
	stream StreamID
	token  seqToken
	typ    string
	data   []byte
}

func (c *testContainer) StreamID() StreamID                { return c.stream }
func (c *testContainer) Token() Token                      { return c.token }
func (c *testContainer) EventType() string                 { return c.typ }
func (c *testContainer) EventID() string                   { return "evt-" + c.token.String() }
func (c *testContainer) Data() []byte                      { return c.data }
func (c *testContainer) RequestContext() map[string]string { return nil }

func containers(seqs ...int64) []BatchContainer {
	out := make([]BatchContainer, len(seqs))
	for i, s := range seqs {
		out[i] = &testContainer{
			stream: NewStreamID("ns", "k"),
			token:  seqToken(s),
			typ:    "OrderCreated",
			data:   []byte(fmt.Sprintf(`{"n":%d}`, s)),
		}
	}
	return out
}
