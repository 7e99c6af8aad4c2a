package redisstream

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/trickstertwo/xstreams"
)

// SequenceToken is the position of an entry, taken from its id "<ms>-<seq>".
type SequenceToken struct {
	seq int64
	idx int32
}

// NewSequenceToken builds a token for an entry id that is not known as a string.
func NewSequenceToken(sequenceNumber int64, eventIndex int32) SequenceToken {
	return SequenceToken{seq: sequenceNumber, idx: eventIndex}
}

// ParseSequenceToken splits entryID at the first '-'. The left part must be a 64-bit
// integer and the right part a 32-bit integer.
func ParseSequenceToken(entryID string) (SequenceToken, error) {
	left, right, ok := strings.Cut(entryID, "-")
	if !ok {
		return SequenceToken{}, fmt.Errorf("%w: %q has no separator", xstreams.ErrInvalidToken, entryID)
	}
	seq, err := strconv.ParseInt(left, 10, 64)
	if err != nil {
		return SequenceToken{}, fmt.Errorf("%w: %q: sequence number: %w", xstreams.ErrInvalidToken, entryID, err)
	}
	idx, err := strconv.ParseInt(right, 10, 32)
	if err != nil {
		return SequenceToken{}, fmt.Errorf("%w: %q: event index: %w", xstreams.ErrInvalidToken, entryID, err)
	}
	return SequenceToken{seq: seq, idx: int32(idx)}, nil
}

func (t SequenceToken) SequenceNumber() int64 { return t.seq }
func (t SequenceToken) EventIndex() int32     { return t.idx }

// Compare orders by sequence number, then event index.
func (t SequenceToken) Compare(other xstreams.Token) (int, error) {
	o, ok := asSequenceToken(other)
	if !ok {
		return 0, fmt.Errorf("%w: %T", xstreams.ErrTokenMismatch, other)
	}
	switch {
	case t.seq < o.seq:
		return -1, nil
	case t.seq > o.seq:
		return 1, nil
	case t.idx < o.idx:
		return -1, nil
	case t.idx > o.idx:
		return 1, nil
	}
	return 0, nil
}

func (t SequenceToken) Equal(other xstreams.Token) bool {
	o, ok := asSequenceToken(other)
	return ok && t == o
}

// String is the entry id the token was parsed from.
func (t SequenceToken) String() string {
	return strconv.FormatInt(t.seq, 10) + "-" + strconv.FormatInt(int64(t.idx), 10)
}

func asSequenceToken(tok xstreams.Token) (SequenceToken, bool) {
	switch v := tok.(type) {
	case SequenceToken:
		return v, true
	case *SequenceToken:
		if v != nil {
			return *v, true
		}
	}
	return SequenceToken{}, false
}

var _ xstreams.Token = SequenceToken{}
