package xstreams

// Token is a position within one queue. Tokens from the same implementation form a
// strict total order; comparing tokens of different implementations fails with
// ErrTokenMismatch.
type Token interface {
	SequenceNumber() int64
	EventIndex() int32
	Compare(other Token) (int, error)
	Equal(other Token) bool
	String() string
}

// Less reports whether a orders before b. Incomparable tokens are never less.
func Less(a, b Token) bool {
	if a == nil || b == nil {
		return false
	}
	c, err := a.Compare(b)
	return err == nil && c < 0
}
