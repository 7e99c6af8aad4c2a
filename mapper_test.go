package xstreams

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashRingMapper_Queues(t *testing.T) {
	m, err := NewHashRingMapper(MapperOptions{TotalQueueCount: 4}, "Orders")
	require.NoError(t, err)

	qs := m.Queues()
	require.Len(t, qs, 4)
	step := uint32(math.MaxUint32 / 4)
	for i, q := range qs {
		assert.Equal(t, uint32(i), q.Index())
		assert.Equal(t, uint32(i)*step, q.Hash())
		assert.Equal(t, fmt.Sprintf("orders-%d", i), q.String())
	}

	// callers cannot mutate the ring
	qs[0] = QueueID{}
	assert.False(t, m.Queues()[0].IsZero())
}

func TestHashRingMapper_InvalidOptions(t *testing.T) {
	_, err := NewHashRingMapper(MapperOptions{TotalQueueCount: 0}, "p")
	var argErr *ArgumentError
	require.True(t, errors.As(err, &argErr))
	assert.Equal(t, "TotalQueueCount", argErr.Name)

	_, err = NewHashRingMapper(MapperOptions{TotalQueueCount: -3}, "p")
	require.Error(t, err)

	for _, n := range []int{MaxTotalQueueCount + 1, 1 << 32} {
		_, err = NewHashRingMapper(MapperOptions{TotalQueueCount: n}, "p")
		require.True(t, errors.As(err, &argErr), "count %d", n)
		assert.Equal(t, "TotalQueueCount", argErr.Name)
		_, err = NewQueueMapper(MapperOptions{TotalQueueCount: n, Strategy: StrategyRendezvous}, "p")
		require.Error(t, err, "count %d", n)
	}

	m, err := NewHashRingMapper(MapperOptions{TotalQueueCount: MaxTotalQueueCount}, "p")
	require.NoError(t, err)
	assert.Len(t, m.Queues(), MaxTotalQueueCount)

	_, err = NewHashRingMapper(MapperOptions{TotalQueueCount: 2}, "")
	require.True(t, errors.As(err, &argErr))
	assert.Equal(t, "prefix", argErr.Name)

	_, err = NewQueueMapper(MapperOptions{TotalQueueCount: 2, Strategy: "modulo"}, "p")
	require.True(t, errors.As(err, &argErr))
	assert.Equal(t, "Strategy", argErr.Name)
}

func TestHashRingMapper_RoutesToFirstQueueAtOrAfterHash(t *testing.T) {
	m, err := NewHashRingMapper(MapperOptions{TotalQueueCount: 8}, "p")
	require.NoError(t, err)
	qs := m.Queues()

	f := func(ns, key string) bool {
		s := NewStreamID(ns, key)
		h := StreamHash(s)
		q := m.QueueFor(s)
		if h > qs[len(qs)-1].Hash() {
			return q == qs[0]
		}
		if q.Hash() < h {
			return false
		}
		// no queue between the stream hash and the chosen queue
		return q.Index() == 0 || qs[q.Index()-1].Hash() < h
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestMappers_Deterministic(t *testing.T) {
	for _, strategy := range []MapperStrategy{StrategyHashRing, StrategyRendezvous} {
		t.Run(string(strategy), func(t *testing.T) {
			opts := MapperOptions{TotalQueueCount: 16, Strategy: strategy}
			a, err := NewQueueMapper(opts, "provider")
			require.NoError(t, err)
			b, err := NewQueueMapper(opts, "Provider")
			require.NoError(t, err)

			f := func(ns, key string) bool {
				s := NewStreamID(ns, key)
				first := a.QueueFor(s)
				return first == a.QueueFor(s) && first == b.QueueFor(s) && first.Index() < 16
			}
			require.NoError(t, quick.Check(f, &quick.Config{MaxCount: 2000}))
		})
	}
}

func TestMappers_UseEveryQueue(t *testing.T) {
	for _, strategy := range []MapperStrategy{StrategyHashRing, StrategyRendezvous} {
		t.Run(string(strategy), func(t *testing.T) {
			m, err := NewQueueMapper(MapperOptions{TotalQueueCount: 8, Strategy: strategy}, "p")
			require.NoError(t, err)
			seen := map[uint32]int{}
			for i := 0; i < 4000; i++ {
				seen[m.QueueFor(NewStreamID("tenant", fmt.Sprintf("key-%d", i))).Index()]++
			}
			assert.Len(t, seen, 8)
		})
	}
}

func TestSingleQueueMapper(t *testing.T) {
	m, err := NewQueueMapper(MapperOptions{TotalQueueCount: 1}, "solo")
	require.NoError(t, err)
	f := func(ns, key string) bool {
		return m.QueueFor(NewStreamID(ns, key)).String() == "solo-0"
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestStreamHash_SeparatesNamespaceAndKey(t *testing.T) {
	assert.NotEqual(t, StreamHash(NewStreamID("ab", "c")), StreamHash(NewStreamID("a", "bc")))
}

func TestDefaultMapperOptions(t *testing.T) {
	opts := DefaultMapperOptions()
	assert.Equal(t, 8, opts.TotalQueueCount)
	require.NoError(t, opts.Validate())
}

func TestNewQueueID_LowercasesPrefix(t *testing.T) {
	assert.Equal(t, "orders-3", NewQueueID("ORDERS", 3, 0).String())
	assert.Equal(t, "ärger-0", NewQueueID("ÄRGER", 0, 0).String())
}
