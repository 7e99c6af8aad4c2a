package xstreams

import (
	"fmt"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"
)

// MapperStrategy selects how stream identities are placed on queues.
type MapperStrategy string

const (
	// StrategyHashRing places queues at uniform positions on a uint32 ring and routes a
	// stream to the first queue at or after its hash.
	StrategyHashRing MapperStrategy = "hashring"
	// StrategyRendezvous routes with highest-random-weight hashing over the queue names.
	StrategyRendezvous MapperStrategy = "rendezvous"

	DefaultTotalQueueCount = 8
	// MaxTotalQueueCount bounds the queue set so ring positions stay distinct uint32s.
	MaxTotalQueueCount = 1 << 16
)

// MapperOptions configures a QueueMapper.
type MapperOptions struct {
	TotalQueueCount int
	Strategy        MapperStrategy
}

// DefaultMapperOptions returns a ring of DefaultTotalQueueCount queues.
func DefaultMapperOptions() MapperOptions {
	return MapperOptions{TotalQueueCount: DefaultTotalQueueCount, Strategy: StrategyHashRing}
}

// Validate reports configuration errors.
func (o MapperOptions) Validate() error {
	if o.TotalQueueCount < 1 || o.TotalQueueCount > MaxTotalQueueCount {
		return &ArgumentError{Name: "TotalQueueCount", Reason: fmt.Sprintf("must be in [1, %d], got %d", MaxTotalQueueCount, o.TotalQueueCount)}
	}
	switch o.Strategy {
	case "", StrategyHashRing, StrategyRendezvous:
		return nil
	default:
		return &ArgumentError{Name: "Strategy", Reason: fmt.Sprintf("unknown strategy %q", o.Strategy)}
	}
}

// QueueMapper routes logical streams onto a fixed set of physical queues.
// Implementations are immutable and safe for concurrent use.
type QueueMapper interface {
	// Queues returns every queue ordered by index.
	Queues() []QueueID
	// QueueFor returns the queue responsible for s. Pure: no I/O.
	QueueFor(s StreamID) QueueID
}

// NewQueueMapper builds the mapper selected by opts.Strategy.
func NewQueueMapper(opts MapperOptions, prefix string) (QueueMapper, error) {
	if opts.Strategy == StrategyRendezvous {
		m, err := NewRendezvousMapper(opts, prefix)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	m, err := NewHashRingMapper(opts, prefix)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// StreamHash is the stable 32-bit hash of a stream identity shared by all mappers.
func StreamHash(s StreamID) uint32 {
	d := xxhash.New()
	_, _ = d.WriteString(s.Namespace)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(s.Key)
	h := d.Sum64()
	return uint32(h>>32) ^ uint32(h)
}

// HashRingMapper is the default QueueMapper.
type HashRingMapper struct {
	queues []QueueID
}

// NewHashRingMapper spreads opts.TotalQueueCount queues uniformly over the uint32 ring.
func NewHashRingMapper(opts MapperOptions, prefix string) (*HashRingMapper, error) {
	queues, err := ringQueues(opts, prefix)
	if err != nil {
		return nil, err
	}
	return &HashRingMapper{queues: queues}, nil
}

func ringQueues(opts MapperOptions, prefix string) ([]QueueID, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if prefix == "" {
		return nil, Required("prefix")
	}
	n := uint32(opts.TotalQueueCount)
	step := math.MaxUint32 / n
	queues := make([]QueueID, n)
	for i := uint32(0); i < n; i++ {
		queues[i] = NewQueueID(prefix, i, i*step)
	}
	return queues, nil
}

func (m *HashRingMapper) Queues() []QueueID {
	out := make([]QueueID, len(m.queues))
	copy(out, m.queues)
	return out
}

func (m *HashRingMapper) QueueFor(s StreamID) QueueID {
	h := StreamHash(s)
	i := sort.Search(len(m.queues), func(i int) bool { return m.queues[i].Hash() >= h })
	if i == len(m.queues) {
		i = 0
	}
	return m.queues[i]
}

// RendezvousMapper routes with highest-random-weight hashing. Unlike the ring it moves
// only ~1/N of the streams when the queue count changes by one.
type RendezvousMapper struct {
	queues []QueueID
	byName map[string]QueueID
	rv     *rendezvous.Rendezvous
}

func NewRendezvousMapper(opts MapperOptions, prefix string) (*RendezvousMapper, error) {
	queues, err := ringQueues(opts, prefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(queues))
	byName := make(map[string]QueueID, len(queues))
	for i, q := range queues {
		names[i] = q.String()
		byName[names[i]] = q
	}
	return &RendezvousMapper{
		queues: queues,
		byName: byName,
		rv:     rendezvous.New(names, xxhash.Sum64String),
	}, nil
}

func (m *RendezvousMapper) Queues() []QueueID {
	out := make([]QueueID, len(m.queues))
	copy(out, m.queues)
	return out
}

func (m *RendezvousMapper) QueueFor(s StreamID) QueueID {
	return m.byName[m.rv.Lookup(s.Namespace+"\x00"+s.Key)]
}

var (
	_ QueueMapper = (*HashRingMapper)(nil)
	_ QueueMapper = (*RendezvousMapper)(nil)
)
