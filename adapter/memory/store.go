package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is an in-process stand-in for the Redis stream commands the provider uses:
// XADD, XREADGROUP, XGROUP CREATE MKSTREAM, XACK and XTRIM MAXLEN. Results and errors
// have the shapes go-redis returns, including redis.Nil for an empty read and the
// BUSYGROUP error for an existing group. Not suitable for production.
type Store struct {
	cfg Config

	mu      sync.Mutex
	streams map[string]*stream

	closed  atomic.Bool
	metrics *storeMetrics
}

type storeMetrics struct {
	added   atomic.Uint64
	read    atomic.Uint64
	acked   atomic.Uint64
	trimmed atomic.Uint64
}

// Metrics is a snapshot of Store counters.
type Metrics struct {
	Added   uint64
	Read    uint64
	Acked   uint64
	Trimmed uint64
}

type entryID struct {
	ms  int64
	seq int64
}

func (id entryID) String() string { return fmt.Sprintf("%d-%d", id.ms, id.seq) }

func (id entryID) less(o entryID) bool {
	return id.ms < o.ms || (id.ms == o.ms && id.seq < o.seq)
}

func parseID(s string) (entryID, error) {
	msPart, seqPart, ok := strings.Cut(s, "-")
	ms, err := strconv.ParseInt(msPart, 10, 64)
	if err != nil {
		return entryID{}, fmt.Errorf("ERR Invalid stream ID specified as stream command argument")
	}
	var seq int64
	if ok {
		if seq, err = strconv.ParseInt(seqPart, 10, 64); err != nil {
			return entryID{}, fmt.Errorf("ERR Invalid stream ID specified as stream command argument")
		}
	}
	return entryID{ms: ms, seq: seq}, nil
}

type entry struct {
	id     entryID
	values map[string]any
}

type pending struct {
	consumer  string
	delivered int
}

type group struct {
	lastDelivered entryID
	pending       map[entryID]*pending
}

type stream struct {
	entries []entry
	last    entryID
	groups  map[string]*group
	// closed and replaced on every append to wake blocked readers
	changed chan struct{}
}

func newStream() *stream {
	return &stream{groups: make(map[string]*group), changed: make(chan struct{})}
}

var errClosed = errors.New("memory: store closed")

// NewStore creates an empty store.
func NewStore(cfg Config) *Store {
	if cfg.MaxBlock <= 0 {
		cfg.MaxBlock = 5 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Store{cfg: cfg, streams: make(map[string]*stream), metrics: &storeMetrics{}}
}

func (s *Store) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	if s.closed.Load() {
		return redis.NewStringResult("", errClosed)
	}
	values, err := flatten(a.Values)
	if err != nil {
		return redis.NewStringResult("", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[a.Stream]
	if !ok {
		if a.NoMkStream {
			return redis.NewStringResult("", redis.Nil)
		}
		st = newStream()
		s.streams[a.Stream] = st
	}

	var id entryID
	if a.ID == "" || a.ID == "*" {
		id = entryID{ms: s.cfg.Now().UnixMilli()}
		if !st.last.less(id) {
			id = entryID{ms: st.last.ms, seq: st.last.seq + 1}
		}
	} else {
		if id, err = parseID(a.ID); err != nil {
			return redis.NewStringResult("", err)
		}
		if !st.last.less(id) {
			return redis.NewStringResult("", errors.New("ERR The ID specified in XADD is equal or smaller than the target stream top item"))
		}
	}
	st.entries = append(st.entries, entry{id: id, values: values})
	st.last = id
	if a.MaxLen > 0 {
		st.trim(a.MaxLen)
	}
	close(st.changed)
	st.changed = make(chan struct{})
	s.metrics.added.Add(1)
	return redis.NewStringResult(id.String(), nil)
}

func flatten(v any) (map[string]any, error) {
	out := make(map[string]any)
	put := func(k string, val any) {
		switch b := val.(type) {
		case []byte:
			out[k] = string(b)
		case string:
			out[k] = b
		default:
			out[k] = fmt.Sprint(b)
		}
	}
	switch vals := v.(type) {
	case []any:
		if len(vals)%2 != 0 {
			return nil, errors.New("ERR wrong number of arguments for 'xadd' command")
		}
		for i := 0; i < len(vals); i += 2 {
			put(fmt.Sprint(vals[i]), vals[i+1])
		}
	case []string:
		if len(vals)%2 != 0 {
			return nil, errors.New("ERR wrong number of arguments for 'xadd' command")
		}
		for i := 0; i < len(vals); i += 2 {
			put(vals[i], vals[i+1])
		}
	case map[string]any:
		for k, val := range vals {
			put(k, val)
		}
	case map[string]string:
		for k, val := range vals {
			put(k, val)
		}
	default:
		return nil, fmt.Errorf("memory: unsupported XADD values %T", v)
	}
	if len(out) == 0 {
		return nil, errors.New("ERR wrong number of arguments for 'xadd' command")
	}
	return out, nil
}

func (s *Store) XGroupCreateMkStream(_ context.Context, key, name, start string) *redis.StatusCmd {
	if s.closed.Load() {
		return redis.NewStatusResult("", errClosed)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[key]
	if !ok {
		st = newStream()
		s.streams[key] = st
	}
	if _, exists := st.groups[name]; exists {
		return redis.NewStatusResult("", errors.New("BUSYGROUP Consumer Group name already exists"))
	}
	g := &group{pending: make(map[entryID]*pending)}
	switch start {
	case "$":
		g.lastDelivered = st.last
	case "0", "0-0":
	default:
		id, err := parseID(start)
		if err != nil {
			return redis.NewStatusResult("", err)
		}
		g.lastDelivered = id
	}
	st.groups[name] = g
	return redis.NewStatusResult("OK", nil)
}

func (s *Store) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	if s.closed.Load() {
		return redis.NewXStreamSliceCmdResult(nil, errClosed)
	}
	if len(a.Streams) == 0 || len(a.Streams)%2 != 0 {
		return redis.NewXStreamSliceCmdResult(nil, errors.New("ERR Unbalanced 'xreadgroup' list of streams"))
	}
	half := len(a.Streams) / 2
	keys, ids := a.Streams[:half], a.Streams[half:]

	var deadline time.Time
	if a.Block >= 0 {
		wait := a.Block
		if wait == 0 || wait > s.cfg.MaxBlock {
			wait = s.cfg.MaxBlock
		}
		deadline = time.Now().Add(wait)
	}

	for {
		s.mu.Lock()
		res, wake, err := s.readLocked(a, keys, ids)
		s.mu.Unlock()
		if err != nil {
			return redis.NewXStreamSliceCmdResult(nil, err)
		}
		if len(res) > 0 {
			return redis.NewXStreamSliceCmdResult(res, nil)
		}
		if deadline.IsZero() || !time.Now().Before(deadline) {
			return redis.NewXStreamSliceCmdResult(nil, redis.Nil)
		}
		t := time.NewTimer(time.Until(deadline))
		select {
		case <-ctx.Done():
			t.Stop()
			return redis.NewXStreamSliceCmdResult(nil, ctx.Err())
		case <-wake:
		case <-t.C:
		}
		t.Stop()
	}
}

// readLocked returns the streams with data, or a channel that fires on the next append
// to any ">"-read stream.
func (s *Store) readLocked(a *redis.XReadGroupArgs, keys, ids []string) ([]redis.XStream, <-chan struct{}, error) {
	var out []redis.XStream
	var wake <-chan struct{}
	for i, key := range keys {
		st, ok := s.streams[key]
		var g *group
		if ok {
			g = st.groups[a.Group]
		}
		if g == nil {
			return nil, nil, fmt.Errorf("NOGROUP No such key '%s' or consumer group '%s' in XREADGROUP with GROUP option", key, a.Group)
		}
		if ids[i] == ">" {
			msgs := st.deliverNew(g, a)
			s.metrics.read.Add(uint64(len(msgs)))
			if len(msgs) > 0 {
				out = append(out, redis.XStream{Stream: key, Messages: msgs})
			} else if wake == nil {
				wake = st.changed
			}
			continue
		}
		after, err := parseID(ids[i])
		if err != nil {
			return nil, nil, err
		}
		// History reads answer immediately, even when empty.
		out = append(out, redis.XStream{Stream: key, Messages: st.pendingFor(g, a, after)})
	}
	return out, wake, nil
}

func (st *stream) deliverNew(g *group, a *redis.XReadGroupArgs) []redis.XMessage {
	var msgs []redis.XMessage
	for _, e := range st.entries {
		if !g.lastDelivered.less(e.id) {
			continue
		}
		if a.Count > 0 && int64(len(msgs)) >= a.Count {
			break
		}
		g.lastDelivered = e.id
		if !a.NoAck {
			g.pending[e.id] = &pending{consumer: a.Consumer, delivered: 1}
		}
		msgs = append(msgs, redis.XMessage{ID: e.id.String(), Values: copyValues(e.values)})
	}
	return msgs
}

func (st *stream) pendingFor(g *group, a *redis.XReadGroupArgs, after entryID) []redis.XMessage {
	ids := make([]entryID, 0, len(g.pending))
	for id, p := range g.pending {
		if p.consumer == a.Consumer && after.less(id) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].less(ids[j]) })
	if a.Count > 0 && int64(len(ids)) > a.Count {
		ids = ids[:a.Count]
	}
	msgs := make([]redis.XMessage, 0, len(ids))
	for _, id := range ids {
		g.pending[id].delivered++
		// Trimmed entries stay pending and come back without values, as in Redis.
		msgs = append(msgs, redis.XMessage{ID: id.String(), Values: copyValues(st.values(id))})
	}
	return msgs
}

func (st *stream) values(id entryID) map[string]any {
	i := sort.Search(len(st.entries), func(i int) bool { return !st.entries[i].id.less(id) })
	if i < len(st.entries) && st.entries[i].id == id {
		return st.entries[i].values
	}
	return nil
}

func copyValues(v map[string]any) map[string]any {
	if v == nil {
		return nil
	}
	out := make(map[string]any, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

func (s *Store) XAck(_ context.Context, key, name string, ids ...string) *redis.IntCmd {
	if s.closed.Load() {
		return redis.NewIntResult(0, errClosed)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[key]
	if !ok {
		return redis.NewIntResult(0, nil)
	}
	g, ok := st.groups[name]
	if !ok {
		return redis.NewIntResult(0, fmt.Errorf("NOGROUP No such key '%s' or consumer group '%s'", key, name))
	}
	var n int64
	for _, raw := range ids {
		id, err := parseID(raw)
		if err != nil {
			return redis.NewIntResult(0, err)
		}
		if _, ok := g.pending[id]; ok {
			delete(g.pending, id)
			n++
		}
	}
	s.metrics.acked.Add(uint64(n))
	return redis.NewIntResult(n, nil)
}

// XTrimMaxLenApprox trims exactly to maxLen; an exact trim satisfies the approximate
// contract. limit is ignored.
func (s *Store) XTrimMaxLenApprox(_ context.Context, key string, maxLen, _ int64) *redis.IntCmd {
	if s.closed.Load() {
		return redis.NewIntResult(0, errClosed)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[key]
	if !ok {
		return redis.NewIntResult(0, nil)
	}
	n := st.trim(maxLen)
	s.metrics.trimmed.Add(uint64(n))
	return redis.NewIntResult(n, nil)
}

func (st *stream) trim(maxLen int64) int64 {
	over := int64(len(st.entries)) - maxLen
	if over <= 0 {
		return 0
	}
	st.entries = append([]entry(nil), st.entries[over:]...)
	return over
}

// Len returns the number of entries in key.
func (s *Store) Len(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.streams[key]; ok {
		return len(st.entries)
	}
	return 0
}

// Pending returns the pending entry ids of group on key, oldest first.
func (s *Store) Pending(key, name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[key]
	if !ok || st.groups[name] == nil {
		return nil
	}
	ids := make([]entryID, 0, len(st.groups[name].pending))
	for id := range st.groups[name].pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].less(ids[j]) })
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// Keys lists stream keys, sorted.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.streams))
	for k := range s.streams {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *Store) Metrics() Metrics {
	return Metrics{
		Added:   s.metrics.added.Load(),
		Read:    s.metrics.read.Load(),
		Acked:   s.metrics.acked.Load(),
		Trimmed: s.metrics.trimmed.Load(),
	}
}

// Close makes every later command fail.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}
