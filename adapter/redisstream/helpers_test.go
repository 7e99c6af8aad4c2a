package redisstream

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/xstreams"
	"github.com/trickstertwo/xstreams/adapter/memory"
)

// redisClient returns a client for REDIS_ADDR when set, otherwise for a miniredis
// server that lives for the duration of the test.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = miniredis.RunT(t).Addr()
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// timerClock is a fakeClock whose waits fire only when the test calls Fire.
type timerClock struct {
	*fakeClock
	fire chan time.Time
}

func newTimerClock() *timerClock {
	return &timerClock{fakeClock: newFakeClock(), fire: make(chan time.Time, 1)}
}

func (c *timerClock) After(time.Duration) <-chan time.Time { return c.fire }

func (c *timerClock) Fire() { c.fire <- c.Now() }

// spyStreams records every command and injects failures before delegating to an
// in-memory store.
type spyStreams struct {
	inner Streams

	mu      sync.Mutex
	adds    []*redis.XAddArgs
	reads   []*redis.XReadGroupArgs
	acks    [][]string // stream, group, ids...
	trims   []int64
	creates int

	failAddAt  int // 1-based, 0 disables
	addErr     error
	readErr    error
	ackErr     map[string]error
	trimErr    error
	createErr  error
	readResult []redis.XStream

	// readGate, when set, holds XReadGroup until closed; readStarted is signalled
	// on entry.
	readGate    chan struct{}
	readStarted chan struct{}
	createGate  chan struct{}
}

func newSpy() *spyStreams {
	return &spyStreams{inner: memory.NewStore(memory.Config{MaxBlock: 50 * time.Millisecond})}
}

func (s *spyStreams) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	s.mu.Lock()
	s.adds = append(s.adds, a)
	fail := s.failAddAt > 0 && len(s.adds) == s.failAddAt
	s.mu.Unlock()
	if fail {
		return redis.NewStringResult("", s.addErr)
	}
	return s.inner.XAdd(ctx, a)
}

func (s *spyStreams) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	s.mu.Lock()
	s.reads = append(s.reads, a)
	gate, started, readErr, result := s.readGate, s.readStarted, s.readErr, s.readResult
	s.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if readErr != nil {
		return redis.NewXStreamSliceCmdResult(nil, readErr)
	}
	if result != nil {
		return redis.NewXStreamSliceCmdResult(result, nil)
	}
	return s.inner.XReadGroup(ctx, a)
}

func (s *spyStreams) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	s.mu.Lock()
	s.creates++
	gate, createErr := s.createGate, s.createErr
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if createErr != nil {
		return redis.NewStatusResult("", createErr)
	}
	return s.inner.XGroupCreateMkStream(ctx, stream, group, start)
}

func (s *spyStreams) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	s.mu.Lock()
	s.acks = append(s.acks, append([]string{stream, group}, ids...))
	var err error
	for _, id := range ids {
		if e, ok := s.ackErr[id]; ok {
			err = e
		}
	}
	s.mu.Unlock()
	if err != nil {
		return redis.NewIntResult(0, err)
	}
	return s.inner.XAck(ctx, stream, group, ids...)
}

func (s *spyStreams) XTrimMaxLenApprox(ctx context.Context, key string, maxLen, limit int64) *redis.IntCmd {
	s.mu.Lock()
	s.trims = append(s.trims, maxLen)
	trimErr := s.trimErr
	s.mu.Unlock()
	if trimErr != nil {
		return redis.NewIntResult(0, trimErr)
	}
	return s.inner.XTrimMaxLenApprox(ctx, key, maxLen, limit)
}

func (s *spyStreams) readCursors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.reads))
	for i, a := range s.reads {
		out[i] = a.Streams[len(a.Streams)-1]
	}
	return out
}

func (s *spyStreams) trimCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trims)
}

func (s *spyStreams) addCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.adds)
}

var errStore = errors.New("READONLY You can't write against a read only replica")

func testReceiver(t *testing.T, client Streams, clk xstreams.Clock) *Receiver {
	t.Helper()
	opts := DefaultReceiverOptions()
	opts.Clock = clk
	r, err := NewReceiver(xstreams.NewQueueID("orders", 0, 0), client, xlog.Default(), opts)
	require.NoError(t, err)
	return r
}

func testFactory(t *testing.T, client Streams, opts ...Option) *Factory {
	t.Helper()
	cfg := Defaults()
	cfg.TotalQueueCount = 4
	f, err := NewFactory(factoryConfig(client, cfg, "orders", opts...))
	require.NoError(t, err)
	return f
}

func xmsg(id string, values map[string]any) redis.XMessage {
	return redis.XMessage{ID: id, Values: values}
}
