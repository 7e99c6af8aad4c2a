package redisstream

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickstertwo/xstreams"
)

func TestRedis_AppendReadAcknowledge(t *testing.T) {
	client := redisClient(t)
	f := testFactory(t, client, WithQueueNamePrefix("xstreams-test-"+t.Name()))
	a := f.NewAdapter()
	ctx := context.Background()

	s := xstreams.NewStreamID("ns", "k")
	q := f.QueueMapper().QueueFor(s)
	t.Cleanup(func() { _ = client.Del(context.Background(), q.String()).Err() })

	r := a.NewReceiver(q)
	require.True(t, r.Initialize(ctx, 2*time.Second).Ok())
	require.True(t, r.Initialize(ctx, 2*time.Second).Existed)

	res := a.QueueMessageBatch(ctx, s, []any{orderPlaced{ID: 1, Item: "pen"}}, nil, nil)
	require.True(t, res.Ok())

	read := r.GetMessages(ctx, 10)
	require.Equal(t, xstreams.ReadOK, read.Status)
	require.Len(t, read.Batch, 1)
	bc := read.Batch[0].(*BatchContainer)

	tok, err := ParseSequenceToken(bc.EntryID())
	require.NoError(t, err)
	assert.True(t, bc.Token().Equal(tok))
	assert.Equal(t, s, bc.StreamID())

	v, err := xstreams.DecodeCodec[orderPlaced](xstreams.JSONCodec{}, bc)
	require.NoError(t, err)
	assert.Equal(t, "pen", v.Item)

	pending, err := client.XPending(ctx, q.String(), DefaultGroup).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending.Count)

	ack := r.AcknowledgeDelivered(ctx, read.Batch)
	require.NoError(t, ack.Err)
	assert.Equal(t, []string{bc.EntryID()}, ack.Acked)

	pending, err = client.XPending(ctx, q.String(), DefaultGroup).Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)

	assert.Equal(t, xstreams.ReadEmpty, r.GetMessages(ctx, 10).Status)
	require.NoError(t, r.Shutdown(time.Second))
}

func TestRedis_Trim(t *testing.T) {
	client := redisClient(t)
	clk := newFakeClock()
	opts := DefaultReceiverOptions()
	opts.MaxStreamLength = 5
	f := testFactory(t, client, WithQueueNamePrefix("xstreams-trim-"+t.Name()), WithReceiverOptions(opts), WithClock(clk))
	a := f.NewAdapter()
	ctx := context.Background()

	s := xstreams.NewStreamID("ns", "bulk")
	q := f.QueueMapper().QueueFor(s)
	t.Cleanup(func() { _ = client.Del(context.Background(), q.String()).Err() })

	r := a.NewReceiver(q)
	require.True(t, r.Initialize(ctx, 2*time.Second).Ok())
	events := make([]any, 20)
	for i := range events {
		events[i] = orderPlaced{ID: i}
	}
	require.True(t, a.QueueMessageBatch(ctx, s, events, nil, nil).Ok())

	clk.Advance(opts.TrimInterval + time.Second)
	res := r.TrimIfNeeded(ctx)
	require.NoError(t, res.Err)
	assert.True(t, res.Trimmed)

	// approximate trimming may keep more than MaxStreamLength
	n, err := client.XLen(ctx, q.String()).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, n, int64(20))
	assert.False(t, r.TrimIfNeeded(ctx).Trimmed)
}

func TestProvider_RedisBackend(t *testing.T) {
	m := miniredis.RunT(t)
	af, err := xstreams.NewProvider(BackendName, "billing", map[string]any{"addr": m.Addr(), "total_queue_count": 3}, nil)
	require.NoError(t, err)
	f := af.(*Factory)
	t.Cleanup(func() { _ = f.Close() })

	assert.Len(t, f.QueueMapper().Queues(), 3)
	assert.Equal(t, "billing-2", f.QueueMapper().Queues()[2].String())

	_, err = xstreams.NewProvider(BackendName, "billing", map[string]any{"addr": "127.0.0.1:1"}, nil)
	require.Error(t, err)
}

func TestProvider_MemoryBackend(t *testing.T) {
	af, err := xstreams.NewProvider(MemoryBackendName, "scratch", map[string]any{"max_block": "10ms"}, nil)
	require.NoError(t, err)

	a, err := af.CreateAdapter()
	require.NoError(t, err)
	s := xstreams.NewStreamID("ns", "k")
	q := af.QueueMapper().QueueFor(s)
	r := a.CreateReceiver(q)
	ctx := context.Background()

	require.True(t, r.Initialize(ctx, time.Second).Ok())
	require.True(t, a.QueueMessageBatch(ctx, s, []any{"hello"}, nil, nil).Ok())
	read := r.GetMessages(ctx, 10)
	require.Len(t, read.Batch, 1)
	assert.Equal(t, "string", read.Batch[0].EventType())
}
