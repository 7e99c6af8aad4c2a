package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickstertwo/xstreams"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(append([]string{"--backend", "memory", "--provider", "demo", "--log-level", "error"}, args...))
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	return out.String()
}

func TestQueuesCommand(t *testing.T) {
	lines := strings.Split(strings.TrimSpace(run(t, "queues")), "\n")
	require.Len(t, lines, xstreams.DefaultTotalQueueCount)
	assert.Equal(t, "demo-0\t0", lines[0])
}

func TestRouteCommand(t *testing.T) {
	out := run(t, "route", "orders", "a", "b")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "orders/a\tdemo-"))
}

func TestProduceCommand(t *testing.T) {
	out := run(t, "produce", "-n", "orders", "-k", "a", "-t", "OrderPlaced", `{"id":1}`, `{"id":2}`)
	assert.Contains(t, out, "appended 2/2 to orders/a")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--backend", "memory", "produce", "-n", "orders", "-k", "a", "{not json"})
	require.Error(t, cmd.Execute())
}

func TestConsume(t *testing.T) {
	a := &app{backend: "memory", provider: "demo", logLevel: "error"}
	require.NoError(t, a.setup())
	defer func() { _ = a.close() }()

	s := xstreams.NewStreamID("orders", "customer-7")
	q := a.factory.QueueMapper().QueueFor(s)
	queues, err := a.selectQueues([]string{q.String()})
	require.NoError(t, err)
	_, err = a.selectQueues([]string{"nope-1"})
	require.Error(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var out bytes.Buffer
	var seen atomic.Int32
	printer := newPrinter(&out, false)
	done := make(chan error, 1)
	go func() {
		done <- a.consume(ctx, queues, func(ctx context.Context, bc xstreams.BatchContainer) error {
			err := printer(ctx, bc)
			seen.Add(1)
			cancel()
			return err
		})
	}()

	adapter, err := a.factory.CreateAdapter()
	require.NoError(t, err)
	// the consumer group starts at the tail, so keep appending until one is seen
	for seen.Load() == 0 && ctx.Err() == nil {
		res := adapter.QueueMessageBatch(context.Background(), s, []any{rawEvent{name: "OrderPlaced", payload: json.RawMessage(`{"id":7}`)}}, nil, map[string]string{"trace": "t"})
		require.NoError(t, res.Err)
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, <-done)
	require.GreaterOrEqual(t, seen.Load(), int32(1))

	var ev printedEvent
	require.NoError(t, json.NewDecoder(&out).Decode(&ev))
	assert.Equal(t, q.String(), ev.Queue)
	assert.Equal(t, "orders/customer-7", ev.Stream)
	assert.Equal(t, "OrderPlaced", ev.Type)
	assert.JSONEq(t, `{"id":7}`, string(ev.Data))
	assert.Equal(t, map[string]string{"trace": "t"}, ev.RequestContext)
}
