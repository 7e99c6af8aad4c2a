package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/trickstertwo/xstreams"
)

func newConsumeCmd(a *app) *cobra.Command {
	var (
		queues string
		pretty bool
	)
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Consume queues and print each event as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			selected, err := a.selectQueues(splitQueues(queues))
			if err != nil {
				return err
			}
			return a.consume(cmd.Context(), selected, newPrinter(cmd.OutOrStdout(), pretty))
		},
	}
	cmd.Flags().StringVarP(&queues, "queues", "q", "", "comma separated queue ids (default: all)")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent printed events")
	return cmd
}

func splitQueues(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (a *app) selectQueues(names []string) ([]xstreams.QueueID, error) {
	all := a.factory.QueueMapper().Queues()
	if len(names) == 0 {
		return all, nil
	}
	out := make([]xstreams.QueueID, 0, len(names))
	for _, name := range names {
		i := slices.IndexFunc(all, func(q xstreams.QueueID) bool { return q.String() == name })
		if i < 0 {
			return nil, fmt.Errorf("unknown queue %q", name)
		}
		out = append(out, all[i])
	}
	return out, nil
}

// consume runs one pump per queue until ctx is cancelled or a pump faults.
func (a *app) consume(ctx context.Context, queues []xstreams.QueueID, handle xstreams.Handler) error {
	adapter, err := a.factory.CreateAdapter()
	if err != nil {
		return err
	}
	cache := a.factory.QueueAdapterCache()
	pool := xstreams.NewObserverPool(ctx, 2, 1024)
	defer func() { _ = pool.Close(time.Second) }()
	observers := []xstreams.Observer{xstreams.LoggingObserver{Logger: a.logger}}

	g, ctx := errgroup.WithContext(ctx)
	for _, q := range queues {
		failures, err := a.factory.DeliveryFailureHandler(q)
		if err != nil {
			return err
		}
		if a.cfg.Pump.FaultOnError {
			fh := xstreams.NewLoggingFailureHandler(a.logger)
			fh.Fault = true
			failures = fh
		}
		p, err := xstreams.NewPump(xstreams.PumpConfig{
			Provider:        a.cfg.Provider,
			Queue:           q,
			Receiver:        adapter.CreateReceiver(q),
			Handler:         handle,
			Middlewares:     []xstreams.Middleware{xstreams.LoggingMiddleware(nil)},
			FailureHandler:  failures,
			Cache:           cache.CreateQueueCache(q),
			Logger:          a.logger,
			Observers:       observers,
			ObserverPool:    pool,
			BatchSize:       a.cfg.Pump.BatchSize,
			PollInterval:    a.cfg.Pump.PollInterval,
			InitTimeout:     a.cfg.Pump.InitTimeout,
			ShutdownTimeout: a.cfg.Pump.ShutdownTimeout,
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return p.Run(ctx) })
	}
	a.logger.Info().Str("queues", fmt.Sprint(queues)).Msg("consuming")
	return g.Wait()
}

type printedEvent struct {
	Queue          string            `json:"queue"`
	Stream         string            `json:"stream"`
	Token          string            `json:"token"`
	Type           string            `json:"type"`
	ID             string            `json:"id"`
	Data           json.RawMessage   `json:"data"`
	RequestContext map[string]string `json:"requestContext,omitempty"`
}

// newPrinter writes one JSON line per event. Payloads that are not JSON are printed as
// strings.
func newPrinter(w io.Writer, pretty bool) xstreams.Handler {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return func(ctx context.Context, bc xstreams.BatchContainer) error {
		q, _ := xstreams.QueueFromContext(ctx)
		data := json.RawMessage(bc.Data())
		if !json.Valid(data) {
			quoted, err := json.Marshal(string(bc.Data()))
			if err != nil {
				return err
			}
			data = quoted
		}
		mu.Lock()
		defer mu.Unlock()
		return enc.Encode(printedEvent{
			Queue:          q.String(),
			Stream:         bc.StreamID().String(),
			Token:          bc.Token().String(),
			Type:           bc.EventType(),
			ID:             bc.EventID(),
			Data:           data,
			RequestContext: bc.RequestContext(),
		})
	}
}
