// Command xstreams inspects and drives a stream provider: list its queues, route stream
// ids, append events and consume queues.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xlog/adapter/zerolog"

	"github.com/trickstertwo/xstreams"
	_ "github.com/trickstertwo/xstreams/adapter/redisstream"
	"github.com/trickstertwo/xstreams/internal/config"
)

type app struct {
	cfgPath  string
	provider string
	backend  string
	logLevel string

	cfg     config.Config
	logger  *xlog.Logger
	factory xstreams.AdapterFactory
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "xstreams",
		Short:         "Redis Streams provider CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "config file (yaml, json or toml)")
	root.PersistentFlags().StringVar(&a.provider, "provider", "", "provider name, overrides the config file")
	root.PersistentFlags().StringVar(&a.backend, "backend", "", "backend ("+strings.Join(xstreams.Backends(), ", ")+")")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(newQueuesCmd(a), newRouteCmd(a), newProduceCmd(a), newConsumeCmd(a))
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.provider != "" {
		cfg.Provider = a.provider
	}
	if a.backend != "" {
		cfg.Backend = a.backend
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	zc := zerolog.Config{
		MinLevel:          xlog.LevelInfo,
		Console:           cfg.Log.Console,
		ConsoleTimeFormat: time.RFC3339,
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		zc.MinLevel = xlog.LevelDebug
	case "warn":
		zc.MinLevel = xlog.LevelWarn
	case "error":
		zc.MinLevel = xlog.LevelError
	}
	a.logger = zerolog.Use(zc).With(xlog.Str("app", "xstreams"), xlog.Str("provider", cfg.Provider))

	a.factory, err = xstreams.NewProvider(cfg.Backend, cfg.Provider, cfg.BackendConfig(), a.logger)
	if err != nil {
		return fmt.Errorf("open %s provider %q: %w", cfg.Backend, cfg.Provider, err)
	}
	return nil
}

func (a *app) close() error {
	if c, ok := a.factory.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func newQueuesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "queues",
		Short: "List the provider's queues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, q := range a.factory.QueueMapper().Queues() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", q, q.Hash())
			}
			return nil
		},
	}
}

func newRouteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "route <namespace> <key>...",
		Short: "Print the queue each stream id maps to",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mapper := a.factory.QueueMapper()
			for _, key := range args[1:] {
				s := xstreams.NewStreamID(args[0], key)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", s, mapper.QueueFor(s))
			}
			return nil
		},
	}
}
