package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vango-dev/asyncstate"
	"github.com/vango-dev/asyncstate/internal/config"
	"github.com/vango-dev/asyncstate/internal/todo/backend"
	"github.com/vango-dev/asyncstate/pkg/metrics"
	"github.com/vango-dev/asyncstate/pkg/server"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the todo API",
		Long: `Serve the tracked todo list over HTTP and WebSocket.

Endpoints:
  GET    /api/todos            fetch (add ?wait=1 to block until settled)
  POST   /api/todos/refetch    refetch, keeping stale data visible
  DELETE /api/todos/state      reset the tracker
  GET    /api/todos/view       merged optimistic view
  POST   /api/todos            optimistic create
  PATCH  /api/todos/{id}       optimistic update
  DELETE /api/todos/{id}       optimistic delete
  GET    /ws                   state and view stream

Examples:
  asyncstate serve
  asyncstate serve --port=9090
  asyncstate serve --backend=bolt --config=asyncstate.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			if host != "" {
				cfg.Server.Host = host
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default from config)")
	cmd.Flags().StringVarP(&host, "host", "H", "", "Host to bind to (default from config)")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := cfg.Log.NewLogger(os.Stderr).With("service", cfg.Name)

	opts := asyncstate.Options{
		Logger:       logger,
		StaleTime:    cfg.StaleTime(),
		TempIDPrefix: cfg.Optimistic.TempIDPrefix,
	}
	srvConfig := &server.Config{
		Address:         cfg.Address(),
		ShutdownTimeout: cfg.ShutdownTimeout(),
		TracerName:      cfg.Tracing.TracerName,
	}
	if cfg.Metrics.Enabled {
		opts.Metrics = metrics.New(
			metrics.WithNamespace(cfg.Metrics.Namespace),
			metrics.WithConstLabels(map[string]string{"service": cfg.Name}),
		)
		srvConfig.MetricsPath = cfg.Metrics.Path
	}

	store, err := backend.Open(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := server.New(store, asyncstate.New(opts), srvConfig)

	success("Serving todos on http://%s", cfg.Address())
	info("Store: %s", cfg.Store.Backend)
	if srvConfig.MetricsPath != "" {
		info("Metrics: http://%s%s", cfg.Address(), srvConfig.MetricsPath)
	}
	if p := cfg.Path(); p != "" {
		info("Config: %s", p)
	}

	if err := srv.Run(ctx); err != nil {
		return err
	}
	info("Stopped")
	return nil
}
