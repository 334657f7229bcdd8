package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/vango-dev/asyncstate"
	"github.com/vango-dev/asyncstate/internal/config"
	"github.com/vango-dev/asyncstate/internal/panel"
	"github.com/vango-dev/asyncstate/internal/todo"
	"github.com/vango-dev/asyncstate/internal/todo/backend"
)

func panelCmd(flags *globalFlags) *cobra.Command {
	var logFile string

	cmd := &cobra.Command{
		Use:   "panel",
		Short: "Watch and edit todos in the terminal",
		Long: `Open a terminal panel over the todo store.

The panel shows the request state of the todo list and renders
pending changes right away, marking them until they are confirmed.
With the memory backend, set store.memory.latency and
store.memory.failureRate to watch slow and failing requests.

Examples:
  asyncstate panel
  asyncstate panel --log-file=panel.log`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runPanel(ctx, cfg, logFile)
		},
	}

	cmd.Flags().StringVar(&logFile, "log-file", "", "Write logs to this file (default: discard)")

	return cmd
}

func runPanel(ctx context.Context, cfg *config.Config, logFile string) error {
	// The terminal belongs to the panel; logs go to a file or nowhere.
	var w io.Writer = io.Discard
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	logger := cfg.Log.NewLogger(w).With("service", cfg.Name)

	store, err := backend.Open(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	client := asyncstate.New(asyncstate.Options{
		Logger:       logger,
		StaleTime:    cfg.StaleTime(),
		TempIDPrefix: cfg.Optimistic.TempIDPrefix,
	})
	set := asyncstate.NewSet(client, panel.Key, todo.Key)

	model := panel.New(panel.Options{
		Context: ctx,
		Store:   store,
		Tracker: asyncstate.NewTracker[[]todo.Todo](client, panel.Key),
		Set:     set,
	})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	stopObserving := model.Observe(p.Send)
	_, runErr := p.Run()
	stopObserving()

	waitCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := set.Wait(waitCtx); err != nil {
		warn("%d changes were still pending on exit", len(set.Pending()))
	}

	if runErr != nil && ctx.Err() == nil {
		return runErr
	}
	return nil
}
