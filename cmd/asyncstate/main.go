package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/asyncstate/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errors.Fprint(os.Stderr, err)
		os.Exit(1)
	}
}

// globalFlags holds flags shared by every command.
type globalFlags struct {
	configPath string
	backend    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "asyncstate",
		Short: "Track async requests and apply optimistic changes",
		Long: `asyncstate tracks asynchronous requests and shows optimistic
changes before the server confirms them.

It serves a todo list over HTTP and WebSocket, and ships a terminal
panel to watch requests settle:

  • At most one fetch in flight per key
  • Stale data kept visible while refetching
  • Pending changes merged over the confirmed list
  • Memory, bbolt and S3 backed stores`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file (default: ./asyncstate.{json,toml,yaml})")
	rootCmd.PersistentFlags().StringVar(&flags.backend, "backend", "", "Store backend: memory, bolt or s3")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(
		serveCmd(flags),
		panelCmd(flags),
		todosCmd(flags),
		versionCmd(),
	)

	return rootCmd
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}
