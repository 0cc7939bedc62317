// Command agenttrace demonstrates agent-attributed tracing of generation
// calls. Without arguments it shows an interactive scenario menu.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags

	withApp := func(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
		a, cleanup, err := bootstrap(cmd.Context(), f, cmd.OutOrStdout(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer cleanup()
		return fn(cmd.Context(), a)
	}

	root := &cobra.Command{
		Use:          "agenttrace",
		Short:        "Trace generation calls with agent, user and conversation attribution",
		Version:      version + " (" + gitCommit + ")",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, runMenu)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configFile, "config", "", "YAML configuration file")
	pf.StringVar(&f.envFile, "env-file", ".env", "file of KEY=VALUE pairs loaded before configuration")
	pf.StringVar(&f.provider, "provider", "", "AI provider (auto, openai, mock)")
	pf.StringVar(&f.model, "model", "", "model name or alias")
	pf.StringSliceVar(&f.fallbacks, "fallback", nil, "provider aliases tried in order when the provider fails")
	pf.StringVar(&f.exporter, "exporter", "", "span exporter (tree, stdout, otlp-http, otlp-grpc, none)")
	pf.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	pf.StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		&cobra.Command{
			Use:       "run <scenario>...",
			Short:     "Run one or more scenarios without the menu",
			Args:      cobra.MinimumNArgs(1),
			ValidArgs: scenarioNames(),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, func(ctx context.Context, a *app) error {
					return a.runScenarios(ctx, args...)
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List the available scenarios",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				out := cmd.OutOrStdout()
				for _, s := range scenarios {
					fmt.Fprintf(out, "%-12s %s\n", s.Name, s.Description)
				}
				fmt.Fprintf(out, "%-12s %s\n", scenarioAll, "Run every scenario")
			},
		},
	)

	return root
}
