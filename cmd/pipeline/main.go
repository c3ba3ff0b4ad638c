package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sportsdatalake/internal/app"
	"sportsdatalake/internal/config"
)

// Set at build time with -ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sportsdata-pipeline",
		Short:         "Fetch sports data, land it in S3 and query it through Glue and Athena",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newVersionCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		sql           string
		successStates []string
		reuseExisting bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("sql") {
				cfg.Query.SQL = sql
			}
			if flags.Changed("strict-crawler-states") {
				cfg.Catalog.SuccessStates = successStates
			}
			if flags.Changed("reuse-existing") {
				cfg.Catalog.ReuseExisting = reuseExisting
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&sql, "sql", "", "query to run after cataloging (overrides ATHENA_QUERY)")
	cmd.Flags().StringSliceVar(&successStates, "strict-crawler-states", nil,
		"crawler outcomes accepted as success, e.g. SUCCEEDED (overrides GLUE_CRAWLER_SUCCESS_STATES)")
	cmd.Flags().BoolVar(&reuseExisting, "reuse-existing", false,
		"reuse a database or crawler left by a previous run (overrides GLUE_REUSE_EXISTING)")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	a, err := app.Build(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error initializing pipeline: %v\n", err)
		return err
	}

	_, runErr := a.Run(ctx)
	if err := a.Close(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v\n", err)
	}
	return runErr
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the service version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "sportsdata-pipeline version %s (commit: %s)\n", version, commit)
			return nil
		},
	}
}
