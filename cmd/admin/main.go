package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ledgersync/internal/app"
	"ledgersync/internal/shared/config"
)

var (
	flagTimeout time.Duration
	flagJSON    bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Ledgersync admin CLI - maintenance commands for the ledger sync service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().DurationVar(&flagTimeout, "timeout", 30*time.Minute, "Timeout for the operation (e.g. 5m, 1h)")
	root.PersistentFlags().BoolVar(&flagJSON, "json", false, "Print results as JSON")

	root.AddCommand(
		newSyncCmd(),
		newSyncOwnerCmd(),
		newRecomputeCmd(),
		newPurgeExchangesCmd(),
		newMigrateCmd(),
		newCreateUserCmd(),
	)
	return root
}

// withCore loads config, wires the services and runs fn under a signal-aware timeout.
func withCore(cmd *cobra.Command, migrate bool, fn func(ctx context.Context, core *app.Core) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, flagTimeout)
	defer cancel()

	core, err := app.NewCore(ctx, cfg, migrate)
	if err != nil {
		return err
	}
	defer core.Close()

	start := time.Now()
	err = fn(ctx, core)
	log.Printf("%s finished in %v", cmd.Name(), time.Since(start).Round(time.Millisecond))
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
