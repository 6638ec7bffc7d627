package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"ledgersync/internal/app"
	"ledgersync/internal/domain/openfinance"
)

func newSyncCmd() *cobra.Command {
	var connectionID string
	var ownerID int64

	cmd := &cobra.Command{
		Use:     "sync",
		Short:   "Sync one connection now",
		Example: `  admin sync --connection-id 6f1c... --owner-id 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ownerID <= 0 {
				return errors.New("--owner-id must be positive")
			}
			return withCore(cmd, false, func(ctx context.Context, core *app.Core) error {
				result, err := core.Sync.SyncConnection(ctx, ownerID, connectionID)
				if err != nil {
					return fmt.Errorf("sync failed: %w", err)
				}
				return printResults(cmd.OutOrStdout(), ownerID, []*openfinance.SyncResult{result})
			})
		},
	}
	cmd.Flags().StringVar(&connectionID, "connection-id", "", "Connection to sync")
	cmd.Flags().Int64Var(&ownerID, "owner-id", 0, "Owner of the connection")
	_ = cmd.MarkFlagRequired("connection-id")
	_ = cmd.MarkFlagRequired("owner-id")
	return cmd
}

func newSyncOwnerCmd() *cobra.Command {
	var ownerID int64
	var all bool

	cmd := &cobra.Command{
		Use:   "sync-owner",
		Short: "Sync every connection of an owner, or of all owners with --all",
		Example: `  admin sync-owner --owner-id 1
  admin sync-owner --all --timeout 1h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && ownerID <= 0 {
				return errors.New("must specify --owner-id or --all")
			}
			return withCore(cmd, false, func(ctx context.Context, core *app.Core) error {
				owners := []int64{ownerID}
				if all {
					var err error
					if owners, err = core.Connections.ListOwnersWithActiveConnections(ctx); err != nil {
						return fmt.Errorf("failed to list owners: %w", err)
					}
				}

				failed := 0
				for _, id := range owners {
					results, err := core.Sync.SyncOwner(ctx, id)
					if err != nil {
						return fmt.Errorf("user %d: %w", id, err)
					}
					if err := printResults(cmd.OutOrStdout(), id, results); err != nil {
						return err
					}
					for _, r := range results {
						if r.Error != "" {
							failed++
						}
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d connection(s) failed", failed)
				}
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&ownerID, "owner-id", 0, "Owner to sync")
	cmd.Flags().BoolVar(&all, "all", false, "Sync all owners with active connections")
	cmd.MarkFlagsMutuallyExclusive("owner-id", "all")
	return cmd
}

func newRecomputeCmd() *cobra.Command {
	var ownerID int64

	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Recompute the current net-worth snapshot of an owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			if ownerID <= 0 {
				return errors.New("--owner-id must be positive")
			}
			return withCore(cmd, false, func(ctx context.Context, core *app.Core) error {
				snap, err := core.Snapshots.Recompute(ctx, ownerID)
				if err != nil {
					return err
				}
				if flagJSON {
					return printJSON(cmd.OutOrStdout(), snap)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "User %d %s: assets=%s liabilities=%s net=%s (%d accounts)\n",
					ownerID, snap.Period.Format("2006-01"), snap.Assets, snap.Liabilities, snap.NetWorth, snap.AccountCount)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&ownerID, "owner-id", 0, "Owner to recompute")
	_ = cmd.MarkFlagRequired("owner-id")
	return cmd
}

func newPurgeExchangesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-exchanges",
		Short: "Delete pending credential exchanges that expired unclaimed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, false, func(ctx context.Context, core *app.Core) error {
				n, err := core.ConnectionService.PurgeExpired(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %d expired exchanges\n", n)
				return nil
			})
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			// NewCore runs the migration when asked to.
			return withCore(cmd, true, func(ctx context.Context, core *app.Core) error {
				fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
				return nil
			})
		},
	}
}

func newCreateUserCmd() *cobra.Command {
	var email, name, password string
	var admin bool

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a user with a password login",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, false, func(ctx context.Context, core *app.Core) error {
				u, err := core.Users.Create(ctx, email, name, password, admin)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created user %d (%s)\n", u.ID, u.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Login email")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&password, "password", "", "Password (at least 8 characters)")
	cmd.Flags().BoolVar(&admin, "admin", false, "Grant admin rights")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func printResults(w io.Writer, ownerID int64, results []*openfinance.SyncResult) error {
	if flagJSON {
		return printJSON(w, results)
	}

	fmt.Fprintf(w, "\n=== User %d ===\n", ownerID)
	if len(results) == 0 {
		fmt.Fprintln(w, "  No connections to sync")
	}
	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(w, "  %s: FAILED %s\n", r.ConnectionID, r.Error)
			continue
		}
		fmt.Fprintf(w, "  %s: added=%d modified=%d removed=%d skipped=%d attempts=%d (%dms)\n",
			r.ConnectionID, r.Added, r.Modified, r.Removed, r.Skipped, r.Attempts, r.DurationMs)
	}
	return nil
}
