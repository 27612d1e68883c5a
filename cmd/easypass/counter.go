package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"easypass/internal/config"
	"easypass/internal/store"
)

var errStoreDisabled = errors.New("counter store disabled (storage.counter_db is empty)")

// storeFunc is a counter subcommand body.
type storeFunc func(ctx context.Context, cmd *cobra.Command, args []string, cfg *config.Config, st *store.Store) error

// withStore runs fn with the configuration and an open counter store.
func (a *app) withStore(fn storeFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := a.loadConfig()
		if err != nil {
			return err
		}
		discardKey(cfg)

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		if st == nil {
			return errStoreDisabled
		}
		defer st.Close()

		return fn(cmd.Context(), cmd, args, cfg, st)
	}
}

func (a *app) counterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counter",
		Short: "Manage per-site counters",
		Long: `Each site's password depends on a counter. Bump it to rotate the password
for one site without touching the others.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <site>",
		Short: "Show the counter in use for a site",
		Args:  cobra.ExactArgs(1),
		RunE: a.withStore(func(ctx context.Context, cmd *cobra.Command, args []string, cfg *config.Config, st *store.Store) error {
			n, ok, err := st.Get(ctx, args[0])
			if err != nil {
				return err
			}
			source := "stored"
			if !ok {
				n = cfg.PasswordConfig(args[0]).Counter
				source = "config"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d (%s)\n", args[0], n, source)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <site> <n>",
		Short: "Store a counter for a site",
		Args:  cobra.ExactArgs(2),
		RunE: a.withStore(func(ctx context.Context, cmd *cobra.Command, args []string, cfg *config.Config, st *store.Store) error {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 {
				return fmt.Errorf("counter must be a positive integer, got %q", args[1])
			}
			if err := st.Set(ctx, args[0], n); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", args[0], n)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "bump <site>",
		Short: "Increment the counter for a site",
		Long: `Increment the stored counter for a site. A site without one starts from
the counter it currently uses.`,
		Args: cobra.ExactArgs(1),
		RunE: a.withStore(func(ctx context.Context, cmd *cobra.Command, args []string, cfg *config.Config, st *store.Store) error {
			n, err := st.Bump(ctx, args[0], cfg.PasswordConfig(args[0]).Counter)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", args[0], n)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <site>",
		Short: "Remove the stored counter for a site",
		Args:  cobra.ExactArgs(1),
		RunE: a.withStore(func(ctx context.Context, cmd *cobra.Command, args []string, cfg *config.Config, st *store.Store) error {
			removed, err := st.Delete(ctx, args[0])
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: no stored counter\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: deleted\n", args[0])
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored counters",
		Args:  cobra.NoArgs,
		RunE: a.withStore(func(ctx context.Context, cmd *cobra.Command, args []string, cfg *config.Config, st *store.Store) error {
			entries, err := st.List(ctx)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No stored counters.")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%-40s %6d  %s\n", e.Site, e.Counter, e.UpdatedAt.Format(time.DateTime))
			}
			return nil
		}),
	})

	return cmd
}
