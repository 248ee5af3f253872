package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/nebula-extract/pkg/config"
	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
	"github.com/ajitpratap0/nebula-extract/pkg/state"
)

func newStateCmd() *cobra.Command {
	cfg := config.StateConfig{}
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset persisted job state",
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfg.Type, "state-type", "file", "State store type (file, sqlite, postgres)")
	flags.StringVar(&cfg.Path, "state-path", "", "Path of a file or sqlite state store")
	flags.StringVar(&cfg.DSN, "state-dsn", "", "DSN of a postgres state store")

	cmd.AddCommand(&cobra.Command{
		Use:   "show <job-id>",
		Short: "Print the run counts of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), cfg, func(ctx context.Context, store state.Store) error {
				st, ok, err := store.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return nebulaerrors.Newf(nebulaerrors.ErrorTypeNotFound, "no state recorded for job %q", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), state.Describe(st))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset <job-id>",
		Short: "Forget the run counts of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), cfg, func(ctx context.Context, store state.Store) error {
				d, ok := store.(state.Deleter)
				if !ok {
					return nebulaerrors.Newf(nebulaerrors.ErrorTypeState, "%s state store cannot delete job state", cfg.Type)
				}
				if err := d.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reset state of job %s\n", args[0])
				return nil
			})
		},
	})

	return cmd
}

func withStore(ctx context.Context, cfg config.StateConfig, fn func(context.Context, state.Store) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := state.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = state.Close(store) }()
	return fn(ctx, store)
}
