package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) newBootstrapCommand() *cobra.Command {
	var skipSource bool

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create missing source and warehouse tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := a.load()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			if err := checkConfig(cmd.ErrOrStderr(), cfg); err != nil {
				return err
			}

			ctx := cmd.Context()
			src, dw, err := openStores(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer closeStores(log, src, dw)

			if !skipSource {
				if err := ensureSchema(ctx, "source", src, log); err != nil {
					return err
				}
			}
			if err := ensureSchema(ctx, "warehouse", dw, log); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema ready")
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipSource, "warehouse-only", false, "leave the source database untouched")
	return cmd
}
