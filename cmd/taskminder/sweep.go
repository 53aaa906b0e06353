package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/taskminder/internal/app"
)

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one reminder sweep now and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx := contextOrBackground(cmd.Context())
			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"collections=%d due=%d sent=%d failed=%d save_errors=%d\n",
				res.Collections, res.Due, res.Sent, res.Failed, res.SaveErrors)
			return nil
		},
	}
}
