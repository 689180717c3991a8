package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:     "reset-processing",
	Aliases: []string{"reset"},
	Short:   "Release POIs stuck in processing",
	Long:    "Returns every claimed-but-unfinished POI to not_started. Safe to run whenever no worker is active.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		n, err := st.ResetProcessing(ctx)
		if err != nil {
			return eris.Wrap(err, "reset processing")
		}

		fmt.Printf("Released %d stuck claims\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
}
