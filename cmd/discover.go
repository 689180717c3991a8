package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/superschedules/navigator/internal/worker"
)

var (
	discoverLimit  int
	discoverDryRun bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Resolve a bounded batch of POIs",
	Long:  "Claims and resolves up to --limit POIs, then exits. Useful for cron runs and manual testing.",
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

		engine, cleanup, err := initEngine(ctx, st)
		if err != nil {
			return err
		}
		defer cleanup()

		w := worker.New(st, engine, cfg.Worker, claimFilter())
		w.DryRun = discoverDryRun
		processed, err := w.RunBatch(ctx, discoverLimit)
		if err != nil {
			return err
		}

		status := w.Status()
		fmt.Printf("Processed %d POIs: %d websites found, %d not found, %d event sources discovered (%d reused), %d errors\n",
			processed,
			status.WebsitesFound,
			status.WebsitesNotFound,
			status.DiscoveriesFound,
			status.DiscoveriesReuse,
			status.Errors)
		return nil
	},
}

func init() {
	discoverCmd.Flags().IntVar(&discoverLimit, "limit", 10, "maximum POIs to process")
	discoverCmd.Flags().BoolVar(&discoverDryRun, "dry-run", false, "resolve without persisting results")
	discoverCmd.Flags().StringSliceVar(&workerCategories, "category", nil, "only claim POIs in these categories")
	discoverCmd.Flags().StringSliceVar(&workerExclude, "exclude", []string{"school"}, "never claim POIs in these categories")
	discoverCmd.Flags().StringVar(&workerCity, "city", "", "only claim POIs in this city")

	rootCmd.AddCommand(discoverCmd)
}
