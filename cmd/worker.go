package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/superschedules/navigator/internal/store"
	"github.com/superschedules/navigator/internal/worker"
)

var (
	workerCategories []string
	workerExclude    []string
	workerCity       string
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the resolution worker until interrupted",
	Long:  "Continuously claims POIs, resolves their website or events URL, and persists the results. Stops cleanly on SIGINT/SIGTERM.",
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

		zap.L().Info("worker starting",
			zap.Strings("categories", workerCategories),
			zap.Strings("exclude", workerExclude),
			zap.String("city", workerCity))

		if err := w.Run(ctx); err != nil {
			return eris.Wrap(err, "worker run")
		}

		status := w.Status()
		zap.L().Info("worker stopped",
			zap.Int("pois_processed", status.POIsProcessed),
			zap.Int("websites_found", status.WebsitesFound),
			zap.Int("discoveries", status.DiscoveriesFound),
			zap.Int("errors", status.Errors))
		return nil
	},
}

func claimFilter() store.ClaimFilter {
	return store.ClaimFilter{
		Categories:        workerCategories,
		ExcludeCategories: workerExclude,
		City:              workerCity,
	}
}

func init() {
	workerCmd.Flags().StringSliceVar(&workerCategories, "category", nil, "only claim POIs in these categories")
	workerCmd.Flags().StringSliceVar(&workerExclude, "exclude", []string{"school"}, "never claim POIs in these categories")
	workerCmd.Flags().StringVar(&workerCity, "city", "", "only claim POIs in this city")

	rootCmd.AddCommand(workerCmd)
}
