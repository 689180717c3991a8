package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/superschedules/navigator/internal/model"
	"github.com/superschedules/navigator/internal/store"
)

var (
	statsCategory string
	statsCity     string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show resolution progress and worker health",
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

		var (
			counts  *store.Counts
			ws      *model.WorkerStatus
			blocked []model.BlockedDomain
		)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			counts, err = st.StatusCounts(gctx, statsCategory, statsCity)
			return err
		})
		g.Go(func() error {
			var err error
			ws, err = st.GetWorkerStatus(gctx, model.WorkerURLDiscovery)
			return err
		})
		g.Go(func() error {
			var err error
			blocked, err = st.ListBlockedDomains(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return eris.Wrap(err, "stats: query")
		}

		fmt.Printf("POIs: %d total, %d in flight\n", counts.Total, counts.Processing())
		if counts.Processing() > 0 && (ws == nil || !ws.Alive(time.Now().UTC())) {
			fmt.Println("warning: processing rows with no live worker; run reset-processing")
		}
		fmt.Println()

		fmt.Println("Website track:")
		for _, s := range []model.WebsiteStatus{
			model.WebsiteNotStarted, model.WebsiteProcessing, model.WebsiteFound,
			model.WebsiteNotFound, model.WebsiteFailed,
		} {
			fmt.Printf("  %-12s %d\n", s, counts.Website[s])
		}

		fmt.Println("\nEvents track:")
		for _, s := range []model.SourceStatus{
			model.SourceNotStarted, model.SourceProcessing, model.SourceDiscovered,
			model.SourceNoEvents, model.SourceSkipped, model.SourceFailed,
		} {
			fmt.Printf("  %-12s %d\n", s, counts.Source[s])
		}

		fmt.Printf("\nLearned blocklist: %d domains\n", len(blocked))

		fmt.Println("\nWorker:")
		if ws == nil {
			fmt.Println("  never run")
			return nil
		}
		state := "stopped"
		if ws.Alive(time.Now().UTC()) {
			state = "running"
		}
		fmt.Printf("  %s on %s (pid %d)\n", state, ws.Hostname, ws.PID)
		if ws.LastHeartbeat != nil {
			fmt.Printf("  last heartbeat %s\n", ws.LastHeartbeat.Format(time.RFC3339))
		}
		if ws.CurrentPOIName != "" {
			fmt.Printf("  working on %q (%s)\n", ws.CurrentPOIName, ws.CurrentPhase)
		}
		fmt.Printf("  processed %d, websites %d/%d found, discoveries %d (%d reused), errors %d, pacing %.1fs\n",
			ws.POIsProcessed,
			ws.WebsitesFound, ws.WebsitesFound+ws.WebsitesNotFound,
			ws.DiscoveriesFound, ws.DiscoveriesReuse,
			ws.Errors, ws.SleepSeconds)
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsCategory, "category", "", "filter counts to one category")
	statsCmd.Flags().StringVar(&statsCity, "city", "", "filter counts to one city")

	rootCmd.AddCommand(statsCmd)
}
