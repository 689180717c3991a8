package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/superschedules/navigator/internal/model"
)

var importFile string

// importPOI is one entry of the import file, matching what an OSM extract
// script emits.
type importPOI struct {
	OSMType       string `yaml:"osm_type"`
	OSMID         int64  `yaml:"osm_id"`
	Name          string `yaml:"name"`
	Category      string `yaml:"category"`
	City          string `yaml:"city"`
	State         string `yaml:"state"`
	StreetAddress string `yaml:"street_address"`
	Website       string `yaml:"website"`
	Operator      string `yaml:"operator"`
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load POIs from a YAML extract",
	Long:  "Reads a YAML list of POIs (typically produced from an OpenStreetMap extract) and inserts them with both tracks at not_started. Duplicate osm_type/osm_id pairs are skipped.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		data, err := os.ReadFile(importFile)
		if err != nil {
			return eris.Wrapf(err, "read import file %s", importFile)
		}

		var entries []importPOI
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return eris.Wrap(err, "parse import file")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		created, skipped := 0, 0
		for _, e := range entries {
			if e.Name == "" || e.Category == "" {
				skipped++
				continue
			}
			poi := &model.POI{
				OSMType:       e.OSMType,
				OSMID:         e.OSMID,
				Name:          strings.TrimSpace(e.Name),
				Category:      model.Category(e.Category),
				City:          strings.TrimSpace(e.City),
				State:         e.State,
				StreetAddress: e.StreetAddress,
				OSMWebsite:    e.Website,
				OSMOperator:   e.Operator,
			}
			if err := st.CreatePOI(ctx, poi); err != nil {
				// Re-imports of the same extract are expected; duplicates
				// are not an error worth stopping for.
				zap.L().Debug("skipping poi", zap.String("name", e.Name), zap.Error(err))
				skipped++
				continue
			}
			created++
		}

		fmt.Printf("Imported %d POIs, skipped %d\n", created, skipped)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "YAML file of POIs to import")
	_ = importCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(importCmd)
}
