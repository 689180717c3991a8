package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/superschedules/navigator/internal/model"
	"github.com/superschedules/navigator/internal/store"
)

var blocklistCmd = &cobra.Command{
	Use:   "blocklist",
	Short: "Inspect and manage the learned domain blocklist",
}

var blocklistListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show blocked domains",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := blocklistStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		domains, err := st.ListBlockedDomains(ctx)
		if err != nil {
			return eris.Wrap(err, "list blocked domains")
		}

		if len(domains) == 0 {
			fmt.Println("No learned blocked domains")
			return nil
		}
		for _, d := range domains {
			fmt.Printf("%-40s %s (%s)\n", d.Domain, d.Reason, d.CreatedAt.Format("2006-01-02"))
		}
		return nil
	},
}

var blocklistAddReason string

var blocklistAddCmd = &cobra.Command{
	Use:   "add <domain>",
	Short: "Block a domain by hand",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := blocklistStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		created, err := st.AddBlockedDomain(ctx, args[0], blocklistAddReason)
		if err != nil {
			return eris.Wrap(err, "add blocked domain")
		}
		if !created {
			fmt.Printf("%s was already blocked\n", args[0])
			return nil
		}
		fmt.Printf("Blocked %s\n", args[0])
		return nil
	},
}

var blocklistInitFile string

// seedEntry is one row of the YAML seed file.
type seedEntry struct {
	Domain string `yaml:"domain"`
	Reason string `yaml:"reason"`
}

var blocklistInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Seed the blocklist",
	Long:  "Inserts the built-in set of aggregator, directory, and social domains. With --file, seeds from a YAML list of {domain, reason} entries instead.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		entries := make([]seedEntry, 0)
		if blocklistInitFile != "" {
			data, err := os.ReadFile(blocklistInitFile)
			if err != nil {
				return eris.Wrapf(err, "read seed file %s", blocklistInitFile)
			}
			if err := yaml.Unmarshal(data, &entries); err != nil {
				return eris.Wrap(err, "parse seed file")
			}
		} else {
			for _, d := range model.NeverOfficialDomains() {
				entries = append(entries, seedEntry{Domain: d, Reason: "seeded"})
			}
		}

		st, err := blocklistStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		added := 0
		for _, e := range entries {
			if e.Domain == "" {
				continue
			}
			reason := e.Reason
			if reason == "" {
				reason = "seeded"
			}
			created, err := st.AddBlockedDomain(ctx, e.Domain, reason)
			if err != nil {
				return eris.Wrapf(err, "seed domain %s", e.Domain)
			}
			if created {
				added++
			}
		}

		fmt.Printf("Seeded %d new domains (%d candidates)\n", added, len(entries))
		return nil
	},
}

func blocklistStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func init() {
	blocklistAddCmd.Flags().StringVar(&blocklistAddReason, "reason", "manual", "why the domain is blocked")
	blocklistInitCmd.Flags().StringVar(&blocklistInitFile, "file", "", "YAML seed file (defaults to the built-in domain set)")

	blocklistCmd.AddCommand(blocklistListCmd)
	blocklistCmd.AddCommand(blocklistAddCmd)
	blocklistCmd.AddCommand(blocklistInitCmd)
	rootCmd.AddCommand(blocklistCmd)
}
