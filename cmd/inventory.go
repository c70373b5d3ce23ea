package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brightpath-ops/ebilling-cli/internal/model"
)

var (
	inventoryProvider string
	inventoryAll      bool
)

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Scrape the invoice inventory without entering anything",
	Long: `Enumerates every invoice and consumer line visible to a provider,
or to every provider reachable from the login with --all-providers.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if !inventoryAll && inventoryProvider == "" {
			return eris.New("inventory: --provider or --all-providers is required")
		}

		r := buildRunner()
		var res *model.RunResult

		if flagCookie != "" {
			if inventoryAll {
				return eris.New("inventory: --all-providers needs a page backend, not --cookie")
			}
			baseURL, err := cfg.Portal.BaseURL()
			if err != nil {
				return err
			}
			res, err = r.FastInventoryDetached(ctx, baseURL, flagCookie, inventoryProvider)
			if err != nil {
				return eris.Wrap(err, "inventory: fast path")
			}
		} else {
			creds, err := loginFor(inventoryProvider)
			if err != nil {
				return err
			}
			loginURL, err := cfg.Portal.LoginURL()
			if err != nil {
				return err
			}
			page, err := newPage(ctx)
			if err != nil {
				return err
			}
			if inventoryAll {
				res, err = r.ScrapeAllProviders(ctx, page, creds, loginURL)
			} else {
				res, err = r.ScrapeInventory(ctx, page, creds, loginURL, inventoryProvider)
			}
			if err != nil {
				return eris.Wrap(err, "inventory: scrape")
			}
		}

		zap.L().Info("inventory complete",
			zap.String("run_id", res.ID),
			zap.Int("items", len(res.Inventory)),
			zap.Int("warnings", len(res.Warnings)))

		saveRun(ctx, res)
		return printJSON(res)
	},
}

func init() {
	inventoryCmd.Flags().StringVar(&inventoryProvider, "provider", "", "provider SPN id or name fragment")
	inventoryCmd.Flags().BoolVar(&inventoryAll, "all-providers", false, "scan every provider reachable from the login")
	rootCmd.AddCommand(inventoryCmd)
}
