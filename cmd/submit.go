package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brightpath-ops/ebilling-cli/internal/loader"
	"github.com/brightpath-ops/ebilling-cli/internal/model"
)

var (
	submitRecords  string
	submitProvider string
	submitFast     bool
	submitDryRun   bool
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Enter service days for a batch of billing records",
	Long: `Reads billing records from a CSV or YAML batch file, matches them
against the provider's invoice inventory, and enters service days on the
matched invoice calendars.

Examples:
  # Parse the batch file only, no portal contact
  ebilling-cli submit --records august.csv --provider HP1829 --dry-run

  # Page-driven run
  ebilling-cli submit --records august.csv --provider HP1829

  # HTTP fast path over a detached session cookie
  ebilling-cli submit --records august.csv --provider HP1829 --fast --cookie "JSESSIONID=..."`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		records, err := loader.Load(submitRecords)
		if err != nil {
			return err
		}
		zap.L().Info("batch loaded",
			zap.String("file", submitRecords),
			zap.Int("records", len(records)))

		if submitDryRun {
			return printJSON(records)
		}

		creds, err := loginFor(submitProvider)
		if err != nil {
			return err
		}

		r := buildRunner()
		var res *model.RunResult

		switch {
		case submitFast && flagCookie != "":
			baseURL, err := cfg.Portal.BaseURL()
			if err != nil {
				return err
			}
			res, err = r.FastRunDetached(ctx, baseURL, flagCookie, submitProvider, records)
			if err != nil {
				return eris.Wrap(err, "submit: fast path")
			}

		default:
			loginURL, err := cfg.Portal.LoginURL()
			if err != nil {
				return err
			}
			page, err := newPage(ctx)
			if err != nil {
				return err
			}
			if submitFast {
				res, err = r.FastRun(ctx, page, creds, loginURL, submitProvider, records)
			} else {
				res, err = r.Run(ctx, page, creds, loginURL, submitProvider, records)
			}
			if err != nil {
				return eris.Wrap(err, "submit: run")
			}
		}

		sum := res.Summary()
		zap.L().Info("submit complete",
			zap.String("run_id", res.ID),
			zap.Int("success", sum.Success),
			zap.Int("partial", sum.Partial),
			zap.Int("failed", sum.Failed),
			zap.Int("skipped", sum.Skipped))

		saveRun(ctx, res)
		return printJSON(res)
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitRecords, "records", "", "billing records file, CSV or YAML (required)")
	submitCmd.Flags().StringVar(&submitProvider, "provider", "", "provider SPN id or name fragment (required)")
	submitCmd.Flags().BoolVar(&submitFast, "fast", false, "use the HTTP fast path after login")
	submitCmd.Flags().BoolVar(&submitDryRun, "dry-run", false, "parse the batch file and exit")
	_ = submitCmd.MarkFlagRequired("records")
	_ = submitCmd.MarkFlagRequired("provider")
	rootCmd.AddCommand(submitCmd)
}
