package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brightpath-ops/ebilling-cli/internal/loader"
	"github.com/brightpath-ops/ebilling-cli/internal/model"
)

var (
	fmRecords  string
	fmProvider string
	fmZeroOnly bool
)

var fmuploadCmd = &cobra.Command{
	Use:   "fmupload",
	Short: "Correct calendars: capture current values, zero them, enter new ones",
	Long: `The correction workflow for calendars that already hold wrong values.
Per record it captures the existing day values, zeroes them out, and then
enters the requested days, verifying the final state with a fresh read.
With --zero-only it stops after zeroing.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		records, err := loader.Load(fmRecords)
		if err != nil {
			return err
		}
		zap.L().Info("correction batch loaded",
			zap.String("file", fmRecords),
			zap.Int("records", len(records)),
			zap.Bool("zero_only", fmZeroOnly))

		r := buildRunner()
		var res *model.RunResult

		if flagCookie != "" {
			baseURL, err := cfg.Portal.BaseURL()
			if err != nil {
				return err
			}
			res, err = r.FastUploadDetached(ctx, baseURL, flagCookie, fmProvider, records, fmZeroOnly)
			if err != nil {
				return eris.Wrap(err, "fmupload: fast path")
			}
		} else {
			creds, err := loginFor(fmProvider)
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
			res, err = r.FastUpload(ctx, page, creds, loginURL, fmProvider, records, fmZeroOnly)
			if err != nil {
				return eris.Wrap(err, "fmupload: run")
			}
		}

		sum := res.Summary()
		zap.L().Info("fmupload complete",
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
	fmuploadCmd.Flags().StringVar(&fmRecords, "records", "", "billing records file, CSV or YAML (required)")
	fmuploadCmd.Flags().StringVar(&fmProvider, "provider", "", "provider SPN id or name fragment (required)")
	fmuploadCmd.Flags().BoolVar(&fmZeroOnly, "zero-only", false, "stop after zeroing the existing values")
	_ = fmuploadCmd.MarkFlagRequired("records")
	_ = fmuploadCmd.MarkFlagRequired("provider")
	rootCmd.AddCommand(fmuploadCmd)
}
