package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/brightpath-ops/ebilling-cli/internal/session"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the provider identities reachable from the login",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if flagCookie != "" {
			baseURL, err := cfg.Portal.BaseURL()
			if err != nil {
				return err
			}
			client := buildRunner().NewFastClient(baseURL, flagCookie)
			providers, err := client.ListProviders(ctx)
			if err != nil {
				return eris.Wrap(err, "providers: fast path")
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			printProviderHeader(w)
			for _, p := range providers {
				_, _ = fmt.Fprintf(w, "%s\t%s\n", p.SPN, p.Name)
			}
			return w.Flush()
		}

		creds, err := loginFor("")
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

		sess, err := session.Login(ctx, page, creds, loginURL)
		if err != nil {
			return err
		}
		defer sess.Close(ctx)

		providers, err := sess.ListProviders(ctx)
		if err != nil {
			return eris.Wrap(err, "providers: list")
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		printProviderHeader(w)
		for _, p := range providers {
			_, _ = fmt.Fprintf(w, "%s\t%s\n", p.SPN, p.Name)
		}
		return w.Flush()
	},
}

func printProviderHeader(w io.Writer) {
	_, _ = fmt.Fprintln(w, "SPN\tNAME")
	_, _ = fmt.Fprintln(w, "---\t----")
}

func init() {
	rootCmd.AddCommand(providersCmd)
}
