package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brightpath-ops/ebilling-cli/internal/config"
	"github.com/brightpath-ops/ebilling-cli/internal/credentials"
	"github.com/brightpath-ops/ebilling-cli/internal/fastpath"
	"github.com/brightpath-ops/ebilling-cli/internal/runner"
	"github.com/brightpath-ops/ebilling-cli/internal/store"
)

var cfg *config.Config

var (
	flagRegion string
	flagCookie string
)

var rootCmd = &cobra.Command{
	Use:   "ebilling-cli",
	Short: "Automated service-day entry for the regional eBilling portals",
	Long:  "Logs in to a regional eBilling portal, scrapes the invoice inventory, matches billing records to invoices, and enters service days on invoice calendars.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		if flagRegion != "" {
			cfg.Portal.Region = flagRegion
		}

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRegion, "region", "", "regional portal to target (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagCookie, "cookie", "", "reuse a detached session cookie instead of logging in (fast-path commands only)")
}

// initStore opens the run-history ledger.
func initStore() (*store.Store, error) {
	return store.Open(cfg.Store.Path)
}

// buildRunner assembles a runner from the loaded config.
func buildRunner() *runner.Runner {
	r := runner.New(cfg.Portal.Region)
	r.Scraper.TableWait = time.Duration(cfg.Pacing.TableWaitSecs) * time.Second
	r.Scraper.PollInterval = time.Duration(cfg.Pacing.PollIntervalMS) * time.Millisecond
	r.Scraper.ScrollSettle = time.Duration(cfg.Pacing.ScrollSettleMS) * time.Millisecond
	r.Expander.ScrollSettle = r.Scraper.ScrollSettle

	portal := cfg.Portal
	timeout := time.Duration(cfg.Pacing.RequestTimeoutSecs) * time.Second
	r.NewFastClient = func(baseURL, cookie string) fastpath.Client {
		opts := []fastpath.Option{
			fastpath.WithRateLimit(portal.RateLimitRPS, portal.RateLimitBurst),
			fastpath.WithRetryConfig(retryConfig()),
		}
		if timeout > 0 {
			opts = append(opts, fastpath.WithHTTPClient(httpClientFor(portal, timeout)))
		} else if portal.InsecureTLS {
			opts = append(opts, fastpath.WithInsecureTLS())
		}
		return fastpath.NewClient(baseURL, cookie, opts...)
	}
	return r
}

// loginFor resolves the credentials for a provider context from config.
func loginFor(providerSPN string) (credentials.Credentials, error) {
	src := credentials.Static{
		Default: credentials.Credentials{
			Username: cfg.Credentials.Username,
			Password: cfg.Credentials.Password,
		},
		ByProvider: make(map[string]credentials.Credentials, len(cfg.Credentials.ByProvider)),
	}
	for spn, up := range cfg.Credentials.ByProvider {
		src.ByProvider[spn] = credentials.Credentials{Username: up.Username, Password: up.Password}
	}
	return src.Credentials(providerSPN)
}
