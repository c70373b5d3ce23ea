package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brightpath-ops/ebilling-cli/internal/config"
	"github.com/brightpath-ops/ebilling-cli/internal/driver"
	"github.com/brightpath-ops/ebilling-cli/internal/model"
	"github.com/brightpath-ops/ebilling-cli/internal/resilience"
)

// newPage opens the browser backend for page-driven runs. The stock build
// carries no embedded browser; deployments link one in by assigning this
// variable from a backend file in this package. Fast-path commands accept
// --cookie and never need it.
var newPage = func(ctx context.Context) (driver.Page, error) {
	return nil, eris.New("no page backend in this build; pass --cookie to use the HTTP fast path")
}

// retryConfig converts the config retry block into the resilience policy.
func retryConfig() resilience.RetryConfig {
	rc := resilience.DefaultRetryConfig()
	if cfg.Retry.MaxAttempts > 0 {
		rc.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.InitialBackoffMS > 0 {
		rc.InitialBackoff = time.Duration(cfg.Retry.InitialBackoffMS) * time.Millisecond
	}
	if cfg.Retry.MaxBackoffSecs > 0 {
		rc.MaxBackoff = time.Duration(cfg.Retry.MaxBackoffSecs) * time.Second
	}
	if cfg.Retry.BackoffMultiplier > 0 {
		rc.Multiplier = cfg.Retry.BackoffMultiplier
	}
	rc.OnRetry = resilience.RetryLogger("portal request")
	return rc
}

// httpClientFor builds the fast-path transport honoring the portal's TLS
// quirks and the configured request timeout.
func httpClientFor(portal config.PortalConfig, timeout time.Duration) *http.Client {
	hc := &http.Client{Timeout: timeout}
	if portal.InsecureTLS {
		hc.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return hc
}

// saveRun appends the result to the run ledger. Persistence failures are
// reported but never fail a run that already happened on the portal.
func saveRun(ctx context.Context, res *model.RunResult) {
	st, err := initStore()
	if err != nil {
		zap.L().Error("open run ledger", zap.Error(err))
		return
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		zap.L().Error("migrate run ledger", zap.Error(err))
		return
	}
	if err := st.Append(ctx, *res); err != nil {
		zap.L().Error("record run", zap.Error(err))
		return
	}
	zap.L().Info("run recorded", zap.String("run_id", res.ID))
}

// printJSON writes the result to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
