// Package runner orchestrates whole portal runs: login, provider
// selection, inventory, matching, and submission. Every run returns a
// caller-owned RunResult; the runner keeps no state between runs.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brightpath-ops/ebilling-cli/internal/calendar"
	"github.com/brightpath-ops/ebilling-cli/internal/credentials"
	"github.com/brightpath-ops/ebilling-cli/internal/driver"
	"github.com/brightpath-ops/ebilling-cli/internal/fastpath"
	"github.com/brightpath-ops/ebilling-cli/internal/fmupload"
	"github.com/brightpath-ops/ebilling-cli/internal/inventory"
	"github.com/brightpath-ops/ebilling-cli/internal/match"
	"github.com/brightpath-ops/ebilling-cli/internal/model"
	"github.com/brightpath-ops/ebilling-cli/internal/session"
)

// Runner drives complete portal runs over a page backend.
type Runner struct {
	Scraper  *inventory.Scraper
	Expander *inventory.Expander
	Engine   *calendar.Engine

	// Region is recorded on run results.
	Region string

	// NewFastClient builds the HTTP client for fast-path runs from the
	// session's base URL and detached cookie.
	NewFastClient func(baseURL, cookie string) fastpath.Client
}

// New returns a Runner with production components.
func New(region string) *Runner {
	return &Runner{
		Scraper:  inventory.NewScraper(),
		Expander: inventory.NewExpander(),
		Engine:   calendar.New(),
		Region:   region,
		NewFastClient: func(baseURL, cookie string) fastpath.Client {
			return fastpath.NewClient(baseURL, cookie)
		},
	}
}

func (r *Runner) newResult(mode model.RunMode, provider string) *model.RunResult {
	return &model.RunResult{
		ID:        uuid.New().String(),
		Mode:      mode,
		Region:    r.Region,
		Provider:  provider,
		StartedAt: time.Now().UTC(),
	}
}

func finish(res *model.RunResult) *model.RunResult {
	res.FinishedAt = time.Now().UTC()
	return res
}

// login opens a session and records run-level warnings.
func (r *Runner) login(ctx context.Context, page driver.Page, creds credentials.Credentials, loginURL string, res *model.RunResult) (*session.Session, error) {
	sess, err := session.Login(ctx, page, creds, loginURL)
	if err != nil {
		return nil, err
	}
	if d := sess.PasswordExpiryDays; d != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("password expires in %d days", *d))
	}
	return sess, nil
}

// Run executes the full submit workflow. One result per input record.
func (r *Runner) Run(ctx context.Context, page driver.Page, creds credentials.Credentials, loginURL, providerSPN string, records []model.BillingRecord) (*model.RunResult, error) {
	res := r.newResult(model.ModeSubmit, providerSPN)

	sess, err := r.login(ctx, page, creds, loginURL, res)
	if err != nil {
		return nil, err
	}
	defer sess.Close(ctx)

	if err := sess.SelectProvider(ctx, providerSPN); err != nil {
		return nil, err
	}

	matcher, err := r.buildMatcher(ctx, page, records)
	if err != nil {
		return nil, err
	}

	outcomes := matcher.MatchAll(records)
	res.Results = r.Engine.Submit(ctx, page, outcomes)
	return finish(res), nil
}

// buildMatcher scrapes the inventory, expands any folders the records
// need, and returns the ready matcher.
func (r *Runner) buildMatcher(ctx context.Context, page driver.Page, records []model.BillingRecord) (*match.Matcher, error) {
	if err := r.Scraper.NavigateToInvoices(ctx, page); err != nil {
		return nil, err
	}
	items, err := r.Scraper.Scrape(ctx, page)
	if err != nil {
		return nil, err
	}

	matcher := match.New(items)
	for _, folder := range matcher.Folders(records) {
		lines, err := r.Expander.Expand(ctx, page, folder)
		if err != nil {
			zap.L().Warn("folder expansion failed",
				zap.String("invoice", folder.InvoiceID),
				zap.Error(err))
		} else {
			matcher.AddLines(lines)
		}
		// Back to the invoice grid either way.
		if err := page.ClickText(ctx, "Close"); err == nil {
			_ = page.WaitSettle(ctx)
		}
	}
	return matcher, nil
}

// ScrapeInventory logs in, selects the provider, and returns the full
// inventory without submitting anything.
func (r *Runner) ScrapeInventory(ctx context.Context, page driver.Page, creds credentials.Credentials, loginURL, providerSPN string) (*model.RunResult, error) {
	res := r.newResult(model.ModeInventory, providerSPN)

	sess, err := r.login(ctx, page, creds, loginURL, res)
	if err != nil {
		return nil, err
	}
	defer sess.Close(ctx)

	if err := sess.SelectProvider(ctx, providerSPN); err != nil {
		return nil, err
	}
	if err := r.Scraper.NavigateToInvoices(ctx, page); err != nil {
		return nil, err
	}
	items, err := r.Scraper.Scrape(ctx, page)
	if err != nil {
		return nil, err
	}

	res.Inventory = items
	res.Provider = sess.Provider
	return finish(res), nil
}

// ScrapeAllProviders scans every provider visible to the login under one
// session, returning to the provider selection anchor between providers
// with one bounded retry.
func (r *Runner) ScrapeAllProviders(ctx context.Context, page driver.Page, creds credentials.Credentials, loginURL string) (*model.RunResult, error) {
	res := r.newResult(model.ModeInventory, "")

	sess, err := r.login(ctx, page, creds, loginURL, res)
	if err != nil {
		return nil, err
	}
	defer sess.Close(ctx)

	providers, err := sess.ListProviders(ctx)
	if err != nil {
		return nil, err
	}
	zap.L().Info("scanning providers", zap.Int("count", len(providers)))

	for i, p := range providers {
		if err := sess.SelectProvider(ctx, p.SPN); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("provider %s: %v", p.SPN, err))
			continue
		}
		if err := r.Scraper.NavigateToInvoices(ctx, page); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("provider %s: %v", p.SPN, err))
		} else {
			items, err := r.Scraper.Scrape(ctx, page)
			if err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("provider %s: %v", p.SPN, err))
			}
			for j := range items {
				items[j].ProviderSPN = p.SPN
				items[j].ProviderName = p.Name
			}
			res.Inventory = append(res.Inventory, items...)
		}
		r.Expander.Reset()

		if i == len(providers)-1 {
			break
		}
		if err := sess.ReturnToSelection(ctx); err != nil {
			// One retry before giving up on the remaining providers.
			if err := sess.ReturnToSelection(ctx); err != nil {
				return nil, eris.Wrap(err, "runner: lost provider selection anchor")
			}
		}
	}
	return finish(res), nil
}

// FastRun logs in through the page backend, detaches the session token,
// and replays the submit workflow over the HTTP fast path.
func (r *Runner) FastRun(ctx context.Context, page driver.Page, creds credentials.Credentials, loginURL, providerSPN string, records []model.BillingRecord) (*model.RunResult, error) {
	res := r.newResult(model.ModeSubmit, providerSPN)
	res.FastPath = true

	sess, err := r.login(ctx, page, creds, loginURL, res)
	if err != nil {
		return nil, err
	}
	baseURL := sess.BaseURL()

	// Detach keeps the server-side session alive for the HTTP phase.
	cookie, err := sess.Detach(ctx)
	if err != nil {
		sess.Close(ctx)
		return nil, err
	}

	client := r.NewFastClient(baseURL, cookie)
	outcomes, err := r.fastMatch(ctx, client, providerSPN, records)
	if err != nil {
		return nil, err
	}
	res.Results = fastpath.NewSubmitter(client).Submit(ctx, outcomes)
	return finish(res), nil
}

// FastRunDetached runs the submit workflow over an already-detached
// session cookie, with no page backend involved.
func (r *Runner) FastRunDetached(ctx context.Context, baseURL, cookie, providerSPN string, records []model.BillingRecord) (*model.RunResult, error) {
	res := r.newResult(model.ModeSubmit, providerSPN)
	res.FastPath = true

	client := r.NewFastClient(baseURL, cookie)
	outcomes, err := r.fastMatch(ctx, client, providerSPN, records)
	if err != nil {
		return nil, err
	}
	res.Results = fastpath.NewSubmitter(client).Submit(ctx, outcomes)
	return finish(res), nil
}

// FastUpload runs the capture-zero-enter workflow over the fast path.
func (r *Runner) FastUpload(ctx context.Context, page driver.Page, creds credentials.Credentials, loginURL, providerSPN string, records []model.BillingRecord, zeroOnly bool) (*model.RunResult, error) {
	res := r.newResult(model.ModeFMUpload, providerSPN)
	res.FastPath = true

	sess, err := r.login(ctx, page, creds, loginURL, res)
	if err != nil {
		return nil, err
	}
	baseURL := sess.BaseURL()

	cookie, err := sess.Detach(ctx)
	if err != nil {
		sess.Close(ctx)
		return nil, err
	}

	client := r.NewFastClient(baseURL, cookie)
	outcomes, err := r.fastMatch(ctx, client, providerSPN, records)
	if err != nil {
		return nil, err
	}
	res.FMResults = fmupload.New(client).Run(ctx, outcomes, zeroOnly)
	return finish(res), nil
}

// FastUploadDetached runs the capture-zero-enter workflow over an
// already-detached session cookie.
func (r *Runner) FastUploadDetached(ctx context.Context, baseURL, cookie, providerSPN string, records []model.BillingRecord, zeroOnly bool) (*model.RunResult, error) {
	res := r.newResult(model.ModeFMUpload, providerSPN)
	res.FastPath = true

	client := r.NewFastClient(baseURL, cookie)
	outcomes, err := r.fastMatch(ctx, client, providerSPN, records)
	if err != nil {
		return nil, err
	}
	res.FMResults = fmupload.New(client).Run(ctx, outcomes, zeroOnly)
	return finish(res), nil
}

// FastInventoryDetached scrapes the inventory over an already-detached
// session cookie.
func (r *Runner) FastInventoryDetached(ctx context.Context, baseURL, cookie, providerSPN string) (*model.RunResult, error) {
	res := r.newResult(model.ModeInventory, providerSPN)
	res.FastPath = true

	client := r.NewFastClient(baseURL, cookie)
	if err := client.SelectProvider(ctx, providerSPN); err != nil {
		return nil, err
	}
	items, err := fastpath.ScrapeInventory(ctx, client)
	if err != nil {
		return nil, err
	}
	res.Inventory = items
	return finish(res), nil
}

// fastMatch selects the provider over HTTP, scrapes the inventory, and
// matches the input records against it.
func (r *Runner) fastMatch(ctx context.Context, client fastpath.Client, providerSPN string, records []model.BillingRecord) ([]model.MatchOutcome, error) {
	if err := client.SelectProvider(ctx, providerSPN); err != nil {
		return nil, err
	}
	items, err := fastpath.ScrapeInventory(ctx, client)
	if err != nil {
		return nil, err
	}
	return match.New(items).MatchAll(records), nil
}
