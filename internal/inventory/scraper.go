// Package inventory enumerates every invoice and consumer line visible to
// the selected provider, tolerating both of the portal's grid renderings:
// conventional paginated tables and virtualized grids that only render a
// window of rows.
package inventory

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brightpath-ops/ebilling-cli/internal/driver"
	"github.com/brightpath-ops/ebilling-cli/internal/model"
)

const (
	// maxPages bounds the next-page loop; the loop also stops early when
	// a new page's first invoice id has been seen before, which is the
	// portal's loop-back signal.
	maxPages = 50

	// maxScrollSteps bounds the virtualized-grid scroll loop.
	maxScrollSteps = 200
)

// invoiceIDPattern matches a portal invoice number cell.
var invoiceIDPattern = regexp.MustCompile(`^\d{7}$`)

var numericPattern = regexp.MustCompile(`^\d+$`)

// Scraper builds the invoice inventory for the currently selected
// provider. One Scraper serves one run; its waits are explicit polls.
type Scraper struct {
	// TableWait is how long to poll for invoice data after a search.
	TableWait time.Duration
	// PollInterval is the poll spacing for TableWait.
	PollInterval time.Duration
	// ScrollSettle is the pause after each virtual-grid scroll step,
	// giving the grid time to re-render its row window.
	ScrollSettle time.Duration
}

// NewScraper returns a Scraper with production timing.
func NewScraper() *Scraper {
	return &Scraper{
		TableWait:    10 * time.Second,
		PollInterval: 500 * time.Millisecond,
		ScrollSettle: time.Second,
	}
}

// NavigateToInvoices clicks through to the invoice search grid and runs
// the search. Fatal for the run on failure: without the grid there is no
// inventory and no submission context.
func (s *Scraper) NavigateToInvoices(ctx context.Context, page driver.Page) error {
	if err := page.ClickText(ctx, "Invoices"); err != nil {
		return eris.Wrap(err, "inventory: open invoices tab")
	}
	if err := page.WaitSettle(ctx); err != nil {
		return eris.Wrap(err, "inventory: settle invoices tab")
	}
	if err := page.ClickText(ctx, "Search"); err != nil {
		return eris.Wrap(err, "inventory: click search")
	}
	if err := page.WaitSettle(ctx); err != nil {
		return eris.Wrap(err, "inventory: settle search results")
	}
	// An empty result set is legitimate; the wait is best effort.
	if !s.waitForInvoiceData(ctx, page) {
		zap.L().Warn("timeout waiting for invoice table data")
	}
	return nil
}

// waitForInvoiceData polls until a 7-digit invoice id renders anywhere in
// the grid or the wait budget runs out.
func (s *Scraper) waitForInvoiceData(ctx context.Context, page driver.Page) bool {
	deadline := time.Now().Add(s.TableWait)
	for {
		cells, err := page.CellsMatching(ctx, invoiceIDPattern)
		if err == nil && len(cells) > 0 {
			return true
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.PollInterval):
		}
	}
}

// Scrape walks every page and scroll window of the invoice search results
// and returns the complete inventory, deduplicated by invoice id.
// Exhaustive and idempotent within a run.
func (s *Scraper) Scrape(ctx context.Context, page driver.Page) ([]model.InventoryItem, error) {
	var all []model.InventoryItem
	seen := make(map[string]bool)

	appendNew := func(items []model.InventoryItem) int {
		added := 0
		for _, it := range items {
			if seen[it.InvoiceID] {
				continue
			}
			seen[it.InvoiceID] = true
			all = append(all, it)
			added++
		}
		return added
	}

	for pageNum := 1; pageNum <= maxPages; pageNum++ {
		items, err := s.scrapeVisible(ctx, page)
		if err != nil {
			return nil, err
		}

		if len(items) == 0 && pageNum == 1 {
			// The grid may still be rendering; one settle-and-retry
			// before concluding the result set is empty.
			_ = page.WaitSettle(ctx)
			s.waitForInvoiceData(ctx, page)
			items, err = s.scrapeVisible(ctx, page)
			if err != nil {
				return nil, err
			}
		}
		if len(items) == 0 {
			break
		}

		// Loop-back detection: pagination wrapped around.
		if pageNum > 1 && seen[items[0].InvoiceID] {
			zap.L().Info("pagination looped back, stopping", zap.Int("page", pageNum))
			break
		}

		added := appendNew(items)
		zap.L().Info("invoice page scraped",
			zap.Int("page", pageNum),
			zap.Int("new", added),
			zap.Int("total", len(all)))

		// If the grid is virtualized the row window extends by
		// scrolling rather than paging.
		scrolled, err := s.scrollRemainder(ctx, page, appendNew)
		if err != nil {
			return nil, err
		}
		if scrolled {
			break
		}

		if !clickNextPage(ctx, page) {
			break
		}
		if err := page.WaitSettle(ctx); err != nil {
			return nil, eris.Wrap(err, "inventory: settle next page")
		}
	}

	zap.L().Info("inventory complete", zap.Int("invoices", len(all)))
	return all, nil
}

// scrollRemainder drains a virtualized grid by repeated scroll-and-rescan.
// Returns true if any scrolling happened, meaning the grid is virtualized
// and pagination does not apply.
func (s *Scraper) scrollRemainder(ctx context.Context, page driver.Page, appendNew func([]model.InventoryItem) int) (bool, error) {
	scrolled := false
	for step := 0; step < maxScrollSteps; step++ {
		state, err := page.ScrollGrid(ctx)
		if err != nil {
			return scrolled, eris.Wrap(err, "inventory: scroll grid")
		}
		if !state.Moved {
			return scrolled, nil
		}
		scrolled = true

		if s.ScrollSettle > 0 {
			select {
			case <-ctx.Done():
				return scrolled, ctx.Err()
			case <-time.After(s.ScrollSettle):
			}
		}

		items, err := s.scrapeVisible(ctx, page)
		if err != nil {
			return scrolled, err
		}
		added := appendNew(items)
		if added > 0 || step%10 == 0 {
			zap.L().Debug("scroll step",
				zap.Int("step", step+1),
				zap.Int("new", added))
		}

		if state.AtBottom {
			return scrolled, nil
		}
	}
	return scrolled, nil
}

// scrapeVisible parses the currently rendered rows into inventory items.
// The invoice id anchors each row; column positions are resolved relative
// to it because grid renderings differ in leading checkbox columns.
func (s *Scraper) scrapeVisible(ctx context.Context, page driver.Page) ([]model.InventoryItem, error) {
	rows, err := page.TableRows(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "inventory: read grid rows")
	}

	var items []model.InventoryItem
	for _, cells := range rows {
		idIdx := -1
		for i, c := range cells {
			if invoiceIDPattern.MatchString(strings.TrimSpace(c)) {
				idIdx = i
				break
			}
		}
		if idIdx < 0 || idIdx+2 >= len(cells) {
			continue
		}

		item := model.InventoryItem{
			InvoiceID: strings.TrimSpace(cells[idIdx]),
			SvcCode:   strings.TrimSpace(cellAt(cells, idIdx+1)),
			SvcMonth:  strings.TrimSpace(cellAt(cells, idIdx+2)),
			UCI:       strings.TrimSpace(cellAt(cells, idIdx+3)),
		}
		item.ConsumerName = strings.TrimSpace(cellAt(cells, idIdx+4))
		item.HasUCI = item.UCI != ""

		if !numericPattern.MatchString(item.SvcCode) {
			continue
		}
		if !strings.Contains(item.SvcMonth, "/") {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func cellAt(cells []string, i int) string {
	if i < len(cells) {
		return cells[i]
	}
	return ""
}

// clickNextPage tries the portal's pagination controls. Returns false when
// no enabled next-page control exists.
func clickNextPage(ctx context.Context, page driver.Page) bool {
	for _, label := range []string{"Next", ">", ">>"} {
		err := page.ClickText(ctx, label)
		if err == nil {
			return true
		}
		if !driver.IsKind(err, driver.KindNotFound) && !driver.IsKind(err, driver.KindDisabled) {
			return false
		}
	}
	return false
}
