package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightpath-ops/ebilling-cli/internal/driver"
	"github.com/brightpath-ops/ebilling-cli/internal/driver/drivertest"
	"github.com/brightpath-ops/ebilling-cli/internal/model"
)

func fastScraper() *Scraper {
	return &Scraper{TableWait: 0, PollInterval: 0, ScrollSettle: 0}
}

func invoiceRow(id, svc, month, uci, name string) []string {
	return []string{"", id, svc, month, uci, name}
}

func TestScrapeSinglePage(t *testing.T) {
	t.Parallel()

	page := &drivertest.FakePage{Rows: [][]string{
		{"Invoice", "SVC", "Month"}, // header, no 7-digit id
		invoiceRow("1234567", "862", "08/2025", "7701234", "DOE, JANE"),
		invoiceRow("1234568", "505", "08/2025", "", "MULTIPLE CONSUMERS"),
	}}

	items, err := fastScraper().Scrape(context.Background(), page)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "1234567", items[0].InvoiceID)
	assert.Equal(t, "862", items[0].SvcCode)
	assert.True(t, items[0].HasUCI)
	assert.False(t, items[0].IsFolder())

	assert.False(t, items[1].HasUCI)
	assert.True(t, items[1].IsFolder())
}

func TestScrapePaginationStopsOnLoopBack(t *testing.T) {
	t.Parallel()

	pages := [][][]string{
		{invoiceRow("1000001", "862", "08/2025", "7700001", "A, A")},
		{invoiceRow("1000002", "862", "08/2025", "7700002", "B, B")},
		// Portal wrapped back to the first page.
		{invoiceRow("1000001", "862", "08/2025", "7700001", "A, A")},
	}

	page := &drivertest.FakePage{Rows: pages[0]}
	current := 0
	page.OnClickText = func(f *drivertest.FakePage, text string) error {
		if text == "Next" {
			current++
			f.Rows = pages[current%len(pages)]
			return nil
		}
		return driver.Errorf(driver.KindNotFound, "click", "no control %q", text)
	}

	items, err := fastScraper().Scrape(context.Background(), page)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestScrapeVirtualizedGrid(t *testing.T) {
	t.Parallel()

	page := &drivertest.FakePage{
		Rows: [][]string{invoiceRow("2000001", "505", "07/2025", "7700001", "A, A")},
		Scrolls: []drivertest.ScrollStep{
			{
				Rows: [][]string{
					invoiceRow("2000001", "505", "07/2025", "7700001", "A, A"),
					invoiceRow("2000002", "505", "07/2025", "7700002", "B, B"),
				},
				State: driver.ScrollState{Moved: true},
			},
			{
				Rows: [][]string{
					invoiceRow("2000003", "505", "07/2025", "7700003", "C, C"),
				},
				State: driver.ScrollState{Moved: true, AtBottom: true},
			},
		},
	}

	items, err := fastScraper().Scrape(context.Background(), page)
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.Equal(t, "2000003", items[2].InvoiceID)
}

func TestScrapeEmptyGrid(t *testing.T) {
	t.Parallel()

	page := &drivertest.FakePage{}
	items, err := fastScraper().Scrape(context.Background(), page)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestScrapeSkipsMalformedRows(t *testing.T) {
	t.Parallel()

	page := &drivertest.FakePage{Rows: [][]string{
		invoiceRow("1234567", "ABC", "08/2025", "7701234", "BAD SVC"),
		invoiceRow("1234568", "862", "082025", "7701234", "BAD MONTH"),
		invoiceRow("1234569", "862", "08/2025", "7701234", "GOOD, ROW"),
	}}

	items, err := fastScraper().Scrape(context.Background(), page)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "1234569", items[0].InvoiceID)
}

func TestNavigateToInvoices(t *testing.T) {
	t.Parallel()

	page := &drivertest.FakePage{Rows: [][]string{
		invoiceRow("1234567", "862", "08/2025", "7701234", "DOE, JANE"),
	}}

	s := fastScraper()
	require.NoError(t, s.NavigateToInvoices(context.Background(), page))
	assert.Equal(t, []string{"Invoices", "Search"}, page.Clicks)
}

func TestExpandFolder(t *testing.T) {
	t.Parallel()

	folder := model.InventoryItem{
		InvoiceID: "1234568",
		SvcCode:   "505",
		SvcMonth:  "08/2025",
	}

	page := &drivertest.FakePage{Rows: [][]string{
		{"", "1234568", "505", "08/2025", "", "MULTIPLE CONSUMERS"},
	}}
	page.OnClickRowLink = func(f *drivertest.FakePage, cells []string, action string) error {
		f.Rows = [][]string{
			{"Line", "UCI", "Consumer"},
			{"1", "7700001", "ALPHA, AMY", "FC", "AUTH1"},
			{"2", "7700002", "BRAVO, BEN", "FC", "AUTH2"},
			{"TOTAL", "", "1,234.00"}, // summary row, no line number
		}
		return nil
	}

	e := NewExpander()
	e.ScrollSettle = 0
	lines, err := e.Expand(context.Background(), page, folder)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.Equal(t, "1234568:1", lines[0].ConsumerLineID)
	assert.Equal(t, "7700001", lines[0].UCI)
	assert.Equal(t, "ALPHA, AMY", lines[0].ConsumerName)
	assert.Equal(t, "505", lines[0].SvcCode)
	assert.Equal(t, "FC", lines[0].SvcSubcode)
	assert.True(t, lines[0].HasUCI)

	require.Equal(t, []string{"EDIT"}, page.RowClicks)
}

func TestExpandUsesCache(t *testing.T) {
	t.Parallel()

	folder := model.InventoryItem{InvoiceID: "1234568", SvcCode: "505", SvcMonth: "08/2025"}

	page := &drivertest.FakePage{Rows: [][]string{
		{"", "1234568", "505", "08/2025", "", "MULTIPLE CONSUMERS"},
	}}
	page.OnClickRowLink = func(f *drivertest.FakePage, cells []string, action string) error {
		f.Rows = [][]string{{"1", "7700001", "ALPHA, AMY"}}
		return nil
	}

	e := NewExpander()
	e.ScrollSettle = 0
	first, err := e.Expand(context.Background(), page, folder)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Second expansion must not touch the page again.
	page.Rows = nil
	second, err := e.Expand(context.Background(), page, folder)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, page.RowClicks, 1)

	e.Reset()
	_, ok := e.Cached(folder.InvoiceID)
	assert.False(t, ok)
}

func TestExpandOpenFailure(t *testing.T) {
	t.Parallel()

	folder := model.InventoryItem{InvoiceID: "9999999"}
	page := &drivertest.FakePage{Rows: [][]string{{"unrelated"}}}

	e := NewExpander()
	e.ScrollSettle = 0
	_, err := e.Expand(context.Background(), page, folder)
	require.Error(t, err)
	assert.True(t, driver.IsKind(err, driver.KindNotFound))
}
