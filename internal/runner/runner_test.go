package runner

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightpath-ops/ebilling-cli/internal/credentials"
	"github.com/brightpath-ops/ebilling-cli/internal/driver"
	"github.com/brightpath-ops/ebilling-cli/internal/driver/drivertest"
	"github.com/brightpath-ops/ebilling-cli/internal/fastpath"
	"github.com/brightpath-ops/ebilling-cli/internal/inventory"
	"github.com/brightpath-ops/ebilling-cli/internal/model"
	"github.com/brightpath-ops/ebilling-cli/internal/resilience"
)

const loginURL = "https://portal.example.org/login"

var testCreds = credentials.Credentials{Username: "svc-user", Password: "hunter2"}

func testRunner() *Runner {
	r := New("sgprc")
	r.Scraper = &inventory.Scraper{}
	r.Expander = inventory.NewExpander()
	r.Expander.ScrollSettle = 0
	return r
}

func providerRows() [][]string {
	return [][]string{
		{"HP1829", "Sunrise Care"},
		{"PP0433", "Meadow House"},
	}
}

func invoiceRows(provider string) [][]string {
	switch provider {
	case "HP1829":
		return [][]string{
			{"", "1234567", "116", "08/2025", "2719815", "DOE, JANE"},
		}
	default:
		return [][]string{
			{"", "7654321", "505", "08/2025", "7700002", "ROE, RICK"},
		}
	}
}

// portalPage scripts a fake portal: provider selection grid, invoice
// grid per provider, and a calendar.
func portalPage() *drivertest.FakePage {
	page := &drivertest.FakePage{
		Body: "Service Provider Selection",
		Rows: providerRows(),
		Days: map[int]*driver.DayCell{
			3:  {Day: 3, HasInput: true},
			10: {Day: 10, HasInput: true, Value: 1},
			17: {Day: 17, HasInput: true},
		},
		Token: "JSESSIONID=abc123",
	}
	selected := ""
	page.OnClickRowLink = func(f *drivertest.FakePage, cells []string, action string) error {
		if action == "select" {
			selected = cells[0]
			f.Body = "Invoices"
		}
		return nil
	}
	page.OnClickText = func(f *drivertest.FakePage, text string) error {
		switch text {
		case "Invoices":
			f.Rows = invoiceRows(selected)
		case "Home":
			f.Body = "Service Provider Selection"
			f.Rows = providerRows()
		}
		return nil
	}
	return page
}

func TestRunEndToEnd(t *testing.T) {
	t.Parallel()

	page := portalPage()
	records := []model.BillingRecord{
		{
			UCI: "2719815", LastName: "DOE", FirstName: "JANE",
			SvcCode: "116", SvcMonthYear: "8/2025",
			ServiceDays: []int{3, 10, 17},
		},
		{
			UCI: "9999999", LastName: "NO", FirstName: "MATCH",
			SvcCode: "999", SvcMonthYear: "08/2025",
			ServiceDays: []int{1},
		},
	}

	res, err := testRunner().Run(context.Background(), page, testCreds, loginURL, "HP1829", records)
	require.NoError(t, err)

	// Total coverage: one result per input record.
	require.Len(t, res.Results, len(records))

	first := res.Results[0]
	assert.True(t, first.Success)
	assert.Equal(t, 2, first.DaysEntered)
	assert.Equal(t, []int{10}, first.AlreadyEnteredDays)

	second := res.Results[1]
	assert.True(t, second.Skipped)
	assert.Contains(t, second.ErrorMessage, "No invoice found for SVC 999")

	assert.Equal(t, model.ModeSubmit, res.Mode)
	assert.Equal(t, "sgprc", res.Region)
	assert.Equal(t, "HP1829", res.Provider)
	assert.NotEmpty(t, res.ID)
	assert.False(t, res.FinishedAt.IsZero())

	// Session closed with logout at the end.
	assert.True(t, page.Closed)
}

func TestScrapeInventoryRun(t *testing.T) {
	t.Parallel()

	page := portalPage()
	res, err := testRunner().ScrapeInventory(context.Background(), page, testCreds, loginURL, "HP1829")
	require.NoError(t, err)

	require.Len(t, res.Inventory, 1)
	assert.Equal(t, "1234567", res.Inventory[0].InvoiceID)
	assert.Equal(t, model.ModeInventory, res.Mode)
}

func TestScrapeAllProviders(t *testing.T) {
	t.Parallel()

	page := portalPage()
	res, err := testRunner().ScrapeAllProviders(context.Background(), page, testCreds, loginURL)
	require.NoError(t, err)

	require.Len(t, res.Inventory, 2)
	assert.Equal(t, "HP1829", res.Inventory[0].ProviderSPN)
	assert.Equal(t, "Sunrise Care", res.Inventory[0].ProviderName)
	assert.Equal(t, "PP0433", res.Inventory[1].ProviderSPN)
	assert.Empty(t, res.Warnings)
}

func TestRunLoginFailureAborts(t *testing.T) {
	t.Parallel()

	page := &drivertest.FakePage{Body: "still some dialog"}
	_, err := testRunner().Run(context.Background(), page, testCreds, loginURL, "HP1829", nil)
	require.Error(t, err)
}

func TestFastRunDetachesAndReplays(t *testing.T) {
	t.Parallel()

	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		switch {
		case r.URL.Path == "/provider/select":
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/grid/invoices.json":
			_, _ = w.Write([]byte(`{"items":[{"invoiceId":"1234567","internalId":"9001","svcCode":"116","svcMonth":"08/2025","uci":"2719815","consumerName":"DOE, JANE"}]}`))
		case r.URL.Path == "/invoice/open":
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/invoice/daysAttend" && r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`<form action="/invoice/daysAttend" method="post">` +
				`<input name="day3" value=""/><input name="day17" value=""/>` +
				`<input type="hidden" name="totalUnits" value=""/>` +
				`<input type="hidden" name="grossAmount" value=""/>` +
				`<input type="hidden" name="netAmount" value=""/>` +
				`<input type="hidden" name="unitRate" value="118.94"/></form>`))
		case r.URL.Path == "/invoice/daysAttend" && r.Method == http.MethodPost:
			_ = r.ParseForm()
			var b strings.Builder
			b.WriteString(`<form action="/invoice/daysAttend" method="post">`)
			for name, vals := range r.PostForm {
				fmt.Fprintf(&b, `<input type="hidden" name="%s" value="%s"/>`, name, vals[0])
			}
			b.WriteString(`</form>`)
			_, _ = w.Write([]byte(b.String()))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	page := portalPage()
	r := testRunner()
	r.NewFastClient = func(baseURL, cookie string) fastpath.Client {
		return fastpath.NewClient(srv.URL, cookie,
			fastpath.WithRateLimit(1000, 1000),
			fastpath.WithRetryConfig(resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond}))
	}

	records := []model.BillingRecord{{
		UCI: "2719815", LastName: "DOE", FirstName: "JANE",
		SvcCode: "116", SvcMonthYear: "08/2025",
		ServiceDays: []int{3, 17},
	}}

	res, err := r.FastRun(context.Background(), page, testCreds, loginURL, "HP1829", records)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)

	assert.True(t, res.Results[0].Success)
	assert.Equal(t, 2, res.Results[0].DaysEntered)
	assert.InDelta(t, 237.88, res.Results[0].RCGrossAmount, 0.001)
	assert.True(t, res.FastPath)

	// The browser page was detached, not logged out.
	assert.True(t, page.Closed)
	assert.NotContains(t, page.Clicks, "Logout")
	assert.Equal(t, "JSESSIONID=abc123", gotCookie)
}
