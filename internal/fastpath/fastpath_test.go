package fastpath

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightpath-ops/ebilling-cli/internal/model"
	"github.com/brightpath-ops/ebilling-cli/internal/resilience"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
	}
}

func newTestClient(t *testing.T, handler http.Handler) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "JSESSIONID=test", WithRetryConfig(fastRetry()), WithRateLimit(1000, 1000))
}

// calendarHTML renders a Days Attend form. Day values map day→value;
// disabledDays render read-only inputs.
func calendarHTML(rate string, values map[int]string, disabledDays ...int) string {
	disabled := make(map[int]bool)
	for _, d := range disabledDays {
		disabled[d] = true
	}
	var b strings.Builder
	b.WriteString(`<html><body><form action="/invoice/daysAttend" method="post">`)
	b.WriteString(`<input type="hidden" name="lineId" value="L1"/>`)
	for d := 1; d <= 31; d++ {
		v, ok := values[d]
		if !ok {
			continue
		}
		if disabled[d] {
			fmt.Fprintf(&b, `<input name="day%d" value="%s" disabled/>`, d, v)
		} else {
			fmt.Fprintf(&b, `<input name="day%d" value="%s"/>`, d, v)
		}
	}
	fmt.Fprintf(&b, `<input type="hidden" name="totalUnits" value=""/>`)
	fmt.Fprintf(&b, `<input type="hidden" name="grossAmount" value=""/>`)
	fmt.Fprintf(&b, `<input type="hidden" name="netAmount" value=""/>`)
	fmt.Fprintf(&b, `<input type="hidden" name="unitRate" value="%s"/>`, rate)
	b.WriteString(`</form></body></html>`)
	return b.String()
}

// echoForm re-renders posted values as a form, the way the portal
// confirms a calendar commit.
func echoForm(w http.ResponseWriter, form url.Values) {
	var b strings.Builder
	b.WriteString(`<html><body><form action="/invoice/daysAttend" method="post">`)
	for name, vals := range form {
		for _, v := range vals {
			fmt.Fprintf(&b, `<input type="hidden" name="%s" value="%s"/>`, name, v)
		}
	}
	b.WriteString(`</form></body></html>`)
	_, _ = w.Write([]byte(b.String()))
}

func TestListProviders(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, pathProviders, r.URL.Path)
		assert.Equal(t, "JSESSIONID=test", r.Header.Get("Cookie"))
		_, _ = w.Write([]byte(`{"items":[{"spn":"hp1829","name":"Sunrise Care"},{"spn":"PP0433","name":"Meadow House"}]}`))
	}))

	providers, err := c.ListProviders(context.Background())
	require.NoError(t, err)
	require.Len(t, providers, 2)
	assert.Equal(t, Provider{SPN: "HP1829", Name: "Sunrise Care"}, providers[0])
}

func TestScrapeInventoryExpandsFolders(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case pathInvoices:
			_, _ = w.Write([]byte(`{"items":[
				{"invoiceId":"1234567","internalId":"9001","svcCode":"862","svcMonth":"08/2025","uci":"7701234","consumerName":"DOE, JANE"},
				{"invoiceId":"1234568","internalId":"9002","svcCode":"505","svcMonth":"08/2025","uci":"","consumerName":"MULTIPLE CONSUMERS"}
			]}`))
		case pathInvoiceDetail:
			require.Equal(t, "9002", r.URL.Query().Get("id"))
			_, _ = w.Write([]byte(`{"items":[
				{"lineId":"L1","lineNo":1,"uci":"7700001","consumerName":"ALPHA, AMY","svcSubcode":"FC"},
				{"lineId":"L2","lineNo":2,"uci":"7700002","consumerName":"BRAVO, BEN","svcSubcode":"FC"}
			]}`))
		default:
			http.NotFound(w, r)
		}
	}))

	items, err := ScrapeInventory(context.Background(), c)
	require.NoError(t, err)
	require.Len(t, items, 4)

	assert.True(t, items[1].IsFolder())
	assert.Equal(t, "1234568", items[2].InvoiceID)
	assert.Equal(t, "505", items[2].SvcCode)
	assert.Equal(t, "08/2025", items[2].SvcMonth)
	assert.Equal(t, "L1", items[2].ConsumerLineID)
	assert.True(t, items[2].HasUCI)
}

func TestSubmitterEntersAndRecomputes(t *testing.T) {
	t.Parallel()

	var posted url.Values
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == pathOpenInvoice:
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == pathCalendar && r.Method == http.MethodGet:
			// Day 10 already carries a unit.
			_, _ = w.Write([]byte(calendarHTML("118.94", map[int]string{
				3: "", 10: "1", 17: "", 20: "",
			})))
		case r.URL.Path == pathCalendar && r.Method == http.MethodPost:
			require.NoError(t, r.ParseForm())
			posted = r.PostForm
			echoForm(w, r.PostForm)
		default:
			http.NotFound(w, r)
		}
	}))

	outcome := model.MatchOutcome{
		Record: model.BillingRecord{
			UCI: "7701234", LastName: "DOE", FirstName: "JANE",
			SvcCode: "862", SvcMonthYear: "08/2025",
			ServiceDays: []int{3, 10, 17},
		},
		Item: &model.InventoryItem{
			InvoiceID: "1234567", InvoiceInternalID: "9001",
			SvcCode: "862", SvcMonth: "08/2025", UCI: "7701234", HasUCI: true,
		},
	}

	out := NewSubmitter(c).Submit(context.Background(), []model.MatchOutcome{outcome})
	require.Len(t, out, 1)
	res := out[0]

	assert.True(t, res.Success)
	assert.Equal(t, 2, res.DaysEntered)
	assert.Equal(t, []int{10}, res.AlreadyEnteredDays)

	// Three units at 118.94 gross to 356.82.
	assert.InDelta(t, 3.0, res.RCUnitsBilled, 0.001)
	assert.InDelta(t, 356.82, res.RCGrossAmount, 0.001)
	assert.InDelta(t, 356.82, res.RCNetAmount, 0.001)
	assert.InDelta(t, 118.94, res.RCUnitRate, 0.001)

	// The pre-filled day was echoed back untouched, hidden state intact.
	require.NotNil(t, posted)
	assert.Equal(t, "1", posted.Get("day10"))
	assert.Equal(t, "1", posted.Get("day3"))
	assert.Equal(t, "1", posted.Get("day17"))
	assert.Equal(t, "", posted.Get("day20"))
	assert.Equal(t, "L1", posted.Get("lineId"))
	assert.Equal(t, "356.82", posted.Get("grossAmount"))
}

func TestSubmitterUnavailableDaysNoCommit(t *testing.T) {
	t.Parallel()

	commits := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == pathOpenInvoice:
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == pathCalendar && r.Method == http.MethodGet:
			// Day 31 rendered read-only; day 30 is the last enterable day.
			_, _ = w.Write([]byte(calendarHTML("118.94", map[int]string{
				30: "", 31: "",
			}, 31)))
		case r.URL.Path == pathCalendar && r.Method == http.MethodPost:
			commits++
			echoForm(w, nil)
		default:
			http.NotFound(w, r)
		}
	}))

	outcome := model.MatchOutcome{
		Record: model.BillingRecord{
			UCI: "7701234", LastName: "DOE", FirstName: "JANE",
			SvcCode: "862", SvcMonthYear: "09/2025",
			ServiceDays: []int{31},
		},
		Item: &model.InventoryItem{
			InvoiceID: "1234567", InvoiceInternalID: "9001", UCI: "7701234", HasUCI: true,
		},
	}

	out := NewSubmitter(c).Submit(context.Background(), []model.MatchOutcome{outcome})
	require.Len(t, out, 1)
	res := out[0]

	assert.False(t, res.Success)
	assert.False(t, res.Partial)
	assert.Equal(t, []int{31}, res.UnavailableDays)
	assert.Zero(t, res.DaysEntered)
	assert.Zero(t, commits)
}

func TestSubmitterSkipsInvalidRecord(t *testing.T) {
	t.Parallel()

	hits := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.NotFound(w, r)
	}))

	outcome := model.MatchOutcome{
		Record: model.BillingRecord{
			UCI: "7701234", LastName: "DOE", FirstName: "JANE",
			SvcCode: "862", SvcMonthYear: "08/2025",
		},
		Item: &model.InventoryItem{
			InvoiceID: "1234567", InvoiceInternalID: "9001", UCI: "7701234", HasUCI: true,
		},
	}

	out := NewSubmitter(c).Submit(context.Background(), []model.MatchOutcome{outcome})
	require.Len(t, out, 1)

	assert.True(t, out[0].Skipped)
	assert.Contains(t, out[0].ErrorMessage, "service_days")
	assert.Zero(t, hits)
}

func TestSubmitterAbandonsGroupOnOpenFailure(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == pathOpenInvoice {
			http.Error(w, "not yours", http.StatusForbidden)
			return
		}
		http.NotFound(w, r)
	}))

	rec := model.BillingRecord{
		UCI: "7701234", LastName: "DOE", FirstName: "JANE",
		SvcCode: "862", SvcMonthYear: "08/2025", ServiceDays: []int{3},
	}
	item := &model.InventoryItem{InvoiceID: "1234567", InvoiceInternalID: "9001", UCI: "7701234", HasUCI: true}

	out := NewSubmitter(c).Submit(context.Background(), []model.MatchOutcome{
		{Record: rec, Item: item},
		{Record: rec, Item: item},
	})
	require.Len(t, out, 2)
	for _, res := range out {
		assert.False(t, res.Success)
		assert.Contains(t, res.ErrorMessage, "invoice group abandoned")
	}
}

func TestRetryOnTransientStatus(t *testing.T) {
	t.Parallel()

	attempts := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))

	_, err := c.InvoiceGrid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestPermanentStatusNotRetried(t *testing.T) {
	t.Parallel()

	attempts := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "gone", http.StatusNotFound)
	}))

	_, err := c.InvoiceGrid(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestParseFormPreservesOrderAndState(t *testing.T) {
	t.Parallel()

	form, err := ParseForm([]byte(`<html><body>
		<form action="/invoice/daysAttend" method="POST">
			<input type="hidden" name="token" value="xyz"/>
			<input name="day1" value="1"/>
			<input name="day2" value="" disabled/>
			<select name="period"><option value="a"/><option value="b" selected/></select>
			<textarea name="note">keep</textarea>
		</form></body></html>`))
	require.NoError(t, err)

	assert.Equal(t, "/invoice/daysAttend", form.Action)
	assert.Equal(t, "POST", form.Method)

	names := make([]string, 0)
	for _, f := range form.Fields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"token", "day1", "day2", "period", "note"}, names)

	v, ok := form.Get("period")
	require.True(t, ok)
	assert.Equal(t, "b", v)

	days := form.DayFields()
	require.Len(t, days, 2)
	assert.False(t, days[1].Disabled)
	assert.True(t, days[2].Disabled)

	require.Error(t, form.Set("absent", "1"))
	require.NoError(t, form.Set("day1", "0"))
	v, _ = form.Get("day1")
	assert.Equal(t, "0", v)
}

func TestRecomputeTotalsExactArithmetic(t *testing.T) {
	t.Parallel()

	form, err := ParseForm([]byte(calendarHTML("118.94", map[int]string{
		3: "1", 10: "1", 17: "1",
	})))
	require.NoError(t, err)

	require.NoError(t, RecomputeTotals(form))

	units, _ := form.Get("totalUnits")
	gross, _ := form.Get("grossAmount")
	net, _ := form.Get("netAmount")
	assert.Equal(t, "3", units)
	assert.Equal(t, "356.82", gross)
	assert.Equal(t, "356.82", net)
}
