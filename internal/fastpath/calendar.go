package fastpath

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// Hidden aggregate fields of the Days Attend form. The portal performs no
// server-side recalculation; whatever the client posts here is accepted
// and displayed, so the recompute must be exact.
const (
	fieldTotalUnits  = "totalUnits"
	fieldGrossAmount = "grossAmount"
	fieldNetAmount   = "netAmount"
	fieldUnitRate    = "unitRate"
)

// CalendarTotals are the aggregate figures of a Days Attend form.
type CalendarTotals struct {
	TotalUnits  float64
	GrossAmount float64
	NetAmount   float64
	UnitRate    float64
}

func (c *httpClient) FetchCalendar(ctx context.Context, lineID string) (*ParsedForm, error) {
	body, err := c.get(ctx, pathCalendar, url.Values{"line": {lineID}})
	if err != nil {
		return nil, eris.Wrapf(err, "fastpath: fetch calendar %s", lineID)
	}
	form, err := ParseForm(body)
	if err != nil {
		return nil, eris.Wrapf(err, "fastpath: calendar %s", lineID)
	}
	return form, nil
}

func (c *httpClient) SubmitCalendar(ctx context.Context, form *ParsedForm) (*CalendarTotals, error) {
	action := form.Action
	if action == "" {
		action = pathCalendar
	}
	if !strings.HasPrefix(action, "/") {
		action = "/" + action
	}

	body, err := c.postForm(ctx, action, form.Values())
	if err != nil {
		return nil, eris.Wrap(err, "fastpath: submit calendar")
	}

	// The portal re-renders the form with the totals it accepted.
	confirmed, err := ParseForm(body)
	if err != nil {
		return nil, eris.Wrap(err, "fastpath: confirm calendar totals")
	}
	totals := ReadTotals(confirmed)
	return &totals, nil
}

// ReadTotals extracts the aggregate fields from a calendar form.
func ReadTotals(form *ParsedForm) CalendarTotals {
	return CalendarTotals{
		TotalUnits:  fieldDecimal(form, fieldTotalUnits).InexactFloat64(),
		GrossAmount: fieldDecimal(form, fieldGrossAmount).InexactFloat64(),
		NetAmount:   fieldDecimal(form, fieldNetAmount).InexactFloat64(),
		UnitRate:    fieldDecimal(form, fieldUnitRate).InexactFloat64(),
	}
}

// RecomputeTotals rewrites the hidden aggregate fields from the current
// day values: total units is the sum over every day field including
// values that were already present, gross is units times rate rounded to
// two decimals, net equals gross.
func RecomputeTotals(form *ParsedForm) error {
	total := decimal.Zero
	for _, field := range form.DayFields() {
		v, ok := parseDecimal(field.Value)
		if !ok {
			continue
		}
		total = total.Add(v)
	}

	rate := fieldDecimal(form, fieldUnitRate)
	gross := total.Mul(rate).Round(2)

	if err := form.Set(fieldTotalUnits, total.String()); err != nil {
		return err
	}
	if err := form.Set(fieldGrossAmount, gross.StringFixed(2)); err != nil {
		return err
	}
	if err := form.Set(fieldNetAmount, gross.StringFixed(2)); err != nil {
		return err
	}
	return nil
}

func fieldDecimal(form *ParsedForm, name string) decimal.Decimal {
	raw, ok := form.Get(name)
	if !ok {
		return decimal.Zero
	}
	d, ok := parseDecimal(raw)
	if !ok {
		return decimal.Zero
	}
	return d
}

func parseDecimal(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
