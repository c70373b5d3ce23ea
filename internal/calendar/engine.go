// Package calendar writes per-day attendance units onto the portal's
// Days Attend form and captures the portal's own computed line summary.
//
// Records are processed in invoice groups keyed by service code and
// month: the first record of a group opens the invoice, later records
// reuse it. Existing day values are never overwritten.
package calendar

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/brightpath-ops/ebilling-cli/internal/driver"
	"github.com/brightpath-ops/ebilling-cli/internal/model"
)

// Portal field names for the Invoice Line Summary block. Capture is best
// effort: a missing field leaves the corresponding result value zero.
const (
	fieldUnitsBilled = "unitsBilled"
	fieldGrossAmount = "grossAmount"
	fieldNetAmount   = "netAmount"
	fieldUnitRate    = "unitRate"
)

// Engine drives calendar entry for matched records over a live page.
type Engine struct{}

// New returns a calendar entry engine.
func New() *Engine {
	return &Engine{}
}

type groupKey struct {
	svc   string
	month string
}

type group struct {
	key     groupKey
	indices []int
}

// Submit processes every matched outcome and returns one result per
// outcome, in input order. Unmatched outcomes become skipped results;
// invalid records are rejected before any navigation. A failure opening
// an invoice abandons the rest of its group but not other groups.
func (e *Engine) Submit(ctx context.Context, page driver.Page, outcomes []model.MatchOutcome) []model.SubmissionResult {
	results := make([]model.SubmissionResult, len(outcomes))

	groups := e.partition(outcomes, results)

	for _, g := range groups {
		e.submitGroup(ctx, page, outcomes, results, g)
	}
	return results
}

// partition settles skips and validation failures immediately and buckets
// the remaining outcomes into invoice groups in first-appearance order.
func (e *Engine) partition(outcomes []model.MatchOutcome, results []model.SubmissionResult) []group {
	var groups []group
	byKey := make(map[groupKey]int)

	for i, o := range outcomes {
		if !o.Matched() {
			results[i] = model.SkippedResult(o.Record, o.SkipReason)
			continue
		}
		if verr := o.Record.Validate(); verr != nil {
			results[i] = model.SkippedResult(o.Record, verr.Error())
			continue
		}
		k := groupKey{
			svc:   strings.TrimSpace(o.Record.SvcCode),
			month: model.NormalizeMonth(o.Record.SvcMonthYear),
		}
		gi, ok := byKey[k]
		if !ok {
			gi = len(groups)
			byKey[k] = gi
			groups = append(groups, group{key: k})
		}
		groups[gi].indices = append(groups[gi].indices, i)
	}
	return groups
}

func (e *Engine) submitGroup(ctx context.Context, page driver.Page, outcomes []model.MatchOutcome, results []model.SubmissionResult, g group) {
	log := zap.L().With(zap.String("svc", g.key.svc), zap.String("month", g.key.month))

	first := outcomes[g.indices[0]]
	if err := e.openInvoice(ctx, page, *first.Item); err != nil {
		log.Warn("invoice open failed, abandoning group", zap.Error(err))
		msg := "invoice group abandoned: " + err.Error()
		for _, i := range g.indices {
			results[i] = model.FailedResult(outcomes[i].Record, msg)
		}
		return
	}

	abandoned := false
	var abandonMsg string
	for _, i := range g.indices {
		if abandoned {
			results[i] = model.FailedResult(outcomes[i].Record, abandonMsg)
			continue
		}
		res, fatal := e.submitRecord(ctx, page, outcomes[i])
		results[i] = res
		if fatal {
			abandoned = true
			abandonMsg = "invoice group abandoned: " + res.ErrorMessage
		}
	}

	// Back to the invoice grid for the next group. Best effort.
	if err := page.ClickText(ctx, "Close"); err == nil {
		_ = page.WaitSettle(ctx)
	}
}

// openInvoice clicks into the invoice row identified by the matched item.
func (e *Engine) openInvoice(ctx context.Context, page driver.Page, item model.InventoryItem) error {
	err := page.ClickRowLink(ctx, func(cells []string) bool {
		for _, c := range cells {
			if strings.TrimSpace(c) == item.InvoiceID {
				return true
			}
		}
		return false
	}, "EDIT")
	if err != nil {
		return eris.Wrapf(err, "calendar: open invoice %s", item.InvoiceID)
	}
	if err := page.WaitSettle(ctx); err != nil {
		return eris.Wrapf(err, "calendar: settle invoice %s", item.InvoiceID)
	}
	return nil
}

// submitRecord enters the record's days on its calendar. The second
// return value reports a commit failure, which poisons the rest of the
// invoice group.
func (e *Engine) submitRecord(ctx context.Context, page driver.Page, o model.MatchOutcome) (model.SubmissionResult, bool) {
	rec := o.Record
	res := model.SubmissionResult{
		ConsumerName: rec.ConsumerName(),
		UCI:          rec.UCI,
		InvoiceID:    o.Item.InvoiceID,
		DaysExpected: len(rec.ServiceDays),
	}
	log := zap.L().With(zap.String("uci", rec.UCI), zap.String("invoice", o.Item.InvoiceID))

	if err := e.openCalendar(ctx, page, o); err != nil {
		res.ErrorMessage = err.Error()
		return res, false
	}

	cells, err := page.DayCells(ctx)
	if err != nil {
		res.ErrorMessage = eris.Wrap(err, "calendar: read day cells").Error()
		e.closeCalendar(ctx, page)
		return res, false
	}
	byDay := make(map[int]driver.DayCell, len(cells))
	for _, c := range cells {
		byDay[c.Day] = c
	}

	days := append([]int(nil), rec.ServiceDays...)
	sort.Ints(days)
	for _, day := range days {
		cell, ok := byDay[day]
		switch {
		case !ok || !cell.HasInput || cell.Disabled:
			res.UnavailableDays = append(res.UnavailableDays, day)
		case cell.Value > 0:
			res.AlreadyEnteredDays = append(res.AlreadyEnteredDays, day)
		default:
			if err := page.FillDay(ctx, day, "1"); err != nil {
				if driver.IsKind(err, driver.KindDisabled) || driver.IsKind(err, driver.KindNotFound) {
					res.UnavailableDays = append(res.UnavailableDays, day)
					continue
				}
				res.ErrorMessage = eris.Wrapf(err, "calendar: fill day %d", day).Error()
				res.DaysEntered = 0
				e.closeCalendar(ctx, page)
				return res, false
			}
			res.DaysEntered++
		}
	}

	// The summary reflects the freshly typed values before Update; the
	// portal does not recompute it afterwards.
	e.captureSummary(ctx, page, &res)

	if res.DaysEntered > 0 {
		if err := page.ClickText(ctx, "Update"); err != nil {
			res.ErrorMessage = eris.Wrap(err, "calendar: commit").Error()
			res.DaysEntered = 0 // nothing was saved
			e.closeCalendar(ctx, page)
			return res, true
		}
		if err := page.WaitSettle(ctx); err != nil {
			res.ErrorMessage = eris.Wrap(err, "calendar: settle after commit").Error()
			e.closeCalendar(ctx, page)
			return res, true
		}
	}

	e.closeCalendar(ctx, page)

	res.Classify()
	log.Info("calendar entry done",
		zap.Int("entered", res.DaysEntered),
		zap.Int("expected", res.DaysExpected),
		zap.Ints("unavailable", res.UnavailableDays),
		zap.Ints("already_entered", res.AlreadyEnteredDays),
		zap.Bool("success", res.Success))
	return res, false
}

// openCalendar navigates from the open invoice to the record's Days
// Attend form. Folder matches select the consumer line by UCI first.
func (e *Engine) openCalendar(ctx context.Context, page driver.Page, o model.MatchOutcome) error {
	uci := strings.TrimSpace(o.Record.UCI)
	err := page.ClickRowLink(ctx, func(cells []string) bool {
		for _, c := range cells {
			if strings.TrimSpace(c) == uci {
				return true
			}
		}
		return false
	}, "CALENDAR")
	if err != nil {
		return eris.Wrapf(err, "calendar: open days attend for uci %s", uci)
	}
	if err := page.WaitSettle(ctx); err != nil {
		return eris.Wrapf(err, "calendar: settle days attend for uci %s", uci)
	}
	return nil
}

// closeCalendar returns from the Days Attend form to invoice scope.
func (e *Engine) closeCalendar(ctx context.Context, page driver.Page) {
	if err := page.ClickText(ctx, "Close"); err != nil {
		return
	}
	_ = page.WaitSettle(ctx)
}

// captureSummary reads the portal's Invoice Line Summary fields into the
// result. Missing fields are left zero.
func (e *Engine) captureSummary(ctx context.Context, page driver.Page, res *model.SubmissionResult) {
	res.RCUnitsBilled = e.moneyField(ctx, page, fieldUnitsBilled)
	res.RCGrossAmount = e.moneyField(ctx, page, fieldGrossAmount)
	res.RCNetAmount = e.moneyField(ctx, page, fieldNetAmount)
	res.RCUnitRate = e.moneyField(ctx, page, fieldUnitRate)
}

func (e *Engine) moneyField(ctx context.Context, page driver.Page, name string) float64 {
	raw, err := page.FieldValue(ctx, name)
	if err != nil {
		return 0
	}
	return ParseAmount(raw)
}

// ParseAmount converts a portal-formatted amount ("$1,234.56") to a
// float. Unparseable input yields zero.
func ParseAmount(raw string) float64 {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}
