package fastpath

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brightpath-ops/ebilling-cli/internal/model"
)

// Submitter performs calendar entry over the grid endpoints with the same
// semantics as the page-driven engine: invoice groups, one unit per
// enterable requested day, existing values never overwritten.
type Submitter struct {
	client Client
}

// NewSubmitter wraps a fastpath client for calendar submission.
func NewSubmitter(c Client) *Submitter {
	return &Submitter{client: c}
}

// Submit processes every matched outcome and returns one result per
// outcome, in input order.
func (s *Submitter) Submit(ctx context.Context, outcomes []model.MatchOutcome) []model.SubmissionResult {
	results := make([]model.SubmissionResult, len(outcomes))

	type group struct {
		internalID string
		indices    []int
	}
	var groups []group
	byID := make(map[string]int)

	for i, o := range outcomes {
		if !o.Matched() {
			results[i] = model.SkippedResult(o.Record, o.SkipReason)
			continue
		}
		if verr := o.Record.Validate(); verr != nil {
			results[i] = model.SkippedResult(o.Record, verr.Error())
			continue
		}
		if CalendarRef(*o.Item) == "" {
			results[i] = model.FailedResult(o.Record, "no portal line reference for invoice "+o.Item.InvoiceID)
			continue
		}
		id := o.Item.InvoiceInternalID
		gi, ok := byID[id]
		if !ok {
			gi = len(groups)
			byID[id] = gi
			groups = append(groups, group{internalID: id})
		}
		groups[gi].indices = append(groups[gi].indices, i)
	}

	for _, g := range groups {
		if err := s.client.OpenInvoice(ctx, g.internalID); err != nil {
			zap.L().Warn("fastpath invoice open failed, abandoning group",
				zap.String("internal_id", g.internalID), zap.Error(err))
			msg := "invoice group abandoned: " + err.Error()
			for _, i := range g.indices {
				results[i] = model.FailedResult(outcomes[i].Record, msg)
			}
			continue
		}
		for _, i := range g.indices {
			results[i] = s.submitRecord(ctx, outcomes[i])
		}
	}
	return results
}

func (s *Submitter) submitRecord(ctx context.Context, o model.MatchOutcome) model.SubmissionResult {
	rec := o.Record
	res := model.SubmissionResult{
		ConsumerName: rec.ConsumerName(),
		UCI:          rec.UCI,
		InvoiceID:    o.Item.InvoiceID,
		DaysExpected: len(rec.ServiceDays),
	}

	form, err := s.client.FetchCalendar(ctx, CalendarRef(*o.Item))
	if err != nil {
		res.ErrorMessage = err.Error()
		return res
	}

	dayFields := form.DayFields()
	days := append([]int(nil), rec.ServiceDays...)
	sort.Ints(days)

	for _, day := range days {
		field, ok := dayFields[day]
		switch {
		case !ok || field.Disabled:
			res.UnavailableDays = append(res.UnavailableDays, day)
		case positive(field.Value):
			res.AlreadyEnteredDays = append(res.AlreadyEnteredDays, day)
		default:
			if err := form.Set(field.Name, "1"); err != nil {
				res.ErrorMessage = err.Error()
				return res
			}
			res.DaysEntered++
		}
	}

	totals := ReadTotals(form)
	if res.DaysEntered > 0 {
		if err := RecomputeTotals(form); err != nil {
			res.ErrorMessage = err.Error()
			res.DaysEntered = 0
			return res
		}
		confirmed, err := s.client.SubmitCalendar(ctx, form)
		if err != nil {
			res.ErrorMessage = eris.Wrap(err, "fastpath: commit calendar").Error()
			res.DaysEntered = 0
			return res
		}
		totals = *confirmed
	}

	res.RCUnitsBilled = totals.TotalUnits
	res.RCGrossAmount = totals.GrossAmount
	res.RCNetAmount = totals.NetAmount
	res.RCUnitRate = totals.UnitRate

	res.Classify()
	zap.L().Info("fastpath calendar entry done",
		zap.String("uci", rec.UCI),
		zap.String("invoice", o.Item.InvoiceID),
		zap.Int("entered", res.DaysEntered),
		zap.Int("expected", res.DaysExpected),
		zap.Bool("success", res.Success))
	return res
}

// CalendarRef resolves the portal line reference the calendar endpoints
// take: the consumer line id for expanded folder lines, the invoice's
// internal id for single-consumer invoices.
func CalendarRef(item model.InventoryItem) string {
	if item.ConsumerLineID != "" {
		return item.ConsumerLineID
	}
	return item.InvoiceInternalID
}

func positive(raw string) bool {
	s := strings.TrimSpace(raw)
	if s == "" {
		return false
	}
	d, ok := parseDecimal(s)
	return ok && d.IsPositive()
}
