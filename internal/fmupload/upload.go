// Package fmupload implements the correction workflow: capture the
// calendar's existing day values, zero every day field, optionally enter
// the replacement values, then re-fetch and validate. It runs entirely
// over the fastpath endpoints.
package fmupload

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brightpath-ops/ebilling-cli/internal/fastpath"
	"github.com/brightpath-ops/ebilling-cli/internal/model"
	"github.com/brightpath-ops/ebilling-cli/internal/resilience"
)

// Uploader drives capture-zero-enter runs for matched records.
type Uploader struct {
	client fastpath.Client

	// Retry governs transient-failure retries per record. Permanent
	// failures (no inventory match, missing consumer line, malformed
	// day range) are never retried.
	Retry resilience.RetryConfig
}

// New returns an Uploader with the default retry policy.
func New(c fastpath.Client) *Uploader {
	return &Uploader{client: c, Retry: resilience.DefaultRetryConfig()}
}

// Run processes every outcome and returns one result per outcome, in
// input order. With zeroOnly set, no replacement values are entered
// after the zero pass.
func (u *Uploader) Run(ctx context.Context, outcomes []model.MatchOutcome, zeroOnly bool) []model.FMUploadResult {
	results := make([]model.FMUploadResult, len(outcomes))
	for i, o := range outcomes {
		results[i] = u.runRecord(ctx, o, zeroOnly)
	}
	return results
}

func (u *Uploader) runRecord(ctx context.Context, o model.MatchOutcome, zeroOnly bool) model.FMUploadResult {
	if !o.Matched() {
		return permanentFailure(model.SkippedResult(o.Record, o.SkipReason), o.SkipReason)
	}
	if verr := o.Record.Validate(); verr != nil {
		return permanentFailure(model.SkippedResult(o.Record, verr.Error()), verr.Error())
	}
	if fastpath.CalendarRef(*o.Item) == "" {
		msg := "no portal line reference for invoice " + o.Item.InvoiceID
		return permanentFailure(model.FailedResult(o.Record, msg), msg)
	}

	var res model.FMUploadResult
	var original map[int]float64
	retries, reason, err := resilience.Do(ctx, u.Retry, func(ctx context.Context) error {
		var attemptErr error
		res, attemptErr = u.attempt(ctx, o, zeroOnly, &original)
		return attemptErr
	})
	res.RetryCount = retries
	res.RetryReason = model.RetryReason(reason)

	if err != nil {
		out := permanentFailure(model.FailedResult(o.Record, err.Error()), err.Error())
		out.RetryCount = retries
		out.RetryReason = model.RetryReason(reason)
		return out
	}
	return res
}

// attempt runs the full state machine once. Transient transport errors
// propagate so the caller's retry loop can classify them; everything
// else lands in the result's validation state. original holds the
// pre-mutation capture across attempts: a retry after a committed zero
// pass sees the zeroed calendar, not the state the record started from.
func (u *Uploader) attempt(ctx context.Context, o model.MatchOutcome, zeroOnly bool, original *map[int]float64) (model.FMUploadResult, error) {
	rec := o.Record
	item := *o.Item
	res := model.FMUploadResult{
		SubmissionResult: model.SubmissionResult{
			ConsumerName: rec.ConsumerName(),
			UCI:          rec.UCI,
			InvoiceID:    item.InvoiceID,
			DaysExpected: len(rec.ServiceDays),
		},
	}
	log := zap.L().With(zap.String("uci", rec.UCI), zap.String("invoice", item.InvoiceID))

	if item.InvoiceInternalID != "" {
		if err := u.client.OpenInvoice(ctx, item.InvoiceInternalID); err != nil {
			return res, err
		}
	}

	// Capture.
	form, err := u.client.FetchCalendar(ctx, fastpath.CalendarRef(item))
	if err != nil {
		return res, err
	}
	dayFields := form.DayFields()
	if *original == nil {
		*original = capturedValues(dayFields)
	}
	res.OriginalValues = *original

	// ZeroAll: every enterable day field goes to 0, including days that
	// were never filled. Disabled fields stay as the portal rendered them.
	for day, field := range dayFields {
		if field.Disabled {
			res.DaysUnavailable = append(res.DaysUnavailable, day)
			continue
		}
		if err := form.Set(field.Name, "0"); err != nil {
			return res, err
		}
		if res.OriginalValues[day] > 0 {
			res.DaysZeroed = append(res.DaysZeroed, day)
		}
	}
	sort.Ints(res.DaysZeroed)
	sort.Ints(res.DaysUnavailable)

	if err := fastpath.RecomputeTotals(form); err != nil {
		return res, err
	}
	if _, err := u.client.SubmitCalendar(ctx, form); err != nil {
		return res, eris.Wrap(err, "fmupload: commit zero pass")
	}
	log.Info("zero pass committed", zap.Ints("zeroed", res.DaysZeroed))

	// EnterNewValues.
	if !zeroOnly {
		for _, day := range sortedCopy(rec.ServiceDays) {
			field, ok := dayFields[day]
			if !ok || field.Disabled {
				res.UnavailableDays = append(res.UnavailableDays, day)
				continue
			}
			if err := form.Set(field.Name, "1"); err != nil {
				return res, err
			}
			res.DaysEntered++
		}
		if err := fastpath.RecomputeTotals(form); err != nil {
			return res, err
		}
		if _, err := u.client.SubmitCalendar(ctx, form); err != nil {
			return res, eris.Wrap(err, "fmupload: commit entry pass")
		}
		log.Info("entry pass committed", zap.Int("entered", res.DaysEntered))
	}

	// Validate against a fresh fetch.
	final, err := u.client.FetchCalendar(ctx, fastpath.CalendarRef(item))
	if err != nil {
		return res, eris.Wrap(err, "fmupload: refetch for validation")
	}
	res.FinalValues = capturedValues(final.DayFields())

	totals := fastpath.ReadTotals(final)
	res.RCUnitsBilled = totals.TotalUnits
	res.RCGrossAmount = totals.GrossAmount
	res.RCNetAmount = totals.NetAmount
	res.RCUnitRate = totals.UnitRate

	res.ValidationErrors = u.validate(&res, rec, zeroOnly)
	res.ValidationPassed = len(res.ValidationErrors) == 0
	if !zeroOnly {
		res.Classify()
	} else {
		res.Success = res.ValidationPassed
	}

	log.Info("capture-zero-enter done",
		zap.Bool("zero_only", zeroOnly),
		zap.Bool("validation_passed", res.ValidationPassed),
		zap.Int("retry_count", res.RetryCount))
	return res, nil
}

// validate compares the re-fetched calendar against what the run was
// supposed to leave behind.
func (u *Uploader) validate(res *model.FMUploadResult, rec model.BillingRecord, zeroOnly bool) []string {
	var errs []string

	expected := make(map[int]float64)
	if !zeroOnly {
		unavailable := make(map[int]bool)
		for _, d := range res.UnavailableDays {
			unavailable[d] = true
		}
		for _, d := range rec.ServiceDays {
			if !unavailable[d] {
				expected[d] = 1
			}
		}
	}

	for day, want := range expected {
		if got := res.FinalValues[day]; got != want {
			errs = append(errs, fmt.Sprintf("day %d: expected %s, found %s",
				day, strconv.FormatFloat(want, 'f', -1, 64), strconv.FormatFloat(got, 'f', -1, 64)))
		}
	}
	for day, got := range res.FinalValues {
		if _, ok := expected[day]; ok {
			continue
		}
		if got > 0 && !contains(res.DaysUnavailable, day) {
			errs = append(errs, fmt.Sprintf("day %d: expected clear, found %s",
				day, strconv.FormatFloat(got, 'f', -1, 64)))
		}
	}
	sort.Strings(errs)
	return errs
}

// capturedValues extracts day→units for every day field carrying a
// positive value.
func capturedValues(fields map[int]fastpath.FormField) map[int]float64 {
	out := make(map[int]float64)
	for day, field := range fields {
		v, err := strconv.ParseFloat(field.Value, 64)
		if err != nil || v <= 0 {
			continue
		}
		out[day] = v
	}
	return out
}

func permanentFailure(base model.SubmissionResult, reason string) model.FMUploadResult {
	return model.FMUploadResult{
		SubmissionResult: base,
		ValidationPassed: false,
		ValidationErrors: []string{reason},
	}
}

func sortedCopy(days []int) []int {
	out := append([]int(nil), days...)
	sort.Ints(out)
	return out
}

func contains(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}
