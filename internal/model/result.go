package model

import "sort"

// MatchOutcome pairs an input record with its match decision. Every input
// record yields exactly one outcome.
type MatchOutcome struct {
	Record BillingRecord

	// Item is the matched inventory line; nil when the record is unmatched.
	Item *InventoryItem

	// ViaFolder is set when the match went through an unexpanded
	// multi-consumer folder rather than a direct UCI hit.
	ViaFolder bool

	// SkipReason explains an unmatched outcome in human-readable form.
	SkipReason string
}

// Matched reports whether the record found an inventory counterpart.
func (o MatchOutcome) Matched() bool { return o.Item != nil }

// SubmissionResult is the per-record outcome of a calendar submission.
//
// Invariants:
//
//	Success  ⟺ DaysExpected > 0 and DaysEntered + len(AlreadyEnteredDays) == DaysExpected
//	Partial  ⟺ 0 < DaysEntered + len(AlreadyEnteredDays) < DaysExpected
type SubmissionResult struct {
	Success bool
	Partial bool
	Skipped bool

	ConsumerName string
	UCI          string
	InvoiceID    string

	DaysEntered        int
	DaysExpected       int
	UnavailableDays    []int
	AlreadyEnteredDays []int

	ErrorMessage string

	// Portal-computed billing data, captured from the Invoice Line Summary.
	RCUnitsBilled float64
	RCGrossAmount float64
	RCNetAmount   float64
	RCUnitRate    float64

	// Locally-expected billing data, carried from the input record for
	// reconciliation against the portal-computed figures.
	InvoiceUnits  float64
	InvoiceAmount float64
}

// EffectiveDays is the sum of newly-entered and previously-filled days,
// the quantity the success/partial classification is based on.
func (r SubmissionResult) EffectiveDays() int {
	return r.DaysEntered + len(r.AlreadyEnteredDays)
}

// Classify sets Success and Partial from DaysEntered, DaysExpected and
// AlreadyEnteredDays per the result invariants.
func (r *SubmissionResult) Classify() {
	eff := r.EffectiveDays()
	r.Success = r.DaysExpected > 0 && eff == r.DaysExpected
	r.Partial = eff > 0 && eff < r.DaysExpected
}

// SkippedResult builds the synthetic outcome for a record that never
// reached the portal.
func SkippedResult(rec BillingRecord, reason string) SubmissionResult {
	return SubmissionResult{
		Skipped:       true,
		ConsumerName:  rec.ConsumerName(),
		UCI:           rec.UCI,
		DaysExpected:  len(rec.ServiceDays),
		ErrorMessage:  "SKIPPED: " + reason,
		InvoiceUnits:  rec.EnteredUnits,
		InvoiceAmount: rec.EnteredAmount,
	}
}

// FailedResult builds a failed outcome carrying the record's reconciliation
// figures.
func FailedResult(rec BillingRecord, msg string) SubmissionResult {
	return SubmissionResult{
		ConsumerName:  rec.ConsumerName(),
		UCI:           rec.UCI,
		DaysExpected:  len(rec.ServiceDays),
		ErrorMessage:  msg,
		InvoiceUnits:  rec.EnteredUnits,
		InvoiceAmount: rec.EnteredAmount,
	}
}

// RetryReason classifies why a capture-zero-enter attempt was retried.
type RetryReason string

const (
	RetryTimeout         RetryReason = "timeout"
	RetryConnectionError RetryReason = "connection_error"
)

// FMUploadResult is the outcome of one capture-zero-enter correction run
// for a single record.
type FMUploadResult struct {
	SubmissionResult

	// OriginalValues is the day→units map captured before any mutation.
	OriginalValues map[int]float64
	// FinalValues is the day→units map re-fetched after the last commit.
	FinalValues map[int]float64

	DaysZeroed      []int
	DaysUnavailable []int

	ValidationPassed bool
	ValidationErrors []string

	RetryCount  int
	RetryReason RetryReason
}

// SortedDays returns the keys of a day→units map in ascending order.
func SortedDays(m map[int]float64) []int {
	days := make([]int, 0, len(m))
	for d := range m {
		days = append(days, d)
	}
	sort.Ints(days)
	return days
}
