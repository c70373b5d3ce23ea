package model

import (
	"fmt"
	"strings"
)

// BillingRecord is one consumer's expected attendance for one service/month,
// as supplied by the ingestion boundary. Records are treated as immutable.
type BillingRecord struct {
	UCI           string
	LastName      string
	FirstName     string
	AuthNumber    string
	SvcCode       string
	SvcSubcode    string // optional
	SvcMonthYear  string // M/YYYY or MM/YYYY
	SPNID         string // provider identity token
	ServiceDays   []int  // days of month, 1..31
	EnteredUnits  float64
	EnteredAmount float64
}

// ConsumerName returns the portal-style "Last, First" display name.
func (r BillingRecord) ConsumerName() string {
	switch {
	case r.LastName == "" && r.FirstName == "":
		return ""
	case r.FirstName == "":
		return r.LastName
	default:
		return r.LastName + ", " + r.FirstName
	}
}

// ValidationError reports a malformed input record rejected pre-flight,
// before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record: %s: %s", e.Field, e.Reason)
}

// Validate checks the record against the input contract. All fields are
// required except SvcSubcode.
func (r BillingRecord) Validate() error {
	if strings.TrimSpace(r.UCI) == "" {
		return &ValidationError{Field: "uci", Reason: "missing"}
	}
	if strings.TrimSpace(r.SvcCode) == "" {
		return &ValidationError{Field: "svc_code", Reason: "missing"}
	}
	if !validMonth(r.SvcMonthYear) {
		return &ValidationError{Field: "svc_month_year", Reason: "not M/YYYY"}
	}
	if len(r.ServiceDays) == 0 {
		return &ValidationError{Field: "service_days", Reason: "empty day list"}
	}
	for _, d := range r.ServiceDays {
		if d < 1 || d > 31 {
			return &ValidationError{Field: "service_days", Reason: fmt.Sprintf("day %d outside 1-31", d)}
		}
	}
	return nil
}
