package model

import "time"

// RunMode names the workflow a run executed.
type RunMode string

const (
	ModeSubmit    RunMode = "submit"
	ModeInventory RunMode = "inventory"
	ModeFMUpload  RunMode = "fmupload"
)

// RunResult is the caller-owned outcome of one portal run. The engine
// holds no cross-run state; everything a caller or the history store
// needs is here.
type RunResult struct {
	ID       string  `json:"id"`
	Mode     RunMode `json:"mode"`
	Region   string  `json:"region"`
	Provider string  `json:"provider,omitempty"`
	FastPath bool    `json:"fast_path,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Results   []SubmissionResult `json:"results,omitempty"`
	FMResults []FMUploadResult   `json:"fm_results,omitempty"`
	Inventory []InventoryItem    `json:"inventory,omitempty"`

	// Warnings carries run-level notices such as imminent password expiry.
	Warnings []string `json:"warnings,omitempty"`
}

// RunSummary are the headline counts of a run.
type RunSummary struct {
	Success int `json:"success"`
	Partial int `json:"partial"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Summary tallies the run's per-record outcomes.
func (r RunResult) Summary() RunSummary {
	var s RunSummary
	count := func(res SubmissionResult) {
		switch {
		case res.Skipped:
			s.Skipped++
		case res.Success:
			s.Success++
		case res.Partial:
			s.Partial++
		default:
			s.Failed++
		}
	}
	for _, res := range r.Results {
		count(res)
	}
	for _, res := range r.FMResults {
		count(res.SubmissionResult)
	}
	return s
}
