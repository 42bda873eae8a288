package services

import "errors"

var (
	ErrInvalidPDF     = errors.New("invalid pdf")
	ErrExtractionMiss = errors.New("extraction miss")
	ErrUploadFailed   = errors.New("order upload failed")
	// ErrCycleFatal marks a reconciliation prerequisite that failed. The ledger is left untouched.
	ErrCycleFatal = errors.New("reconciliation prerequisite failed")
)

// Outcome is the per-item result threaded through pipeline reports.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeMiss    Outcome = "miss"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)
