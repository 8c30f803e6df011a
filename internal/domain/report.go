package domain

import (
	"fmt"
	"time"
)

// Outcome summarizes an ingestion pass.
type Outcome string

const (
	OutcomeEmpty   Outcome = "empty"
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailure Outcome = "failure"
)

// BatchError records one whole-batch rejection.
type BatchError struct {
	Batch int    `json:"batch"`
	Size  int    `json:"size"`
	Error string `json:"error"`
	// Malformed is set when the backend refused the request itself (4xx).
	// Resending the same batch cannot succeed.
	Malformed bool `json:"malformed,omitempty"`
}

// IndexReport is the result of one ingestion pass.
type IndexReport struct {
	RowsSeen              int64         `json:"rows_seen"`
	RowsIndexed           int64         `json:"rows_indexed"`
	RowsSkippedValidation int64         `json:"rows_skipped_validation"`
	RowsRejected          int64         `json:"rows_rejected"`
	BatchesSubmitted      int64         `json:"batches_submitted"`
	BatchesFailed         int64         `json:"batches_failed"`
	ValidationErrors      []string      `json:"validation_errors,omitempty"`
	BatchErrors           []BatchError  `json:"batch_errors,omitempty"`
	Duration              time.Duration `json:"duration"`
}

// Outcome derives the overall verdict from the counters.
func (r *IndexReport) Outcome() Outcome {
	switch {
	case r.RowsSeen == 0:
		return OutcomeEmpty
	case r.RowsIndexed == 0:
		return OutcomeFailure
	case r.BatchesFailed > 0 || r.RowsRejected > 0 || r.RowsSkippedValidation > 0:
		return OutcomePartial
	default:
		return OutcomeSuccess
	}
}

func (r *IndexReport) String() string {
	return fmt.Sprintf("%s: seen=%d indexed=%d skipped=%d rejected=%d batches=%d failed_batches=%d in %s",
		r.Outcome(), r.RowsSeen, r.RowsIndexed, r.RowsSkippedValidation, r.RowsRejected,
		r.BatchesSubmitted, r.BatchesFailed, r.Duration.Round(time.Millisecond))
}
