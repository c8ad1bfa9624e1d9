package core

import (
	"errors"
	"fmt"
)

// Failure reasons recorded on items, checkpoints, and reports.
const (
	ReasonNoImageFound     = "no_image_found"
	ReasonMalformedImage   = "malformed_image"
	ReasonRemovalRejected  = "removal_rejected"
	ReasonWriteConflict    = "write_conflict"
	ReasonRecordMissing    = "record_missing"
	ReasonCancelled        = "cancelled"
	ReasonRetriesExhausted = "retries_exhausted"
)

// Contract errors shared across adapters.
var (
	ErrCatalogUnavailable = errors.New("backfill: catalog unavailable")
	ErrVersionConflict    = errors.New("backfill: record version conflict")
	ErrRecordMissing      = errors.New("backfill: record missing")
	ErrInvalidLookupKey   = errors.New("backfill: invalid lookup key")
	ErrCheckpointClosed   = errors.New("backfill: checkpoint store not open")
	ErrNoLineage          = errors.New("backfill: no resumable lineage")
)

// PermanentError marks a failure that retrying cannot fix. The reason is
// persisted with the item for operator follow-up.
type PermanentError struct {
	Reason string
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("permanent (%s)", e.Reason)
	}
	return fmt.Sprintf("permanent (%s): %v", e.Reason, e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps an error as a permanent failure with a recorded reason.
func Permanent(reason string, err error) error {
	return &PermanentError{Reason: reason, Err: err}
}

// TransientError marks a failure worth retrying within the budget.
type TransientError struct {
	Reason string
	Err    error
}

func (e *TransientError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transient (%s)", e.Reason)
	}
	return fmt.Sprintf("transient (%s): %v", e.Reason, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps an error as a retryable failure with a recorded reason.
func Transient(reason string, err error) error {
	return &TransientError{Reason: reason, Err: err}
}

// IsPermanent reports whether err is classified as permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// IsTransient reports whether err should be retried. Unclassified errors
// count as transient so that unknown failure modes get the retry budget.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return !IsPermanent(err)
}

// FailureReason extracts the recorded reason from a classified error, or
// an empty string for unclassified errors.
func FailureReason(err error) string {
	var pe *PermanentError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	var te *TransientError
	if errors.As(err, &te) {
		return te.Reason
	}
	return ""
}
