package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrParseFailure marks a subject no rule could match. Routed to
	// manual triage, never fatal to a batch.
	ErrParseFailure = errors.New("subject parse failure")
	// ErrValidation marks a document rejected at ingest (missing case key).
	ErrValidation = errors.New("validation error")
	// ErrStoreUnavailable marks a transient document-store failure.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrAnalysisUnavailable marks a failed or timed-out analysis call.
	// Non-fatal to ingestion; the case stays retryable.
	ErrAnalysisUnavailable = errors.New("analysis unavailable")
	// ErrDuplicateMessage marks an already-processed source message. An
	// idempotent no-op, not a failure.
	ErrDuplicateMessage = errors.New("duplicate message")
	ErrNotFound         = errors.New("not found")
	ErrTemporary        = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
