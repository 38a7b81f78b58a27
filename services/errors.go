package services

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed or out-of-range input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func newValidationError(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown prediction id.
type NotFoundError struct {
	PredictionID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("prediction %q not found", e.PredictionID)
}

// AlreadyFeedbackError reports a second feedback for the same prediction.
type AlreadyFeedbackError struct {
	PredictionID string
}

func (e *AlreadyFeedbackError) Error() string {
	return fmt.Sprintf("prediction %q already has feedback", e.PredictionID)
}

// TenantComputeError wraps a whole-tenant failure of the stats recompute.
type TenantComputeError struct {
	TenantID int64
	Err      error
}

func (e *TenantComputeError) Error() string {
	return fmt.Sprintf("recompute tenant %d: %v", e.TenantID, e.Err)
}

func (e *TenantComputeError) Unwrap() error { return e.Err }

// UpstreamUnavailableError marks a failed read from a store this service depends on.
type UpstreamUnavailableError struct {
	Source string
	Err    error
}

func (e *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Source, e.Err)
}

func (e *UpstreamUnavailableError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsAlreadyFeedback(err error) bool {
	var target *AlreadyFeedbackError
	return errors.As(err, &target)
}

func IsUpstreamUnavailable(err error) bool {
	var target *UpstreamUnavailableError
	return errors.As(err, &target)
}
