package resilience

import (
	"context"
	"errors"

	"foley/internal/services"
)

// Class is the triage bucket of a failed call.
type Class int

const (
	// ClassRetryable marks transient faults eligible for backoff.
	ClassRetryable Class = iota
	// ClassSkip marks a request the service will never accept; the caller
	// drops the item and continues.
	ClassSkip
	// ClassFatal marks a structurally unreachable service; the run aborts.
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassRetryable:
		return "retryable"
	case ClassSkip:
		return "skip"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classifier maps an error returned by an operation onto a Class.
type Classifier func(error) Class

// ClassifyServiceError triages errors tagged with the services markers.
// Untagged errors are treated as transient.
func ClassifyServiceError(err error) Class {
	switch {
	case err == nil:
		return ClassRetryable
	case errors.Is(err, context.Canceled):
		return ClassFatal
	case errors.Is(err, services.ErrUnavailable),
		errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrConfiguration),
		errors.Is(err, services.ErrContractViolation):
		return ClassFatal
	case errors.Is(err, services.ErrInvalidRequest):
		return ClassSkip
	default:
		// ErrTransient, ErrTimeout, ErrRateLimited, ErrExternalTool and
		// anything untagged.
		return ClassRetryable
	}
}
