/*
errors.go - Centralized error types for the pension engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Plan packages wrap these with plan context via ProcessorError.

ERROR CATEGORIES:
  1. Configuration errors - Missing rate tables, incomplete registration
  2. Enrollment errors    - Member attached to the wrong plan
  3. Lifecycle errors     - Invalid remittance transitions
  4. Submission errors    - External I/O failures (retryable by the caller)

PROPAGATION POLICY:
  Calculation errors are deterministic given their inputs and are never
  retried inside the engine; the caller must fix the data or configuration
  before recomputation. Age-ineligibility is NOT an error: it yields a
  zero-valued calculation so batch payroll runs are not interrupted.

USAGE:
  if errors.Is(err, pension.ErrRatesNotFound) { ... }

  var perr *pension.ProcessorError
  if errors.As(err, &perr) {
      switch perr.Code { ... }
  }

SEE ALSO:
  - rates.go: Returns ErrRatesNotFound
  - remittance.go: Returns lifecycle and submission errors
*/
package pension

import (
	"errors"
	"fmt"
)

// =============================================================================
// ERROR CODES - Stable identifiers upstream systems branch on
// =============================================================================

type ErrorCode string

const (
	CodeRatesNotFound        ErrorCode = "RATES_NOT_FOUND"
	CodeInvalidProvince      ErrorCode = "INVALID_PROVINCE"
	CodeMissingAccountNumber ErrorCode = "MISSING_ACCOUNT_NUMBER"
	CodeNotImplemented       ErrorCode = "NOT_IMPLEMENTED"
	CodeInvalidPeriod        ErrorCode = "INVALID_PERIOD"
	CodeSubmissionFailed     ErrorCode = "SUBMISSION_FAILED"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrRatesNotFound means no published rate table exists for the
	// requested plan and tax year. This is a configuration gap, fatal to
	// the calculation call, and is not retried internally.
	ErrRatesNotFound = errors.New("contribution rates not found")

	// ErrInvalidProvince means the member's jurisdiction does not match a
	// jurisdiction-restricted plan. This indicates an enrollment error
	// upstream, not bad period data.
	ErrInvalidProvince = errors.New("member jurisdiction does not match plan")

	// ErrMissingAccountNumber means employer registration is incomplete.
	// Blocks remittance submission only.
	ErrMissingAccountNumber = errors.New("employer account number not configured")

	// ErrNotImplemented means the production external-submission path is
	// absent. Blocks submission only; the engine fails fast rather than
	// silently no-oping.
	ErrNotImplemented = errors.New("production remittance submission not implemented")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrSubmissionFailed wraps external submission I/O failures. Retryable
	// by the caller under the idempotency constraint: re-submitting an
	// already-confirmed remittance returns the existing confirmation.
	ErrSubmissionFailed = errors.New("remittance submission failed")

	// ErrRemittanceNotFound is returned when a referenced remittance doesn't exist.
	ErrRemittanceNotFound = errors.New("remittance not found")

	// ErrInvalidTransition is returned when a remittance status change would
	// move backwards. Transitions are monotonic forward only.
	ErrInvalidTransition = errors.New("invalid remittance status transition")

	// ErrDuplicateRateTable is returned when loading a rate table for a
	// (plan, tax year) pair that is already published. Published tables are
	// immutable; new years require a new entry, not an edit.
	ErrDuplicateRateTable = errors.New("rate table already published for plan and tax year")
)

// =============================================================================
// PROCESSOR ERROR - Carries plan type and error code
// =============================================================================

// ProcessorError is the structured error every plan operation returns.
// It carries the plan type and a stable code so upstream systems can
// branch on kind rather than parsing messages.
type ProcessorError struct {
	Plan    PlanType
	Code    ErrorCode
	Message string
	Err     error
}

func (e *ProcessorError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Plan, e.Code, e.Message)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Plan, e.Code, e.Err)
}

func (e *ProcessorError) Unwrap() error { return e.Err }

// NewProcessorError wraps a sentinel with plan context.
func NewProcessorError(plan PlanType, code ErrorCode, err error, format string, args ...any) *ProcessorError {
	return &ProcessorError{
		Plan:    plan,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsConfigError returns true if the error signals a configuration gap the
// operator must fix (not bad period data).
func IsConfigError(err error) bool {
	return errors.Is(err, ErrRatesNotFound) ||
		errors.Is(err, ErrMissingAccountNumber) ||
		errors.Is(err, ErrNotImplemented)
}

// IsRetryable returns true if the error might succeed on retry. Only
// external submission I/O qualifies; calculation errors never do.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSubmissionFailed)
}

// IsEnrollmentError returns true if the member is attached to the wrong plan.
func IsEnrollmentError(err error) bool {
	return errors.Is(err, ErrInvalidProvince)
}
