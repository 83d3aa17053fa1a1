package errs

import (
	"errors"
	"fmt"
	"time"
)

// Common sentinel errors for cross-layer signaling.
var (
	ErrNotFound = errors.New("not_found")
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid")
	// ErrUnprocessable is used for semantic validation failures (HTTP 422)
	ErrUnprocessable = errors.New("unprocessable")
	// ErrRecalculation marks a failed cascade; the whole mutation was rolled back.
	ErrRecalculation = errors.New("recalculation_failed")
)

// Conflicts raised by the ledger workflows.
var (
	ErrPeriodClosed      = &ConflictError{Code: "period_closed", Msg: "period is closed"}
	ErrNextPeriodExists  = &ConflictError{Code: "next_period_exists", Msg: "next month's period already exists"}
	ErrOpeningBalanceSet = &ConflictError{Code: "opening_balance_set", Msg: "opening balance already set"}
	ErrPredatesOpening   = &ConflictError{Code: "predates_opening_balance", Msg: "date precedes the opening balance date"}
)

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// Invalid is a shorthand constructor for ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError reports a missing entry or monthly period.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError reports a state transition the ledger refuses.
type ConflictError struct {
	Code string
	Msg  string
}

func (e *ConflictError) Error() string { return e.Msg }

func (e *ConflictError) Unwrap() error { return ErrConflict }

// RecalculationError wraps a storage failure hit while cascading balances or periods.
type RecalculationError struct {
	Stage string
	From  time.Time
	Err   error
}

func (e *RecalculationError) Error() string {
	return fmt.Sprintf("recalculate %s from %s: %v", e.Stage, e.From.Format(time.RFC3339), e.Err)
}

func (e *RecalculationError) Unwrap() []error { return []error{ErrRecalculation, e.Err} }
