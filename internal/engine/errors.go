package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/custody/internal/audit"
	"github.com/roach88/custody/internal/chamber"
)

// Error is returned for every rejected operation.
//
// Each violated guard maps to exactly one Code; Reason names the specific
// parameter check for the argument-validation codes (for example
// "percentage-sum" or "cooldown-range") so distinct conditions stay
// distinguishable in tests and in CLI output.
type Error struct {
	// Code identifies the guard that failed.
	Code ErrorCode

	// Op is the operation that was rejected.
	Op chamber.Op

	// ChamberID is the addressed chamber, 0 for creation and control calls.
	ChamberID uint64

	// Reason names the failed check. Empty for the structural guards.
	Reason string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause (ledger errors for TRANSFER_FAILED).
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodePermissionDenied indicates the caller holds no role the operation admits.
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// ErrCodeNotFound indicates no record exists for an in-range id.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeAlreadyProcessed indicates the chamber's status rejects the operation.
	ErrCodeAlreadyProcessed ErrorCode = "ALREADY_PROCESSED"

	// ErrCodeTransferFailed indicates the ledger refused a value movement.
	ErrCodeTransferFailed ErrorCode = "TRANSFER_FAILED"

	// ErrCodeInvalidIdentifier indicates an id above the counter.
	ErrCodeInvalidIdentifier ErrorCode = "INVALID_IDENTIFIER"

	// ErrCodeInvalidQuantity indicates a zero or overflowing quantity.
	ErrCodeInvalidQuantity ErrorCode = "INVALID_QUANTITY"

	// ErrCodeInvalidParty indicates a self-reference or duplicate-party violation.
	ErrCodeInvalidParty ErrorCode = "INVALID_PARTY"

	// ErrCodeTimeout indicates the chamber's expiration has passed.
	ErrCodeTimeout ErrorCode = "TIMEOUT"

	// ErrCodeTooEarly indicates the expiration or retrieval delay has not elapsed.
	ErrCodeTooEarly ErrorCode = "TOO_EARLY"

	// ErrCodeInvalidArgument indicates an operation argument failed validation.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Reason != "" {
		msg = e.Reason + ": " + msg
	}
	if e.ChamberID != 0 {
		return fmt.Sprintf("%s: %s (op=%s, chamber=%d)", e.Code, msg, e.Op, e.ChamberID)
	}
	return fmt.Sprintf("%s: %s (op=%s)", e.Code, msg, e.Op)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// ReasonOf returns the Reason of the first *Error in err's chain.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// EmitError is returned when an operation committed but its audit event did
// not reach every sink. The record change and any ledger transfer stand.
//
// Stored reports whether the event reached the store's audit log. If it did
// not, its seq is issued again to the next event, so the log stays gap-free.
type EmitError struct {
	Event  audit.Event
	Stored bool
	Err    error
}

func (e *EmitError) Error() string {
	return fmt.Sprintf("emit %s event seq %d: %v", e.Event.Action, e.Event.Seq, e.Err)
}

func (e *EmitError) Unwrap() error {
	return e.Err
}

// Committed reports whether err belongs to an operation whose state change
// was committed, that is err is nil or an *EmitError.
func Committed(err error) bool {
	var e *EmitError
	return err == nil || errors.As(err, &e)
}

// storedInLog reports whether err is nil or an *EmitError past the store.
func storedInLog(err error) bool {
	var e *EmitError
	if errors.As(err, &e) {
		return e.Stored
	}
	return err == nil
}

func newError(code ErrorCode, op chamber.Op, id uint64, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, ChamberID: id, Message: fmt.Sprintf(format, args...)}
}

// invalidArg builds an argument-validation error carrying reason.
func invalidArg(code ErrorCode, op chamber.Op, id uint64, reason, format string, args ...any) *Error {
	e := newError(code, op, id, format, args...)
	e.Reason = reason
	return e
}

func transferFailed(op chamber.Op, id uint64, err error) *Error {
	return &Error{
		Code:      ErrCodeTransferFailed,
		Op:        op,
		ChamberID: id,
		Message:   "ledger refused value movement",
		Err:       err,
	}
}
