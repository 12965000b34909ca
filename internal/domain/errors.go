package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed taxonomy of checkout commit failures. Callers
// branch on the kind to decide retryability and which message to show.
type ErrorKind string

const (
	// KindValidation covers bad cart or payment data. No network call was
	// made; fixing the input and retrying is safe.
	KindValidation ErrorKind = "validation"

	// KindAlreadyInProgress means the double-write guard rejected a
	// second Commit while one was in flight.
	KindAlreadyInProgress ErrorKind = "already_in_progress"

	// KindAuthenticationRequired means the credential refresh failed.
	KindAuthenticationRequired ErrorKind = "authentication_required"

	// KindTimeout means the commit deadline elapsed.
	KindTimeout ErrorKind = "timeout"

	// KindCancelled means the caller abandoned the in-flight commit.
	KindCancelled ErrorKind = "cancelled"

	// KindNetwork covers transport-level failures; a retry may help.
	KindNetwork ErrorKind = "network"

	// KindDeclined means the remote service explicitly rejected the
	// business operation. Do not retry with the same request.
	KindDeclined ErrorKind = "declined"

	// KindInvalidTransition indicates a bug in stage sequencing. It is
	// fatal to the current session and should never reach a user.
	KindInvalidTransition ErrorKind = "invalid_transition"
)

// Retryable reports whether a failure of this kind may succeed if the
// same request is attempted again without changes.
func (k ErrorKind) Retryable() bool {
	return k == KindTimeout || k == KindNetwork
}

// CommitError is the structured error type for every failure the
// checkout core produces. The Kind is always set; the remaining fields
// are populated per kind.
type CommitError struct {
	Kind    ErrorKind
	Message string

	// From and To are set for invalid transitions.
	From Stage
	To   Stage

	// ItemIndex and ItemName are set for per-item validation failures.
	ItemIndex int
	ItemName  string

	// Err is the underlying cause, if any.
	Err error
}

func (e *CommitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// KindOf extracts the error kind from err, or KindNetwork when err is
// not a CommitError (an unclassified failure is treated as transport).
func KindOf(err error) ErrorKind {
	var ce *CommitError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindNetwork
}

// ValidationError builds a KindValidation error with the given message.
func ValidationError(message string) *CommitError {
	return &CommitError{Kind: KindValidation, Message: message}
}

// MissingDeductionQuantity reports a line item whose pricing tier did
// not carry a positive inventory deduction quantity. Index and name
// identify the offending cart entry.
func MissingDeductionQuantity(index int, name string) *CommitError {
	return &CommitError{
		Kind:      KindValidation,
		Message:   fmt.Sprintf("item %d (%s): missing or non-positive deduction quantity", index, name),
		ItemIndex: index,
		ItemName:  name,
	}
}

// AlreadyInProgress reports that the guard found stage in flight.
func AlreadyInProgress(stage Stage) *CommitError {
	return &CommitError{
		Kind:    KindAlreadyInProgress,
		Message: fmt.Sprintf("a checkout is already in progress (stage %s)", stage),
	}
}

// AuthenticationRequired wraps a credential refresh failure.
func AuthenticationRequired(err error) *CommitError {
	return &CommitError{
		Kind:    KindAuthenticationRequired,
		Message: "could not obtain a fresh session credential",
		Err:     err,
	}
}

// Timeout wraps a deadline-exceeded failure.
func Timeout(err error) *CommitError {
	return &CommitError{
		Kind:    KindTimeout,
		Message: "checkout timed out waiting for the commit service",
		Err:     err,
	}
}

// Cancelled wraps a caller-initiated cancellation.
func Cancelled(err error) *CommitError {
	return &CommitError{
		Kind:    KindCancelled,
		Message: "checkout was cancelled",
		Err:     err,
	}
}

// NetworkError wraps a transport-level failure.
func NetworkError(err error) *CommitError {
	return &CommitError{
		Kind:    KindNetwork,
		Message: "could not reach the commit service",
		Err:     err,
	}
}

// Declined reports an explicit business rejection. The message is the
// remote-supplied text when available, so the UI can show it verbatim.
func Declined(message string, err error) *CommitError {
	if message == "" {
		message = "the commit service declined the order"
	}
	return &CommitError{Kind: KindDeclined, Message: message, Err: err}
}

// InvalidTransition reports an illegal edge in the state machine.
func InvalidTransition(from, to Stage) *CommitError {
	return &CommitError{
		Kind:    KindInvalidTransition,
		Message: fmt.Sprintf("illegal stage transition %s -> %s", from, to),
		From:    from,
		To:      to,
	}
}

// ErrorDetail is the session-recorded form of a failure, exposed to the
// UI layer through LastError.
type ErrorDetail struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
}

// DetailOf converts any error into an ErrorDetail for session storage.
func DetailOf(err error) *ErrorDetail {
	var ce *CommitError
	if errors.As(err, &ce) {
		return &ErrorDetail{Kind: ce.Kind, Message: ce.Message, Retryable: ce.Kind.Retryable()}
	}
	return &ErrorDetail{Kind: KindNetwork, Message: err.Error(), Retryable: true}
}
