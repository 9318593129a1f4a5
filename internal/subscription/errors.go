package subscription

import (
	"errors"
	"fmt"
)

// Base error values.  Callers match them with errors.Is.
var (
	ErrUserNotFound     = errors.New("user not found")
	ErrInvalidPlan      = errors.New("invalid plan")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidMethod    = errors.New("invalid payment method")
	ErrInvalidDocument  = errors.New("invalid document type")
	ErrPlanUnchanged    = errors.New("plan unchanged")
	ErrPlanMoved        = errors.New("plan changed concurrently")
	ErrDuplicatePayment = errors.New("duplicate transaction id")
)

// Kind is the category of a failure.  Handlers map it to a status code.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindUpstream   Kind = "upstream"
)

// Error is a categorized failure of an engine operation.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "record_payment"
	Msg  string // human readable, safe to show to the caller
	Err  error  // underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the category of err, KindUpstream for anything that
// is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstream
}

// Message returns the caller-facing text of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return "internal error"
}

func notFound(op string, err error) error {
	return &Error{Kind: KindNotFound, Op: op, Msg: "user not found", Err: err}
}

func invalid(op string, err error, msg string) error {
	return &Error{Kind: KindValidation, Op: op, Msg: msg, Err: err}
}

func conflict(op string, err error, msg string) error {
	return &Error{Kind: KindConflict, Op: op, Msg: msg, Err: err}
}

// upstream wraps store or broker failures.  Err keeps the cause for
// logs; Msg stays generic for callers.
func upstream(op string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindUpstream, Op: op, Msg: "internal error", Err: err}
}
