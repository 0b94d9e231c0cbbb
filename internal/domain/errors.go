package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures so callers can react without string matching
type ErrorKind string

const (
	KindInsufficientData      ErrorKind = "InsufficientData"
	KindInfeasibleConstraints ErrorKind = "InfeasibleConstraints"
	KindPartialConvergence    ErrorKind = "PartialConvergence"
	KindLowSampleWarning      ErrorKind = "LowSampleWarning"
	KindInvalidWeights        ErrorKind = "InvalidWeights"
	KindInvalidRequest        ErrorKind = "InvalidRequest"
	KindNotFound              ErrorKind = "NotFound"
	KindInternal              ErrorKind = "Internal"
)

// Sentinels for errors.Is matching. Any *Error with the same Kind matches.
var (
	ErrInsufficientData      = &Error{Kind: KindInsufficientData}
	ErrInfeasibleConstraints = &Error{Kind: KindInfeasibleConstraints}
	ErrPartialConvergence    = &Error{Kind: KindPartialConvergence}
	ErrLowSampleWarning      = &Error{Kind: KindLowSampleWarning}
	ErrInvalidWeights        = &Error{Kind: KindInvalidWeights}
	ErrInvalidRequest        = &Error{Kind: KindInvalidRequest}
	ErrNotFound              = &Error{Kind: KindNotFound}
)

// Error is a classified engine error
type Error struct {
	Kind ErrorKind
	Op   string // operation that failed, e.g. "optimization.ComputeCovarianceMatrix"
	Msg  string
	Err  error
}

// NewError creates a classified error with a formatted message
func NewError(kind ErrorKind, op string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// WrapError classifies an underlying error
func WrapError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg != "" {
			msg += ": " + e.Err.Error()
		} else {
			msg = e.Err.Error()
		}
	}
	if msg == "" {
		msg = string(e.Kind)
	} else {
		msg = string(e.Kind) + ": " + msg
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
