// api/schemas/errors.go
package schemas

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of a publishing run. Only precondition and
// transport failures abort a run; the others are recorded per field.
type ErrorKind string

const (
	KindPrecondition ErrorKind = "precondition"
	KindLocate       ErrorKind = "locate"
	KindInjection    ErrorKind = "injection"
	KindVerification ErrorKind = "verification"
	KindTransport    ErrorKind = "transport"
)

// Error is the structured error carried across package boundaries.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failure", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s failure: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an *Error.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an *Error with a formatted cause.
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsFatal reports whether err must unwind the whole run.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindPrecondition, KindTransport:
		return true
	}
	return false
}
