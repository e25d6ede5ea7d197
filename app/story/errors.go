package story

import (
	"errors"
	"fmt"
)

var (
	ErrOracleUnavailable       = errors.New("text oracle not configured")
	ErrOracleFailed            = errors.New("text oracle request failed")
	ErrOracleRefused           = errors.New("text oracle refused the prompt")
	ErrMalformedOracleResponse = errors.New("malformed oracle response")
	ErrEmptyContinuation       = errors.New("ghostwriter produced no usable text")
	ErrStoryNotFound           = errors.New("story not found")
	ErrStoryNotActive          = errors.New("story is not active")
	ErrInvalidDate             = errors.New("invalid date")
)

type Kind string

const (
	KindUnauthenticated    Kind = "unauthenticated"
	KindInvalidArgument    Kind = "invalid-argument"
	KindPermissionDenied   Kind = "permission-denied"
	KindFailedPrecondition Kind = "failed-precondition"
	KindInternal           Kind = "internal"
)

// Error is a submission failure surfaced to the caller.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf reports the kind of a submission error; unknown errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsOracleError reports failures a later tick may resolve on its own.
func IsOracleError(err error) bool {
	return errors.Is(err, ErrOracleUnavailable) ||
		errors.Is(err, ErrOracleFailed) ||
		errors.Is(err, ErrOracleRefused) ||
		errors.Is(err, ErrMalformedOracleResponse) ||
		errors.Is(err, ErrEmptyContinuation)
}
