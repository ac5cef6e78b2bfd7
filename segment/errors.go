package segment

import (
	"context"
	"errors"
	"net/http"
)

// ErrValidation matches every validation-kind Error through errors.Is.
var ErrValidation = errors.New("segment: invalid request")

// Kind classifies pipeline failures.
type Kind string

const (
	KindValidation Kind = "validation"
	KindCapture    Kind = "capture"
	KindRanking    Kind = "ranking"
	KindPromotion  Kind = "promotion"
	KindAdvisory   Kind = "advisory"
	KindTimeout    Kind = "timeout"
)

// HTTPStatus maps a kind to its response status.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Error is a pipeline failure. Stage names the step that failed, which for
// a timeout is the stage whose deadline expired.
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrValidation) hold for validation errors.
func (e *Error) Is(target error) bool {
	return target == ErrValidation && e.Kind == KindValidation
}

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Stage: "validation", Err: errors.New(msg)}
}

// stageError wraps err as a failure of stage. An error that is already an
// *Error is returned as is; an expired deadline becomes a timeout whatever
// the stage.
func stageError(kind Kind, stage string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Stage: stage, Err: err}
	}
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// KindOf returns the kind carried by err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
