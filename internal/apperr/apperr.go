package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is returned (wrapped) by the store when a row does not exist.
var ErrNotFound = errors.New("not found")

type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindTransient  Kind = "transient"
	KindFatal      Kind = "fatal"
)

type Error struct {
	Kind    Kind
	Status  int
	Code    string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("api error (%d)", e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(err error, details any) *Error {
	return &Error{Kind: KindValidation, Status: http.StatusBadRequest, Code: "VALIDATION_ERROR", Details: details, Err: err}
}

func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Status: http.StatusNotFound, Code: "NOT_FOUND", Err: fmt.Errorf("%s %w", what, ErrNotFound)}
}

func Conflict(code string, err error) *Error {
	return &Error{Kind: KindConflict, Status: http.StatusConflict, Code: code, Err: err}
}

func Fatal(code string, err error) *Error {
	return &Error{Kind: KindFatal, Status: http.StatusInternalServerError, Code: code, Err: err}
}

func Transient(err error) *Error {
	return &Error{Kind: KindTransient, Status: http.StatusServiceUnavailable, Code: "DEGRADED", Err: err}
}

// IsNotFound reports whether err is a not-found of either form.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var e *Error
	return errors.As(err, &e) && e.Kind == KindNotFound
}

// StatusOf picks the HTTP status for err, defaulting to 500.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Status != 0 {
		return e.Status
	}
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
