package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code is the stable machine readable identifier clients switch on.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeLimitExceeded Code = "LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Class describes how a code surfaces over HTTP.
type Class struct {
	Status int
	// Public is sent when the error's own message must stay internal.
	Public        string
	ExposeMessage bool
	ExposeDetails bool
	Retryable     bool
}

var classes = map[Code]Class{
	CodeValidation:    {Status: http.StatusBadRequest, Public: "validation failed", ExposeMessage: true, ExposeDetails: true},
	CodeUnauthorized:  {Status: http.StatusUnauthorized, Public: "authentication required", ExposeMessage: true},
	CodeForbidden:     {Status: http.StatusForbidden, Public: "access denied", ExposeMessage: true},
	CodeNotFound:      {Status: http.StatusNotFound, Public: "resource not found", ExposeMessage: true},
	CodeConflict:      {Status: http.StatusConflict, Public: "conflict detected", ExposeMessage: true},
	CodeStateConflict: {Status: http.StatusUnprocessableEntity, Public: "action not allowed in current state", ExposeMessage: true, ExposeDetails: true},
	CodeIdempotency:   {Status: http.StatusConflict, Public: "idempotency key reused", ExposeMessage: true, ExposeDetails: true},
	CodeRateLimit:     {Status: http.StatusTooManyRequests, Public: "rate limit exceeded", ExposeMessage: true, Retryable: true},
	// Plan limits carry the tier and usage so clients can offer an upgrade.
	CodeLimitExceeded: {Status: http.StatusPaymentRequired, Public: "plan limit reached", ExposeMessage: true, ExposeDetails: true},
	CodeInternal:      {Status: http.StatusInternalServerError, Public: "internal server error", Retryable: true},
	CodeDependency:    {Status: http.StatusServiceUnavailable, Public: "dependency unavailable", ExposeDetails: true, Retryable: true},
}

// Lookup returns the class for code. Unknown codes are treated as internal.
func Lookup(code Code) Class {
	if c, ok := classes[code]; ok {
		return c
	}
	return classes[CodeInternal]
}

// Error is a coded application error. Its message is only shown to clients
// when the code's class allows it.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

// Wrap keeps err reachable through errors.Is and errors.As.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	default:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As finds the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// StatusFor resolves the HTTP status for any error after classification.
func StatusFor(err error) int {
	return Lookup(Classify(err).Code()).Status
}
