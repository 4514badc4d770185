// Package errors is the typed error taxonomy shared by services and the HTTP
// layer. Services return *Error values; api/responses maps the code to a status
// and decides how much of the message reaches the client.
package errors

import (
	stdErrors "errors"
	"net/http"
)

// Code is the stable, client-visible identifier of an error class.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeOutOfStock    Code = "OUT_OF_STOCK"
	CodeInvalidState  Code = "INVALID_STATE"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeMalformed     Code = "UPSTREAM_MALFORMED"
	CodePaymentFailed Code = "PAYMENT_FAILED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Metadata describes how a code is surfaced over HTTP.
type Metadata struct {
	HTTPStatus int
	// Retryable marks transient failures a client may repeat unchanged.
	Retryable bool
	// PublicMessage replaces the error's own message when that message is
	// not safe to expose.
	PublicMessage string
	// DetailsAllowed lets Details through to the response body.
	DetailsAllowed bool
}

const (
	exposeDetails = 1 << iota
	transient
)

func meta(status int, public string, flags int) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      flags&transient != 0,
		DetailsAllowed: flags&exposeDetails != 0,
	}
}

var table = map[Code]Metadata{
	CodeValidation:    meta(http.StatusBadRequest, "validation failed", exposeDetails),
	CodeUnauthorized:  meta(http.StatusUnauthorized, "authentication required", 0),
	CodeForbidden:     meta(http.StatusForbidden, "access denied", 0),
	CodeNotFound:      meta(http.StatusNotFound, "resource not found", 0),
	CodeConflict:      meta(http.StatusConflict, "conflict detected", 0),
	CodeOutOfStock:    meta(http.StatusConflict, "out of stock", exposeDetails),
	CodeInvalidState:  meta(http.StatusUnprocessableEntity, "state transition disallowed", exposeDetails),
	CodeIdempotency:   meta(http.StatusConflict, "idempotency key reused", exposeDetails),
	CodeRateLimit:     meta(http.StatusTooManyRequests, "rate limit exceeded", 0),
	CodeMalformed:     meta(http.StatusBadRequest, "malformed upstream payload", 0),
	CodePaymentFailed: meta(http.StatusBadGateway, "payment could not be initiated", transient),
	CodeInternal:      meta(http.StatusInternalServerError, "internal server error", transient),
	CodeDependency:    meta(http.StatusServiceUnavailable, "dependency unavailable", transient|exposeDetails),
}

// MetadataFor falls back to CodeInternal for codes it does not know.
func MetadataFor(code Code) Metadata {
	if m, ok := table[code]; ok {
		return m
	}
	return table[CodeInternal]
}

// Error is a coded error with an optional cause and client-facing details.
// The zero of *Error (nil) reports CodeInternal.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap is New with a cause; a nil cause yields a plain New.
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

// WithDetails sets details in place and returns e for chaining.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause == nil {
		return string(e.code) + ": " + e.message
	}
	return string(e.code) + ": " + e.message + ": " + e.cause.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the outermost *Error in err's chain has code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}
