// Package apierr defines the error taxonomy shared by the rentwheels API and
// its clients. Servers encode errors with a stable code; clients decode the
// code back into the matching sentinel so callers can use errors.Is.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrUnauthenticated     = errors.New("authentication required")
	ErrAuthorizationDenied = errors.New("not authorized")
	ErrSelfBookingDenied   = errors.New("cannot book your own car")
	ErrAlreadyBooked       = errors.New("car is already booked")
	ErrNotFound            = errors.New("not found")
	ErrNetwork             = errors.New("network error")
	ErrServer              = errors.New("server error")
	ErrEmailInUse          = errors.New("email already in use")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrRateLimited         = errors.New("too many attempts, try again later")
	ErrUserCancelled       = errors.New("sign-in cancelled")
	ErrProvider            = errors.New("identity provider error")
	ErrRequestInFlight     = errors.New("a request for this action is already in progress")
	ErrAuthInProgress      = errors.New("another sign-in operation is in progress")
)

// Code is the stable wire identifier of an error kind.
type Code string

const (
	CodeValidation          Code = "validation_error"
	CodeUnauthenticated     Code = "unauthenticated"
	CodeAuthorizationDenied Code = "authorization_denied"
	CodeSelfBookingDenied   Code = "self_booking_denied"
	CodeAlreadyBooked       Code = "already_booked"
	CodeNotFound            Code = "not_found"
	CodeServer              Code = "server_error"
	CodeEmailInUse          Code = "email_in_use"
	CodeInvalidCredentials  Code = "invalid_credentials"
	CodeRateLimited         Code = "rate_limited"
	CodeProvider            Code = "provider_error"
)

type kind struct {
	code     Code
	status   int
	sentinel error
}

var kinds = []kind{
	{CodeValidation, http.StatusBadRequest, ErrValidation},
	{CodeUnauthenticated, http.StatusUnauthorized, ErrUnauthenticated},
	{CodeAuthorizationDenied, http.StatusForbidden, ErrAuthorizationDenied},
	{CodeSelfBookingDenied, http.StatusForbidden, ErrSelfBookingDenied},
	{CodeAlreadyBooked, http.StatusConflict, ErrAlreadyBooked},
	{CodeNotFound, http.StatusNotFound, ErrNotFound},
	{CodeEmailInUse, http.StatusConflict, ErrEmailInUse},
	{CodeInvalidCredentials, http.StatusUnauthorized, ErrInvalidCredentials},
	{CodeRateLimited, http.StatusTooManyRequests, ErrRateLimited},
	{CodeProvider, http.StatusBadGateway, ErrProvider},
	{CodeServer, http.StatusInternalServerError, ErrServer},
}

// Error is the wire representation of a failed request.
type Error struct {
	Status  int
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return e.Message
}

// Unwrap maps the wire code back to its sentinel.
func (e *Error) Unwrap() error {
	for _, k := range kinds {
		if k.code == e.Code {
			return k.sentinel
		}
	}
	if e.Status >= http.StatusInternalServerError {
		return ErrServer
	}
	switch e.Status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrValidation
	case http.StatusUnauthorized:
		return ErrUnauthenticated
	case http.StatusForbidden:
		return ErrAuthorizationDenied
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrAlreadyBooked
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	return nil
}

// Classify returns the status code and wire code for err. Unknown errors are
// reported as server errors.
func Classify(err error) (int, Code) {
	var wire *Error
	if errors.As(err, &wire) && wire.Code != "" {
		return wire.Status, wire.Code
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.status, k.code
		}
	}
	return http.StatusInternalServerError, CodeServer
}

// Validation wraps a message so it unwraps to ErrValidation.
func Validation(format string, args ...any) error {
	return &Error{Status: http.StatusBadRequest, Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}
