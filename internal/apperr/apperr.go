// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

// Package apperr defines the gateway's fixed error taxonomy and the
// structured error type carried from adapters and services up to the HTTP
// layer. Every failure surfaced to a client has a stable code from this
// taxonomy and a correlation id; raw upstream bodies and stack traces are
// never part of a response.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error code.
type Code string

const (
	CodeBadInput           Code = "BAD_INPUT"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConflict           Code = "CONFLICT"
	CodeUpstreamNonStructured Code = "UPSTREAM_NON_STRUCTURED"
	CodeUpstreamParseError    Code = "UPSTREAM_PARSE_ERROR"
	CodeUpstreamInvalidShape  Code = "UPSTREAM_INVALID_SHAPE"
	CodeUpstreamHTTPError     Code = "UPSTREAM_HTTP_ERROR"
	CodeUpstreamTimeout       Code = "UPSTREAM_TIMEOUT"
	CodeUpstreamNetworkError  Code = "UPSTREAM_NETWORK_ERROR"
	CodeServiceUnavailable    Code = "SERVICE_UNAVAILABLE"
	CodeInternal              Code = "INTERNAL"
)

// Error is a classified gateway error. UpstreamStatus is set only for
// upstream-classified failures and reports the original HTTP status the
// upstream returned, not the status the gateway responds with.
type Error struct {
	Code           Code
	Message        string
	UpstreamStatus int
	Err            error
}

// New creates a classified error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a classified error wrapping an underlying cause. The cause
// is used for logging only and never serialized to clients.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithUpstreamStatus attaches the original upstream HTTP status.
func (e *Error) WithUpstreamStatus(status int) *Error {
	e.UpstreamStatus = status
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps a taxonomy code to the HTTP status the gateway responds
// with. Upstream classifications map to 502 regardless of what the upstream
// returned; an HTTP 200 carrying an HTML error page still becomes a 502.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeBadInput:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeUpstreamNonStructured, CodeUpstreamParseError, CodeUpstreamInvalidShape,
		CodeUpstreamHTTPError, CodeUpstreamTimeout, CodeUpstreamNetworkError:
		return http.StatusBadGateway
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// From extracts a classified error from err, or wraps it as INTERNAL.
// Services return *Error throughout; this is the safety net at the HTTP
// boundary for anything that slipped through unclassified.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(CodeInternal, "internal error", err)
}

// IsCode reports whether err carries the given taxonomy code.
func IsCode(err error, code Code) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == code
}
