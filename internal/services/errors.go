package services

import (
	"context"
	"errors"
	"fmt"
	"net"

	"storefront-commerce-api/internal/client"
)

// ErrorKind classifies service failures; the HTTP layer maps kinds to status codes
type ErrorKind string

const (
	KindConfiguration      ErrorKind = "configuration_error"
	KindUpstreamAuth       ErrorKind = "upstream_auth_error"
	KindUpstreamCatalog    ErrorKind = "upstream_catalog_error"
	KindNotFound           ErrorKind = "not_found"
	KindMapping            ErrorKind = "mapping_error"
	KindServiceUnavailable ErrorKind = "service_unavailable"
	KindInvalidRequest     ErrorKind = "invalid_request"
	KindBadGateway         ErrorKind = "bad_gateway"
)

// Failure modes of an upstream call without a usable status code
const (
	FailureTimeout   = "timeout"
	FailureNetwork   = "network"
	FailureMalformed = "malformed_response"
)

// Error is the tagged error returned by every service operation
type Error struct {
	Kind    ErrorKind
	Message string

	// Upstream status and detail, set for upstream errors with a response
	UpstreamStatus int
	Detail         string

	// Failure is set for upstream errors without a response status
	Failure string

	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.UpstreamStatus > 0 {
		msg += fmt.Sprintf(" (upstream status %d)", e.UpstreamStatus)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a service error, empty for foreign errors
func KindOf(err error) ErrorKind {
	var serviceErr *Error
	if errors.As(err, &serviceErr) {
		return serviceErr.Kind
	}
	return ""
}

func newError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func configurationError(format string, args ...interface{}) *Error {
	return newError(KindConfiguration, fmt.Sprintf(format, args...))
}

// upstreamError classifies a client error under kind
func upstreamError(kind ErrorKind, message string, err error) *Error {
	serviceErr := &Error{Kind: kind, Message: message, Err: err}

	var respErr *client.ResponseError
	var netErr net.Error
	switch {
	case errors.As(err, &respErr):
		serviceErr.UpstreamStatus = respErr.StatusCode
		serviceErr.Detail = respErr.Detail()
	case errors.Is(err, client.ErrMalformedResponse):
		serviceErr.Failure = FailureMalformed
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		serviceErr.Failure = FailureTimeout
	default:
		serviceErr.Failure = FailureNetwork
	}
	return serviceErr
}
