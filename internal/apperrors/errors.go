// Package apperrors defines the error taxonomy shared by the request
// pipeline, the traced HTTP client, and the demo handlers.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// HandlerError is a deliberate 4xx/5xx returned by business logic. It is
// recorded by the pipeline and propagated to the transport layer as-is.
type HandlerError struct {
	Status  int
	Message string
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler error %d: %s", e.Status, e.Message)
}

// NewHandlerError creates a HandlerError with the given status and message.
func NewHandlerError(status int, message string) *HandlerError {
	return &HandlerError{Status: status, Message: message}
}

// TimeoutError indicates an outbound call exceeded its deadline.
// Callers map it to 504 by convention.
type TimeoutError struct {
	Service string
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout calling %s: %v", e.Service, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// UpstreamError indicates an outbound call failed at the transport level or
// returned an error status. Callers map it to 502 by convention.
type UpstreamError struct {
	Service string
	Status  int // zero for transport-level failures
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("upstream %s returned status %d", e.Service, e.Status)
	}
	return fmt.Sprintf("upstream %s unreachable: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// TypeName returns a short, label-safe name for an arbitrary error or panic
// value, used as the error_type metric label. Values are mapped onto the
// enumerated taxonomy first so that label cardinality stays bounded by the
// set of error types that can actually occur.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "none"
	}

	if err, ok := v.(error); ok {
		var timeout *TimeoutError
		if errors.As(err, &timeout) {
			return "TimeoutError"
		}
		var upstream *UpstreamError
		if errors.As(err, &upstream) {
			return "UpstreamError"
		}
		var handler *HandlerError
		if errors.As(err, &handler) {
			return "HandlerError"
		}
	}

	name := fmt.Sprintf("%T", v)
	name = strings.TrimPrefix(name, "*")
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}

// HTTPStatus maps an error onto the HTTP status the transport layer should
// surface: 504 for timeouts, 502 for upstream failures, the embedded status
// for handler errors, and 500 for anything unexpected.
func HTTPStatus(err error) int {
	var timeout *TimeoutError
	if errors.As(err, &timeout) {
		return http.StatusGatewayTimeout
	}
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return http.StatusBadGateway
	}
	var handler *HandlerError
	if errors.As(err, &handler) {
		return handler.Status
	}
	return http.StatusInternalServerError
}
