package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeName_TaxonomyErrors(t *testing.T) {
	assert.Equal(t, "TimeoutError", TypeName(&TimeoutError{Service: "s"}))
	assert.Equal(t, "UpstreamError", TypeName(&UpstreamError{Service: "s"}))
	assert.Equal(t, "HandlerError", TypeName(NewHandlerError(http.StatusBadRequest, "bad")))
}

func TestTypeName_WrappedTaxonomyErrors(t *testing.T) {
	wrapped := fmt.Errorf("call failed: %w", &TimeoutError{Service: "s"})
	assert.Equal(t, "TimeoutError", TypeName(wrapped))
}

func TestTypeName_ArbitraryValues(t *testing.T) {
	assert.Equal(t, "none", TypeName(nil))
	assert.Equal(t, "string", TypeName("panic message"))
	assert.Equal(t, "int", TypeName(42))
	assert.Equal(t, "errorString", TypeName(errors.New("boom")))
}

func TestHTTPStatus_Mapping(t *testing.T) {
	assert.Equal(t, http.StatusGatewayTimeout, HTTPStatus(&TimeoutError{Service: "s"}))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(&UpstreamError{Service: "s"}))
	assert.Equal(t, http.StatusTeapot, HTTPStatus(NewHandlerError(http.StatusTeapot, "short and stout")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("unknown")))
}

func TestHTTPStatus_WrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", &UpstreamError{Service: "s", Status: 503})
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(wrapped))
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "handler error 400: bad input", NewHandlerError(400, "bad input").Error())

	timeout := &TimeoutError{Service: "httpbin", Err: errors.New("deadline exceeded")}
	assert.Contains(t, timeout.Error(), "httpbin")

	withStatus := &UpstreamError{Service: "httpbin", Status: 503}
	assert.Equal(t, "upstream httpbin returned status 503", withStatus.Error())

	transport := &UpstreamError{Service: "httpbin", Err: errors.New("connection refused")}
	assert.Contains(t, transport.Error(), "unreachable")
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	assert.ErrorIs(t, &TimeoutError{Err: cause}, cause)
	assert.ErrorIs(t, &UpstreamError{Err: cause}, cause)
}
