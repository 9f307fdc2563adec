package proxy

import (
	"errors"
	"fmt"
	"time"

	"mercator-hq/saturn/pkg/auth"
	"mercator-hq/saturn/pkg/proxy/types"
	"mercator-hq/saturn/pkg/upstream"
)

// TimeoutError indicates a forward attempt exceeded the per-attempt timeout
// before the backend produced response headers.
type TimeoutError struct {
	// Endpoint is the host:port key of the backend that timed out.
	Endpoint string

	// Timeout is the per-attempt limit that was exceeded.
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("backend %s did not respond within %s", e.Endpoint, e.Timeout)
}

// BackendFailureError indicates a forward attempt failed at the transport
// layer or returned a server-side error status.
type BackendFailureError struct {
	// Endpoint is the host:port key of the failing backend.
	Endpoint string

	// StatusCode is the HTTP status the backend returned, or zero when the
	// failure happened before any response arrived.
	StatusCode int

	// Cause is the underlying transport error, if any.
	Cause error
}

// Error implements the error interface.
func (e *BackendFailureError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend %s returned status %d", e.Endpoint, e.StatusCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("backend %s request failed: %v", e.Endpoint, e.Cause)
	}
	return fmt.Sprintf("backend %s request failed", e.Endpoint)
}

// Unwrap returns the underlying transport error.
func (e *BackendFailureError) Unwrap() error {
	return e.Cause
}

// HandleError converts gateway error types to OpenAI-compatible error
// responses. It maps authentication, authorization, routing, and forwarding
// errors to appropriate HTTP status codes and error formats.
//
// Example usage:
//
//	if err != nil {
//	    errResp := HandleError(err)
//	    WriteErrorResponse(w, errResp)
//	    return
//	}
func HandleError(err error) *types.ErrorResponse {
	var tokenErr *auth.InvalidTokenError
	if errors.As(err, &tokenErr) {
		return types.NewAuthenticationError(tokenErr.Error())
	}

	var groupErr *auth.GroupNotAllowedError
	if errors.As(err, &groupErr) {
		return types.NewPermissionDeniedError(groupErr.Error(), types.CodeGroupNotAllowed)
	}

	var backendErr *upstream.NoAvailableBackendError
	if errors.As(err, &backendErr) {
		return types.NewServiceUnavailableError(backendErr.Error())
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return types.NewGatewayTimeoutError(timeoutErr.Error())
	}

	var failureErr *BackendFailureError
	if errors.As(err, &failureErr) {
		return types.NewBadGatewayError(failureErr.Error())
	}

	// Default to internal server error for unknown errors
	return types.NewServerError(
		"An internal error occurred. Please try again later.",
	)
}
