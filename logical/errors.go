package logical

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes returned in the error envelope.
const (
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeBadGateway         = "BAD_GATEWAY"
	CodeUpstreamTimeout    = "UPSTREAM_TIMEOUT"
	CodeInternal           = "INTERNAL_ERROR"
	CodeBadRequest         = "BAD_REQUEST"
)

// CodedError is an error that carries an HTTP status and a stable code.
// Stages return it to reject a request; the pipeline turns it into the
// error envelope.
type CodedError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *CodedError) Unwrap() error {
	return e.Err
}

// ErrRateLimited creates a 429 error.
func ErrRateLimited(message string) *CodedError {
	return &CodedError{Status: http.StatusTooManyRequests, Code: CodeRateLimitExceeded, Message: message}
}

// ErrUnauthorized creates a 401 error.
func ErrUnauthorized(message string) *CodedError {
	return &CodedError{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: message}
}

// ErrForbidden creates a 403 error.
func ErrForbidden(message string) *CodedError {
	return &CodedError{Status: http.StatusForbidden, Code: CodeForbidden, Message: message}
}

// ErrNotFound creates a 404 error.
func ErrNotFound(message string) *CodedError {
	return &CodedError{Status: http.StatusNotFound, Code: CodeNotFound, Message: message}
}

// ErrNotFoundf creates a formatted 404 error.
func ErrNotFoundf(format string, args ...any) *CodedError {
	return ErrNotFound(fmt.Sprintf(format, args...))
}

// ErrBadRequest creates a 400 error.
func ErrBadRequest(message string) *CodedError {
	return &CodedError{Status: http.StatusBadRequest, Code: CodeBadRequest, Message: message}
}

// ErrServiceUnavailable creates a 503 error.
func ErrServiceUnavailable(message string) *CodedError {
	return &CodedError{Status: http.StatusServiceUnavailable, Code: CodeServiceUnavailable, Message: message}
}

// ErrServiceUnavailablef creates a formatted 503 error.
func ErrServiceUnavailablef(format string, args ...any) *CodedError {
	return ErrServiceUnavailable(fmt.Sprintf(format, args...))
}

// ErrBadGateway creates a 502 error.
func ErrBadGateway(message string) *CodedError {
	return &CodedError{Status: http.StatusBadGateway, Code: CodeBadGateway, Message: message}
}

// ErrUpstreamTimeout creates a 504 error.
func ErrUpstreamTimeout(message string) *CodedError {
	return &CodedError{Status: http.StatusGatewayTimeout, Code: CodeUpstreamTimeout, Message: message}
}

// ErrInternal creates a 500 error.
func ErrInternal(message string) *CodedError {
	return &CodedError{Status: http.StatusInternalServerError, Code: CodeInternal, Message: message}
}

// Wrap attaches cause to a coded error without changing what the client sees.
func (e *CodedError) Wrap(cause error) *CodedError {
	out := *e
	out.Err = cause
	return &out
}

// AsCodedError returns the CodedError in err's chain, or an INTERNAL_ERROR
// wrapping err when there is none. The message of a non-coded error is never
// exposed.
func AsCodedError(err error) *CodedError {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded
	}
	return ErrInternal("internal error").Wrap(err)
}

// GetErrorCode extracts the HTTP status from an error.
func GetErrorCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return AsCodedError(err).Status
}
