package workload

import (
	"fmt"

	"google.golang.org/grpc/codes"
)

// StatusError is returned when an HTTP response carries an unexpected status.
type StatusError struct {
	StatusCode int
	Want       int // 0 when any non-error status was acceptable
	Body       string
}

func (e *StatusError) Error() string {
	if e.Want != 0 {
		return fmt.Sprintf("unexpected status %d, want %d", e.StatusCode, e.Want)
	}
	if e.Body == "" {
		return fmt.Sprintf("http status %d", e.StatusCode)
	}
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

// ExpectationError is returned when a JSON response value does not match.
type ExpectationError struct {
	Path    string
	Want    string
	Got     string
	Missing bool
}

func (e *ExpectationError) Error() string {
	if e.Missing {
		return fmt.Sprintf("json path %q not found, want %q", e.Path, e.Want)
	}
	return fmt.Sprintf("json path %q = %q, want %q", e.Path, e.Got, e.Want)
}

// RPCError is returned when a gRPC call ends with a non-OK status.
type RPCError struct {
	Code    codes.Code
	Message string
}

func (e *RPCError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("grpc status %s", e.Code)
	}
	return fmt.Sprintf("grpc status %s: %s", e.Code, e.Message)
}
