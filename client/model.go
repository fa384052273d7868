package client

import (
	"errors"
	"fmt"
	"net/http"
)

// maxErrBodySize caps the amount of response body read when
// building an error for an unexpected status code.
const maxErrBodySize = 4 << 10 // 4KB

var (
	// ErrUnexpectedStatusCode is the sentinel error wrapped by [UnexpectedStatusError].
	ErrUnexpectedStatusCode = errors.New("unexpected status code")
	// ErrAuthFailure is joined with [ErrUnexpectedStatusCode] when the server
	// responds with 401 Unauthorized or 403 Forbidden.
	ErrAuthFailure = errors.New("auth failure")
)

// UnexpectedStatusError is returned when the HTTP response status code
// does not match the expected value. Header holds the response headers so
// callers can inspect quota or retry hints.
type UnexpectedStatusError struct {
	StatusCode int
	Body       string
	Header     http.Header
	Err        error
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("%v: %d, body: %s", e.Err, e.StatusCode, e.Body)
}

func (e *UnexpectedStatusError) Unwrap() error {
	return e.Err
}

// StatusCode extracts the status of an [*UnexpectedStatusError] in err's
// chain. It returns 0 when there is none.
func StatusCode(err error) int {
	if se, ok := errors.AsType[*UnexpectedStatusError](err); ok {
		return se.StatusCode
	}

	return 0
}

func statusErr(code int) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.Join(ErrUnexpectedStatusCode, ErrAuthFailure)
	default:
		return ErrUnexpectedStatusCode
	}
}
