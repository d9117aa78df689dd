package backend

import (
	"errors"
	"fmt"
)

// ReportedError is a well-formed backend answer with a negative outcome, or a
// success envelope whose payload could not be used.
type ReportedError struct {
	StatusCode int
	Message    string
	Malformed  bool
}

func (e *ReportedError) Error() string {
	if e.Malformed {
		return fmt.Sprintf("malformed backend response (status %d): %s", e.StatusCode, e.Message)
	}
	if e.Message == "" {
		return fmt.Sprintf("backend reported failure (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("backend reported failure (status %d): %s", e.StatusCode, e.Message)
}

// StatusError is a non-2xx answer that did not carry a response envelope,
// typically a proxy or gateway error page.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d", e.StatusCode)
}

// IsReported reports whether err came from a backend answer rather than the transport.
func IsReported(err error) bool {
	var reported *ReportedError
	return errors.As(err, &reported)
}
