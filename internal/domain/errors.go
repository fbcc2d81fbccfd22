package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common error conditions.
var (
	// ErrUpstream indicates that the literature API answered with a non-success status.
	ErrUpstream = errors.New("upstream request failed")

	// ErrMalformedResponse indicates that the literature API answered successfully
	// but the body could not be decoded into the expected structure.
	ErrMalformedResponse = errors.New("malformed upstream response")

	// ErrValidation indicates that a snapshot or catalog violated one or more invariants.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidInput indicates that an input file could not be decoded at all.
	ErrInvalidInput = errors.New("invalid input")
)

// UpstreamHTTPError provides details about a non-2xx response from the literature API.
type UpstreamHTTPError struct {
	Source     string
	Endpoint   string
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *UpstreamHTTPError) Error() string {
	return fmt.Sprintf("%s %s request failed (%d): %s", e.Source, e.Endpoint, e.StatusCode, e.Body)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *UpstreamHTTPError) Unwrap() error {
	return ErrUpstream
}

// MalformedResponseError provides details about an undecodable upstream body.
type MalformedResponseError struct {
	Source   string
	Endpoint string
	Reason   string
	Cause    error
}

// Error implements the error interface.
func (e *MalformedResponseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s returned a malformed response: %s: %v", e.Source, e.Endpoint, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s %s returned a malformed response: %s", e.Source, e.Endpoint, e.Reason)
}

// Unwrap returns both the sentinel and the decoding cause.
func (e *MalformedResponseError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrMalformedResponse}
	}
	return []error{ErrMalformedResponse, e.Cause}
}

// ValidationFailure collects every invariant violation found in one pass.
type ValidationFailure struct {
	Subject string
	Issues  []string
}

// Error renders the failure as a single multi-line summary.
func (e *ValidationFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed validation (%d issues):", e.Subject, len(e.Issues))
	for _, issue := range e.Issues {
		b.WriteString("\n- ")
		b.WriteString(issue)
	}
	return b.String()
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationFailure) Unwrap() error {
	return ErrValidation
}

// NewUpstreamHTTPError creates a new UpstreamHTTPError.
func NewUpstreamHTTPError(source, endpoint string, statusCode int, body string) *UpstreamHTTPError {
	return &UpstreamHTTPError{
		Source:     source,
		Endpoint:   endpoint,
		StatusCode: statusCode,
		Body:       body,
	}
}

// NewMalformedResponseError creates a new MalformedResponseError.
func NewMalformedResponseError(source, endpoint, reason string, cause error) *MalformedResponseError {
	return &MalformedResponseError{
		Source:   source,
		Endpoint: endpoint,
		Reason:   reason,
		Cause:    cause,
	}
}

// NewValidationFailure creates a ValidationFailure, or returns nil when there are no issues.
func NewValidationFailure(subject string, issues []string) error {
	if len(issues) == 0 {
		return nil
	}
	return &ValidationFailure{
		Subject: subject,
		Issues:  issues,
	}
}
