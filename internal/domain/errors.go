package domain

import (
	"fmt"
	"strings"
)

// ParseError reports a malformed timestamp in a transaction field. It is
// fatal to the single encode call that hit it, never to a whole batch.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// MissingFieldError reports that an incoming transaction lacks one or more
// required fields. Validation of that transaction is aborted; no partial
// ValidationResult is produced.
type MissingFieldError struct {
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

// ProfileNotFoundError reports that a customer is unknown to the profile
// aggregator. Validation of that transaction is aborted.
type ProfileNotFoundError struct {
	CustomerID string
}

func (e *ProfileNotFoundError) Error() string {
	return fmt.Sprintf("no profile for customer %s", e.CustomerID)
}

// OracleTransportError reports that the advisory oracle call failed or timed
// out. It is never escalated to a pipeline failure: the advisory stage
// downgrades it to an explicit Error verdict so the transaction still routes
// to manual review.
type OracleTransportError struct {
	Err error
}

func (e *OracleTransportError) Error() string {
	return fmt.Sprintf("oracle transport: %v", e.Err)
}

func (e *OracleTransportError) Unwrap() error { return e.Err }

// ModelLoadError reports a missing or corrupt classifier artifact. Fatal at
// service start; nothing that depends on the classifier may run without it.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %s: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }
