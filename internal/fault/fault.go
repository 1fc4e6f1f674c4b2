// Package fault defines the error taxonomy shared across the pipeline and
// maps each kind to an HTTP status for the serve layer.
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError indicates the caller supplied incomplete or malformed input.
// The request must be resubmitted with complete data.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NewValidation builds a ValidationError for a named input field.
func NewValidation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError indicates a referenced message or project does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// NewNotFound builds a NotFoundError for a resource and id.
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// UpstreamError indicates a mail, reasoning, or billing call failed at the
// transport level. Not retried synchronously; the poll cadence is the retry.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// NewUpstream wraps a transport failure from a named external service.
func NewUpstream(service string, err error) *UpstreamError {
	return &UpstreamError{Service: service, Err: err}
}

// ParseError indicates the reasoning service answered but the response could
// not be parsed as the expected structure. Must never be swallowed into a
// partially-default persisted row.
type ParseError struct {
	Service string
	Raw     string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: unparseable response: %v", e.Service, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NewParse wraps a structured-output parse failure. Raw keeps the offending
// text for logging; it is never returned to HTTP clients.
func NewParse(service, raw string, err error) *ParseError {
	return &ParseError{Service: service, Raw: raw, Err: err}
}

// StorageError indicates an insert/update against the relational store failed.
// Op names the operation shape, not the payload, so logs do not leak message
// content indiscriminately.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorage wraps a store write failure for the named operation.
func NewStorage(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// HTTPStatus maps an error chain to the response code the serve layer returns.
func HTTPStatus(err error) int {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest
	}
	var nfe *NotFoundError
	if errors.As(err, &nfe) {
		return http.StatusNotFound
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Message returns the short machine-readable string sent to clients. Stack
// traces and upstream payloads stay in the logs.
func Message(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	var nfe *NotFoundError
	if errors.As(err, &nfe) {
		return nfe.Error()
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return fmt.Sprintf("%s unavailable", ue.Service)
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return fmt.Sprintf("%s returned an unparseable response", pe.Service)
	}
	var se *StorageError
	if errors.As(err, &se) {
		return fmt.Sprintf("storage failure during %s", se.Op)
	}
	return "internal error"
}

// IsValidation reports whether the chain contains a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether the chain contains a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// IsParse reports whether the chain contains a ParseError.
func IsParse(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
