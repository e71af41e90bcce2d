// Package errors provides standardized error types and helpers for the stephanus codebase.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnsupported indicates an unsupported operation or format
	ErrUnsupported = errors.New("unsupported")

	// ErrMalformedToken indicates a string that is not exactly one citation token.
	ErrMalformedToken = errors.New("malformed citation token")
	// ErrOutOfRange indicates a token beyond every known work boundary.
	ErrOutOfRange = errors.New("citation out of range")
	// ErrAmbiguousSplit indicates a run with more than one possible split point.
	ErrAmbiguousSplit = errors.New("ambiguous citation split")
	// ErrTextChanged indicates a pass altered the visible text of a document.
	ErrTextChanged = errors.New("document text changed")
)

// NotFoundError represents a resource not found error with context
type NotFoundError struct {
	Resource string // Type of resource (e.g., "work", "table", "document")
	ID       string // Identifier of the resource
	Err      error  // Underlying error, if any
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNotFound
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string // Field name that failed validation
	Value   string // Value that failed validation
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// IOError represents an I/O operation error with context
type IOError struct {
	Operation string // Operation being performed (e.g., "read", "write", "open")
	Path      string // File/resource path involved
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// ParseError represents a parsing or deserialization error
type ParseError struct {
	Format  string // Format being parsed (e.g., "XML", "TSV", "profile")
	Path    string // File path, if applicable
	Message string // Error details
	Err     error  // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to parse %s at %s: %s", e.Format, e.Path, e.Message)
	}
	return fmt.Sprintf("failed to parse %s: %s", e.Format, e.Message)
}

func (e *ParseError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// UnsupportedError represents an unsupported feature or format
type UnsupportedError struct {
	Feature string // Feature or format that is unsupported
	Reason  string // Why it's not supported
	Err     error  // Underlying error, if any
}

func (e *UnsupportedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported %s: %s", e.Feature, e.Reason)
	}
	return fmt.Sprintf("unsupported %s", e.Feature)
}

func (e *UnsupportedError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrUnsupported
}

// TokenError reports a citation token that was recognized but could not be
// wrapped. It is recoverable: the token stays in the text.
type TokenError struct {
	Token  string // Raw token as found in the text
	Reason string // Short description
	Err    error  // ErrMalformedToken or ErrOutOfRange
}

func (e *TokenError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("token %q: %s", e.Token, e.Reason)
	}
	return fmt.Sprintf("token %q: %v", e.Token, e.Err)
}

func (e *TokenError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrMalformedToken
}

// NodeError reports a structural failure on one node. The node is left
// untouched and the position is kept for manual inspection.
type NodeError struct {
	Path     string // XPath-like position of the node
	Headword string // Headword of the enclosing entry, if known
	Err      error  // Underlying error
}

func (e *NodeError) Error() string {
	if e.Headword != "" {
		return fmt.Sprintf("node %s (%s): %v", e.Path, e.Headword, e.Err)
	}
	return fmt.Sprintf("node %s: %v", e.Path, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// Helper functions for creating common errors

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// NewValidation creates a ValidationError
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewIO creates an IOError
func NewIO(operation, path string, err error) *IOError {
	return &IOError{
		Operation: operation,
		Path:      path,
		Err:       err,
	}
}

// NewParse creates a ParseError
func NewParse(format, path, message string) *ParseError {
	return &ParseError{
		Format:  format,
		Path:    path,
		Message: message,
	}
}

// NewUnsupported creates an UnsupportedError
func NewUnsupported(feature, reason string) *UnsupportedError {
	return &UnsupportedError{
		Feature: feature,
		Reason:  reason,
	}
}

// NewMalformed creates a TokenError for a string that is not a citation token.
func NewMalformed(token, reason string) *TokenError {
	return &TokenError{
		Token:  token,
		Reason: reason,
		Err:    ErrMalformedToken,
	}
}

// NewOutOfRange creates a TokenError for a token beyond the last known boundary.
func NewOutOfRange(token, reason string) *TokenError {
	return &TokenError{
		Token:  token,
		Reason: reason,
		Err:    ErrOutOfRange,
	}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
