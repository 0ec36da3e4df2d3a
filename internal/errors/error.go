package errors

import "fmt"

// Category represents the type of error.
type Category string

const (
	CategoryConfig  Category = "config"
	CategoryServer  Category = "server"
	CategoryRuntime Category = "runtime"
	CategoryCLI     Category = "cli"
)

// SlateError is a structured error with a stable code, a fix
// suggestion, and a documentation link.
type SlateError struct {
	// Code is a unique error identifier (e.g., "E101").
	Code string

	// Category is the error type (config, server, etc.).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// DocURL is a link to documentation about this error.
	DocURL string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *SlateError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *SlateError) Unwrap() error {
	return e.Wrapped
}

// WithDetail adds a detailed explanation to the error.
func (e *SlateError) WithDetail(d string) *SlateError {
	e.Detail = d
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *SlateError) WithSuggestion(s string) *SlateError {
	e.Suggestion = s
	return e
}

// Wrap wraps another error.
func (e *SlateError) Wrap(err error) *SlateError {
	e.Wrapped = err
	return e
}

// New creates a SlateError from a registered error code.
func New(code string) *SlateError {
	template, ok := registry[code]
	if !ok {
		return &SlateError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &SlateError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
		DocURL:   template.DocURL,
	}
}

// Newf creates a new SlateError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *SlateError {
	return &SlateError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in a SlateError.
func FromError(err error, code string) *SlateError {
	if err == nil {
		return nil
	}
	if se, ok := err.(*SlateError); ok {
		return se
	}
	return New(code).Wrap(err)
}
