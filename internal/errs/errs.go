// Package errs classifies pipeline failures so callers can map them to exit
// codes without string matching. Every error names the offending path, field,
// or expected-vs-actual value; nothing is downgraded to a warning.
package errs

import (
	"errors"
	"fmt"

	"github.com/vibefi/vibepack/pkg/exitcode"
)

type Category string

const (
	CategoryStructural Category = "structural"
	CategoryPolicy     Category = "policy_violation"
	CategoryIntegrity  Category = "integrity"
	CategoryTransport  Category = "transport"
	CategorySizeLimit  Category = "size_limit"
)

type classifiedError struct {
	category Category
	cause    error
}

func (e *classifiedError) Error() string {
	if e.cause == nil {
		return string(e.category)
	}
	return e.cause.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.cause
}

// New creates a classified error from a format string.
func New(category Category, format string, args ...interface{}) error {
	return &classifiedError{
		category: category,
		cause:    fmt.Errorf(format, args...),
	}
}

// Wrap classifies an existing error, preserving it for errors.Is/As.
func Wrap(cause error, category Category, format string, args ...interface{}) error {
	if cause == nil {
		return nil
	}
	args = append(args, cause)
	return &classifiedError{
		category: category,
		cause:    fmt.Errorf(format+": %w", args...),
	}
}

// Structural reports a missing or wrong-kind required entry or an
// unrecognizable layout.
func Structural(format string, args ...interface{}) error {
	return New(CategoryStructural, format, args...)
}

// Policy reports a disallowed dependency, version, extension, pattern, or
// malformed descriptor field.
func Policy(format string, args ...interface{}) error {
	return New(CategoryPolicy, format, args...)
}

// Integrity reports a recomputed identifier mismatch.
func Integrity(format string, args ...interface{}) error {
	return New(CategoryIntegrity, format, args...)
}

// Transport reports a failed network call or non-success response.
func Transport(format string, args ...interface{}) error {
	return New(CategoryTransport, format, args...)
}

// SizeLimit reports an identifier exceeding the configured maximum length.
func SizeLimit(format string, args ...interface{}) error {
	return New(CategorySizeLimit, format, args...)
}

// CategoryOf returns the category of a classified error, or "" for
// unclassified errors.
func CategoryOf(err error) Category {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.category
	}
	return ""
}

func IsStructural(err error) bool { return CategoryOf(err) == CategoryStructural }
func IsPolicy(err error) bool     { return CategoryOf(err) == CategoryPolicy }
func IsIntegrity(err error) bool  { return CategoryOf(err) == CategoryIntegrity }
func IsTransport(err error) bool  { return CategoryOf(err) == CategoryTransport }
func IsSizeLimit(err error) bool  { return CategoryOf(err) == CategorySizeLimit }

// ExitCode maps a classified error to the CLI exit code for its category.
func ExitCode(err error) int {
	switch CategoryOf(err) {
	case CategoryStructural:
		return exitcode.StructuralError
	case CategoryPolicy:
		return exitcode.PolicyError
	case CategoryIntegrity:
		return exitcode.IntegrityError
	case CategoryTransport:
		return exitcode.NetworkError
	case CategorySizeLimit:
		return exitcode.SizeLimitError
	default:
		return exitcode.GeneralError
	}
}
