package bridge

import (
	"errors"
	"fmt"
)

// Category is the stable, caller-visible class of a bridge error
type Category string

// Error categories
const (
	CategoryInjectionFailed Category = "injection_failed"
	CategoryWindowNotFound  Category = "window_not_found"
	CategoryTimeout         Category = "timeout"
	CategoryUnauthorized    Category = "unauthorized"
	CategoryMalformedInput  Category = "malformed_input"
	CategorySandboxFailure  Category = "sandbox_failure"
	CategoryNotSupported    Category = "not_supported"
	CategoryCanceled        Category = "canceled"
	CategoryInternal        Category = "internal"
)

// Sentinels for errors.Is. Matching compares categories only.
var (
	ErrInjectionFailed = &Error{Category: CategoryInjectionFailed}
	ErrWindowNotFound  = &Error{Category: CategoryWindowNotFound}
	ErrTimeout         = &Error{Category: CategoryTimeout}
	ErrUnauthorized    = &Error{Category: CategoryUnauthorized}
	ErrMalformedInput  = &Error{Category: CategoryMalformedInput}
	ErrSandboxFailure  = &Error{Category: CategorySandboxFailure}
	ErrNotSupported    = &Error{Category: CategoryNotSupported}
	ErrCanceled        = &Error{Category: CategoryCanceled}
)

// Error is a categorized bridge failure. Detail is safe to show callers.
type Error struct {
	Category Category
	Detail   string
	cause    error
}

func newError(category Category, cause error, format string, args ...any) *Error {
	return &Error{
		Category: category,
		Detail:   fmt.Sprintf(format, args...),
		cause:    cause,
	}
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Category)
	}
	return string(e.Category) + ": " + e.Detail
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports category equality. A missing window is also an injection
// failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Category == e.Category {
		return true
	}
	return e.Category == CategoryWindowNotFound && t.Category == CategoryInjectionFailed
}

// CategoryOf returns the category of err, or CategoryInternal for errors
// that did not come from the bridge
func CategoryOf(err error) Category {
	var be *Error
	if errors.As(err, &be) {
		return be.Category
	}
	return CategoryInternal
}

// DetailOf returns the caller-safe detail of err
func DetailOf(err error) string {
	var be *Error
	if errors.As(err, &be) {
		if be.Detail != "" {
			return be.Detail
		}
		return string(be.Category)
	}
	return "internal error"
}

// MalformedInput builds a malformed_input error for transport layers
func MalformedInput(format string, args ...any) error {
	return newError(CategoryMalformedInput, nil, format, args...)
}
