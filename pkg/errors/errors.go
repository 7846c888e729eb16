// Package errors provides the unified error type and factory functions for
// the GeoFusion service.  Every layer (domain, application, infrastructure,
// interfaces) uses AppError as the single carrier for structured error
// information, enabling consistent HTTP responses, logging, and monitoring.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// stackDepth is the maximum number of frames captured per error.
const stackDepth = 32

// captureStack returns a formatted call-stack string starting two frames above
// the caller (skipping captureStack itself and New/Wrap).
func captureStack(skip int) string {
	pcs := make([]uintptr, stackDepth)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])
	var sb strings.Builder
	for {
		f, more := frames.Next()
		// Trim standard-library noise to keep traces readable.
		if !strings.Contains(f.File, "runtime/") {
			fmt.Fprintf(&sb, "\n\t%s:%d %s", f.File, f.Line, f.Function)
		}
		if !more {
			break
		}
	}
	return sb.String()
}

// AppError is the single structured error type used throughout GeoFusion.
// It satisfies the standard error interface and supports Go 1.13+ error
// wrapping so that errors.Is / errors.As / errors.Unwrap work transparently
// across all layers.
//
// Usage:
//
//	return errors.New(errors.ErrCodeLayerNotFound, "layer parcels_2024 not found")
//	return errors.Wrap(repoErr, errors.ErrCodeDatabaseError, "failed to load layer config")
type AppError struct {
	// Code is the typed error code that uniquely identifies the failure category.
	Code ErrorCode

	// Message is the primary human-readable description of the error, suitable
	// for inclusion in API responses returned to callers.
	Message string

	// Detail carries supplementary context (layer ids, object keys, etc.) that
	// aids debugging without leaking internals to end users.
	Detail string

	// Cause is the underlying error that triggered this AppError, enabling
	// errors.Is / errors.As traversal of the full error chain.
	Cause error

	// Stack contains the formatted call-stack captured at the point of error
	// creation.  It is intentionally not included in Error() output; callers
	// that need it (e.g. request-logging middleware) inspect the field directly.
	Stack string
}

// Error implements the standard error interface.
// Format: "[<code>] <message>: <detail>", detail omitted when empty.
func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error, enabling errors.Is and errors.As
// to traverse the full chain without boilerplate at call sites.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetail returns a shallow copy of the receiver with Detail set.
// Safe to call on a nil pointer (returns nil).
func (e *AppError) WithDetail(detail string) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Detail = detail
	return &clone
}

// WithCause returns a shallow copy of the receiver with Cause set to err.
func (e *AppError) WithCause(err error) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Cause = err
	return &clone
}

// New constructs a fresh AppError with the given code and message.
// Preferred for errors that originate in the current layer without an
// underlying cause.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Stack:   captureStack(1),
	}
}

// Newf constructs an AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(1),
	}
}

// Wrap constructs an AppError that wraps an existing error.  If err is nil,
// Wrap returns nil so it can be used inline:
//
//	return errors.Wrap(repo.Get(ctx, id), errors.ErrCodeDatabaseError, "query failed")
//
// When err is already an *AppError and code is ErrCodeInternal, the original
// code is preserved so the domain classification survives cross-layer
// propagation.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	if code == ErrCodeInternal {
		var ae *AppError
		if errors.As(err, &ae) {
			code = ae.Code
		}
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
		Stack:   captureStack(1),
	}
}

// IsCode reports whether any error in err's chain is an *AppError with the
// given code.
//
//	if errors.IsCode(err, errors.ErrCodeLayerNotFound) { ... }
func IsCode(err error, code ErrorCode) bool {
	var ae *AppError
	for err != nil {
		if errors.As(err, &ae) && ae.Code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// GetCode extracts the ErrorCode from the first *AppError found in err's
// chain, or ErrCodeInternal when none is present.  Useful in middleware and
// metrics layers that need a single code label.
func GetCode(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ErrCodeInternal
}

// IsNotFound reports whether any error in err's chain carries a not-found
// class code (generic, layer, or dataset).
func IsNotFound(err error) bool {
	return IsCode(err, ErrCodeNotFound) ||
		IsCode(err, ErrCodeLayerNotFound) ||
		IsCode(err, ErrCodeDatasetNotFound)
}

// IsValidation reports whether err is a bad-request / validation failure.
func IsValidation(err error) bool {
	return IsCode(err, ErrCodeBadRequest) || IsCode(err, ErrCodeValidation) ||
		IsCode(err, ErrCodeLayerConfigInvalid)
}

// IsConflict reports whether err is a conflict.
func IsConflict(err error) bool {
	return IsCode(err, ErrCodeConflict) || IsCode(err, ErrCodeLayerAlreadyExists)
}

// NotFound constructs a generic ErrCodeNotFound AppError.  Prefer
// ErrCodeLayerNotFound / ErrCodeDatasetNotFound in domain code; this generic
// form is appropriate in repository or router layers.
func NotFound(message string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: message,
		Stack:   captureStack(1),
	}
}

// InvalidParam constructs an ErrCodeBadRequest AppError.
func InvalidParam(message string) *AppError {
	return &AppError{
		Code:    ErrCodeBadRequest,
		Message: message,
		Stack:   captureStack(1),
	}
}

// Internal constructs an ErrCodeInternal AppError for unexpected server-side
// failures where no more specific code applies.
func Internal(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
		Stack:   captureStack(1),
	}
}

// Conflict constructs an ErrCodeConflict AppError.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    ErrCodeConflict,
		Message: message,
		Stack:   captureStack(1),
	}
}

// Unavailable constructs an ErrCodeServiceUnavailable AppError.
func Unavailable(message string) *AppError {
	return &AppError{
		Code:    ErrCodeServiceUnavailable,
		Message: message,
		Stack:   captureStack(1),
	}
}
