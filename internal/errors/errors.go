// Package errors provides structured error types shared by the sensor,
// device and render layers.
//
// Every error carries a Code so call sites (edge-triggered loggers, the
// stop controller, metrics) can classify failures without string matching.
//
//	err := errors.WrapWithContext(
//	    errors.ErrCodeDeviceOpen,
//	    "camera cannot be opened",
//	    cause,
//	    map[string]any{"index": 0},
//	)
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a structured error classification.
type ErrorCode string

const (
	// ErrCodeDeviceOpen indicates the camera could not be opened at construction.
	ErrCodeDeviceOpen ErrorCode = "DEVICE_OPEN"
	// ErrCodeFrameGrab indicates a read from an opened camera returned no data.
	ErrCodeFrameGrab ErrorCode = "FRAME_GRAB"
	// ErrCodeRenderPrecondition indicates the renderer was asked to draw before
	// any frame ever arrived.
	ErrCodeRenderPrecondition ErrorCode = "RENDER_PRECONDITION"
	// ErrCodeInvalidConfig indicates malformed or invalid configuration.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	// ErrCodeUnavailable indicates an optional backend is not compiled in or
	// an external service cannot be reached.
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE"
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// StructuredError provides structured error information for better observability.
type StructuredError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is and errors.As support.
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// New creates a new StructuredError with the given code and message.
func New(code ErrorCode, message string) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
	}
}

// NewWithContext creates a new StructuredError with context information.
func NewWithContext(code ErrorCode, message string, context map[string]any) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Context: context,
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(code ErrorCode, message string, cause error) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapWithContext wraps an error with additional context information.
func WrapWithContext(code ErrorCode, message string, cause error, context map[string]any) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: context,
	}
}

// CodeOf returns the code of the first StructuredError in err's chain,
// or ErrCodeInternal when there is none.
func CodeOf(err error) ErrorCode {
	var se *StructuredError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err's chain contains a StructuredError with code.
func HasCode(err error, code ErrorCode) bool {
	var se *StructuredError
	for err != nil {
		if !stderrors.As(err, &se) {
			return false
		}
		if se.Code == code {
			return true
		}
		err = se.Cause
	}
	return false
}

// MessageOf returns the human-readable message of the first StructuredError
// in err's chain, or err.Error() when there is none.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var se *StructuredError
	if stderrors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}
