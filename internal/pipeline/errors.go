package pipeline

import (
	"errors"
	"fmt"
)

// ValidationError is a user-caused precondition failure. It always maps to
// a user notification and is never escalated.
type ValidationError struct {
	Code   string
	Reason string
	Fields map[string]any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Code, e.Reason)
}

// Invalid creates a ValidationError.
func Invalid(code, reason string, fields map[string]any) *ValidationError {
	if fields == nil {
		fields = map[string]any{}
	}
	return &ValidationError{Code: code, Reason: reason, Fields: fields}
}

// SystemError is an internal failure escalated to operators. Its message
// is logged but never shown to users.
type SystemError struct {
	Code  string
	Stage string
	Err   error
}

func (e *SystemError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Stage, e.Code, e.Err)
}

func (e *SystemError) Unwrap() error { return e.Err }

// Fail creates a SystemError.
func Fail(code, stage string, err error) *SystemError {
	return &SystemError{Code: code, Stage: stage, Err: err}
}

// ErrorCode returns the notification code carried by err, or "".
func ErrorCode(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	var se *SystemError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
