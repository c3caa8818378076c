package common

import (
	"errors"
	"fmt"
)

// Sentinel errors used across the pipeline.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("not found")
	ErrUnsupportedFile  = errors.New("unsupported file type")
	ErrEngineUnknown    = errors.New("unknown OCR engine")
	ErrNoEngines        = errors.New("no OCR engine available")
	ErrPreprocessFailed = errors.New("preprocessing failed")
	ErrFileTooLarge     = errors.New("file exceeds size limit")
)

// AppError wraps an error with a stable code and a human-readable message.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates an AppError with the given code, message and cause.
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// WrapError wraps err with a message, preserving the code if err is already
// an AppError.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{Code: appErr.Code, Message: message, Cause: err}
	}
	return fmt.Errorf("%s: %w", message, err)
}
