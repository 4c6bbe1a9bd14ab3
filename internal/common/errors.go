package common

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes shared across modules.
const (
	CodeValidation    = "VALIDATION"
	CodeImportFormat  = "IMPORT_FORMAT"
	CodeImportContent = "IMPORT_CONTENT"
	CodeExportBlocked = "EXPORT_BLOCKED"
	CodeNotFound      = "NOT_FOUND"
	CodeBadRequest    = "BAD_REQUEST"
	CodeInternal      = "INTERNAL"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// ValidationError reports a missing or empty required field. The triggering
// action is a no-op; nothing is partially saved.
func ValidationError(field string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    fmt.Sprintf("required field %q is missing or empty", field),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"field": field},
	}
}

// ImportFormatError reports a payload that is not a parseable JSON array.
func ImportFormatError(err error) *AppError {
	return &AppError{
		Code:       CodeImportFormat,
		Message:    "payload is not a valid JSON array",
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details:    map[string]any{"parse_error": err.Error()},
	}
}

// ImportContentError reports an array that parsed but contained no valid records.
func ImportContentError(total int) *AppError {
	return &AppError{
		Code:       CodeImportContent,
		Message:    fmt.Sprintf("no valid records found among %d elements", total),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"total": total},
	}
}

// ExportBlockedError reports an export attempt without a client or without lines.
func ExportBlockedError(reason string) *AppError {
	return &AppError{
		Code:       CodeExportBlocked,
		Message:    reason,
		HTTPStatus: http.StatusConflict,
	}
}
