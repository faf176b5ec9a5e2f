// Package apperrors provides the unified error type for the transcription
// service. Every pipeline stage returns an *AppError with a machine-readable
// code and a recommended HTTP status; the transport layer is the only place
// that turns one into a response body.
package apperrors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Client errors.
const (
	// ErrCodeUnsupportedFormat indicates the uploaded file's extension is not allowed.
	ErrCodeUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	// ErrCodeFileTooLarge indicates the upload exceeded the configured size limit.
	ErrCodeFileTooLarge ErrorCode = "FILE_TOO_LARGE"
	// ErrCodeEmptyUpload indicates an empty or unreadable upload.
	ErrCodeEmptyUpload ErrorCode = "EMPTY_UPLOAD"
	// ErrCodeInvalidInput indicates a malformed request.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// Media and tool errors.
const (
	// ErrCodeCorruptMedia indicates the media toolkit could not decode the input.
	ErrCodeCorruptMedia ErrorCode = "CORRUPT_MEDIA"
	// ErrCodeExtractionFailed indicates the media toolkit itself failed.
	ErrCodeExtractionFailed ErrorCode = "EXTRACTION_FAILED"
)

// Engine and backend errors.
const (
	// ErrCodeEngineUnavailable indicates the recognition engine is unreachable.
	ErrCodeEngineUnavailable ErrorCode = "ENGINE_UNAVAILABLE"
	// ErrCodeInferenceFailed indicates the recognition engine rejected the audio.
	ErrCodeInferenceFailed ErrorCode = "INFERENCE_FAILED"
	// ErrCodeInternal indicates an unexpected server error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeEngineUnavailable: true,
	ErrCodeExtractionFailed:  true,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if resubmitting the request may succeed.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the recommended HTTP status code for this error.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// --- Constructors for the pipeline failure taxonomy ---

// UnsupportedFormat creates an error for a file extension outside the allow-list.
func UnsupportedFormat(ext string) *AppError {
	return &AppError{
		Code: ErrCodeUnsupportedFormat, Message: fmt.Sprintf("Unsupported file format: %s", ext),
		HTTPStatus: http.StatusUnsupportedMediaType, Retryable: false,
		Details: map[string]any{"extension": ext},
	}
}

// FileTooLarge creates an error for an upload exceeding the size limit.
func FileTooLarge(limitMB int) *AppError {
	return &AppError{
		Code: ErrCodeFileTooLarge, Message: fmt.Sprintf("File too large. Maximum size is %dMB.", limitMB),
		HTTPStatus: http.StatusRequestEntityTooLarge, Retryable: false,
		Details: map[string]any{"limit_mb": limitMB},
	}
}

// EmptyUpload creates an error for an empty or unreadable upload.
func EmptyUpload() *AppError {
	return &AppError{
		Code: ErrCodeEmptyUpload, Message: "Uploaded file is empty or unreadable.",
		HTTPStatus: http.StatusBadRequest, Retryable: false,
	}
}

// InvalidInput creates an error for a malformed request.
func InvalidInput(reason string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("Invalid input: %s", reason),
		HTTPStatus: http.StatusBadRequest, Retryable: false,
	}
}

// CorruptMedia creates an error for media the toolkit could not decode.
func CorruptMedia(reason string) *AppError {
	return &AppError{
		Code: ErrCodeCorruptMedia, Message: fmt.Sprintf("Media could not be processed: %s", reason),
		HTTPStatus: http.StatusUnprocessableEntity, Retryable: false,
	}
}

// ExtractionFailed creates an error for a media toolkit failure, with captured
// stderr attached for diagnostics.
func ExtractionFailed(stderr string, cause error) *AppError {
	e := &AppError{
		Code: ErrCodeExtractionFailed, Message: "Audio extraction failed.",
		HTTPStatus: http.StatusInternalServerError, Retryable: true, Cause: cause,
	}
	if stderr != "" {
		e.WithDetail("stderr", stderr)
	}
	return e
}

// EngineUnavailable creates an error for an unreachable recognition engine.
func EngineUnavailable(cause error) *AppError {
	return &AppError{
		Code: ErrCodeEngineUnavailable, Message: "The transcription engine is unavailable. Please try again.",
		HTTPStatus: http.StatusBadGateway, Retryable: true, Cause: cause,
	}
}

// InferenceFailed creates an error for a failed inference over extracted audio.
func InferenceFailed(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInferenceFailed, Message: "Transcription failed.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}

// Internal creates an error for an unexpected server failure.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An unexpected error occurred. Please try again.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}
