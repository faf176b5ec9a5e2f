package apperrors

import (
	stderrors "errors"
)

// ErrorResponse is the JSON body sent to clients for every failed request.
// The detail field carries the human-readable message.
type ErrorResponse struct {
	Detail    string    `json:"detail"`
	Code      ErrorCode `json:"code,omitempty"`
	Retryable bool      `json:"retryable,omitempty"`
}

// ToResponse converts an AppError to an ErrorResponse for JSON serialization.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{
		Detail:    e.Message,
		Code:      e.Code,
		Retryable: e.Retryable,
	}
}

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
