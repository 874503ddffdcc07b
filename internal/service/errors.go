package service

import "github.com/pkg/errors"

type ErrorCode string

const (
	ErrorCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrorCodeForbidden           ErrorCode = "FORBIDDEN"
	ErrorCodeBadRequest          ErrorCode = "BAD_REQUEST"
	ErrorCodeConflict            ErrorCode = "CONFLICT"
	ErrorCodeUnprocessableEntity ErrorCode = "UNPROCESSABLE_ENTITY"
	ErrorCodeInvalidBody         ErrorCode = "INVALID_BODY"
	ErrorCodeUnspecified         ErrorCode = "UNSPECIFIED"
)

type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

func (e *Error) Error() string {
	return e.Message
}

// asServiceError unwraps the *Error a transaction callback returned. Any
// other failure, such as a failed commit, becomes UNSPECIFIED.
func asServiceError(err error, fallback string) *Error {
	if err == nil {
		return nil
	}

	var res *Error
	if errors.As(err, &res) {
		return res
	}
	return NewError(ErrorCodeUnspecified, fallback)
}
