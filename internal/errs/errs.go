package errs

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeNotFound         Code = "NOT_FOUND"
	CodeRateLimited      Code = "RATE_LIMITED"
	CodeInternal         Code = "INTERNAL"
)

// ServerErrorMessage is what the actor sees for any infrastructure failure.
const ServerErrorMessage = "Server error"

// Error is a per-actor failure of a chat action. Message is safe to show
// to the actor, Cause never leaves the server.
type Error struct {
	Code    Code
	Message string
	Blocked bool
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Invalid(message string) *Error {
	return New(CodeInvalidArgument, message)
}

func Forbidden(message string) *Error {
	return New(CodePermissionDenied, message)
}

func NotFound(message string) *Error {
	return New(CodeNotFound, message)
}

func RateLimited(message string) *Error {
	return New(CodeRateLimited, message)
}

// BlockedBy hides the block behind a generic message.
func BlockedBy() *Error {
	return &Error{Code: CodePermissionDenied, Message: "Unable to send message to this user", Blocked: true}
}

// Internal wraps an infrastructure failure.
func Internal(cause error) *Error {
	return &Error{Code: CodeInternal, Message: ServerErrorMessage, Cause: cause}
}

// Public returns the user-facing view of err. Anything that is not an
// *Error is treated as internal.
func Public(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}
