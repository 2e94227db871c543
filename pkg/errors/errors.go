// Package errors provides structured error types for vorpal.
package errors

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode identifies specific error conditions and maps 1:1 onto a
// gRPC status code returned to Agent/Worker/Registry clients.
type ErrorCode string

const (
	ErrCodeInvalidArgument    ErrorCode = "INVALID_ARGUMENT"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists      ErrorCode = "ALREADY_EXISTS"
	ErrCodeFailedPrecondition ErrorCode = "FAILED_PRECONDITION"
	ErrCodeUnauthenticated    ErrorCode = "UNAUTHENTICATED"
	ErrCodePermissionDenied   ErrorCode = "PERMISSION_DENIED"
	ErrCodeInternal           ErrorCode = "INTERNAL"
)

var codeToGRPC = map[ErrorCode]codes.Code{
	ErrCodeInvalidArgument:    codes.InvalidArgument,
	ErrCodeNotFound:           codes.NotFound,
	ErrCodeAlreadyExists:      codes.AlreadyExists,
	ErrCodeFailedPrecondition: codes.FailedPrecondition,
	ErrCodeUnauthenticated:    codes.Unauthenticated,
	ErrCodePermissionDenied:   codes.PermissionDenied,
	ErrCodeInternal:           codes.Internal,
}

// Error is the base error type for vorpal.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
	Details map[string]interface{}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// GRPCCode returns the gRPC status code this error maps onto.
func (e *Error) GRPCCode() codes.Code {
	if c, ok := codeToGRPC[e.Code]; ok {
		return c
	}
	return codes.Internal
}

// ToStatus converts the error into a *status.Status, the form every
// streaming RPC handler must terminate with.
func (e *Error) ToStatus() *status.Status {
	return status.New(e.GRPCCode(), e.Error())
}

// New creates a new error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a new error wrapping an existing error.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
		Details: make(map[string]interface{}),
	}
}

// WithDetails adds details to an error.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail adds a single detail to an error.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	e.Details[key] = value
	return e
}

// NotFoundError creates a not found error for a named resource.
func NotFoundError(resourceType, id string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s %q not found", resourceType, id),
		Details: map[string]interface{}{
			"resource_type": resourceType,
			"id":            id,
		},
	}
}

// AlreadyExistsError creates an already-exists error for a named resource.
func AlreadyExistsError(resourceType, id string) *Error {
	return &Error{
		Code:    ErrCodeAlreadyExists,
		Message: fmt.Sprintf("%s %q already exists", resourceType, id),
		Details: map[string]interface{}{
			"resource_type": resourceType,
			"id":            id,
		},
	}
}

// Is checks if the error matches the given code.
func Is(err error, code ErrorCode) bool {
	if e, ok := err.(*Error); ok {
		return e.Code == code
	}
	return false
}

// FromStatus builds an *Error back out of a gRPC status, used by clients
// that want to branch on ErrorCode rather than codes.Code.
func FromStatus(st *status.Status) *Error {
	code := ErrCodeInternal
	for k, v := range codeToGRPC {
		if v == st.Code() {
			code = k
			break
		}
	}
	return &Error{Code: code, Message: st.Message()}
}
