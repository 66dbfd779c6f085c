package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

const normalizeLogPrefix = "bridge:normalize"

// Reply error codes.
const (
	CodeUnknown            = "unknown"
	CodeInvalidArgument    = "invalid-argument"
	CodeDeadlineExceeded   = "deadline-exceeded"
	CodeCancelled          = "cancelled"
	CodeUnsupportedVersion = "unsupported-version"
	CodeInternal           = "internal"
)

// UnknownErrorMessage replaces an empty failure message.
const UnknownErrorMessage = "An unknown error occurred"

var (
	// ErrNilFailure stands in for an operation that failed without an error value.
	ErrNilFailure = errors.New("operation failed without an error")
	// ErrNilFuture is reported when a handler returns no future.
	ErrNilFuture = errors.New("handler returned no outcome")
	// ErrVersionMismatch is reported when a call's version range excludes the registry version.
	ErrVersionMismatch = errors.New("requested version is not served")
)

// ErrorDetail is the caller-facing error triple.
type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"detail"`
}

// OperationError is a categorized failure an operation may return.
type OperationError struct {
	Code    string
	Message string
	Details map[string]string
	Err     error
}

func (e *OperationError) Error() string {
	if e.Code == "" {
		return e.message()
	}
	return e.Code + ": " + e.message()
}

func (e *OperationError) Unwrap() error { return e.Err }

func (e *OperationError) message() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// NewOperationError creates an OperationError wrapping err.
func NewOperationError(code string, err error) *OperationError {
	return &OperationError{Code: code, Err: err}
}

// Normalize converts a failure into the caller-facing error triple.
// The same failure category always maps to the same code.
func Normalize(err error) ErrorDetail {
	if err == nil {
		slog.Error(fmt.Sprintf("%s - protocol violation: nil failure normalized", normalizeLogPrefix))
		err = ErrNilFailure
	}

	code := CodeUnknown
	message := err.Error()
	extra := map[string]string{}

	var marshalErr *MarshalError
	var opErr *OperationError
	switch {
	case errors.As(err, &marshalErr):
		code = CodeInvalidArgument
		message = marshalErr.Error()
		extra["key"] = marshalErr.Key
		extra["kind"] = marshalErr.Kind
	case errors.As(err, &opErr) && opErr.Code != "":
		code = opErr.Code
		message = opErr.message()
		for k, v := range opErr.Details {
			extra[k] = v
		}
	case errors.Is(err, context.DeadlineExceeded):
		code = CodeDeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = CodeCancelled
	case errors.Is(err, ErrVersionMismatch):
		code = CodeUnsupportedVersion
	case errors.Is(err, ErrNilFailure), errors.Is(err, ErrNilFuture):
		code = CodeInternal
	}

	if message == "" {
		message = UnknownErrorMessage
	}

	details := make(map[string]string, len(extra)+4)
	for k, v := range extra {
		details[k] = v
	}
	details["code"] = code
	details["message"] = message
	details["nativeErrorCode"] = code
	details["nativeErrorMessage"] = message

	return ErrorDetail{Code: code, Message: message, Details: details}
}
