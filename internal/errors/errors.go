package errors

import (
	stderrors "errors"
	"fmt"
)

// Error codes for the fault taxonomy. External-service faults are
// row-scoped; MALFORMED_SPECIFICATION and DUPLICATE_CELL_TARGET are fatal
// to their operation.
const (
	CodeMalformedSpecification = "MALFORMED_SPECIFICATION"
	CodeThrottleExhausted      = "THROTTLE_EXHAUSTED"
	CodeTransportError         = "TRANSPORT_ERROR"
	CodeRequestRejected        = "REQUEST_REJECTED"
	CodeUnparseableResponse    = "UNPARSEABLE_RESPONSE"
	CodeDuplicateCellTarget    = "DUPLICATE_CELL_TARGET"
	CodeConfigInvalid          = "CONFIG_INVALID"
)

// AppError is a structured application error with a stable code.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an AppError with the given code and message.
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// HasCode reports whether err (or anything it wraps) carries code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	for stderrors.As(err, &appErr) {
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
		if err == nil {
			return false
		}
	}
	return false
}

func MalformedSpecification(format string, args ...interface{}) *AppError {
	return New(CodeMalformedSpecification, fmt.Sprintf(format, args...))
}

func ThrottleExhausted(cause error) *AppError {
	return Wrap(CodeThrottleExhausted, "reasoning service rate limit retries exhausted", cause)
}

func TransportError(cause error) *AppError {
	return Wrap(CodeTransportError, "reasoning service transport failure", cause)
}

func RequestRejected(cause error) *AppError {
	return Wrap(CodeRequestRejected, "reasoning service rejected the request", cause)
}

func UnparseableResponse(detail string) *AppError {
	return New(CodeUnparseableResponse, "unparseable response: "+detail)
}

func DuplicateCellTarget(cell string) *AppError {
	return New(CodeDuplicateCellTarget, "multiple verdicts target cell "+cell)
}

func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}
