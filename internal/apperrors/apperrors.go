package apperrors

import (
	"fmt"
	"net/http"
)

// Code identifies a failure class that callers can branch on.
type Code string

const (
	CodeValidation            Code = "VALIDATION_ERROR"
	CodeUnauthorized          Code = "UNAUTHORIZED"
	CodeNotFound              Code = "NOT_FOUND"
	CodeAmountMismatch        Code = "AMOUNT_MISMATCH"
	CodeRecipientNotFound     Code = "RECIPIENT_NOT_FOUND"
	CodeNoTransferDetected    Code = "NO_TRANSFER_DETECTED"
	CodeTransactionTooOld     Code = "TRANSACTION_TOO_OLD"
	CodeDuplicateTransaction  Code = "DUPLICATE_TRANSACTION"
	CodeExecutionFailed       Code = "EXECUTION_FAILED"
	CodeChainError            Code = "CHAIN_ERROR"
	CodePartialReconciliation Code = "PARTIAL_RECONCILIATION"
	CodeInternal              Code = "INTERNAL_ERROR"
)

// Error is the structured error that crosses service boundaries. The HTTP
// layer renders it as JSON; services attach machine-readable details
// (expected vs actual amount, tx hash) for caller display.
type Error struct {
	Code    Code                   `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// HTTPStatus maps the error code to the response status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeValidation, CodeAmountMismatch, CodeRecipientNotFound,
		CodeNoTransferDetected, CodeTransactionTooOld, CodeDuplicateTransaction,
		CodeExecutionFailed:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeChainError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithDetails attaches display details and returns the same error.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// CodeOf extracts the code from err, or CodeInternal for plain errors.
func CodeOf(err error) Code {
	if ae, ok := err.(*Error); ok {
		return ae.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
