// Package domainerrors provides coded errors shared by all ledger modules.
// Codes classify failures for transport mapping; the wrapped cause keeps
// errors.Is/errors.As chains intact for callers that match on sentinels.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error for logging and HTTP translation.
type Code string

const (
	// CodeInvalidInput marks validation failures the caller can correct.
	CodeInvalidInput Code = "invalid_input"
	// CodeBadRequest marks malformed requests (undecodable bodies, bad params).
	CodeBadRequest Code = "bad_request"
	// CodeUnauthorized marks missing or invalid caller credentials.
	CodeUnauthorized Code = "unauthorized"
	// CodeNotFound marks lookups for records that do not exist.
	CodeNotFound Code = "not_found"
	// CodePrecondition marks operations rejected by ledger state. No partial
	// effects occur; the same call may succeed once state changes.
	CodePrecondition Code = "precondition_failed"
	// CodeDependency marks failures propagated verbatim from an external
	// collaborator (collateral token, attestation verifier). Never retried.
	CodeDependency Code = "dependency_failed"
	// CodeInternal marks unexpected failures. Descriptions are not exposed
	// over HTTP for this code.
	CodeInternal Code = "internal_error"
)

// Error is a coded domain error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		if err == nil {
			break
		}
	}
	return false
}

// GetCode returns the outermost code on err, or CodeInternal if none.
func GetCode(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to its HTTP response status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput, CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodePrecondition:
		return http.StatusConflict
	case CodeDependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
