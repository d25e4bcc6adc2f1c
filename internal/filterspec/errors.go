package filterspec

import (
	"errors"
	"fmt"
)

// ErrorCode is the closed set of failure kinds surfaced by the resolver,
// the compiler and the confirmation flow.
type ErrorCode string

const (
	CodeUnknownColumn         ErrorCode = "UNKNOWN_COLUMN"
	CodeMissingTargetColumn   ErrorCode = "MISSING_TARGET_COLUMN"
	CodeAmbiguousTerm         ErrorCode = "AMBIGUOUS_TERM"
	CodeSchemaChanged         ErrorCode = "SCHEMA_CHANGED"
	CodeInvalidOperator       ErrorCode = "INVALID_OPERATOR"
	CodeInvalidArity          ErrorCode = "INVALID_ARITY"
	CodeMissingOperand        ErrorCode = "MISSING_OPERAND"
	CodeEmptyInList           ErrorCode = "EMPTY_IN_LIST"
	CodeStructuralLimit       ErrorCode = "STRUCTURAL_LIMIT_EXCEEDED"
	CodeTypeMismatch          ErrorCode = "TYPE_MISMATCH"
	CodeUnknownCanonicalTerm  ErrorCode = "UNKNOWN_CANONICAL_TERM"
	CodeTokenInvalidOrExpired ErrorCode = "TOKEN_INVALID_OR_EXPIRED"
	CodeTokenHashMismatch     ErrorCode = "TOKEN_HASH_MISMATCH"
	CodeConfirmationRequired  ErrorCode = "CONFIRMATION_REQUIRED"
)

type Error struct {
	Code    ErrorCode     `json:"code"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

// ErrorDetail carries candidate columns or suggestions attached to an error.
type ErrorDetail struct {
	Column  string `json:"column,omitempty"`
	Term    string `json:"term,omitempty"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetails returns a copy of e with details attached.
func (e *Error) WithDetails(details ...ErrorDetail) *Error {
	out := *e
	out.Details = append(append([]ErrorDetail(nil), e.Details...), details...)
	return &out
}

// CodeOf extracts the error code from err, or "" if err is not a filter error.
func CodeOf(err error) ErrorCode {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

func UnknownColumnError(column string) *Error {
	return NewError(CodeUnknownColumn, "column %q not found in schema", column)
}

func TypeMismatchError(column string, format string, args ...any) *Error {
	return &Error{
		Code:    CodeTypeMismatch,
		Message: fmt.Sprintf("column %q: ", column) + fmt.Sprintf(format, args...),
	}
}

func StructuralLimitError(format string, args ...any) *Error {
	return NewError(CodeStructuralLimit, format, args...)
}
