package core

import (
	"errors"
	"fmt"
)

// ErrorKind groups errors by how callers should react to them.
type ErrorKind string

const (
	KindAuth         ErrorKind = "auth"
	KindValidation   ErrorKind = "validation"
	KindProvider     ErrorKind = "provider"
	KindAccountState ErrorKind = "account_state"
	KindNotFound     ErrorKind = "not_found"
	KindTimeout      ErrorKind = "timeout"
	KindConflict     ErrorKind = "conflict"
	KindInternal     ErrorKind = "internal"
)

// Machine-readable error codes.
const (
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeProviderAuth      = "PROVIDER_AUTH"
	CodeValidation        = "VALIDATION_ERROR"
	CodeInvalidAmount     = "INVALID_AMOUNT"
	CodeInvalidDateRange  = "INVALID_DATE_RANGE"
	CodeInvalidRule       = "INVALID_RULE"
	CodeProviderNetwork   = "PROVIDER_NETWORK"
	CodeProviderMalformed = "PROVIDER_MALFORMED"
	CodeProviderTimeout   = "PROVIDER_TIMEOUT"
	CodeAccountNotFound   = "ACCOUNT_NOT_FOUND"
	CodeInvalidAccount    = "INVALID_ACCOUNT"
	CodeTxNotFound        = "TRANSACTION_NOT_FOUND"
	CodeCategoryNotFound  = "CATEGORY_NOT_FOUND"
	CodeRunNotFound       = "SYNC_RUN_NOT_FOUND"
	CodeRetryExhausted    = "RETRY_EXHAUSTED"
	CodeSyncInProgress    = "SYNC_IN_PROGRESS"
	CodeRunFinalized      = "RUN_FINALIZED"
	CodeProviderTxOwned   = "PROVIDER_TX_OWNED"
	CodeInternal          = "INTERNAL"
)

// ErrTransient marks failures worth retrying, such as a busy database.
var ErrTransient = errors.New("transient failure")

// Error is the typed error carried across service boundaries.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func NewError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// WrapError attaches a kind and code to an underlying error.
func WrapError(kind ErrorKind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// MessageOf returns the user-facing message, falling back to err.Error().
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func IsCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
