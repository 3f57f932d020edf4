package withdraw

import "errors"

// Code is the stable error code surfaced to callers. The server maps each
// code to an HTTP status.
type Code string

const (
	CodeValidation            Code = "validation_error"
	CodeUnauthorized          Code = "unauthorized"
	CodeMaintenance           Code = "maintenance_mode"
	CodeInsufficientBalance   Code = "insufficient_balance"
	CodeSettlementUnavailable Code = "settlement_unavailable"
	CodeOperationFailed       Code = "operation_failed"
	CodeNotFound              Code = "not_found"
	CodeRateLimited           Code = "rate_limited"
)

// Error is the user-visible error of the withdrawal engine. Refunded is true
// when the failure released a ledger reservation back to the session balance,
// so callers can tell the player their funds are back.
type Error struct {
	Code     Code   `json:"code"`
	Message  string `json:"message"`
	Refunded bool   `json:"refunded,omitempty"`
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

func newError(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func refundedError(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Refunded: true}
}

// AsError extracts a *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
