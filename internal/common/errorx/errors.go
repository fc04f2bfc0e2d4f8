package errorx

import (
	"errors"
	"fmt"
)

// Code identifies a category of gateway failure
type Code string

const (
	CodeMissingToken         Code = "missing_token"
	CodeMissingWalletAddress Code = "missing_wallet_address"
	CodeInsufficientBalance  Code = "insufficient_balance"
	CodeAuthenticationFailed Code = "authentication_failed"
	CodeBalanceQueryFailed   Code = "balance_query_failed"
	CodeUnauthenticated      Code = "unauthenticated"
	CodeMalformedEvent       Code = "malformed_event"
	CodePublishFailed        Code = "publish_failed"
)

// GatewayError is a categorized failure. Message is safe to show to clients,
// Cause never is.
type GatewayError struct {
	Code    Code
	Message string
	Cause   error
}

func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// Is matches any GatewayError carrying the same code
func (e *GatewayError) Is(target error) bool {
	var t *GatewayError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithCause returns a copy of e wrapping cause
func (e *GatewayError) WithCause(cause error) *GatewayError {
	return &GatewayError{Code: e.Code, Message: e.Message, Cause: cause}
}

// WithMessage returns a copy of e with a different client message
func (e *GatewayError) WithMessage(format string, args ...any) *GatewayError {
	return &GatewayError{Code: e.Code, Message: fmt.Sprintf(format, args...), Cause: e.Cause}
}

var (
	ErrMissingToken = &GatewayError{
		Code:    CodeMissingToken,
		Message: "Missing auth token",
	}
	ErrMissingWalletAddress = &GatewayError{
		Code:    CodeMissingWalletAddress,
		Message: "Missing wallet address",
	}
	ErrInsufficientBalance = &GatewayError{
		Code:    CodeInsufficientBalance,
		Message: "Insufficient token balance",
	}
	ErrAuthenticationFailed = &GatewayError{
		Code:    CodeAuthenticationFailed,
		Message: "Authentication failed",
	}
	ErrBalanceQueryFailed = &GatewayError{
		Code:    CodeBalanceQueryFailed,
		Message: "Failed to verify token balance",
	}
	ErrUnauthenticated = &GatewayError{
		Code:    CodeUnauthenticated,
		Message: "Unauthenticated",
	}
	ErrMalformedEvent = &GatewayError{
		Code:    CodeMalformedEvent,
		Message: "Malformed event",
	}
	ErrPublishFailed = &GatewayError{
		Code:    CodePublishFailed,
		Message: "Failed to deliver message",
	}
)

// PublicMessage returns the client-safe text for err. Anything that is not a
// GatewayError collapses to the authentication failure message.
func PublicMessage(err error) string {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Message
	}
	return ErrAuthenticationFailed.Message
}

// CodeOf returns the code of err, or "" when err is not a GatewayError
func CodeOf(err error) Code {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}
