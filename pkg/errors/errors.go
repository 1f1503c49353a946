// Package errors defines the typed errors shared across the credential
// lifecycle. Callers use the Is* predicates to distinguish terminal failures
// (re-authenticate) from transient ones (retry at the connector layer).
package errors

import (
	"errors"
	"fmt"
)

// Error types
const (
	// ErrConfiguration is returned when OAuth client configuration is missing or invalid
	ErrConfiguration = "configuration"

	// ErrAuthenticationRequired is returned when no usable credential is stored for a user
	ErrAuthenticationRequired = "authentication_required"

	// ErrTokenExchange is returned when the provider rejects a code or refresh token
	ErrTokenExchange = "token_exchange"

	// ErrTransport is returned on network or timeout failures talking to the provider
	ErrTransport = "transport"

	// ErrCallbackTimeout is returned when the OAuth callback never arrives within the bound
	ErrCallbackTimeout = "callback_timeout"

	// ErrInternal is returned when there is an internal error
	ErrInternal = "internal"
)

// Error represents an error in the credential lifecycle
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(message string, cause error) *Error {
	return NewError(ErrConfiguration, message, cause)
}

// NewAuthenticationRequiredError creates a new authentication required error
func NewAuthenticationRequiredError(message string, cause error) *Error {
	return NewError(ErrAuthenticationRequired, message, cause)
}

// NewTokenExchangeError creates a new token exchange error
func NewTokenExchangeError(message string, cause error) *Error {
	return NewError(ErrTokenExchange, message, cause)
}

// NewTransportError creates a new transport error
func NewTransportError(message string, cause error) *Error {
	return NewError(ErrTransport, message, cause)
}

// NewCallbackTimeoutError creates a new callback timeout error
func NewCallbackTimeoutError(message string, cause error) *Error {
	return NewError(ErrCallbackTimeout, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternal, message, cause)
}

func isType(err error, errorType string) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == errorType
}

// IsConfiguration checks if the error is a configuration error
func IsConfiguration(err error) bool {
	return isType(err, ErrConfiguration)
}

// IsAuthenticationRequired checks if the error is an authentication required error
func IsAuthenticationRequired(err error) bool {
	return isType(err, ErrAuthenticationRequired)
}

// IsTokenExchange checks if the error is a token exchange error
func IsTokenExchange(err error) bool {
	return isType(err, ErrTokenExchange)
}

// IsTransport checks if the error is a transport error
func IsTransport(err error) bool {
	return isType(err, ErrTransport)
}

// IsCallbackTimeout checks if the error is a callback timeout error
func IsCallbackTimeout(err error) bool {
	return isType(err, ErrCallbackTimeout)
}

// IsInternal checks if the error is an internal error
func IsInternal(err error) bool {
	return isType(err, ErrInternal)
}

// IsRetryable reports whether the failure is potentially transient.
// Only transport failures qualify; everything else needs operator action.
func IsRetryable(err error) bool {
	return IsTransport(err)
}
