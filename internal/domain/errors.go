package domain

import (
	"errors"
	"fmt"
)

// ErrUnauthorized reports a 401 on a protected call. The dispatcher treats
// it as terminal: credentials are cleared locally, the send is not retried.
var ErrUnauthorized = errors.New("unauthorized")

// GenericConnectivityMessage is surfaced when a remote call fails without a
// server-provided message.
const GenericConnectivityMessage = "impossible de contacter le serveur"

// SessionExpiredMessage is the session-level error set after a 401.
const SessionExpiredMessage = "session expirée, veuillez vous reconnecter"

// ValidationError rejects malformed login/register input before any network
// call is attempted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AuthError is a login/register/refresh rejection. Message carries the
// server-provided detail verbatim when there is one.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// NewAuthError builds an AuthError, falling back to the generic connectivity
// message when the server gave none.
func NewAuthError(message string) *AuthError {
	if message == "" {
		message = GenericConnectivityMessage
	}
	return &AuthError{Message: message}
}

// TransportError is a network or non-auth HTTP failure on a chat call. It is
// surfaced as a conversation-level error; the optimistic user message stays.
type TransportError struct {
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError builds a TransportError with the generic connectivity
// fallback message.
func NewTransportError(message string, err error) *TransportError {
	if message == "" {
		message = GenericConnectivityMessage
	}
	return &TransportError{Message: message, Err: err}
}
