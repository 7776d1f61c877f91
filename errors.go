package taskauth

import "errors"

var (
	ErrSessionInvalid   = errors.New("session invalid or expired")
	ErrUserNotFound     = errors.New("user not found")
	ErrStoreUnavailable = errors.New("session store unavailable")
	ErrTokenInvalid     = errors.New("token is invalid")
)

// Reasons reported by AuthError. They are fixed strings and never include
// store or decoder details.
const (
	ReasonSessionInvalid = "session invalid or expired"
	ReasonUserNotFound   = "user not found"
	ReasonTokenInvalid   = "token is invalid"
	ReasonAuthFailed     = "authentication failed"
)

// AuthError is an authentication failure. Reason is safe to show; the wrapped
// cause is for server logs only.
type AuthError struct {
	Reason string
	cause  error
}

func (e *AuthError) Error() string { return e.Reason }

func (e *AuthError) Unwrap() error { return e.cause }

func authFailure(reason string, cause error) *AuthError {
	return &AuthError{Reason: reason, cause: cause}
}
