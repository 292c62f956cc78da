package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

// Kind is the fixed failure vocabulary surfaced by the gateway.
type Kind string

const (
	EmailInUse      Kind = "EMAIL_IN_USE"
	WeakPassword    Kind = "WEAK_PASSWORD"
	InvalidEmail    Kind = "INVALID_EMAIL"
	UserNotFound    Kind = "USER_NOT_FOUND"
	WrongPassword   Kind = "WRONG_PASSWORD"
	UserDisabled    Kind = "USER_DISABLED"
	TooManyRequests Kind = "TOO_MANY_REQUESTS"
	NetworkError    Kind = "NETWORK_ERROR"
	Unknown         Kind = "UNKNOWN"
)

// Op names the gateway operation a failure came from.
type Op string

const (
	OpSignUp       Op = "signUp"
	OpSignIn       Op = "signIn"
	OpSignOut      Op = "signOut"
	OpVerify       Op = "verifySession"
	OpRefresh      Op = "refreshSession"
	OpDisplayName  Op = "updateDisplayName"
	OpSaveProfile  Op = "saveProfile"
	OpFetchProfile Op = "fetchProfile"
)

// Error is a classified gateway failure.
type Error struct {
	Kind Kind
	Op   Op
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("identity %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("identity %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError classifies err under kind for op.
func NewError(op Op, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the failure kind; unclassified transport errors count as NetworkError.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var idErr *Error
	if errors.As(err, &idErr) {
		return idErr.Kind
	}
	if isNetworkError(err) {
		return NetworkError
	}
	return Unknown
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

var signUpMessages = map[Kind]string{
	EmailInUse:   "An account with this email already exists",
	WeakPassword: "Password is too weak",
	InvalidEmail: "Invalid email address",
	NetworkError: "Network error. Please check your connection.",
}

var signInMessages = map[Kind]string{
	UserNotFound:    "No account found with this email address",
	WrongPassword:   "Incorrect password",
	InvalidEmail:    "Invalid email address",
	UserDisabled:    "This account has been disabled",
	TooManyRequests: "Too many failed attempts. Please try again later.",
	NetworkError:    "Network error. Please check your connection.",
}

// Message is the human-readable submit-level message for a failure of op.
func (k Kind) Message(op Op) string {
	switch op {
	case OpSignUp:
		if msg, ok := signUpMessages[k]; ok {
			return msg
		}
		return "Failed to create account. Please try again."
	case OpSignIn:
		if msg, ok := signInMessages[k]; ok {
			return msg
		}
		return "Failed to log in. Please try again."
	case OpDisplayName:
		return "Failed to save information. Please try again."
	case OpSaveProfile:
		return "Failed to save address. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}

// HTTPStatus is the response status used when a failure of this kind reaches a client.
func (k Kind) HTTPStatus() int {
	switch k {
	case EmailInUse:
		return http.StatusConflict
	case WeakPassword, InvalidEmail:
		return http.StatusUnprocessableEntity
	case UserNotFound, WrongPassword:
		return http.StatusUnauthorized
	case UserDisabled:
		return http.StatusForbidden
	case TooManyRequests:
		return http.StatusTooManyRequests
	case NetworkError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
