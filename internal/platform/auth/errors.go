package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/errorutils"
)

// Provider error codes surfaced to storefront clients.
const (
	CodeInvalidEmail         = "auth/invalid-email"
	CodeUserNotFound         = "auth/user-not-found"
	CodeWrongPassword        = "auth/wrong-password"
	CodeEmailAlreadyInUse    = "auth/email-already-in-use"
	CodeWeakPassword         = "auth/weak-password"
	CodeTooManyRequests      = "auth/too-many-requests"
	CodeNetworkRequestFailed = "auth/network-request-failed"
	CodeInvalidCredential    = "auth/invalid-credential"
	CodeIDTokenExpired       = "auth/id-token-expired"
	CodeIDTokenRevoked       = "auth/id-token-revoked"
	CodeUserDisabled         = "auth/user-disabled"
	CodeInternal             = "auth/internal-error"
)

// DefaultErrorMessage is shown for codes without a dedicated message.
const DefaultErrorMessage = "Something went wrong. Please try again."

var errorMessages = map[string]string{
	CodeInvalidEmail:         "Please enter a valid email address.",
	CodeUserNotFound:         "No account found with this email.",
	CodeWrongPassword:        "Incorrect password. Please try again.",
	CodeEmailAlreadyInUse:    "An account with this email already exists.",
	CodeWeakPassword:         "Password should be at least 6 characters.",
	CodeTooManyRequests:      "Too many attempts. Please try again later.",
	CodeNetworkRequestFailed: "Network error. Please check your connection.",
	CodeInvalidCredential:    "Invalid email or password.",
	CodeIDTokenExpired:       "Your session has expired. Please sign in again.",
	CodeIDTokenRevoked:       "Your session was revoked. Please sign in again.",
	CodeUserDisabled:         "This account has been disabled.",
}

// MessageFor returns the user-facing message for a provider error code.
func MessageFor(code string) string {
	if msg, ok := errorMessages[strings.TrimSpace(code)]; ok {
		return msg
	}
	return DefaultErrorMessage
}

// Error is a classified identity provider failure.
type Error struct {
	Code string
	Err  error
}

// NewError builds a classified error for code.
func NewError(code string, err error) *Error {
	return &Error{Code: code, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message returns the user-facing message for the error code.
func (e *Error) Message() string {
	return MessageFor(e.Code)
}

// ErrorCode extracts the provider code from err, falling back to CodeInternal.
func ErrorCode(err error) string {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Code
	}
	return CodeInternal
}

// ClassifyFirebaseError maps Firebase Admin SDK failures onto provider error codes.
func ClassifyFirebaseError(err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}

	code := CodeInternal
	switch {
	case firebaseauth.IsEmailAlreadyExists(err):
		code = CodeEmailAlreadyInUse
	case firebaseauth.IsInvalidEmail(err):
		code = CodeInvalidEmail
	case firebaseauth.IsUserNotFound(err), firebaseauth.IsEmailNotFound(err):
		code = CodeUserNotFound
	case firebaseauth.IsUserDisabled(err):
		code = CodeUserDisabled
	case firebaseauth.IsIDTokenExpired(err):
		code = CodeIDTokenExpired
	case firebaseauth.IsIDTokenRevoked(err):
		code = CodeIDTokenRevoked
	case firebaseauth.IsIDTokenInvalid(err):
		code = CodeInvalidCredential
	case errorutils.IsResourceExhausted(err):
		code = CodeTooManyRequests
	case errorutils.IsUnavailable(err), errorutils.IsDeadlineExceeded(err), isNetworkError(err):
		code = CodeNetworkRequestFailed
	case strings.Contains(strings.ToLower(err.Error()), "password"):
		code = CodeWeakPassword
	}
	return &Error{Code: code, Err: err}
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
