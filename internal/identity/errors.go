package identity

import (
	"errors"
	"net/http"
)

// Kind classifies domain errors for the HTTP boundary.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindConflict
	KindRateLimit
	KindNotFound
	KindDelivery
)

// Status maps the kind to an HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindConflict, KindRateLimit:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error whose Message is safe to show to callers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind and message so a wrapped copy of a sentinel still
// satisfies errors.Is against that sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

func (e *Error) wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Message: e.Message, Err: cause}
}

var (
	ErrMissingFields      = &Error{Kind: KindValidation, Message: "All fields are required."}
	ErrInvalidPhone       = &Error{Kind: KindValidation, Message: "Invalid Indian phone number."}
	ErrInvalidMethod      = &Error{Kind: KindValidation, Message: "Invalid verification method."}
	ErrInvalidOTP         = &Error{Kind: KindValidation, Message: "Invalid OTP."}
	ErrOTPExpired         = &Error{Kind: KindValidation, Message: "OTP expired."}
	ErrMissingCredentials = &Error{Kind: KindValidation, Message: "Email and password required."}
	ErrInvalidCredentials = &Error{Kind: KindValidation, Message: "Invalid credentials."}
	ErrInvalidResetToken  = &Error{Kind: KindValidation, Message: "Invalid or expired token."}
	ErrPasswordMismatch   = &Error{Kind: KindValidation, Message: "Passwords do not match."}
	ErrAlreadyInUse       = &Error{Kind: KindConflict, Message: "Phone or Email already in use."}
	ErrTooManyAttempts    = &Error{Kind: KindRateLimit, Message: "Maximum attempts exceeded. Try again after some time."}
	ErrUserNotFound       = &Error{Kind: KindNotFound, Message: "User not found."}
	ErrDelivery           = &Error{Kind: KindDelivery, Message: "Failed to send verification code."}
	ErrResetDelivery      = &Error{Kind: KindDelivery, Message: "Failed to send password reset email."}
)

// Repository level sentinels.
var (
	// ErrNotFound is returned by repositories when no record matches.
	ErrNotFound = errors.New("user record not found")
	// ErrDuplicate is returned when a write would create a second verified
	// account for an email or phone.
	ErrDuplicate = errors.New("verified account already exists")
)

// KindOf returns the kind of a domain error, or 0 for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
