// Package autherr defines the error taxonomy shared by every goSignIn component.
//
// Each kind is a sentinel *Error compared with errors.Is. Components wrap the
// sentinels with fmt.Errorf("%w: ...") to add detail without losing the kind.
//
// # What this package must NOT do
//
//   - Import any other goSignIn package.
//   - Carry user-facing messages that distinguish "no such user" from "wrong secret".
package autherr

import "errors"

// Kind is the stable, machine-readable name of an error class.
type Kind string

const (
	KindInvalidCredentials      Kind = "INVALID_CREDENTIALS"
	KindUserNotFound            Kind = "USER_NOT_FOUND"
	KindUserExists              Kind = "USER_EXISTS"
	KindAccountLocked           Kind = "ACCOUNT_LOCKED"
	KindInvalidToken            Kind = "INVALID_TOKEN"
	KindInvalidSignature        Kind = "INVALID_SIGNATURE"
	KindTokenExpired            Kind = "TOKEN_EXPIRED"
	KindSessionExpired          Kind = "SESSION_EXPIRED"
	KindRateLimited             Kind = "RATE_LIMITED"
	KindInsufficientPermissions Kind = "INSUFFICIENT_PERMISSIONS"
	KindValidation              Kind = "VALIDATION_ERROR"
	KindProviderNotFound        Kind = "PROVIDER_NOT_FOUND"
	KindInvalidOrExpiredLink    Kind = "INVALID_OR_EXPIRED_LINK"
	KindAlreadyUsed             Kind = "ALREADY_USED"
	KindTOTPRequired            Kind = "TOTP_REQUIRED"
	KindInternal                Kind = "INTERNAL_ERROR"
)

// Error is a taxonomy entry. Values are only ever created in this package.
type Error struct {
	kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Kind returns the error class.
func (e *Error) Kind() Kind { return e.kind }

var (
	ErrInvalidCredentials      = &Error{KindInvalidCredentials, "invalid credentials"}
	ErrUserNotFound            = &Error{KindUserNotFound, "user not found"}
	ErrUserExists              = &Error{KindUserExists, "user already exists"}
	ErrAccountLocked           = &Error{KindAccountLocked, "account locked"}
	ErrInvalidToken            = &Error{KindInvalidToken, "invalid token"}
	ErrInvalidSignature        = &Error{KindInvalidSignature, "invalid token signature"}
	ErrTokenExpired            = &Error{KindTokenExpired, "token expired"}
	ErrSessionExpired          = &Error{KindSessionExpired, "session expired"}
	ErrRateLimited             = &Error{KindRateLimited, "too many attempts"}
	ErrInsufficientPermissions = &Error{KindInsufficientPermissions, "insufficient permissions"}
	ErrValidation              = &Error{KindValidation, "validation failed"}
	ErrProviderNotFound        = &Error{KindProviderNotFound, "provider not found"}
	ErrInvalidOrExpiredLink    = &Error{KindInvalidOrExpiredLink, "invalid or expired link"}
	ErrAlreadyUsed             = &Error{KindAlreadyUsed, "link already used"}
	ErrTOTPRequired            = &Error{KindTOTPRequired, "totp code required"}
	ErrInternal                = &Error{KindInternal, "internal error"}
)

// KindOf reports the taxonomy kind carried by err, or KindInternal when err is
// non-nil but outside the taxonomy. It returns "" for a nil error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindInternal
}
