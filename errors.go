package goSignIn

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goSignIn/autherr"
)

// ErrorKind is the machine-readable class of an engine error.
type ErrorKind = autherr.Kind

var (
	ErrInvalidCredentials      = autherr.ErrInvalidCredentials
	ErrUserNotFound            = autherr.ErrUserNotFound
	ErrUserExists              = autherr.ErrUserExists
	ErrAccountLocked           = autherr.ErrAccountLocked
	ErrInvalidToken            = autherr.ErrInvalidToken
	ErrInvalidSignature        = autherr.ErrInvalidSignature
	ErrTokenExpired            = autherr.ErrTokenExpired
	ErrSessionExpired          = autherr.ErrSessionExpired
	ErrRateLimited             = autherr.ErrRateLimited
	ErrInsufficientPermissions = autherr.ErrInsufficientPermissions
	ErrValidation              = autherr.ErrValidation
	ErrProviderNotFound        = autherr.ErrProviderNotFound
	ErrInvalidOrExpiredLink    = autherr.ErrInvalidOrExpiredLink
	ErrAlreadyUsed             = autherr.ErrAlreadyUsed
	ErrTOTPRequired            = autherr.ErrTOTPRequired
	ErrInternal                = autherr.ErrInternal
)

var (
	// ErrBuilderUsed is returned by a second call to Builder.Build.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrFeatureDisabled is returned by operations whose config section is
	// disabled.
	ErrFeatureDisabled = errors.New("feature disabled")
)

// KindOf returns the taxonomy kind carried by err. Errors outside the
// taxonomy report autherr.KindInternal.
func KindOf(err error) ErrorKind {
	return autherr.KindOf(err)
}

// RateLimitError is returned when the attempt throttle denies a request.
// errors.Is(err, ErrRateLimited) holds for it.
type RateLimitError struct {
	ResetAt   time.Time
	Remaining int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", autherr.ErrRateLimited.Error(), e.ResetAt.UTC().Format(time.RFC3339))
}

func (e *RateLimitError) Unwrap() error {
	return autherr.ErrRateLimited
}

// publicError strips detail that could help enumerate accounts. Unknown
// accounts look like wrong secrets, and anything outside the taxonomy
// becomes ErrInternal.
func publicError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, autherr.ErrUserNotFound):
		return autherr.ErrInvalidCredentials
	case autherr.KindOf(err) == autherr.KindInternal:
		return autherr.ErrInternal
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl
	}
	var kindErr *autherr.Error
	if errors.As(err, &kindErr) {
		return kindErr
	}
	return err
}
