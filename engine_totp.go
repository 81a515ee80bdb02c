package goSignIn

import (
	"context"
	"fmt"

	"github.com/MrEthical07/goSignIn/autherr"
	"github.com/MrEthical07/goSignIn/users"
)

// EnrollTOTP generates a fresh secret for userID. The secret is stored but
// not enforced until ConfirmTOTP succeeds; calling EnrollTOTP again replaces
// an unconfirmed secret.
func (e *Engine) EnrollTOTP(ctx context.Context, userID int64) (*TOTPSetup, error) {
	if e.totp == nil {
		return nil, ErrFeatureDisabled
	}
	u, err := e.users.ByID(ctx, userID)
	if err != nil {
		return nil, publicError(err)
	}
	if u.TOTPEnabled {
		return nil, fmt.Errorf("%w: totp already enabled", autherr.ErrValidation)
	}

	setup, err := e.totp.GenerateSecret(u.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", autherr.ErrInternal, err)
	}
	if _, err := e.users.Update(ctx, userID, users.Patch{TOTPSecret: users.Ptr(setup.Secret)}); err != nil {
		return nil, publicError(err)
	}

	e.emitAudit(ctx, auditRecord{eventType: auditEventTOTPEnrollStarted, success: true, userID: userID})
	return setup, nil
}

// ConfirmTOTP enables TOTP for userID once code matches the pending secret.
func (e *Engine) ConfirmTOTP(ctx context.Context, userID int64, code string) error {
	if e.totp == nil {
		return ErrFeatureDisabled
	}
	u, err := e.users.ByID(ctx, userID)
	if err != nil {
		return publicError(err)
	}
	if u.TOTPEnabled {
		return nil
	}
	if u.TOTPSecret == "" {
		return fmt.Errorf("%w: totp enrollment not started", autherr.ErrValidation)
	}
	if !e.totp.Verify(u.TOTPSecret, code) {
		e.metricInc(MetricTOTPFailure)
		e.emitAudit(ctx, auditRecord{eventType: auditEventTOTPEnabled, userID: userID, err: autherr.ErrInvalidCredentials})
		return autherr.ErrInvalidCredentials
	}

	if _, err := e.users.Update(ctx, userID, users.Patch{TOTPEnabled: users.Ptr(true)}); err != nil {
		return publicError(err)
	}
	e.metricInc(MetricTOTPEnrolled)
	e.emitAudit(ctx, auditRecord{eventType: auditEventTOTPEnabled, success: true, userID: userID})
	return nil
}

// DisableTOTP turns TOTP off for userID. A current code is required.
func (e *Engine) DisableTOTP(ctx context.Context, userID int64, code string) error {
	if e.totp == nil {
		return ErrFeatureDisabled
	}
	u, err := e.users.ByID(ctx, userID)
	if err != nil {
		return publicError(err)
	}
	if !u.TOTPEnabled {
		return nil
	}
	if !e.totp.Verify(u.TOTPSecret, code) {
		e.metricInc(MetricTOTPFailure)
		return autherr.ErrInvalidCredentials
	}

	if _, err := e.users.Update(ctx, userID, users.Patch{
		TOTPEnabled: users.Ptr(false),
		TOTPSecret:  users.Ptr(""),
	}); err != nil {
		return publicError(err)
	}
	e.metricInc(MetricTOTPDisabled)
	e.emitAudit(ctx, auditRecord{eventType: auditEventTOTPDisabled, success: true, userID: userID})
	return nil
}
