package goSignIn

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/goSignIn/autherr"
	"github.com/MrEthical07/goSignIn/internal/rate"
	"github.com/MrEthical07/goSignIn/internal/validate"
	"github.com/MrEthical07/goSignIn/users"
)

// resetBinding ties a reset token to the password it replaces. Changing the
// password by any route invalidates every outstanding reset token.
func (e *Engine) resetBinding(u *User) (string, error) {
	plain := u.Email + "|" + strconv.FormatInt(u.PasswordChangedAt.UnixNano(), 10)
	return e.security.SealString([]byte(plain), resetAAD(u.ID))
}

func resetAAD(userID int64) []byte {
	return []byte("password_reset:" + strconv.FormatInt(userID, 10))
}

// RequestPasswordReset issues a reset token for the local account at email.
// An unknown email yields a nil ticket and a nil error so callers respond
// identically either way.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (ticket *PasswordResetTicket, err error) {
	if !e.config.PasswordReset.Enabled {
		return nil, ErrFeatureDisabled
	}
	ctx, span := e.startSpan(ctx, "RequestPasswordReset")
	defer func() { endSpan(span, err) }()

	decision, err := e.throttle.Check(ctx, throttleReset+users.FoldEmail(email), rate.Options{})
	if err != nil {
		return nil, fmt.Errorf("%w: throttle unavailable", autherr.ErrInternal)
	}
	if !decision.Allowed {
		return nil, &RateLimitError{ResetAt: decision.ResetAt}
	}

	e.metricInc(MetricPasswordResetRequest)
	u, err := e.users.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, autherr.ErrUserNotFound) {
			e.emitAudit(ctx, auditRecord{eventType: auditEventPasswordResetRequest, err: err})
			return nil, nil
		}
		return nil, publicError(err)
	}
	if u.PasswordHash == "" {
		// Externally managed accounts have no password to reset.
		e.emitAudit(ctx, auditRecord{eventType: auditEventPasswordResetRequest, userID: u.ID, err: autherr.ErrInvalidCredentials})
		return nil, nil
	}

	binding, err := e.resetBinding(u)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", autherr.ErrInternal, err)
	}
	token, expiresAt, err := e.security.IssueWithTTL(map[string]any{
		ClaimSubject: strconv.FormatInt(u.ID, 10),
		ClaimType:    TokenTypeReset,
		ClaimBinding: binding,
	}, e.config.PasswordReset.TTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", autherr.ErrInternal, err)
	}

	e.emitAudit(ctx, auditRecord{eventType: auditEventPasswordResetRequest, success: true, userID: u.ID})
	return &PasswordResetTicket{Token: token, ExpiresAt: expiresAt}, nil
}

// ResetPassword sets a new password using a ticket from RequestPasswordReset
// and ends every session of the account. A ticket works once.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	if !e.config.PasswordReset.Enabled {
		return ErrFeatureDisabled
	}
	ctx, span := e.startSpan(ctx, "ResetPassword")
	defer func() { endSpan(span, err) }()

	userID, err := e.resetPassword(ctx, token, newPassword)
	if err != nil {
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, auditRecord{eventType: auditEventPasswordReset, userID: userID, err: err})
		return publicError(err)
	}

	ended := e.sessions.EndAllForUser(userID)
	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventPasswordReset,
		success:   true,
		userID:    userID,
		metadata: func() map[string]string {
			return map[string]string{"sessions_ended": strconv.Itoa(ended)}
		},
	})
	return nil
}

func (e *Engine) resetPassword(ctx context.Context, token, newPassword string) (int64, error) {
	v := e.security.Verify(token)
	if !v.Valid {
		return 0, v.Err
	}
	if typ, _ := v.Payload[ClaimType].(string); typ != TokenTypeReset {
		return 0, fmt.Errorf("%w: not a reset token", autherr.ErrInvalidToken)
	}
	sub, _ := v.Payload[ClaimSubject].(string)
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject", autherr.ErrInvalidToken)
	}

	u, err := e.users.ByID(ctx, userID)
	if err != nil {
		if errors.Is(err, autherr.ErrUserNotFound) {
			return userID, autherr.ErrInvalidToken
		}
		return userID, err
	}

	presented, _ := v.Payload[ClaimBinding].(string)
	got, err := e.security.OpenString(presented, resetAAD(userID))
	if err != nil {
		return userID, fmt.Errorf("%w: bad binding", autherr.ErrInvalidToken)
	}
	want := u.Email + "|" + strconv.FormatInt(u.PasswordChangedAt.UnixNano(), 10)
	if subtle.ConstantTimeCompare(got, []byte(want)) != 1 {
		return userID, autherr.ErrAlreadyUsed
	}

	if err := validate.NewPassword(newPassword, e.config.PasswordPolicy.policy()); err != nil {
		return userID, err
	}
	if err := e.password.ResetCredential(ctx, u.Email, newPassword); err != nil {
		return userID, err
	}
	return userID, nil
}

// ChangePassword replaces the password of userID after checking the current
// one. Other sessions of the account stay live.
func (e *Engine) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	err := e.changePassword(ctx, userID, oldPassword, newPassword)
	if err != nil {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditRecord{eventType: auditEventPasswordChange, userID: userID, err: err})
		return publicError(err)
	}
	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditRecord{eventType: auditEventPasswordChange, success: true, userID: userID})
	return nil
}

func (e *Engine) changePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	u, err := e.users.ByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.PasswordHash == "" || !e.security.VerifyPassword(oldPassword, u.PasswordHash) {
		return autherr.ErrInvalidCredentials
	}
	if oldPassword == newPassword {
		return fmt.Errorf("%w: new password must differ from the current one", autherr.ErrValidation)
	}
	if err := validate.NewPassword(newPassword, e.config.PasswordPolicy.policy()); err != nil {
		return err
	}
	return e.password.ResetCredential(ctx, u.Email, newPassword)
}
