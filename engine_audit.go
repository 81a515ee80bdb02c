package goSignIn

import (
	"context"
	"strings"

	"github.com/MrEthical07/goSignIn/autherr"
)

const (
	auditEventSignInSuccess        = "sign_in_success"
	auditEventSignInFailure        = "sign_in_failure"
	auditEventSignInRateLimited    = "sign_in_rate_limited"
	auditEventTOTPRequired         = "totp_required"
	auditEventSignOut              = "sign_out"
	auditEventSignOutAll           = "sign_out_all"
	auditEventRegisterSuccess      = "register_success"
	auditEventRegisterFailure      = "register_failure"
	auditEventRefresh              = "refresh"
	auditEventMagicLinkIssued      = "magic_link_issued"
	auditEventPasswordResetRequest = "password_reset_request"
	auditEventPasswordReset        = "password_reset"
	auditEventPasswordChange       = "password_change"
	auditEventTOTPEnrollStarted    = "totp_enroll_started"
	auditEventTOTPEnabled          = "totp_enabled"
	auditEventTOTPDisabled         = "totp_disabled"
	auditEventRoleRevoked          = "role_revoked"
	auditEventUserDeleted          = "user_deleted"
	auditEventAccessDenied         = "access_denied"
)

// auditRecord is the engine-side view of an event before enrichment from
// ctx.
type auditRecord struct {
	eventType string
	success   bool
	userID    int64
	sessionID string
	provider  string
	err       error
	metadata  func() map[string]string
}

func (e *Engine) emitAudit(ctx context.Context, rec auditRecord) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: rec.eventType,
		UserID:    rec.userID,
		SessionID: rec.sessionID,
		Provider:  rec.provider,
		IP:        clientIPFromContext(ctx),
		Success:   rec.success,
		Error:     auditErrorCode(rec.err),
	}
	if rec.metadata != nil {
		event.Metadata = rec.metadata()
	}

	e.audit.Emit(ctx, event)
}

// auditErrorCode is the lower-cased taxonomy kind, so audit consumers see
// the internal reason (user_not_found, account_locked) that callers do not.
func auditErrorCode(err error) string {
	if err == nil {
		return ""
	}
	return strings.ToLower(string(autherr.KindOf(err)))
}
