package internaldefs

import (
	goSignIn "github.com/MrEthical07/goSignIn"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   goSignIn.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for export.
type HistogramDef struct {
	ID   goSignIn.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter exported for dispatcher backpressure drops.
const AuditDroppedName = "signin_audit_dropped_total"

// CounterDefs lists every exported counter in rendering order.
var CounterDefs = []CounterDef{
	{ID: goSignIn.MetricSignInSuccess, Name: "signin_success_total", Help: "Successful sign-in attempts."},
	{ID: goSignIn.MetricSignInFailure, Name: "signin_failure_total", Help: "Failed sign-in attempts."},
	{ID: goSignIn.MetricSignInRateLimited, Name: "signin_rate_limited_total", Help: "Sign-in attempts denied by the attempt throttle."},
	{ID: goSignIn.MetricAccountLocked, Name: "signin_account_locked_total", Help: "Sign-in attempts refused for a locked account."},
	{ID: goSignIn.MetricProviderPanic, Name: "signin_provider_panic_total", Help: "Provider panics recovered during sign-in."},
	{ID: goSignIn.MetricTOTPRequired, Name: "signin_totp_required_total", Help: "Sign-ins that stopped for a missing second factor."},
	{ID: goSignIn.MetricTOTPSuccess, Name: "signin_totp_success_total", Help: "Successful second-factor checks."},
	{ID: goSignIn.MetricTOTPFailure, Name: "signin_totp_failure_total", Help: "Failed second-factor checks."},
	{ID: goSignIn.MetricTOTPEnrolled, Name: "signin_totp_enrolled_total", Help: "Accounts that confirmed TOTP enrollment."},
	{ID: goSignIn.MetricTOTPDisabled, Name: "signin_totp_disabled_total", Help: "Accounts that disabled TOTP."},
	{ID: goSignIn.MetricSessionCreated, Name: "signin_session_created_total", Help: "Created sessions."},
	{ID: goSignIn.MetricSessionSwept, Name: "signin_session_swept_total", Help: "Sessions ended or purged by the periodic sweep."},
	{ID: goSignIn.MetricSignOut, Name: "signin_sign_out_total", Help: "Single-session sign-out operations."},
	{ID: goSignIn.MetricSignOutAll, Name: "signin_sign_out_all_total", Help: "Sign-out-everywhere operations."},
	{ID: goSignIn.MetricRegisterSuccess, Name: "signin_register_success_total", Help: "Successful registrations."},
	{ID: goSignIn.MetricRegisterDuplicate, Name: "signin_register_duplicate_total", Help: "Registrations rejected because the account exists."},
	{ID: goSignIn.MetricRegisterInvalid, Name: "signin_register_invalid_total", Help: "Registrations rejected by shape validation."},
	{ID: goSignIn.MetricRefreshSuccess, Name: "signin_refresh_success_total", Help: "Successful token refreshes."},
	{ID: goSignIn.MetricRefreshFailure, Name: "signin_refresh_failure_total", Help: "Failed token refreshes."},
	{ID: goSignIn.MetricMagicLinkIssued, Name: "signin_magic_link_issued_total", Help: "Magic links issued."},
	{ID: goSignIn.MetricPasswordResetRequest, Name: "signin_password_reset_request_total", Help: "Password reset requests."},
	{ID: goSignIn.MetricPasswordResetSuccess, Name: "signin_password_reset_success_total", Help: "Completed password resets."},
	{ID: goSignIn.MetricPasswordResetFailure, Name: "signin_password_reset_failure_total", Help: "Rejected password reset confirmations."},
	{ID: goSignIn.MetricPasswordChangeSuccess, Name: "signin_password_change_success_total", Help: "Successful password changes."},
	{ID: goSignIn.MetricPasswordChangeFailure, Name: "signin_password_change_failure_total", Help: "Rejected password changes."},
	{ID: goSignIn.MetricGuardAllowed, Name: "signin_guard_allowed_total", Help: "Requests admitted by the access guard."},
	{ID: goSignIn.MetricGuardDenied, Name: "signin_guard_denied_total", Help: "Requests denied for a missing or invalid session."},
	{ID: goSignIn.MetricGuardForbidden, Name: "signin_guard_forbidden_total", Help: "Requests denied for insufficient role."},
	{ID: goSignIn.MetricRoleRevoked, Name: "signin_role_revoked_total", Help: "Role-scoped mass revocations."},
	{ID: goSignIn.MetricUserDeleted, Name: "signin_user_deleted_total", Help: "Deleted accounts."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSignIn.MetricSignInLatency, Name: "signin_sign_in_latency_seconds", Help: "Sign-in latency histogram."},
	{ID: goSignIn.MetricGuardLatency, Name: "signin_guard_latency_seconds", Help: "Access guard latency histogram."},
}

// HistogramBounds are the upper bounds of the engine buckets in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds in a form usable inside metric names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
