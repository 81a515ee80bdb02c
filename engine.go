package goSignIn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrEthical07/goSignIn/autherr"
	internalaudit "github.com/MrEthical07/goSignIn/internal/audit"
	"github.com/MrEthical07/goSignIn/internal/rate"
	"github.com/MrEthical07/goSignIn/internal/sweep"
	"github.com/MrEthical07/goSignIn/internal/validate"
	"github.com/MrEthical07/goSignIn/providers"
	"github.com/MrEthical07/goSignIn/providers/emailpassword"
	"github.com/MrEthical07/goSignIn/providers/magiclink"
	"github.com/MrEthical07/goSignIn/providers/totp"
	"github.com/MrEthical07/goSignIn/security"
	"github.com/MrEthical07/goSignIn/session"
	"github.com/MrEthical07/goSignIn/users"
)

// Throttle key namespaces. Sign-in attempts and link requests for the same
// email are budgeted separately.
const (
	throttleSignIn    = "signin:"
	throttleMagicLink = "link:"
	throttleReset     = "reset:"
)

// Engine sequences providers, tokens, sessions and the attempt throttle.
// It is safe for concurrent use once built.
type Engine struct {
	config Config
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time

	security  *security.Service
	users     users.Store
	sessions  *session.Registry
	providers *providers.Registry

	throttle    rate.Limiter
	memThrottle *rate.Memory

	password *emailpassword.Provider
	magic    *magiclink.Provider
	totp     *totp.Provider

	audit   *internalaudit.Dispatcher
	metrics *Metrics
	sweeper *sweep.Sweeper
}

// Close stops background sweeps and flushes the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.sweeper.Stop()
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns the current counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Providers lists the registered provider names.
func (e *Engine) Providers() []string {
	return e.providers.Names()
}

// Guard returns the access guard bound to this engine.
func (e *Engine) Guard() *Guard {
	return &Guard{engine: e}
}

func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "goSignIn."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(autherr.KindOf(err)))
	}
	span.End()
}

// SignIn authenticates creds with the named provider and opens a session.
//
// The attempt throttle is consulted before the provider is even looked up,
// so unknown accounts spend budget too. Accounts with TOTP enabled must
// also present creds.SecondFactor. On success the throttle key is cleared.
// On failure nothing is left behind; ErrUserNotFound is reported as
// ErrInvalidCredentials.
func (e *Engine) SignIn(ctx context.Context, providerName string, creds Credentials) (result *SignInResult, err error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, "SignIn", attribute.String("signin.provider", providerName))
	defer func() {
		e.metrics.Observe(MetricSignInLatency, time.Since(start))
		endSpan(span, err)
	}()

	key := e.throttleKey(ctx, creds)
	if key != "" {
		decision, terr := e.throttle.Check(ctx, throttleSignIn+key, rate.Options{})
		if terr != nil {
			e.logger.Error("sign-in throttle unavailable", "error", terr)
			return nil, fmt.Errorf("%w: throttle unavailable", autherr.ErrInternal)
		}
		if !decision.Allowed {
			e.metricInc(MetricSignInRateLimited)
			e.emitAudit(ctx, auditRecord{eventType: auditEventSignInRateLimited, provider: providerName, err: autherr.ErrRateLimited})
			return nil, &RateLimitError{ResetAt: decision.ResetAt, Remaining: decision.Remaining}
		}
	}

	principal, p, err := e.authenticate(ctx, providerName, creds)
	if err != nil {
		e.recordSignInFailure(ctx, providerName, err)
		return nil, publicError(err)
	}

	result, err = e.openSession(ctx, principal, p.Name())
	if err != nil {
		e.logger.Error("session create failed", "user_id", principal.ID, "error", err)
		e.recordSignInFailure(ctx, providerName, err)
		return nil, publicError(err)
	}

	if key != "" {
		if rerr := e.throttle.Reset(ctx, throttleSignIn+key); rerr != nil {
			e.logger.Warn("throttle reset failed", "error", rerr)
		}
	}

	e.metricInc(MetricSignInSuccess)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventSignInSuccess,
		success:   true,
		userID:    principal.ID,
		sessionID: result.SessionID,
		provider:  p.Name(),
	})
	span.SetAttributes(attribute.Int64("signin.user_id", principal.ID))
	return result, nil
}

// throttleKey is the credential identifier, falling back to the client IP
// for credentials that carry neither an email nor a token.
func (e *Engine) throttleKey(ctx context.Context, creds Credentials) string {
	if key := creds.ThrottleKey(); key != "" {
		return key
	}
	if ip := clientIPFromContext(ctx); ip != "" {
		return "ip:" + ip
	}
	return ""
}

func (e *Engine) authenticate(ctx context.Context, providerName string, creds Credentials) (*Principal, Provider, error) {
	p, ok := e.providers.Get(providerName)
	if !ok {
		return nil, nil, autherr.ErrProviderNotFound
	}

	if v, ok := p.(providers.CredentialValidator); ok {
		if err := v.ValidateCredentials(creds); err != nil {
			return nil, p, err
		}
	}

	principal, err := e.callProvider(ctx, p, creds)
	if err != nil {
		return nil, p, err
	}
	if principal == nil {
		return nil, p, fmt.Errorf("%w: provider %s returned no principal", autherr.ErrInternal, p.Name())
	}

	if principal.TOTPEnabled && p.Name() != totp.Name {
		if err := e.checkSecondFactor(ctx, principal, creds.SecondFactor); err != nil {
			return nil, p, err
		}
	}
	return principal, p, nil
}

// callProvider turns a provider panic into ErrInternal.
func (e *Engine) callProvider(ctx context.Context, p Provider, creds Credentials) (principal *Principal, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.metricInc(MetricProviderPanic)
			e.logger.Error("provider panicked", "provider", p.Name(), "panic", r)
			principal = nil
			err = fmt.Errorf("%w: provider %s failed", autherr.ErrInternal, p.Name())
		}
	}()
	return p.Authenticate(ctx, creds)
}

func (e *Engine) checkSecondFactor(ctx context.Context, principal *Principal, code string) error {
	if code == "" {
		e.metricInc(MetricTOTPRequired)
		e.emitAudit(ctx, auditRecord{eventType: auditEventTOTPRequired, userID: principal.ID, provider: principal.Provider})
		return autherr.ErrTOTPRequired
	}
	if e.totp == nil {
		return fmt.Errorf("%w: totp is disabled but the account requires it", autherr.ErrInternal)
	}

	u, err := e.users.ByID(ctx, principal.ID)
	if err != nil {
		return err
	}
	if !e.totp.Verify(u.TOTPSecret, code) {
		e.metricInc(MetricTOTPFailure)
		e.logger.Debug("sign-in refused", "reason", "totp_mismatch", "user_id", principal.ID)
		return autherr.ErrInvalidCredentials
	}
	e.metricInc(MetricTOTPSuccess)
	return nil
}

func (e *Engine) recordSignInFailure(ctx context.Context, providerName string, err error) {
	if errors.Is(err, autherr.ErrTOTPRequired) {
		return
	}
	e.metricInc(MetricSignInFailure)
	if errors.Is(err, autherr.ErrAccountLocked) {
		e.metricInc(MetricAccountLocked)
	}
	e.logger.Debug("sign-in failed", "provider", providerName, "reason", auditErrorCode(err))
	e.emitAudit(ctx, auditRecord{eventType: auditEventSignInFailure, provider: providerName, err: err})
}

func accessClaims(p *Principal, sessionID string) map[string]any {
	return map[string]any{
		ClaimSubject:  strconv.FormatInt(p.ID, 10),
		ClaimSession:  sessionID,
		ClaimEmail:    p.Email,
		ClaimRole:     string(p.Role),
		ClaimProvider: p.Provider,
		ClaimType:     TokenTypeAccess,
	}
}

// openSession mints the access token inside the registry's create callback,
// so a session never exists without its token and a failed mint leaves no
// session.
func (e *Engine) openSession(ctx context.Context, principal *Principal, providerName string) (*SignInResult, error) {
	var expiresAt time.Time
	sess, err := e.sessions.Create(principal.ID, session.Meta{
		Role:      string(principal.Role),
		Provider:  providerName,
		UserAgent: userAgentFromContext(ctx),
		IP:        clientIPFromContext(ctx),
	}, func(sessionID string) (string, error) {
		token, exp, err := e.security.Issue(accessClaims(principal, sessionID))
		expiresAt = exp
		return token, err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", autherr.ErrInternal, err)
	}

	e.metricInc(MetricSessionCreated)
	return &SignInResult{
		Principal: principal,
		Token:     sess.Token,
		SessionID: sess.ID,
		ExpiresAt: expiresAt,
	}, nil
}

// SignOut ends the session issued token. It returns nil whether or not the
// token matched a live session.
func (e *Engine) SignOut(ctx context.Context, token string) error {
	sess, ok := e.sessions.EndByToken(token)
	if !ok {
		return nil
	}
	e.metricInc(MetricSignOut)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventSignOut,
		success:   true,
		userID:    sess.UserID,
		sessionID: sess.ID,
		provider:  sess.Provider,
	})
	return nil
}

// SignOutAll ends every session of userID and returns how many were live.
func (e *Engine) SignOutAll(ctx context.Context, userID int64) int {
	n := e.sessions.EndAllForUser(userID)
	e.metricInc(MetricSignOutAll)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventSignOutAll,
		success:   true,
		userID:    userID,
		metadata: func() map[string]string {
			return map[string]string{"ended": strconv.Itoa(n)}
		},
	})
	return n
}

// Sessions lists the live sessions of userID, oldest first.
func (e *Engine) Sessions(_ context.Context, userID int64) []Session {
	return e.sessions.GetUserSessions(userID)
}

// VerifyToken checks the signature and expiry of token. It does not consult
// the session; use the Guard for request authorization.
func (e *Engine) VerifyToken(_ context.Context, token string) Verification {
	return e.security.Verify(token)
}

// Register creates a local account. The new account is unverified and is
// not signed in.
func (e *Engine) Register(ctx context.Context, reg Registration) (principal *Principal, err error) {
	ctx, span := e.startSpan(ctx, "Register")
	defer func() { endSpan(span, err) }()

	if err := validate.Register(validate.Registration{
		Email:           reg.Email,
		Username:        reg.Username,
		Password:        reg.Password,
		ConfirmPassword: reg.ConfirmPassword,
	}, e.config.PasswordPolicy.policy()); err != nil {
		e.metricInc(MetricRegisterInvalid)
		e.emitAudit(ctx, auditRecord{eventType: auditEventRegisterFailure, provider: emailpassword.Name, err: err})
		return nil, err
	}

	principal, err = e.password.Register(ctx, reg)
	if err != nil {
		if errors.Is(err, autherr.ErrUserExists) {
			e.metricInc(MetricRegisterDuplicate)
		}
		e.emitAudit(ctx, auditRecord{eventType: auditEventRegisterFailure, provider: emailpassword.Name, err: err})
		return nil, publicError(err)
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditRecord{eventType: auditEventRegisterSuccess, success: true, userID: principal.ID, provider: emailpassword.Name})
	return principal, nil
}

// Refresh exchanges the current token of a live session for a new one with
// a fresh expiry. The old token stops being accepted by the Guard.
func (e *Engine) Refresh(ctx context.Context, token string) (*SignInResult, error) {
	res, err := e.refresh(ctx, token)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditRecord{eventType: auditEventRefresh, err: err})
		return nil, publicError(err)
	}
	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditRecord{eventType: auditEventRefresh, success: true, userID: res.Principal.ID, sessionID: res.SessionID})
	return res, nil
}

func (e *Engine) refresh(ctx context.Context, token string) (*SignInResult, error) {
	claims, err := e.accessClaims(token)
	if err != nil {
		return nil, err
	}

	sess := e.sessions.Get(claims.sessionID)
	if sess == nil || sess.UserID != claims.userID {
		return nil, autherr.ErrSessionExpired
	}

	u, err := e.users.ByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, autherr.ErrUserNotFound) {
			e.sessions.End(sess.ID)
			return nil, autherr.ErrSessionExpired
		}
		return nil, err
	}
	principal := providers.PrincipalFromUser(u, sess.Provider)

	next, expiresAt, err := e.security.Issue(accessClaims(principal, sess.ID))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", autherr.ErrInternal, err)
	}
	if err := e.sessions.RotateToken(sess.ID, token, next); err != nil {
		if errors.Is(err, session.ErrTokenMismatch) {
			return nil, fmt.Errorf("%w: token already refreshed", autherr.ErrInvalidToken)
		}
		return nil, autherr.ErrSessionExpired
	}

	return &SignInResult{Principal: principal, Token: next, SessionID: sess.ID, ExpiresAt: expiresAt}, nil
}

type parsedAccess struct {
	userID    int64
	sessionID string
	email     string
	role      string
	provider  string
}

// accessClaims verifies token and decodes an access-token payload.
func (e *Engine) accessClaims(token string) (*parsedAccess, error) {
	v := e.security.Verify(token)
	if !v.Valid {
		return nil, v.Err
	}
	if typ, _ := v.Payload[ClaimType].(string); typ != TokenTypeAccess {
		return nil, fmt.Errorf("%w: not an access token", autherr.ErrInvalidToken)
	}

	sub, _ := v.Payload[ClaimSubject].(string)
	uid, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", autherr.ErrInvalidToken)
	}
	sid, _ := v.Payload[ClaimSession].(string)
	if sid == "" {
		return nil, fmt.Errorf("%w: missing session", autherr.ErrInvalidToken)
	}

	out := &parsedAccess{userID: uid, sessionID: sid}
	out.email, _ = v.Payload[ClaimEmail].(string)
	out.role, _ = v.Payload[ClaimRole].(string)
	out.provider, _ = v.Payload[ClaimProvider].(string)
	return out, nil
}

// GenerateMagicLink issues a single-use sign-in link for email. Requests
// per email are capped by MagicLinkConfig.MaxRequests.
func (e *Engine) GenerateMagicLink(ctx context.Context, email, redirect string) (*MagicLink, error) {
	if e.magic == nil {
		return nil, ErrFeatureDisabled
	}

	decision, err := e.throttle.Check(ctx, throttleMagicLink+users.FoldEmail(email), rate.Options{
		MaxAttempts: e.config.MagicLink.MaxRequests,
		Window:      e.config.MagicLink.RequestWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: throttle unavailable", autherr.ErrInternal)
	}
	if !decision.Allowed {
		return nil, &RateLimitError{ResetAt: decision.ResetAt}
	}

	link, err := e.magic.GenerateLink(ctx, email, redirect)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricMagicLinkIssued)
	e.emitAudit(ctx, auditRecord{eventType: auditEventMagicLinkIssued, success: true, provider: magiclink.Name})
	return link, nil
}

// RevokeRole ends every live session opened with role and returns how many
// were ended.
func (e *Engine) RevokeRole(ctx context.Context, role Role) int {
	n := e.sessions.EndByRole(string(role))
	e.metricInc(MetricRoleRevoked)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventRoleRevoked,
		success:   true,
		metadata: func() map[string]string {
			return map[string]string{"role": string(role), "ended": strconv.Itoa(n)}
		},
	})
	return n
}

// DeleteUser ends the account's sessions and removes it from the store.
// Deleting an unknown id is not an error.
func (e *Engine) DeleteUser(ctx context.Context, userID int64) error {
	e.sessions.EndAllForUser(userID)
	if err := e.users.Delete(ctx, userID); err != nil {
		return err
	}
	e.metricInc(MetricUserDeleted)
	e.emitAudit(ctx, auditRecord{eventType: auditEventUserDeleted, success: true, userID: userID})
	return nil
}

// ListUsers returns the accounts matching f ordered by id.
func (e *Engine) ListUsers(ctx context.Context, f UserFilter) ([]User, error) {
	return e.users.List(ctx, f)
}

// Sweep runs one reclamation pass immediately.
func (e *Engine) Sweep() {
	e.sweeper.RunOnce()
}

func (e *Engine) sweepTasks() []sweep.Task {
	tasks := []sweep.Task{{
		Name: "sessions",
		Run: func() int {
			n := e.sessions.Sweep()
			e.metrics.Add(MetricSessionSwept, uint64(n))
			return n
		},
	}}
	if e.memThrottle != nil {
		tasks = append(tasks, sweep.Task{Name: "throttle", Run: e.memThrottle.Sweep})
	}
	if e.magic != nil {
		tasks = append(tasks, sweep.Task{Name: "magic_links", Run: e.magic.Sweep})
	}
	return tasks
}
