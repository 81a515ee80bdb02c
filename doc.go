// Package goSignIn is a credential-issuance and session-management engine:
// pluggable sign-in providers, signed bearer tokens, a server-side session
// registry and a sliding-window attempt throttle.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// goSignIn is the public surface. It exposes [Engine], [Builder], [Config],
// [Guard] and value types (SignInResult, AccessResult, MetricsSnapshot).
// Providers live under providers/, the token codec under security/ and jwt/,
// the session registry under session/ and the credential store under users/.
// Throttling, sweeping, validation and audit dispatch live under internal/.
//
// # Sessions are the revocation point
//
// A token carries the id of the session it was issued for. The [Guard]
// accepts a token only while that session is live and still holds that exact
// token, so signing out, refreshing, revoking a role or deleting an account
// takes effect immediately even though the token itself has not expired.
//
// # What this package must NOT do
//
//   - Reveal through its errors whether an email address has an account.
//   - Let a provider panic escape an Engine method.
//   - Run background work that outlives [Engine.Close].
package goSignIn
