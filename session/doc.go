// Package session provides the in-memory session registry.
//
// A session id is 256 bits from crypto/rand and doubles as a capability, so
// it is never derived from user data. Every session carries the token that
// was minted for it; [Registry.Create] stores a session only once that token
// exists.
//
// # Lifecycle
//
// Sessions are created active and become inactive exactly once, by
// [Registry.End], by [Registry.EndAllForUser], or lazily when a lookup finds
// them past ExpiresAt. Inactive sessions are never returned and are removed
// from the per-user index at the moment they end. [Registry.Sweep] ends
// expired sessions nobody looked up and purges inactive records.
//
// # What this package must NOT do
//
//   - Import goSignIn, jwt, or providers (no upward imports).
//   - Interpret token contents or make authorization decisions.
package session
