// Package security is the token service: it owns the deployment secret and
// derives from it everything that needs keying.
//
//   - bearer tokens, through [jwt.Manager] (HS256, MAC key = secret)
//   - password hashes, through [password.Argon2] with the secret as pepper
//   - AES-256-GCM envelopes, with a key derived from the secret by HKDF
//
// The secret is fixed for the lifetime of a [Service]. A missing secret is
// reported by [New] and never surfaces per request.
package security
