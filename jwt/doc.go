// Package jwt issues and verifies HS256-signed bearer tokens carrying an
// arbitrary claim map plus an injected expiry.
//
// # Verification order
//
// The signature is checked against the literal header.payload bytes before
// any claim is decoded, so a tampered token always reports
// [autherr.ErrInvalidSignature] regardless of which segment changed. Only then
// are claims parsed and the expiry compared to the manager clock.
//
// # What this package must NOT do
//
//   - Keep a revocation list (sessions are the revocation point).
//   - Accept any algorithm other than HS256.
package jwt
