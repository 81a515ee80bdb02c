// Package users defines the credential store contract and its in-memory
// implementation.
//
// [MemoryStore] keeps one primary table keyed by a strictly increasing id
// and derives three secondary indices from it: email, username, and the
// (provider, external id) pair. Every mutation updates the table and all
// indices under a single lock, so a lookup through any index always finds
// the record the primary table holds.
//
// Emails are matched case-insensitively: they are trimmed and lower-cased
// before being stored or looked up.
//
// # What this package must NOT do
//
//   - Hash, compare, or otherwise interpret password material.
//   - Import goSignIn or any provider package.
package users
