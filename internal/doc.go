// Package internal contains helpers that are private to goSignIn: random
// identifiers and token digests.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - rate: sliding-window attempt throttle (memory and Redis backends)
//   - sweep: owned periodic maintenance loops
//   - validate: credential and registration shape rules
//
// # What this package must NOT do
//
//   - Export types that appear in the public goSignIn API.
//   - Be imported by any package outside the goSignIn module.
package internal
