// Package audit implements async event dispatching for sign-in activity.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, fan-out, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event]: structured record with id, timestamp, type, user, session, IP, metadata.
//
// This package owns buffering and delivery. It does NOT decide which events
// to emit; the engine does.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import goSignIn or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
