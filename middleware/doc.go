// Package middleware adapts goSignIn guard checks to net/http and echo.
//
// # Adapters
//
//   - [Require] wraps an http.Handler with any goSignIn.Check.
//   - [RequireSignedIn] and [RequireRole] build the check from an Engine.
//   - [EchoRequire] is the echo.MiddlewareFunc form.
//
// Each adapter records the client IP and User-Agent on the request context,
// runs the check, and either rejects the request (403 for a missing role,
// 401 for everything else) or passes the AccessResult downstream.
//
// # What this package must NOT do
//
//   - Parse or verify tokens directly (the Guard does).
//   - Make authorization decisions beyond pass/reject from the check.
package middleware
