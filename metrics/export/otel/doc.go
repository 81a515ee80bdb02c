// Package otel binds goSignIn engine metrics to OpenTelemetry asynchronous
// instruments.
//
// The caller owns the MeterProvider and passes a Meter to New. One callback
// reads Engine.MetricsSnapshot per collection cycle; the exporter never
// mutates engine state.
package otel
