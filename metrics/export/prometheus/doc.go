// Package prometheus renders goSignIn engine metrics in the Prometheus text
// exposition format.
//
// Counters are named signin_*_total; histograms are signin_*_latency_seconds.
// The exporter registers nothing globally. Callers mount Handler themselves.
package prometheus
