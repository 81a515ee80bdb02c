package otel

import (
	"context"
	"sync"
	"testing"

	goSignIn "github.com/MrEthical07/goSignIn"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot goSignIn.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() goSignIn.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := goSignIn.MetricsSnapshot{
		Counters:   make(map[goSignIn.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[goSignIn.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReaderMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func findSum(rm metricdata.ResourceMetrics, name string) (int64, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok && len(sum.DataPoints) > 0 {
				return sum.DataPoints[0].Value, true
			}
			if g, ok := m.Data.(metricdata.Gauge[int64]); ok && len(g.DataPoints) > 0 {
				return g.DataPoints[0].Value, true
			}
		}
	}
	return 0, false
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newReaderMeter()
	meter := provider.Meter("signin-test")

	src := &fakeSource{
		snapshot: goSignIn.MetricsSnapshot{
			Counters: map[goSignIn.MetricID]uint64{
				goSignIn.MetricSignInSuccess: 3,
			},
			Histograms: map[goSignIn.MetricID][]uint64{
				goSignIn.MetricSignInLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := New(meter, src)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if v, ok := findSum(rm, "signin_success_total"); !ok || v != 3 {
		t.Fatalf("signin_success_total = %d, %v", v, ok)
	}
	if v, ok := findSum(rm, "signin_sign_in_latency_seconds_count"); !ok || v != 8 {
		t.Fatalf("latency count = %d, %v", v, ok)
	}
	if v, ok := findSum(rm, "signin_audit_dropped_total"); !ok || v != 1 {
		t.Fatalf("audit dropped = %d, %v", v, ok)
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newReaderMeter()

	if _, err := New(provider.Meter("signin-test"), nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := New(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReaderMeter()
	meter := provider.Meter("signin-test")

	src := &fakeSource{
		snapshot: goSignIn.MetricsSnapshot{
			Counters: map[goSignIn.MetricID]uint64{
				goSignIn.MetricSignInSuccess: 1,
			},
			Histograms: map[goSignIn.MetricID][]uint64{
				goSignIn.MetricGuardLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := New(meter, src)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer exp.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[goSignIn.MetricSignInSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
