package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/MrEthical07/loginbridge"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot loginbridge.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() loginbridge.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := loginbridge.MetricsSnapshot{
		Counters:   make(map[loginbridge.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[loginbridge.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func findSum(rm metricdata.ResourceMetrics, name string) (int64, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if len(data.DataPoints) > 0 {
					return data.DataPoints[0].Value, true
				}
			case metricdata.Gauge[int64]:
				if len(data.DataPoints) > 0 {
					return data.DataPoints[0].Value, true
				}
			}
		}
	}
	return 0, false
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newTestMeter()
	meter := provider.Meter("loginbridge-test")

	src := &fakeSource{
		snapshot: loginbridge.MetricsSnapshot{
			Counters: map[loginbridge.MetricID]uint64{
				loginbridge.MetricLoginSucceeded: 3,
			},
			Histograms: map[loginbridge.MetricID][]uint64{
				loginbridge.MetricLoginLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
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

	if v, ok := findSum(rm, "loginbridge_login_succeeded_total"); !ok || v != 3 {
		t.Fatalf("expected succeeded counter 3, got %d (found=%v)", v, ok)
	}
	if v, ok := findSum(rm, "loginbridge_login_latency_seconds_bucket_le_inf"); !ok || v != 8 {
		t.Fatalf("expected +Inf bucket 8, got %d (found=%v)", v, ok)
	}
	if v, ok := findSum(rm, "loginbridge_audit_dropped_total"); !ok || v != 1 {
		t.Fatalf("expected audit dropped 1, got %d (found=%v)", v, ok)
	}
}

func TestExporterReadsCoordinator(t *testing.T) {
	reader, provider := newTestMeter()

	c, err := loginbridge.New().
		WithIdentityService("EOS", nil).
		Build()
	if err != nil {
		t.Fatalf("build coordinator: %v", err)
	}
	c.Initialize()
	defer c.Close()

	// No facade is attached, so Login is rejected and counted.
	if err := c.Login(context.Background(), 0, loginbridge.MethodDefault); err == nil {
		t.Fatal("expected login without facade to fail")
	}

	exp, err := NewOTelExporter(provider.Meter("loginbridge-test"), c)
	if err != nil {
		t.Fatalf("NewOTelExporter failed: %v", err)
	}
	defer exp.Close()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if v, ok := findSum(rm, "loginbridge_login_no_facade_total"); !ok || v != 1 {
		t.Fatalf("expected no-facade counter 1, got %d (found=%v)", v, ok)
	}
}

func TestExporterRejectsNilSource(t *testing.T) {
	_, provider := newTestMeter()
	meter := provider.Meter("loginbridge-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err == nil {
		t.Fatal("expected error for nil source")
	}
	if _, err := NewOTelExporter(meter, nil); err == nil {
		t.Fatal("expected error for nil coordinator")
	}
	if _, err := NewOTelExporterFromSource(nil, &fakeSource{}); err == nil {
		t.Fatal("expected error for nil meter")
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newTestMeter()
	meter := provider.Meter("loginbridge-test")

	src := &fakeSource{
		snapshot: loginbridge.MetricsSnapshot{
			Counters: map[loginbridge.MetricID]uint64{
				loginbridge.MetricLoginStarted: 1,
			},
			Histograms: map[loginbridge.MetricID][]uint64{
				loginbridge.MetricLoginLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[loginbridge.MetricLoginStarted] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
