package observe_test

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"audiocorpus/internal/observe"
)

func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestVerdictCounterCountsEveryReason(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.CountVerdict(ctx, false, []string{"too_short", "low_snr"})
	m.CountVerdict(ctx, true, nil)

	metric := findMetric(collect(t, reader), "audiocorpus.quality.verdicts")
	if metric == nil {
		t.Fatal("verdict metric not found")
	}
	sum, ok := metric.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", metric.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if len(sum.DataPoints) != 3 || total != 3 {
		t.Fatalf("expected 3 data points totalling 3, got %d points total %d", len(sum.DataPoints), total)
	}
}

func TestStageDurationHistogram(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.ObserveStageJob(context.Background(), "cleaning", 1500*time.Millisecond, true)

	metric := findMetric(collect(t, reader), "audiocorpus.stage.duration")
	if metric == nil {
		t.Fatal("duration metric not found")
	}
	hist, ok := metric.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 {
		t.Fatalf("unexpected histogram data: %#v", metric.Data)
	}
	if hist.DataPoints[0].Count != 1 || hist.DataPoints[0].Sum != 1.5 {
		t.Fatalf("unexpected histogram point: %+v", hist.DataPoints[0])
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *observe.Metrics
	m.CountFile(context.Background(), true)
	m.CountStageOutcome(context.Background(), "loading", false)
	m.CountBlob(context.Background(), "put", "success")
}

func TestPrometheusHandlerExposesCounters(t *testing.T) {
	provider, err := observe.NewPrometheusProvider()
	if err != nil {
		t.Fatalf("NewPrometheusProvider: %v", err)
	}
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	provider.Metrics.CountFile(context.Background(), true)

	rec := httptest.NewRecorder()
	provider.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "audiocorpus_files_processed") {
		t.Fatalf("expected files counter in exposition, got:\n%s", body)
	}
}
