// Package observe records pipeline metrics through the OpenTelemetry metrics
// API and exposes them for Prometheus scraping.
//
// NewMetrics builds the instruments from any metric.MeterProvider; tests use
// an sdkmetric.ManualReader. Serve wires a Prometheus exporter bridge and
// serves /metrics with promhttp until the context ends. A nil *Metrics is
// valid and records nothing.
package observe
