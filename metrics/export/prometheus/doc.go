// Package prometheus exposes loginbridge metrics through client_golang.
//
// [Collector] is a prometheus.Collector that turns each
// [loginbridge.MetricsSnapshot] into const counters and a const histogram at
// scrape time. [NewHandler] wraps a dedicated registry with promhttp.
//
// # What this package must NOT do
//
//   - Register into prometheus.DefaultRegisterer implicitly.
//   - Mutate coordinator state.
package prometheus
