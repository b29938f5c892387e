// Package prometheus renders notevault engine metrics in Prometheus text
// exposition format.
//
// [NewExporter] reads a snapshot on every scrape; the server mounts
// [Exporter.Handler] at /metrics. Counter names are notevault_*_total and
// the single histogram is notevault_login_latency_seconds. Nothing is
// registered in a global registry.
package prometheus
