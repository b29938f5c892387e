// Package otel binds notevault engine metrics to OpenTelemetry observable
// instruments.
//
// Counters are grouped per flow (signup, login, lockout, mfa, backup_code,
// refresh, session) into one Int64ObservableCounter each, with the engine
// counter selected by the "outcome" attribute. Login latency is published
// as cumulative bucket gauges keyed by "le". The caller supplies the Meter
// and owns the MeterProvider.
package otel
