package otel

import (
	"context"
	"errors"
	"fmt"

	notevault "github.com/MrEthical07/notevault"
	"github.com/MrEthical07/notevault/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// MetricsSource is satisfied by *notevault.Engine.
type MetricsSource interface {
	MetricsSnapshot() notevault.MetricsSnapshot
	AuditDropped() uint64
}

// OutcomeKey is the attribute that splits a family into its outcomes.
const OutcomeKey = attribute.Key("outcome")

type outcome struct {
	id    notevault.MetricID
	value string
}

// family is one instrument whose data points are the engine counters of a
// single flow, told apart by OutcomeKey.
type family struct {
	name     string
	help     string
	outcomes []outcome
}

var families = []family{
	{name: "notevault.signup", help: "Signup attempts by outcome.", outcomes: []outcome{
		{notevault.MetricSignupSuccess, "success"},
		{notevault.MetricSignupDuplicate, "duplicate"},
		{notevault.MetricSignupRateLimited, "rate_limited"},
	}},
	{name: "notevault.login", help: "Password checks by outcome.", outcomes: []outcome{
		{notevault.MetricLoginSuccess, "success"},
		{notevault.MetricLoginFailure, "invalid_credentials"},
		{notevault.MetricLoginLocked, "locked"},
		{notevault.MetricLoginRateLimited, "rate_limited"},
	}},
	{name: "notevault.lockout", help: "Lockout windows started.", outcomes: []outcome{
		{notevault.MetricAccountLockTriggered, "triggered"},
	}},
	{name: "notevault.mfa", help: "Second-factor events by outcome.", outcomes: []outcome{
		{notevault.MetricMFARequired, "challenged"},
		{notevault.MetricMFAEnrolled, "enrolled"},
		{notevault.MetricMFASuccess, "success"},
		{notevault.MetricMFAFailure, "invalid_code"},
		{notevault.MetricMFARateLimited, "rate_limited"},
		{notevault.MetricMFAReplayAttempt, "replay"},
	}},
	{name: "notevault.backup_code", help: "Backup code redemptions by outcome.", outcomes: []outcome{
		{notevault.MetricBackupCodeUsed, "success"},
		{notevault.MetricBackupCodeFailed, "invalid_code"},
	}},
	{name: "notevault.refresh", help: "Token pair rotations by outcome.", outcomes: []outcome{
		{notevault.MetricRefreshSuccess, "success"},
		{notevault.MetricRefreshFailure, "rejected"},
	}},
	{name: "notevault.session", help: "Session events outside login and refresh.", outcomes: []outcome{
		{notevault.MetricAccessRejected, "access_rejected"},
		{notevault.MetricLogout, "logout"},
		{notevault.MetricEncryptionSaltSet, "salt_set"},
		{notevault.MetricPasswordRehashed, "password_rehashed"},
	}},
}

type observedOutcome struct {
	id    notevault.MetricID
	attrs metric.ObserveOption
}

type observedFamily struct {
	instrument metric.Int64ObservableCounter
	outcomes   []observedOutcome
}

// The engine keeps fixed per-bucket counts rather than raw samples, so the
// latency histogram is published as a cumulative bucket gauge keyed by
// "le" plus a sample count.
type observedLatency struct {
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
	bounds  []metric.ObserveOption
}

// Exporter publishes engine metrics as OTel observable instruments. One
// callback reads a snapshot per collection cycle.
type Exporter struct {
	source       MetricsSource
	registration metric.Registration
	families     []observedFamily
	latency      observedLatency
	auditDropped metric.Int64ObservableCounter
}

// NewExporter registers instruments on meter. The caller owns the
// MeterProvider; Close unregisters the callback.
func NewExporter(meter metric.Meter, source MetricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}
	observables := make([]metric.Observable, 0, len(families)+3)

	for _, f := range families {
		ins, err := meter.Int64ObservableCounter(f.name, metric.WithDescription(f.help), metric.WithUnit("{event}"))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", f.name, err)
		}
		of := observedFamily{instrument: ins}
		for _, o := range f.outcomes {
			of.outcomes = append(of.outcomes, observedOutcome{
				id:    o.id,
				attrs: metric.WithAttributeSet(attribute.NewSet(OutcomeKey.String(o.value))),
			})
		}
		e.families = append(e.families, of)
		observables = append(observables, ins)
	}

	buckets, err := meter.Int64ObservableGauge("notevault.login.duration.bucket",
		metric.WithDescription("Cumulative password verification latency samples at or below le seconds."),
		metric.WithUnit("{sample}"))
	if err != nil {
		return nil, fmt.Errorf("create latency buckets: %w", err)
	}
	count, err := meter.Int64ObservableGauge("notevault.login.duration.count",
		metric.WithDescription("Password verification latency samples."),
		metric.WithUnit("{sample}"))
	if err != nil {
		return nil, fmt.Errorf("create latency count: %w", err)
	}
	e.latency = observedLatency{buckets: buckets, count: count}
	for _, le := range internaldefs.HistogramBounds {
		e.latency.bounds = append(e.latency.bounds,
			metric.WithAttributeSet(attribute.NewSet(attribute.String("le", le))))
	}
	observables = append(observables, buckets, count)

	e.auditDropped, err = meter.Int64ObservableCounter("notevault.audit.dropped",
		metric.WithDescription("Audit events dropped under dispatcher backpressure."),
		metric.WithUnit("{event}"))
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	observables = append(observables, e.auditDropped)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *Exporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, f := range e.families {
		for _, o := range f.outcomes {
			observer.ObserveInt64(f.instrument, int64(snapshot.Counters[o.id]), o.attrs)
		}
	}

	cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[notevault.MetricLoginLatency]))
	for i, attrs := range e.latency.bounds {
		observer.ObserveInt64(e.latency.buckets, int64(cumulative[i]), attrs)
	}
	observer.ObserveInt64(e.latency.count, int64(cumulative[len(cumulative)-1]))

	observer.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
