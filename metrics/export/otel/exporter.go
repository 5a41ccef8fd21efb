package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrEthical07/crossauth"
	"github.com/MrEthical07/crossauth/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("otel: nil meter")
	ErrNilSource = errors.New("otel: nil metrics source")
)

// Source is the read side of a [crossauth.Manager].
type Source interface {
	MetricsSnapshot() crossauth.MetricsSnapshot
	AuditDropped() uint64
	CachedSessions() int
}

type counterInstrument struct {
	id  crossauth.MetricID
	ins metric.Int64ObservableCounter
}

type latencyInstrument struct {
	id      crossauth.MetricID
	buckets [crossauth.LatencyBucketCount]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter holds the instruments and callback registration for one Source.
type Exporter struct {
	source         Source
	registration   metric.Registration
	counters       []counterInstrument
	latency        []latencyInstrument
	auditDropped   metric.Int64ObservableCounter
	cachedSessions metric.Int64ObservableGauge
}

// New registers crossauth instruments on meter and observes source on every collection.
func New(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}
	observables := make([]metric.Observable, 0, len(internaldefs.CounterDefs)+len(internaldefs.HistogramDefs)*(crossauth.LatencyBucketCount+1)+2)

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("otel: counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, counterInstrument{id: def.ID, ins: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		li := latencyInstrument{id: def.ID}
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			name := def.Name + "_bucket_le_" + suffix
			ins, err := meter.Int64ObservableGauge(name,
				metric.WithDescription("Cumulative validate latency bucket, le="+internaldefs.HistogramBounds[i]+"s."))
			if err != nil {
				return nil, fmt.Errorf("otel: bucket gauge %s: %w", name, err)
			}
			li.buckets[i] = ins
			observables = append(observables, ins)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription("Validate latency sample count."))
		if err != nil {
			return nil, fmt.Errorf("otel: count gauge %s: %w", def.Name, err)
		}
		li.count = count
		observables = append(observables, count)
		e.latency = append(e.latency, li)
	}

	var err error
	e.auditDropped, err = meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp))
	if err != nil {
		return nil, fmt.Errorf("otel: audit dropped counter: %w", err)
	}
	e.cachedSessions, err = meter.Int64ObservableGauge(internaldefs.CachedSessionsName,
		metric.WithDescription(internaldefs.CachedSessionsHelp))
	if err != nil {
		return nil, fmt.Errorf("otel: cached sessions gauge: %w", err)
	}
	observables = append(observables, e.auditDropped, e.cachedSessions)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("otel: register callback: %w", err)
	}
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()

	// Disabled metrics produce an empty snapshot; report nothing rather than zeros.
	if len(snapshot.Counters) > 0 {
		for _, c := range e.counters {
			o.ObserveInt64(c.ins, int64(snapshot.Counters[c.id]))
		}
	}
	for _, li := range e.latency {
		raw, ok := snapshot.Histograms[li.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i := range cumulative {
			o.ObserveInt64(li.buckets[i], int64(cumulative[i]))
		}
		o.ObserveInt64(li.count, int64(cumulative[len(cumulative)-1]))
	}

	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	o.ObserveInt64(e.cachedSessions, int64(e.source.CachedSessions()))
	return nil
}

// Close unregisters the callback. Instruments stay registered on the Meter.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
