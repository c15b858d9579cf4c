package audit

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSink counts events per action and tracks custodied value flow.
//
// Labels: action
type MetricsSink struct {
	events   *prometheus.CounterVec
	released *prometheus.CounterVec
}

// NewMetricsSink creates the collectors and registers them with reg.
// Pass prometheus.NewRegistry() in tests to avoid global registration.
func NewMetricsSink(reg prometheus.Registerer) (*MetricsSink, error) {
	s := &MetricsSink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_audit_events_total",
			Help: "Audit events emitted by action",
		}, []string{"action"}),
		released: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_released_quantity_total",
			Help: "Quantity moved out of custody by action",
		}, []string{"action"}),
	}
	for _, c := range []prometheus.Collector{s.events, s.released} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Emit implements Sink.
func (s *MetricsSink) Emit(_ context.Context, ev Event) error {
	s.events.WithLabelValues(ev.Action).Inc()
	if q, ok := ev.Fields[FieldReleased].(uint64); ok && q > 0 {
		s.released.WithLabelValues(ev.Action).Add(float64(q))
	}
	return nil
}

// FieldReleased is the event field carrying the quantity that left custody.
const FieldReleased = "released"
