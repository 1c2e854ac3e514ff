package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	saleEvents *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking structured sale registry
// events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			saleEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nhb",
				Subsystem: "events",
				Name:      "sale_events_total",
				Help:      "Count of emitted sale registry events segmented by event type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.saleEvents)
	})
	return eventRegistry
}

// RecordSaleEvent increments the event counter for the supplied event type.
func (m *eventMetrics) RecordSaleEvent(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.saleEvents.WithLabelValues(normalized).Inc()
}
