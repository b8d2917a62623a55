package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"solrtmp/pkg/rtmp"
)

const namespace = "solrtmp"

// Metrics counts connection lifecycle events.
type Metrics struct {
	connections     prometheus.Counter
	terminations    prometheus.Counter
	droppedMessages prometheus.Counter
	orphanedCalls   prometheus.Counter
	streamsCreated  prometheus.Counter
	callsTotal      *prometheus.CounterVec
	callDuration    *prometheus.HistogramVec
	errors          *prometheus.CounterVec
}

// New registers the lifecycle metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		connections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of established connections",
		}),
		terminations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_terminated_total",
			Help:      "Total number of closed connections",
		}),
		droppedMessages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_messages_total",
			Help:      "Outbound messages discarded when a connection closed",
		}),
		orphanedCalls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphaned_calls_total",
			Help:      "Pending calls abandoned when a connection closed",
		}),
		streamsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_created_total",
			Help:      "Total number of created streams",
		}),
		callsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Completed remote calls by method and status",
		}, []string{"method", "status"}),
		callDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Time from sending a call to its completion",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Connection errors by context",
		}, []string{"context"}),
	}
}

// Observe records one lifecycle event. Unknown values are ignored.
func (m *Metrics) Observe(event any) {
	switch e := event.(type) {
	case rtmp.ConnectionEstablished:
		m.connections.Inc()
	case rtmp.ConnectionTerminated:
		m.terminations.Inc()
		m.droppedMessages.Add(float64(e.DroppedMessages))
		m.orphanedCalls.Add(float64(e.OrphanedCalls))
	case rtmp.StreamCreated:
		m.streamsCreated.Inc()
	case rtmp.CallCompleted:
		m.callsTotal.WithLabelValues(e.Method, e.Status.String()).Inc()
		m.callDuration.WithLabelValues(e.Method).Observe(e.Duration.Seconds())
	case rtmp.ErrorOccurred:
		m.errors.WithLabelValues(errorContext(e)).Inc()
	}
}

func errorContext(e rtmp.ErrorOccurred) string {
	if e.Context == "" {
		return "unknown"
	}
	return e.Context
}
