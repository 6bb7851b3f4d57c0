// Package metrics exports Prometheus collectors fed by eventbus events.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	eventbus "github.com/hanpama/countergraph/internal/eventbus"
	events "github.com/hanpama/countergraph/internal/events"
)

const namespace = "countergraph"

// Operation outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeErrors   = "errors"
	OutcomeRejected = "rejected"
)

// Metrics holds the collectors registered for one server.
type Metrics struct {
	httpRequests        *prometheus.CounterVec
	operations          *prometheus.CounterVec
	operationDuration   *prometheus.HistogramVec
	counterValue        prometheus.Gauge
	activeSubscriptions prometheus.Gauge
	subscriptionEvents  prometheus.Counter
	wsConnections       prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served on the GraphQL endpoint, by status code.",
		}, []string{"status"}),
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "GraphQL operations, by operation type and outcome.",
		}, []string{"type", "outcome"}),
		operationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time spent executing GraphQL operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"type"}),
		counterValue: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "counter_value",
			Help:      "Current value of the shared counter.",
		}),
		activeSubscriptions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_subscriptions",
			Help:      "Subscribers currently registered.",
		}),
		subscriptionEvents: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_events_total",
			Help:      "Values delivered to subscribers.",
		}),
		wsConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Open WebSocket connections.",
		}),
		gatherer: reg,
	}
}

// Register subscribes the collectors to the global bus. The returned func
// detaches them.
func (m *Metrics) Register() (unregister func()) {
	offs := []func(){
		eventbus.Subscribe(func(_ context.Context, e events.HTTPFinish) {
			m.httpRequests.WithLabelValues(strconv.Itoa(e.Status)).Inc()
		}),
		eventbus.Subscribe(func(_ context.Context, e events.GraphQLFinish) {
			typ := e.OperationType
			if typ == "" {
				typ = "unknown"
			}
			outcome := OutcomeOK
			switch {
			case e.Rejected:
				outcome = OutcomeRejected
			case len(e.Errors) > 0:
				outcome = OutcomeErrors
			}
			m.operations.WithLabelValues(typ, outcome).Inc()
			if !e.Rejected {
				m.operationDuration.WithLabelValues(typ).Observe(e.Duration.Seconds())
			}
		}),
		eventbus.Subscribe(func(_ context.Context, e events.CounterChanged) {
			m.counterValue.Set(float64(e.Count))
		}),
		eventbus.Subscribe(func(_ context.Context, e events.SubscriptionStart) {
			m.activeSubscriptions.Set(float64(e.Active))
		}),
		eventbus.Subscribe(func(_ context.Context, e events.SubscriptionEnd) {
			m.activeSubscriptions.Set(float64(e.Active))
		}),
		eventbus.Subscribe(func(context.Context, events.SubscriptionEvent) {
			m.subscriptionEvents.Inc()
		}),
		eventbus.Subscribe(func(context.Context, events.WSConnect) {
			m.wsConnections.Inc()
		}),
		eventbus.Subscribe(func(context.Context, events.WSDisconnect) {
			m.wsConnections.Dec()
		}),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
