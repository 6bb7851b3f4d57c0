package metrics

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	eventbus "github.com/hanpama/countergraph/internal/eventbus"
	events "github.com/hanpama/countergraph/internal/events"
)

func newMetrics(t *testing.T) *Metrics {
	t.Helper()
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })
	m := New(prometheus.NewRegistry())
	t.Cleanup(m.Register())
	return m
}

func TestOperationOutcomes(t *testing.T) {
	m := newMetrics(t)
	ctx := context.Background()

	eventbus.Publish(ctx, events.GraphQLFinish{OperationType: "query", Duration: time.Millisecond})
	eventbus.Publish(ctx, events.GraphQLFinish{OperationType: "mutation", Errors: []error{errors.New("x")}})
	eventbus.Publish(ctx, events.GraphQLFinish{Rejected: true, Errors: []error{errors.New("bad")}})

	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("query", OutcomeOK)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("mutation", OutcomeErrors)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("unknown", OutcomeRejected)))
	require.Equal(t, 2, testutil.CollectAndCount(m.operationDuration))
}

func TestGauges(t *testing.T) {
	m := newMetrics(t)
	ctx := context.Background()

	eventbus.Publish(ctx, events.CounterChanged{Count: 7})
	eventbus.Publish(ctx, events.SubscriptionStart{ID: "a", Active: 1})
	eventbus.Publish(ctx, events.SubscriptionStart{ID: "b", Active: 2})
	eventbus.Publish(ctx, events.SubscriptionEvent{ID: "a"})
	eventbus.Publish(ctx, events.SubscriptionEnd{ID: "a", Active: 1})
	eventbus.Publish(ctx, events.WSConnect{Remote: "x"})
	eventbus.Publish(ctx, events.WSConnect{Remote: "y"})
	eventbus.Publish(ctx, events.WSDisconnect{Remote: "x"})

	require.Equal(t, 7.0, testutil.ToFloat64(m.counterValue))
	require.Equal(t, 1.0, testutil.ToFloat64(m.activeSubscriptions))
	require.Equal(t, 1.0, testutil.ToFloat64(m.subscriptionEvents))
	require.Equal(t, 1.0, testutil.ToFloat64(m.wsConnections))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := newMetrics(t)
	r := httptest.NewRequest("GET", "/metrics", nil)
	eventbus.Publish(context.Background(), events.HTTPFinish{Request: r, Status: 200})

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, r)
	body := w.Body.String()
	require.True(t, strings.Contains(body, `countergraph_http_requests_total{status="200"} 1`), body)
	require.Contains(t, body, "countergraph_counter_value 0")
}
