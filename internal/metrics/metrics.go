// Package metrics exposes Prometheus metrics for the governance service:
// execution outcomes counted from the event bus, the pending confirmation
// backlog, and HTTP request rates.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opencode-ai/actiongate/internal/event"
	"github.com/opencode-ai/actiongate/internal/execution"
	"github.com/opencode-ai/actiongate/internal/logging"
	"github.com/opencode-ai/actiongate/pkg/types"
)

// Metrics owns a registry so several servers in one process (tests) do not
// collide on the default registerer.
type Metrics struct {
	registry *prometheus.Registry

	executionsTotal     *prometheus.CounterVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	unsub func()
}

// New creates the metrics set. pending reports the current number of
// executions awaiting confirmation; it may be nil.
func New(pending func() float64) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		executionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "actiongate_execution_transitions_total",
				Help: "Execution status changes by action type and new status",
			},
			[]string{"action_type", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "actiongate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "actiongate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	if pending != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "actiongate_pending_confirmations",
			Help: "Executions waiting for a human decision",
		}, pending)
	}

	return m
}

// Watch counts execution.updated events from bus until Close.
func (m *Metrics) Watch(bus *event.Bus) {
	if bus == nil {
		return
	}
	m.unsub = bus.Subscribe(event.ExecutionUpdated, func(e event.Event) {
		data, ok := e.Data.(event.ExecutionUpdatedData)
		if !ok {
			return
		}
		actionType := "unknown"
		if data.Info != nil {
			actionType = string(data.Info.ActionType)
		}
		m.executionsTotal.WithLabelValues(actionType, string(data.NewStatus)).Inc()
	})
}

// Close stops watching the bus.
func (m *Metrics) Close() {
	if m.unsub != nil {
		m.unsub()
		m.unsub = nil
	}
}

// Middleware records request counts and latency keyed by chi route pattern,
// so path parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequestsTotal.WithLabelValues(r.Method, route, statusClass(status)).Inc()
		m.httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler returns the Prometheus scrape handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

// PendingCounter returns a gauge callback counting pending_confirm executions.
func PendingCounter(executions *execution.Service) func() float64 {
	return func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		execs, err := executions.List(ctx, execution.Filter{Status: types.StatusPendingConfirm})
		if err != nil {
			logging.Warn().Err(err).Msg("pending gauge scan failed")
			return 0
		}
		return float64(len(execs))
	}
}
