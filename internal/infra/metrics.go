package infra

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: время обработки HTTP запроса
	RequestDuration *prometheus.HistogramVec

	// Traffic: общее кол-во запросов
	TotalRequests *prometheus.CounterVec

	// Решения по заявкам: approved, rejected, auto_approved, cancelled
	RequestDecisions *prometheus.CounterVec

	// Доставка уведомлений по каналам (redis, webhook) и результату
	Notifications *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker (0 - ок, 1 - выбило)
	CircuitBreakerState *prometheus.GaugeVec

	// Audit: заполненность буфера (backpressure) и сброшенные события
	AuditBufferFill prometheus.Gauge
	AuditDropped    prometheus.Counter

	LicensesExpired prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "omnisme_http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "route", "status"}),

		TotalRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "omnisme_http_requests_total",
			Help: "Total number of processed HTTP requests.",
		}, []string{"method", "route", "status"}),

		RequestDecisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "omnisme_request_decisions_total",
			Help: "License request decisions by outcome.",
		}, []string{"decision"}),

		Notifications: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "omnisme_notifications_total",
			Help: "Decision notifications by channel and result.",
		}, []string{"channel", "result"}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "omnisme_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=open).",
		}, []string{"target"}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "omnisme_audit_buffer_utilization",
			Help: "Current number of events in audit buffer.",
		}),

		AuditDropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "omnisme_audit_dropped_total",
			Help: "Audit events dropped because the buffer was full.",
		}),

		LicensesExpired: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "omnisme_licenses_expired_total",
			Help: "Licenses moved to EXPIRED by the sweeper.",
		}),
	}
}

// Middleware снимает латентность и трафик по шаблону маршрута chi,
// чтобы id в пути не раздували кардинальность.
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
		code := strconv.Itoa(status)

		m.RequestDuration.WithLabelValues(r.Method, route, code).Observe(time.Since(start).Seconds())
		m.TotalRequests.WithLabelValues(r.Method, route, code).Inc()
	})
}
