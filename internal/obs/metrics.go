package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Общие HTTP-метрики
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Метрики модерации
var (
	ModerationActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_actions_total",
			Help: "Moderation commands by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	MutesArmed = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mute_timers_armed",
		Help: "Currently armed auto-unmute timers.",
	})

	MuteExpirations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mute_expirations_total",
			Help: "Fired auto-unmute timers by result.",
		},
		[]string{"result"},
	)

	AuditAppends = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_entries_appended_total",
		Help: "Audit entries written.",
	})

	AuditSweeps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_sweeps_total",
			Help: "Audit retention sweeps by result.",
		},
		[]string{"result"},
	)

	AuditSwept = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_swept_entries_total",
			Help: "Audit entries moved to archive or discarded.",
		},
		[]string{"tier"},
	)

	QuorumVotes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quorum_votes_total",
			Help: "Confirmation votes by command kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	PlatformCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_calls_total",
			Help: "Calls to the messaging platform by method and status.",
		},
		[]string{"method", "status"},
	)
)

// Регистрация метрик в default-регистре.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		ModerationActions, MutesArmed, MuteExpirations,
		AuditAppends, AuditSweeps, AuditSwept,
		QuorumVotes, PlatformCalls,
	)
}

// Хэндлер Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Обёртка для измерения RPS/latency/в полёте.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath сворачивает идентификаторы чатов и пользователей, чтобы
// кардинальность меток не росла.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(p, "/"), "/")
	// /v1/chats/{chat}/logs/{user}
	if len(parts) == 5 && parts[0] == "v1" && parts[1] == "chats" && parts[3] == "logs" {
		return "/v1/chats/:chat/logs/:user"
	}
	return p
}

// statusWriter: локальная копия, чтобы знать код ответа.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
