// metrics.go — Prometheus HTTP метрики портала.
// Регистрирует метрики: hp_http_requests_total, hp_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hp_http_requests_total",
			Help: "Общее количество HTTP-запросов к порталу",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hp_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к порталу в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем UUID на {id} для предотвращения кардинальности)
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// staticPaths — пути без параметров, попадают в лейблы как есть.
var staticPaths = map[string]struct{}{
	"/health/live":              {},
	"/health/ready":             {},
	"/metrics":                  {},
	"/api/v1/me":                {},
	"/api/v1/me/onboarding":     {},
	"/api/v1/users":             {},
	"/api/v1/sites":             {},
	"/api/v1/projects":          {},
	"/api/v1/tickets":           {},
	"/api/v1/idp/status":        {},
	"/api/v1/idp/drift":         {},
	"/api/v1/webhooks/identity": {},
	"/portal/":                  {},
	"/portal/login":             {},
	"/portal/callback":          {},
	"/portal/logout":            {},
	"/portal/admin":             {},
	"/portal/admin/users":       {},
}

// idCollections — коллекции, у которых второй сегмент после префикса — идентификатор.
var idCollections = []string{
	"/api/v1/users/",
	"/api/v1/sites/",
	"/api/v1/projects/",
	"/api/v1/tickets/",
}

// normalizePath заменяет идентификатор ресурса на {id} для ограничения кардинальности.
// /api/v1/users/a1b2c3d4-.../role → /api/v1/users/{id}/role
// ID пользователей приходят из Keycloak, поэтому длина сегмента не фиксирована.
func normalizePath(path string) string {
	if _, ok := staticPaths[path]; ok {
		return path
	}

	for _, prefix := range idCollections {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || rest == "" {
			continue
		}
		_, suffix, found := strings.Cut(rest, "/")
		switch {
		case !found:
			return prefix + "{id}"
		case suffix == "role" || suffix == "status":
			return prefix + "{id}/" + suffix
		default:
			return prefix + "{id}/other"
		}
	}

	return "other"
}
