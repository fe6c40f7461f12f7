// metrics.go — Prometheus HTTP метрики Asset Proxy.
// Регистрирует метрики: ap_http_requests_total, ap_http_request_duration_seconds.
// Нормализация путей предотвращает взрывной рост кардинальности.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики Asset Proxy
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ap_http_requests_total",
			Help: "Общее количество HTTP-запросов к Asset Proxy",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ap_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Asset Proxy в секундах",
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
			normalizedPath := normalizePath(r.URL.Path)

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			duration := time.Since(start).Seconds()
			code := ww.Status()
			if code == 0 {
				code = http.StatusOK
			}
			status := strconv.Itoa(code)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// normalizePath заменяет идентификаторы и имена файлов шаблонами.
// /id/abc → /id/{identifier}
// /doc/abc/photo.jpg → /doc/{identifier}/{filename}
// /img/abc/preview/photo.jpg → /img/{identifier}/preview/{filename}
// Неизвестные пути сводятся к "other".
func normalizePath(path string) string {
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/-/data/manifest",
		"/-/background-worker/assign-metadata",
		"/-/webhooks/assign-metadata",
		"/-/token/new":
		return path
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 2 && parts[0] == "id":
		return "/id/{identifier}"
	case len(parts) == 3 && parts[0] == "doc":
		return "/doc/{identifier}/{filename}"
	case len(parts) == 4 && parts[0] == "img" && (parts[2] == "preview" || parts[2] == "rendition"):
		return "/img/{identifier}/" + parts[2] + "/{filename}"
	}
	return "other"
}
