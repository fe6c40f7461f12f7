// health.go — обработчики health endpoints Asset Proxy.
// /health/live — проверка liveness (процесс жив)
// /health/ready — проверка readiness (кэш доступен, состояние архива по dephealth)
// /metrics — Prometheus метрики
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/goartstore/asset-proxy/internal/config"
)

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status, message string)
}

// DependencyHealth — состояние зависимостей по данным dephealth.
// Ключ — имя зависимости, значение — true если ok.
type DependencyHealth interface {
	Health() map[string]bool
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	cacheChecker ReadinessChecker
	dependencies DependencyHealth
	promHandler  http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// cacheChecker — проверка бэкенда кэша (nil — readiness вернёт "fail").
// dependencies — dephealth (может быть nil — архив не проверяется).
func NewHealthHandler(cacheChecker ReadinessChecker, dependencies DependencyHealth) *HealthHandler {
	return &HealthHandler{
		cacheChecker: cacheChecker,
		dependencies: dependencies,
		promHandler:  promhttp.Handler(),
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthLiveResponse — ответ проверка liveness.
type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

// healthReadyResponse — ответ проверка readiness.
type healthReadyResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
	Checks    struct {
		Cache   healthCheckResult `json:"cache"`
		Archive healthCheckResult `json:"archive"`
	} `json:"checks"`
}

const serviceName = "asset-proxy"

// HealthLive — проверка liveness. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	resp := healthLiveResponse{
		Status:    statusOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// HealthReady — проверка readiness. Кэш обязателен; недоступный архив
// даёт degraded: закэшированное содержимое всё ещё выдаётся.
// Возвращает 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	}

	if h.cacheChecker != nil {
		status, msg := h.cacheChecker.CheckReady()
		resp.Checks.Cache = healthCheckResult{Status: status, Message: msg}
	} else {
		resp.Checks.Cache = healthCheckResult{Status: statusFail, Message: "не инициализирован"}
	}

	resp.Checks.Archive = h.archiveStatus()
	resp.Status = overallStatus(resp.Checks.Cache.Status, resp.Checks.Archive.Status)

	w.Header().Set("Content-Type", "application/json")
	if resp.Status == statusFail {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// archiveStatus переводит состояние dephealth в результат проверки.
// Ключи Health() имеют формат "dependency:host:port".
func (h *HealthHandler) archiveStatus() healthCheckResult {
	if h.dependencies == nil {
		return healthCheckResult{Status: statusOK, Message: "мониторинг отключён"}
	}
	healthy, known := findHealthByPrefix(h.dependencies.Health(), archiveDependency)
	switch {
	case !known:
		return healthCheckResult{Status: statusOK, Message: "проверка ещё не выполнялась"}
	case healthy:
		return healthCheckResult{Status: statusOK}
	default:
		return healthCheckResult{Status: statusDegraded, Message: "архив недоступен"}
	}
}

// archiveDependency — имя зависимости архива в dephealth.
const archiveDependency = "archive"

// findHealthByPrefix ищет состояние зависимости name. Несколько эндпоинтов
// одной зависимости здоровы, только если здоровы все.
func findHealthByPrefix(health map[string]bool, name string) (healthy, known bool) {
	healthy = true
	for key, ok := range health {
		if key == name || strings.HasPrefix(key, name+":") {
			known = true
			healthy = healthy && ok
		}
	}
	return healthy && known, known
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// Константы статусов health check.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// overallStatus определяет итоговый статус из статусов зависимостей.
// Если хотя бы одна зависимость fail — итог fail.
// Если хотя бы одна degraded — итог degraded.
// Иначе — ok.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == statusFail {
			return statusFail
		}
		if s == statusDegraded {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return statusDegraded
	}
	return statusOK
}
