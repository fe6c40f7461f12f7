// handler.go — основной обработчик API, реализующий ServerInterface.
// Объединяет health, выдачу содержимого ассетов, манифест и фоновые задачи.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/goartstore/asset-proxy/internal/api/errors"
	"github.com/bigkaa/goartstore/asset-proxy/internal/apptoken"
	"github.com/bigkaa/goartstore/asset-proxy/internal/cache"
	"github.com/bigkaa/goartstore/asset-proxy/internal/service"
	"github.com/bigkaa/goartstore/asset-proxy/internal/worker"
)

// Options — параметры API, не относящиеся к сервисам.
type Options struct {
	// Archives — архивы по умолчанию для манифеста и фоновых задач
	Archives []string
	// DefaultLimit — размер выборки по умолчанию
	DefaultLimit int
	// ArchiveHost — базовый URL архива (mainEntityOfPage в JSON-LD)
	ArchiveHost string
	// CanonicalHostBase — префикс канонического @id
	CanonicalHostBase string
	// PublicBaseURL — внешний адрес сервиса; пустой — из запроса
	PublicBaseURL string
}

// APIHandler — основной обработчик API Asset Proxy.
type APIHandler struct {
	health  *HealthHandler
	assets  *service.AssetService
	content *service.ContentService
	tasks   *service.TaskService
	pool    *worker.Pool
	codec   *apptoken.Codec
	opts    Options
	logger  *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	assets *service.AssetService,
	content *service.ContentService,
	tasks *service.TaskService,
	pool *worker.Pool,
	codec *apptoken.Codec,
	opts Options,
	logger *slog.Logger,
) *APIHandler {
	if opts.DefaultLimit < 1 {
		opts.DefaultLimit = 100
	}
	return &APIHandler{
		health:  health,
		assets:  assets,
		content: content,
		tasks:   tasks,
		pool:    pool,
		codec:   codec,
		opts:    opts,
		logger:  logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — проверка liveness.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — проверка readiness.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	writeJSONAs(w, status, "application/json", data)
}

// writeJSONAs записывает JSON-ответ с явным Content-Type.
func writeJSONAs(w http.ResponseWriter, status int, contentType string, data any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError переводит ошибку сервисного слоя в HTTP-ответ.
// Все неизвестные ошибки — 500 с записью в лог.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, service.ErrNoMatch):
		apierrors.NoMatch(w, "Нет представления, подходящего под параметры запроса")
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Ассет не найден")
	case errors.Is(err, cache.ErrUnavailable):
		h.logger.Error("Кэш недоступен",
			slog.String("op", op),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.ServiceUnavailable(w, "Кэш временно недоступен")
	case errors.Is(err, service.ErrUpstream):
		h.logger.Error("Ошибка удалённого архива",
			slog.String("op", op),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.BadGateway(w, "Ошибка удалённого архива")
	case errors.Is(err, context.Canceled):
		// Клиент отключился, отвечать некому
		h.logger.Debug("Запрос отменён клиентом", slog.String("op", op))
	default:
		h.logger.Error("Внутренняя ошибка",
			slog.String("op", op),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка")
	}
}

// tokenDurations — сроки действия токенов, выдаваемых /-/token/new.
var tokenDurations = []time.Duration{
	15 * time.Minute,
	7 * 24 * time.Hour,
	365 * 24 * time.Hour,
}
