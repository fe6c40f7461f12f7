// tasks.go — сервисные эндпоинты: JSON-LD манифест и назначение метаданных.
// Доступ только по токенам с длинным потолком срока (jld, uid).
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	apierrors "github.com/bigkaa/goartstore/asset-proxy/internal/api/errors"
	"github.com/bigkaa/goartstore/asset-proxy/internal/domain/model"
	"github.com/bigkaa/goartstore/asset-proxy/internal/service"
)

// Предел тела вебхука.
const maxWebhookBody = 4 << 20

// taskResponse — ответ на постановку фоновой задачи.
type taskResponse struct {
	Message string   `json:"message"`
	Query   string   `json:"query,omitempty"`
	Asset   string   `json:"asset,omitempty"`
	Tasks   []string `json:"tasks"`
}

// GetManifest — GET /-/data/manifest.
// Ассеты от старых к новым; следующая страница — по dateModified последнего
// элемента в заголовке Link rel="next".
func (h *APIHandler) GetManifest(w http.ResponseWriter, r *http.Request, params ManifestParams) {
	limit, ok := h.limit(w, params.Limit)
	if !ok {
		return
	}
	archives := h.archives(params.Archives)
	since := ""
	if params.Since != nil {
		since = strings.TrimSpace(*params.Since)
	}

	assets, err := h.assets.Manifest(r.Context(), service.ManifestParams{
		Archives: archives,
		Limit:    limit,
		Since:    since,
	})
	if err != nil {
		h.writeServiceError(w, r, "манифест", err)
		return
	}

	summaries := h.summaries(r, assets)
	if n := len(summaries); n > 0 {
		next := url.Values{}
		next.Set("limit", strconv.Itoa(limit))
		next.Set("since", summaries[n-1].DateModified)
		next.Set("archives", strings.Join(archives, ","))
		w.Header().Set("Link", fmt.Sprintf(`</-/data/manifest?%s>; rel="next"`, next.Encode()))
	}
	writeJSONAs(w, http.StatusOK, "application/ld+json", summaries)
}

// RunAssignMetadata — GET /-/background-worker/assign-metadata.
// Ставит в очередь обработку ассетов, у которых не заполнено хотя бы одно
// поле запрошенных задач (по умолчанию uuid4).
func (h *APIHandler) RunAssignMetadata(w http.ResponseWriter, r *http.Request, params AssignMetadataParams) {
	tasks, ok := h.parseTasks(w, params.Tasks)
	if !ok {
		return
	}
	limit, ok := h.limit(w, params.Limit)
	if !ok {
		return
	}
	archives := h.archives(params.Archives)

	query := h.tasks.PendingQuery(tasks)
	if query == "" {
		apierrors.ValidationError(w, "Для запрошенных задач не настроены поля метаданных")
		return
	}
	h.logger.Info("Запуск назначения метаданных",
		slog.String("query", string(query)),
		slog.Int("limit", limit),
	)

	submitted := h.pool.Submit("assign-metadata", func(ctx context.Context) error {
		_, err := h.tasks.AssignPending(ctx, archives, tasks, limit)
		return err
	})
	if !submitted {
		apierrors.QueueFull(w, "Очередь фоновых задач переполнена")
		return
	}

	writeJSON(w, http.StatusAccepted, taskResponse{
		Message: "Фоновая задача запущена",
		Query:   string(query),
		Tasks:   taskNames(tasks),
	})
}

// webhookBody — тело вебхука архива.
type webhookBody struct {
	Data *model.Asset `json:"data"`
}

// AssignMetadataWebhook — POST /-/webhooks/assign-metadata.
// Тело {"data": asset}; поля, уже имеющие значение, не перезаписываются.
func (h *APIHandler) AssignMetadataWebhook(w http.ResponseWriter, r *http.Request, params AssignMetadataParams) {
	tasks, ok := h.parseTasks(w, params.Tasks)
	if !ok {
		return
	}

	var body webhookBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody)).Decode(&body); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return
	}
	if body.Data == nil || body.Data.Href == "" {
		apierrors.ValidationError(w, "В теле запроса нет ассета (data)")
		return
	}

	asset := *body.Data
	submitted := h.pool.Submit("webhook-assign-metadata", func(ctx context.Context) error {
		_, err := h.tasks.Apply(ctx, []model.Asset{asset}, tasks)
		return err
	})
	if !submitted {
		apierrors.QueueFull(w, "Очередь фоновых задач переполнена")
		return
	}

	writeJSON(w, http.StatusAccepted, taskResponse{
		Message: "Фоновые задачи запущены",
		Asset:   asset.Href,
		Tasks:   taskNames(tasks),
	})
}

// parseTasks разбирает ?tasks=; по умолчанию — только uuid4.
func (h *APIHandler) parseTasks(w http.ResponseWriter, raw *[]string) ([]service.Task, bool) {
	if raw == nil || len(*raw) == 0 {
		return []service.Task{service.TaskUUID}, true
	}
	tasks := make([]service.Task, 0, len(*raw))
	seen := make(map[service.Task]bool, len(*raw))
	for _, name := range *raw {
		task, err := service.ParseTask(name)
		if err != nil {
			apierrors.ValidationError(w, err.Error())
			return nil, false
		}
		if !seen[task] {
			seen[task] = true
			tasks = append(tasks, task)
		}
	}
	return tasks, true
}

// limit проверяет ?limit=: по умолчанию DefaultLimit, минимум 1.
func (h *APIHandler) limit(w http.ResponseWriter, raw *int) (int, bool) {
	if raw == nil {
		return h.opts.DefaultLimit, true
	}
	if *raw < 1 {
		apierrors.ValidationError(w, "Параметр limit должен быть >= 1")
		return 0, false
	}
	return *raw, true
}

// archives возвращает архивы из запроса или из конфигурации.
func (h *APIHandler) archives(raw *[]string) []string {
	if raw != nil {
		archives := make([]string, 0, len(*raw))
		for _, a := range *raw {
			if a = strings.TrimSpace(a); a != "" {
				archives = append(archives, a)
			}
		}
		if len(archives) > 0 {
			return archives
		}
	}
	return h.opts.Archives
}

func taskNames(tasks []service.Task) []string {
	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = string(t)
	}
	return names
}
