// files.go — выдача ассетов: /id, /doc (оригинал), /img (превью и рендишены).
// Доступ к содержимому: ассет публичный или запрос несёт действительный токен
// (результат Gate в контексте). Иначе 401 без токена, 403 с отклонённым.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	apierrors "github.com/bigkaa/goartstore/asset-proxy/internal/api/errors"
	"github.com/bigkaa/goartstore/asset-proxy/internal/api/middleware"
	"github.com/bigkaa/goartstore/asset-proxy/internal/domain/model"
	"github.com/bigkaa/goartstore/asset-proxy/internal/selector"
	"github.com/bigkaa/goartstore/asset-proxy/internal/service"
	"github.com/bigkaa/goartstore/asset-proxy/internal/slug"
)

// DefaultFilename — имя файла в URL, заменяемое на slug исходного имени.
const DefaultFilename = "getfile"

// Медиатипы, при которых /id отдаёт JSON-LD.
var jsonMediaTypes = []string{"application/json", "application/ld+json"}

// GetAssetSummary — GET /id/{identifier}.
// JSON-LD при ?as=json или JSON в Accept; иначе 307 на /doc.
// Query-параметры (включая token) в редирект не передаются.
func (h *APIHandler) GetAssetSummary(w http.ResponseWriter, r *http.Request, identifier string, params AssetSummaryParams) {
	asJSON := false
	if params.As != nil {
		if *params.As != "json" {
			apierrors.ValidationError(w, fmt.Sprintf("Неподдерживаемый тип ответа %q, допустимый: json", *params.As))
			return
		}
		asJSON = true
	}

	asset, ok := h.findAsset(w, r, identifier)
	if !ok {
		return
	}

	if asJSON || acceptsJSON(r) {
		summary, ok := h.summary(r, asset)
		if !ok {
			apierrors.NotFound(w, "Ассет не найден")
			return
		}
		writeJSONAs(w, http.StatusOK, "application/ld+json", summary)
		return
	}

	target := "/doc/" + url.PathEscape(identifier) + "/" + url.PathEscape(slug.Filename(asset.Filename))
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// GetOriginal — GET /doc/{identifier}/{filename}.
// После выдачи оригинал лежит в кэше: ставится фоновая задача sha256.
func (h *APIHandler) GetOriginal(w http.ResponseWriter, r *http.Request, identifier, filename string) {
	asset, ok := h.accessibleAsset(w, r, identifier)
	if !ok {
		return
	}

	content, err := h.content.Original(r.Context(), asset)
	if err != nil {
		h.writeServiceError(w, r, "выдача оригинала", err)
		return
	}
	h.writeContent(w, asset, filename, content)

	if _, configured := h.tasks.Field(service.TaskSHA256); configured {
		record := *asset
		h.pool.Submit(string(service.TaskSHA256), func(ctx context.Context) error {
			_, err := h.tasks.Apply(ctx, []model.Asset{record}, []service.Task{service.TaskSHA256})
			return err
		})
	}
}

// GetPreview — GET /img/{identifier}/preview/{filename}.
func (h *APIHandler) GetPreview(w http.ResponseWriter, r *http.Request, identifier, filename string, params PreviewParams) {
	traits := selector.PreviewTraits{Square: params.Square}
	var ok bool
	if traits.Size, traits.Width, traits.Height, ok = dimensions(w, params.Size, params.W, params.H); !ok {
		return
	}

	asset, ok := h.accessibleAsset(w, r, identifier)
	if !ok {
		return
	}

	content, err := h.content.Preview(r.Context(), asset, traits)
	if err != nil {
		h.writeServiceError(w, r, "выдача превью", err)
		return
	}
	h.writeContent(w, asset, filename, content)
}

// GetRendition — GET /img/{identifier}/rendition/{filename}.
// Без единого параметра выбора — 400.
func (h *APIHandler) GetRendition(w http.ResponseWriter, r *http.Request, identifier, filename string, params RenditionParams) {
	traits := selector.RenditionTraits{Profile: params.Profile, Original: params.Original}
	var ok bool
	if traits.Size, traits.Width, traits.Height, ok = dimensions(w, params.Size, params.W, params.H); !ok {
		return
	}
	if traits.Empty() {
		apierrors.ValidationError(w, "Требуется хотя бы один параметр: profile, original, size, w, h")
		return
	}

	asset, ok := h.accessibleAsset(w, r, identifier)
	if !ok {
		return
	}

	content, err := h.content.Rendition(r.Context(), asset, traits)
	if err != nil {
		h.writeServiceError(w, r, "выдача рендишена", err)
		return
	}
	h.writeContent(w, asset, filename, content)
}

// accessibleAsset находит ассет и проверяет доступ к его содержимому.
// При отказе ответ уже записан.
func (h *APIHandler) accessibleAsset(w http.ResponseWriter, r *http.Request, identifier string) (*model.Asset, bool) {
	asset, ok := h.findAsset(w, r, identifier)
	if !ok {
		return nil, false
	}
	if h.assets.IsPublic(asset) {
		return asset, true
	}

	switch middleware.AuthFromContext(r.Context()) {
	case middleware.AuthAuthorized:
		return asset, true
	case middleware.AuthDenied:
		apierrors.Forbidden(w, "Доступ запрещён")
	default:
		apierrors.Unauthorized(w, "Ассет не публичный: требуется токен доступа")
	}
	return nil, false
}

// findAsset ищет ассет по идентификатору. Строка не той формы
// получает 404 без обращения к архиву.
func (h *APIHandler) findAsset(w http.ResponseWriter, r *http.Request, identifier string) (*model.Asset, bool) {
	if !service.ValidIdentifier(identifier) {
		apierrors.NotFound(w, "Ассет не найден")
		return nil, false
	}
	asset, err := h.assets.Find(r.Context(), identifier)
	if err != nil {
		h.writeServiceError(w, r, "поиск ассета", err)
		return nil, false
	}
	return asset, true
}

// writeContent отдаёт бинарное содержимое с именем файла для сохранения.
func (h *APIHandler) writeContent(w http.ResponseWriter, asset *model.Asset, filename string, content *service.Content) {
	if filename == DefaultFilename || filename == "" {
		filename = slug.Filename(asset.Filename)
	}

	header := w.Header()
	header.Set("Content-Type", contentType(asset.Filename, content.Body))
	header.Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": filename}))
	header.Set("Content-Length", strconv.Itoa(len(content.Body)))
	if content.Cached {
		header.Set("X-Cache", "HIT")
	} else {
		header.Set("X-Cache", "MISS")
	}
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(content.Body); err != nil {
		h.logger.Debug("Клиент прервал получение содержимого",
			slog.String("href", asset.Href),
			slog.String("error", err.Error()),
		)
	}
}

// contentType определяет медиатип по расширению исходного имени,
// при неизвестном расширении — по сигнатуре содержимого.
func contentType(filename string, body []byte) string {
	if ext := path.Ext(filename); ext != "" {
		if t := mime.TypeByExtension(strings.ToLower(ext)); t != "" {
			return t
		}
	}
	return mimetype.Detect(body).String()
}

// dimensions проверяет size/w/h: отсутствующий параметр — 0, отрицательный — 400.
func dimensions(w http.ResponseWriter, size, width, height *int) (s, wd, ht int, ok bool) {
	values := [3]int{}
	for i, p := range []*int{size, width, height} {
		if p == nil {
			continue
		}
		if *p < 0 {
			apierrors.ValidationError(w, "Параметры size, w, h должны быть >= 0")
			return 0, 0, 0, false
		}
		values[i] = *p
	}
	return values[0], values[1], values[2], true
}

// acceptsJSON сообщает, запрошен ли JSON в заголовке Accept.
func acceptsJSON(r *http.Request) bool {
	for _, accept := range r.Header.Values("Accept") {
		for _, part := range strings.Split(accept, ",") {
			mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
			if err != nil {
				continue
			}
			for _, t := range jsonMediaTypes {
				if mediaType == t {
					return true
				}
			}
		}
	}
	return false
}
