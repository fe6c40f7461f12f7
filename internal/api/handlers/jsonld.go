// jsonld.go — JSON-LD представление ассета (schema.org) для /id и манифеста.
package handlers

import (
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/bigkaa/goartstore/asset-proxy/internal/domain/model"
	"github.com/bigkaa/goartstore/asset-proxy/internal/slug"
)

const schemaOrgContext = "https://schema.org/docs/jsonldcontext.json"

// AssetSummary — JSON-LD описание ассета.
type AssetSummary struct {
	ID               string          `json:"@id"`
	Context          string          `json:"@context"`
	Identifier       string          `json:"identifier"`
	Type             string          `json:"dcterms:type"`
	MainEntityOfPage string          `json:"mainEntityOfPage"`
	URL              string          `json:"url"`
	Name             string          `json:"name"`
	Title            json.RawMessage `json:"dcterms:title"`
	Description      json.RawMessage `json:"description"`
	Keywords         json.RawMessage `json:"keywords"`
	EncodingFormat   string          `json:"encodingFormat"`
	FileSize         int64           `json:"fileSize"`
	DateCreated      string          `json:"dateCreated"`
	DateModified     string          `json:"dateModified"`
}

// summary строит JSON-LD описание. Ассет без идентификатора не описывается.
func (h *APIHandler) summary(r *http.Request, asset *model.Asset) (*AssetSummary, bool) {
	identifier, ok := asset.MetadataString(h.assets.IdentityField())
	if !ok {
		return nil, false
	}

	base, _ := slug.Split(asset.Filename)
	filename := slug.Filename(asset.Filename)

	return &AssetSummary{
		ID:               h.opts.CanonicalHostBase + identifier,
		Context:          schemaOrgContext,
		Identifier:       identifier,
		Type:             asset.Doctype,
		MainEntityOfPage: h.opts.ArchiveHost + asset.Href,
		URL:              h.publicBaseURL(r) + "/doc/" + url.PathEscape(identifier) + "/" + url.PathEscape(filename),
		Name:             base,
		Title:            rawOrNull(asset.Builtin("title")),
		Description:      rawOrNull(asset.Builtin("description")),
		Keywords:         rawOrNull(asset.Builtin("tags")),
		EncodingFormat:   mime.TypeByExtension(strings.ToLower(path.Ext(filename))),
		FileSize:         asset.FileSize,
		DateCreated:      asset.Created,
		DateModified:     asset.Modified,
	}, true
}

// summaries описывает список ассетов, пропуская ассеты без идентификатора.
func (h *APIHandler) summaries(r *http.Request, assets []model.Asset) []AssetSummary {
	result := make([]AssetSummary, 0, len(assets))
	for i := range assets {
		if s, ok := h.summary(r, &assets[i]); ok {
			result = append(result, *s)
		}
	}
	return result
}

// publicBaseURL — внешний адрес сервиса: из конфигурации или из запроса.
func (h *APIHandler) publicBaseURL(r *http.Request) string {
	if h.opts.PublicBaseURL != "" {
		return h.opts.PublicBaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

func rawOrNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
