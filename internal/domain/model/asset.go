// Пакет model — доменные модели Asset Proxy.
// Asset — запись ассета в формате API удалённого архива (read-only для прокси).
package model

import (
	"encoding/json"
	"strings"
)

// Asset — ассет удалённого архива вместе со списками рендишенов и превью.
// Прокси никогда не изменяет запись, кроме метаданных через фоновые задачи.
type Asset struct {
	// Href — непрозрачный локатор ассета в API архива
	Href string `json:"href"`
	// Filename — исходное имя файла
	Filename string `json:"filename"`
	// Doctype — тип документа (image, document, video…)
	Doctype string `json:"doctype"`
	// Created — время создания (ISO 8601, как отдаёт архив)
	Created string `json:"created"`
	// Modified — время последнего изменения (ISO 8601)
	Modified string `json:"modified"`
	// FileSize — размер оригинала в байтах
	FileSize int64 `json:"filesize"`
	// PhysicalFileID — идентификатор физического файла, меняется при перезаливке
	PhysicalFileID string `json:"physicalFileId,omitempty"`
	// Metadata — произвольные поля метаданных (ключ — имя/номер поля)
	Metadata map[string]MetadataValue `json:"metadata,omitempty"`
	// BuiltinFields — встроенные поля (title, description, tags)
	BuiltinFields []BuiltinField `json:"builtinFields,omitempty"`
	// Renditions — доступные рендишены в порядке, заданном архивом
	Renditions []Rendition `json:"renditions,omitempty"`
	// Previews — доступные превью в порядке, заданном архивом
	Previews []Preview `json:"previews,omitempty"`
	// PreviewToken — короткоживущий токен архива для скачивания превью
	PreviewToken string `json:"previewToken,omitempty"`
}

// Rendition — предопределённое представление файла (профиль экспорта или оригинал).
type Rendition struct {
	Href     string  `json:"href"`
	Profile  *string `json:"profile"`
	Original bool    `json:"original"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
}

// Preview — облегчённое изображение ограниченного размера.
type Preview struct {
	Href   string `json:"href"`
	Size   int    `json:"size"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Square bool   `json:"square"`
}

// MetadataValue — значение поля метаданных: строка или список строк.
type MetadataValue struct {
	Value json.RawMessage `json:"value"`
}

// BuiltinField — встроенное поле ассета.
type BuiltinField struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

// MetadataString возвращает строковое значение поля метаданных.
// Для списков возвращается первый непустой элемент. Пустое значение — ("", false).
func (a *Asset) MetadataString(field string) (string, bool) {
	if field == "" || a.Metadata == nil {
		return "", false
	}
	mv, ok := a.Metadata[field]
	if !ok || len(mv.Value) == 0 {
		return "", false
	}

	var s string
	if err := json.Unmarshal(mv.Value, &s); err == nil {
		s = strings.TrimSpace(s)
		return s, s != ""
	}

	var list []string
	if err := json.Unmarshal(mv.Value, &list); err == nil {
		for _, item := range list {
			if item = strings.TrimSpace(item); item != "" {
				return item, true
			}
		}
	}
	return "", false
}

// BuiltinString возвращает строковое значение встроенного поля (title, description).
func (a *Asset) BuiltinString(field string) string {
	for _, f := range a.BuiltinFields {
		if f.Field != field {
			continue
		}
		var s string
		if err := json.Unmarshal(f.Value, &s); err == nil {
			return s
		}
	}
	return ""
}

// HasMetadata сообщает, заполнено ли поле метаданных.
func (a *Asset) HasMetadata(field string) bool {
	_, ok := a.MetadataString(field)
	return ok
}

// ChangeStamp — значение, меняющееся при замене содержимого файла.
// Предпочтительно идентификатор физического файла, иначе время изменения.
func (a *Asset) ChangeStamp() string {
	if a.PhysicalFileID != "" {
		return a.PhysicalFileID
	}
	return a.Modified
}

// MetadataContains сообщает, содержит ли поле метаданных значение value
// (для списков — хотя бы один элемент).
func (a *Asset) MetadataContains(field, value string) bool {
	if field == "" || a.Metadata == nil {
		return false
	}
	mv, ok := a.Metadata[field]
	if !ok || len(mv.Value) == 0 {
		return false
	}

	var s string
	if err := json.Unmarshal(mv.Value, &s); err == nil {
		return strings.TrimSpace(s) == value
	}

	var list []string
	if err := json.Unmarshal(mv.Value, &list); err == nil {
		for _, item := range list {
			if strings.TrimSpace(item) == value {
				return true
			}
		}
	}
	return false
}

// Builtin возвращает сырое значение встроенного поля (nil, если поля нет).
func (a *Asset) Builtin(field string) json.RawMessage {
	for _, f := range a.BuiltinFields {
		if f.Field == field {
			return f.Value
		}
	}
	return nil
}
