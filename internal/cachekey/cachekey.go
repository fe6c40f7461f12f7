// Пакет cachekey — ключи кэша бинарного содержимого ассетов.
//
// Ключ включает идентичность ассета, отметку изменения содержимого,
// вид взаимодействия и вариант. Перезаливка файла под тем же идентификатором
// меняет отметку, и старые записи больше не читаются.
package cachekey

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/bigkaa/goartstore/asset-proxy/internal/domain/model"
)

// Prefix — общий префикс ключей прокси, версия формата в ключе.
const Prefix = "ap:v1"

// Kind — вид взаимодействия с ассетом.
type Kind string

const (
	KindOriginal  Kind = "original"
	KindRendition Kind = "rendition"
	KindPreview   Kind = "preview"
)

// Derive вычисляет ключ для тройки (asset, kind, variant).
// identityField — поле метаданных с постоянным уникальным идентификатором;
// если оно пустое, идентичностью служит href ассета.
func Derive(asset *model.Asset, kind Kind, variant, identityField string) string {
	identity, ok := asset.MetadataString(identityField)
	if !ok {
		identity = asset.Href
	}

	var b strings.Builder
	b.WriteString(Prefix)
	b.WriteByte(':')
	b.WriteString(string(kind))
	b.WriteByte(':')
	b.WriteString(hash(identity))
	b.WriteByte(':')
	b.WriteString(hash(asset.ChangeStamp()))
	b.WriteByte(':')
	b.WriteString(variant)
	return b.String()
}

// RenditionVariant — вариант для рендишена: имя профиля, иначе его href.
func RenditionVariant(r model.Rendition) string {
	if r.Profile != nil && *r.Profile != "" {
		return "profile=" + *r.Profile
	}
	return "href=" + r.Href
}

// PreviewVariant — вариант для превью: его href.
func PreviewVariant(p model.Preview) string {
	return "href=" + p.Href
}

// ArchiveToken — ключ токена доступа к архиву для clientID.
func ArchiveToken(clientID string) string {
	return Prefix + ":archive-token:" + hash(clientID)
}

func hash(s string) string {
	return strconv.FormatUint(xxhash.Sum64String(s), 16)
}
