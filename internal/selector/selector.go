// Пакет selector — выбор рендишена или превью ассета по желаемым признакам.
//
// Выбор — первый подходящий элемент в исходном порядке списка, а не
// «ближайший». Порядок задаёт архив, вторичного ранжирования нет.
package selector

import (
	"github.com/bigkaa/goartstore/asset-proxy/internal/domain/model"
)

// RenditionTraits — желаемые признаки рендишена.
// nil-указатели и нулевые размеры означают «ограничение не задано».
type RenditionTraits struct {
	// Profile — точное имя профиля
	Profile *string
	// Original — точное значение флага original
	Original *bool
	// Size — минимальная длина стороны (сравнивается с короткой стороной)
	Size int
	// Width — минимальная ширина
	Width int
	// Height — минимальная высота
	Height int
}

// Empty сообщает, что ни один признак не задан.
func (t RenditionTraits) Empty() bool {
	return t.Profile == nil && t.Original == nil && t.Size+t.Width+t.Height == 0
}

// PreviewTraits — желаемые признаки превью.
type PreviewTraits struct {
	Size   int
	Width  int
	Height int
	// Square — точное значение флага square
	Square *bool
}

// dimensionsFit проверяет размерные ограничения.
// Size — длина длинной стороны результата, поэтому обе стороны должны быть
// не меньше Size: сравнивается min(width, height).
func dimensionsFit(width, height, size, minWidth, minHeight int) bool {
	return size <= min(width, height) && minWidth <= width && minHeight <= height
}

// FindRendition возвращает первый рендишен, удовлетворяющий всем заданным признакам.
func FindRendition(renditions []model.Rendition, t RenditionTraits) (model.Rendition, bool) {
	for _, r := range renditions {
		if t.Profile != nil && (r.Profile == nil || *r.Profile != *t.Profile) {
			continue
		}
		if t.Original != nil && r.Original != *t.Original {
			continue
		}
		if !dimensionsFit(r.Width, r.Height, t.Size, t.Width, t.Height) {
			continue
		}
		return r, true
	}
	return model.Rendition{}, false
}

// OriginalRendition возвращает рендишен с флагом original.
func OriginalRendition(renditions []model.Rendition) (model.Rendition, bool) {
	original := true
	return FindRendition(renditions, RenditionTraits{Original: &original})
}

// FindPreview возвращает первое превью, удовлетворяющее всем заданным признакам.
func FindPreview(previews []model.Preview, t PreviewTraits) (model.Preview, bool) {
	for _, p := range previews {
		if t.Square != nil && p.Square != *t.Square {
			continue
		}
		if !dimensionsFit(p.Width, p.Height, t.Size, t.Width, t.Height) {
			continue
		}
		return p, true
	}
	return model.Preview{}, false
}
