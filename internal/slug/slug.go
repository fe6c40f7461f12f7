// Пакет slug — человекочитаемые имена файлов для URL и Content-Disposition.
package slug

import (
	"regexp"
	"strings"
)

var (
	disallowed = regexp.MustCompile(`[^\s\p{L}\p{N}_-]`)
	separators = regexp.MustCompile(`[\s_-]+`)
)

// Make строит slug: нижний регистр, без знаков препинания,
// пробелы, подчёркивания и дефисы схлопываются в один дефис.
func Make(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	s = disallowed.ReplaceAllString(s, "")
	s = separators.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Filename строит slug имени файла с сохранением расширения
// ("Summer Photo 01.JPG" -> "summer-photo-01.JPG").
func Filename(name string) string {
	base, ext, ok := cutLast(name, ".")
	if !ok {
		return Make(name)
	}
	return Make(base) + "." + ext
}

// Split делит имя файла на основу и расширение по последней точке.
func Split(name string) (base, ext string) {
	base, ext, _ = cutLast(name, ".")
	return base, ext
}

func cutLast(s, sep string) (before, after string, found bool) {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[:i], s[i+len(sep):], true
	}
	return s, "", false
}
