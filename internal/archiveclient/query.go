package archiveclient

import (
	"strconv"
	"strings"
)

// Query — поисковое выражение архива.
type Query string

// Eq — поле равно значению.
func Eq(field, value string) Query {
	return Query(field + ":" + quoteValue(value))
}

// Empty — поле не заполнено.
func Empty(field string) Query {
	return Query(field + `:""`)
}

// ModifiedFrom — ассеты, изменённые начиная с момента since (ISO 8601).
func ModifiedFrom(since string) Query {
	return Query("mt>:" + quoteValue(since))
}

// Not — отрицание выражения.
func (q Query) Not() Query {
	return Query("NOT (" + string(q) + ")")
}

// And объединяет выражения через AND.
func And(qs ...Query) Query {
	return join("AND", qs)
}

// Or объединяет выражения через OR.
func Or(qs ...Query) Query {
	return join("OR", qs)
}

func join(op string, qs []Query) Query {
	nonEmpty := make([]Query, 0, len(qs))
	for _, q := range qs {
		if q != "" {
			nonEmpty = append(nonEmpty, q)
		}
	}
	if len(nonEmpty) == 1 {
		return nonEmpty[0]
	}
	parts := make([]string, len(nonEmpty))
	for i, q := range nonEmpty {
		parts[i] = "(" + string(q) + ")"
	}
	return Query(strings.Join(parts, " "+op+" "))
}

// quoteValue заключает значение в кавычки, если оно содержит пробелы или спецсимволы.
func quoteValue(v string) string {
	if v == "" || strings.ContainsAny(v, " \t\"():") {
		return strconv.Quote(v)
	}
	return v
}
