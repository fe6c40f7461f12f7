package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RateLimit — не больше Requests запросов за окно Per.
type RateLimit struct {
	Requests int
	Per      time.Duration
}

func (l RateLimit) String() string {
	return fmt.Sprintf("%d/%s", l.Requests, l.Per)
}

var rateLimitUnits = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
}

// ParseRateLimits разбирает список "N/unit" через ";" или ",".
// unit: second, minute, hour, day (допускается множественное число).
// Пустая строка — без ограничений.
func ParseRateLimits(raw string) ([]RateLimit, error) {
	var limits []RateLimit
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ';' || r == ',' }) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		count, unit, found := strings.Cut(part, "/")
		if !found {
			return nil, fmt.Errorf("лимит %q: ожидается N/unit", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(count))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("лимит %q: число запросов должно быть >= 1", part)
		}
		unit = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(unit)), "s")
		per, ok := rateLimitUnits[unit]
		if !ok {
			return nil, fmt.Errorf("лимит %q: неизвестная единица, допустимые: second, minute, hour, day", part)
		}
		limits = append(limits, RateLimit{Requests: n, Per: per})
	}
	if len(limits) == 0 && strings.TrimSpace(raw) != "" {
		return nil, errors.New("не задано ни одного лимита")
	}
	return limits, nil
}
