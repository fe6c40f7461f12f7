// Пакет cache — хранилище бинарного содержимого и токенов с TTL.
// Resilient оборачивает Store политикой повторов: транзиентные ошибки
// соединения повторяются ограниченное число раз, затем — ErrUnavailable.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/asset-proxy/internal/retry"
)

// Ошибки кэша.
var (
	// ErrMiss — ключ отсутствует или истёк.
	ErrMiss = errors.New("ключ не найден в кэше")
	// ErrUnavailable — хранилище недоступно после всех повторов.
	ErrUnavailable = errors.New("хранилище кэша недоступно")
)

// Значения по умолчанию для политики повторов.
const (
	DefaultRetryAttempts = 5
	DefaultRetryDelay    = 50 * time.Millisecond
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ap_cache_hits_total",
		Help: "Общее количество попаданий в кэш содержимого.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ap_cache_misses_total",
		Help: "Общее количество промахов кэша содержимого.",
	})
	cacheRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ap_cache_retries_total",
		Help: "Количество повторных обращений к кэшу после транзиентной ошибки.",
	}, []string{"op"})
	cacheErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ap_cache_errors_total",
		Help: "Количество неудачных обращений к кэшу (после повторов).",
	}, []string{"op"})
)

// Store — хранилище ключ-значение с TTL.
// Get возвращает ErrMiss для отсутствующего ключа. Транзиентные ошибки
// соединения помечаются через retry.Transient.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set сохраняет значение; ttl <= 0 — без истечения.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete удаляет ключ; отсутствующий ключ — не ошибка.
	Delete(ctx context.Context, key string) error
}

// Resilient — обёртка Store с ограниченными повторами.
type Resilient struct {
	store  Store
	get    retry.Policy
	set    retry.Policy
	del    retry.Policy
	logger *slog.Logger
}

// NewResilient создаёт обёртку с attempts попыток и паузой delay.
func NewResilient(store Store, attempts int, delay time.Duration, logger *slog.Logger) *Resilient {
	logger = logger.With(slog.String("component", "cache"))
	policy := func(op string) retry.Policy {
		return retry.Policy{
			Attempts: attempts,
			Delay:    delay,
			OnRetry: func(attempt int, err error) {
				cacheRetriesTotal.WithLabelValues(op).Inc()
				logger.Warn("Транзиентная ошибка кэша, повтор",
					slog.String("op", op),
					slog.Int("attempt", attempt),
					slog.String("error", err.Error()),
				)
			},
		}
	}
	return &Resilient{
		store:  store,
		get:    policy("get"),
		set:    policy("set"),
		del:    policy("delete"),
		logger: logger,
	}
}

// Get возвращает (значение, true) при попадании и (nil, false) при промахе.
func (c *Resilient) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := retry.Do(ctx, c.get, func(ctx context.Context) ([]byte, error) {
		return c.store.Get(ctx, key)
	})
	switch {
	case err == nil:
		cacheHitsTotal.Inc()
		return value, true, nil
	case errors.Is(err, ErrMiss):
		cacheMissesTotal.Inc()
		return nil, false, nil
	default:
		cacheErrorsTotal.WithLabelValues("get").Inc()
		return nil, false, c.wrap("чтение", key, err)
	}
}

// Set сохраняет значение с ttl (<= 0 — без истечения).
func (c *Resilient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := c.set.Do(ctx, func(ctx context.Context) error {
		return c.store.Set(ctx, key, value, ttl)
	})
	if err != nil {
		cacheErrorsTotal.WithLabelValues("set").Inc()
		return c.wrap("запись", key, err)
	}
	return nil
}

// Delete удаляет ключ.
func (c *Resilient) Delete(ctx context.Context, key string) error {
	err := c.del.Do(ctx, func(ctx context.Context) error {
		return c.store.Delete(ctx, key)
	})
	if err != nil {
		cacheErrorsTotal.WithLabelValues("delete").Inc()
		return c.wrap("удаление", key, err)
	}
	return nil
}

func (c *Resilient) wrap(op, key string, err error) error {
	if errors.Is(err, retry.ErrExhausted) {
		return fmt.Errorf("%w: %s %s: %w", ErrUnavailable, op, key, err)
	}
	return fmt.Errorf("%s кэша %s: %w", op, key, err)
}
