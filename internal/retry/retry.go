// Пакет retry — политика повторов для внешних вызовов (кэш, API архива).
// Ограниченное число попыток, фиксированная задержка, классификация ошибок
// на повторяемые и фатальные.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted — все попытки исчерпаны на повторяемой ошибке.
var ErrExhausted = errors.New("попытки исчерпаны")

// transientError помечает ошибку как повторяемую.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient оборачивает err как повторяемую ошибку. nil остаётся nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient сообщает, помечена ли ошибка как повторяемая.
// Ошибка исчерпанных попыток окончательна, даже если оборачивает
// повторяемую: вложенные политики не умножают число попыток.
func IsTransient(err error) bool {
	if errors.Is(err, ErrExhausted) {
		return false
	}
	var te *transientError
	return errors.As(err, &te)
}

// Policy — политика повторов.
type Policy struct {
	// Attempts — максимальное число попыток (включая первую), минимум 1
	Attempts int
	// Delay — пауза между попытками
	Delay time.Duration
	// Retryable классифицирует ошибку. nil — используется IsTransient.
	Retryable func(error) bool
	// OnRetry вызывается перед каждой повторной попыткой (метрики, логи).
	OnRetry func(attempt int, err error)
}

func (p Policy) attempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}

func (p Policy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return IsTransient(err)
}

// Do выполняет fn с повторами по политике.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Do выполняет fn с повторами и возвращает её результат.
// Фатальная ошибка возвращается сразу. После последней неудачной повторяемой
// попытки возвращается ошибка, оборачивающая ErrExhausted и последнюю ошибку.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.attempts()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !p.retryable(err) {
			return zero, err
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if err := sleep(ctx, p.Delay); err != nil {
			return zero, fmt.Errorf("%w: прервано на попытке %d: %w", ErrExhausted, attempt, lastErr)
		}
	}

	return zero, fmt.Errorf("%w после %d попыток: %w", ErrExhausted, attempts, lastErr)
}

// sleep ждёт d или отмены контекста.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
