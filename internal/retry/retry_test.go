package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConn = errors.New("connection refused")

func TestPolicy_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	retries := 0
	p := Policy{Attempts: 5, Delay: time.Millisecond, OnRetry: func(int, error) { retries++ }}

	got, err := Do(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", Transient(errConn)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
}

func TestPolicy_ExhaustsBounded(t *testing.T) {
	calls := 0
	p := Policy{Attempts: 5, Delay: time.Millisecond}

	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return Transient(errConn)
	})

	assert.Equal(t, 5, calls)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, errConn)
}

func TestPolicy_FatalNotRetried(t *testing.T) {
	calls := 0
	fatal := errors.New("malformed request")
	p := Policy{Attempts: 5, Delay: time.Millisecond}

	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return fatal
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, fatal)
	assert.NotErrorIs(t, err, ErrExhausted)
}

func TestPolicy_CustomClassifier(t *testing.T) {
	calls := 0
	p := Policy{
		Attempts:  3,
		Retryable: func(err error) bool { return errors.Is(err, errConn) },
	}

	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errConn
	})

	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestPolicy_ZeroAttemptsMeansOne(t *testing.T) {
	calls := 0
	err := Policy{}.Do(context.Background(), func(context.Context) error {
		calls++
		return Transient(errConn)
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestPolicy_ContextCancelStopsWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := Policy{Attempts: 10, Delay: time.Hour}

	start := time.Now()
	err := p.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return Transient(errConn)
	})

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestTransient(t *testing.T) {
	assert.Nil(t, Transient(nil))
	assert.True(t, IsTransient(Transient(errConn)))
	assert.False(t, IsTransient(errConn))
	assert.ErrorIs(t, Transient(errConn), errConn)
}

func TestPolicy_NestedExhaustionIsFinal(t *testing.T) {
	inner := Policy{Attempts: 3}
	outer := Policy{Attempts: 4}
	calls := 0

	err := outer.Do(context.Background(), func(ctx context.Context) error {
		return inner.Do(ctx, func(context.Context) error {
			calls++
			return Transient(errConn)
		})
	})
	assert.ErrorIs(t, err, ErrExhausted)
	assert.False(t, IsTransient(err))
	assert.Equal(t, 3, calls, "внешняя политика не повторяет исчерпанную внутреннюю")
}
