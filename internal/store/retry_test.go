package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBusy(t *testing.T) {
	assert.True(t, IsBusy(ErrBusy))
	assert.True(t, IsBusy(fmt.Errorf("wrap: %w", ErrBusy)))
	for _, code := range []string{"55P03", "40001", "40P01"} {
		assert.True(t, IsBusy(&pgconn.PgError{Code: code}), code)
	}
	assert.False(t, IsBusy(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsBusy(errors.New("boom")))
	assert.False(t, IsBusy(nil))
}

func TestRetryPolicyRetriesBusy(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, Backoff: FixedBackoff(time.Millisecond)}
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return ErrBusy
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicyGivesUp(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3}
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return ErrBusy
	})
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicyStopsOnPermanentError(t *testing.T) {
	p := DefaultRetryPolicy()
	boom := errors.New("boom")
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicyHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{MaxAttempts: 5, Backoff: FixedBackoff(time.Hour)}
	calls := 0
	err := p.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return ErrBusy
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryValue(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 2}
	calls := 0
	v, err := retryValue(context.Background(), p, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, &pgconn.PgError{Code: "40P01"}
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}
