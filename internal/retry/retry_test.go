package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 3, Delay: time.Millisecond}, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientErrors(t *testing.T) {
	transient := errors.New("quota exceeded")
	calls := 0
	err := Do(context.Background(), Config{
		MaxAttempts: 3,
		Delay:       time.Millisecond,
		If:          func(err error) bool { return errors.Is(err, transient) },
	}, func() error {
		calls++
		if calls < 3 {
			return transient
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_NonRetryableShortCircuits(t *testing.T) {
	fatal := errors.New("bad request")
	calls := 0
	err := Do(context.Background(), Config{
		MaxAttempts: 3,
		Delay:       time.Millisecond,
		If:          func(error) bool { return false },
	}, func() error {
		calls++
		return fatal
	})
	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls, "must not retry non-transient failures")
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	transient := errors.New("rate limited")
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 2, Delay: time.Millisecond}, func() error {
		calls++
		return transient
	})
	require.ErrorIs(t, err, transient)
	assert.Equal(t, 2, calls)
}

func TestDo_CanceledContextStopsWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, Config{MaxAttempts: 3, Delay: time.Hour}, func() error {
		return errors.New("quota")
	})
	require.ErrorIs(t, err, context.Canceled)
}
