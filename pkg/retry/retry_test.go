package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errFlaky = errors.New("network unreachable")
	errAuth  = errors.New("unauthorized")
)

func classify(err error) (Class, time.Duration) {
	if errors.Is(err, errAuth) {
		return Terminal, 0
	}
	return Retryable, 0
}

func TestPolicyRetriesUntilSuccess(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Classify: classify}

	calls := 0
	err := p.Do(context.Background(), "verify", func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPolicyStopsAfterMaxAttempts(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Classify: classify}

	calls := 0
	err := p.Do(context.Background(), "verify", func(context.Context) error {
		calls++
		return errFlaky
	})
	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
}

func TestPolicyStopsOnTerminalError(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, Classify: classify}

	calls := 0
	err := p.Do(context.Background(), "verify", func(context.Context) error {
		calls++
		return errAuth
	})
	require.ErrorIs(t, err, errAuth)
	assert.Equal(t, 1, calls)
}

func TestPolicyHonoursRetryAfterHint(t *testing.T) {
	p := Policy{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		Classify: func(error) (Class, time.Duration) {
			return Retryable, 40 * time.Millisecond
		},
	}

	start := time.Now()
	calls := 0
	_ = p.Do(context.Background(), "verify", func(context.Context) error {
		calls++
		return errFlaky
	})
	assert.Equal(t, 2, calls)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestPolicyStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}

	calls := 0
	err := p.Do(ctx, "verify", func(context.Context) error {
		calls++
		return errFlaky
	})
	require.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}

func TestPolicySingleAttempt(t *testing.T) {
	calls := 0
	err := Policy{MaxAttempts: 1}.Do(context.Background(), "verify", func(context.Context) error {
		calls++
		return errFlaky
	})
	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
}
