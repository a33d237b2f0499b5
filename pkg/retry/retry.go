package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Class tells the policy how to treat a failed attempt.
type Class int

const (
	// Retryable failures are attempted again after the next backoff interval.
	Retryable Class = iota
	// Terminal failures stop the loop immediately.
	Terminal
)

// Classifier maps an attempt error to a Class and an optional server-requested wait.
type Classifier func(err error) (Class, time.Duration)

// Policy is a bounded exponential retry loop.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Classify    Classifier
	Logger      *zap.Logger
}

// Do runs op until it succeeds, fails terminally, exhausts MaxAttempts or ctx ends.
// The returned error is the last error produced by op.
func (p Policy) Do(ctx context.Context, name string, op func(context.Context) error) error {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	classify := p.Classify
	if classify == nil {
		classify = func(error) (Class, time.Duration) { return Retryable, 0 }
	}
	if p.MaxAttempts <= 1 {
		return op(ctx)
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	if exp.InitialInterval <= 0 {
		exp.InitialInterval = time.Second
	}
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	if p.MaxDelay > 0 {
		exp.MaxInterval = p.MaxDelay
	}
	exp.MaxElapsedTime = 0

	policy := &hintedBackOff{BackOff: exp}
	var bo backoff.BackOff = backoff.WithContext(backoff.WithMaxRetries(policy, uint64(p.MaxAttempts-1)), ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		class, wait := classify(err)
		if class == Terminal {
			logger.Warn("attempt failed terminally", zap.String("operation", name), zap.Int("attempt", attempt), zap.Error(err))
			return backoff.Permanent(err)
		}
		policy.hint = wait
		logger.Warn("attempt failed, will retry", zap.String("operation", name), zap.Int("attempt", attempt), zap.Duration("retry_after", wait), zap.Error(err))
		return err
	}, bo)
}

// hintedBackOff lets a server RetryAfter override the computed interval for one step.
type hintedBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (h *hintedBackOff) NextBackOff() time.Duration {
	next := h.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if h.hint > next {
		next = h.hint
	}
	h.hint = 0
	return next
}
