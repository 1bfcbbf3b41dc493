package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastPolicy(maxRetries int) *Policy {
	return &Policy{
		MaxRetries:   maxRetries,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
	}
}

func TestBackoffRetryer_Success(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func(context.Context) error {
		callCount++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, callCount, "应该只调用一次")
}

func TestBackoffRetryer_RetryAndSuccess(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func(context.Context) error {
		callCount++
		if callCount < 3 {
			return WrapRetryable(errors.New("temporary error"))
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, callCount)
}

func TestBackoffRetryer_Exhausted(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(2), zap.NewNop())

	root := errors.New("still down")
	callCount := 0
	err := retryer.Do(context.Background(), func(context.Context) error {
		callCount++
		return WrapRetryable(root)
	})

	require.Error(t, err)
	assert.Equal(t, 3, callCount, "初次调用 + 2 次重试")
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, root)
}

func TestBackoffRetryer_NonRetryableStopsImmediately(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(5), zap.NewNop())

	permanent := errors.New("bad request")
	callCount := 0
	err := retryer.Do(context.Background(), func(context.Context) error {
		callCount++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, callCount)
}

func TestBackoffRetryer_RetryIf(t *testing.T) {
	transient := errors.New("transient")
	policy := fastPolicy(3)
	policy.RetryIf = func(err error) bool { return errors.Is(err, transient) }
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func(context.Context) error {
		callCount++
		if callCount == 1 {
			return transient
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, callCount)
}

func TestBackoffRetryer_ContextCanceled(t *testing.T) {
	policy := fastPolicy(5)
	policy.InitialDelay = time.Second
	policy.MaxDelay = time.Second
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	callCount := 0
	start := time.Now()
	err := retryer.Do(ctx, func(context.Context) error {
		callCount++
		return WrapRetryable(errors.New("temporary"))
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, callCount)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestBackoffRetryer_DelayCalculation(t *testing.T) {
	r := NewBackoffRetryer(&Policy{
		MaxRetries:   5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
	}, zap.NewNop()).(*backoffRetryer)

	assert.Equal(t, 100*time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, 200*time.Millisecond, r.calculateDelay(2))
	assert.Equal(t, 400*time.Millisecond, r.calculateDelay(3))
	assert.Equal(t, 800*time.Millisecond, r.calculateDelay(4))
	assert.Equal(t, 1*time.Second, r.calculateDelay(5), "不超过 MaxDelay")
}

func TestBackoffRetryer_OnRetryCallback(t *testing.T) {
	policy := fastPolicy(2)
	var attempts []int
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
		assert.Error(t, err)
		assert.Positive(t, delay)
	}
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	_ = retryer.Do(context.Background(), func(context.Context) error {
		return WrapRetryable(errors.New("fail"))
	})

	assert.Equal(t, []int{1, 2}, attempts)
}

func TestNewBackoffRetryer_Normalizes(t *testing.T) {
	r := NewBackoffRetryer(&Policy{MaxRetries: -1, Multiplier: 0.5}, nil).(*backoffRetryer)
	assert.Equal(t, 0, r.policy.MaxRetries)
	assert.Equal(t, 2.0, r.policy.Multiplier)
	assert.Positive(t, r.policy.InitialDelay)
	assert.GreaterOrEqual(t, r.policy.MaxDelay, r.policy.InitialDelay)
}

func TestWrapRetryable(t *testing.T) {
	assert.Nil(t, WrapRetryable(nil))

	base := errors.New("x")
	wrapped := WrapRetryable(base)
	assert.True(t, IsRetryableError(wrapped))
	assert.False(t, IsRetryableError(base))
	assert.ErrorIs(t, wrapped, base)
}

func TestDoWithResult(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(2), zap.NewNop())

	calls := 0
	v, err := DoWithResult(context.Background(), retryer, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", WrapRetryable(errors.New("flaky"))
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	_, err = DoWithResult(context.Background(), retryer, func(context.Context) (int, error) {
		return 0, errors.New("permanent")
	})
	assert.Error(t, err)
}
