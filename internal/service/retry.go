package service

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy 控制瞬时错误与并发冲突的重试次数和退避时间。
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetryPolicy 最多尝试 3 次，退避 100ms 起按 2 倍递增。
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Backoff: 100 * time.Millisecond}
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrTransientStore) || errors.Is(err, ErrConcurrencyConflict)
}

// withRetry 执行 fn，仅对可重试错误按指数退避重试；配置错误立即返回。
func withRetry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil || !isRetryable(err) || attempt >= attempts {
			return err
		}

		delay := policy.Backoff << (attempt - 1)
		if delay <= 0 {
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
