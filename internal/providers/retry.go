package providers

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Backoff returns the delay before retry attempt n (1-indexed):
// 2^n seconds plus (n*137 mod 1000) milliseconds.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := time.Duration(1<<uint(attempt)) * time.Second
	jitter := time.Duration((attempt*137)%1000) * time.Millisecond
	return base + jitter
}

type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type RetryPolicy struct {
	MaxRetries int
	Sleep      SleepFunc
	Logger     zerolog.Logger
}

func NewRetryPolicy(maxRetries int, logger zerolog.Logger) RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return RetryPolicy{MaxRetries: maxRetries, Sleep: sleepContext, Logger: logger}
}

// Do runs fn until it succeeds, fails with a non-retryable error or the retry
// budget is spent. The last error is returned unchanged.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	attempts := 0
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) || attempts >= p.MaxRetries {
			return err
		}
		attempts++
		delay := Backoff(attempts)
		p.Logger.Warn().Int("attempt", attempts).Dur("delay", delay).Err(err).Msg("retrying backend request")
		if serr := sleep(ctx, delay); serr != nil {
			return err
		}
	}
}

// Sender performs one backend request and returns the raw response body.
type Sender interface {
	Send(ctx context.Context, req GenerateRequest) (string, error)
}

// RetryingSender decorates a Sender with the retry policy.
type RetryingSender struct {
	next   Sender
	policy RetryPolicy
}

func NewRetryingSender(next Sender, policy RetryPolicy) *RetryingSender {
	return &RetryingSender{next: next, policy: policy}
}

func (r *RetryingSender) Send(ctx context.Context, req GenerateRequest) (string, error) {
	var out string
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		text, err := r.next.Send(ctx, req)
		if err != nil {
			return err
		}
		out = text
		return nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}
