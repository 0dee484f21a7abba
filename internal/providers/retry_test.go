package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	require.Equal(t, 2*time.Second+137*time.Millisecond, Backoff(1))
	require.Equal(t, 4*time.Second+274*time.Millisecond, Backoff(2))
	require.Equal(t, 8*time.Second+411*time.Millisecond, Backoff(3))
	require.Equal(t, 256*time.Second+96*time.Millisecond, Backoff(8))
}

type scriptedSender struct {
	errs  []error
	calls int
}

func (s *scriptedSender) Send(ctx context.Context, req GenerateRequest) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	return "body", nil
}

func recordingPolicy(max int, delays *[]time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxRetries: max,
		Logger:     zerolog.Nop(),
		Sleep: func(ctx context.Context, d time.Duration) error {
			*delays = append(*delays, d)
			return nil
		},
	}
}

func TestRetryingSenderRetriesTransientFailures(t *testing.T) {
	var delays []time.Duration
	next := &scriptedSender{errs: []error{&HTTPStatusError{Status: 503}, &HTTPStatusError{Status: 429}}}
	out, err := NewRetryingSender(next, recordingPolicy(2, &delays)).Send(context.Background(), GenerateRequest{})
	require.NoError(t, err)
	require.Equal(t, "body", out)
	require.Equal(t, 3, next.calls)
	require.Equal(t, []time.Duration{Backoff(1), Backoff(2)}, delays)
}

func TestRetryingSenderReturnsLastErrorWhenBudgetSpent(t *testing.T) {
	var delays []time.Duration
	last := &HTTPStatusError{Status: 500, Body: "third"}
	next := &scriptedSender{errs: []error{&HTTPStatusError{Status: 500, Body: "first"}, &HTTPStatusError{Status: 502}, last}}
	_, err := NewRetryingSender(next, recordingPolicy(2, &delays)).Send(context.Background(), GenerateRequest{})
	require.Same(t, last, err)
	require.Equal(t, 3, next.calls)
	require.Len(t, delays, 2)
}

func TestRetryingSenderDoesNotRetryPermanentOrCancelled(t *testing.T) {
	for _, e := range []error{&HTTPStatusError{Status: 400}, &CancellationError{Err: context.Canceled}} {
		var delays []time.Duration
		next := &scriptedSender{errs: []error{e}}
		_, err := NewRetryingSender(next, recordingPolicy(5, &delays)).Send(context.Background(), GenerateRequest{})
		require.True(t, errors.Is(err, e) || err == e)
		require.Equal(t, 1, next.calls)
		require.Empty(t, delays)
	}
}

func TestRetryPolicyStopsWhenSleepInterrupted(t *testing.T) {
	calls := 0
	p := RetryPolicy{
		MaxRetries: 3,
		Logger:     zerolog.Nop(),
		Sleep:      func(ctx context.Context, d time.Duration) error { return context.Canceled },
	}
	orig := &HTTPStatusError{Status: 503}
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return orig
	})
	require.Same(t, orig, err)
	require.Equal(t, 1, calls)
}
