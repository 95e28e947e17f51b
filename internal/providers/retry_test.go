package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFullJitterBackoffStaysWithinCap(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		d := fullJitterBackoff(attempt)
		assert.GreaterOrEqual(t, d, retryBaseDelay*0)
		assert.LessOrEqual(t, d, retryCapDelay)
	}
}

func TestWithRetrySucceedsAfterTransportFailures(t *testing.T) {
	attempts := 0
	out, err := withRetry(context.Background(), 2, func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", &TypedError{Kind: KindTransport, Provider: "test", Message: "boom"}
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryDoesNotRetryFatalErrors(t *testing.T) {
	attempts := 0
	_, err := withRetry(context.Background(), 3, func(ctx context.Context) (string, error) {
		attempts++
		return "", &TypedError{Kind: KindFatal, Provider: "test", Message: "bad config"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWithRetryGivesUpAfterMaxRetries(t *testing.T) {
	attempts := 0
	_, err := withRetry(context.Background(), 2, func(ctx context.Context) (string, error) {
		attempts++
		return "", &TypedError{Kind: KindTransport, Provider: "test", Message: "boom"}
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}
