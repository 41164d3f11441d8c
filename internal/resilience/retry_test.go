package resilience

import (
	"context"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() Policy {
	return Policy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), "op", func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransient(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), "op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Transient(eris.New("upstream 503"), 503)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_NonTransientNotRetried(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), "op", func(ctx context.Context) error {
		calls++
		return eris.New("bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), "op", func(ctx context.Context) error {
		calls++
		return Transient(eris.New("still down"), 500)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancelStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fastPolicy(), "op", func(ctx context.Context) error {
		calls++
		cancel()
		return Transient(eris.New("down"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ReturnsValue(t *testing.T) {
	val, err := DoVal(context.Background(), fastPolicy(), "op", func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)
}

func TestDoVal_CustomShouldRetry(t *testing.T) {
	p := fastPolicy()
	p.ShouldRetry = func(error) bool { return true }

	calls := 0
	_, err := DoVal(context.Background(), p, "op", func(ctx context.Context) (string, error) {
		calls++
		return "", eris.New("anything")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(eris.New("validation failed")))
	assert.True(t, IsTransient(Transient(eris.New("x"), 429)))
	assert.True(t, IsTransient(eris.Wrap(Transient(eris.New("x"), 503), "outer")))
	assert.True(t, IsTransient(syscall.ECONNRESET))
	assert.True(t, IsTransient(&net.DNSError{Err: "lookup", IsTimeout: true}))
	assert.True(t, IsTransient(eris.New("read tcp: i/o timeout")))
}

func TestRetryableStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, RetryableStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 301, 400, 401, 404} {
		assert.False(t, RetryableStatus(code), "status %d", code)
	}
}

func TestPolicy_DelayCappedAndNonNegative(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 2 * time.Second}.withDefaults()
	for attempt := 0; attempt < 10; attempt++ {
		d := p.delay(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		// cap plus 25% jitter headroom
		assert.LessOrEqual(t, d, 2*time.Second+time.Second/2)
	}
}
