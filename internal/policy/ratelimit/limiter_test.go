package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitThrottlesPerDomain(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 10})
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(context.Background(), "https://www.linkedin.com/jobs/view/1"))
	}
	// 3 tokens at 10 rps with burst 1 needs at least 200ms.
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestWaitIndependentDomains(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 1})
	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "https://www.linkedin.com/jobs/view/1"))
	require.NoError(t, l.Wait(context.Background(), "https://www.indeed.com/viewjob?jk=a"))
	require.NoError(t, l.Wait(context.Background(), "https://internshala.com/internship/detail/x"))
	// Each domain has its own bucket, so three first hits are immediate.
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestWaitUnlimitedWhenZero(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	start := time.Now()
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Wait(context.Background(), "https://www.linkedin.com/jobs/view/1"))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestWaitHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0.001})
	require.NoError(t, l.Wait(context.Background(), "https://www.linkedin.com/jobs/view/1"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "https://www.linkedin.com/jobs/view/1")
	require.Error(t, err)
}
