package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	brokererrors "github.com/emberlink/go-identity-broker/internal/errors"
	"github.com/emberlink/go-identity-broker/ratelimit"
	"github.com/emberlink/go-identity-broker/storage/memory"
)

func TestLimitWithinWindow(t *testing.T) {
	store := memory.New(time.Minute)
	defer store.Close()
	limiter := ratelimit.New(store)
	ctx := context.Background()

	const limit = 3
	for i := 0; i < limit; i++ {
		require.NoError(t, limiter.CheckAndConsume(ctx, "a@example.com", limit, time.Minute))
	}

	err := limiter.CheckAndConsume(ctx, "a@example.com", limit, time.Minute)
	require.ErrorIs(t, err, brokererrors.ErrRateLimited)
}

func TestLimitResetsWhenWindowElapses(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := memory.New(time.Minute, memory.WithNowTime(func() time.Time { return now }))
	defer store.Close()
	limiter := ratelimit.New(store, ratelimit.WithNowTime(func() time.Time { return now }))
	ctx := context.Background()

	const limit = 3
	window := time.Minute
	for i := 0; i < limit; i++ {
		require.NoError(t, limiter.CheckAndConsume(ctx, "a@example.com", limit, window))
	}
	require.ErrorIs(t, limiter.CheckAndConsume(ctx, "a@example.com", limit, window), brokererrors.ErrRateLimited)

	now = now.Add(window)
	require.NoError(t, limiter.CheckAndConsume(ctx, "a@example.com", limit, window))
}

func TestSubSecondWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := memory.New(time.Minute, memory.WithNowTime(func() time.Time { return now }))
	defer store.Close()
	limiter := ratelimit.New(store, ratelimit.WithNowTime(func() time.Time { return now }))
	ctx := context.Background()

	const limit = 3
	window := 500 * time.Millisecond
	for i := 0; i < limit; i++ {
		require.NoError(t, limiter.CheckAndConsume(ctx, "a@example.com", limit, window))
	}
	require.ErrorIs(t, limiter.CheckAndConsume(ctx, "a@example.com", limit, window), brokererrors.ErrRateLimited)

	now = now.Add(window)
	require.NoError(t, limiter.CheckAndConsume(ctx, "a@example.com", limit, window))
}

func TestNonPositiveWindowRejected(t *testing.T) {
	store := memory.New(time.Minute)
	defer store.Close()
	limiter := ratelimit.New(store)
	ctx := context.Background()

	require.Error(t, limiter.CheckAndConsume(ctx, "a@example.com", 3, 0))
	require.Error(t, limiter.CheckAndConsume(ctx, "a@example.com", 3, -time.Second))
}

func TestKeysAreIndependent(t *testing.T) {
	store := memory.New(time.Minute)
	defer store.Close()
	limiter := ratelimit.New(store)
	ctx := context.Background()

	require.ErrorIs(t, limiter.CheckAndConsume(ctx, "a@example.com", 0, time.Minute), brokererrors.ErrRateLimited)
	require.NoError(t, limiter.CheckAndConsume(ctx, "b@example.com", 1, time.Minute))
}
