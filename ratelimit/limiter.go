// Package ratelimit bounds authentication attempts per identity within a
// rolling period, on top of the storage Increment primitive.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	brokererrors "github.com/emberlink/go-identity-broker/internal/errors"
	"github.com/emberlink/go-identity-broker/storage"
)

// Limiter enforces count-per-window quotas using fixed window buckets.
// The bucket key embeds the window start, so a rollover naturally begins
// a fresh counter and every check stays one atomic Increment.
type Limiter struct {
	store   storage.Store
	nowTime func() time.Time
}

// LimiterOption modifies a Limiter instance.
type LimiterOption func(*Limiter)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) LimiterOption {
	return func(l *Limiter) {
		l.nowTime = nowFunc
	}
}

// New creates a Limiter backed by the given store.
func New(store storage.Store, options ...LimiterOption) *Limiter {
	l := &Limiter{
		store:   store,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// CheckAndConsume charges one attempt against key and fails with
// ErrRateLimited once the count for the current window exceeds limit.
// Rejected attempts still consume, so probing the limit is never free.
func (l *Limiter) CheckAndConsume(ctx context.Context, key string, limit int64, window time.Duration) error {
	if window <= 0 {
		return errors.Wrap(brokererrors.ErrInternal, "[Limiter.CheckAndConsume] window must be positive")
	}

	bucket := l.nowTime().UnixNano() / int64(window)
	bucketKey := fmt.Sprintf("ratelimit:%s:%d", key, bucket)

	count, err := l.store.Increment(ctx, bucketKey, window)
	if err != nil {
		return errors.Wrap(err, "[Limiter.CheckAndConsume] Increment")
	}
	if count > limit {
		return brokererrors.ErrRateLimited
	}
	return nil
}
