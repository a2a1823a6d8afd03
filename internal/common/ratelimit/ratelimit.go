// Package ratelimit enforces fixed-window request limits in Redis.
package ratelimit

import (
	"context"
	"time"

	"solcheck/internal/common/cache"
	appErr "solcheck/pkg/errors"
)

const defaultCacheTimeout = 200 * time.Millisecond

// Service counts hits per key inside a fixed window.
type Service struct {
	cache        cache.BasicOps
	window       time.Duration
	cacheTimeout time.Duration
}

// NewService creates a limiter. window is used when Allow gets a zero window.
func NewService(c cache.BasicOps, window, cacheTimeout time.Duration) *Service {
	if window <= 0 {
		window = time.Minute
	}
	if cacheTimeout <= 0 {
		cacheTimeout = defaultCacheTimeout
	}
	return &Service{cache: c, window: window, cacheTimeout: cacheTimeout}
}

// Allow records one hit on key and fails with TooManyRequests once more than
// max hits fall into the current window. max <= 0 disables the limit.
func (s *Service) Allow(ctx context.Context, key string, max int, window time.Duration) error {
	if max <= 0 {
		return nil
	}
	if s.cache == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("rate limit cache is unavailable")
	}
	if window <= 0 {
		window = s.window
	}

	ctxCache, cancel := context.WithTimeout(ctx, s.cacheTimeout)
	defer cancel()

	acquired, err := s.cache.SetNX(ctxCache, key, 1, window)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
	}
	count := int64(1)
	if !acquired {
		count, err = s.cache.Incr(ctxCache, key)
		if err != nil {
			return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
		}
		// a key left without expiry would block the client forever
		if ttl, err := s.cache.TTL(ctxCache, key); err == nil && ttl < 0 {
			_ = s.cache.Expire(ctxCache, key, window)
		}
	}
	if count > int64(max) {
		return appErr.New(appErr.TooManyRequests).WithMessagef("rate limit of %d requests per %s exceeded", max, window)
	}
	return nil
}
