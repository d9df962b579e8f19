package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/fabworks/cbbstore/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const keyCheckoutUser = "checkout:user:%s"

// CheckoutLimiter throttles checkout attempts per user. Checkout itself is
// idempotent, so the limiter exists to protect the contended pool row, not
// correctness.
type CheckoutLimiter struct {
	enabled bool

	bucket *TokenBucket

	rate  float64
	burst int
}

func NewCheckoutLimiter(cfg config.Config, client *redis.Client) *CheckoutLimiter {
	if !cfg.RateLimitEnabled || client == nil {
		return nil
	}
	return &CheckoutLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    cfg.CheckoutRate,
		burst:   cfg.CheckoutBurst,
	}
}

func (l *CheckoutLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *CheckoutLimiter) AllowUser(ctx context.Context, userID string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyCheckoutUser, strings.TrimSpace(userID)), l.rate, l.burst)
}
