package ratelimit

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/coursepay/internal/config"
	"go.uber.org/zap"
)

const keyCheckoutCreate = "checkout:create:owner:"

// CheckoutLimiter throttles invoice creation per owner. Each create opens
// a real invoice at the gateway.
type CheckoutLimiter struct {
	bucket *TokenBucket
	cfg    *config.CheckoutConfigHolder
	log    *zap.Logger
}

func NewCheckoutLimiter(client redis.UniversalClient, cfg *config.CheckoutConfigHolder, log *zap.Logger) *CheckoutLimiter {
	return &CheckoutLimiter{
		bucket: NewTokenBucket(client),
		cfg:    cfg,
		log:    log.Named("ratelimit.checkout"),
	}
}

// AllowCreate fails open when redis is unavailable.
func (l *CheckoutLimiter) AllowCreate(ctx context.Context, ownerID string) Result {
	if l == nil || l.bucket == nil {
		return Result{Allowed: true}
	}
	c := l.cfg.Get()
	res, err := l.bucket.Allow(ctx, keyCheckoutCreate+strings.TrimSpace(ownerID), c.CreateRatePerSecond, c.CreateBurst)
	if err != nil {
		l.log.Warn("checkout rate limit check failed, allowing", zap.Error(err))
		return Result{Allowed: true}
	}
	return res
}
