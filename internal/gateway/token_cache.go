package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/smallbiznis/coursepay/internal/clock"
	"github.com/smallbiznis/coursepay/internal/observability/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	tokenSafetyMargin = 30 * time.Second
	defaultTokenTTL   = time.Hour
	maxTokenTTL       = 24 * time.Hour
)

// Token is a freshly issued gateway credential. TTL is zero when the
// gateway did not say how long it lives.
type Token struct {
	AccessToken string
	TTL         time.Duration
}

// TokenSource performs the actual authentication call.
type TokenSource interface {
	FetchToken(ctx context.Context) (Token, error)
}

// TokenCache holds the one gateway bearer token shared by the process.
// Concurrent callers that find the token stale share a single refresh.
type TokenCache struct {
	source  TokenSource
	clock   clock.Clock
	log     *zap.Logger
	metrics *metrics.CheckoutMetrics

	group singleflight.Group

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewTokenCache(source TokenSource, clk clock.Clock, log *zap.Logger, m *metrics.CheckoutMetrics) *TokenCache {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TokenCache{
		source:  source,
		clock:   clk,
		log:     log.Named("gateway.token"),
		metrics: m,
	}
}

// Token returns a bearer token with more than 30s of life left, refreshing
// it when needed.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if token, ok := c.cached(); ok {
		return token, nil
	}

	v, err, _ := c.group.Do("token", func() (interface{}, error) {
		// Another flight may have stored a token since the check above.
		if token, ok := c.cached(); ok {
			return token, nil
		}
		return c.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token. Called after the gateway rejects it.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

func (c *TokenCache) cached() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" {
		return "", false
	}
	if c.expiresAt.Sub(c.clock.Now()) <= tokenSafetyMargin {
		return "", false
	}
	return c.token, true
}

func (c *TokenCache) refresh(ctx context.Context) (string, error) {
	issued, err := c.source.FetchToken(ctx)
	if err == nil && issued.AccessToken == "" {
		err = fmt.Errorf("empty access token")
	}
	if err != nil {
		c.metrics.TokenRefreshed(false)
		c.log.Warn("gateway token refresh failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrGatewayAuth, err)
	}

	ttl := clampTTL(issued.TTL)
	c.mu.Lock()
	c.token = issued.AccessToken
	c.expiresAt = c.clock.Now().Add(ttl)
	c.mu.Unlock()

	c.metrics.TokenRefreshed(true)
	c.log.Debug("gateway token refreshed", zap.Duration("ttl", ttl))
	return issued.AccessToken, nil
}

func clampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > maxTokenTTL {
		return defaultTokenTTL
	}
	return ttl
}
