package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/coursepay/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	calls atomic.Int32
	ttl   time.Duration
	err   error
	delay time.Duration
}

func (f *fakeSource) FetchToken(ctx context.Context) (Token, error) {
	n := f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return Token{}, f.err
	}
	return Token{AccessToken: "token-" + string(rune('0'+n)), TTL: f.ttl}, nil
}

func TestTokenCacheReusesTokenWithinTTL(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	src := &fakeSource{ttl: 10 * time.Minute}
	cache := NewTokenCache(src, clk, nil, nil)

	first, err := cache.Token(context.Background())
	require.NoError(t, err)
	clk.Advance(5 * time.Minute)
	second, err := cache.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestTokenCacheRefreshesInsideSafetyMargin(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	src := &fakeSource{ttl: 10 * time.Minute}
	cache := NewTokenCache(src, clk, nil, nil)

	_, err := cache.Token(context.Background())
	require.NoError(t, err)

	clk.Advance(10*time.Minute - 20*time.Second)
	_, err = cache.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), src.calls.Load())
}

func TestTokenCacheConcurrentCallersShareOneRefresh(t *testing.T) {
	src := &fakeSource{ttl: time.Hour, delay: 50 * time.Millisecond}
	cache := NewTokenCache(src, clock.NewFakeClock(time.Now()), nil, nil)

	var wg sync.WaitGroup
	tokens := make([]string, 20)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := cache.Token(context.Background())
			assert.NoError(t, err)
			tokens[i] = tok
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), src.calls.Load())
	for _, tok := range tokens {
		assert.Equal(t, tokens[0], tok)
	}
}

func TestTokenCacheFailureIsNotCached(t *testing.T) {
	src := &fakeSource{ttl: time.Hour, err: errors.New("connection refused")}
	cache := NewTokenCache(src, clock.NewFakeClock(time.Now()), nil, nil)

	_, err := cache.Token(context.Background())
	require.ErrorIs(t, err, ErrGatewayAuth)

	src.err = nil
	tok, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, tok)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestTokenCacheInvalidateForcesRefresh(t *testing.T) {
	src := &fakeSource{ttl: time.Hour}
	cache := NewTokenCache(src, clock.NewFakeClock(time.Now()), nil, nil)

	_, err := cache.Token(context.Background())
	require.NoError(t, err)
	cache.Invalidate()
	_, err = cache.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), src.calls.Load())
}

func TestClampTTL(t *testing.T) {
	assert.Equal(t, time.Hour, clampTTL(0))
	assert.Equal(t, time.Hour, clampTTL(-time.Second))
	assert.Equal(t, time.Hour, clampTTL(48*time.Hour))
	assert.Equal(t, 2*time.Hour, clampTTL(2*time.Hour))
}
