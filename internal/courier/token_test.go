package courier

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCache_ReusesValidToken(t *testing.T) {
	var cache tokenCache
	var fetches int

	fetch := func(ctx context.Context) (string, time.Duration, error) {
		fetches++
		return "token-1", time.Hour, nil
	}

	for i := 0; i < 3; i++ {
		token, err := cache.Get(context.Background(), fetch)
		require.NoError(t, err)
		assert.Equal(t, "token-1", token)
	}

	assert.Equal(t, 1, fetches, "valid token should not be re-fetched")
}

func TestTokenCache_RefetchesExpiredToken(t *testing.T) {
	var cache tokenCache
	var fetches int

	fetch := func(ctx context.Context) (string, time.Duration, error) {
		fetches++
		// Shorter than the expiry skew, so it is expired on arrival.
		return "short-lived", time.Second, nil
	}

	_, err := cache.Get(context.Background(), fetch)
	require.NoError(t, err)
	_, err = cache.Get(context.Background(), fetch)
	require.NoError(t, err)

	assert.Equal(t, 2, fetches)
}

func TestTokenCache_FetchErrorIsNotCached(t *testing.T) {
	var cache tokenCache
	var fetches int

	fetch := func(ctx context.Context) (string, time.Duration, error) {
		fetches++
		if fetches == 1 {
			return "", 0, errors.New("auth down")
		}
		return "token-2", time.Hour, nil
	}

	_, err := cache.Get(context.Background(), fetch)
	require.Error(t, err)

	token, err := cache.Get(context.Background(), fetch)
	require.NoError(t, err)
	assert.Equal(t, "token-2", token)
}

func TestTokenCache_InvalidateForcesRefetch(t *testing.T) {
	var cache tokenCache
	var fetches int

	fetch := func(ctx context.Context) (string, time.Duration, error) {
		fetches++
		return "token", time.Hour, nil
	}

	_, err := cache.Get(context.Background(), fetch)
	require.NoError(t, err)

	cache.Invalidate()

	_, err = cache.Get(context.Background(), fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, fetches)
}

func TestTokenCache_ConcurrentCallersFetchOnce(t *testing.T) {
	var cache tokenCache
	var fetches atomic.Int32

	fetch := func(ctx context.Context) (string, time.Duration, error) {
		fetches.Add(1)
		time.Sleep(10 * time.Millisecond)
		return "shared", time.Hour, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := cache.Get(context.Background(), fetch)
			assert.NoError(t, err)
			assert.Equal(t, "shared", token)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fetches.Load(), "concurrent callers should share one fetch")
}
