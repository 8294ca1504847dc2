package courier

import (
	"context"
	"sync"
	"time"
)

// tokenCache holds a provider bearer token with its expiry. Each adapter owns
// one instance; the mutex is held across the fetch so concurrent callers do
// not issue redundant authentication requests.
type tokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// fetchFunc obtains a fresh token and its lifetime from the provider.
type fetchFunc func(ctx context.Context) (token string, ttl time.Duration, err error)

// Get returns the cached token, fetching a new one when absent or expired.
// A small skew is subtracted from the lifetime so a token is never used
// right at its expiry boundary.
func (c *tokenCache) Get(ctx context.Context, fetch fetchFunc) (string, error) {
	const expirySkew = time.Minute

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.expiresAt) {
		return c.token, nil
	}

	token, ttl, err := fetch(ctx)
	if err != nil {
		return "", err
	}

	c.token = token
	c.expiresAt = time.Now().Add(ttl - expirySkew)
	return token, nil
}

// Invalidate discards the cached token, forcing a re-fetch on next use.
// Called when a provider rejects the current token.
func (c *tokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}
