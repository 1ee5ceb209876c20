package discovery

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// EnvTokenSource reads a bearer token from an environment variable on every
// call, picking up externally rotated credentials without a restart.
type EnvTokenSource struct {
	Key string
}

func (e EnvTokenSource) Token(ctx context.Context) (Token, error) {
	v := os.Getenv(e.Key)
	if v == "" {
		return Token{}, fmt.Errorf("token environment variable %s is empty", e.Key)
	}
	return Token{Value: v}, nil
}

// CachedTokenSource wraps another source and re-acquires only when the held
// token goes stale. MaxAge is the age-based fallback for issuers that don't
// expose expiry.
type CachedTokenSource struct {
	Inner  TokenSource
	MaxAge time.Duration

	mu         sync.Mutex
	tok        Token
	acquiredAt time.Time
}

func (c *CachedTokenSource) Token(ctx context.Context) (Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tok.Value != "" && !c.tok.Stale(c.acquiredAt, c.MaxAge) {
		return c.tok, nil
	}

	tok, err := c.Inner.Token(ctx)
	if err != nil {
		// Serve the previous token while the issuer is unreachable.
		if c.tok.Value != "" {
			return c.tok, nil
		}
		return Token{}, err
	}
	c.tok = tok
	c.acquiredAt = time.Now()
	return tok, nil
}
