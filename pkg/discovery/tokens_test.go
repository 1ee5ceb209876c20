package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	calls int
	tok   Token
	err   error
}

func (c *countingSource) Token(ctx context.Context) (Token, error) {
	c.calls++
	if c.err != nil {
		return Token{}, c.err
	}
	return c.tok, nil
}

func TestEnvTokenSource(t *testing.T) {
	t.Setenv("TEST_BEARER", "tok-1")
	src := EnvTokenSource{Key: "TEST_BEARER"}
	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok.Value)

	t.Setenv("TEST_BEARER", "")
	_, err = src.Token(context.Background())
	assert.Error(t, err)
}

func TestCachedTokenSourceReusesFreshToken(t *testing.T) {
	inner := &countingSource{tok: Token{Value: "tok-1"}}
	src := &CachedTokenSource{Inner: inner, MaxAge: time.Hour}

	for i := 0; i < 3; i++ {
		tok, err := src.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tok-1", tok.Value)
	}
	assert.Equal(t, 1, inner.calls)
}

func TestCachedTokenSourceReacquiresOnAge(t *testing.T) {
	inner := &countingSource{tok: Token{Value: "tok-1"}}
	src := &CachedTokenSource{Inner: inner, MaxAge: time.Hour}

	_, err := src.Token(context.Background())
	require.NoError(t, err)
	src.acquiredAt = time.Now().Add(-2 * time.Hour)

	inner.tok = Token{Value: "tok-2"}
	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok.Value)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedTokenSourceServesStaleOnIssuerFailure(t *testing.T) {
	inner := &countingSource{tok: Token{Value: "tok-1"}}
	src := &CachedTokenSource{Inner: inner, MaxAge: time.Hour}

	_, err := src.Token(context.Background())
	require.NoError(t, err)
	src.acquiredAt = time.Now().Add(-2 * time.Hour)

	inner.err = errors.New("issuer down")
	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok.Value)
}
