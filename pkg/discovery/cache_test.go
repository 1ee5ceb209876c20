package discovery

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	mu        sync.Mutex
	items     []WorkspaceItem
	meta      KQLDatabaseMeta
	listErr   error
	listCalls atomic.Int32
	block     chan struct{} // when set, ListItems blocks until closed
}

func (f *fakeResolver) ListItems(ctx context.Context, workspaceID string) ([]WorkspaceItem, error) {
	f.listCalls.Add(1)
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.items, nil
}

func (f *fakeResolver) GetKQLDatabase(ctx context.Context, workspaceID, itemID string) (KQLDatabaseMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meta, nil
}

func defaultItems() []WorkspaceItem {
	return []WorkspaceItem{
		{ID: "gm-1", DisplayName: "telco-backbone-topology", Type: ItemTypeGraphModel},
		{ID: "kdb-1", DisplayName: "telco-backbone-telemetry", Type: ItemTypeKQLDatabase},
		{ID: "other", DisplayName: "unrelated", Type: "Lakehouse"},
	}
}

func noEnv(string) string { return "" }

func newTestCache(r Resolver, getenv func(string) string) *Cache {
	return NewCache(r, CacheConfig{
		WorkspaceID:      "ws-1",
		ConventionPrefix: "telco-backbone",
		Getenv:           getenv,
	})
}

func TestResolveFromDiscovery(t *testing.T) {
	r := &fakeResolver{
		items: defaultItems(),
		meta:  KQLDatabaseMeta{QueryServiceURI: "https://kusto.example", DatabaseName: "telemetry"},
	}
	c := newTestCache(r, noEnv)

	d, err := c.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "gm-1", d.GraphModelID)
	assert.Equal(t, "https://kusto.example", d.EventhouseQueryURI)
	assert.Equal(t, "telemetry", d.KQLDatabaseName)
	assert.Equal(t, SourceDiscovery, d.Source)

	// Second resolve hits the cache.
	_, err = c.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), r.listCalls.Load())
}

func TestResolveEnvPrecedenceSkipsDiscovery(t *testing.T) {
	env := map[string]string{
		EnvWorkspaceID:        "ws-env",
		EnvGraphModelID:       "gm-env",
		EnvEventhouseQueryURI: "https://env.example",
		EnvKQLDatabaseName:    "db-env",
	}
	r := &fakeResolver{}
	c := newTestCache(r, func(k string) string { return env[k] })

	d, err := c.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SourceEnv, d.Source)
	assert.Equal(t, "gm-env", d.GraphModelID)
	assert.Equal(t, int32(0), r.listCalls.Load(), "discovery must be skipped")
}

func TestResolvePartialEnvOverride(t *testing.T) {
	env := map[string]string{EnvGraphModelID: "gm-override"}
	r := &fakeResolver{
		items: defaultItems(),
		meta:  KQLDatabaseMeta{QueryServiceURI: "https://kusto.example", DatabaseName: "telemetry"},
	}
	c := newTestCache(r, func(k string) string { return env[k] })

	d, err := c.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "gm-override", d.GraphModelID)
	assert.Equal(t, "telemetry", d.KQLDatabaseName)
	assert.Equal(t, SourcePartial, d.Source)
}

func TestResolveEnvWorkspaceMarksPartial(t *testing.T) {
	// Only the workspace id comes from env; the rest is discovered. The
	// snapshot is no longer purely discovered.
	env := map[string]string{EnvWorkspaceID: "ws-env"}
	r := &fakeResolver{
		items: defaultItems(),
		meta:  KQLDatabaseMeta{QueryServiceURI: "https://kusto.example", DatabaseName: "telemetry"},
	}
	c := newTestCache(r, func(k string) string { return env[k] })

	d, err := c.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ws-env", d.WorkspaceID)
	assert.Equal(t, "gm-1", d.GraphModelID)
	assert.Equal(t, SourcePartial, d.Source)
}

func TestResolveSingleCandidateFallback(t *testing.T) {
	r := &fakeResolver{
		items: []WorkspaceItem{
			{ID: "gm-only", DisplayName: "no-convention-here", Type: ItemTypeGraphModel},
			{ID: "kdb-only", DisplayName: "also-no-convention", Type: ItemTypeKQLDatabase},
		},
		meta: KQLDatabaseMeta{QueryServiceURI: "u", DatabaseName: "d"},
	}
	c := newTestCache(r, noEnv)

	d, err := c.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "gm-only", d.GraphModelID)
}

func TestResolveNoCandidateFails(t *testing.T) {
	r := &fakeResolver{items: []WorkspaceItem{
		{ID: "a", DisplayName: "x", Type: "Lakehouse"},
	}}
	c := newTestCache(r, noEnv)

	_, err := c.Resolve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GraphModel")
}

func TestResolveStaleDuringRefresh(t *testing.T) {
	r := &fakeResolver{
		items: defaultItems(),
		meta:  KQLDatabaseMeta{QueryServiceURI: "u", DatabaseName: "d"},
	}
	c := newTestCache(r, noEnv)

	first, err := c.Resolve(context.Background())
	require.NoError(t, err)

	// Expire the snapshot and make the next refresh hang.
	c.Invalidate()
	copied := first
	c.mu.Lock()
	c.last = &copied
	c.mu.Unlock()
	r.block = make(chan struct{})

	started := make(chan struct{})
	go func() {
		close(started)
		_, _ = c.Resolve(context.Background())
	}()
	<-started
	// Give the refresher time to set the in-flight flag.
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.inflight != nil
	}, time.Second, 5*time.Millisecond)

	// A concurrent caller gets the stale snapshot instead of waiting.
	doneCh := make(chan Discovery, 1)
	go func() {
		d, err := c.Resolve(context.Background())
		require.NoError(t, err)
		doneCh <- d
	}()
	select {
	case d := <-doneCh:
		assert.Equal(t, first.GraphModelID, d.GraphModelID)
	case <-time.After(time.Second):
		t.Fatal("concurrent caller blocked instead of getting stale snapshot")
	}

	close(r.block)
}

func TestInvalidateForcesRefresh(t *testing.T) {
	r := &fakeResolver{
		items: defaultItems(),
		meta:  KQLDatabaseMeta{QueryServiceURI: "u", DatabaseName: "d"},
	}
	c := newTestCache(r, noEnv)

	_, err := c.Resolve(context.Background())
	require.NoError(t, err)
	c.Invalidate()
	_, err = c.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), r.listCalls.Load())
}

func TestTokenStale(t *testing.T) {
	now := time.Now()

	// Expiry-aware issuer: stale when under 5 minutes remain.
	assert.True(t, Token{Value: "t", ExpiresAt: now.Add(2 * time.Minute)}.Stale(now, time.Hour))
	assert.False(t, Token{Value: "t", ExpiresAt: now.Add(time.Hour)}.Stale(now, time.Hour))

	// Age-based fallback.
	assert.True(t, Token{Value: "t"}.Stale(now.Add(-51*time.Minute), 50*time.Minute))
	assert.False(t, Token{Value: "t"}.Stale(now.Add(-10*time.Minute), 50*time.Minute))
}
