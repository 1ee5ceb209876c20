package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Env var names that override discovered values one-for-one.
const (
	EnvWorkspaceID        = "FABRIC_WORKSPACE_ID"
	EnvGraphModelID       = "FABRIC_GRAPH_MODEL_ID"
	EnvEventhouseQueryURI = "EVENTHOUSE_QUERY_URI"
	EnvKQLDatabaseName    = "KQL_DATABASE_NAME"
)

// DefaultTTL is how long a resolved snapshot stays fresh.
const DefaultTTL = 10 * time.Minute

// Resolver is the control-plane surface the cache depends on.
type Resolver interface {
	ListItems(ctx context.Context, workspaceID string) ([]WorkspaceItem, error)
	GetKQLDatabase(ctx context.Context, workspaceID, itemID string) (KQLDatabaseMeta, error)
}

// CacheConfig tunes the discovery cache.
type CacheConfig struct {
	// TTL after which a snapshot is refreshed. Defaults to DefaultTTL.
	TTL time.Duration

	// WorkspaceID is the workspace to enumerate when not set via env.
	WorkspaceID string

	// ConventionPrefix selects items whose display name contains it
	// (e.g. "telco-backbone").
	ConventionPrefix string

	// Getenv is swappable for tests; defaults to os.Getenv.
	Getenv func(string) string
}

// Cache is a thread-safe read-through cache over the control-plane API.
// Refreshes are serialized by an in-flight flag: while one caller refreshes,
// concurrent callers get the previous (stale) snapshot instead of stampeding.
type Cache struct {
	cfg      CacheConfig
	resolver Resolver

	snapshots *expirable.LRU[string, Discovery]

	mu       sync.Mutex
	last     *Discovery // most recent snapshot, served stale during refresh
	inflight chan struct{}
}

// NewCache creates a discovery cache.
func NewCache(resolver Resolver, cfg CacheConfig) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Getenv == nil {
		cfg.Getenv = os.Getenv
	}
	return &Cache{
		cfg:       cfg,
		resolver:  resolver,
		snapshots: expirable.NewLRU[string, Discovery](4, nil, cfg.TTL),
	}
}

// Resolve returns the current logical-to-physical binding. When every
// required id is present in the environment the discovery call is skipped
// entirely.
func (c *Cache) Resolve(ctx context.Context) (Discovery, error) {
	env := c.envBindings()
	if env.complete() {
		return Discovery{
			WorkspaceID:        env.workspaceID,
			GraphModelID:       env.graphModelID,
			EventhouseQueryURI: env.eventhouseURI,
			KQLDatabaseName:    env.kqlDatabase,
			Source:             SourceEnv,
			ResolvedAt:         time.Now(),
		}, nil
	}

	workspaceID := env.workspaceID
	if workspaceID == "" {
		workspaceID = c.cfg.WorkspaceID
	}
	if workspaceID == "" {
		return Discovery{}, fmt.Errorf("no workspace id: set %s or configure one", EnvWorkspaceID)
	}

	if snap, ok := c.snapshots.Get(workspaceID); ok {
		return snap, nil
	}

	c.mu.Lock()
	if c.inflight != nil {
		if c.last != nil {
			stale := *c.last
			c.mu.Unlock()
			return stale, nil
		}
		// First-ever resolution: wait for the in-flight refresh.
		done := c.inflight
		c.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return Discovery{}, ctx.Err()
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.last != nil {
			return *c.last, nil
		}
		return Discovery{}, fmt.Errorf("discovery refresh failed for workspace %s", workspaceID)
	}
	done := make(chan struct{})
	c.inflight = done
	c.mu.Unlock()

	snap, err := c.refresh(ctx, workspaceID, env)

	c.mu.Lock()
	c.inflight = nil
	close(done)
	if err == nil {
		copied := snap
		c.last = &copied
		c.snapshots.Add(workspaceID, snap)
	}
	c.mu.Unlock()

	if err != nil {
		return Discovery{}, err
	}
	return snap, nil
}

// Invalidate drops the cache; the next Resolve refreshes.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots.Purge()
	c.last = nil
}

// refresh enumerates workspace items and resolves the expected bindings.
func (c *Cache) refresh(ctx context.Context, workspaceID string, env envBindings) (Discovery, error) {
	items, err := c.resolver.ListItems(ctx, workspaceID)
	if err != nil {
		return Discovery{}, fmt.Errorf("discovery refresh: %w", err)
	}

	snap := Discovery{
		WorkspaceID: workspaceID,
		Source:      SourceDiscovery,
		Items:       items,
		ResolvedAt:  time.Now(),
	}

	graph, err := pickItem(items, ItemTypeGraphModel, c.cfg.ConventionPrefix)
	if err != nil {
		return Discovery{}, err
	}
	snap.GraphModelID = graph.ID

	kqlDB, err := pickItem(items, ItemTypeKQLDatabase, c.cfg.ConventionPrefix)
	if err != nil {
		return Discovery{}, err
	}
	meta, err := c.resolver.GetKQLDatabase(ctx, workspaceID, kqlDB.ID)
	if err != nil {
		return Discovery{}, err
	}
	snap.EventhouseQueryURI = meta.QueryServiceURI
	snap.KQLDatabaseName = meta.DatabaseName

	// Each explicitly-set env var overrides the discovered value. The
	// workspace id counts too: it already steered the enumeration above.
	overridden := env.workspaceID != ""
	if env.graphModelID != "" {
		snap.GraphModelID = env.graphModelID
		overridden = true
	}
	if env.eventhouseURI != "" {
		snap.EventhouseQueryURI = env.eventhouseURI
		overridden = true
	}
	if env.kqlDatabase != "" {
		snap.KQLDatabaseName = env.kqlDatabase
		overridden = true
	}
	if overridden {
		snap.Source = SourcePartial
	}

	slog.Info("Discovery refreshed",
		"workspace_id", snap.WorkspaceID,
		"graph_model_id", snap.GraphModelID,
		"kql_database", snap.KQLDatabaseName,
		"source", snap.Source)

	return snap, nil
}

// pickItem selects the item of the expected type whose display name contains
// the convention prefix. If no convention match exists but exactly one
// candidate of the type does, that candidate is used.
func pickItem(items []WorkspaceItem, itemType, prefix string) (WorkspaceItem, error) {
	var ofType []WorkspaceItem
	for _, it := range items {
		if it.Type != itemType {
			continue
		}
		ofType = append(ofType, it)
		if prefix != "" && strings.Contains(it.DisplayName, prefix) {
			return it, nil
		}
	}
	if len(ofType) == 1 {
		return ofType[0], nil
	}
	return WorkspaceItem{}, fmt.Errorf("no %s matching convention %q (candidates: %d)", itemType, prefix, len(ofType))
}

type envBindings struct {
	workspaceID   string
	graphModelID  string
	eventhouseURI string
	kqlDatabase   string
}

func (e envBindings) complete() bool {
	return e.workspaceID != "" && e.graphModelID != "" && e.eventhouseURI != "" && e.kqlDatabase != ""
}

func (c *Cache) envBindings() envBindings {
	return envBindings{
		workspaceID:   c.cfg.Getenv(EnvWorkspaceID),
		graphModelID:  c.cfg.Getenv(EnvGraphModelID),
		eventhouseURI: c.cfg.Getenv(EnvEventhouseQueryURI),
		kqlDatabase:   c.cfg.Getenv(EnvKQLDatabaseName),
	}
}
