// Package discovery resolves logical Fabric resource names (workspace, graph
// model, eventhouse) to physical ids via the control-plane API, caching the
// result so redeployments of downstream items don't require redeploying the
// runtime.
package discovery

import (
	"context"
	"time"
)

// Source tags where a resolved binding came from.
const (
	SourceEnv       = "env"       // every id came from environment variables
	SourceDiscovery = "discovery" // every id came from the control plane
	SourcePartial   = "partial"   // env overrides applied on top of discovery
)

// Discovery is the cached mapping from logical names to physical ids.
// Values are copied on refresh; callers hold immutable snapshots.
type Discovery struct {
	WorkspaceID        string          `json:"workspace_id"`
	GraphModelID       string          `json:"graph_model_id"`
	EventhouseQueryURI string          `json:"eventhouse_query_uri"`
	KQLDatabaseName    string          `json:"kql_database_name"`
	Source             string          `json:"source"`
	Items              []WorkspaceItem `json:"-"`
	ResolvedAt         time.Time       `json:"resolved_at"`
}

// WorkspaceItem is one item returned by the workspace-items API.
type WorkspaceItem struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Type        string `json:"type"`
}

// Workspace item types the resolver cares about.
const (
	ItemTypeGraphModel  = "GraphModel"
	ItemTypeKQLDatabase = "KQLDatabase"
)

// Token is a bearer credential with optional expiry. A zero ExpiresAt means
// the issuer does not expose expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Stale reports whether the token should be re-acquired: expiry-aware issuers
// get a 5-minute remaining-lifetime check, others fall back to age-based
// staleness against acquiredAt.
func (t Token) Stale(acquiredAt time.Time, maxAge time.Duration) bool {
	if !t.ExpiresAt.IsZero() {
		return time.Until(t.ExpiresAt) < 5*time.Minute
	}
	return time.Since(acquiredAt) > maxAge
}

// TokenSource yields bearer tokens from the ambient service identity.
type TokenSource interface {
	Token(ctx context.Context) (Token, error)
}

// StaticTokenSource returns a fixed token. Used for tests and for
// environments that inject a pre-acquired credential.
type StaticTokenSource struct {
	Tok Token
}

func (s StaticTokenSource) Token(ctx context.Context) (Token, error) {
	return s.Tok, nil
}
