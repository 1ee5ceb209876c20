package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ControlPlaneClient talks to the Fabric workspace-items REST API.
type ControlPlaneClient struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
}

// NewControlPlaneClient creates a client for the given API base URL
// (e.g. "https://api.fabric.example.com").
func NewControlPlaneClient(baseURL string, tokens TokenSource) *ControlPlaneClient {
	return &ControlPlaneClient{
		baseURL: baseURL,
		tokens:  tokens,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

type itemsResponse struct {
	Value []WorkspaceItem `json:"value"`
}

// ListItems enumerates all items in a workspace.
func (c *ControlPlaneClient) ListItems(ctx context.Context, workspaceID string) ([]WorkspaceItem, error) {
	var out itemsResponse
	url := fmt.Sprintf("%s/v1/workspaces/%s/items", c.baseURL, workspaceID)
	if err := c.getJSON(ctx, url, &out); err != nil {
		return nil, fmt.Errorf("listing workspace items: %w", err)
	}
	return out.Value, nil
}

type kqlDatabaseResponse struct {
	Properties struct {
		QueryServiceURI string `json:"queryServiceUri"`
		DatabaseName    string `json:"databaseName"`
	} `json:"properties"`
}

// KQLDatabaseMeta is the extra metadata fetched for a KQL database item.
type KQLDatabaseMeta struct {
	QueryServiceURI string
	DatabaseName    string
}

// GetKQLDatabase fetches the query URI and database name for a KQL database item.
func (c *ControlPlaneClient) GetKQLDatabase(ctx context.Context, workspaceID, itemID string) (KQLDatabaseMeta, error) {
	var out kqlDatabaseResponse
	url := fmt.Sprintf("%s/v1/workspaces/%s/kqlDatabases/%s", c.baseURL, workspaceID, itemID)
	if err := c.getJSON(ctx, url, &out); err != nil {
		return KQLDatabaseMeta{}, fmt.Errorf("fetching KQL database %s: %w", itemID, err)
	}
	return KQLDatabaseMeta{
		QueryServiceURI: out.Properties.QueryServiceURI,
		DatabaseName:    out.Properties.DatabaseName,
	}, nil
}

func (c *ControlPlaneClient) getJSON(ctx context.Context, url string, out any) error {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("acquiring token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok.Value)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return fmt.Errorf("control plane returned %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
