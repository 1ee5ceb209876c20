package backend

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/probelab/inquest/pkg/throttle"
)

// CosmosSQLConfig tunes the cosmos-sql telemetry backend.
type CosmosSQLConfig struct {
	Endpoint   string // https://<account>.documents.example:443/
	Database   string
	Collection string
	PrimaryKey string // base64 master key

	HTTPTimeout time.Duration // default 60s
}

func (c CosmosSQLConfig) withDefaults() CosmosSQLConfig {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 60 * time.Second
	}
	return c
}

// CosmosSQL queries documents over the Cosmos SQL REST API and normalizes
// the result documents into a ResultSet.
type CosmosSQL struct {
	cfg  CosmosSQLConfig
	http *http.Client
	gate *throttle.Gate

	// now is swappable for signature tests.
	now func() time.Time
}

func NewCosmosSQL(cfg CosmosSQLConfig, gate *throttle.Gate) *CosmosSQL {
	cfg = cfg.withDefaults()
	return &CosmosSQL{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.HTTPTimeout},
		gate: gate,
		now:  time.Now,
	}
}

func (c *CosmosSQL) ExecuteQuery(ctx context.Context, query string, params QueryParams) (*ResultSet, error) {
	if err := c.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.gate.Release()

	resourceLink := fmt.Sprintf("dbs/%s/colls/%s", c.cfg.Database, c.cfg.Collection)
	body, err := json.Marshal(map[string]any{"query": query, "parameters": []any{}})
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(c.cfg.Endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		endpoint+"/"+resourceLink+"/docs", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	date := c.now().UTC().Format(http.TimeFormat)
	auth, err := cosmosAuthToken(http.MethodPost, "docs", resourceLink, date, c.cfg.PrimaryKey)
	if err != nil {
		return nil, fmt.Errorf("signing cosmos request: %w", err)
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("x-ms-date", date)
	req.Header.Set("x-ms-version", "2018-12-31")
	req.Header.Set("x-ms-documentdb-isquery", "True")
	req.Header.Set("x-ms-documentdb-query-enablecrosspartition", "True")
	req.Header.Set("Content-Type", "application/query+json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.gate.RecordServerError()
		return nil, &QueryError{Class: ClassUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		c.gate.Record429()
		return nil, &QueryError{Class: ClassRateLimited, HTTPStatus: resp.StatusCode,
			Message: truncateBody(payload)}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		c.gate.RecordServerError()
		return nil, &QueryError{Class: ClassUnauthorized, HTTPStatus: resp.StatusCode,
			Message: truncateBody(payload)}
	case resp.StatusCode >= 500:
		c.gate.RecordServerError()
		return nil, &QueryError{Class: ClassUnavailable, HTTPStatus: resp.StatusCode,
			Message: truncateBody(payload)}
	default:
		return nil, &QueryError{Class: ClassInvalidQuery, HTTPStatus: resp.StatusCode,
			Message: truncateBody(payload)}
	}

	var result struct {
		Documents []map[string]any `json:"Documents"`
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("malformed cosmos response: %w", err)
	}
	c.gate.RecordSuccess()
	return normalizeDocuments(result.Documents), nil
}

func (c *CosmosSQL) Ping(ctx context.Context) error {
	_, err := c.ExecuteQuery(ctx, "SELECT TOP 1 c.id FROM c", QueryParams{})
	return err
}

func (c *CosmosSQL) Close() error { return nil }

// cosmosAuthToken builds the master-key HMAC token the SQL REST API requires.
func cosmosAuthToken(verb, resourceType, resourceLink, date, key string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return "", fmt.Errorf("primary key is not base64: %w", err)
	}
	payload := strings.ToLower(verb) + "\n" +
		strings.ToLower(resourceType) + "\n" +
		resourceLink + "\n" +
		strings.ToLower(date) + "\n\n"
	mac := hmac.New(sha256.New, decoded)
	mac.Write([]byte(payload))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return url.QueryEscape("type=master&ver=1.0&sig=" + sig), nil
}

// normalizeDocuments derives columns from the union of document keys, sorted
// for stable output, dropping Cosmos system fields.
func normalizeDocuments(docs []map[string]any) *ResultSet {
	seen := map[string]bool{}
	for _, doc := range docs {
		for k := range doc {
			if strings.HasPrefix(k, "_") {
				continue
			}
			seen[k] = true
		}
	}
	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)

	out := &ResultSet{Columns: make([]Column, 0, len(names)), Data: make([]Row, 0, len(docs))}
	for _, name := range names {
		out.Columns = append(out.Columns, Column{Name: name, Type: "dynamic"})
	}
	for _, doc := range docs {
		row := make(Row, len(names))
		for _, name := range names {
			if v, ok := doc[name]; ok {
				row[name] = v
			}
		}
		out.Data = append(out.Data, row)
	}
	return out
}
