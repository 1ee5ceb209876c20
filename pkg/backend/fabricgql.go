package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/probelab/inquest/pkg/discovery"
	"github.com/probelab/inquest/pkg/throttle"
)

// Continuation status code returned with HTTP 200 when more pages follow.
const gqlStatusContinuation = "02000"

// Backend error code for an eventhouse that is still warming up.
const gqlCodeColdStart = "ColdStartTimeout"

// FabricGQLConfig tunes the fabric-gql backend. Zero values take defaults.
type FabricGQLConfig struct {
	Endpoint string // control-plane base URL

	RateLimitCap    int           // max 429 retries (default 2)
	ColdStartCap    int           // max cold-start retries (default 5)
	ContinuationCap int           // max continuation rounds (default 5)
	ColdStartBase   time.Duration // first cold-start backoff (default 10s)
	ColdStartMax    time.Duration // cold-start backoff clamp (default 60s)

	RetryAfterFallback time.Duration // used when Retry-After is absent or out of band (default 30s)
	RetryAfterMax      time.Duration // upper bound on honored Retry-After (default 120s)
	ContinuationDelay  time.Duration // fixed delay between pages (default 10s)

	TokenStaleAfter time.Duration // age-based token staleness fallback (default 50m)
	HTTPTimeout     time.Duration // per-call timeout (default 120s)
}

func (c FabricGQLConfig) withDefaults() FabricGQLConfig {
	if c.RateLimitCap <= 0 {
		c.RateLimitCap = 2
	}
	if c.ColdStartCap <= 0 {
		c.ColdStartCap = 5
	}
	if c.ContinuationCap <= 0 {
		c.ContinuationCap = 5
	}
	if c.ColdStartBase <= 0 {
		c.ColdStartBase = 10 * time.Second
	}
	if c.ColdStartMax <= 0 {
		c.ColdStartMax = 60 * time.Second
	}
	if c.RetryAfterFallback <= 0 {
		c.RetryAfterFallback = 30 * time.Second
	}
	if c.RetryAfterMax <= 0 {
		c.RetryAfterMax = 120 * time.Second
	}
	if c.ContinuationDelay <= 0 {
		c.ContinuationDelay = 10 * time.Second
	}
	if c.TokenStaleAfter <= 0 {
		c.TokenStaleAfter = 50 * time.Minute
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 120 * time.Second
	}
	return c
}

// FabricGQL executes GQL queries against a Fabric GraphModel. One persistent
// HTTP client is reused across queries.
type FabricGQL struct {
	cfg    FabricGQLConfig
	http   *http.Client
	tokens discovery.TokenSource
	disc   *discovery.Cache
	gate   *throttle.Gate

	tokMu sync.Mutex
	tok   discovery.Token
	tokAt time.Time

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFabricGQL creates the backend. disc may be nil when params are always
// passed explicitly.
func NewFabricGQL(cfg FabricGQLConfig, tokens discovery.TokenSource, disc *discovery.Cache, gate *throttle.Gate) *FabricGQL {
	cfg = cfg.withDefaults()
	return &FabricGQL{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.HTTPTimeout},
		tokens: tokens,
		disc:   disc,
		gate:   gate,
		sleep:  sleepCtx,
	}
}

type gqlRequest struct {
	Query             string `json:"query"`
	ContinuationToken string `json:"continuationToken,omitempty"`
	Beta              bool   `json:"beta"`
}

type gqlResponse struct {
	Status struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"status"`
	Result struct {
		Columns []Column          `json:"columns"`
		Data    []json.RawMessage `json:"data"`
	} `json:"result"`
	NextPage string `json:"nextPage"`
}

type gqlErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ExecuteQuery runs one GQL query through the full retry ladder: rate-limit
// waits, cold-start backoff, and continuation paging. Counters for the three
// classes are independent.
func (b *FabricGQL) ExecuteQuery(ctx context.Context, query string, params QueryParams) (*ResultSet, error) {
	if err := b.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer b.gate.Release()

	if err := b.defaultParams(ctx, &params); err != nil {
		return nil, err
	}

	coldStart := backoff.NewExponentialBackOff()
	coldStart.InitialInterval = b.cfg.ColdStartBase
	coldStart.Multiplier = 2
	coldStart.MaxInterval = b.cfg.ColdStartMax
	coldStart.RandomizationFactor = 0.25
	coldStart.MaxElapsedTime = 0
	coldStart.Reset()

	var rateLimits, coldStarts, continuations int
	var continuationToken string
	var pages []gqlResponse

	for {
		resp, body, err := b.post(ctx, query, params, continuationToken)
		if err != nil {
			return nil, &QueryError{Class: ClassUnavailable, Message: err.Error()}
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			var parsed gqlResponse
			if err := json.Unmarshal(body, &parsed); err != nil {
				return nil, &QueryError{Class: ClassUnavailable, Message: "malformed response: " + truncateBody(body)}
			}
			if parsed.Status.Code == gqlStatusContinuation && parsed.NextPage != "" {
				pages = append(pages, parsed)
				continuations++
				if continuations > b.cfg.ContinuationCap {
					return nil, &QueryError{Class: ClassTimeout, Code: gqlStatusContinuation,
						Message: "continuation cap exceeded"}
				}
				continuationToken = parsed.NextPage
				if err := b.sleep(ctx, b.cfg.ContinuationDelay); err != nil {
					return nil, err
				}
				continue
			}
			if parsed.Status.Code != "" && parsed.Status.Code != "00000" && parsed.Status.Code != gqlStatusContinuation {
				return nil, &QueryError{Class: ClassInvalidQuery, Code: parsed.Status.Code,
					Message: parsed.Status.Message, HTTPStatus: resp.StatusCode}
			}
			b.gate.RecordSuccess()
			pages = append(pages, parsed)
			return mergeGQLPages(pages), nil

		case resp.StatusCode == http.StatusTooManyRequests:
			b.gate.Record429()
			rateLimits++
			if rateLimits > b.cfg.RateLimitCap {
				return nil, &QueryError{Class: ClassRateLimited, HTTPStatus: resp.StatusCode,
					Message: "rate limit retries exhausted"}
			}
			wait := b.retryAfter(resp.Header.Get("Retry-After"))
			slog.Warn("Fabric GQL rate limited", "wait", wait, "attempt", rateLimits)
			if err := b.sleep(ctx, wait); err != nil {
				return nil, err
			}

		case resp.StatusCode == http.StatusInternalServerError && errorCode(body) == gqlCodeColdStart:
			coldStarts++
			if coldStarts > b.cfg.ColdStartCap {
				return nil, &QueryError{Class: ClassUnavailable, Code: gqlCodeColdStart,
					HTTPStatus: resp.StatusCode, Message: "cold start retries exhausted"}
			}
			wait := coldStart.NextBackOff()
			slog.Warn("Fabric GQL cold start, backing off", "wait", wait, "attempt", coldStarts)
			b.maybeRefreshToken(ctx)
			if err := b.sleep(ctx, wait); err != nil {
				return nil, err
			}

		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			b.gate.RecordServerError()
			return nil, &QueryError{Class: ClassUnauthorized, HTTPStatus: resp.StatusCode,
				Message: truncateBody(body)}

		case resp.StatusCode >= 500:
			b.gate.RecordServerError()
			return nil, &QueryError{Class: ClassUnavailable, HTTPStatus: resp.StatusCode,
				Message: truncateBody(body)}

		default:
			return nil, &QueryError{Class: ClassInvalidQuery, HTTPStatus: resp.StatusCode,
				Message: truncateBody(body)}
		}
	}
}

// Ingest is not supported: GraphModels are loaded by the ingestion pipeline,
// not through the query endpoint.
func (b *FabricGQL) Ingest(ctx context.Context, vertices []Vertex, edges []Edge) error {
	return ErrNotSupported
}

// GetTopology returns a label summary of the graph.
func (b *FabricGQL) GetTopology(ctx context.Context) (*ResultSet, error) {
	return b.ExecuteQuery(ctx, "MATCH (n) RETURN labels(n) AS label, count(n) AS nodes", QueryParams{})
}

// Ping issues a minimal query to verify connectivity.
func (b *FabricGQL) Ping(ctx context.Context) error {
	_, err := b.ExecuteQuery(ctx, "RETURN 1", QueryParams{})
	return err
}

// Close releases the HTTP client's idle connections.
func (b *FabricGQL) Close() error {
	b.http.CloseIdleConnections()
	return nil
}

// defaultParams fills workspace and graph-model ids from discovery.
func (b *FabricGQL) defaultParams(ctx context.Context, params *QueryParams) error {
	if params.WorkspaceID != "" && params.GraphModelID != "" {
		return nil
	}
	if b.disc == nil {
		return &QueryError{Class: ClassInvalidQuery, Message: "workspace and graph model ids required"}
	}
	d, err := b.disc.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("resolving graph binding: %w", err)
	}
	if params.WorkspaceID == "" {
		params.WorkspaceID = d.WorkspaceID
	}
	if params.GraphModelID == "" {
		params.GraphModelID = d.GraphModelID
	}
	return nil
}

func (b *FabricGQL) post(ctx context.Context, query string, params QueryParams, continuationToken string) (*http.Response, []byte, error) {
	tok, err := b.token(ctx)
	if err != nil {
		return nil, nil, err
	}

	payload, err := json.Marshal(gqlRequest{Query: query, ContinuationToken: continuationToken, Beta: true})
	if err != nil {
		return nil, nil, err
	}

	url := fmt.Sprintf("%s/v1/workspaces/%s/graphmodels/%s/executeQuery",
		b.cfg.Endpoint, params.WorkspaceID, params.GraphModelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tok.Value)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return resp, body, nil
}

// token returns the cached token, re-acquiring it when stale.
func (b *FabricGQL) token(ctx context.Context) (discovery.Token, error) {
	b.tokMu.Lock()
	defer b.tokMu.Unlock()
	if b.tok.Value == "" || b.tok.Stale(b.tokAt, b.cfg.TokenStaleAfter) {
		tok, err := b.tokens.Token(ctx)
		if err != nil {
			return discovery.Token{}, fmt.Errorf("acquiring token: %w", err)
		}
		b.tok = tok
		b.tokAt = time.Now()
	}
	return b.tok, nil
}

// maybeRefreshToken drops the cached token if it has gone stale, so the next
// attempt after a cold-start wait carries a fresh credential.
func (b *FabricGQL) maybeRefreshToken(ctx context.Context) {
	b.tokMu.Lock()
	defer b.tokMu.Unlock()
	if b.tok.Value != "" && b.tok.Stale(b.tokAt, b.cfg.TokenStaleAfter) {
		b.tok = discovery.Token{}
	}
}

// retryAfter parses the Retry-After header. Values outside (0, RetryAfterMax]
// fall back to the default wait; the result carries ±25% jitter.
func (b *FabricGQL) retryAfter(header string) time.Duration {
	wait := b.cfg.RetryAfterFallback
	if header != "" {
		if secs, err := strconv.Atoi(header); err == nil {
			d := time.Duration(secs) * time.Second
			if d > 0 && d <= b.cfg.RetryAfterMax {
				wait = d
			}
		}
	}
	return jitter25(wait)
}

// jitter25 applies ±25% jitter.
func jitter25(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	factor := 0.75 + rand.Float64()*0.5
	return time.Duration(float64(d) * factor)
}

func errorCode(body []byte) string {
	var parsed gqlErrorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	return parsed.Error.Code
}

// mergeGQLPages concatenates continuation pages into one normalized result.
// Columns come from the first page that declares any.
func mergeGQLPages(pages []gqlResponse) *ResultSet {
	out := &ResultSet{}
	for _, p := range pages {
		if len(out.Columns) == 0 {
			out.Columns = p.Result.Columns
		}
	}
	for _, p := range pages {
		for _, raw := range p.Result.Data {
			if row := normalizeGQLRow(raw, out.Columns); row != nil {
				out.Data = append(out.Data, row)
			}
		}
	}
	if out.Columns == nil {
		out.Columns = []Column{}
	}
	if out.Data == nil {
		out.Data = []Row{}
	}
	return out
}

// normalizeGQLRow accepts both positional-array and object rows, constraining
// object keys to the declared columns.
func normalizeGQLRow(raw json.RawMessage, columns []Column) Row {
	var asArray []any
	if err := json.Unmarshal(raw, &asArray); err == nil {
		row := make(Row, len(columns))
		for i, col := range columns {
			if i < len(asArray) {
				row[col.Name] = asArray[i]
			}
		}
		return row
	}

	var asObject map[string]any
	if err := json.Unmarshal(raw, &asObject); err != nil {
		return nil
	}
	row := make(Row, len(columns))
	for _, col := range columns {
		if v, ok := asObject[col.Name]; ok {
			row[col.Name] = v
		}
	}
	return row
}

// sleepCtx sleeps for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
