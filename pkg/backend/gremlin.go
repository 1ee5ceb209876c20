package backend

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/probelab/inquest/pkg/throttle"
)

// Gremlin protocol status codes the driver reacts to.
const (
	gremlinStatusSuccess      = 200
	gremlinStatusNoContent    = 204
	gremlinStatusPartial      = 206
	gremlinStatusAuthenticate = 407
	gremlinStatusUnauthorized = 401
	gremlinStatusTimeout      = 408
	gremlinStatusThrottled    = 429
	gremlinStatusScriptError  = 597
)

const gremlinMimeType = "application/vnd.gremlin-v2.0+json"

// GremlinConfig tunes the cosmos-gremlin backend.
type GremlinConfig struct {
	Endpoint   string // wss://<account>.gremlin.cosmos.example:443/
	Database   string
	Graph      string
	PrimaryKey string

	MaxAttempts int           // per query, including the first (default 3)
	DialTimeout time.Duration // default 30s
	ReadTimeout time.Duration // per response frame (default 60s)
}

func (c GremlinConfig) withDefaults() GremlinConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 30 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	return c
}

// gremlinServerError is a non-2xx status frame from the server.
type gremlinServerError struct {
	Code    int
	Message string
}

func (e *gremlinServerError) Error() string {
	return fmt.Sprintf("gremlin server status %d: %s", e.Code, e.Message)
}

// Gremlin executes traversals against a Cosmos Gremlin graph over a
// websocket connection. The connection is a lazily-created singleton guarded
// by a mutex; any non-auth failure discards it so the next attempt rebuilds.
type Gremlin struct {
	cfg  GremlinConfig
	gate *throttle.Gate

	connMu sync.Mutex
	conn   *websocket.Conn

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGremlin creates the backend without connecting; the first query dials.
func NewGremlin(cfg GremlinConfig, gate *throttle.Gate) *Gremlin {
	return &Gremlin{cfg: cfg.withDefaults(), gate: gate, sleep: sleepCtx}
}

// username is the cosmos resource path used as the SASL identity.
func (g *Gremlin) username() string {
	return fmt.Sprintf("/dbs/%s/colls/%s", g.cfg.Database, g.cfg.Graph)
}

// ExecuteQuery submits a traversal, retrying throttled (429) and timed-out
// (408) server responses with exponential backoff up to MaxAttempts.
func (g *Gremlin) ExecuteQuery(ctx context.Context, query string, params QueryParams) (*ResultSet, error) {
	data, err := g.submitWithRetry(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	return normalizeGremlin(data), nil
}

// Ingest upserts vertices then edges using coalesce-based idempotent
// traversals with bound parameters.
func (g *Gremlin) Ingest(ctx context.Context, vertices []Vertex, edges []Edge) error {
	for _, v := range vertices {
		query := "g.V().hasLabel(vLabel).has('id', vId).fold()" +
			".coalesce(unfold(), addV(vLabel).property('id', vId).property('partitionKey', vPk))"
		bindings := map[string]any{"vLabel": v.Label, "vId": v.ID, "vPk": v.PartitionKey}
		i := 0
		for k, val := range v.Properties {
			b := fmt.Sprintf("p%d", i)
			query += fmt.Sprintf(".property('%s', %s)", k, b)
			bindings[b] = val
			i++
		}
		if _, err := g.submitWithRetry(ctx, query, bindings); err != nil {
			return fmt.Errorf("upserting vertex %s/%s: %w", v.Label, v.ID, err)
		}
	}

	for _, e := range edges {
		query := fmt.Sprintf(
			"g.V().hasLabel(srcLabel).has('%s', srcId).as('s')"+
				".V().hasLabel(dstLabel).has('%s', dstId)"+
				".coalesce(__.inE(eLabel).where(outV().as('s')), addE(eLabel).from('s'))",
			e.Source.IDProperty, e.Target.IDProperty)
		bindings := map[string]any{
			"srcLabel": e.Source.Label, "srcId": e.Source.IDValue,
			"dstLabel": e.Target.Label, "dstId": e.Target.IDValue,
			"eLabel": e.Label,
		}
		i := 0
		for k, val := range e.Properties {
			b := fmt.Sprintf("p%d", i)
			query += fmt.Sprintf(".property('%s', %s)", k, b)
			bindings[b] = val
			i++
		}
		if _, err := g.submitWithRetry(ctx, query, bindings); err != nil {
			return fmt.Errorf("upserting edge %s: %w", e.Label, err)
		}
	}
	return nil
}

// GetTopology returns vertex counts grouped by label.
func (g *Gremlin) GetTopology(ctx context.Context) (*ResultSet, error) {
	return g.ExecuteQuery(ctx, "g.V().groupCount().by(label)", QueryParams{})
}

// Ping runs a trivial traversal.
func (g *Gremlin) Ping(ctx context.Context) error {
	_, err := g.ExecuteQuery(ctx, "g.inject(1)", QueryParams{})
	return err
}

// Close tears down the websocket connection.
func (g *Gremlin) Close() error {
	g.connMu.Lock()
	defer g.connMu.Unlock()
	if g.conn != nil {
		err := g.conn.Close(websocket.StatusNormalClosure, "shutdown")
		g.conn = nil
		return err
	}
	return nil
}

func (g *Gremlin) submitWithRetry(ctx context.Context, query string, bindings map[string]any) ([]json.RawMessage, error) {
	if err := g.gate.Acquire(ctx); err != nil {
		return nil, &QueryError{Class: ClassUnavailable, Message: err.Error()}
	}
	defer g.gate.Release()

	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		data, err := g.submit(ctx, query, bindings)
		if err == nil {
			g.gate.RecordSuccess()
			return data, nil
		}
		lastErr = err

		var srvErr *gremlinServerError
		switch {
		case isGremlinError(err, &srvErr) && srvErr.Code == gremlinStatusUnauthorized:
			return nil, &QueryError{Class: ClassUnauthorized, Message: srvErr.Message}
		case isGremlinError(err, &srvErr) && srvErr.Code == gremlinStatusScriptError:
			return nil, &QueryError{Class: ClassInvalidQuery,
				Code: fmt.Sprint(srvErr.Code), Message: srvErr.Message}
		case isGremlinError(err, &srvErr) && (srvErr.Code == gremlinStatusThrottled || srvErr.Code == gremlinStatusTimeout):
			g.gate.Record429()
			if attempt == g.cfg.MaxAttempts {
				break
			}
			wait := time.Duration(1<<attempt) * time.Second
			slog.Warn("Gremlin backend throttled, backing off",
				"status", srvErr.Code, "wait", wait, "attempt", attempt)
			if sleepErr := g.sleep(ctx, wait); sleepErr != nil {
				return nil, sleepErr
			}
		default:
			// Connection-level failure: discard the handle, rebuild next attempt.
			g.gate.RecordServerError()
			g.reset()
			if attempt == g.cfg.MaxAttempts {
				break
			}
		}
	}
	if qe, ok := lastErr.(*QueryError); ok {
		return nil, qe
	}
	return nil, &QueryError{Class: ClassUnavailable, Message: lastErr.Error()}
}

func isGremlinError(err error, target **gremlinServerError) bool {
	if se, ok := err.(*gremlinServerError); ok {
		*target = se
		return true
	}
	return false
}

// reset discards the singleton connection.
func (g *Gremlin) reset() {
	g.connMu.Lock()
	defer g.connMu.Unlock()
	if g.conn != nil {
		_ = g.conn.Close(websocket.StatusInternalError, "resetting")
		g.conn = nil
	}
}

// connect lazily dials the websocket endpoint. Caller holds connMu.
func (g *Gremlin) connect(ctx context.Context) (*websocket.Conn, error) {
	if g.conn != nil {
		return g.conn, nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, g.cfg.DialTimeout)
	defer cancel()

	conn, resp, err := websocket.Dial(dialCtx, g.cfg.Endpoint, &websocket.DialOptions{
		Subprotocols: []string{"graphson"},
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, &QueryError{Class: ClassUnauthorized, HTTPStatus: resp.StatusCode,
				Message: "websocket handshake rejected"}
		}
		return nil, fmt.Errorf("dialing gremlin endpoint: %w", err)
	}
	// Cosmos result batches can be large.
	conn.SetReadLimit(16 << 20)
	g.conn = conn
	return conn, nil
}

type gremlinFrame struct {
	RequestID string `json:"requestId"`
	Status    struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"status"`
	Result struct {
		Data []json.RawMessage `json:"data"`
	} `json:"result"`
}

// submit sends one request and reads response frames until a terminal status,
// answering SASL challenges inline.
func (g *Gremlin) submit(ctx context.Context, query string, bindings map[string]any) ([]json.RawMessage, error) {
	g.connMu.Lock()
	defer g.connMu.Unlock()

	conn, err := g.connect(ctx)
	if err != nil {
		return nil, err
	}

	requestID := uuid.New().String()
	args := map[string]any{"gremlin": query, "language": "gremlin-groovy"}
	if len(bindings) > 0 {
		args["bindings"] = bindings
	}
	if err := g.writeMessage(ctx, conn, map[string]any{
		"requestId": requestID,
		"op":        "eval",
		"processor": "",
		"args":      args,
	}); err != nil {
		return nil, err
	}

	var data []json.RawMessage
	for {
		readCtx, cancel := context.WithTimeout(ctx, g.cfg.ReadTimeout)
		_, payload, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("reading gremlin response: %w", err)
		}

		var frame gremlinFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			return nil, fmt.Errorf("malformed gremlin frame: %w", err)
		}
		if frame.RequestID != "" && frame.RequestID != requestID {
			continue
		}

		switch frame.Status.Code {
		case gremlinStatusPartial:
			data = append(data, frame.Result.Data...)
		case gremlinStatusSuccess:
			data = append(data, frame.Result.Data...)
			return data, nil
		case gremlinStatusNoContent:
			return data, nil
		case gremlinStatusAuthenticate:
			sasl := base64.StdEncoding.EncodeToString(
				[]byte("\x00" + g.username() + "\x00" + g.cfg.PrimaryKey))
			if err := g.writeMessage(ctx, conn, map[string]any{
				"requestId": requestID,
				"op":        "authentication",
				"processor": "",
				"args":      map[string]any{"sasl": sasl},
			}); err != nil {
				return nil, err
			}
		default:
			return nil, &gremlinServerError{Code: frame.Status.Code, Message: frame.Status.Message}
		}
	}
}

// writeMessage frames a request in the mime-prefixed binary format the
// Gremlin protocol expects.
func (g *Gremlin) writeMessage(ctx context.Context, conn *websocket.Conn, msg map[string]any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	framed := make([]byte, 0, 1+len(gremlinMimeType)+len(payload))
	framed = append(framed, byte(len(gremlinMimeType)))
	framed = append(framed, gremlinMimeType...)
	framed = append(framed, payload...)
	return conn.Write(ctx, websocket.MessageBinary, framed)
}

// normalizeGremlin classifies result values: homogeneous vertex or edge
// results become structured columns, everything else lands in a single
// "value" column.
func normalizeGremlin(data []json.RawMessage) *ResultSet {
	out := &ResultSet{Columns: []Column{}, Data: []Row{}}
	if len(data) == 0 {
		return out
	}

	values := make([]Value, len(data))
	allNodes, allEdges := true, true
	for i, raw := range data {
		values[i] = ParseGraphValue(raw)
		if values[i].Kind != KindNode {
			allNodes = false
		}
		if values[i].Kind != KindEdge {
			allEdges = false
		}
	}

	switch {
	case allNodes:
		out.Columns = []Column{{Name: "id", Type: "string"}, {Name: "label", Type: "string"}, {Name: "properties", Type: "object"}}
		for _, v := range values {
			out.Data = append(out.Data, Row{"id": v.Node.ID, "label": v.Node.Label, "properties": v.Node.Properties})
		}
	case allEdges:
		out.Columns = []Column{
			{Name: "id", Type: "string"}, {Name: "label", Type: "string"},
			{Name: "source", Type: "string"}, {Name: "target", Type: "string"},
			{Name: "properties", Type: "object"},
		}
		for _, v := range values {
			out.Data = append(out.Data, Row{
				"id": v.Edge.ID, "label": v.Edge.Label,
				"source": v.Edge.SourceID, "target": v.Edge.TargetID,
				"properties": v.Edge.Properties,
			})
		}
	default:
		out.Columns = []Column{{Name: "value", Type: "dynamic"}}
		for _, raw := range data {
			var v any
			_ = json.Unmarshal(raw, &v)
			out.Data = append(out.Data, Row{"value": v})
		}
	}
	return out
}
