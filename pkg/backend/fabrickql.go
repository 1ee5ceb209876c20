package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/probelab/inquest/pkg/discovery"
	"github.com/probelab/inquest/pkg/throttle"
)

// FabricKQLConfig tunes the fabric-kql telemetry backend. Empty QueryURI and
// Database are resolved from discovery per query.
type FabricKQLConfig struct {
	QueryURI    string
	Database    string
	HTTPTimeout time.Duration // default 120s
}

func (c FabricKQLConfig) withDefaults() FabricKQLConfig {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 120 * time.Second
	}
	return c
}

// FabricKQL executes KQL against an Eventhouse query endpoint using the
// Kusto v2 REST contract and flattens the frame stream into a ResultSet.
type FabricKQL struct {
	cfg    FabricKQLConfig
	http   *http.Client
	tokens discovery.TokenSource
	disc   *discovery.Cache
	gate   *throttle.Gate
}

func NewFabricKQL(cfg FabricKQLConfig, tokens discovery.TokenSource, disc *discovery.Cache, gate *throttle.Gate) *FabricKQL {
	cfg = cfg.withDefaults()
	return &FabricKQL{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.HTTPTimeout},
		tokens: tokens,
		disc:   disc,
		gate:   gate,
	}
}

// kustoFrame is the subset of the v2 frame stream we consume. Only
// PrimaryResult DataTable frames carry query output.
type kustoFrame struct {
	FrameType    string             `json:"FrameType"`
	TableKind    string             `json:"TableKind"`
	Columns      []kustoColumn      `json:"Columns"`
	Rows         []json.RawMessage  `json:"Rows"`
	HasError     bool               `json:"HasErrors"`
	OneAPIErrors []kustoOneAPIError `json:"OneApiErrors"`
}

type kustoColumn struct {
	ColumnName string `json:"ColumnName"`
	ColumnType string `json:"ColumnType"`
}

type kustoOneAPIError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (f *FabricKQL) ExecuteQuery(ctx context.Context, query string, params QueryParams) (*ResultSet, error) {
	if err := f.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer f.gate.Release()

	queryURI := f.cfg.QueryURI
	database := f.cfg.Database
	if params.Database != "" {
		database = params.Database
	}
	if queryURI == "" || database == "" {
		disc, err := f.disc.Resolve(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolving eventhouse endpoint: %w", err)
		}
		if queryURI == "" {
			queryURI = disc.EventhouseQueryURI
		}
		if database == "" {
			database = disc.KQLDatabaseName
		}
	}

	tok, err := f.tokens.Token(ctx)
	if err != nil {
		return nil, &QueryError{Class: ClassUnauthorized, Message: err.Error()}
	}

	body, err := json.Marshal(map[string]any{"db": database, "csl": query})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		queryURI+"/v2/rest/query", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok.Value)

	resp, err := f.http.Do(req)
	if err != nil {
		f.gate.RecordServerError()
		return nil, &QueryError{Class: ClassUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to frame parsing
	case resp.StatusCode == http.StatusTooManyRequests:
		f.gate.Record429()
		return nil, &QueryError{Class: ClassRateLimited, HTTPStatus: resp.StatusCode,
			Message: truncateBody(payload)}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		f.gate.RecordServerError()
		return nil, &QueryError{Class: ClassUnauthorized, HTTPStatus: resp.StatusCode,
			Message: truncateBody(payload)}
	case resp.StatusCode >= 500:
		f.gate.RecordServerError()
		return nil, &QueryError{Class: ClassUnavailable, HTTPStatus: resp.StatusCode,
			Message: truncateBody(payload)}
	default:
		return nil, &QueryError{Class: ClassInvalidQuery, HTTPStatus: resp.StatusCode,
			Message: truncateBody(payload)}
	}

	out, err := parseKustoFrames(payload)
	if err != nil {
		return nil, err
	}
	f.gate.RecordSuccess()
	return out, nil
}

func (f *FabricKQL) Ping(ctx context.Context) error {
	_, err := f.ExecuteQuery(ctx, "print ping=1", QueryParams{})
	return err
}

func (f *FabricKQL) Close() error { return nil }

// parseKustoFrames extracts every PrimaryResult table from a v2 frame array,
// concatenating rows. Service-reported errors in the stream surface as
// invalid_query.
func parseKustoFrames(payload []byte) (*ResultSet, error) {
	var frames []kustoFrame
	if err := json.Unmarshal(payload, &frames); err != nil {
		return nil, fmt.Errorf("malformed kusto response: %w", err)
	}

	out := &ResultSet{Columns: []Column{}, Data: []Row{}}
	for _, frame := range frames {
		if len(frame.OneAPIErrors) > 0 {
			e := frame.OneAPIErrors[0].Error
			return nil, &QueryError{Class: ClassInvalidQuery, Code: e.Code, Message: e.Message}
		}
		if frame.FrameType != "DataTable" || frame.TableKind != "PrimaryResult" {
			continue
		}
		if len(out.Columns) == 0 {
			for _, c := range frame.Columns {
				out.Columns = append(out.Columns, Column{Name: c.ColumnName, Type: c.ColumnType})
			}
		}
		for _, raw := range frame.Rows {
			var cells []any
			if err := json.Unmarshal(raw, &cells); err != nil {
				// Error rows appear as objects inside Rows.
				var rowErr struct {
					OneAPIErrors []json.RawMessage `json:"OneApiErrors"`
				}
				if json.Unmarshal(raw, &rowErr) == nil && len(rowErr.OneAPIErrors) > 0 {
					return nil, &QueryError{Class: ClassInvalidQuery,
						Message: truncateBody(rowErr.OneAPIErrors[0])}
				}
				continue
			}
			row := make(Row, len(out.Columns))
			for i, col := range out.Columns {
				if i < len(cells) {
					row[col.Name] = cells[i]
				}
			}
			out.Data = append(out.Data, row)
		}
	}
	return out, nil
}
