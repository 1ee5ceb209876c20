// Package backend provides the pluggable data-plane layer: graph and
// telemetry query backends selected per scenario, each wrapped in a throttle
// gate and normalizing its wire shape into a common result set.
package backend

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrNotSupported is returned for optional operations a backend does not
// implement (e.g. ingest against a read-only backend).
var ErrNotSupported = errors.New("operation not supported by this backend")

// ErrorClass classifies query failures for retry and surfacing decisions.
type ErrorClass string

const (
	ClassInvalidQuery ErrorClass = "invalid_query"
	ClassRateLimited  ErrorClass = "rate_limited"
	ClassUnavailable  ErrorClass = "service_unavailable"
	ClassUnauthorized ErrorClass = "unauthorized"
	ClassTimeout      ErrorClass = "timeout"
)

// QueryError is a classified backend failure. Message bodies are truncated
// before they reach callers.
type QueryError struct {
	Class      ErrorClass
	Code       string // backend-specific error code, if any
	Message    string
	HTTPStatus int
}

func (e *QueryError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Class, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Message)
}

// IsClass reports whether err is a QueryError of the given class.
func IsClass(err error, class ErrorClass) bool {
	var qe *QueryError
	return errors.As(err, &qe) && qe.Class == class
}

// Column describes one column of a normalized result set.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Row maps column name to value.
type Row map[string]any

// ResultSet is the backend-independent query result shape. Every row's keys
// are a subset of the column names.
type ResultSet struct {
	Columns []Column `json:"columns"`
	Data    []Row    `json:"data"`
}

// QueryParams carries named parameters for a query. Empty fields are
// defaulted from discovery by the backend.
type QueryParams struct {
	WorkspaceID  string
	GraphModelID string
	Database     string
}

// Vertex is one graph vertex to ingest.
type Vertex struct {
	Label        string         `json:"label"`
	ID           string         `json:"id"`
	PartitionKey string         `json:"partition_key"`
	Properties   map[string]any `json:"properties"`
}

// EndpointRef identifies one end of an edge by label plus an id property.
type EndpointRef struct {
	Label      string `json:"label"`
	IDProperty string `json:"id_property"`
	IDValue    string `json:"id_value"`
}

// Edge is one graph edge to ingest. Implementations upsert idempotently.
type Edge struct {
	Label      string         `json:"label"`
	Source     EndpointRef    `json:"source"`
	Target     EndpointRef    `json:"target"`
	Properties map[string]any `json:"properties"`
}

// GraphBackend executes queries against a graph topology store.
type GraphBackend interface {
	// ExecuteQuery runs a query and normalizes the response.
	ExecuteQuery(ctx context.Context, query string, params QueryParams) (*ResultSet, error)

	// Ingest upserts vertices and edges. Read-only backends return
	// ErrNotSupported.
	Ingest(ctx context.Context, vertices []Vertex, edges []Edge) error

	// GetTopology returns a coarse summary of the stored graph. Backends
	// without a cheap topology query return ErrNotSupported.
	GetTopology(ctx context.Context) (*ResultSet, error)

	Ping(ctx context.Context) error
	Close() error
}

// TelemetryBackend executes queries against a time-series telemetry store.
type TelemetryBackend interface {
	ExecuteQuery(ctx context.Context, query string, params QueryParams) (*ResultSet, error)
	Ping(ctx context.Context) error
	Close() error
}

// truncateBody bounds error detail carried to callers.
const maxErrorBody = 500

func truncateBody(b []byte) string {
	if len(b) <= maxErrorBody {
		return string(b)
	}
	cut := maxErrorBody
	for cut > 0 && !utf8.RuneStart(b[cut]) {
		cut--
	}
	return string(b[:cut])
}
