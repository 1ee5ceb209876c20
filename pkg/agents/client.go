// Package agents talks to the remote agent service: a REST client for
// threads, runs and streaming, and a provisioner that makes the remote fleet
// match a scenario manifest.
package agents

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/probelab/inquest/pkg/version"
)

// Tool-call kinds surfaced by the streaming API.
const (
	ToolKindConnectedAgent = "connected_agent"
	ToolKindSearch         = "search"
	ToolKindOpenAPI        = "openapi"
)

// ThreadRun is the run status object delivered on run lifecycle events.
type ThreadRun struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Status    string    `json:"status"`
	Usage     Usage     `json:"usage"`
	LastError *RunError `json:"last_error,omitempty"`
}

// Usage carries token accounting for a run or step.
type Usage struct {
	TotalTokens int `json:"total_tokens"`
}

// RunError is the service's structured failure detail.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToolCall is one tool invocation inside a run step.
type ToolCall struct {
	ID        string `json:"id"`
	Kind      string `json:"type"`
	Name      string `json:"name"`
	AgentID   string `json:"agent_id,omitempty"` // set for connected-agent calls
	Arguments string `json:"arguments"`
	Output    string `json:"output"`
}

// RunStep is one step object delivered on step lifecycle events.
type RunStep struct {
	ID        string     `json:"id"`
	Status    string     `json:"status"`
	Type      string     `json:"type"`
	ToolCalls []ToolCall `json:"tool_calls"`
	StartedAt int64      `json:"started_at"`
	EndedAt   int64      `json:"completed_at"`
	Usage     Usage      `json:"usage"`
	Error     *RunError  `json:"last_error,omitempty"`
}

// Duration derives the step's wall time from the service timestamps.
func (s RunStep) Duration() time.Duration {
	if s.EndedAt <= s.StartedAt {
		return 0
	}
	return time.Duration(s.EndedAt-s.StartedAt) * time.Second
}

// RunHandler receives streaming callbacks. StreamRun invokes the methods
// sequentially from a single goroutine in wire order.
type RunHandler interface {
	OnThreadRun(run ThreadRun)
	OnRunStep(step RunStep)
	OnMessageDelta(text string)
	OnError(err error)
}

// AgentInfo is one remote agent as listed by the service.
type AgentInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Model string `json:"model"`
}

// CreateAgentRequest is the creation payload.
type CreateAgentRequest struct {
	Name         string    `json:"name"`
	Model        string    `json:"model"`
	Instructions string    `json:"instructions"`
	Tools        []ToolDef `json:"tools"`
}

// ToolDef is a tagged union over the tool types the service accepts.
type ToolDef struct {
	Type           string             `json:"type"`
	OpenAPI        *OpenAPIToolDef    `json:"openapi,omitempty"`
	Search         *SearchToolDef     `json:"search,omitempty"`
	ConnectedAgent *ConnectedAgentDef `json:"connected_agent,omitempty"`
}

// OpenAPIToolDef wraps a rendered OpenAPI spec.
type OpenAPIToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Spec        json.RawMessage `json:"spec"`
}

// SearchToolDef binds a search tool to a named index.
type SearchToolDef struct {
	IndexName    string `json:"index_name"`
	ConnectionID string `json:"connection_id"`
}

// ConnectedAgentDef exposes a provisioned agent as a delegating tool.
type ConnectedAgentDef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Client is the REST client for the remote agent service. Thread and agent
// ids are opaque strings owned by the service.
type Client struct {
	baseURL string
	http    *http.Client
	// stream requests have no overall deadline; the run can take minutes.
	streamHTTP *http.Client
	apiKey     string
}

// NewClient creates a client for the given service base URL.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: 60 * time.Second},
		streamHTTP: &http.Client{},
		apiKey:     apiKey,
	}
}

// CreateThread creates a fresh conversation thread and returns its id.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/threads", map[string]any{}, &out); err != nil {
		return "", fmt.Errorf("creating thread: %w", err)
	}
	return out.ID, nil
}

// PostMessage appends a message to a thread.
func (c *Client) PostMessage(ctx context.Context, threadID, role, content string) error {
	path := fmt.Sprintf("/threads/%s/messages", url.PathEscape(threadID))
	payload := map[string]string{"role": role, "content": content}
	if err := c.doJSON(ctx, http.MethodPost, path, payload, nil); err != nil {
		return fmt.Errorf("posting message: %w", err)
	}
	return nil
}

// CreateRun starts a non-streaming run and returns its id.
func (c *Client) CreateRun(ctx context.Context, threadID, agentID string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	path := fmt.Sprintf("/threads/%s/runs", url.PathEscape(threadID))
	if err := c.doJSON(ctx, http.MethodPost, path, map[string]any{"agent_id": agentID}, &out); err != nil {
		return "", fmt.Errorf("creating run: %w", err)
	}
	return out.ID, nil
}

// StreamRun starts a streaming run and blocks until the stream ends,
// dispatching each wire event to the handler. The ctx cancels the stream.
func (c *Client) StreamRun(ctx context.Context, threadID, agentID string, handler RunHandler) error {
	path := fmt.Sprintf("/threads/%s/runs", url.PathEscape(threadID))
	payload, err := json.Marshal(map[string]any{"agent_id": agentID, "stream": true})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamHTTP.Do(req)
	if err != nil {
		return fmt.Errorf("starting run stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return fmt.Errorf("run stream rejected: status %d: %s", resp.StatusCode, body)
	}

	return consumeEventStream(resp.Body, handler)
}

// consumeEventStream parses SSE frames off the wire and dispatches them.
func consumeEventStream(r io.Reader, handler RunHandler) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var event string
	var data strings.Builder
	flush := func() {
		if event != "" {
			dispatchStreamEvent(event, data.String(), handler)
		}
		event = ""
		data.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	flush()
	if err := scanner.Err(); err != nil {
		handler.OnError(fmt.Errorf("run stream interrupted: %w", err))
		return err
	}
	return nil
}

func dispatchStreamEvent(event, data string, handler RunHandler) {
	switch {
	case strings.HasPrefix(event, "thread.run.step"):
		var step RunStep
		if err := json.Unmarshal([]byte(data), &step); err != nil {
			handler.OnError(fmt.Errorf("malformed step event: %w", err))
			return
		}
		handler.OnRunStep(step)
	case strings.HasPrefix(event, "thread.run"):
		var run ThreadRun
		if err := json.Unmarshal([]byte(data), &run); err != nil {
			handler.OnError(fmt.Errorf("malformed run event: %w", err))
			return
		}
		handler.OnThreadRun(run)
	case event == "thread.message.delta":
		var delta struct {
			Delta struct {
				Text string `json:"text"`
			} `json:"delta"`
		}
		if err := json.Unmarshal([]byte(data), &delta); err != nil {
			handler.OnError(fmt.Errorf("malformed delta event: %w", err))
			return
		}
		handler.OnMessageDelta(delta.Delta.Text)
	case event == "error":
		handler.OnError(fmt.Errorf("run stream error: %s", data))
	}
	// Unknown event types are skipped; the service adds kinds over time.
}

// ThreadMessage is one message stored on a remote thread.
type ThreadMessage struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ListMessages returns a thread's messages, newest first.
func (c *Client) ListMessages(ctx context.Context, threadID string) ([]ThreadMessage, error) {
	var out struct {
		Data []ThreadMessage `json:"data"`
	}
	path := fmt.Sprintf("/threads/%s/messages?order=desc", url.PathEscape(threadID))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return out.Data, nil
}

// ListAgents enumerates every remote agent, following pagination.
func (c *Client) ListAgents(ctx context.Context) ([]AgentInfo, error) {
	var all []AgentInfo
	after := ""
	for {
		path := "/agents?limit=100"
		if after != "" {
			path += "&after=" + url.QueryEscape(after)
		}
		var page struct {
			Data    []AgentInfo `json:"data"`
			HasMore bool        `json:"has_more"`
			LastID  string      `json:"last_id"`
		}
		if err := c.doJSON(ctx, http.MethodGet, path, nil, &page); err != nil {
			return all, fmt.Errorf("listing agents: %w", err)
		}
		all = append(all, page.Data...)
		if !page.HasMore || page.LastID == "" {
			return all, nil
		}
		after = page.LastID
	}
}

// CreateAgent creates a remote agent and returns its assigned identity.
func (c *Client) CreateAgent(ctx context.Context, req CreateAgentRequest) (AgentInfo, error) {
	var out AgentInfo
	if err := c.doJSON(ctx, http.MethodPost, "/agents", req, &out); err != nil {
		return AgentInfo{}, fmt.Errorf("creating agent %q: %w", req.Name, err)
	}
	return out, nil
}

// DeleteAgent removes a remote agent by id.
func (c *Client) DeleteAgent(ctx context.Context, id string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/agents/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("deleting agent %s: %w", id, err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.Full())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return fmt.Errorf("status %d: %s", resp.StatusCode, detail)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
