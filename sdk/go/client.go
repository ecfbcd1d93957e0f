package missioncontrolsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Mission Control HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no bearer token is set.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Agent represents the API agent model.
type Agent struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Soul      string    `json:"soul"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AgentSummary is an agent with its computed workload view (partial).
type AgentSummary struct {
	Agent         Agent  `json:"agent"`
	Lane          string `json:"lane"`
	NeedsBriefing bool   `json:"needs_briefing"`
	MemoryStale   bool   `json:"memory_stale"`
	Workload      struct {
		ActiveCount int `json:"active_count"`
		StuckCount  int `json:"stuck_count"`
	} `json:"workload"`
}

// Memory is a dated note attached to an agent.
type Memory struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Task represents the API task model.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	Priority    string    `json:"priority"`
	AgentID     *string   `json:"agent_id,omitempty"`
	AgentName   string    `json:"agent_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TaskInput holds the optional fields of a new task.
type TaskInput struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	AgentID     *string `json:"agent_id,omitempty"`
}

// TaskUpdate changes a task. Set ClearAgent to unassign it.
type TaskUpdate struct {
	Status     *string
	Priority   *string
	AgentID    *string
	ClearAgent bool
}

// Dashboard is the shell bundle (counts and alert sizes only).
type Dashboard struct {
	ReferenceTime time.Time `json:"reference_time"`
	Counts        struct {
		Todo          int `json:"todo"`
		Doing         int `json:"doing"`
		Done          int `json:"done"`
		Stuck         int `json:"stuck"`
		NeedsBriefing int `json:"needs_briefing"`
		HighPriority  int `json:"high_priority"`
	} `json:"counts"`
	Alerts struct {
		StuckTasks []struct {
			ID       string `json:"id"`
			Title    string `json:"title"`
			StuckFor string `json:"stuck_for"`
		} `json:"stuck_tasks"`
	} `json:"alerts"`
	Snapshot map[string]any `json:"snapshot,omitempty"`
}

// Document is a downloaded report.
type Document struct {
	ContentType string
	Filename    string
	Body        []byte
}

// OverdueResult mirrors the overdue alert response.
type OverdueResult struct {
	OK      bool           `json:"ok"`
	Sent    bool           `json:"sent"`
	Reason  string         `json:"reason,omitempty"`
	Count   int            `json:"count,omitempty"`
	Preview map[string]any `json:"preview,omitempty"`
	Status  int            `json:"status,omitempty"`
	Body    string         `json:"body,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateAgent registers an agent.
func (c *Client) CreateAgent(ctx context.Context, name, role, soul string) (Agent, error) {
	body := map[string]any{"name": name, "role": role, "soul": soul}
	var resp Agent
	err := c.do(ctx, http.MethodPost, "v0/agents", body, &resp)
	return resp, err
}

// ListAgents returns every agent with workload, lane and briefing state.
func (c *Client) ListAgents(ctx context.Context) ([]AgentSummary, error) {
	var resp struct {
		Items []AgentSummary `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "v0/agents", nil, &resp)
	return resp.Items, err
}

// AddMemory appends a memory to an agent.
func (c *Client) AddMemory(ctx context.Context, agentID, content string) (Memory, error) {
	var resp Memory
	endpoint := fmt.Sprintf("v0/agents/%s/memories", url.PathEscape(agentID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"content": content}, &resp)
	return resp, err
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, in TaskInput) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "v0/tasks", in, &resp)
	return resp, err
}

// UpdateTask patches status, priority or assignment.
func (c *Client) UpdateTask(ctx context.Context, id string, u TaskUpdate) (Task, error) {
	body := map[string]any{}
	if u.Status != nil {
		body["status"] = *u.Status
	}
	if u.Priority != nil {
		body["priority"] = *u.Priority
	}
	switch {
	case u.ClearAgent:
		body["agent_id"] = nil
	case u.AgentID != nil:
		body["agent_id"] = *u.AgentID
	}
	var resp Task
	err := c.do(ctx, http.MethodPatch, "v0/tasks/"+url.PathEscape(id), body, &resp)
	return resp, err
}

// Dashboard fetches the shell bundle. A zero at uses the server clock.
func (c *Client) Dashboard(ctx context.Context, at time.Time) (Dashboard, error) {
	endpoint := "v0/dashboard"
	if !at.IsZero() {
		endpoint += "?at=" + url.QueryEscape(at.UTC().Format(time.RFC3339))
	}
	var resp Dashboard
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Digest downloads the weekly digest. Empty sections means all of them.
func (c *Client) Digest(ctx context.Context, sections []string, format string) (Document, error) {
	q := url.Values{}
	if len(sections) > 0 {
		q.Set("sections", strings.Join(sections, ","))
	}
	if format != "" {
		q.Set("format", format)
	}
	endpoint := "v0/reports/digest"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	resp, err := c.send(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Document{}, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return Document{}, err
	}
	if resp.StatusCode >= 300 {
		return Document{}, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return Document{
		ContentType: resp.Header.Get("Content-Type"),
		Filename:    attachmentName(resp.Header.Get("Content-Disposition")),
		Body:        b,
	}, nil
}

// NotifyOverdue triggers the Slack alert. A failed delivery (502) still
// decodes into the result alongside an APIError.
func (c *Client) NotifyOverdue(ctx context.Context) (OverdueResult, error) {
	resp, err := c.send(ctx, http.MethodPost, "v0/reports/overdue/slack", nil)
	if err != nil {
		return OverdueResult{}, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return OverdueResult{}, err
	}
	var out OverdueResult
	if resp.StatusCode == http.StatusBadGateway {
		_ = json.Unmarshal(b, &out)
		return out, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if resp.StatusCode >= 300 {
		return OverdueResult{}, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return out, json.Unmarshal(b, &out)
}

func attachmentName(disposition string) string {
	_, after, ok := strings.Cut(disposition, "filename=")
	if !ok {
		return ""
	}
	return strings.Trim(after, `"`)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	resp, err := c.send(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, body any) (*http.Response, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	return c.HTTPClient.Do(req)
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
