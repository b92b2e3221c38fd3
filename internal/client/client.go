// Package client is the REST client the CLI uses to talk to a running
// stagehand daemon.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/stagecraft/stagehand/internal/task"
	"github.com/stagecraft/stagehand/pkg/cerr"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: http.DefaultClient}
}

// StatusResponse mirrors the daemon's /api/status body.
type StatusResponse struct {
	Scheduler task.Snapshot `json:"scheduler"`
	Agents    []AgentView   `json:"agents"`
}

type AgentView struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	Status   string `json:"status"`
	TaskID   string `json:"taskId,omitempty"`
	Progress int    `json:"progress,omitempty"`
}

func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) CreateTask(ctx context.Context, def task.Definition) (*task.Task, error) {
	var t task.Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks", def, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) ListTasks(ctx context.Context) ([]*task.Task, error) {
	var resp struct {
		Tasks []*task.Task `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/tasks", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

func (c *Client) GetTask(ctx context.Context, taskID string) (*task.Task, error) {
	var t task.Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks/"+taskID, nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) CancelTask(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+taskID, nil, nil)
}

func (c *Client) ListAgents(ctx context.Context) ([]AgentView, error) {
	var resp struct {
		Agents []AgentView `json:"agents"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/agents", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Agents, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return cerr.Errorf(cerr.Unavailable, err, "daemon unreachable at %s", c.baseURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Message != "" {
			return fmt.Errorf("daemon error (%s): %s", apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("daemon returned %d for %s %s", resp.StatusCode, method, path)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
