package todoist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vthunder/toolbot/internal/tasks"
)

const defaultBaseURL = "https://api.todoist.com/rest/v2"

// Client is a Todoist REST API client
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client with an API token
func NewClient(token string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		token:   token,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// WithBaseURL points the client at another server (tests)
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = url
	return c
}

// Name implements tasks.Backend
func (c *Client) Name() string { return "Todoist" }

// request makes an authenticated request to the Todoist API
func (c *Client) request(ctx context.Context, method, path string, body any, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Request-Id", uuid.NewString())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("todoist API error (%d): %s", resp.StatusCode, string(respBody))
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// ListProjects implements tasks.Backend
func (c *Client) ListProjects(ctx context.Context) ([]tasks.Project, error) {
	var projects []tasks.Project
	if err := c.request(ctx, http.MethodGet, "/projects", nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// CreateProject implements tasks.Backend
func (c *Client) CreateProject(ctx context.Context, name string) (tasks.Project, error) {
	var p tasks.Project
	err := c.request(ctx, http.MethodPost, "/projects", map[string]string{"name": name}, &p)
	return p, err
}

type createTaskRequest struct {
	Content   string   `json:"content"`
	Priority  int      `json:"priority"`
	DueString string   `json:"due_string,omitempty"`
	Labels    []string `json:"labels,omitempty"`
	ProjectID string   `json:"project_id,omitempty"`
}

// CreateTask implements tasks.Backend
func (c *Client) CreateTask(ctx context.Context, t tasks.NewTask) (tasks.Task, error) {
	priority := t.Priority
	if priority == 0 {
		priority = 1
	}
	var task tasks.Task
	err := c.request(ctx, http.MethodPost, "/tasks", createTaskRequest{
		Content:   t.Content,
		Priority:  priority,
		DueString: t.DueString,
		Labels:    t.Labels,
		ProjectID: t.ProjectID,
	}, &task)
	return task, err
}
