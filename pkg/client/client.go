package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client provides HTTP client functionality to communicate with a taskvisor
// daemon.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a new taskvisor API client
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8080/api"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/tasks/pending", nil)
	if err != nil {
		c.logger.Debug("Failed to create request for reachability check", "error", err)
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	isReachable := resp.StatusCode != http.StatusNotFound
	c.logger.Debug("Daemon reachability check", "reachable", isReachable, "status", resp.StatusCode)
	return isReachable
}

// AddTask enqueues a new task and returns it as the daemon recorded it.
func (c *Client) AddTask(ctx context.Context, req TaskRequest) (Task, error) {
	c.logger.Debug("Enqueueing task", "type", req.Type, "priority", req.Priority)
	var t Task
	err := c.doJSON(ctx, "POST", c.baseURL+"/tasks", req, &t)
	return t, err
}

// GetTask fetches a single task by id.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var t Task
	err := c.doJSON(ctx, "GET", c.baseURL+"/tasks/"+url.PathEscape(id), nil, &t)
	return t, err
}

// ListTasks fetches tasks matching the query, grouped pending, running,
// completed, failed.
func (c *Client) ListTasks(ctx context.Context, q TaskQuery) ([]Task, error) {
	v := url.Values{}
	if q.SessionID != "" {
		v.Set("session", q.SessionID)
	}
	if q.ProjectID != "" {
		v.Set("project", q.ProjectID)
	}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	u := c.baseURL + "/tasks"
	if enc := v.Encode(); enc != "" {
		u += "?" + enc
	}
	var tasks []Task
	err := c.doJSON(ctx, "GET", u, nil, &tasks)
	return tasks, err
}

// PendingTasks fetches pending tasks in dispatch order.
func (c *Client) PendingTasks(ctx context.Context) ([]Task, error) {
	var tasks []Task
	err := c.doJSON(ctx, "GET", c.baseURL+"/tasks/pending", nil, &tasks)
	return tasks, err
}

// CancelTask cancels a pending or running task.
func (c *Client) CancelTask(ctx context.Context, id string) error {
	c.logger.Debug("Cancelling task", "id", id)
	return c.doJSON(ctx, "DELETE", c.baseURL+"/tasks/"+url.PathEscape(id), nil, nil)
}

// Schedules fetches all registered schedules.
func (c *Client) Schedules(ctx context.Context) ([]Schedule, error) {
	var schedules []Schedule
	err := c.doJSON(ctx, "GET", c.baseURL+"/schedules", nil, &schedules)
	return schedules, err
}

// AddSchedule registers a recurring schedule.
func (c *Client) AddSchedule(ctx context.Context, req ScheduleRequest) (Schedule, error) {
	c.logger.Debug("Adding schedule", "id", req.ID, "expr", req.Expr)
	var s Schedule
	err := c.doJSON(ctx, "POST", c.baseURL+"/schedules", req, &s)
	return s, err
}

// RemoveSchedule removes a schedule by id.
func (c *Client) RemoveSchedule(ctx context.Context, id string) error {
	c.logger.Debug("Removing schedule", "id", id)
	return c.doJSON(ctx, "DELETE", c.baseURL+"/schedules/"+url.PathEscape(id), nil, nil)
}

// EnableSchedule flips a schedule on or off.
func (c *Client) EnableSchedule(ctx context.Context, id string, enabled bool) error {
	c.logger.Debug("Toggling schedule", "id", id, "enabled", enabled)
	u := c.baseURL + "/schedules/" + url.PathEscape(id) + "/enable?enabled=" + strconv.FormatBool(enabled)
	return c.doJSON(ctx, "POST", u, nil, nil)
}

// Spawn starts a supervised subprocess and returns its initial snapshot.
func (c *Client) Spawn(ctx context.Context, req SpawnRequest) (ProcessInfo, error) {
	c.logger.Debug("Spawning process", "command", req.Command)
	var info ProcessInfo
	err := c.doJSON(ctx, "POST", c.baseURL+"/processes", req, &info)
	return info, err
}

// Processes fetches snapshots of all live processes.
func (c *Client) Processes(ctx context.Context) ([]ProcessInfo, error) {
	var infos []ProcessInfo
	err := c.doJSON(ctx, "GET", c.baseURL+"/processes", nil, &infos)
	return infos, err
}

// Process fetches one live process including its captured output. Exited
// processes are gone from the daemon and return an error.
func (c *Client) Process(ctx context.Context, id uint64) (ProcessInfo, error) {
	var info ProcessInfo
	err := c.doJSON(ctx, "GET", c.processURL(id), nil, &info)
	return info, err
}

// KillProcess terminates a process. Killing one that already exited is not
// an error.
func (c *Client) KillProcess(ctx context.Context, id uint64) error {
	c.logger.Debug("Killing process", "id", id)
	return c.doJSON(ctx, "POST", c.processURL(id)+"/kill", nil, nil)
}

// WaitProcess blocks until the process reaches a terminal state or timeout
// elapses. A zero timeout waits as long as the daemon allows.
func (c *Client) WaitProcess(ctx context.Context, id uint64, timeout time.Duration) (ProcessInfo, error) {
	u := c.processURL(id) + "/wait"
	if timeout > 0 {
		u += "?timeout=" + timeout.String()
	}
	var info ProcessInfo
	err := c.doJSON(ctx, "POST", u, nil, &info)
	return info, err
}

// ProcessUsageOf samples CPU and memory of a live process.
func (c *Client) ProcessUsageOf(ctx context.Context, id uint64) (ProcessUsage, error) {
	var u ProcessUsage
	err := c.doJSON(ctx, "GET", c.processURL(id)+"/usage", nil, &u)
	return u, err
}

func (c *Client) processURL(id uint64) string {
	return c.baseURL + "/processes/" + strconv.FormatUint(id, 10)
}

// doJSON performs an HTTP request with common error handling, optionally
// sending a JSON body and decoding a JSON response into out.
func (c *Client) doJSON(ctx context.Context, method, url string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", url)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
		c.logger.Error("Failed to decode error response", "status", resp.StatusCode)
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	c.logger.Error("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
	return fmt.Errorf("API error: %s", errorResp.Error)
}
