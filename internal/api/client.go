// Package api is the HTTP client for the task backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/hylla/taskdeck/internal/domain"
)

const (
	maxResponseBytes = 8 << 20
	defaultTimeout   = 10 * time.Second
)

// Logger receives request diagnostics.
type Logger interface {
	Debug(msg any, keyvals ...any)
	Warn(msg any, keyvals ...any)
}

// Config holds backend connection settings.
type Config struct {
	BaseURL  string
	Audience string
	Timeout  time.Duration
}

// Client issues authenticated requests to the task backend.
type Client struct {
	base     *url.URL
	audience string
	tokens   oauth2.TokenSource
	http     *http.Client
	log      Logger
	now      func() time.Time
	newID    func() string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger attaches a request logger.
func WithLogger(log Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithClock overrides the clock used for completed-task defaults.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRequestIDs overrides the X-Request-ID generator.
func WithRequestIDs(fn func() string) Option {
	return func(c *Client) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// New constructs a client. tokens may be nil, in which case authenticated
// calls report ErrAuthenticationRequired.
func New(cfg Config, tokens oauth2.TokenSource, opts ...Option) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: base url %q", ErrInvalidConfig, cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		base:     base,
		audience: strings.TrimSpace(cfg.Audience),
		tokens:   tokens,
		http:     &http.Client{Timeout: timeout},
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Audience returns the configured token audience.
func (c *Client) Audience() string {
	return c.audience
}

// ListTasks returns the caller's tasks.
func (c *Client) ListTasks(ctx context.Context) ([]domain.Task, error) {
	var tasks []domain.Task
	if err := c.getJSON(ctx, "Failed to fetch tasks", "/tasks", &tasks); err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return tasks, nil
}

// ListCompletedTasks returns completed tasks, most recently completed first.
func (c *Client) ListCompletedTasks(ctx context.Context) ([]domain.Task, error) {
	var tasks []domain.Task
	if err := c.getJSON(ctx, "Failed to fetch completed tasks", "/tasks/completed", &tasks); err != nil {
		return nil, err
	}
	now := c.now().UTC()
	for i := range tasks {
		task := &tasks[i]
		switch {
		case task.CompletedAt != nil:
			done := *task.CompletedAt
			task.LastCompleted = &done
		case task.LastCompleted == nil:
			stamp := now
			task.LastCompleted = &stamp
		}
	}
	SortByCompletion(tasks)
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return tasks, nil
}

// SortByCompletion orders tasks by completed_at descending with missing
// timestamps last.
func SortByCompletion(tasks []domain.Task) {
	slices.SortStableFunc(tasks, func(a, b domain.Task) int {
		switch {
		case a.CompletedAt == nil && b.CompletedAt == nil:
			return 0
		case a.CompletedAt == nil:
			return 1
		case b.CompletedAt == nil:
			return -1
		default:
			return b.CompletedAt.Compare(*a.CompletedAt)
		}
	})
}

// ListUsers returns every account. Admin only on the backend.
func (c *Client) ListUsers(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	if err := c.getJSON(ctx, "Failed to fetch users", "/users", &users); err != nil {
		return nil, err
	}
	if users == nil {
		users = []domain.User{}
	}
	return users, nil
}

// GetMe returns the current account. Any non-2xx status means the account
// is not approved yet.
func (c *Client) GetMe(ctx context.Context) (domain.User, error) {
	resp, err := c.do(ctx, true, http.MethodGet, "/me", nil)
	if err != nil {
		return domain.User{}, err
	}
	defer resp.Body.Close()
	if !ok(resp) {
		drain(resp)
		return domain.User{}, &StatusError{Message: "User not approved", StatusCode: resp.StatusCode, Err: ErrUserNotApproved}
	}
	var user domain.User
	if err := decodeBody(resp, &user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// CreateTask posts a new task.
func (c *Client) CreateTask(ctx context.Context, in domain.TaskInput) (domain.Task, error) {
	in, err := domain.NormalizeTaskInput(in)
	if err != nil {
		return domain.Task{}, err
	}
	var task domain.Task
	if err := c.sendJSON(ctx, "Failed to create task", http.MethodPost, "/tasks", in, &task); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// UpdateTask replaces the writable fields of a task.
func (c *Client) UpdateTask(ctx context.Context, id domain.ID, in domain.TaskInput) (domain.Task, error) {
	if strings.TrimSpace(string(id)) == "" {
		return domain.Task{}, domain.ErrInvalidID
	}
	in, err := domain.NormalizeTaskInput(in)
	if err != nil {
		return domain.Task{}, err
	}
	var task domain.Task
	if err := c.sendJSON(ctx, "Failed to update task", http.MethodPut, taskPath(id), in, &task); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, id domain.ID) error {
	if strings.TrimSpace(string(id)) == "" {
		return domain.ErrInvalidID
	}
	return c.sendJSON(ctx, "Failed to delete task", http.MethodDelete, taskPath(id), nil, nil)
}

// CompleteTask marks a task completed.
func (c *Client) CompleteTask(ctx context.Context, id domain.ID) error {
	if strings.TrimSpace(string(id)) == "" {
		return domain.ErrInvalidID
	}
	return c.sendJSON(ctx, "Failed to complete task", http.MethodPut, taskPath(id)+"/complete", nil, nil)
}

// ApproveUser approves a pending account.
func (c *Client) ApproveUser(ctx context.Context, id domain.ID) error {
	if strings.TrimSpace(string(id)) == "" {
		return domain.ErrInvalidID
	}
	return c.sendJSON(ctx, "Failed to approve user", http.MethodPut, "/users/"+url.PathEscape(string(id))+"/approve", nil, nil)
}

// GetEntity returns the plain-text entity probe.
func (c *Client) GetEntity(ctx context.Context) (string, error) {
	return c.getText(ctx, true, "Failed to fetch entity", "/entity")
}

// Hello calls the unauthenticated root endpoint.
func (c *Client) Hello(ctx context.Context) (string, error) {
	return c.getText(ctx, false, "Failed to fetch greeting", "/")
}

// Session returns the claims of the current bearer token.
func (c *Client) Session(ctx context.Context) (Session, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return Session{}, err
	}
	return ParseSession(tok)
}

func taskPath(id domain.ID) string {
	return "/tasks/" + url.PathEscape(string(id))
}

func (c *Client) getJSON(ctx context.Context, failure, path string, out any) error {
	resp, err := c.do(ctx, true, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if !ok(resp) {
		drain(resp)
		return &StatusError{Message: failure, StatusCode: resp.StatusCode}
	}
	return decodeBody(resp, out)
}

func (c *Client) getText(ctx context.Context, auth bool, failure, path string) (string, error) {
	resp, err := c.do(ctx, auth, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if !ok(resp) {
		drain(resp)
		return "", &StatusError{Message: failure, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return string(body), nil
}

// sendJSON issues a write. out may be nil; an empty success body leaves out
// untouched.
func (c *Client) sendJSON(ctx context.Context, failure, method, path string, in, out any) error {
	resp, err := c.do(ctx, true, method, path, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if !ok(resp) {
		drain(resp)
		return &StatusError{Message: failure, StatusCode: resp.StatusCode}
	}
	if out == nil {
		drain(resp)
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return ErrInvalidResponse
	}
	return nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	if c.tokens == nil {
		return "", ErrAuthenticationRequired
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tok, err := c.tokens.Token()
	if err != nil {
		if c.log != nil {
			c.log.Warn("token unavailable", "audience", c.audience, "err", err)
		}
		return "", fmt.Errorf("%w: %w", ErrAuthenticationRequired, err)
	}
	if tok == nil || strings.TrimSpace(tok.AccessToken) == "" {
		return "", ErrAuthenticationRequired
	}
	return tok.AccessToken, nil
}

func (c *Client) do(ctx context.Context, auth bool, method, path string, in any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	requestID := c.newID()
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Accept", "application/json, text/plain")
	req.Header.Set("X-Request-ID", requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		tok, err := c.token(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if c.log != nil {
			c.log.Warn("api request failed", "method", method, "path", path, "request_id", requestID, "err", err)
		}
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if c.log != nil {
		c.log.Debug("api request", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(started), "request_id", requestID)
	}
	return resp, nil
}

func ok(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
}

// decodeBody parses a JSON body, hiding parser detail behind
// ErrInvalidResponse.
func decodeBody(resp *http.Response, out any) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return ErrInvalidResponse
	}
	return nil
}

// IsAuthRequired reports whether err means no credential was available.
func IsAuthRequired(err error) bool {
	return errors.Is(err, ErrAuthenticationRequired)
}
