// Package api is the HTTP client for the remote to-do service.
//
// Every response is wrapped as {content, message, errors[]}; methods return the
// unwrapped content or an *Error carrying the joined error strings.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"todo-cli/internal/model"

	"github.com/google/uuid"
)

const (
	DefaultBaseURL = "https://fe-test-api.nwappservice.com"
	DefaultTimeout = 30 * time.Second

	userAgent = "todo-cli"
)

// TokenSource yields the bearer token to attach, or "" for none.
type TokenSource interface {
	Token() string
}

type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

type Client struct {
	baseURL        string
	http           *http.Client
	tokens         TokenSource
	log            *slog.Logger
	onUnauthorized func()
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithUnauthorizedHook registers fn to run when an authenticated request is
// rejected with HTTP 401.
func WithUnauthorizedHook(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

func New(baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: DefaultTimeout},
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

type envelope[T any] struct {
	Content T        `json:"content"`
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

func (c *Client) Login(ctx context.Context, in model.Credentials) (model.AuthResponse, error) {
	var out model.AuthResponse
	err := c.do(ctx, http.MethodPost, "/login", nil, in, &out)
	return out, err
}

func (c *Client) Register(ctx context.Context, in model.Registration) (model.AuthResponse, error) {
	var out model.AuthResponse
	err := c.do(ctx, http.MethodPost, "/register", nil, in, &out)
	return out, err
}

// VerifyToken asks the server whether token is still valid. The payload is
// opaque; callers only rely on the error.
func (c *Client) VerifyToken(ctx context.Context, token string) (string, error) {
	var out string
	err := c.do(ctx, http.MethodPost, "/verify-token", nil, map[string]string{"token": token}, &out)
	return out, err
}

func (c *Client) ListTodos(ctx context.Context, filters model.Filters, pagination model.PaginationParams) (model.TodosResponse, error) {
	var out model.TodosResponse
	err := c.do(ctx, http.MethodGet, "/todos", ListParams(filters, pagination), nil, &out)
	if out.Entries == nil {
		out.Entries = []model.Todo{}
	}
	return out, err
}

func (c *Client) CreateTodo(ctx context.Context, in model.NewTodo) (model.Todo, error) {
	var out model.Todo
	err := c.do(ctx, http.MethodPost, "/todos", nil, in, &out)
	return out, err
}

func (c *Client) MarkTodo(ctx context.Context, id string, action model.MarkAction) (model.Todo, error) {
	var out model.Todo
	err := c.do(ctx, http.MethodPut, "/todos/"+url.PathEscape(id)+"/mark", nil, map[string]model.MarkAction{"action": action}, &out)
	return out, err
}

func (c *Client) DeleteTodo(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/todos/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	op := method + " " + path

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", op, err)
		}
		rdr = bytes.NewReader(b)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	authed := false
	if c.tokens != nil {
		if tok := strings.TrimSpace(c.tokens.Token()); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
			authed = true
		}
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("api request failed", slog.String("op", op), slog.String("request_id", reqID), slog.Any("error", err))
		return &TransportError{Op: op, Err: err}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	c.log.Debug("api request",
		slog.String("op", op),
		slog.String("request_id", reqID),
		slog.Int("status", res.StatusCode),
		slog.Duration("latency", time.Since(start)),
	)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		apiErr := &Error{Status: res.StatusCode}
		var env envelope[json.RawMessage]
		if len(bytes.TrimSpace(raw)) > 0 && json.Unmarshal(raw, &env) == nil {
			apiErr.Message = env.Message
			apiErr.Messages = env.Errors
		}
		if authed && apiErr.Unauthorized() && c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return apiErr
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var env envelope[json.RawMessage]
	if err := json.Unmarshal(raw, &env); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(env.Errors) > 0 {
		return &Error{Status: res.StatusCode, Message: env.Message, Messages: env.Errors}
	}
	if out == nil || len(env.Content) == 0 || string(env.Content) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Content, out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode content: %w", err)}
	}
	return nil
}
