package api

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"mcube-trader/internal/logger"
	"mcube-trader/internal/types"

	"github.com/go-resty/resty/v2"
)

// Client talks to a running trader's ops server.
type Client struct {
	http       *resty.Client
	useLogging bool
}

// ClientOption configures the API client
type ClientOption func(*Client)

// WithTimeout sets the HTTP client timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.http.SetTimeout(timeout)
	}
}

// WithHeader sets a default header for all requests
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.http.SetHeader(key, value)
	}
}

// WithLogging enables request logging
func WithLogging(enabled bool) ClientOption {
	return func(c *Client) {
		c.useLogging = enabled
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(10 * time.Second),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiError struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var apiErr apiError
	req := c.http.R().SetContext(ctx).SetError(&apiErr)
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	if c.useLogging {
		logger.Debug(ctx, "Ops API request", "method", method, "path", path)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status(), apiErr.Error)
	}
	return nil
}

func (c *Client) CancelRun(ctx context.Context, runKey string) error {
	return c.do(ctx, resty.MethodPost, "/runs/"+url.PathEscape(runKey)+"/cancel", nil, nil)
}

func (c *Client) Progress(ctx context.Context, runKey string) (types.BatchProgress, error) {
	var p types.BatchProgress
	err := c.do(ctx, resty.MethodGet, "/runs/"+url.PathEscape(runKey)+"/progress", nil, &p)
	return p, err
}

func (c *Client) Flags(ctx context.Context) ([]types.ControlFlag, error) {
	var out []types.ControlFlag
	err := c.do(ctx, resty.MethodGet, "/flags", nil, &out)
	return out, err
}

func (c *Client) SetFlag(ctx context.Context, name, value string) error {
	return c.do(ctx, resty.MethodPut, "/flags/"+url.PathEscape(name), map[string]string{"value": value}, nil)
}
