package fleet_api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go/v3"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	DefaultBaseURL = "https://api.teslemetry.com"
)

type Client struct {
	baseURL    string
	http       *http.Client
	logger     *zap.Logger
	attempts   uint
	retryDelay time.Duration
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		hc := *client
		c.http = &hc
	}
}

func WithRetry(attempts uint, delay time.Duration) Option {
	return func(c *Client) {
		c.attempts = attempts
		c.retryDelay = delay
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Teslemetry client authenticating every request with the
// given access token.
func NewClient(accessToken string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		http:       &http.Client{Timeout: 30 * time.Second},
		logger:     zap.NewNop(),
		attempts:   3,
		retryDelay: 1 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	base := c.http.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c.http.Transport = &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: accessToken,
			TokenType:   "Bearer",
		}),
		Base: base,
	}

	return c
}

func (c *Client) Metadata(ctx context.Context) (*Metadata, error) {
	var resp Metadata
	if err := c.do(ctx, http.MethodGet, "/api/metadata", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Products(ctx context.Context) ([]map[string]any, error) {
	var resp Response[[]map[string]any]
	if err := c.do(ctx, http.MethodGet, "/api/1/products", nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Response == nil {
		return nil, fmt.Errorf("%w: missing products", ErrInvalidResponse)
	}
	return resp.Response, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	return retry.Do(func() error {
		return c.doOnce(ctx, method, path, query, body, out)
	},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("fleet_api: retrying request", zap.String("path", path), zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
}

func (c *Client) doOnce(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	uri := c.baseURL + path
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, uri, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	c.logger.Debug("fleet_api: response", zap.String("method", method), zap.String("path", path), zap.Int("status", resp.StatusCode))

	if resp.StatusCode >= http.StatusBadRequest {
		return parseError(resp.StatusCode, b)
	}

	if out != nil {
		if err := json.Unmarshal(b, out); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
	}
	return nil
}
