package telemetry_stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/r3labs/sse/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const DefaultBaseURL = "https://api.teslemetry.com"

var (
	ErrVehicleNotConfigured = errors.New("vehicle is not configured for streaming")
	ErrStreamClosed         = errors.New("stream closed by server")
)

type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("stream api error %d: %s", e.Status, e.Body)
}

// Config is the streaming configuration of a single vehicle.
type Config struct {
	Hostname   string         `json:"hostname"`
	Port       int            `json:"port"`
	Fields     map[string]any `json:"fields"`
	AlertTypes []string       `json:"alert_types"`
	Exp        int64          `json:"exp"`
}

type Event struct {
	VIN       string
	CreatedAt time.Time
	Data      map[string]any
}

type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(accessToken string, baseURL string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http: &http.Client{
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
				Base:   http.DefaultTransport,
			},
		},
		logger: logger,
	}
}

// GetConfig returns the streaming configuration of the vehicle.
func (c *Client) GetConfig(ctx context.Context, vin string) (*Config, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/config/%s", c.baseURL, url.PathEscape(vin)), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrVehicleNotConfigured, vin)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &StatusError{Status: resp.StatusCode, Body: string(b)}
	}

	var wrapper struct {
		Response *Config `json:"response"`
	}
	if err := json.Unmarshal(b, &wrapper); err == nil && wrapper.Response != nil {
		return wrapper.Response, nil
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// maxEventSize bounds a single SSE frame; full telemetry snapshots exceed the
// 64 KiB default of the reader.
const maxEventSize = 4 << 20

// noReconnect hands every disconnect back to the caller, which owns the
// reconnect policy.
type noReconnect struct{}

func (noReconnect) NextBackOff() time.Duration { return -1 }

func (noReconnect) Reset() {}

// Listen consumes the server-sent event feed of the vehicle until ctx is done or
// the server closes the connection. Every data event is passed to handler.
func (c *Client) Listen(ctx context.Context, vin string, handler func(Event)) error {
	client := sse.NewClient(fmt.Sprintf("%s/sse/%s", c.baseURL, url.PathEscape(vin)), sse.ClientMaxBufferSize(maxEventSize))
	client.Connection = c.http
	client.ReconnectStrategy = noReconnect{}
	client.ResponseValidator = func(_ *sse.Client, resp *http.Response) error {
		if resp.StatusCode == http.StatusOK {
			c.logger.Info("telemetry_stream: connected", zap.String("vin", vin))
			return nil
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrVehicleNotConfigured, vin)
		}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Status: resp.StatusCode, Body: string(b)}
	}

	err := client.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
		if len(msg.Data) == 0 {
			return
		}
		event, err := parseEvent(vin, msg.Data)
		if err != nil {
			c.logger.Warn("telemetry_stream: discarding malformed event", zap.String("vin", vin), zap.Error(err))
			return
		}
		handler(event)
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return err
	}
	return ErrStreamClosed
}

func parseEvent(vin string, raw []byte) (Event, error) {
	var payload struct {
		VIN       string         `json:"vin"`
		CreatedAt string         `json:"createdAt"`
		Data      map[string]any `json:"data"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Event{}, err
	}
	event := Event{VIN: payload.VIN, Data: payload.Data}
	if event.VIN == "" {
		event.VIN = vin
	}
	if event.Data == nil {
		event.Data = map[string]any{}
	}
	if payload.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, payload.CreatedAt); err == nil {
			event.CreatedAt = t
		}
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	return event, nil
}
