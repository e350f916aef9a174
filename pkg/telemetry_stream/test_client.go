package telemetry_stream

import (
	"context"
	"fmt"
	"time"
)

// TestClient replays a fixed list of events for every configured VIN and then
// blocks until the context is cancelled.
type TestClient struct {
	Configured map[string]bool
	Events     []map[string]any
}

func (c *TestClient) GetConfig(ctx context.Context, vin string) (*Config, error) {
	if !c.Configured[vin] {
		return nil, fmt.Errorf("%w: %s", ErrVehicleNotConfigured, vin)
	}
	return &Config{Hostname: "localhost", Port: 443}, nil
}

func (c *TestClient) Listen(ctx context.Context, vin string, handler func(Event)) error {
	if !c.Configured[vin] {
		return fmt.Errorf("%w: %s", ErrVehicleNotConfigured, vin)
	}
	for _, data := range c.Events {
		handler(Event{VIN: vin, CreatedAt: time.Now(), Data: data})
	}
	<-ctx.Done()
	return ctx.Err()
}
