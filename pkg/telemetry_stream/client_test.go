package telemetry_stream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfigNotConfigured(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/config/VIN1", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewClient("secret", server.URL, nil).GetConfig(context.Background(), "VIN1")
	assert.ErrorIs(t, err, ErrVehicleNotConfigured)
}

func TestGetConfig(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"response":{"hostname":"stream.teslemetry.com","port":443,"fields":{"ChargeLimitSoc":{"interval_seconds":60}}}}`))
	}))
	defer server.Close()

	cfg, err := NewClient("secret", server.URL, nil).GetConfig(context.Background(), "VIN1")
	require.NoError(t, err)
	assert.Equal(t, "stream.teslemetry.com", cfg.Hostname)
	assert.Contains(t, cfg.Fields, "ChargeLimitSoc")
}

func TestListenDeliversEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "data: {\"vin\":\"VIN1\",\"createdAt\":\"2024-05-01T10:00:00Z\",\"data\":{\"ChargeLimitSoc\":85}}\n\n")
		fmt.Fprint(w, "data: not json\n\n")
		fmt.Fprint(w, "data: {\"data\":{\"ChargeCurrentRequest\":12}}\n\n")
	}))
	defer server.Close()

	var events []Event
	err := NewClient("secret", server.URL, nil).Listen(context.Background(), "VIN1", func(e Event) {
		events = append(events, e)
	})
	assert.ErrorIs(t, err, ErrStreamClosed)
	require.Len(t, events, 2)
	assert.Equal(t, "VIN1", events[0].VIN)
	assert.Equal(t, float64(85), events[0].Data["ChargeLimitSoc"])
	assert.Equal(t, 2024, events[0].CreatedAt.Year())
	assert.Equal(t, "VIN1", events[1].VIN)
	assert.Equal(t, float64(12), events[1].Data["ChargeCurrentRequest"])
}

func TestListenJoinsMultilineData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: x\ndata: {\"data\":\ndata: {\"BatteryLevel\":50}}\n\n")
	}))
	defer server.Close()

	var events []Event
	err := NewClient("secret", server.URL, nil).Listen(context.Background(), "VIN1", func(e Event) {
		events = append(events, e)
	})
	assert.ErrorIs(t, err, ErrStreamClosed)
	require.Len(t, events, 1)
	assert.Equal(t, float64(50), events[0].Data["BatteryLevel"])
}

func TestListenLargeFrame(t *testing.T) {
	blob := strings.Repeat("x", 200*1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: {\"data\":{\"Blob\":%q}}\n\n", blob)
	}))
	defer server.Close()

	var events []Event
	err := NewClient("secret", server.URL, nil).Listen(context.Background(), "VIN1", func(e Event) {
		events = append(events, e)
	})
	assert.ErrorIs(t, err, ErrStreamClosed)
	require.Len(t, events, 1)
	assert.Equal(t, blob, events[0].Data["Blob"])
}

func TestListenStatusErrors(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNotFound)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sse/VIN1", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte("nope"))
	}))
	defer server.Close()

	client := NewClient("secret", server.URL, nil)
	err := client.Listen(context.Background(), "VIN1", func(Event) {})
	assert.ErrorIs(t, err, ErrVehicleNotConfigured)

	status.Store(http.StatusInternalServerError)
	err = client.Listen(context.Background(), "VIN1", func(Event) {})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.Status)
	assert.Equal(t, "nope", statusErr.Body)
}
