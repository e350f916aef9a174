package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/berfenger/teslemetry2mqtt/internal/config"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer(t *testing.T) {
	as := actor.NewActorSystem()
	defer as.Shutdown()
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor { return &stubMaster{healthy: true} }))

	server := NewServer(config.Config{Port: 8123}, as.Root, pid)
	assert.Equal(t, ":8123", server.Addr)
	assert.Equal(t, time.Minute, server.IdleTimeout)
	assert.Equal(t, 10*time.Second, server.ReadTimeout)
	assert.Equal(t, 30*time.Second, server.WriteTimeout)
	require.NotNil(t, server.Handler)

	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
