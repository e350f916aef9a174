package actor

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	adactor "github.com/berfenger/teslemetry2mqtt/internal/adapter/actor"
	"github.com/berfenger/teslemetry2mqtt/internal/config"
	"github.com/berfenger/teslemetry2mqtt/internal/core/domain"
	"github.com/berfenger/teslemetry2mqtt/internal/mqtt"
	"github.com/berfenger/teslemetry2mqtt/internal/util"
	"github.com/berfenger/teslemetry2mqtt/internal/util/actorutil"
	"github.com/berfenger/teslemetry2mqtt/pkg/fleet_api"
	"github.com/berfenger/teslemetry2mqtt/pkg/telemetry_stream"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testVIN = "LRW3F7EK4NC000001"

type masterFixture struct {
	root  *actor.RootContext
	pid   *actor.PID
	fatal atomic.Pointer[error]
	stop  func()
}

func spawnMaster(t *testing.T, cfg config.Config, api *fleet_api.TestClient) *masterFixture {
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	stream := &telemetry_stream.TestClient{Configured: map[string]bool{}}
	fixture := &masterFixture{root: as.Root}

	fleetConfig := adactor.FleetActorConfig{
		RateLimitDelay: cfg.Teslemetry.RateLimitDelay(),
		RequestTimeout: cfg.Teslemetry.RequestTimeout(),
		CommandTimeout: cfg.Teslemetry.CommandTimeout(),
	}
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, func() *adactor.FleetActor {
			return adactor.NewFleetActor(api, stream, fleetConfig, logger)
		}, func(_ *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(cfg.MQTT, logger)
		}, func(vin string, es *eventstream.EventStream) *adactor.StreamActor {
			return adactor.NewStreamActor(vin, stream, es, adactor.DefaultStreamActorConfig(), logger)
		}, func(err error) {
			fixture.fatal.Store(&err)
		}, logger)
	})
	pid, err := as.Root.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(t, err)
	fixture.pid = pid
	fixture.stop = func() {
		as.Root.Stop(pid)
		as.Shutdown()
	}
	return fixture
}

func (f *masterFixture) health(t *testing.T) domain.ActorHealthResponse {
	res, err := f.root.RequestFuture(f.pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	health, ok := res.(domain.ActorHealthResponse)
	require.True(t, ok)
	return health
}

func TestMasterActor(t *testing.T) {
	api := fleet_api.CreateTestClient()
	master := spawnMaster(t, util.LoadTestConfig(), api)
	defer master.stop()

	assert.Eventually(t, func() bool {
		return master.health(t).Healthy
	}, 5*time.Second, 100*time.Millisecond, "master becomes healthy")
	assert.Nil(t, master.fatal.Load())

	res, err := master.root.RequestFuture(master.pid, domain.ListEntitiesRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	list := res.(domain.ListEntitiesResponse)
	require.False(t, list.HasResponseError())
	assert.NotEmpty(t, list.Entities)

	var limit *domain.EntityState
	for i := range list.Entities {
		if list.Entities[i].Id == "tesla_lrw3f7ek4nc000001_charge_state_charge_limit_soc" {
			limit = &list.Entities[i]
		}
	}
	require.NotNil(t, limit)
	assert.True(t, limit.Available)

	master.root.Send(master.pid, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		Platform: domain.PLATFORM_NUMBER,
		EntityId: limit.Id,
		Payload:  "90",
	}})
	assert.Eventually(t, func() bool {
		for _, cmd := range api.RecordedCommands() {
			if cmd.Target == testVIN && cmd.Name == "set_charge_limit" {
				return true
			}
		}
		return false
	}, 5*time.Second, 50*time.Millisecond, "command reaches the fleet api")
}

func TestMasterActorFatalSetup(t *testing.T) {
	api := fleet_api.CreateTestClient()
	api.MetadataErr = fleet_api.ErrInvalidToken
	master := spawnMaster(t, util.LoadTestConfig(), api)
	defer master.stop()

	assert.Eventually(t, func() bool {
		return master.fatal.Load() != nil
	}, 5*time.Second, 50*time.Millisecond)
	assert.ErrorIs(t, *master.fatal.Load(), fleet_api.ErrInvalidToken)

	health := master.health(t)
	assert.False(t, health.Healthy)
	assert.Equal(t, "failed", health.State)
}

func TestMasterActorSetupRetry(t *testing.T) {
	api := fleet_api.CreateTestClient()
	api.ProductsErr = errors.New("gateway timeout")
	master := spawnMaster(t, util.LoadTestConfig(), api)
	defer master.stop()

	time.Sleep(500 * time.Millisecond)
	health := master.health(t)
	assert.False(t, health.Healthy)
	assert.Nil(t, master.fatal.Load())

	res, err := master.root.RequestFuture(master.pid, domain.ListEntitiesRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	assert.True(t, res.(domain.ListEntitiesResponse).HasResponseError())
}
