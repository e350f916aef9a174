package actor

import (
	"errors"
	"testing"
	"time"

	adactor "github.com/berfenger/teslemetry2mqtt/internal/adapter/actor"
	"github.com/berfenger/teslemetry2mqtt/internal/core/domain"
	"github.com/berfenger/teslemetry2mqtt/internal/util/actorutil"
	"github.com/berfenger/teslemetry2mqtt/pkg/fleet_api"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type coordinatorFixture struct {
	root   *actor.RootContext
	pid    *actor.PID
	events chan domain.CoordinatorUpdateEvent
	stop   func()
}

func spawnCoordinator(t *testing.T, api *fleet_api.TestClient, cfg CoordinatorConfig) *coordinatorFixture {
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	es := &eventstream.EventStream{}
	events := make(chan domain.CoordinatorUpdateEvent, 8)
	sub := es.Subscribe(func(evt interface{}) {
		if update, ok := evt.(domain.CoordinatorUpdateEvent); ok {
			select {
			case events <- update:
			default:
			}
		}
	})

	fleetPID := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewFleetActor(api, nil, adactor.FleetActorConfig{
			RateLimitDelay: 10 * time.Millisecond,
			RequestTimeout: time.Second,
			CommandTimeout: 2 * time.Second,
		}, logger)
	}))
	cfg.RequestTimeout = 2 * time.Second
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewCoordinatorActor(cfg, fleetPID, es, logger)
	}))
	return &coordinatorFixture{
		root:   as.Root,
		pid:    pid,
		events: events,
		stop: func() {
			es.Unsubscribe(sub)
			as.Shutdown()
		},
	}
}

func (f *coordinatorFixture) refresh(t *testing.T) domain.CoordinatorRefreshResponse {
	res, err := f.root.RequestFuture(f.pid, domain.CoordinatorRefreshRequest{}, 3*time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(domain.CoordinatorRefreshResponse)
	require.True(t, ok)
	return resp
}

func TestCoordinatorVehicle(t *testing.T) {
	f := spawnCoordinator(t, fleet_api.CreateTestClient(), CoordinatorConfig{
		Kind: domain.COORDINATOR_VEHICLE,
		VIN:  testVIN,
	})
	defer f.stop()

	resp := f.refresh(t)
	require.False(t, resp.HasResponseError())
	assert.Equal(t, domain.COORDINATOR_VEHICLE, resp.Kind)
	assert.Equal(t, testVIN, resp.SourceKey)
	assert.Equal(t, float64(72), resp.Data["charge_state_battery_level"])

	select {
	case evt := <-f.events:
		assert.Equal(t, domain.Source{Kind: domain.COORDINATOR_VEHICLE, Key: testVIN}, evt.Source())
		assert.NoError(t, evt.Error)
	case <-time.After(time.Second):
		t.Fatal("no coordinator update published")
	}
}

func TestCoordinatorVehicleOffline(t *testing.T) {
	api := fleet_api.CreateTestClient()
	api.VehicleDataErr = fleet_api.ErrVehicleOffline
	f := spawnCoordinator(t, api, CoordinatorConfig{
		Kind:        domain.COORDINATOR_VEHICLE,
		VIN:         testVIN,
		InitialData: map[string]any{"vin": testVIN, "state": "asleep"},
	})
	defer f.stop()

	resp := f.refresh(t)
	require.False(t, resp.HasResponseError())
	assert.Equal(t, "offline", resp.Data["state"])
	assert.Equal(t, testVIN, resp.Data["vin"])
}

func TestCoordinatorFailureKeepsData(t *testing.T) {
	api := fleet_api.CreateTestClient()
	api.SiteInfoErr = errors.New("bad gateway")
	initial := map[string]any{"site_name": "Home"}
	f := spawnCoordinator(t, api, CoordinatorConfig{
		Kind:        domain.COORDINATOR_ENERGY_INFO,
		SiteId:      98765,
		InitialData: initial,
	})
	defer f.stop()

	resp := f.refresh(t)
	assert.True(t, resp.HasResponseError())
	assert.Equal(t, "98765", resp.SourceKey)
	assert.Equal(t, initial, resp.Data)

	res, err := f.root.RequestFuture(f.pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(t, err)
	assert.False(t, res.(domain.ActorHealthResponse).Healthy)
}

func TestCoordinatorLiveStatus(t *testing.T) {
	f := spawnCoordinator(t, fleet_api.CreateTestClient(), CoordinatorConfig{
		Kind:   domain.COORDINATOR_ENERGY_LIVE,
		SiteId: 98765,
	})
	defer f.stop()

	resp := f.refresh(t)
	require.False(t, resp.HasResponseError())
	assert.Equal(t, float64(3500), resp.Data["solar_power"])
	connectors, ok := resp.Data["wall_connectors"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, connectors, "1152100-14-J--TG0000001")
}

func TestCoordinatorPolls(t *testing.T) {
	f := spawnCoordinator(t, fleet_api.CreateTestClient(), CoordinatorConfig{
		Kind:     domain.COORDINATOR_ENERGY_INFO,
		SiteId:   98765,
		Interval: 100 * time.Millisecond,
	})
	defer f.stop()

	for i := 0; i < 2; i++ {
		select {
		case evt := <-f.events:
			assert.Equal(t, "Home", evt.Data["site_name"])
		case <-time.After(2 * time.Second):
			t.Fatal("coordinator did not poll")
		}
	}
}
