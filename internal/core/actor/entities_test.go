package actor

import (
	"errors"
	"sync"
	"testing"
	"time"

	adactor "github.com/berfenger/teslemetry2mqtt/internal/adapter/actor"
	"github.com/berfenger/teslemetry2mqtt/internal/core/domain"
	"github.com/berfenger/teslemetry2mqtt/internal/core/entity"
	"github.com/berfenger/teslemetry2mqtt/internal/core/service"
	"github.com/berfenger/teslemetry2mqtt/internal/util/actorutil"
	"github.com/berfenger/teslemetry2mqtt/pkg/fleet_api"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const chargeLimitId = "tesla_lrw3f7ek4nc000001_charge_state_charge_limit_soc"

type eventRecorder struct {
	mu     sync.Mutex
	events []any
}

func (r *eventRecorder) record(evt any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) availability(id string) []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []bool
	for _, evt := range r.events {
		if a, ok := evt.(domain.AvailabilityUpdateEvent); ok && a.Id == id {
			out = append(out, a.Available)
		}
	}
	return out
}

type entitiesFixture struct {
	api         *fleet_api.TestClient
	root        *actor.RootContext
	pid         *actor.PID
	eventStream *eventstream.EventStream
	recorder    *eventRecorder
	stop        func()
}

func spawnEntities(t *testing.T) *entitiesFixture {
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	api := fleet_api.CreateTestClient()
	es := &eventstream.EventStream{}
	recorder := &eventRecorder{}
	sub := es.Subscribe(recorder.record)

	fleetPID := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewFleetActor(api, nil, adactor.FleetActorConfig{
			RateLimitDelay: 10 * time.Millisecond,
			RequestTimeout: time.Second,
			CommandTimeout: 2 * time.Second,
		}, logger)
	}))
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewEntitiesActor(fleetPID, es, 3*time.Second, logger)
	}))

	vehicle, err := service.Flatten(api.Vehicles[testVIN])
	require.NoError(t, err)
	entities := entity.Build(entity.BuildInput{
		Scopes:       api.Meta.Scopes,
		BridgeDevice: domain.BridgeDevice("teslemetry"),
		Vehicles:     []entity.VehicleInput{{VIN: testVIN, DisplayName: "Test Model 3", Data: vehicle}},
		Options:      entity.Options{WakeUpAttempts: 1, WakeUpDelay: time.Millisecond},
	})
	res, err := as.Root.RequestFuture(pid, RegisterEntitiesRequest{
		Entities: entities,
		Data:     map[domain.Source]map[string]any{{Kind: domain.COORDINATOR_VEHICLE, Key: testVIN}: vehicle},
	}, time.Second).Result()
	require.NoError(t, err)
	require.Equal(t, len(entities), res.(RegisterEntitiesResponse).Count)

	return &entitiesFixture{
		api:         api,
		root:        as.Root,
		pid:         pid,
		eventStream: es,
		recorder:    recorder,
		stop: func() {
			es.Unsubscribe(sub)
			as.Shutdown()
		},
	}
}

func (f *entitiesFixture) entity(t *testing.T, id string) domain.EntityState {
	res, err := f.root.RequestFuture(f.pid, domain.ListEntitiesRequest{}, time.Second).Result()
	require.NoError(t, err)
	for _, e := range res.(domain.ListEntitiesResponse).Entities {
		if e.Id == id {
			return e
		}
	}
	t.Fatalf("entity %s not listed", id)
	return domain.EntityState{}
}

func TestEntitiesRegisterRenders(t *testing.T) {
	f := spawnEntities(t)
	defer f.stop()

	limit := f.entity(t, chargeLimitId)
	assert.True(t, limit.Available)
	assert.Equal(t, "80", limit.State)
	assert.Equal(t, domain.PLATFORM_NUMBER, limit.Platform)
	assert.Equal(t, []bool{true}, f.recorder.availability(chargeLimitId))
}

func TestEntitiesCoordinatorFailure(t *testing.T) {
	f := spawnEntities(t)
	defer f.stop()

	source := domain.Source{Kind: domain.COORDINATOR_VEHICLE, Key: testVIN}
	f.eventStream.Publish(domain.CoordinatorUpdateEvent{Kind: source.Kind, SourceKey: source.Key, Error: errors.New("timeout")})
	assert.Eventually(t, func() bool {
		return !f.entity(t, chargeLimitId).Available
	}, time.Second, 20*time.Millisecond)

	vehicle, err := service.Flatten(f.api.Vehicles[testVIN])
	require.NoError(t, err)
	vehicle["charge_state_charge_limit_soc"] = float64(75)
	f.eventStream.Publish(domain.CoordinatorUpdateEvent{Kind: source.Kind, SourceKey: source.Key, Data: vehicle})
	assert.Eventually(t, func() bool {
		return f.entity(t, chargeLimitId).State == "75"
	}, time.Second, 20*time.Millisecond)
	assert.Equal(t, []bool{true, false, true}, f.recorder.availability(chargeLimitId))
}

func TestEntitiesStreamUpdate(t *testing.T) {
	f := spawnEntities(t)
	defer f.stop()

	f.eventStream.Publish(domain.StreamUpdateEvent{VIN: testVIN, Data: map[string]any{"ChargeLimitSoc": float64(60)}, At: time.Now()})
	assert.Eventually(t, func() bool {
		return f.entity(t, chargeLimitId).State == "60"
	}, time.Second, 20*time.Millisecond)

	// fields of other vehicles are ignored
	f.eventStream.Publish(domain.StreamUpdateEvent{VIN: "OTHER", Data: map[string]any{"ChargeLimitSoc": float64(50)}})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, "60", f.entity(t, chargeLimitId).State)
}

func TestEntitiesCommand(t *testing.T) {
	f := spawnEntities(t)
	defer f.stop()

	res, err := f.root.RequestFuture(f.pid, domain.EntityCommandRequest{
		Platform: domain.PLATFORM_NUMBER,
		EntityId: chargeLimitId,
		Payload:  "90",
	}, 3*time.Second).Result()
	require.NoError(t, err)
	assert.False(t, res.(domain.EntityCommandResponse).HasResponseError())
	assert.Equal(t, "90", f.entity(t, chargeLimitId).State)

	commands := f.api.RecordedCommands()
	require.NotEmpty(t, commands)
	assert.Equal(t, "set_charge_limit", commands[len(commands)-1].Name)
}

func TestEntitiesCommandRejected(t *testing.T) {
	f := spawnEntities(t)
	defer f.stop()

	cases := map[string]domain.EntityCommandRequest{
		"unknown entity":   {Platform: domain.PLATFORM_SWITCH, EntityId: "nope", Payload: "on"},
		"platform differs": {Platform: domain.PLATFORM_SWITCH, EntityId: chargeLimitId, Payload: "on"},
		"out of range":     {Platform: domain.PLATFORM_NUMBER, EntityId: chargeLimitId, Payload: "10"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := f.root.RequestFuture(f.pid, req, time.Second).Result()
			require.NoError(t, err)
			assert.True(t, res.(domain.EntityCommandResponse).HasResponseError())
		})
	}
	assert.Empty(t, f.api.RecordedCommands())
}

func TestEntitiesDiscovery(t *testing.T) {
	f := spawnEntities(t)
	defer f.stop()

	res, err := f.root.RequestFuture(f.pid, GetDiscoveryRequest{}, time.Second).Result()
	require.NoError(t, err)
	discovery := res.(GetDiscoveryResponse).Discovery
	require.NotZero(t, discovery.Len())

	full := map[string]int{}
	count := func(device domain.Device) {
		if _, ok := full[device.Id]; !ok {
			full[device.Id] = 0
		}
		if device.Manufacturer != "" {
			full[device.Id]++
		}
	}
	for _, s := range discovery.Sensors {
		count(s.Device)
	}
	for _, s := range discovery.Switches {
		count(s.Device)
	}
	for _, s := range discovery.InputNumbers {
		count(s.Device)
	}
	for _, s := range discovery.Selects {
		count(s.Device)
	}
	// every device is described in full exactly once
	for id, n := range full {
		assert.Equal(t, 1, n, id)
	}
}
