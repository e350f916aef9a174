package actor

import (
	"errors"
	"fmt"
	"time"

	adactor "github.com/berfenger/teslemetry2mqtt/internal/adapter/actor"
	"github.com/berfenger/teslemetry2mqtt/internal/config"
	"github.com/berfenger/teslemetry2mqtt/internal/core/domain"
	"github.com/berfenger/teslemetry2mqtt/internal/core/entity"
	"github.com/berfenger/teslemetry2mqtt/internal/core/service"
	. "github.com/berfenger/teslemetry2mqtt/internal/util/actorutil"
	"github.com/berfenger/teslemetry2mqtt/pkg/telemetry_stream"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

type FleetActorProvider func() *adactor.FleetActor

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

// StreamActorProvider is nil when the telemetry stream is disabled.
type StreamActorProvider func(vin string, eventStream *eventstream.EventStream) *adactor.StreamActor

// FatalHandler is called once when setup fails in a way retrying cannot fix.
type FatalHandler func(error)

type MasterOfPuppetsActor struct {
	ActorWithStates
	config    config.Config
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	currentHealthCheck  healthCheckResult
	eventStream         *eventstream.EventStream
	fleetActor          *actor.PID
	mqttActor           *actor.PID
	entitiesActor       *actor.PID
	haDiscoveryActor    *actor.PID
	coordinators        map[domain.Source]*actor.PID
	streams             []*actor.PID
	fleetActorProvider  FleetActorProvider
	mqttActorProvider   MQTTActorProvider
	streamActorProvider StreamActorProvider
	onFatal             FatalHandler
	setup               *setupProgress
	logger              *zap.Logger
}

// setupProgress is the state of one setup attempt.
type setupProgress struct {
	scopes     []string
	products   *service.Products
	refreshes  []domain.Source
	data       map[domain.Source]map[string]any
	streamVINs []string
	pending    []string
}

type setupRetryTick struct {
}

type healthCheckResult struct {
	healthy        map[string]bool
	checksReceived int
	respondTo      *actor.PID
}

var healthCheckedActors = []string{domain.ACTOR_ID_FLEET, domain.ACTOR_ID_MQTT, domain.ACTOR_ID_ENTITIES}

func NewMasterOfPuppetsActor(config config.Config, fleetActorProvider FleetActorProvider, mqttActorProvider MQTTActorProvider,
	streamActorProvider StreamActorProvider, onFatal FatalHandler, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:              config,
		stash:               &Stash{},
		logger:              ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:         &eventstream.EventStream{},
		coordinators:        map[domain.Source]*actor.PID{},
		fleetActorProvider:  fleetActorProvider,
		mqttActorProvider:   mqttActorProvider,
		streamActorProvider: streamActorProvider,
		onFatal:             onFatal,
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(MasterStartingState{actor: act})
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state

type MasterStartingState struct {
	ActorState
	actor *MasterOfPuppetsActor
}

func (state MasterStartingState) Name() string {
	return "starting"
}

func (state MasterStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("master@starting started")
		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)

		// start Fleet child
		fleetActorPID, err := state.actor.startFleetActor(ctx)
		if err != nil {
			panic(err)
		}
		state.actor.fleetActor = fleetActorPID

		// start MQTT child
		mqttActorPID, err := state.actor.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.actor.mqttActor = mqttActorPID

		// start Entities child
		entitiesActorPID, err := state.actor.startEntitiesActor(ctx)
		if err != nil {
			panic(err)
		}
		state.actor.entitiesActor = entitiesActorPID

		state.actor.startSetup(ctx)
	default:
		state.actor.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Setup states

// setupReceive handles the messages every setup state answers the same way.
func (state *MasterOfPuppetsActor) setupReceive(ctx actor.Context) bool {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MASTER,
			Healthy: false,
			State:   state.StateName(),
		})
	case domain.ListEntitiesRequest:
		ForRequest(msg).Respond(ctx, domain.ListEntitiesResponse{
			ActorResponseMixIn: domain.ResponseError(service.ErrSetupNotReady),
		})
	case adactor.ParsedCommand:
		state.logger.Warn("master@setup command ignored, setup in progress", zap.Any("command", msg.Command))
	case adactor.MQTTReady, adactor.HABirth:
		// discovery is published once setup completes
	default:
		return false
	}
	return true
}

func (state *MasterOfPuppetsActor) startSetup(ctx actor.Context) {
	state.logger.Info("master@setup fetching metadata")
	state.setup = &setupProgress{data: map[domain.Source]map[string]any{}}
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.fleetActor, domain.GetMetadataRequest{}, state.fleetTimeout()), func(err error) any {
		return domain.GetMetadataResponse{ActorResponseMixIn: domain.ResponseError(err)}
	})
	state.Become(MasterSetupMetadataState{actor: state})
}

func (state *MasterOfPuppetsActor) fleetTimeout() time.Duration {
	return state.config.Teslemetry.RequestTimeout() + state.config.Teslemetry.RateLimitDelay() + time.Second
}

type MasterSetupMetadataState struct {
	ActorState
	actor *MasterOfPuppetsActor
}

func (state MasterSetupMetadataState) Name() string {
	return "setup_metadata"
}

func (state MasterSetupMetadataState) Receive(ctx actor.Context) {
	if state.actor.setupReceive(ctx) {
		return
	}
	switch msg := ctx.Message().(type) {
	case domain.GetMetadataResponse:
		if msg.HasResponseError() {
			state.actor.setupFailed(ctx, service.ClassifySetupError(msg.GetResponseError()))
			return
		}
		state.actor.logger.Info("master@setup metadata", zap.String("region", msg.Metadata.Region), zap.Strings("scopes", msg.Metadata.Scopes))
		state.actor.setup.scopes = msg.Metadata.Scopes
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.fleetActor, domain.GetProductsRequest{}, state.actor.fleetTimeout()), func(err error) any {
			return domain.GetProductsResponse{ActorResponseMixIn: domain.ResponseError(err)}
		})
		state.actor.Become(MasterSetupProductsState{actor: state.actor})
	default:
		state.actor.logger.Debug("master@setup_metadata stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

type MasterSetupProductsState struct {
	ActorState
	actor *MasterOfPuppetsActor
}

func (state MasterSetupProductsState) Name() string {
	return "setup_products"
}

func (state MasterSetupProductsState) Receive(ctx actor.Context) {
	if state.actor.setupReceive(ctx) {
		return
	}
	switch msg := ctx.Message().(type) {
	case domain.GetProductsResponse:
		if msg.HasResponseError() {
			state.actor.setupFailed(ctx, service.ClassifySetupError(msg.GetResponseError()))
			return
		}
		products, err := service.PartitionProducts(msg.Products, state.actor.setup.scopes)
		if err != nil {
			state.actor.setupFailed(ctx, service.ClassifySetupError(err))
			return
		}
		state.actor.logger.Info("master@setup products", zap.Int("vehicles", len(products.Vehicles)), zap.Int("energy_sites", len(products.EnergySites)))
		state.actor.setup.products = products
		if err := state.actor.startCoordinators(ctx); err != nil {
			state.actor.setupFailed(ctx, service.ClassifySetupError(err))
			return
		}
		state.actor.Become(MasterSetupRefreshState{actor: state.actor})
		state.actor.nextRefresh(ctx)
	default:
		state.actor.logger.Debug("master@setup_products stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// startCoordinators spawns one coordinator per product endpoint and queues
// their first refresh: vehicles first, then energy live status, then site info.
func (state *MasterOfPuppetsActor) startCoordinators(ctx actor.Context) error {
	var live, info []domain.Source
	for _, vehicle := range state.setup.products.Vehicles {
		source, err := state.startCoordinator(ctx, CoordinatorConfig{
			Kind:        domain.COORDINATOR_VEHICLE,
			VIN:         vehicle.VIN,
			InitialData: vehicle.Data,
		})
		if err != nil {
			return err
		}
		state.setup.refreshes = append(state.setup.refreshes, source)
	}
	for _, site := range state.setup.products.EnergySites {
		source, err := state.startCoordinator(ctx, CoordinatorConfig{
			Kind:   domain.COORDINATOR_ENERGY_LIVE,
			SiteId: site.SiteId,
		})
		if err != nil {
			return err
		}
		live = append(live, source)
		source, err = state.startCoordinator(ctx, CoordinatorConfig{
			Kind:        domain.COORDINATOR_ENERGY_INFO,
			SiteId:      site.SiteId,
			InitialData: site.Data,
		})
		if err != nil {
			return err
		}
		info = append(info, source)
	}
	state.setup.refreshes = append(state.setup.refreshes, live...)
	state.setup.refreshes = append(state.setup.refreshes, info...)
	return nil
}

func (state *MasterOfPuppetsActor) nextRefresh(ctx actor.Context) {
	if len(state.setup.refreshes) == 0 {
		state.startStreamSetup(ctx)
		return
	}
	source := state.setup.refreshes[0]
	state.setup.refreshes = state.setup.refreshes[1:]
	state.logger.Debug("master@setup first refresh", zap.String("kind", string(source.Kind)), zap.String("key", source.Key))
	timeout := state.config.Teslemetry.PollInterval() + state.config.Teslemetry.RequestTimeout()
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.coordinators[source], domain.CoordinatorRefreshRequest{}, timeout), func(err error) any {
		return domain.CoordinatorRefreshResponse{
			ActorResponseMixIn: domain.ResponseError(err),
			Kind:               source.Kind,
			SourceKey:          source.Key,
		}
	})
}

type MasterSetupRefreshState struct {
	ActorState
	actor *MasterOfPuppetsActor
}

func (state MasterSetupRefreshState) Name() string {
	return "setup_refresh"
}

func (state MasterSetupRefreshState) Receive(ctx actor.Context) {
	if state.actor.setupReceive(ctx) {
		return
	}
	switch msg := ctx.Message().(type) {
	case domain.CoordinatorRefreshResponse:
		if msg.HasResponseError() {
			err := fmt.Errorf("first refresh of %s %s failed: %w", msg.Kind, msg.SourceKey, msg.GetResponseError())
			state.actor.setupFailed(ctx, service.ClassifySetupError(err))
			return
		}
		state.actor.setup.data[domain.Source{Kind: msg.Kind, Key: msg.SourceKey}] = msg.Data
		state.actor.nextRefresh(ctx)
	default:
		state.actor.logger.Debug("master@setup_refresh stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) startStreamSetup(ctx actor.Context) {
	state.setup.pending = nil
	if state.config.Teslemetry.StreamEnable && state.streamActorProvider != nil {
		for _, vehicle := range state.setup.products.Vehicles {
			state.setup.pending = append(state.setup.pending, vehicle.VIN)
		}
	}
	state.Become(MasterSetupStreamState{actor: state})
	state.nextStreamConfig(ctx)
}

func (state *MasterOfPuppetsActor) nextStreamConfig(ctx actor.Context) {
	if len(state.setup.pending) == 0 {
		state.registerEntities(ctx)
		return
	}
	vin := state.setup.pending[0]
	state.setup.pending = state.setup.pending[1:]
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.fleetActor, domain.GetStreamConfigRequest{VIN: vin}, state.fleetTimeout()), func(err error) any {
		return domain.GetStreamConfigResponse{ActorResponseMixIn: domain.ResponseError(err), VIN: vin}
	})
}

type MasterSetupStreamState struct {
	ActorState
	actor *MasterOfPuppetsActor
}

func (state MasterSetupStreamState) Name() string {
	return "setup_stream"
}

func (state MasterSetupStreamState) Receive(ctx actor.Context) {
	if state.actor.setupReceive(ctx) {
		return
	}
	switch msg := ctx.Message().(type) {
	case domain.GetStreamConfigResponse:
		switch {
		case errors.Is(msg.GetResponseError(), telemetry_stream.ErrVehicleNotConfigured):
			state.actor.logger.Sugar().Warnf("Vehicle %s is not configured for streaming. Configure at https://teslemetry.com/console/%s", msg.VIN, msg.VIN)
		case msg.HasResponseError():
			err := fmt.Errorf("stream config of %s: %w", msg.VIN, msg.GetResponseError())
			state.actor.setupFailed(ctx, service.ClassifySetupError(err))
			return
		default:
			state.actor.setup.streamVINs = append(state.actor.setup.streamVINs, msg.VIN)
		}
		state.actor.nextStreamConfig(ctx)
	case RegisterEntitiesResponse:
		if msg.HasResponseError() {
			state.actor.setupFailed(ctx, service.ClassifySetupError(msg.GetResponseError()))
			return
		}
		state.actor.logger.Info("master@setup entities registered", zap.Int("entities", msg.Count))
		state.actor.completeSetup(ctx)
	default:
		state.actor.logger.Debug("master@setup_stream stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// registerEntities builds the entities of every product from the first
// refresh data and hands them to the entities actor.
func (state *MasterOfPuppetsActor) registerEntities(ctx actor.Context) {
	in := entity.BuildInput{
		Scopes:       state.setup.scopes,
		BridgeDevice: domain.BridgeDevice(state.config.MQTT.BaseTopic),
		Options: entity.Options{
			WakeUpAttempts: state.config.Teslemetry.WakeUpAttempts,
			WakeUpDelay:    state.config.Teslemetry.WakeUpDelay(),
		},
	}
	for _, vehicle := range state.setup.products.Vehicles {
		in.Vehicles = append(in.Vehicles, entity.VehicleInput{
			VIN:         vehicle.VIN,
			DisplayName: vehicle.DisplayName,
			Data:        state.setup.data[domain.Source{Kind: domain.COORDINATOR_VEHICLE, Key: vehicle.VIN}],
		})
	}
	for _, site := range state.setup.products.EnergySites {
		key := fmt.Sprint(site.SiteId)
		in.EnergySites = append(in.EnergySites, entity.EnergySiteInput{
			SiteId:   site.SiteId,
			SiteName: site.SiteName,
			LiveData: state.setup.data[domain.Source{Kind: domain.COORDINATOR_ENERGY_LIVE, Key: key}],
			InfoData: state.setup.data[domain.Source{Kind: domain.COORDINATOR_ENERGY_INFO, Key: key}],
		})
	}
	entities := entity.Build(in)
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.entitiesActor, RegisterEntitiesRequest{
		Entities: entities,
		Data:     state.setup.data,
	}, 5*time.Second), func(err error) any {
		return RegisterEntitiesResponse{ActorResponseMixIn: domain.ResponseError(err)}
	})
}

func (state *MasterOfPuppetsActor) completeSetup(ctx actor.Context) {
	for _, vin := range state.setup.streamVINs {
		vin := vin
		props := actor.PropsFromProducer(func() actor.Actor {
			return state.streamActorProvider(vin, state.eventStream)
		})
		pid, err := ctx.SpawnNamed(props, fmt.Sprintf("%s_%s", domain.ACTOR_ID_STREAM, vin))
		if err != nil {
			state.logger.Error("master@setup could not start stream", zap.String("vin", vin), zap.Error(err))
			continue
		}
		state.streams = append(state.streams, pid)
	}

	// start HA Discovery
	if state.config.MQTT.HADiscoveryEnable && state.haDiscoveryActor == nil {
		pid, err := state.startHADiscoveryActor(ctx)
		if err != nil {
			panic(err)
		}
		state.haDiscoveryActor = pid
	}

	state.logger.Info("master@setup completed")
	state.setup = nil
	state.Become(MasterRunningState{actor: state})
	state.stash.UnstashAll(ctx)
}

// setupFailed stops the setup attempt. Fatal errors are reported to the
// FatalHandler, any other error schedules a new attempt.
func (state *MasterOfPuppetsActor) setupFailed(ctx actor.Context, err error) {
	for source, pid := range state.coordinators {
		ctx.Stop(pid)
		delete(state.coordinators, source)
	}
	state.setup = nil

	if errors.Is(err, service.ErrSetupFatal) {
		state.logger.Error("master@setup failed", zap.Error(err))
		state.Become(MasterFailedState{actor: state, err: err})
		if state.onFatal != nil {
			state.onFatal(err)
		}
		return
	}
	state.logger.Warn("master@setup not ready, retrying", zap.Duration("in", state.config.Teslemetry.SetupRetry()), zap.Error(err))
	state.scheduler.SendOnce(state.config.Teslemetry.SetupRetry(), ctx.Self(), setupRetryTick{})
	state.Become(MasterWaitingRetryState{actor: state})
}

type MasterWaitingRetryState struct {
	ActorState
	actor *MasterOfPuppetsActor
}

func (state MasterWaitingRetryState) Name() string {
	return "setup_retry"
}

func (state MasterWaitingRetryState) Receive(ctx actor.Context) {
	if state.actor.setupReceive(ctx) {
		return
	}
	switch msg := ctx.Message().(type) {
	case setupRetryTick:
		state.actor.startSetup(ctx)
	default:
		state.actor.logger.Debug("master@setup_retry stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

type MasterFailedState struct {
	ActorState
	actor *MasterOfPuppetsActor
	err   error
}

func (state MasterFailedState) Name() string {
	return "failed"
}

func (state MasterFailedState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			ActorResponseMixIn: domain.ResponseError(state.err),
			Id:                 domain.ACTOR_ID_MASTER,
			Healthy:            false,
			State:              state.Name(),
		})
	case domain.ListEntitiesRequest:
		ForRequest(msg).Respond(ctx, domain.ListEntitiesResponse{ActorResponseMixIn: domain.ResponseError(state.err)})
	default:
		state.actor.logger.Debug("master@failed default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Running state

type MasterRunningState struct {
	ActorState
	actor *MasterOfPuppetsActor
}

func (state MasterRunningState) Name() string {
	return "running"
}

func (state MasterRunningState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.actor.logger.Debug("master@running ActorHealthRequest")
		state.actor.currentHealthCheck.reset()
		state.actor.currentHealthCheck.respondTo = ctx.Sender()
		for _, id := range healthCheckedActors {
			id := id
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.childPID(id), domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      id,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.actor.BecomeStacked(MasterHealthCheckState{actor: state.actor})
	case adactor.ParsedCommand:
		// redirect parsedCommand to entities
		state.actor.logger.Debug("master@running parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			ctx.Request(state.actor.entitiesActor, domain.EntityCommandRequest{
				Platform: msg.Command.Platform,
				EntityId: msg.Command.EntityId,
				Payload:  msg.Command.Payload,
			})
		}
	case domain.EntityCommandResponse:
		if msg.HasResponseError() {
			state.actor.logger.Warn("master@running command failed", zap.Error(msg.GetResponseError()))
		}
	case domain.ListEntitiesRequest:
		ctx.Forward(state.actor.entitiesActor)
	case adactor.MQTTReady, adactor.HABirth:
		state.actor.logger.Debug("master@running announce again", zap.String("type", fmt.Sprintf("%T", msg)))
		if state.actor.haDiscoveryActor != nil {
			ctx.Send(state.actor.haDiscoveryActor, PublishDiscovery{})
		} else {
			ctx.Send(state.actor.entitiesActor, RepublishStatesRequest{})
		}
	case *actor.Terminated:
		// MQTT is restarted by its supervisor, being terminated means it gave up
		if msg.Who.Equal(state.actor.mqttActor) {
			state.actor.logger.Error("master@running mqtt terminated")
			panic(errors.New("mqtt terminated"))
		}
	default:
		state.actor.logger.Debug("master@running default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

type MasterHealthCheckState struct {
	ActorState
	actor *MasterOfPuppetsActor
}

func (state MasterHealthCheckState) Name() string {
	return "healthcheck"
}

func (state MasterHealthCheckState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.CancelReceiveTimeout()
		state.actor.currentHealthCheck.respond(ctx)
		state.actor.UnbecomeStacked()
		state.actor.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.actor.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.actor.currentHealthCheck.checksReceived++
		state.actor.currentHealthCheck.healthy[msg.Id] = msg.Healthy
		if state.actor.currentHealthCheck.allReceived() {
			ctx.CancelReceiveTimeout()
			state.actor.currentHealthCheck.respond(ctx)
			state.actor.UnbecomeStacked()
			state.actor.stash.UnstashAll(ctx)
		}
	default:
		state.actor.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) childPID(id string) *actor.PID {
	switch id {
	case domain.ACTOR_ID_FLEET:
		return state.fleetActor
	case domain.ACTOR_ID_MQTT:
		return state.mqttActor
	default:
		return state.entitiesActor
	}
}

func (state *MasterOfPuppetsActor) startFleetActor(ctx actor.Context) (*actor.PID, error) {
	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	fleetProps := actor.PropsFromProducer(func() actor.Actor {
		return state.fleetActorProvider()
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(fleetProps, domain.ACTOR_ID_FLEET)
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {
	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
}

func (state *MasterOfPuppetsActor) startEntitiesActor(ctx actor.Context) (*actor.PID, error) {
	commandTimeout := state.config.Teslemetry.CommandTimeout() + state.config.Teslemetry.PollInterval()
	entitiesProps := actor.PropsFromProducer(func() actor.Actor {
		return NewEntitiesActor(state.fleetActor, state.eventStream, commandTimeout, state.logger)
	})
	return ctx.SpawnNamed(entitiesProps, domain.ACTOR_ID_ENTITIES)
}

func (state *MasterOfPuppetsActor) startCoordinator(ctx actor.Context, cfg CoordinatorConfig) (domain.Source, error) {
	cfg.Interval = state.config.Teslemetry.PollInterval()
	cfg.RequestTimeout = state.config.Teslemetry.PollInterval()
	source := domain.Source{Kind: cfg.Kind, Key: cfg.SourceKey()}

	decider := func(reason interface{}) actor.Directive {
		state.logger.Error("coordinator failure", zap.Any("reason", reason))
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(3, 10*time.Second, decider)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewCoordinatorActor(cfg, state.fleetActor, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	pid := ctx.SpawnPrefix(props, fmt.Sprintf("%s_%s_%s", domain.ACTOR_ID_COORDINATOR, cfg.Kind, source.Key))
	state.coordinators[source] = pid
	return source, nil
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {
	decider := func(reason interface{}) actor.Directive {
		state.logger.Error("hadiscovery failure", zap.Any("reason", reason))
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config.MQTT, state.mqttActor, state.entitiesActor, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
}

func (state *healthCheckResult) reset() {
	state.healthy = map[string]bool{}
	state.checksReceived = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived == len(healthCheckedActors)
}

func (state *healthCheckResult) allHealthy() bool {
	for _, id := range healthCheckedActors {
		if !state.healthy[id] {
			return false
		}
	}
	return true
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
		State:   "running",
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
