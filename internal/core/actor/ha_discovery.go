package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/teslemetry2mqtt/internal/config"
	"github.com/berfenger/teslemetry2mqtt/internal/core/domain"
	"github.com/berfenger/teslemetry2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// PublishDiscovery asks the discovery actor to announce every entity again.
type PublishDiscovery struct {
}

type HADiscoveryActor struct {
	config              *config.MQTTConfig
	behavior            actor.Behavior
	scheduler           *scheduler.TimerScheduler
	mqttActor           *actor.PID
	entitiesActor       *actor.PID
	mqttActorHealthy    bool
	entityActorHealthy  bool
	healthyRecv         int
	retryDelay          time.Duration
	publishAgainPending bool

	logger *zap.Logger
}

func NewHADiscoveryActor(config *config.MQTTConfig, mqttActor *actor.PID, entitiesActor *actor.PID, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:        config,
		mqttActor:     mqttActor,
		entitiesActor: entitiesActor,
		retryDelay:    2 * time.Second,
		behavior:      actor.NewBehavior(),
		logger:        actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.checkHealth(ctx)
	case PublishDiscovery:
		state.checkHealth(ctx)
	default:
		state.logger.Debug("hadiscovery@starting: default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// checkHealth waits for the MQTT and entities actors before publishing.
func (state *HADiscoveryActor) checkHealth(ctx actor.Context) {
	state.healthyRecv = 0
	state.mqttActorHealthy = false
	state.entityActorHealthy = false
	state.publishAgainPending = false
	// MQTT Actor Request
	actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
		return domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: false,
		}
	})
	// Entities Actor Request
	actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.entitiesActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
		return domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_ENTITIES,
			Healthy: false,
		}
	})
	state.behavior.Become(state.WaitingHealthyReceive)
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.healthyRecv++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_MQTT:
				state.mqttActorHealthy = true
			case domain.ACTOR_ID_ENTITIES:
				state.entityActorHealthy = true
			}
		}
		if state.healthyRecv < 2 {
			return
		}
		if state.mqttActorHealthy && state.entityActorHealthy {
			actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.entitiesActor, GetDiscoveryRequest{}, 5*time.Second), func(err error) any {
				return GetDiscoveryResponse{ActorResponseMixIn: domain.ResponseError(err)}
			})
			state.behavior.Become(state.WaitingDiscoveryReceive)
		} else {
			state.logger.Warn("hadiscovery@healthcheck MQTT actor or entities actor are not healthy, retrying")
			state.scheduler.SendOnce(state.retryDelay, ctx.Self(), PublishDiscovery{})
			state.behavior.Become(state.StartingReceive)
		}
	case PublishDiscovery:
		state.publishAgainPending = true
	default:
		state.logger.Debug("hadiscovery@healthcheck: default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HADiscoveryActor) WaitingDiscoveryReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case GetDiscoveryResponse:
		if msg.HasResponseError() {
			state.logger.Error("hadiscovery@discovery GetDiscoveryResponse", zap.Error(msg.GetResponseError()))
			state.scheduler.SendOnce(state.retryDelay, ctx.Self(), PublishDiscovery{})
			state.behavior.Become(state.StartingReceive)
			return
		}

		bridgeDevice := domain.BridgeDevice(state.config.BaseTopic)
		discovery := domain.Discovery{Sensors: domain.BridgeSensors(bridgeDevice)}
		discovery.Merge(msg.Discovery)
		state.logger.Info("hadiscovery@discovery publishing", zap.Int("components", discovery.Len()))

		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.PublishDiscoveryRequest{
			Discovery: discovery,
		}, 10*time.Second), func(err error) any {
			return domain.PublishDiscoveryResponse{ActorResponseMixIn: domain.ResponseError(err)}
		})
	case domain.PublishDiscoveryResponse:
		if msg.HasResponseError() {
			state.logger.Error("hadiscovery@discovery PublishDiscoveryResponse", zap.Error(msg.GetResponseError()))
		}
		// states are published after the discovery so they are not lost
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.entitiesActor, RepublishStatesRequest{}, 10*time.Second), func(err error) any {
			return RepublishStatesResponse{ActorResponseMixIn: domain.ResponseError(err)}
		})
	case RepublishStatesResponse:
		if msg.HasResponseError() {
			state.logger.Error("hadiscovery@discovery RepublishStatesResponse", zap.Error(msg.GetResponseError()))
		}
		state.behavior.Become(state.Done)
		if state.publishAgainPending {
			ctx.Send(ctx.Self(), PublishDiscovery{})
		}
	case PublishDiscovery:
		state.publishAgainPending = true
	default:
		state.logger.Debug("hadiscovery@discovery: default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HADiscoveryActor) Done(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case PublishDiscovery:
		state.logger.Debug("hadiscovery@done PublishDiscovery")
		state.checkHealth(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_HA_DISCOVERY,
			Healthy: true,
			State:   "published",
		})
	default:
		state.logger.Debug("hadiscovery@done: default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}
