package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/berfenger/teslemetry2mqtt/internal/core/domain"
	"github.com/berfenger/teslemetry2mqtt/internal/core/service"
	"github.com/berfenger/teslemetry2mqtt/internal/metrics"
	. "github.com/berfenger/teslemetry2mqtt/internal/util/actorutil"
	"github.com/berfenger/teslemetry2mqtt/pkg/fleet_api"
	"go.uber.org/zap"
)

type CoordinatorConfig struct {
	Kind   domain.CoordinatorKind
	VIN    string
	SiteId int64
	// InitialData is published as the coordinator data until the first
	// successful refresh.
	InitialData map[string]any
	Interval    time.Duration
	// RequestTimeout bounds the wait for the fleet actor, queueing included.
	RequestTimeout time.Duration
}

func (c CoordinatorConfig) SourceKey() string {
	if c.Kind == domain.COORDINATOR_VEHICLE {
		return c.VIN
	}
	return fmt.Sprint(c.SiteId)
}

// CoordinatorActor polls one product endpoint and publishes every result, or
// failure, as a CoordinatorUpdateEvent.
type CoordinatorActor struct {
	behavior    actor.Behavior
	scheduler   *scheduler.TimerScheduler
	cancelTick  scheduler.CancelFunc
	config      CoordinatorConfig
	fleetActor  *actor.PID
	eventStream *eventstream.EventStream

	data      map[string]any
	lastError error
	waiters   []*actor.PID

	logger *zap.Logger
}

type coordinatorTick struct{}

func NewCoordinatorActor(config CoordinatorConfig, fleetActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *CoordinatorActor {
	act := &CoordinatorActor{
		config:      config,
		fleetActor:  fleetActor,
		eventStream: eventStream,
		behavior:    actor.NewBehavior(),
		data:        config.InitialData,
		logger:      ActorLogger(fmt.Sprintf("%s_%s", config.Kind, config.SourceKey()), logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *CoordinatorActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *CoordinatorActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("coordinator@default started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.scheduleTick(ctx)
	case *actor.Stopping:
		state.stopTicks()
	case domain.ActorHealthRequest:
		state.respondHealth(ctx, "idle")
	case coordinatorTick:
		state.logger.Debug("coordinator@default tick")
		state.scheduleTick(ctx)
		state.refresh(ctx)
	case domain.CoordinatorRefreshRequest:
		state.logger.Debug("coordinator@default CoordinatorRefreshRequest")
		state.addWaiter(ctx, msg)
		state.refresh(ctx)
	default:
		state.logger.Debug("coordinator@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *CoordinatorActor) WaitingData(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Stopping:
		state.stopTicks()
	case domain.ActorHealthRequest:
		state.respondHealth(ctx, "refreshing")
	case coordinatorTick:
		// a refresh is already running
		state.logger.Debug("coordinator@waiting tick skipped")
		state.scheduleTick(ctx)
	case domain.CoordinatorRefreshRequest:
		state.addWaiter(ctx, msg)
	case domain.GetVehicleDataResponse:
		state.logger.Debug("coordinator@waiting GetVehicleDataResponse")
		if errors.Is(msg.GetResponseError(), fleet_api.ErrVehicleOffline) {
			state.logger.Info("vehicle is offline", zap.String("vin", state.config.VIN))
			state.complete(ctx, service.OfflineVehicleData(state.data), nil)
			return
		}
		if msg.HasResponseError() {
			state.complete(ctx, nil, msg.GetResponseError())
			return
		}
		data, err := service.Flatten(msg.Data)
		state.complete(ctx, data, err)
	case domain.GetLiveStatusResponse:
		state.logger.Debug("coordinator@waiting GetLiveStatusResponse")
		if msg.HasResponseError() {
			state.complete(ctx, nil, msg.GetResponseError())
			return
		}
		state.complete(ctx, service.WallConnectorsByDIN(msg.Data), nil)
	case domain.GetSiteInfoResponse:
		state.logger.Debug("coordinator@waiting GetSiteInfoResponse")
		if msg.HasResponseError() {
			state.complete(ctx, nil, msg.GetResponseError())
			return
		}
		data, err := service.Flatten(msg.Data)
		state.complete(ctx, data, err)
	default:
		state.logger.Debug("coordinator@waiting default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *CoordinatorActor) refresh(ctx actor.Context) {
	var req any
	var onError func(error) any
	switch state.config.Kind {
	case domain.COORDINATOR_VEHICLE:
		req = domain.GetVehicleDataRequest{VIN: state.config.VIN}
		onError = func(err error) any {
			return domain.GetVehicleDataResponse{ActorResponseMixIn: domain.ResponseError(err), VIN: state.config.VIN}
		}
	case domain.COORDINATOR_ENERGY_LIVE:
		req = domain.GetLiveStatusRequest{SiteId: state.config.SiteId}
		onError = func(err error) any {
			return domain.GetLiveStatusResponse{ActorResponseMixIn: domain.ResponseError(err), SiteId: state.config.SiteId}
		}
	default:
		req = domain.GetSiteInfoRequest{SiteId: state.config.SiteId}
		onError = func(err error) any {
			return domain.GetSiteInfoResponse{ActorResponseMixIn: domain.ResponseError(err), SiteId: state.config.SiteId}
		}
	}
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.fleetActor, req, state.config.RequestTimeout), onError)
	state.behavior.BecomeStacked(state.WaitingData)
}

// complete stores the refresh result, publishes it and answers every pending
// refresh request. A failed refresh keeps the previous data.
func (state *CoordinatorActor) complete(ctx actor.Context, data map[string]any, err error) {
	state.lastError = err
	if err != nil {
		state.logger.Warn("coordinator update failed", zap.Error(err))
	} else {
		state.data = data
	}
	metrics.CoordinatorUpdates.WithLabelValues(string(state.config.Kind), metrics.Result(err)).Inc()

	state.eventStream.Publish(domain.CoordinatorUpdateEvent{
		Kind:      state.config.Kind,
		SourceKey: state.config.SourceKey(),
		Data:      state.data,
		Error:     err,
		At:        time.Now(),
	})
	for _, waiter := range state.waiters {
		ctx.Send(waiter, domain.CoordinatorRefreshResponse{
			ActorResponseMixIn: domain.ResponseError(err),
			Kind:               state.config.Kind,
			SourceKey:          state.config.SourceKey(),
			Data:               state.data,
		})
	}
	state.waiters = nil
	state.behavior.UnbecomeStacked()
}

func (state *CoordinatorActor) addWaiter(ctx actor.Context, msg domain.CoordinatorRefreshRequest) {
	if replyTo := ForRequest(msg).ReplyTo(ctx); replyTo != nil {
		state.waiters = append(state.waiters, replyTo)
	}
}

func (state *CoordinatorActor) scheduleTick(ctx actor.Context) {
	if state.config.Interval <= 0 {
		return
	}
	state.cancelTick = state.scheduler.RequestOnce(state.config.Interval, ctx.Self(), coordinatorTick{})
}

func (state *CoordinatorActor) stopTicks() {
	if state.cancelTick != nil {
		state.cancelTick()
		state.cancelTick = nil
	}
}

func (state *CoordinatorActor) respondHealth(ctx actor.Context, status string) {
	ctx.Respond(domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_COORDINATOR,
		Healthy: state.lastError == nil,
		State:   status,
	})
}
