package actor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/berfenger/teslemetry2mqtt/internal/core/domain"
	"github.com/berfenger/teslemetry2mqtt/internal/core/port"
	"github.com/berfenger/teslemetry2mqtt/internal/metrics"
	"github.com/berfenger/teslemetry2mqtt/internal/util/actorutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// FleetActor owns the Teslemetry API clients. Requests are served one at a time
// and paced by a rate limiter so the API is never hit in bursts.
type FleetActor struct {
	behavior       actor.Behavior
	stash          *actorutil.Stash
	api            port.FleetAPI
	stream         port.StreamAPI
	limiter        *rate.Limiter
	requestTimeout time.Duration
	commandTimeout time.Duration
	logger         *zap.Logger
}

var ErrStreamDisabled = errors.New("telemetry stream is disabled")

type FleetActorConfig struct {
	RateLimitDelay time.Duration
	RequestTimeout time.Duration
	CommandTimeout time.Duration
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewFleetActor(api port.FleetAPI, stream port.StreamAPI, cfg FleetActorConfig, logger *zap.Logger) *FleetActor {
	act := &FleetActor{
		api:            api,
		stream:         stream,
		limiter:        rate.NewLimiter(rate.Every(cfg.RateLimitDelay), 1),
		requestTimeout: cfg.RequestTimeout,
		commandTimeout: cfg.CommandTimeout,
		behavior:       actor.NewBehavior(),
		stash:          &actorutil.Stash{},
		logger:         actorutil.ActorLogger(domain.ACTOR_ID_FLEET, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *FleetActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *FleetActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("fleet@default started")
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_FLEET,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetMetadataRequest:
		state.logger.Debug("fleet@default: GetMetadataRequest")
		runFleetTask(state, ctx, msg, "metadata", state.requestTimeout,
			func(c context.Context) (*domain.GetMetadataResponse, error) {
				metadata, err := state.api.Metadata(c)
				if err != nil {
					return nil, err
				}
				return &domain.GetMetadataResponse{Metadata: metadata}, nil
			},
			func(err error) domain.GetMetadataResponse {
				return domain.GetMetadataResponse{ActorResponseMixIn: domain.ResponseError(err)}
			})
	case domain.GetProductsRequest:
		state.logger.Debug("fleet@default: GetProductsRequest")
		runFleetTask(state, ctx, msg, "products", state.requestTimeout,
			func(c context.Context) (*domain.GetProductsResponse, error) {
				products, err := state.api.Products(c)
				if err != nil {
					return nil, err
				}
				return &domain.GetProductsResponse{Products: products}, nil
			},
			func(err error) domain.GetProductsResponse {
				return domain.GetProductsResponse{ActorResponseMixIn: domain.ResponseError(err)}
			})
	case domain.GetVehicleDataRequest:
		state.logger.Debug("fleet@default: GetVehicleDataRequest", zap.String("vin", msg.VIN))
		runFleetTask(state, ctx, msg, "vehicle_data", state.requestTimeout,
			func(c context.Context) (*domain.GetVehicleDataResponse, error) {
				data, err := state.api.VehicleData(c, msg.VIN)
				if err != nil {
					return nil, err
				}
				return &domain.GetVehicleDataResponse{VIN: msg.VIN, Data: data}, nil
			},
			func(err error) domain.GetVehicleDataResponse {
				return domain.GetVehicleDataResponse{ActorResponseMixIn: domain.ResponseError(err), VIN: msg.VIN}
			})
	case domain.GetLiveStatusRequest:
		state.logger.Debug("fleet@default: GetLiveStatusRequest", zap.Int64("site", msg.SiteId))
		runFleetTask(state, ctx, msg, "live_status", state.requestTimeout,
			func(c context.Context) (*domain.GetLiveStatusResponse, error) {
				data, err := state.api.LiveStatus(c, msg.SiteId)
				if err != nil {
					return nil, err
				}
				return &domain.GetLiveStatusResponse{SiteId: msg.SiteId, Data: data}, nil
			},
			func(err error) domain.GetLiveStatusResponse {
				return domain.GetLiveStatusResponse{ActorResponseMixIn: domain.ResponseError(err), SiteId: msg.SiteId}
			})
	case domain.GetSiteInfoRequest:
		state.logger.Debug("fleet@default: GetSiteInfoRequest", zap.Int64("site", msg.SiteId))
		runFleetTask(state, ctx, msg, "site_info", state.requestTimeout,
			func(c context.Context) (*domain.GetSiteInfoResponse, error) {
				data, err := state.api.SiteInfo(c, msg.SiteId)
				if err != nil {
					return nil, err
				}
				return &domain.GetSiteInfoResponse{SiteId: msg.SiteId, Data: data}, nil
			},
			func(err error) domain.GetSiteInfoResponse {
				return domain.GetSiteInfoResponse{ActorResponseMixIn: domain.ResponseError(err), SiteId: msg.SiteId}
			})
	case domain.GetStreamConfigRequest:
		state.logger.Debug("fleet@default: GetStreamConfigRequest", zap.String("vin", msg.VIN))
		if state.stream == nil {
			actorutil.ForRequest(msg).Respond(ctx, domain.GetStreamConfigResponse{
				ActorResponseMixIn: domain.ResponseError(ErrStreamDisabled),
				VIN:                msg.VIN,
			})
			return
		}
		runFleetTask(state, ctx, msg, "stream_config", state.requestTimeout,
			func(c context.Context) (*domain.GetStreamConfigResponse, error) {
				config, err := state.stream.GetConfig(c, msg.VIN)
				if err != nil {
					return nil, err
				}
				return &domain.GetStreamConfigResponse{VIN: msg.VIN, Config: config}, nil
			},
			func(err error) domain.GetStreamConfigResponse {
				return domain.GetStreamConfigResponse{ActorResponseMixIn: domain.ResponseError(err), VIN: msg.VIN}
			})
	case domain.ExecuteCommandRequest:
		state.logger.Info("fleet@default: ExecuteCommandRequest",
			zap.String("command", msg.Description), zap.String("id", msg.CommandId))
		runFleetTask(state, ctx, msg, "command", state.commandTimeout,
			func(c context.Context) (*domain.ExecuteCommandResponse, error) {
				if err := msg.Fn(c, state.api); err != nil {
					return nil, err
				}
				return &domain.ExecuteCommandResponse{CommandId: msg.CommandId}, nil
			},
			func(err error) domain.ExecuteCommandResponse {
				return domain.ExecuteCommandResponse{ActorResponseMixIn: domain.ResponseError(err), CommandId: msg.CommandId}
			})
	default:
		state.logger.Debug("fleet@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *FleetActor) WaitingFleet(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("fleet@WaitingFleet backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_FLEET,
			Healthy: true,
			State:   "busy",
		})
	default:
		state.logger.Debug("fleet@WaitingFleet stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// runFleetTask runs fn in the background, paced by the actor rate limiter, and
// replies to the requester with the result or with onError(err).
func runFleetTask[T any](state *FleetActor, ctx actor.Context, req domain.ActorRequest, operation string,
	timeout time.Duration, fn func(context.Context) (*T, error), onError func(error) T) {
	sender := actorutil.ForRequest(req).ReplyTo(ctx)
	logger := state.logger

	task := actorutil.NewBackgroundTask(ctx, func() (*T, error) {
		reqCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := state.limiter.Wait(reqCtx); err != nil {
			return nil, err
		}
		res, err := fn(reqCtx)
		metrics.FleetRequests.WithLabelValues(operation, metrics.Result(err)).Inc()
		return res, err
	})
	actorutil.MapBackgroundTask(task, mapTaskResult[T](sender)).Recover(func(err error) backgroundTaskResult {
		logger.Warn("fleet request failed", zap.String("operation", operation), zap.Error(err))
		return backgroundTaskResult{
			message: onError(err),
			replyTo: sender,
		}
	}).WithTimeout(timeout + time.Second).PipeTo(ctx.Self())
	state.behavior.BecomeStacked(state.WaitingFleet)
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
