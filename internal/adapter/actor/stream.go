package actor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/avast/retry-go/v3"
	"github.com/berfenger/teslemetry2mqtt/internal/core/domain"
	"github.com/berfenger/teslemetry2mqtt/internal/core/port"
	"github.com/berfenger/teslemetry2mqtt/internal/metrics"
	"github.com/berfenger/teslemetry2mqtt/internal/util/actorutil"
	"github.com/berfenger/teslemetry2mqtt/pkg/telemetry_stream"
	"go.uber.org/zap"
)

// StreamActor keeps the telemetry stream of one vehicle open and publishes
// every received event as a StreamUpdateEvent.
type StreamActor struct {
	vin         string
	stream      port.StreamAPI
	eventStream *eventstream.EventStream
	retryDelay  time.Duration
	maxDelay    time.Duration
	cancel      context.CancelFunc
	connected   *atomic.Bool
	logger      *zap.Logger
}

type StreamActorConfig struct {
	RetryDelay time.Duration
	MaxDelay   time.Duration
}

func DefaultStreamActorConfig() StreamActorConfig {
	return StreamActorConfig{
		RetryDelay: 5 * time.Second,
		MaxDelay:   5 * time.Minute,
	}
}

type streamStopped struct {
	Error error
}

func NewStreamActor(vin string, stream port.StreamAPI, eventStream *eventstream.EventStream, cfg StreamActorConfig, logger *zap.Logger) *StreamActor {
	return &StreamActor{
		vin:         vin,
		stream:      stream,
		eventStream: eventStream,
		retryDelay:  cfg.RetryDelay,
		maxDelay:    cfg.MaxDelay,
		connected:   &atomic.Bool{},
		logger:      actorutil.ActorLogger(fmt.Sprintf("%s_%s", domain.ACTOR_ID_STREAM, vin), logger),
	}
}

func (state *StreamActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("stream@default started")
		listenCtx, cancel := context.WithCancel(context.Background())
		state.cancel = cancel
		send := actorutil.SelfSender(ctx)
		go func() {
			send(streamStopped{Error: state.listen(listenCtx)})
		}()
	case *actor.Stopping, *actor.Restarting:
		if state.cancel != nil {
			state.cancel()
		}
	case streamStopped:
		if msg.Error != nil && !errors.Is(msg.Error, context.Canceled) {
			state.logger.Warn("stream@default stopped listening", zap.Error(msg.Error))
		}
	case domain.ActorHealthRequest:
		status := "disconnected"
		if state.connected.Load() {
			status = "connected"
		}
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_STREAM,
			Healthy: true,
			State:   status,
		})
	default:
		state.logger.Debug("stream@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// listen reconnects with exponential backoff until ctx is done or the vehicle
// turns out not to be configured for streaming.
func (state *StreamActor) listen(ctx context.Context) error {
	for {
		err := retry.Do(func() error {
			err := state.stream.Listen(ctx, state.vin, state.handle)
			state.connected.Store(false)
			if errors.Is(err, telemetry_stream.ErrVehicleNotConfigured) {
				return retry.Unrecoverable(err)
			}
			return err
		},
			retry.Context(ctx),
			retry.Attempts(10),
			retry.Delay(state.retryDelay),
			retry.MaxDelay(state.maxDelay),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
			retry.OnRetry(func(n uint, err error) {
				state.logger.Info("stream reconnecting", zap.Uint("attempt", n+1), zap.Error(err))
			}),
		)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, telemetry_stream.ErrVehicleNotConfigured):
			return err
		}
		state.logger.Error("stream keeps failing", zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(state.maxDelay):
		}
	}
}

func (state *StreamActor) handle(event telemetry_stream.Event) {
	state.connected.Store(true)
	metrics.StreamEvents.Inc()
	state.eventStream.Publish(domain.StreamUpdateEvent{
		VIN:  event.VIN,
		Data: event.Data,
		At:   event.CreatedAt,
	})
}
