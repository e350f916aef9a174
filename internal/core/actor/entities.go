package actor

import (
	"encoding/json"
	"fmt"
	"maps"
	"sort"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/berfenger/teslemetry2mqtt/internal/core/domain"
	"github.com/berfenger/teslemetry2mqtt/internal/core/entity"
	"github.com/berfenger/teslemetry2mqtt/internal/metrics"
	. "github.com/berfenger/teslemetry2mqtt/internal/util/actorutil"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type RegisterEntitiesRequest struct {
	domain.ActorRequestMixIn
	Entities []entity.Entity
	// Data seeds sources no coordinator event was received for yet.
	Data map[domain.Source]map[string]any
}

type RegisterEntitiesResponse struct {
	domain.ActorResponseMixIn
	Count int
}

type GetDiscoveryRequest struct {
	domain.ActorRequestMixIn
}

type GetDiscoveryResponse struct {
	domain.ActorResponseMixIn
	Discovery domain.Discovery
}

// RepublishStatesRequest publishes the availability and state of every entity,
// changed or not.
type RepublishStatesRequest struct {
	domain.ActorRequestMixIn
}

type RepublishStatesResponse struct {
	domain.ActorResponseMixIn
}

type pendingCommand struct {
	entity  entity.Entity
	updates map[string]any
	replyTo *actor.PID
}

// EntitiesActor holds the entity registry and the latest data of every
// coordinator. It renders entity states from coordinator and stream events and
// turns MQTT commands into fleet API calls.
type EntitiesActor struct {
	behavior     actor.Behavior
	fleetActor   *actor.PID
	eventStream  *eventstream.EventStream
	subscription *eventstream.Subscription
	// commandTimeout bounds the wait for the fleet actor, queueing included.
	commandTimeout time.Duration

	entities   []entity.Entity
	byId       map[string]entity.Entity
	data       map[domain.Source]map[string]any
	failed     map[domain.Source]bool
	available  map[string]bool
	states     map[string]string
	signatures map[string]string
	pending    map[string]pendingCommand

	logger *zap.Logger
}

func NewEntitiesActor(fleetActor *actor.PID, eventStream *eventstream.EventStream, commandTimeout time.Duration, logger *zap.Logger) *EntitiesActor {
	act := &EntitiesActor{
		fleetActor:     fleetActor,
		eventStream:    eventStream,
		commandTimeout: commandTimeout,
		behavior:       actor.NewBehavior(),
		byId:           map[string]entity.Entity{},
		data:           map[domain.Source]map[string]any{},
		failed:         map[domain.Source]bool{},
		available:      map[string]bool{},
		states:         map[string]string{},
		signatures:     map[string]string{},
		pending:        map[string]pendingCommand{},
		logger:         ActorLogger(domain.ACTOR_ID_ENTITIES, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *EntitiesActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *EntitiesActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("entities@default started")
		send := SelfSender(ctx)
		state.subscription = state.eventStream.SubscribeWithPredicate(send, func(evt any) bool {
			switch evt.(type) {
			case domain.CoordinatorUpdateEvent, domain.StreamUpdateEvent:
				return true
			}
			return false
		})
	case *actor.Stopping:
		if state.subscription != nil {
			state.eventStream.Unsubscribe(state.subscription)
		}
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_ENTITIES,
			Healthy: true,
			State:   fmt.Sprintf("%d entities", len(state.entities)),
		})
	case RegisterEntitiesRequest:
		state.logger.Info("entities@default RegisterEntitiesRequest", zap.Int("entities", len(msg.Entities)))
		state.register(msg)
		state.render(state.entities, false)
		ForRequest(msg).Respond(ctx, RegisterEntitiesResponse{Count: len(state.entities)})
	case domain.CoordinatorUpdateEvent:
		source := msg.Source()
		state.logger.Debug("entities@default CoordinatorUpdateEvent", zap.String("kind", string(source.Kind)),
			zap.String("key", source.Key), zap.Bool("failed", msg.Failed()))
		state.failed[source] = msg.Failed()
		if !msg.Failed() || state.data[source] == nil {
			state.data[source] = msg.Data
		}
		state.render(state.entitiesOf(source, nil), false)
	case domain.StreamUpdateEvent:
		state.logger.Debug("entities@default StreamUpdateEvent", zap.String("vin", msg.VIN), zap.Int("fields", len(msg.Data)))
		state.applyStream(msg)
	case GetDiscoveryRequest:
		state.logger.Debug("entities@default GetDiscoveryRequest")
		ForRequest(msg).Respond(ctx, GetDiscoveryResponse{Discovery: state.discovery()})
	case RepublishStatesRequest:
		state.logger.Debug("entities@default RepublishStatesRequest")
		state.render(state.entities, true)
		ForRequest(msg).Respond(ctx, RepublishStatesResponse{})
	case domain.ListEntitiesRequest:
		ForRequest(msg).Respond(ctx, domain.ListEntitiesResponse{Entities: state.list()})
	case domain.EntityCommandRequest:
		state.logger.Info("entities@default EntityCommandRequest", zap.String("entity", msg.EntityId), zap.String("payload", msg.Payload))
		if err := state.command(ctx, msg); err != nil {
			state.logger.Warn("entities@default command rejected", zap.String("entity", msg.EntityId), zap.Error(err))
			metrics.Commands.WithLabelValues(msg.Platform, metrics.Result(err)).Inc()
			ForRequest(msg).Respond(ctx, domain.EntityCommandResponse{ActorResponseMixIn: domain.ResponseError(err)})
		}
	case domain.ExecuteCommandResponse:
		state.commandDone(ctx, msg)
	default:
		state.logger.Debug("entities@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *EntitiesActor) register(msg RegisterEntitiesRequest) {
	for source, data := range msg.Data {
		if _, ok := state.data[source]; !ok {
			state.data[source] = data
		}
	}
	state.entities = msg.Entities
	state.byId = make(map[string]entity.Entity, len(msg.Entities))
	for _, e := range msg.Entities {
		state.byId[e.Id()] = e
	}
	state.available = map[string]bool{}
	state.states = map[string]string{}
	state.signatures = map[string]string{}
	metrics.Entities.Set(float64(len(state.entities)))
}

// entitiesOf returns the entities rendered from source. When fields is not nil
// only streamed entities bound to one of its keys are returned.
func (state *EntitiesActor) entitiesOf(source domain.Source, fields map[string]any) []entity.Entity {
	var out []entity.Entity
	for _, e := range state.entities {
		if e.Source() != source {
			continue
		}
		if fields != nil {
			streamed, ok := e.(entity.Streamed)
			if !ok || streamed.StreamField() == "" {
				continue
			}
			if _, ok := fields[streamed.StreamField()]; !ok {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

func (state *EntitiesActor) applyStream(msg domain.StreamUpdateEvent) {
	source := domain.Source{Kind: domain.COORDINATOR_VEHICLE, Key: msg.VIN}
	affected := state.entitiesOf(source, msg.Data)
	if len(affected) == 0 {
		return
	}
	data := maps.Clone(state.data[source])
	if data == nil {
		data = map[string]any{}
	}
	for _, e := range affected {
		data[e.Key()] = msg.Data[e.(entity.Streamed).StreamField()]
	}
	state.data[source] = data
	state.render(affected, false)
}

// render publishes the state of entities and their availability when it
// changed, or always when force is set. A changed discovery config is
// announced again.
func (state *EntitiesActor) render(entities []entity.Entity, force bool) {
	for _, e := range entities {
		source := e.Source()
		data := state.data[source]
		rendered := e.Render(data)
		available := rendered.Available && data != nil && !state.failed[source]

		if prev, ok := state.available[e.Id()]; force || !ok || prev != available {
			state.available[e.Id()] = available
			state.eventStream.Publish(domain.AvailabilityUpdateEvent{
				SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: e.Id()},
				Platform:               e.Platform(),
				Available:              available,
			})
		}
		if available {
			state.states[e.Id()] = rendered.State
			state.eventStream.Publish(rendered.Event)
		} else {
			state.states[e.Id()] = "unavailable"
		}

		if prev, ok := state.signatures[e.Id()]; ok && data != nil {
			discovery := e.Discovery(data)
			if sig := signature(discovery); sig != prev {
				state.logger.Debug("entities: discovery changed", zap.String("entity", e.Id()))
				state.signatures[e.Id()] = sig
				state.eventStream.Publish(domain.DiscoveryChangedEvent{Discovery: discovery})
			}
		}
	}
}

// discovery describes every entity. Only the first entity of a device carries
// the full device description.
func (state *EntitiesActor) discovery() domain.Discovery {
	var result domain.Discovery
	announced := map[string]bool{}
	for _, e := range state.entities {
		d := e.Discovery(state.data[e.Source()])
		state.signatures[e.Id()] = signature(d)
		if announced[e.Device().Id] {
			stripDevice(&d)
		}
		announced[e.Device().Id] = true
		result.Merge(d)
	}
	return result
}

func stripDevice(d *domain.Discovery) {
	for i := range d.Sensors {
		d.Sensors[i].Device = domain.IdDevice(d.Sensors[i].Device)
	}
	for i := range d.Switches {
		d.Switches[i].Device = domain.IdDevice(d.Switches[i].Device)
	}
	for i := range d.InputNumbers {
		d.InputNumbers[i].Device = domain.IdDevice(d.InputNumbers[i].Device)
	}
	for i := range d.Selects {
		d.Selects[i].Device = domain.IdDevice(d.Selects[i].Device)
	}
}

func signature(d domain.Discovery) string {
	b, err := json.Marshal(d)
	if err != nil {
		return ""
	}
	return string(b)
}

func (state *EntitiesActor) list() []domain.EntityState {
	out := make([]domain.EntityState, 0, len(state.entities))
	for _, e := range state.entities {
		st, ok := state.states[e.Id()]
		if !ok {
			st = "unknown"
		}
		out = append(out, domain.EntityState{
			Id:        e.Id(),
			Platform:  e.Platform(),
			Name:      e.Name(),
			DeviceId:  e.Device().Id,
			Available: state.available[e.Id()],
			State:     st,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out
}

func (state *EntitiesActor) command(ctx actor.Context, msg domain.EntityCommandRequest) error {
	e, ok := state.byId[msg.EntityId]
	if !ok || e.Platform() != msg.Platform {
		return fmt.Errorf("unknown %s entity %s", msg.Platform, msg.EntityId)
	}
	commandable, ok := e.(entity.Commandable)
	if !ok {
		return fmt.Errorf("entity %s does not accept commands", msg.EntityId)
	}
	if !state.available[e.Id()] {
		return fmt.Errorf("%w: %s", entity.ErrUnavailable, e.Id())
	}
	cmd, err := commandable.Command(state.data[e.Source()], msg.Payload)
	if err != nil {
		return err
	}

	id := uuid.NewString()
	state.pending[id] = pendingCommand{
		entity:  e,
		updates: cmd.Updates,
		replyTo: ForRequest(msg).ReplyTo(ctx),
	}
	state.logger.Info("entities: executing command", zap.String("id", id), zap.String("command", cmd.Description))
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.fleetActor, domain.ExecuteCommandRequest{
		CommandId:   id,
		Description: cmd.Description,
		Fn:          cmd.Exec,
	}, state.commandTimeout), func(err error) any {
		return domain.ExecuteCommandResponse{ActorResponseMixIn: domain.ResponseError(err), CommandId: id}
	})
	return nil
}

// commandDone applies the local updates of a successful command and renders
// the entities of its source again.
func (state *EntitiesActor) commandDone(ctx actor.Context, msg domain.ExecuteCommandResponse) {
	pending, ok := state.pending[msg.CommandId]
	if !ok {
		state.logger.Warn("entities: unknown command response", zap.String("id", msg.CommandId))
		return
	}
	delete(state.pending, msg.CommandId)
	metrics.Commands.WithLabelValues(pending.entity.Platform(), metrics.Result(msg.GetResponseError())).Inc()

	if msg.HasResponseError() {
		state.logger.Error("entities: command failed", zap.String("id", msg.CommandId), zap.Error(msg.GetResponseError()))
	} else {
		source := pending.entity.Source()
		data := maps.Clone(state.data[source])
		if data == nil {
			data = map[string]any{}
		}
		maps.Copy(data, pending.updates)
		state.data[source] = data
		state.render(state.entitiesOf(source, nil), false)
	}
	if pending.replyTo != nil {
		ctx.Send(pending.replyTo, domain.EntityCommandResponse{ActorResponseMixIn: domain.ResponseError(msg.GetResponseError())})
	}
}
