package actor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/berfenger/teslemetry2mqtt/internal/config"
	"github.com/berfenger/teslemetry2mqtt/internal/core/domain"
	"github.com/berfenger/teslemetry2mqtt/internal/mqtt"
	"github.com/berfenger/teslemetry2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

type MQTTActor struct {
	config       config.MQTTConfig
	behavior     actor.Behavior
	stash        *actorutil.Stash
	client       *mqtt.MQTTClient
	eventStream  *eventstream.EventStream
	subscription *eventstream.Subscription
	logger       *zap.Logger
}

type MQTTConnected struct {
}

type MQTTSubscribed struct {
}

type MQTTConnectionLost struct {
	Error error
}

// MQTTReady is sent to the parent every time the actor is connected and
// subscribed, so retained state can be announced again.
type MQTTReady struct {
}

// HABirth is sent to the parent when Home Assistant announces it is online.
type HABirth struct {
}

type publishResult struct {
	ReplyTo *actor.PID
	Error   error
	Sensor  bool
}

type ParsedCommand struct {
	Command *mqtt.ParsedMQTTCommand
}

type rawMessage struct {
	topic   string
	message string
	retain  bool
}

func NewMQTTActor(config config.MQTTConfig, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		eventStream: eventStream,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	send := actorutil.SelfSender(ctx)
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")

		// create MQTT client
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), func(_ pahomqtt.Client) {
		}, func(_ pahomqtt.Client, err error) {
			send(MQTTConnectionLost{Error: err})
		})

		// connect to MQTT server
		state.client.Connect(func(err error) {
			if err != nil {
				send(MQTTConnectionLost{Error: err})
			} else {
				send(MQTTConnected{})
			}
		}, 10*time.Second)

	case MQTTConnected:
		state.logger.Info("mqtt@starting connected")

		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_ONLINE, 0, true, func(error) {}, 500*time.Millisecond)

		// subscribe to command topics
		state.client.SubscribeToCommandTopics(func(c pahomqtt.Client, m pahomqtt.Message) {
			if m.Topic() == state.client.HAStatusTopic() {
				if string(m.Payload()) == mqtt.MQTT_PAYLOAD_ONLINE {
					send(HABirth{})
				}
				return
			}
			cmd, err := state.client.ParseMQTTCommand(m)
			if err != nil {
				state.logger.Warn("mqtt: invalid command", zap.String("topic", m.Topic()), zap.Error(err))
				return
			}
			send(ParsedCommand{Command: cmd})
		}, func(err error) {
			if err != nil {
				send(MQTTConnectionLost{Error: err})
			} else {
				send(MQTTSubscribed{})
			}
		}, 1*time.Second)
	case MQTTSubscribed:
		// init completed, transition to default state
		state.logger.Debug("mqtt@starting subscribed")
		state.subscription = state.eventStream.SubscribeWithPredicate(func(evt any) {
			switch ev := evt.(type) {
			case domain.SensorUpdateEvent:
				send(domain.PublishSensorUpdateRequest{Event: ev})
			case domain.DiscoveryChangedEvent:
				send(domain.PublishDiscoveryRequest{Discovery: ev.Discovery})
			}
		}, func(evt any) bool {
			switch evt.(type) {
			case domain.SensorUpdateEvent, domain.DiscoveryChangedEvent:
				return true
			}
			return false
		})
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
		if ctx.Parent() != nil {
			ctx.Send(ctx.Parent(), MQTTReady{})
		}
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: false,
			State:   "connecting",
		})
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		// respond health check request
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case ParsedCommand, HABirth:
		// route to parent
		state.logger.Debug("mqtt@default route to parent", zap.String("type", fmt.Sprintf("%T", msg)))
		ctx.Send(ctx.Parent(), msg)
	case domain.PublishMessageRequest:
		state.logger.Debug("mqtt@default PublishMessageRequest", zap.String("topic", msg.Topic))
		state.publishMessage(ctx, msg.Topic, msg.Payload, msg.Retain, actorutil.ForRequest(msg).ReplyTo(ctx))
	case domain.PublishSensorUpdateRequest:
		state.logger.Debug("mqtt@default PublishSensorUpdateRequest", zap.String("type", fmt.Sprintf("%T", msg.Event)))
		state.publishSensorValue(ctx, msg.Event, msg.Retain, actorutil.ForRequest(msg).ReplyTo(ctx))
	case domain.PublishDiscoveryRequest:
		state.logger.Debug("mqtt@default PublishDiscoveryRequest", zap.Int("components", msg.Discovery.Len()))
		err := state.PublishHomeAssistantDiscovery(msg.Discovery)
		if err != nil {
			state.logger.Error("mqtt@default PublishDiscoveryRequest error", zap.Error(err))
		}
		actorutil.ForRequest(msg).Respond(ctx, domain.PublishDiscoveryResponse{
			ActorResponseMixIn: domain.ResponseError(err),
		})
	case publishResult:
		if msg.Error != nil {
			state.logger.Error("mqtt@default could not publish a message", zap.Error(msg.Error))
		}
		if msg.ReplyTo != nil && msg.Sensor {
			ctx.Send(msg.ReplyTo, domain.PublishSensorUpdateResponse{
				ActorResponseMixIn: domain.ResponseError(msg.Error),
			})
		} else if msg.ReplyTo != nil {
			ctx.Send(msg.ReplyTo, domain.PublishMessageResponse{
				ActorResponseMixIn: domain.ResponseError(msg.Error),
			})
		}
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MQTTActor) event2MQTTMessage(event any) *rawMessage {
	return event2MQTTMessage(state.client, event)
}

func event2MQTTMessage(client *mqtt.MQTTClient, event any) *rawMessage {
	switch msg := event.(type) {
	case domain.FloatSensorUpdateEvent:
		return &rawMessage{
			topic:   client.StateTopic(domain.PLATFORM_SENSOR, msg.Id),
			message: fmt.Sprintf(fmt.Sprintf("%%.%df", msg.Decimals), msg.Value),
		}
	case domain.TextSensorUpdateEvent:
		return &rawMessage{
			topic:   client.StateTopic(domain.PLATFORM_SENSOR, msg.Id),
			message: msg.Value,
		}
	case domain.BinarySensorUpdateEvent:
		return &rawMessage{
			topic:   client.StateTopic(domain.PLATFORM_BINARY_SENSOR, msg.Id),
			message: bool2MQTTPayload(msg.Value),
		}
	case domain.SwitchSensorUpdateEvent:
		return &rawMessage{
			topic:   client.StateTopic(domain.PLATFORM_SWITCH, msg.Id),
			message: bool2MQTTPayload(msg.Value),
			retain:  true,
		}
	case domain.InputNumberSensorUpdateEvent:
		return &rawMessage{
			topic:   client.StateTopic(domain.PLATFORM_NUMBER, msg.Id),
			message: fmt.Sprintf(fmt.Sprintf("%%.%df", msg.Decimals), msg.Value),
			retain:  true,
		}
	case domain.SelectUpdateEvent:
		return &rawMessage{
			topic:   client.StateTopic(domain.PLATFORM_SELECT, msg.Id),
			message: msg.Value,
			retain:  true,
		}
	case domain.UnknownStateUpdateEvent:
		return &rawMessage{
			topic:   client.StateTopic(msg.Platform, msg.Id),
			message: mqtt.MQTT_PAYLOAD_UNKNOWN,
			retain:  retainedState(msg.Platform),
		}
	case domain.AvailabilityUpdateEvent:
		payload := mqtt.MQTT_PAYLOAD_OFFLINE
		if msg.Available {
			payload = mqtt.MQTT_PAYLOAD_ONLINE
		}
		return &rawMessage{
			topic:   client.AvailabilityTopic(msg.Platform, msg.Id),
			message: payload,
			retain:  true,
		}
	case domain.BridgeStateUpdateEvent:
		var stringMessage string
		if msg.Value {
			stringMessage = mqtt.MQTT_PAYLOAD_ONLINE
		} else {
			stringMessage = mqtt.MQTT_PAYLOAD_OFFLINE
		}
		return &rawMessage{
			topic:   client.BridgeStateTopic(),
			message: stringMessage,
			retain:  true,
		}
	default:
		return nil
	}
}

// retainedState reports whether the state topic of a platform is retained, so
// Home Assistant replays it for controllable entities.
func retainedState(platform string) bool {
	switch platform {
	case domain.PLATFORM_SWITCH, domain.PLATFORM_NUMBER, domain.PLATFORM_SELECT:
		return true
	default:
		return false
	}
}

// publishSensorValue publishes without waiting for the broker ack; paho keeps
// the publish order of a client.
func (state *MQTTActor) publishSensorValue(ctx actor.Context, event domain.SensorUpdateEvent, retain bool, replyTo *actor.PID) {
	msg := state.event2MQTTMessage(event)
	if msg == nil {
		state.logger.Warn("mqtt@publish: unsupported event", zap.String("type", fmt.Sprintf("%T", event)))
		return
	}
	send := actorutil.SelfSender(ctx)
	state.logger.Sugar().Debugf("mqtt@publish: sensor publish %s => %s", msg.topic, msg.message)
	state.client.Publish(msg.topic, msg.message, 1, msg.retain || retain, func(err error) {
		if err != nil || replyTo != nil {
			send(publishResult{ReplyTo: replyTo, Error: err, Sensor: true})
		}
	}, 5*time.Second)
}

func (state *MQTTActor) publishMessage(ctx actor.Context, topic, payload string, retain bool, replyTo *actor.PID) {
	send := actorutil.SelfSender(ctx)
	state.logger.Sugar().Debugf("mqtt@publish: message publish %s => %s", topic, payload)
	state.client.Publish(topic, payload, 1, retain, func(err error) {
		send(publishResult{ReplyTo: replyTo, Error: err})
	}, 5*time.Second)
}

func (state *MQTTActor) PublishHomeAssistantDiscovery(discovery domain.Discovery) error {
	publish := func(topic string, msg mqtt.HADiscoveryConfig) error {
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		state.client.Publish(topic, payload, 0, true, func(err error) {
			if err != nil {
				state.logger.Warn("mqtt: discovery publish failed", zap.String("topic", topic), zap.Error(err))
			}
		}, 1*time.Second)
		return nil
	}
	for _, sensor := range discovery.Sensors {
		topic := state.client.HADiscoveryTopic(sensor.SensorType, sensor.Device, sensor.Id)
		if err := publish(topic, mqtt.GenericSensorToHADiscoveryMessage(state.client, sensor)); err != nil {
			return err
		}
	}
	for _, _switch := range discovery.Switches {
		topic := state.client.HADiscoveryTopic(domain.PLATFORM_SWITCH, _switch.Device, _switch.Id)
		if err := publish(topic, mqtt.GenericSwitchToHADiscoveryMessage(state.client, _switch)); err != nil {
			return err
		}
	}
	for _, inputNumber := range discovery.InputNumbers {
		topic := state.client.HADiscoveryTopic(domain.PLATFORM_NUMBER, inputNumber.Device, inputNumber.Id)
		if err := publish(topic, mqtt.GenericInputNumberToHADiscoveryMessage(state.client, inputNumber)); err != nil {
			return err
		}
	}
	for _, _select := range discovery.Selects {
		topic := state.client.HADiscoveryTopic(domain.PLATFORM_SELECT, _select.Device, _select.Id)
		if err := publish(topic, mqtt.GenericSelectToHADiscoveryMessage(state.client, _select)); err != nil {
			return err
		}
	}
	return nil
}

func (state *MQTTActor) stop() {
	state.logger.Debug("mqtt: disconnect")
	if state.subscription != nil {
		state.eventStream.Unsubscribe(state.subscription)
		state.subscription = nil
	}
	if state.client != nil {
		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, func(error) {}, 500*time.Millisecond)
		state.client.Disconnect(500 * time.Millisecond)
	}
}

func bool2MQTTPayload(value bool) string {
	if value {
		return mqtt.MQTT_PAYLOAD_ON
	} else {
		return mqtt.MQTT_PAYLOAD_OFF
	}
}

// Dummy actor
func NewTestMQTTActor(config config.MQTTConfig, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:   config,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.DummyReceive)
	return act
}

func (state *MQTTActor) DummyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), nil, nil)
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@dummy ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case domain.PublishSensorUpdateRequest:
		actorutil.ForRequest(msg).Respond(ctx, domain.PublishSensorUpdateResponse{})
	case domain.PublishMessageRequest:
		actorutil.ForRequest(msg).Respond(ctx, domain.PublishMessageResponse{})
	case domain.PublishDiscoveryRequest:
		actorutil.ForRequest(msg).Respond(ctx, domain.PublishDiscoveryResponse{})
	case ParsedCommand, HABirth:
		ctx.Send(ctx.Parent(), msg)
	}
}
