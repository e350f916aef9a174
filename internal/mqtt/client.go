package mqtt

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/berfenger/teslemetry2mqtt/internal/config"
	"github.com/berfenger/teslemetry2mqtt/internal/core/domain"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	MQTT_PAYLOAD_ONLINE  = "online"
	MQTT_PAYLOAD_OFFLINE = "offline"
	MQTT_PAYLOAD_ON      = "on"
	MQTT_PAYLOAD_OFF     = "off"
	MQTT_PAYLOAD_UNKNOWN = "None"
)

var (
	ErrInvalidCommand = errors.New("invalid command")
	ErrNotACommand    = errors.New("not a command topic")
)

func OptsFromConfig(cfg config.MQTTConfig) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(fmt.Sprintf("teslemetry2mqtt_%d", rand.IntN(1000)))
	if cfg.Username != "" && cfg.Password != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(false)
	opts.WillEnabled = true
	opts.WillPayload = []byte(MQTT_PAYLOAD_OFFLINE)
	opts.WillRetained = true
	opts.WillTopic = bridgeStateTopic(cfg.BaseTopic)
	opts.WillQos = 0

	return opts
}

func CreateMQTTClient(cfg config.MQTTConfig, opts *mqtt.ClientOptions, onConnectHandler func(client mqtt.Client),
	onConnectionLostHandler func(mqtt.Client, error)) *MQTTClient {
	if onConnectHandler != nil {
		opts.OnConnect = onConnectHandler
	}
	if onConnectionLostHandler != nil {
		opts.OnConnectionLost = onConnectionLostHandler
	}
	return &MQTTClient{
		client:        mqtt.NewClient(opts),
		cfg:           cfg,
		commandRegexp: commandExtractor(cfg.BaseTopic),
	}
}

type MQTTClient struct {
	client        mqtt.Client
	cfg           config.MQTTConfig
	commandRegexp *regexp.Regexp
}

// ParsedMQTTCommand is a write sent by Home Assistant to one entity.
type ParsedMQTTCommand struct {
	Platform string
	EntityId string
	Payload  string
}

func (c *MQTTClient) baseTopic() string {
	return c.cfg.BaseTopic
}

func (c *MQTTClient) BridgeStateTopic() string {
	return bridgeStateTopic(c.baseTopic())
}

func (c *MQTTClient) StateTopic(platform string, id string) string {
	return fmt.Sprintf("%s/%s/%s/state", c.baseTopic(), platform, id)
}

func (c *MQTTClient) AvailabilityTopic(platform string, id string) string {
	return fmt.Sprintf("%s/%s/%s/availability", c.baseTopic(), platform, id)
}

// CommandTopic returns the topic Home Assistant writes to, or "" for read only
// platforms.
func (c *MQTTClient) CommandTopic(platform string, id string) string {
	switch platform {
	case domain.PLATFORM_SWITCH:
		return fmt.Sprintf("%s/%s/%s/command", c.baseTopic(), platform, id)
	case domain.PLATFORM_NUMBER, domain.PLATFORM_SELECT:
		return fmt.Sprintf("%s/%s/%s/set", c.baseTopic(), platform, id)
	default:
		return ""
	}
}

func (c *MQTTClient) HAStatusTopic() string {
	return fmt.Sprintf("%s/status", c.cfg.HADiscoveryTopic)
}

func (c *MQTTClient) ParseMQTTCommand(msg mqtt.Message) (*ParsedMQTTCommand, error) {
	return parseCommand(c.commandRegexp, msg.Topic(), string(msg.Payload()))
}

func parseCommand(r *regexp.Regexp, topic string, payload string) (*ParsedMQTTCommand, error) {
	matches := r.FindStringSubmatch(topic)
	if len(matches) != 4 {
		return nil, ErrNotACommand
	}
	platform, id, action := matches[1], matches[2], matches[3]
	if (platform == domain.PLATFORM_SWITCH) != (action == "command") {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCommand, topic)
	}
	payload = strings.TrimSpace(payload)
	if platform == domain.PLATFORM_NUMBER {
		// try to parse a valid number
		if _, err := strconv.ParseFloat(payload, 64); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
	}
	return &ParsedMQTTCommand{
		Platform: platform,
		EntityId: id,
		Payload:  payload,
	}, nil
}

func (c *MQTTClient) Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration) {
	token := c.client.Publish(topic, qos, retain, payload)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT publish timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) SubscribeMultiple(topics map[string]byte, handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	token := c.client.SubscribeMultiple(topics, handler)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT subscribe timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

// SubscribeToCommandTopics subscribes to every command topic and to the Home
// Assistant status topic.
func (c *MQTTClient) SubscribeToCommandTopics(handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	c.SubscribeMultiple(map[string]byte{
		fmt.Sprintf("%s/+/+/command", c.baseTopic()): 1,
		fmt.Sprintf("%s/+/+/set", c.baseTopic()):     1,
		c.HAStatusTopic():                            1,
	}, handler, continuation, timeout)
}

func (c *MQTTClient) Connect(continuation func(error), timeout time.Duration) {
	token := c.client.Connect()
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT connect timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Disconnect(timeout time.Duration) {
	c.client.Disconnect(uint(timeout.Milliseconds()))
}

func commandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/(switch|number|select)/([a-zA-Z0-9_]+)/(command|set)$", regexp.QuoteMeta(baseTopic)))
}

func bridgeStateTopic(baseTopic string) string {
	return fmt.Sprintf("%s/bridge/state", baseTopic)
}
