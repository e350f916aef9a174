package mqtt

import (
	"encoding/json"
	"testing"

	"github.com/berfenger/teslemetry2mqtt/internal/config"
	"github.com/berfenger/teslemetry2mqtt/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() *MQTTClient {
	cfg := config.MQTTConfig{
		Host:             "localhost",
		Port:             1883,
		BaseTopic:        "loremtopic",
		HADiscoveryTopic: "homeassistant",
	}
	return CreateMQTTClient(cfg, OptsFromConfig(cfg), nil, nil)
}

func TestSwitchCommandParse(t *testing.T) {
	assert := assert.New(t)

	r := commandExtractor("loremtopic")
	cmd, err := parseCommand(r, "loremtopic/switch/my_device/command", "ON")

	assert.NoError(err)
	assert.Equal(domain.PLATFORM_SWITCH, cmd.Platform)
	assert.Equal("my_device", cmd.EntityId)
	assert.Equal("ON", cmd.Payload)
}

func TestSwitchCommandParseFail(t *testing.T) {
	r := commandExtractor("loremtopic")

	_, err := parseCommand(r, "loremtopic/switch/my_device/state", "on")
	assert.ErrorIs(t, err, ErrNotACommand)

	_, err = parseCommand(r, "loremtopic/switch/my_device/set", "on")
	assert.ErrorIs(t, err, ErrInvalidCommand)
}

func TestInputNumberCommandParse(t *testing.T) {
	assert := assert.New(t)

	r := commandExtractor("loremtopic")
	cmd, err := parseCommand(r, "loremtopic/number/number_name/set", " 16 ")

	assert.NoError(err)
	assert.Equal(domain.PLATFORM_NUMBER, cmd.Platform)
	assert.Equal("number_name", cmd.EntityId)
	assert.Equal("16", cmd.Payload)

	_, err = parseCommand(r, "loremtopic/number/number_name/set", "sixteen")
	assert.ErrorIs(err, ErrInvalidCommand)
}

func TestSelectCommandParse(t *testing.T) {
	r := commandExtractor("loremtopic")
	cmd, err := parseCommand(r, "loremtopic/select/seat/set", "high")

	assert.NoError(t, err)
	assert.Equal(t, domain.PLATFORM_SELECT, cmd.Platform)
	assert.Equal(t, "high", cmd.Payload)

	_, err = parseCommand(r, "othertopic/select/seat/set", "high")
	assert.ErrorIs(t, err, ErrNotACommand)
}

func TestTopics(t *testing.T) {
	assert := assert.New(t)
	c := testClient()

	assert.Equal("loremtopic/bridge/state", c.BridgeStateTopic())
	assert.Equal("loremtopic/sensor/x/state", c.StateTopic(domain.PLATFORM_SENSOR, "x"))
	assert.Equal("loremtopic/number/x/availability", c.AvailabilityTopic(domain.PLATFORM_NUMBER, "x"))
	assert.Equal("loremtopic/switch/x/command", c.CommandTopic(domain.PLATFORM_SWITCH, "x"))
	assert.Equal("loremtopic/select/x/set", c.CommandTopic(domain.PLATFORM_SELECT, "x"))
	assert.Equal("", c.CommandTopic(domain.PLATFORM_SENSOR, "x"))
	assert.Equal("homeassistant/status", c.HAStatusTopic())
}

func TestSensorDiscoveryMessage(t *testing.T) {
	c := testClient()
	device := domain.VehicleDevice("LRW3E7FA0MC000001", "Lorem", "bridge_id")
	sensor := domain.GenericSensor{
		Device:       device,
		Id:           domain.ObjectId(device.Id, "charge_state_charging_state"),
		SensorType:   domain.PLATFORM_SENSOR,
		Name:         "Charging",
		UniqueId:     domain.UniqueId(device.Id, "charge_state_charging_state"),
		DeviceClass:  domain.DEVICE_CLASS_ENUM,
		Options:      []string{"charging", "stopped"},
		Availability: true,
	}

	msg := GenericSensorToHADiscoveryMessage(c, sensor)
	payload, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "all", decoded["availability_mode"])
	assert.Len(t, decoded["availability"], 2)
	assert.Equal(t, []any{"charging", "stopped"}, decoded["options"])
	assert.NotContains(t, decoded, "command_topic")
	assert.NotContains(t, decoded, "min")
	assert.Equal(t, "homeassistant/sensor/"+device.Id+"/"+sensor.Id+"/config", c.HADiscoveryTopic(domain.PLATFORM_SENSOR, device, sensor.Id))
}

func TestBridgeDiscoveryMessage(t *testing.T) {
	c := testClient()
	bridge := domain.BridgeDevice("loremtopic")
	msg := GenericSensorToHADiscoveryMessage(c, domain.BridgeSensors(bridge)[0])

	assert.Equal(t, c.BridgeStateTopic(), msg.StateTopic)
	assert.Equal(t, MQTT_PAYLOAD_ONLINE, msg.PayloadOn)
	assert.Empty(t, msg.Availability)
}

func TestInputNumberDiscoveryMessage(t *testing.T) {
	c := testClient()
	number := domain.GenericInputNumber{
		Device:       domain.IdDevice(domain.EnergySiteDevice(42, "Home", "bridge_id")),
		Id:           "backup",
		Min:          domain.OptionalFloat(0),
		Max:          domain.OptionalFloat(100),
		Availability: true,
	}

	msg := GenericInputNumberToHADiscoveryMessage(c, number)
	payload, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, 0.0, decoded["min"])
	assert.Equal(t, 100.0, decoded["max"])
	assert.Equal(t, "loremtopic/number/backup/set", decoded["command_topic"])
	assert.Equal(t, map[string]any{"identifiers": []any{"tesla_site_42"}, "name": "Home"}, decoded["device"])
}
