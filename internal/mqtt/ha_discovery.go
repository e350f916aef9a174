package mqtt

import (
	"fmt"

	"github.com/berfenger/teslemetry2mqtt/internal/core/domain"
)

type HADiscoveryConfig struct {
	Device            HADiscoveryDevice         `json:"device"`
	StateTopic        string                    `json:"state_topic"`
	CommandTopic      string                    `json:"command_topic,omitempty"`
	StateClass        string                    `json:"state_class,omitempty"`
	DeviceClass       string                    `json:"device_class,omitempty"`
	UnitOfMeasurement string                    `json:"unit_of_measurement,omitempty"`
	Availability      []HADiscoveryAvailability `json:"availability,omitempty"`
	AvailabilityMode  string                    `json:"availability_mode,omitempty"`
	EntityCategory    string                    `json:"entity_category,omitempty"`
	Name              string                    `json:"name"`
	UniqueId          string                    `json:"unique_id"`
	ObjectId          string                    `json:"object_id,omitempty"`
	Platform          string                    `json:"platform"`
	EnabledByDefault  *bool                     `json:"enabled_by_default,omitempty"`
	PayloadOn         string                    `json:"payload_on,omitempty"`
	PayloadOff        string                    `json:"payload_off,omitempty"`
	Icon              string                    `json:"icon,omitempty"`
	Min               *float64                  `json:"min,omitempty"`
	Max               *float64                  `json:"max,omitempty"`
	Step              *float64                  `json:"step,omitempty"`
	Mode              string                    `json:"mode,omitempty"`
	Options           []string                  `json:"options,omitempty"`
}

type HADiscoveryAvailability struct {
	Topic string `json:"topic"`
}

type HADiscoveryDevice struct {
	Id               []string `json:"identifiers"`
	Manufacturer     string   `json:"manufacturer,omitempty"`
	Version          string   `json:"sw_version,omitempty"`
	Model            string   `json:"model,omitempty"`
	Name             string   `json:"name,omitempty"`
	SerialNumber     string   `json:"serial_number,omitempty"`
	ConfigurationURL string   `json:"configuration_url,omitempty"`
	ViaDevice        string   `json:"via_device,omitempty"`
}

func (c *MQTTClient) HADiscoveryTopic(component string, device domain.Device, id string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", c.cfg.HADiscoveryTopic, component, device.Id, id)
}

// availability ties an entity to the bridge state and to its own
// availability topic. Both have to be online.
func (c *MQTTClient) availability(platform string, id string, own bool) ([]HADiscoveryAvailability, string) {
	av := []HADiscoveryAvailability{{Topic: c.BridgeStateTopic()}}
	if !own {
		return av, ""
	}
	av = append(av, HADiscoveryAvailability{Topic: c.AvailabilityTopic(platform, id)})
	return av, "all"
}

func GenericSensorToHADiscoveryMessage(client *MQTTClient, sensor domain.GenericSensor) HADiscoveryConfig {
	disConfig := HADiscoveryConfig{
		Device:            device(sensor.Device),
		StateTopic:        client.StateTopic(sensor.SensorType, sensor.Id),
		StateClass:        sensor.StateClass,
		DeviceClass:       sensor.DeviceClass,
		UnitOfMeasurement: sensor.UnitOfMeasurement,
		EntityCategory:    sensor.EntityCategory,
		Name:              sensor.Name,
		UniqueId:          sensor.UniqueId,
		ObjectId:          sensor.Id,
		Icon:              sensor.Icon,
		EnabledByDefault:  sensor.EnabledByDefault,
		Options:           sensor.Options,
		Platform:          "mqtt",
	}
	if sensor.Id == domain.SENSOR_ID_BRIDGE_STATE {
		disConfig.StateTopic = client.BridgeStateTopic()
		disConfig.PayloadOn = MQTT_PAYLOAD_ONLINE
		disConfig.PayloadOff = MQTT_PAYLOAD_OFFLINE
		return disConfig
	}
	disConfig.Availability, disConfig.AvailabilityMode = client.availability(sensor.SensorType, sensor.Id, sensor.Availability)
	if sensor.SensorType == domain.PLATFORM_BINARY_SENSOR {
		disConfig.PayloadOn = MQTT_PAYLOAD_ON
		disConfig.PayloadOff = MQTT_PAYLOAD_OFF
	}
	return disConfig
}

func GenericSwitchToHADiscoveryMessage(client *MQTTClient, _switch domain.GenericSwitch) HADiscoveryConfig {
	disConfig := HADiscoveryConfig{
		Device:           device(_switch.Device),
		StateTopic:       client.StateTopic(domain.PLATFORM_SWITCH, _switch.Id),
		CommandTopic:     client.CommandTopic(domain.PLATFORM_SWITCH, _switch.Id),
		DeviceClass:      _switch.DeviceClass,
		EntityCategory:   _switch.EntityCategory,
		EnabledByDefault: _switch.EnabledByDefault,
		Name:             _switch.Name,
		UniqueId:         _switch.UniqueId,
		ObjectId:         _switch.Id,
		Icon:             _switch.Icon,
		Platform:         "mqtt",
		PayloadOn:        MQTT_PAYLOAD_ON,
		PayloadOff:       MQTT_PAYLOAD_OFF,
	}
	disConfig.Availability, disConfig.AvailabilityMode = client.availability(domain.PLATFORM_SWITCH, _switch.Id, _switch.Availability)
	return disConfig
}

func GenericInputNumberToHADiscoveryMessage(client *MQTTClient, inputNumber domain.GenericInputNumber) HADiscoveryConfig {
	disConfig := HADiscoveryConfig{
		Device:            device(inputNumber.Device),
		StateTopic:        client.StateTopic(domain.PLATFORM_NUMBER, inputNumber.Id),
		CommandTopic:      client.CommandTopic(domain.PLATFORM_NUMBER, inputNumber.Id),
		DeviceClass:       inputNumber.DeviceClass,
		UnitOfMeasurement: inputNumber.UnitOfMeasurement,
		EnabledByDefault:  inputNumber.EnabledByDefault,
		Name:              inputNumber.Name,
		UniqueId:          inputNumber.UniqueId,
		ObjectId:          inputNumber.Id,
		Icon:              inputNumber.Icon,
		Platform:          "mqtt",
		Min:               inputNumber.Min,
		Max:               inputNumber.Max,
		Step:              inputNumber.Step,
		Mode:              inputNumber.Mode,
	}
	disConfig.Availability, disConfig.AvailabilityMode = client.availability(domain.PLATFORM_NUMBER, inputNumber.Id, inputNumber.Availability)
	return disConfig
}

func GenericSelectToHADiscoveryMessage(client *MQTTClient, _select domain.GenericSelect) HADiscoveryConfig {
	disConfig := HADiscoveryConfig{
		Device:           device(_select.Device),
		StateTopic:       client.StateTopic(domain.PLATFORM_SELECT, _select.Id),
		CommandTopic:     client.CommandTopic(domain.PLATFORM_SELECT, _select.Id),
		EntityCategory:   _select.EntityCategory,
		EnabledByDefault: _select.EnabledByDefault,
		Name:             _select.Name,
		UniqueId:         _select.UniqueId,
		ObjectId:         _select.Id,
		Icon:             _select.Icon,
		Options:          _select.Options,
		Platform:         "mqtt",
	}
	disConfig.Availability, disConfig.AvailabilityMode = client.availability(domain.PLATFORM_SELECT, _select.Id, _select.Availability)
	return disConfig
}

func device(d domain.Device) HADiscoveryDevice {
	return HADiscoveryDevice{
		Id:               []string{d.Id},
		Manufacturer:     d.Manufacturer,
		Version:          d.Version,
		Model:            d.Model,
		Name:             d.Name,
		SerialNumber:     d.SerialNumber,
		ConfigurationURL: d.ConfigurationURL,
		ViaDevice:        d.ViaDevice,
	}
}
