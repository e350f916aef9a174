package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE        = "bridge"
	PLATFORM_SENSOR               = "sensor"
	PLATFORM_BINARY_SENSOR        = "binary_sensor"
	PLATFORM_SWITCH               = "switch"
	PLATFORM_NUMBER               = "number"
	PLATFORM_SELECT               = "select"
	STATE_CLASS_DURATION          = "duration"
	STATE_CLASS_MEASUREMENT       = "measurement"
	STATE_CLASS_TOTAL_INCREASING  = "total_increasing"
	DEVICE_CLASS_BATTERY          = "battery"
	DEVICE_CLASS_BATTERY_CHARGING = "battery_charging"
	DEVICE_CLASS_CURRENT          = "current"
	DEVICE_CLASS_DISTANCE         = "distance"
	DEVICE_CLASS_DOOR             = "door"
	DEVICE_CLASS_ENERGY           = "energy"
	DEVICE_CLASS_ENUM             = "enum"
	DEVICE_CLASS_LOCK             = "lock"
	DEVICE_CLASS_PLUG             = "plug"
	DEVICE_CLASS_POWER            = "power"
	DEVICE_CLASS_PRESSURE         = "pressure"
	DEVICE_CLASS_SPEED            = "speed"
	DEVICE_CLASS_SWITCH           = "switch"
	DEVICE_CLASS_TEMPERATURE      = "temperature"
	DEVICE_CLASS_VOLTAGE          = "voltage"
	DEVICE_CLASS_CONNECTIVITY     = "connectivity"
	DEVICE_CLASS_RUNNING          = "running"
	ENTITY_CLASS_DIAGNOSTIC       = "diagnostic"
	ENTITY_CLASS_CONFIG           = "config"
	INPUT_NUMBER_MODE_BOX         = "box"
	INPUT_NUMBER_MODE_SLIDER      = "slider"

	MANUFACTURER        = "Tesla"
	BRIDGE_MANUFACTURER = "Teslemetry2MQTT"
	CONFIGURATION_URL   = "https://teslemetry.com/console"
)

var vehicleModels = map[byte]string{
	'S': "Model S",
	'3': "Model 3",
	'X': "Model X",
	'Y': "Model Y",
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("teslemetry_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: BRIDGE_MANUFACTURER,
		Model:        "Bridge",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Teslemetry %s", md5HashShort(baseTopic)),
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {
	return []GenericSensor{
		{
			Device:         bridgeDevice,
			Id:             SENSOR_ID_BRIDGE_STATE,
			SensorType:     PLATFORM_BINARY_SENSOR,
			Name:           "Connection state",
			DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
			EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
			UniqueId:       UniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
		},
	}
}

// VehicleModel derives the model name from the 4th character of the VIN.
func VehicleModel(vin string) string {
	if len(vin) < 4 {
		return ""
	}
	return vehicleModels[vin[3]]
}

func VehicleDevice(vin string, displayName string, bridgeDeviceId string) Device {
	name := displayName
	if name == "" {
		name = vin
	}
	return Device{
		Id:               ObjectId("tesla", vin),
		Name:             name,
		Manufacturer:     MANUFACTURER,
		Model:            VehicleModel(vin),
		SerialNumber:     vin,
		ConfigurationURL: CONFIGURATION_URL,
		ViaDevice:        bridgeDeviceId,
	}
}

func EnergySiteDevice(siteId int64, siteName string, bridgeDeviceId string) Device {
	name := siteName
	if name == "" {
		name = "Energy Site"
	}
	return Device{
		Id:               ObjectId("tesla_site", fmt.Sprint(siteId)),
		Name:             name,
		Manufacturer:     MANUFACTURER,
		SerialNumber:     fmt.Sprint(siteId),
		ConfigurationURL: CONFIGURATION_URL,
		ViaDevice:        bridgeDeviceId,
	}
}

func WallConnectorDevice(din string, siteDeviceId string) Device {
	return Device{
		Id:               ObjectId("tesla_wc", din),
		Name:             "Wall Connector",
		Manufacturer:     MANUFACTURER,
		Model:            "Wall Connector",
		SerialNumber:     din,
		ConfigurationURL: CONFIGURATION_URL,
		ViaDevice:        siteDeviceId,
	}
}

// IdDevice strips a device down to the fields needed to reference it once
// it has been announced with its full description.
func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

var invalidIdChars = regexp.MustCompile("[^a-z0-9_]+")

// ObjectId joins parts into an id made only of lowercase letters, numbers and
// underscores, usable in MQTT topics.
func ObjectId(parts ...string) string {
	id := strings.ToLower(strings.Join(parts, "_"))
	id = invalidIdChars.ReplaceAllString(id, "_")
	return strings.Trim(id, "_")
}

func UniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func OptionalBool(value bool) *bool {
	return &value
}

func OptionalFloat(value float64) *float64 {
	return &value
}
