package entity

import (
	"fmt"
	"strings"

	"github.com/berfenger/teslemetry2mqtt/internal/core/domain"
	"github.com/berfenger/teslemetry2mqtt/internal/core/service"
	"github.com/berfenger/teslemetry2mqtt/pkg/fleet_api"
)

type SensorDescription struct {
	Key            string
	Name           string
	StreamField    string
	Unit           string
	DeviceClass    string
	StateClass     string
	EntityCategory string
	Icon           string
	Decimals       uint
	// Options turns the sensor into an enum. Values are lowercased.
	Options  []string
	Text     bool
	Disabled bool
	// Value transforms the raw value, reporting false when there is none.
	Value func(v any) (any, bool)
}

var VehicleSensors = []SensorDescription{
	{Key: "charge_state_battery_level", Name: "Battery level", StreamField: "BatteryLevel", Unit: "%", DeviceClass: domain.DEVICE_CLASS_BATTERY, StateClass: domain.STATE_CLASS_MEASUREMENT},
	{Key: "charge_state_charging_state", Name: "Charging", Icon: "mdi:ev-station", Options: []string{"starting", "charging", "stopped", "complete", "disconnected", "no_power"}},
	{Key: "charge_state_charger_power", Name: "Charger power", Unit: "kW", DeviceClass: domain.DEVICE_CLASS_POWER, StateClass: domain.STATE_CLASS_MEASUREMENT},
	{Key: "charge_state_charger_voltage", Name: "Charger voltage", Unit: "V", DeviceClass: domain.DEVICE_CLASS_VOLTAGE, StateClass: domain.STATE_CLASS_MEASUREMENT, EntityCategory: domain.ENTITY_CLASS_DIAGNOSTIC},
	{Key: "charge_state_charger_actual_current", Name: "Charger current", Unit: "A", DeviceClass: domain.DEVICE_CLASS_CURRENT, StateClass: domain.STATE_CLASS_MEASUREMENT, EntityCategory: domain.ENTITY_CLASS_DIAGNOSTIC},
	{Key: "charge_state_charge_energy_added", Name: "Charge energy added", Unit: "kWh", DeviceClass: domain.DEVICE_CLASS_ENERGY, StateClass: domain.STATE_CLASS_TOTAL_INCREASING, Decimals: 2},
	{Key: "charge_state_battery_range", Name: "Battery range", Unit: "mi", DeviceClass: domain.DEVICE_CLASS_DISTANCE, StateClass: domain.STATE_CLASS_MEASUREMENT, Decimals: 1},
	{Key: "drive_state_speed", Name: "Speed", StreamField: "VehicleSpeed", Unit: "mph", DeviceClass: domain.DEVICE_CLASS_SPEED, StateClass: domain.STATE_CLASS_MEASUREMENT, Value: zeroWhenMissing},
	{Key: "drive_state_power", Name: "Power", Unit: "kW", DeviceClass: domain.DEVICE_CLASS_POWER, StateClass: domain.STATE_CLASS_MEASUREMENT},
	{Key: "drive_state_shift_state", Name: "Shift state", Icon: "mdi:car-shift-pattern", Options: []string{"p", "d", "r", "n"}},
	{Key: "vehicle_state_odometer", Name: "Odometer", StreamField: "Odometer", Unit: "mi", DeviceClass: domain.DEVICE_CLASS_DISTANCE, StateClass: domain.STATE_CLASS_TOTAL_INCREASING, Decimals: 1, Disabled: true},
	{Key: "climate_state_inside_temp", Name: "Inside temperature", StreamField: "InsideTemp", Unit: "°C", DeviceClass: domain.DEVICE_CLASS_TEMPERATURE, StateClass: domain.STATE_CLASS_MEASUREMENT, Decimals: 1},
	{Key: "climate_state_outside_temp", Name: "Outside temperature", StreamField: "OutsideTemp", Unit: "°C", DeviceClass: domain.DEVICE_CLASS_TEMPERATURE, StateClass: domain.STATE_CLASS_MEASUREMENT, Decimals: 1},
	{Key: "vehicle_state_tpms_pressure_fl", Name: "Tire pressure front left", Unit: "bar", DeviceClass: domain.DEVICE_CLASS_PRESSURE, StateClass: domain.STATE_CLASS_MEASUREMENT, EntityCategory: domain.ENTITY_CLASS_DIAGNOSTIC, Decimals: 1, Disabled: true},
	{Key: "vehicle_state_tpms_pressure_fr", Name: "Tire pressure front right", Unit: "bar", DeviceClass: domain.DEVICE_CLASS_PRESSURE, StateClass: domain.STATE_CLASS_MEASUREMENT, EntityCategory: domain.ENTITY_CLASS_DIAGNOSTIC, Decimals: 1, Disabled: true},
	{Key: "vehicle_state_tpms_pressure_rl", Name: "Tire pressure rear left", Unit: "bar", DeviceClass: domain.DEVICE_CLASS_PRESSURE, StateClass: domain.STATE_CLASS_MEASUREMENT, EntityCategory: domain.ENTITY_CLASS_DIAGNOSTIC, Decimals: 1, Disabled: true},
	{Key: "vehicle_state_tpms_pressure_rr", Name: "Tire pressure rear right", Unit: "bar", DeviceClass: domain.DEVICE_CLASS_PRESSURE, StateClass: domain.STATE_CLASS_MEASUREMENT, EntityCategory: domain.ENTITY_CLASS_DIAGNOSTIC, Decimals: 1, Disabled: true},
}

var EnergyLiveSensors = []SensorDescription{
	{Key: "solar_power", Name: "Solar power", Unit: "W", DeviceClass: domain.DEVICE_CLASS_POWER, StateClass: domain.STATE_CLASS_MEASUREMENT, Icon: "mdi:solar-power"},
	{Key: "energy_left", Name: "Energy left", Unit: "Wh", DeviceClass: domain.DEVICE_CLASS_ENERGY, StateClass: domain.STATE_CLASS_MEASUREMENT, EntityCategory: domain.ENTITY_CLASS_DIAGNOSTIC},
	{Key: "total_pack_energy", Name: "Total pack energy", Unit: "Wh", DeviceClass: domain.DEVICE_CLASS_ENERGY, StateClass: domain.STATE_CLASS_MEASUREMENT, EntityCategory: domain.ENTITY_CLASS_DIAGNOSTIC},
	{Key: "percentage_charged", Name: "Percentage charged", Unit: "%", DeviceClass: domain.DEVICE_CLASS_BATTERY, StateClass: domain.STATE_CLASS_MEASUREMENT, Decimals: 1},
	{Key: "battery_power", Name: "Battery power", Unit: "W", DeviceClass: domain.DEVICE_CLASS_POWER, StateClass: domain.STATE_CLASS_MEASUREMENT, Icon: "mdi:home-battery"},
	{Key: "load_power", Name: "Load power", Unit: "W", DeviceClass: domain.DEVICE_CLASS_POWER, StateClass: domain.STATE_CLASS_MEASUREMENT},
	{Key: "grid_power", Name: "Grid power", Unit: "W", DeviceClass: domain.DEVICE_CLASS_POWER, StateClass: domain.STATE_CLASS_MEASUREMENT, Icon: "mdi:transmission-tower"},
	{Key: "grid_services_power", Name: "Grid services power", Unit: "W", DeviceClass: domain.DEVICE_CLASS_POWER, StateClass: domain.STATE_CLASS_MEASUREMENT},
	{Key: "generator_power", Name: "Generator power", Unit: "W", DeviceClass: domain.DEVICE_CLASS_POWER, StateClass: domain.STATE_CLASS_MEASUREMENT, Disabled: true},
	{Key: "island_status", Name: "Grid status", Icon: "mdi:earth", Options: []string{"island_status_unknown", "on_grid", "off_grid", "off_grid_unintentional", "off_grid_intentional"}},
}

var WallConnectorSensors = []SensorDescription{
	{Key: "wall_connector_state", Name: "State", EntityCategory: domain.ENTITY_CLASS_DIAGNOSTIC},
	{Key: "wall_connector_fault_state", Name: "Fault state", EntityCategory: domain.ENTITY_CLASS_DIAGNOSTIC},
	{Key: "wall_connector_power", Name: "Power", Unit: "W", DeviceClass: domain.DEVICE_CLASS_POWER, StateClass: domain.STATE_CLASS_MEASUREMENT},
	{Key: "vin", Name: "Vehicle", Icon: "mdi:car-electric", Text: true},
}

func zeroWhenMissing(v any) (any, bool) {
	if v == nil {
		return 0.0, true
	}
	return v, true
}

type Sensor struct {
	base
	desc SensorDescription
}

func (s *Sensor) StreamField() string {
	return s.desc.StreamField
}

func (s *Sensor) text() bool {
	return s.desc.Text || len(s.desc.Options) > 0
}

func (s *Sensor) value(data map[string]any) (any, bool) {
	v, ok := s.valueOf(data)
	if s.desc.Value != nil {
		if !ok {
			v = nil
		}
		return s.desc.Value(v)
	}
	return v, ok
}

func (s *Sensor) Render(data map[string]any) Rendered {
	available := s.available(data)
	v, ok := s.value(data)
	if !ok {
		return s.unknown(available)
	}
	if s.text() {
		text := fmt.Sprint(v)
		if len(s.desc.Options) > 0 {
			text = strings.ToLower(text)
		}
		return Rendered{
			Available: available,
			Event: domain.TextSensorUpdateEvent{
				SensorUpdateEventMixIn: s.mixin(),
				Value:                  text,
			},
			State: text,
		}
	}
	f, ok := toFloat(v)
	if !ok {
		return s.unknown(available)
	}
	return Rendered{
		Available: available,
		Event: domain.FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: s.mixin(),
			Value:                  f,
			Decimals:               s.desc.Decimals,
		},
		State: formatFloat(f, s.desc.Decimals),
	}
}

func (s *Sensor) Discovery(data map[string]any) domain.Discovery {
	deviceClass := s.desc.DeviceClass
	if len(s.desc.Options) > 0 {
		deviceClass = domain.DEVICE_CLASS_ENUM
	}
	return domain.Discovery{
		Sensors: []domain.GenericSensor{{
			Device:            s.device,
			Id:                s.id,
			SensorType:        domain.PLATFORM_SENSOR,
			Name:              s.name,
			UniqueId:          s.uniqueId(),
			UnitOfMeasurement: s.desc.Unit,
			StateClass:        s.desc.StateClass,
			DeviceClass:       deviceClass,
			EntityCategory:    s.desc.EntityCategory,
			EnabledByDefault:  s.enabledByDefaultPtr(),
			Icon:              s.desc.Icon,
			Options:           s.desc.Options,
			Availability:      true,
		}},
	}
}

func newSensor(desc SensorDescription, device domain.Device, source domain.Source, target Target) *Sensor {
	s := &Sensor{
		base: newBase(domain.PLATFORM_SENSOR, desc.Key, desc.Name, device, source, target),
		desc: desc,
	}
	s.enabledByDefault = !desc.Disabled
	s.entityCategory = desc.EntityCategory
	s.icon = desc.Icon
	return s
}

func NewVehicleSensor(desc SensorDescription, device domain.Device, vin string) *Sensor {
	return newSensor(desc, device, domain.Source{Kind: domain.COORDINATOR_VEHICLE, Key: vin}, Target{VIN: vin})
}

func NewEnergyLiveSensor(desc SensorDescription, device domain.Device, siteId int64) *Sensor {
	return newSensor(desc, device, domain.Source{Kind: domain.COORDINATOR_ENERGY_LIVE, Key: fmt.Sprint(siteId)}, Target{SiteId: siteId})
}

// NewWallConnectorSensor reads its value from the wall connector record with
// the given din inside the energy live data of the site.
func NewWallConnectorSensor(desc SensorDescription, device domain.Device, siteId int64, din string) *Sensor {
	s := newSensor(desc, device, domain.Source{Kind: domain.COORDINATOR_ENERGY_LIVE, Key: fmt.Sprint(siteId)}, Target{SiteId: siteId})
	s.valueOf = func(data map[string]any) (any, bool) {
		return get(wallConnector(data, din), desc.Key)
	}
	s.availableFn = func(data map[string]any) bool {
		return wallConnector(data, din) != nil
	}
	return s
}

func wallConnector(data map[string]any, din string) map[string]any {
	connectors, ok := data[service.KEY_WALL_CONNECTORS].(map[string]any)
	if !ok {
		return nil
	}
	connector, _ := connectors[din].(map[string]any)
	return connector
}

type BinarySensorDescription struct {
	Key            string
	Name           string
	StreamField    string
	DeviceClass    string
	EntityCategory string
	Icon           string
	Disabled       bool
	// IsOn maps the raw value to the binary state. Defaults to truthiness.
	IsOn func(v any) bool
}

var VehicleBinarySensors = []BinarySensorDescription{
	{Key: service.KEY_STATE, Name: "Status", DeviceClass: domain.DEVICE_CLASS_CONNECTIVITY, EntityCategory: domain.ENTITY_CLASS_DIAGNOSTIC, IsOn: func(v any) bool {
		return v == fleet_api.VEHICLE_STATE_ONLINE
	}},
	{Key: "charge_state_charge_port_door_open", Name: "Charge port door", DeviceClass: domain.DEVICE_CLASS_DOOR},
	// a lock is on when unlocked
	{Key: "vehicle_state_locked", Name: "Lock", StreamField: "Locked", DeviceClass: domain.DEVICE_CLASS_LOCK, IsOn: func(v any) bool {
		locked, _ := toBool(v)
		return !locked
	}},
	{Key: "vehicle_state_is_user_present", Name: "User present", Icon: "mdi:account-check"},
	{Key: "charge_state_conn_charge_cable", Name: "Charge cable", DeviceClass: domain.DEVICE_CLASS_PLUG, EntityCategory: domain.ENTITY_CLASS_DIAGNOSTIC, IsOn: func(v any) bool {
		cable, _ := v.(string)
		return cable != "" && cable != "<invalid>"
	}},
}

var EnergyLiveBinarySensors = []BinarySensorDescription{
	{Key: "backup_capable", Name: "Backup capable", EntityCategory: domain.ENTITY_CLASS_DIAGNOSTIC},
	{Key: "grid_services_active", Name: "Grid services active", DeviceClass: domain.DEVICE_CLASS_RUNNING},
	{Key: "storm_mode_active", Name: "Storm watch active", Icon: "mdi:weather-lightning"},
}

type BinarySensor struct {
	base
	desc BinarySensorDescription
}

func (b *BinarySensor) StreamField() string {
	return b.desc.StreamField
}

func (b *BinarySensor) Render(data map[string]any) Rendered {
	available := b.available(data)
	v, ok := b.valueOf(data)
	if !ok {
		return b.unknown(available)
	}
	var on bool
	if b.desc.IsOn != nil {
		on = b.desc.IsOn(v)
	} else {
		on = truthy(map[string]any{b.key: v}, b.key)
	}
	return Rendered{
		Available: available,
		Event: domain.BinarySensorUpdateEvent{
			SensorUpdateEventMixIn: b.mixin(),
			Value:                  on,
		},
		State: onOff(on),
	}
}

func (b *BinarySensor) Discovery(data map[string]any) domain.Discovery {
	return domain.Discovery{
		Sensors: []domain.GenericSensor{{
			Device:           b.device,
			Id:               b.id,
			SensorType:       domain.PLATFORM_BINARY_SENSOR,
			Name:             b.name,
			UniqueId:         b.uniqueId(),
			DeviceClass:      b.desc.DeviceClass,
			EntityCategory:   b.desc.EntityCategory,
			EnabledByDefault: b.enabledByDefaultPtr(),
			Icon:             b.desc.Icon,
			Availability:     true,
		}},
	}
}

func newBinarySensor(desc BinarySensorDescription, device domain.Device, source domain.Source, target Target) *BinarySensor {
	b := &BinarySensor{
		base: newBase(domain.PLATFORM_BINARY_SENSOR, desc.Key, desc.Name, device, source, target),
		desc: desc,
	}
	b.enabledByDefault = !desc.Disabled
	b.entityCategory = desc.EntityCategory
	b.icon = desc.Icon
	return b
}

func NewVehicleBinarySensor(desc BinarySensorDescription, device domain.Device, vin string) *BinarySensor {
	return newBinarySensor(desc, device, domain.Source{Kind: domain.COORDINATOR_VEHICLE, Key: vin}, Target{VIN: vin})
}

func NewEnergyLiveBinarySensor(desc BinarySensorDescription, device domain.Device, siteId int64) *BinarySensor {
	return newBinarySensor(desc, device, domain.Source{Kind: domain.COORDINATOR_ENERGY_LIVE, Key: fmt.Sprint(siteId)}, Target{SiteId: siteId})
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
