package entity

import (
	"context"
	"fmt"
	"strconv"

	"github.com/berfenger/teslemetry2mqtt/internal/core/domain"
	"github.com/berfenger/teslemetry2mqtt/internal/core/port"
	"github.com/berfenger/teslemetry2mqtt/pkg/fleet_api"
)

type NumberDescription struct {
	Key         string
	Name        string
	StreamField string
	Min         float64
	Max         float64
	Step        float64
	MinKey      string
	MaxKey      string
	Unit        string
	DeviceClass string
	Mode        string
	Scopes      []string
	Requires    string
	BatteryIcon bool
	Set         func(ctx context.Context, api port.FleetAPI, target Target, value float64) error
}

var VehicleNumbers = []NumberDescription{
	{
		Key:         "charge_state_charge_current_request",
		Name:        "Charge current",
		StreamField: "ChargeCurrentRequest",
		Step:        1,
		Min:         0,
		Max:         32,
		MaxKey:      "charge_state_charge_current_request_max",
		Unit:        "A",
		DeviceClass: domain.DEVICE_CLASS_CURRENT,
		Mode:        domain.INPUT_NUMBER_MODE_BOX,
		Scopes:      []string{fleet_api.SCOPE_VEHICLE_CHARGING_CMDS},
		Set: func(ctx context.Context, api port.FleetAPI, target Target, value float64) error {
			return api.SetChargingAmps(ctx, target.VIN, int(value))
		},
	},
	{
		Key:         "charge_state_charge_limit_soc",
		Name:        "Charge limit",
		StreamField: "ChargeLimitSoc",
		Step:        1,
		Min:         50,
		Max:         100,
		MinKey:      "charge_state_charge_limit_soc_min",
		MaxKey:      "charge_state_charge_limit_soc_max",
		Unit:        "%",
		DeviceClass: domain.DEVICE_CLASS_BATTERY,
		Mode:        domain.INPUT_NUMBER_MODE_BOX,
		Scopes:      []string{fleet_api.SCOPE_VEHICLE_CHARGING_CMDS, fleet_api.SCOPE_VEHICLE_CMDS},
		Set: func(ctx context.Context, api port.FleetAPI, target Target, value float64) error {
			return api.SetChargeLimit(ctx, target.VIN, int(value))
		},
	},
	{
		Key:         "vehicle_state_speed_limit_mode_current_limit_mph",
		Name:        "Speed limit",
		Min:         50,
		Max:         120,
		MinKey:      "vehicle_state_speed_limit_mode_min_limit_mph",
		MaxKey:      "vehicle_state_speed_limit_mode_max_limit_mph",
		Unit:        "mph",
		DeviceClass: domain.DEVICE_CLASS_SPEED,
		Mode:        domain.INPUT_NUMBER_MODE_BOX,
		Scopes:      []string{fleet_api.SCOPE_VEHICLE_CMDS},
		Set: func(ctx context.Context, api port.FleetAPI, target Target, value float64) error {
			return api.SpeedLimitSetLimit(ctx, target.VIN, value)
		},
	},
}

var EnergyInfoNumbers = []NumberDescription{
	{
		Key:         "backup_reserve_percent",
		Name:        "Backup reserve",
		Step:        1,
		Min:         0,
		Max:         100,
		Unit:        "%",
		DeviceClass: domain.DEVICE_CLASS_BATTERY,
		Scopes:      []string{fleet_api.SCOPE_ENERGY_CMDS},
		Requires:    "components_battery",
		BatteryIcon: true,
		Set: func(ctx context.Context, api port.FleetAPI, target Target, value float64) error {
			return api.Backup(ctx, target.SiteId, int(value))
		},
	},
	{
		Key:         "off_grid_vehicle_charging_reserve",
		Name:        "Off grid reserve",
		Step:        1,
		Min:         0,
		Max:         100,
		Unit:        "%",
		DeviceClass: domain.DEVICE_CLASS_BATTERY,
		Scopes:      []string{fleet_api.SCOPE_ENERGY_CMDS},
		Requires:    "components_off_grid_vehicle_charging_reserve_supported",
		BatteryIcon: true,
		Set: func(ctx context.Context, api port.FleetAPI, target Target, value float64) error {
			return api.OffGridVehicleChargingReserve(ctx, target.SiteId, int(value))
		},
	},
}

type Number struct {
	base
	desc    NumberDescription
	vehicle bool
}

func (n *Number) StreamField() string {
	return n.desc.StreamField
}

func (n *Number) bounds(data map[string]any) (float64, float64) {
	return getFloat(data, n.desc.MinKey, n.desc.Min), getFloat(data, n.desc.MaxKey, n.desc.Max)
}

func (n *Number) value(data map[string]any) (float64, bool) {
	v, ok := n.valueOf(data)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func (n *Number) decimals() uint {
	if n.desc.Step == 0 || n.desc.Step >= 1 {
		return 0
	}
	return 1
}

func (n *Number) Render(data map[string]any) Rendered {
	available := n.available(data)
	value, ok := n.value(data)
	if !ok {
		return n.unknown(available)
	}
	return Rendered{
		Available: available,
		Event: domain.InputNumberSensorUpdateEvent{
			SensorUpdateEventMixIn: n.mixin(),
			Value:                  value,
			Decimals:               n.decimals(),
		},
		State: formatFloat(value, n.decimals()),
	}
}

func (n *Number) icon(data map[string]any) string {
	if !n.desc.BatteryIcon {
		return n.base.icon
	}
	value, ok := n.value(data)
	if !ok {
		return IconForBatteryLevel(nil, false)
	}
	return IconForBatteryLevel(&value, false)
}

func (n *Number) Discovery(data map[string]any) domain.Discovery {
	lo, hi := n.bounds(data)
	var step *float64
	if n.desc.Step > 0 {
		step = domain.OptionalFloat(n.desc.Step)
	}
	return domain.Discovery{
		InputNumbers: []domain.GenericInputNumber{{
			Device:            n.device,
			Id:                n.id,
			Name:              n.name,
			UniqueId:          n.uniqueId(),
			Icon:              n.icon(data),
			Min:               domain.OptionalFloat(lo),
			Max:               domain.OptionalFloat(hi),
			Step:              step,
			Mode:              n.desc.Mode,
			UnitOfMeasurement: n.desc.Unit,
			DeviceClass:       n.desc.DeviceClass,
			EnabledByDefault:  n.enabledByDefaultPtr(),
			Availability:      true,
		}},
	}
}

func (n *Number) Command(data map[string]any, payload string) (*Command, error) {
	if err := n.raiseForScope(); err != nil {
		return nil, err
	}
	value, err := strconv.ParseFloat(payload, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, payload)
	}
	lo, hi := n.bounds(data)
	if value < lo || value > hi {
		return nil, fmt.Errorf("%w: %v out of range [%v, %v]", ErrInvalidPayload, value, lo, hi)
	}

	target := n.target
	set := n.desc.Set
	exec := func(ctx context.Context, api port.FleetAPI) error {
		return set(ctx, api, target, value)
	}
	updates := map[string]any{n.key: value}
	if n.vehicle {
		exec = withWakeUp(target.VIN, vehicleState(data), n.options, exec)
		updates["state"] = fleet_api.VEHICLE_STATE_ONLINE
	}

	return &Command{
		Description: fmt.Sprintf("%s %s=%v", target, n.key, value),
		Exec:        exec,
		Updates:     updates,
	}, nil
}

func NewVehicleNumber(desc NumberDescription, device domain.Device, vin string, scopes []string, opts Options) *Number {
	n := &Number{
		base:    newBase(domain.PLATFORM_NUMBER, desc.Key, desc.Name, device, domain.Source{Kind: domain.COORDINATOR_VEHICLE, Key: vin}, Target{VIN: vin}),
		desc:    desc,
		vehicle: true,
	}
	n.scoped = hasAnyScope(scopes, desc.Scopes)
	n.options = opts
	return n
}

func NewEnergyInfoNumber(desc NumberDescription, device domain.Device, siteId int64, scopes []string, opts Options) *Number {
	n := &Number{
		base: newBase(domain.PLATFORM_NUMBER, desc.Key, desc.Name, device, domain.Source{Kind: domain.COORDINATOR_ENERGY_INFO, Key: fmt.Sprint(siteId)}, Target{SiteId: siteId}),
		desc: desc,
	}
	n.scoped = hasAnyScope(scopes, desc.Scopes)
	n.options = opts
	return n
}
