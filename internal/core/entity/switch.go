package entity

import (
	"context"
	"fmt"
	"strings"

	"github.com/berfenger/teslemetry2mqtt/internal/core/domain"
	"github.com/berfenger/teslemetry2mqtt/internal/core/port"
	"github.com/berfenger/teslemetry2mqtt/pkg/fleet_api"
)

type SwitchDescription struct {
	Key         string
	Name        string
	Icon        string
	DeviceClass string
	Scopes      []string
	// Requires lists info keys that must be truthy for the switch to exist.
	Requires []string
	// Fallback is read when Key is missing.
	Fallback string
	Inverted bool
	Set      func(ctx context.Context, api port.FleetAPI, target Target, on bool) error
}

var VehicleSwitches = []SwitchDescription{
	{
		Key:      "charge_state_user_charge_enable_request",
		Fallback: "charge_state_charge_enable_request",
		Name:     "Charge",
		Icon:     "mdi:ev-station",
		Scopes:   []string{fleet_api.SCOPE_VEHICLE_CMDS, fleet_api.SCOPE_VEHICLE_CHARGING_CMDS},
		Set: func(ctx context.Context, api port.FleetAPI, target Target, on bool) error {
			if on {
				return api.ChargeStart(ctx, target.VIN)
			}
			return api.ChargeStop(ctx, target.VIN)
		},
	},
	{
		Key:    "vehicle_state_sentry_mode",
		Name:   "Sentry mode",
		Icon:   "mdi:cctv",
		Scopes: []string{fleet_api.SCOPE_VEHICLE_CMDS},
		Set: func(ctx context.Context, api port.FleetAPI, target Target, on bool) error {
			return api.SetSentryMode(ctx, target.VIN, on)
		},
	},
	{
		Key:    KEY_CLIMATE_ON,
		Name:   "Climate",
		Icon:   "mdi:fan",
		Scopes: []string{fleet_api.SCOPE_VEHICLE_CMDS},
		Set: func(ctx context.Context, api port.FleetAPI, target Target, on bool) error {
			if on {
				return api.AutoConditioningStart(ctx, target.VIN)
			}
			return api.AutoConditioningStop(ctx, target.VIN)
		},
	},
}

var EnergyInfoSwitches = []SwitchDescription{
	{
		Key:      "user_settings_storm_mode_enabled",
		Name:     "Storm watch",
		Icon:     "mdi:weather-lightning",
		Scopes:   []string{fleet_api.SCOPE_ENERGY_CMDS},
		Requires: []string{"components_storm_mode_capable"},
		Set: func(ctx context.Context, api port.FleetAPI, target Target, on bool) error {
			return api.StormMode(ctx, target.SiteId, on)
		},
	},
	{
		Key:      "components_disallow_charge_from_grid_with_solar_installed",
		Name:     "Allow charging from grid",
		Icon:     "mdi:transmission-tower-import",
		Scopes:   []string{fleet_api.SCOPE_ENERGY_CMDS},
		Requires: []string{"components_battery", "components_solar"},
		Inverted: true,
		Set: func(ctx context.Context, api port.FleetAPI, target Target, on bool) error {
			disallow := !on
			return api.GridImportExport(ctx, target.SiteId, fleet_api.GridImportExportParams{DisallowChargeFromGridWithSolarInstalled: &disallow})
		},
	},
}

type Switch struct {
	base
	desc    SwitchDescription
	vehicle bool
}

func (s *Switch) isOn(data map[string]any) (bool, bool) {
	v, ok := s.valueOf(data)
	if !ok {
		return false, false
	}
	on, ok := toBool(v)
	if !ok {
		return false, false
	}
	if s.desc.Inverted {
		on = !on
	}
	return on, true
}

func (s *Switch) Render(data map[string]any) Rendered {
	available := s.available(data)
	on, ok := s.isOn(data)
	if !ok {
		return s.unknown(available)
	}
	return Rendered{
		Available: available,
		Event: domain.SwitchSensorUpdateEvent{
			SensorUpdateEventMixIn: s.mixin(),
			Value:                  on,
		},
		State: onOff(on),
	}
}

func (s *Switch) Discovery(data map[string]any) domain.Discovery {
	return domain.Discovery{
		Switches: []domain.GenericSwitch{{
			Device:           s.device,
			Id:               s.id,
			Name:             s.name,
			UniqueId:         s.uniqueId(),
			Icon:             s.icon,
			DeviceClass:      s.desc.DeviceClass,
			EntityCategory:   s.entityCategory,
			EnabledByDefault: s.enabledByDefaultPtr(),
			Availability:     true,
		}},
	}
}

func (s *Switch) Command(data map[string]any, payload string) (*Command, error) {
	if err := s.raiseForScope(); err != nil {
		return nil, err
	}
	var on bool
	switch strings.ToLower(strings.TrimSpace(payload)) {
	case "on":
		on = true
	case "off":
		on = false
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidPayload, payload)
	}

	target := s.target
	set := s.desc.Set
	exec := func(ctx context.Context, api port.FleetAPI) error {
		return set(ctx, api, target, on)
	}
	stored := on
	if s.desc.Inverted {
		stored = !on
	}
	updates := map[string]any{s.key: stored}
	if s.vehicle {
		exec = withWakeUp(target.VIN, vehicleState(data), s.options, exec)
		updates["state"] = fleet_api.VEHICLE_STATE_ONLINE
	}
	return &Command{
		Description: fmt.Sprintf("%s %s=%s", target, s.key, onOff(on)),
		Exec:        exec,
		Updates:     updates,
	}, nil
}

func newSwitch(desc SwitchDescription, device domain.Device, source domain.Source, target Target, scopes []string) *Switch {
	s := &Switch{
		base: newBase(domain.PLATFORM_SWITCH, desc.Key, desc.Name, device, source, target),
		desc: desc,
	}
	s.scoped = hasAnyScope(scopes, desc.Scopes)
	s.icon = desc.Icon
	if desc.Fallback != "" {
		s.valueOf = func(data map[string]any) (any, bool) {
			if v, ok := get(data, desc.Key); ok {
				return v, true
			}
			return get(data, desc.Fallback)
		}
	}
	return s
}

func NewVehicleSwitch(desc SwitchDescription, device domain.Device, vin string, scopes []string, opts Options) *Switch {
	s := newSwitch(desc, device, domain.Source{Kind: domain.COORDINATOR_VEHICLE, Key: vin}, Target{VIN: vin}, scopes)
	s.vehicle = true
	s.options = opts
	return s
}

func NewEnergyInfoSwitch(desc SwitchDescription, device domain.Device, siteId int64, scopes []string) *Switch {
	return newSwitch(desc, device, domain.Source{Kind: domain.COORDINATOR_ENERGY_INFO, Key: fmt.Sprint(siteId)}, Target{SiteId: siteId}, scopes)
}
