package entity

import (
	"context"
	"fmt"

	"github.com/berfenger/teslemetry2mqtt/internal/core/domain"
	"github.com/berfenger/teslemetry2mqtt/internal/core/port"
	"github.com/berfenger/teslemetry2mqtt/pkg/fleet_api"
	"github.com/thoas/go-funk"
)

const (
	KEY_CLIMATE_ON = "climate_state_is_climate_on"

	SEAT_HEATER_OFF    = "off"
	SEAT_HEATER_LOW    = "low"
	SEAT_HEATER_MEDIUM = "medium"
	SEAT_HEATER_HIGH   = "high"
)

var SeatHeaterOptions = []string{SEAT_HEATER_OFF, SEAT_HEATER_LOW, SEAT_HEATER_MEDIUM, SEAT_HEATER_HIGH}

type SeatHeaterDescription struct {
	Key              string
	Name             string
	Position         int
	EnabledByDefault bool
	Available        func(data map[string]any) bool
}

func rearSeatHeaters(data map[string]any) bool {
	return !exactly(data, "vehicle_config_rear_seat_heaters", 0)
}

func thirdRowSeats(data map[string]any) bool {
	return !exactly(data, "vehicle_config_third_row_seats", "None")
}

var SeatHeaters = []SeatHeaterDescription{
	{Key: "climate_state_seat_heater_left", Name: "Seat heater front left", Position: fleet_api.SEAT_FRONT_LEFT, EnabledByDefault: true},
	{Key: "climate_state_seat_heater_right", Name: "Seat heater front right", Position: fleet_api.SEAT_FRONT_RIGHT, EnabledByDefault: true},
	{Key: "climate_state_seat_heater_rear_left", Name: "Seat heater rear left", Position: fleet_api.SEAT_REAR_LEFT, Available: rearSeatHeaters},
	{Key: "climate_state_seat_heater_rear_center", Name: "Seat heater rear center", Position: fleet_api.SEAT_REAR_CENTER, Available: rearSeatHeaters},
	{Key: "climate_state_seat_heater_rear_right", Name: "Seat heater rear right", Position: fleet_api.SEAT_REAR_RIGHT, Available: rearSeatHeaters},
	{Key: "climate_state_seat_heater_third_row_left", Name: "Seat heater third row left", Position: fleet_api.SEAT_THIRD_LEFT, Available: thirdRowSeats},
	{Key: "climate_state_seat_heater_third_row_right", Name: "Seat heater third row right", Position: fleet_api.SEAT_THIRD_RIGHT, Available: thirdRowSeats},
}

type Select struct {
	base
	options  []string
	optionOf func(data map[string]any) (string, bool)
	command  func(data map[string]any, option string) (port.CommandFunc, map[string]any)
}

func (s *Select) Options() []string {
	return s.options
}

func (s *Select) Render(data map[string]any) Rendered {
	available := s.available(data)
	option, ok := s.optionOf(data)
	if !ok {
		return s.unknown(available)
	}
	return Rendered{
		Available: available,
		Event: domain.SelectUpdateEvent{
			SensorUpdateEventMixIn: s.mixin(),
			Value:                  option,
		},
		State: option,
	}
}

func (s *Select) Discovery(data map[string]any) domain.Discovery {
	return domain.Discovery{
		Selects: []domain.GenericSelect{{
			Device:           s.device,
			Id:               s.id,
			Name:             s.name,
			UniqueId:         s.uniqueId(),
			Icon:             s.icon,
			Options:          s.options,
			EntityCategory:   s.entityCategory,
			EnabledByDefault: s.enabledByDefaultPtr(),
			Availability:     true,
		}},
	}
}

func (s *Select) Command(data map[string]any, payload string) (*Command, error) {
	if err := s.raiseForScope(); err != nil {
		return nil, err
	}
	if !funk.ContainsString(s.options, payload) {
		return nil, fmt.Errorf("%w: %q is not one of %v", ErrInvalidPayload, payload, s.options)
	}
	exec, updates := s.command(data, payload)
	return &Command{
		Description: fmt.Sprintf("%s %s=%s", s.target, s.key, payload),
		Exec:        exec,
		Updates:     updates,
	}, nil
}

func NewSeatHeater(desc SeatHeaterDescription, device domain.Device, vin string, scopes []string, opts Options) *Select {
	s := &Select{
		base:    newBase(domain.PLATFORM_SELECT, desc.Key, desc.Name, device, domain.Source{Kind: domain.COORDINATOR_VEHICLE, Key: vin}, Target{VIN: vin}),
		options: SeatHeaterOptions,
	}
	s.scoped = hasAnyScope(scopes, []string{fleet_api.SCOPE_VEHICLE_CMDS})
	s.enabledByDefault = desc.EnabledByDefault
	s.availableFn = desc.Available
	s.icon = "mdi:car-seat-heater"
	s.optionOf = func(data map[string]any) (string, bool) {
		v, ok := s.valueOf(data)
		if !ok {
			return "", false
		}
		level, ok := toInt(v)
		if !ok || level < 0 || level >= len(SeatHeaterOptions) {
			return "", false
		}
		return SeatHeaterOptions[level], true
	}
	s.command = func(data map[string]any, option string) (port.CommandFunc, map[string]any) {
		level := funk.IndexOfString(SeatHeaterOptions, option)
		climateOn := truthy(data, KEY_CLIMATE_ON)
		exec := withWakeUp(vin, vehicleState(data), opts, func(ctx context.Context, api port.FleetAPI) error {
			if !climateOn {
				if err := api.AutoConditioningStart(ctx, vin); err != nil {
					return err
				}
			}
			return api.RemoteSeatHeaterRequest(ctx, vin, desc.Position, level)
		})
		return exec, map[string]any{
			desc.Key:       level,
			KEY_CLIMATE_ON: true,
			"state":        fleet_api.VEHICLE_STATE_ONLINE,
		}
	}
	return s
}

var OperationModes = []string{
	fleet_api.OPERATION_MODE_AUTONOMOUS,
	fleet_api.OPERATION_MODE_BACKUP,
	fleet_api.OPERATION_MODE_SELF_CONSUMPTION,
}

var ExportRules = []string{
	fleet_api.EXPORT_RULE_NEVER,
	fleet_api.EXPORT_RULE_BATTERY_OK,
	fleet_api.EXPORT_RULE_PV_ONLY,
}

const (
	KEY_OPERATION_MODE = "default_real_mode"
	KEY_EXPORT_RULE    = "components_customer_preferred_export_rule"
)

func energySelect(key string, name string, device domain.Device, siteId int64, scopes []string, options []string) *Select {
	s := &Select{
		base:    newBase(domain.PLATFORM_SELECT, key, name, device, domain.Source{Kind: domain.COORDINATOR_ENERGY_INFO, Key: fmt.Sprint(siteId)}, Target{SiteId: siteId}),
		options: options,
	}
	s.scoped = hasAnyScope(scopes, []string{fleet_api.SCOPE_ENERGY_CMDS})
	s.optionOf = func(data map[string]any) (string, bool) {
		v, ok := s.valueOf(data)
		if !ok {
			return "", false
		}
		option, ok := v.(string)
		return option, ok
	}
	return s
}

func NewOperationModeSelect(device domain.Device, siteId int64, scopes []string) *Select {
	s := energySelect(KEY_OPERATION_MODE, "Operation mode", device, siteId, scopes, OperationModes)
	s.icon = "mdi:home-battery"
	s.command = func(data map[string]any, option string) (port.CommandFunc, map[string]any) {
		return func(ctx context.Context, api port.FleetAPI) error {
			return api.Operation(ctx, siteId, option)
		}, map[string]any{KEY_OPERATION_MODE: option}
	}
	return s
}

func NewExportRuleSelect(device domain.Device, siteId int64, scopes []string) *Select {
	s := energySelect(KEY_EXPORT_RULE, "Allow export", device, siteId, scopes, ExportRules)
	s.icon = "mdi:transmission-tower-export"
	// a site without a preference never exports
	s.valueOf = func(data map[string]any) (any, bool) {
		if v, ok := get(data, KEY_EXPORT_RULE); ok {
			return v, true
		}
		return fleet_api.EXPORT_RULE_NEVER, true
	}
	s.command = func(data map[string]any, option string) (port.CommandFunc, map[string]any) {
		return func(ctx context.Context, api port.FleetAPI) error {
			rule := option
			return api.GridImportExport(ctx, siteId, fleet_api.GridImportExportParams{CustomerPreferredExportRule: &rule})
		}, map[string]any{KEY_EXPORT_RULE: option}
	}
	return s
}
