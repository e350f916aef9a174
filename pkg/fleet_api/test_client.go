package fleet_api

import (
	"context"
	"fmt"
	"sync"
)

// TestClient is an in-memory stand-in for Client. Errors set on it are returned
// by the matching read operation; every command is recorded in Commands.
type TestClient struct {
	mu sync.Mutex

	Meta         *Metadata
	ProductList  []map[string]any
	Vehicles     map[string]map[string]any
	LiveStatuses map[int64]map[string]any
	SiteInfos    map[int64]map[string]any
	VehicleState string
	// StaysAsleep makes WakeUp report the vehicle as asleep.
	StaysAsleep bool

	MetadataErr    error
	ProductsErr    error
	VehicleDataErr error
	LiveStatusErr  error
	SiteInfoErr    error
	CommandErr     error

	Commands []TestCommand
}

type TestCommand struct {
	Target string
	Name   string
	Args   []any
}

func CreateTestClient() *TestClient {
	vin := "LRW3F7EK4NC000001"
	return &TestClient{
		Meta: &Metadata{
			UID:    "test-uid",
			Region: "eu",
			Scopes: []string{
				SCOPE_OPENID,
				SCOPE_OFFLINE_ACCESS,
				SCOPE_VEHICLE_DEVICE_DATA,
				SCOPE_VEHICLE_CMDS,
				SCOPE_VEHICLE_CHARGING_CMDS,
				SCOPE_ENERGY_DEVICE_DATA,
				SCOPE_ENERGY_CMDS,
			},
		},
		ProductList: []map[string]any{
			{
				"id":           float64(1234),
				"vehicle_id":   float64(5678),
				"vin":          vin,
				"display_name": "Test Model 3",
				"state":        VEHICLE_STATE_ONLINE,
				"cached_data":  "",
			},
			{
				"energy_site_id": float64(98765),
				"site_name":      "Home",
				"resource_type":  "battery",
				"components": map[string]any{
					"battery": true,
					"solar":   true,
				},
			},
		},
		Vehicles: map[string]map[string]any{
			vin: {
				"vin":   vin,
				"state": VEHICLE_STATE_ONLINE,
				"charge_state": map[string]any{
					"battery_level":              float64(72),
					"charge_current_request":     float64(16),
					"charge_current_request_max": float64(32),
					"charge_limit_soc":           float64(80),
					"charge_limit_soc_min":       float64(50),
					"charge_limit_soc_max":       float64(100),
					"charging_state":             "Stopped",
					"user_charge_enable_request": nil,
					"charge_port_door_open":      false,
					"battery_range":              float64(210.4),
				},
				"climate_state": map[string]any{
					"is_climate_on":    false,
					"seat_heater_left": float64(0),
					"inside_temp":      float64(19.5),
					"outside_temp":     float64(12),
				},
				"vehicle_state": map[string]any{
					"sentry_mode": false,
					"odometer":    float64(12345.6),
					"speed_limit_mode": map[string]any{
						"current_limit_mph": float64(70),
						"min_limit_mph":     float64(50),
						"max_limit_mph":     float64(120),
					},
				},
				"vehicle_config": map[string]any{
					"rear_seat_heaters": float64(1),
					"third_row_seats":   "None",
				},
			},
		},
		LiveStatuses: map[int64]map[string]any{
			98765: {
				"solar_power":        float64(3500),
				"battery_power":      float64(-1200),
				"grid_power":         float64(100),
				"load_power":         float64(2400),
				"percentage_charged": float64(64.5),
				"island_status":      "on_grid",
				"wall_connectors": []any{
					map[string]any{"din": "1152100-14-J--TG0000001", "wall_connector_state": float64(2), "wall_connector_power": float64(0)},
				},
			},
		},
		SiteInfos: map[int64]map[string]any{
			98765: {
				"id":                     "STE123",
				"site_name":              "Home",
				"backup_reserve_percent": float64(20),
				"default_real_mode":      OPERATION_MODE_SELF_CONSUMPTION,
				"components": map[string]any{
					"battery":                       true,
					"solar":                         true,
					"customer_preferred_export_rule": EXPORT_RULE_PV_ONLY,
				},
			},
		},
		VehicleState: VEHICLE_STATE_ONLINE,
	}
}

func (c *TestClient) record(target string, name string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Commands = append(c.Commands, TestCommand{Target: target, Name: name, Args: args})
	return c.CommandErr
}

func (c *TestClient) RecordedCommands() []TestCommand {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TestCommand, len(c.Commands))
	copy(out, c.Commands)
	return out
}

func (c *TestClient) Metadata(ctx context.Context) (*Metadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.MetadataErr != nil {
		return nil, c.MetadataErr
	}
	return c.Meta, nil
}

func (c *TestClient) Products(ctx context.Context) ([]map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ProductsErr != nil {
		return nil, c.ProductsErr
	}
	out := make([]map[string]any, 0, len(c.ProductList))
	for _, p := range c.ProductList {
		cp := make(map[string]any, len(p))
		for k, v := range p {
			cp[k] = v
		}
		out = append(out, cp)
	}
	return out, nil
}

func (c *TestClient) VehicleData(ctx context.Context, vin string) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.VehicleDataErr != nil {
		return nil, c.VehicleDataErr
	}
	data, ok := c.Vehicles[vin]
	if !ok {
		return nil, &FleetError{Status: 404, Key: "not_found"}
	}
	return data, nil
}

func (c *TestClient) WakeUp(ctx context.Context, vin string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Commands = append(c.Commands, TestCommand{Target: vin, Name: "wake_up"})
	if c.StaysAsleep {
		c.VehicleState = VEHICLE_STATE_ASLEEP
	} else {
		c.VehicleState = VEHICLE_STATE_ONLINE
	}
	return c.VehicleState, nil
}

func (c *TestClient) LiveStatus(ctx context.Context, siteId int64) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.LiveStatusErr != nil {
		return nil, c.LiveStatusErr
	}
	data, ok := c.LiveStatuses[siteId]
	if !ok {
		return nil, &FleetError{Status: 404, Key: "not_found"}
	}
	return data, nil
}

func (c *TestClient) SiteInfo(ctx context.Context, siteId int64) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SiteInfoErr != nil {
		return nil, c.SiteInfoErr
	}
	data, ok := c.SiteInfos[siteId]
	if !ok {
		return nil, &FleetError{Status: 404, Key: "not_found"}
	}
	return data, nil
}

func (c *TestClient) SetChargingAmps(ctx context.Context, vin string, amps int) error {
	return c.record(vin, "set_charging_amps", amps)
}

func (c *TestClient) SetChargeLimit(ctx context.Context, vin string, percent int) error {
	return c.record(vin, "set_charge_limit", percent)
}

func (c *TestClient) SpeedLimitSetLimit(ctx context.Context, vin string, limitMph float64) error {
	return c.record(vin, "speed_limit_set_limit", limitMph)
}

func (c *TestClient) RemoteSeatHeaterRequest(ctx context.Context, vin string, heater int, level int) error {
	return c.record(vin, "remote_seat_heater_request", heater, level)
}

func (c *TestClient) AutoConditioningStart(ctx context.Context, vin string) error {
	return c.record(vin, "auto_conditioning_start")
}

func (c *TestClient) AutoConditioningStop(ctx context.Context, vin string) error {
	return c.record(vin, "auto_conditioning_stop")
}

func (c *TestClient) ChargeStart(ctx context.Context, vin string) error {
	return c.record(vin, "charge_start")
}

func (c *TestClient) ChargeStop(ctx context.Context, vin string) error {
	return c.record(vin, "charge_stop")
}

func (c *TestClient) SetSentryMode(ctx context.Context, vin string, on bool) error {
	return c.record(vin, "set_sentry_mode", on)
}

func (c *TestClient) Backup(ctx context.Context, siteId int64, percent int) error {
	return c.record(fmt.Sprint(siteId), "backup", percent)
}

func (c *TestClient) OffGridVehicleChargingReserve(ctx context.Context, siteId int64, percent int) error {
	return c.record(fmt.Sprint(siteId), "off_grid_vehicle_charging_reserve", percent)
}

func (c *TestClient) Operation(ctx context.Context, siteId int64, mode string) error {
	return c.record(fmt.Sprint(siteId), "operation", mode)
}

func (c *TestClient) GridImportExport(ctx context.Context, siteId int64, params GridImportExportParams) error {
	rule := ""
	if params.CustomerPreferredExportRule != nil {
		rule = *params.CustomerPreferredExportRule
	}
	args := []any{rule}
	if params.DisallowChargeFromGridWithSolarInstalled != nil {
		args = append(args, *params.DisallowChargeFromGridWithSolarInstalled)
	}
	return c.record(fmt.Sprint(siteId), "grid_import_export", args...)
}

func (c *TestClient) StormMode(ctx context.Context, siteId int64, enabled bool) error {
	return c.record(fmt.Sprint(siteId), "storm_mode", enabled)
}
