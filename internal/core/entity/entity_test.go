package entity

import (
	"context"
	"testing"
	"time"

	"github.com/berfenger/teslemetry2mqtt/internal/core/domain"
	"github.com/berfenger/teslemetry2mqtt/internal/core/service"
	"github.com/berfenger/teslemetry2mqtt/pkg/fleet_api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testVIN    = "LRW3F7EK4NC000001"
	testSiteId = int64(98765)
)

var testOptions = Options{WakeUpAttempts: 2, WakeUpDelay: time.Millisecond}

type fixture struct {
	api     *fleet_api.TestClient
	input   BuildInput
	vehicle map[string]any
	live    map[string]any
	info    map[string]any
}

func newFixture(t *testing.T) *fixture {
	api := fleet_api.CreateTestClient()
	vehicle, err := service.Flatten(api.Vehicles[testVIN])
	require.NoError(t, err)
	info, err := service.Flatten(api.SiteInfos[testSiteId])
	require.NoError(t, err)
	live := service.WallConnectorsByDIN(api.LiveStatuses[testSiteId])

	return &fixture{
		api:     api,
		vehicle: vehicle,
		live:    live,
		info:    info,
		input: BuildInput{
			Scopes:       api.Meta.Scopes,
			BridgeDevice: domain.BridgeDevice("teslemetry"),
			Vehicles:     []VehicleInput{{VIN: testVIN, DisplayName: "Test Model 3", Data: vehicle}},
			EnergySites:  []EnergySiteInput{{SiteId: testSiteId, SiteName: "Home", LiveData: live, InfoData: info}},
			Options:      testOptions,
		},
	}
}

func find(t *testing.T, entities []Entity, key string) Entity {
	for _, e := range entities {
		if e.Key() == key {
			return e
		}
	}
	t.Fatalf("entity %s not registered", key)
	return nil
}

func has(entities []Entity, key string) bool {
	for _, e := range entities {
		if e.Key() == key {
			return true
		}
	}
	return false
}

func countByPlatform(entities []Entity) map[string]int {
	out := map[string]int{}
	for _, e := range entities {
		out[e.Platform()]++
	}
	return out
}

func TestBuildVehicle(t *testing.T) {
	f := newFixture(t)
	f.input.EnergySites = nil

	entities := Build(f.input)

	assert.Equal(t, map[string]int{
		domain.PLATFORM_SENSOR:        len(VehicleSensors),
		domain.PLATFORM_BINARY_SENSOR: len(VehicleBinarySensors),
		domain.PLATFORM_SWITCH:        len(VehicleSwitches),
		domain.PLATFORM_NUMBER:        len(VehicleNumbers),
		domain.PLATFORM_SELECT:        len(SeatHeaters),
	}, countByPlatform(entities))

	limit := find(t, entities, "charge_state_charge_limit_soc")
	assert.Equal(t, "tesla_lrw3f7ek4nc000001_charge_state_charge_limit_soc", limit.Id())
	assert.Equal(t, "Model 3", limit.Device().Model)
	assert.Equal(t, testVIN, limit.Device().SerialNumber)
	assert.Equal(t, domain.Source{Kind: domain.COORDINATOR_VEHICLE, Key: testVIN}, limit.Source())
}

func TestBuildEnergySite(t *testing.T) {
	f := newFixture(t)
	f.input.Vehicles = nil

	entities := Build(f.input)

	for _, key := range []string{"solar_power", "battery_power", "grid_power", "load_power", "percentage_charged", "island_status"} {
		assert.True(t, has(entities, key), key)
	}
	// missing from live status
	assert.False(t, has(entities, "generator_power"))
	assert.False(t, has(entities, "backup_capable"))

	assert.True(t, has(entities, "backup_reserve_percent"))
	assert.False(t, has(entities, "off_grid_vehicle_charging_reserve"))
	assert.True(t, has(entities, KEY_OPERATION_MODE))
	assert.True(t, has(entities, KEY_EXPORT_RULE))
	assert.True(t, has(entities, "components_disallow_charge_from_grid_with_solar_installed"))
	assert.False(t, has(entities, "user_settings_storm_mode_enabled"))

	wc := find(t, entities, "wall_connector_power")
	assert.Equal(t, "tesla_wc_1152100_14_j_tg0000001", wc.Device().Id)
	assert.Equal(t, "tesla_site_98765", wc.Device().ViaDevice)
}

func TestBuildEnergySiteWithoutBattery(t *testing.T) {
	f := newFixture(t)
	f.input.Vehicles = nil
	f.info["components_battery"] = false
	f.info["components_off_grid_vehicle_charging_reserve_supported"] = true
	f.info["components_storm_mode_capable"] = true

	entities := Build(f.input)

	assert.False(t, has(entities, "backup_reserve_percent"))
	assert.True(t, has(entities, "off_grid_vehicle_charging_reserve"))
	assert.False(t, has(entities, KEY_OPERATION_MODE))
	assert.False(t, has(entities, KEY_EXPORT_RULE))
	assert.True(t, has(entities, "user_settings_storm_mode_enabled"))
	assert.False(t, has(entities, "components_disallow_charge_from_grid_with_solar_installed"))
}

func TestRenderNumber(t *testing.T) {
	f := newFixture(t)
	entities := Build(f.input)

	rendered := find(t, entities, "charge_state_charge_limit_soc").Render(f.vehicle)
	assert.True(t, rendered.Available)
	assert.Equal(t, "80", rendered.State)
	event, ok := rendered.Event.(domain.InputNumberSensorUpdateEvent)
	require.True(t, ok)
	assert.Equal(t, float64(80), event.Value)

	discovery := find(t, entities, "charge_state_charge_current_request").Discovery(f.vehicle)
	require.Len(t, discovery.InputNumbers, 1)
	assert.Equal(t, float64(0), *discovery.InputNumbers[0].Min)
	assert.Equal(t, float64(32), *discovery.InputNumbers[0].Max)
}

func TestRenderMissingValue(t *testing.T) {
	f := newFixture(t)
	entities := Build(f.input)

	rendered := find(t, entities, "drive_state_power").Render(f.vehicle)
	assert.Equal(t, "unknown", rendered.State)
	_, ok := rendered.Event.(domain.UnknownStateUpdateEvent)
	assert.True(t, ok)
}

func TestEnergyNumberBatteryIcon(t *testing.T) {
	f := newFixture(t)
	entities := Build(f.input)

	discovery := find(t, entities, "backup_reserve_percent").Discovery(f.info)
	require.Len(t, discovery.InputNumbers, 1)
	assert.Equal(t, "mdi:battery-20", discovery.InputNumbers[0].Icon)
}

func TestNumberCommand(t *testing.T) {
	f := newFixture(t)
	entities := Build(f.input)

	number := find(t, entities, "charge_state_charge_limit_soc").(Commandable)
	cmd, err := number.Command(f.vehicle, "90")
	require.NoError(t, err)
	require.NoError(t, cmd.Exec(context.Background(), f.api))

	assert.Equal(t, []fleet_api.TestCommand{
		{Target: testVIN, Name: "set_charge_limit", Args: []any{90}},
	}, f.api.RecordedCommands())
	assert.Equal(t, float64(90), cmd.Updates["charge_state_charge_limit_soc"])
}

func TestNumberCommandOutOfRange(t *testing.T) {
	f := newFixture(t)
	entities := Build(f.input)

	number := find(t, entities, "charge_state_charge_limit_soc").(Commandable)
	_, err := number.Command(f.vehicle, "20")
	assert.ErrorIs(t, err, ErrInvalidPayload)
	_, err = number.Command(f.vehicle, "eighty")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestCommandRequiresScope(t *testing.T) {
	f := newFixture(t)
	f.input.Scopes = []string{fleet_api.SCOPE_VEHICLE_DEVICE_DATA, fleet_api.SCOPE_VEHICLE_CHARGING_CMDS}
	entities := Build(f.input)

	_, err := find(t, entities, "vehicle_state_speed_limit_mode_current_limit_mph").(Commandable).Command(f.vehicle, "80")
	assert.ErrorIs(t, err, ErrMissingScope)
	_, err = find(t, entities, "climate_state_seat_heater_left").(Commandable).Command(f.vehicle, SEAT_HEATER_LOW)
	assert.ErrorIs(t, err, ErrMissingScope)

	// charging commands are enough for the charge limit
	_, err = find(t, entities, "charge_state_charge_limit_soc").(Commandable).Command(f.vehicle, "85")
	assert.NoError(t, err)
}

func TestCommandWakesUpAsleepVehicle(t *testing.T) {
	f := newFixture(t)
	entities := Build(f.input)
	f.vehicle[service.KEY_STATE] = fleet_api.VEHICLE_STATE_ASLEEP

	cmd, err := find(t, entities, "charge_state_charge_current_request").(Commandable).Command(f.vehicle, "10")
	require.NoError(t, err)
	require.NoError(t, cmd.Exec(context.Background(), f.api))

	assert.Equal(t, []fleet_api.TestCommand{
		{Target: testVIN, Name: "wake_up"},
		{Target: testVIN, Name: "set_charging_amps", Args: []any{10}},
	}, f.api.RecordedCommands())
	assert.Equal(t, fleet_api.VEHICLE_STATE_ONLINE, cmd.Updates[service.KEY_STATE])
}

func TestCommandVehicleDoesNotWakeUp(t *testing.T) {
	f := newFixture(t)
	f.api.StaysAsleep = true
	entities := Build(f.input)
	f.vehicle[service.KEY_STATE] = fleet_api.VEHICLE_STATE_ASLEEP

	cmd, err := find(t, entities, "charge_state_charge_current_request").(Commandable).Command(f.vehicle, "10")
	require.NoError(t, err)
	err = cmd.Exec(context.Background(), f.api)
	assert.ErrorIs(t, err, ErrNotAwake)

	commands := f.api.RecordedCommands()
	assert.Len(t, commands, int(testOptions.WakeUpAttempts))
	for _, c := range commands {
		assert.Equal(t, "wake_up", c.Name)
	}
}

func TestSeatHeater(t *testing.T) {
	f := newFixture(t)
	entities := Build(f.input)

	left := find(t, entities, "climate_state_seat_heater_left")
	rendered := left.Render(f.vehicle)
	assert.Equal(t, SEAT_HEATER_OFF, rendered.State)
	assert.True(t, rendered.Available)

	cmd, err := left.(Commandable).Command(f.vehicle, SEAT_HEATER_MEDIUM)
	require.NoError(t, err)
	require.NoError(t, cmd.Exec(context.Background(), f.api))

	assert.Equal(t, []fleet_api.TestCommand{
		{Target: testVIN, Name: "auto_conditioning_start"},
		{Target: testVIN, Name: "remote_seat_heater_request", Args: []any{fleet_api.SEAT_FRONT_LEFT, 2}},
	}, f.api.RecordedCommands())
	assert.Equal(t, 2, cmd.Updates["climate_state_seat_heater_left"])
	assert.Equal(t, true, cmd.Updates[KEY_CLIMATE_ON])

	_, err = left.(Commandable).Command(f.vehicle, "scorching")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestSeatHeaterClimateAlreadyOn(t *testing.T) {
	f := newFixture(t)
	entities := Build(f.input)
	f.vehicle[KEY_CLIMATE_ON] = true

	cmd, err := find(t, entities, "climate_state_seat_heater_right").(Commandable).Command(f.vehicle, SEAT_HEATER_HIGH)
	require.NoError(t, err)
	require.NoError(t, cmd.Exec(context.Background(), f.api))

	assert.Equal(t, []fleet_api.TestCommand{
		{Target: testVIN, Name: "remote_seat_heater_request", Args: []any{fleet_api.SEAT_FRONT_RIGHT, 3}},
	}, f.api.RecordedCommands())
}

func TestSeatHeaterAvailability(t *testing.T) {
	f := newFixture(t)
	entities := Build(f.input)

	rear := find(t, entities, "climate_state_seat_heater_rear_left")
	third := find(t, entities, "climate_state_seat_heater_third_row_left")

	assert.True(t, rear.Render(f.vehicle).Available)
	assert.False(t, third.Render(f.vehicle).Available)

	f.vehicle["vehicle_config_rear_seat_heaters"] = float64(0)
	f.vehicle["vehicle_config_third_row_seats"] = "FuturisFoldFlat"
	assert.False(t, rear.Render(f.vehicle).Available)
	assert.True(t, third.Render(f.vehicle).Available)

	discovery := rear.Discovery(f.vehicle)
	require.Len(t, discovery.Selects, 1)
	require.NotNil(t, discovery.Selects[0].EnabledByDefault)
	assert.False(t, *discovery.Selects[0].EnabledByDefault)
	assert.Equal(t, SeatHeaterOptions, discovery.Selects[0].Options)
}

func TestExportRuleSelect(t *testing.T) {
	f := newFixture(t)
	entities := Build(f.input)

	sel := find(t, entities, KEY_EXPORT_RULE)
	assert.Equal(t, fleet_api.EXPORT_RULE_PV_ONLY, sel.Render(f.info).State)

	delete(f.info, KEY_EXPORT_RULE)
	assert.Equal(t, fleet_api.EXPORT_RULE_NEVER, sel.Render(f.info).State)

	cmd, err := sel.(Commandable).Command(f.info, fleet_api.EXPORT_RULE_BATTERY_OK)
	require.NoError(t, err)
	require.NoError(t, cmd.Exec(context.Background(), f.api))
	assert.Equal(t, []fleet_api.TestCommand{
		{Target: "98765", Name: "grid_import_export", Args: []any{fleet_api.EXPORT_RULE_BATTERY_OK}},
	}, f.api.RecordedCommands())
}

func TestOperationModeSelect(t *testing.T) {
	f := newFixture(t)
	entities := Build(f.input)

	sel := find(t, entities, KEY_OPERATION_MODE)
	assert.Equal(t, fleet_api.OPERATION_MODE_SELF_CONSUMPTION, sel.Render(f.info).State)

	cmd, err := sel.(Commandable).Command(f.info, fleet_api.OPERATION_MODE_BACKUP)
	require.NoError(t, err)
	require.NoError(t, cmd.Exec(context.Background(), f.api))
	assert.Equal(t, "operation", f.api.RecordedCommands()[0].Name)
	assert.Equal(t, fleet_api.OPERATION_MODE_BACKUP, cmd.Updates[KEY_OPERATION_MODE])
}

func TestInvertedSwitch(t *testing.T) {
	f := newFixture(t)
	entities := Build(f.input)
	f.info["components_disallow_charge_from_grid_with_solar_installed"] = false

	sw := find(t, entities, "components_disallow_charge_from_grid_with_solar_installed")
	assert.Equal(t, "on", sw.Render(f.info).State)

	cmd, err := sw.(Commandable).Command(f.info, "OFF")
	require.NoError(t, err)
	require.NoError(t, cmd.Exec(context.Background(), f.api))
	assert.Equal(t, []fleet_api.TestCommand{
		{Target: "98765", Name: "grid_import_export", Args: []any{"", true}},
	}, f.api.RecordedCommands())
	assert.Equal(t, true, cmd.Updates["components_disallow_charge_from_grid_with_solar_installed"])
}

func TestChargeSwitchFallback(t *testing.T) {
	f := newFixture(t)
	entities := Build(f.input)
	sw := find(t, entities, "charge_state_user_charge_enable_request")

	assert.Equal(t, "unknown", sw.Render(f.vehicle).State)
	f.vehicle["charge_state_charge_enable_request"] = true
	assert.Equal(t, "on", sw.Render(f.vehicle).State)
}

func TestWallConnectorSensor(t *testing.T) {
	f := newFixture(t)
	entities := Build(f.input)

	rendered := find(t, entities, "wall_connector_state").Render(f.live)
	assert.True(t, rendered.Available)
	assert.Equal(t, "2", rendered.State)

	delete(f.live, service.KEY_WALL_CONNECTORS)
	assert.False(t, find(t, entities, "wall_connector_state").Render(f.live).Available)
}

func TestVehicleBinarySensors(t *testing.T) {
	f := newFixture(t)
	entities := Build(f.input)

	status := find(t, entities, service.KEY_STATE)
	assert.Equal(t, "on", status.Render(f.vehicle).State)
	f.vehicle[service.KEY_STATE] = fleet_api.VEHICLE_STATE_OFFLINE
	assert.Equal(t, "off", status.Render(f.vehicle).State)

	f.vehicle["vehicle_state_locked"] = true
	assert.Equal(t, "off", find(t, entities, "vehicle_state_locked").Render(f.vehicle).State)
}

func TestEnumSensor(t *testing.T) {
	f := newFixture(t)
	entities := Build(f.input)

	charging := find(t, entities, "charge_state_charging_state")
	assert.Equal(t, "stopped", charging.Render(f.vehicle).State)
	discovery := charging.Discovery(f.vehicle)
	require.Len(t, discovery.Sensors, 1)
	assert.Equal(t, domain.DEVICE_CLASS_ENUM, discovery.Sensors[0].DeviceClass)
}

func TestIconForBatteryLevel(t *testing.T) {
	level := func(v float64) *float64 { return &v }
	assert.Equal(t, "mdi:battery-unknown", IconForBatteryLevel(nil, false))
	assert.Equal(t, "mdi:battery-alert", IconForBatteryLevel(level(3), false))
	assert.Equal(t, "mdi:battery-50", IconForBatteryLevel(level(50), false))
	assert.Equal(t, "mdi:battery", IconForBatteryLevel(level(100), false))
	assert.Equal(t, "mdi:battery-outline", IconForBatteryLevel(level(5), true))
	assert.Equal(t, "mdi:battery-charging-60", IconForBatteryLevel(level(55), true))
}
