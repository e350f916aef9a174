package fleet_api

const (
	SCOPE_OPENID                = "openid"
	SCOPE_OFFLINE_ACCESS        = "offline_access"
	SCOPE_USER_DATA             = "user_data"
	SCOPE_VEHICLE_DEVICE_DATA   = "vehicle_device_data"
	SCOPE_VEHICLE_CMDS          = "vehicle_cmds"
	SCOPE_VEHICLE_CHARGING_CMDS = "vehicle_charging_cmds"
	SCOPE_ENERGY_DEVICE_DATA    = "energy_device_data"
	SCOPE_ENERGY_CMDS           = "energy_cmds"
)

const (
	VEHICLE_STATE_ONLINE  = "online"
	VEHICLE_STATE_ASLEEP  = "asleep"
	VEHICLE_STATE_OFFLINE = "offline"
)

// Seat positions for remote_seat_heater_request
const (
	SEAT_FRONT_LEFT  = 0
	SEAT_FRONT_RIGHT = 1
	SEAT_REAR_LEFT   = 2
	SEAT_REAR_CENTER = 4
	SEAT_REAR_RIGHT  = 5
	SEAT_THIRD_LEFT  = 6
	SEAT_THIRD_RIGHT = 7
)

const (
	OPERATION_MODE_AUTONOMOUS       = "autonomous"
	OPERATION_MODE_BACKUP           = "backup"
	OPERATION_MODE_SELF_CONSUMPTION = "self_consumption"

	EXPORT_RULE_NEVER      = "never"
	EXPORT_RULE_BATTERY_OK = "battery_ok"
	EXPORT_RULE_PV_ONLY    = "pv_only"
)

var VehicleDataEndpoints = []string{
	"charge_state",
	"climate_state",
	"closures_state",
	"drive_state",
	"gui_settings",
	"location_data",
	"vehicle_config",
	"vehicle_state",
}

type Response[T any] struct {
	Response T `json:"response"`
}

type Metadata struct {
	UID    string   `json:"uid"`
	Region string   `json:"region"`
	Scopes []string `json:"scopes"`
}

type CommandResult struct {
	Result bool   `json:"result"`
	Reason string `json:"reason"`
}

type EnergyCommandResult struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type GridImportExportParams struct {
	CustomerPreferredExportRule              *string `json:"customer_preferred_export_rule,omitempty"`
	DisallowChargeFromGridWithSolarInstalled *bool   `json:"disallow_charge_from_grid_with_solar_installed,omitempty"`
}
