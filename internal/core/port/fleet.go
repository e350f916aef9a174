package port

import (
	"context"

	"github.com/berfenger/teslemetry2mqtt/pkg/fleet_api"
	"github.com/berfenger/teslemetry2mqtt/pkg/telemetry_stream"
)

type FleetReader interface {
	Metadata(ctx context.Context) (*fleet_api.Metadata, error)
	Products(ctx context.Context) ([]map[string]any, error)
	VehicleData(ctx context.Context, vin string) (map[string]any, error)
	LiveStatus(ctx context.Context, siteId int64) (map[string]any, error)
	SiteInfo(ctx context.Context, siteId int64) (map[string]any, error)
}

type VehicleCommands interface {
	WakeUp(ctx context.Context, vin string) (string, error)
	SetChargingAmps(ctx context.Context, vin string, amps int) error
	SetChargeLimit(ctx context.Context, vin string, percent int) error
	SpeedLimitSetLimit(ctx context.Context, vin string, limitMph float64) error
	RemoteSeatHeaterRequest(ctx context.Context, vin string, heater int, level int) error
	AutoConditioningStart(ctx context.Context, vin string) error
	AutoConditioningStop(ctx context.Context, vin string) error
	ChargeStart(ctx context.Context, vin string) error
	ChargeStop(ctx context.Context, vin string) error
	SetSentryMode(ctx context.Context, vin string, on bool) error
}

type EnergyCommands interface {
	Backup(ctx context.Context, siteId int64, percent int) error
	OffGridVehicleChargingReserve(ctx context.Context, siteId int64, percent int) error
	Operation(ctx context.Context, siteId int64, mode string) error
	GridImportExport(ctx context.Context, siteId int64, params fleet_api.GridImportExportParams) error
	StormMode(ctx context.Context, siteId int64, enabled bool) error
}

// FleetAPI is the subset of the Teslemetry API the bridge uses.
type FleetAPI interface {
	FleetReader
	VehicleCommands
	EnergyCommands
}

type StreamAPI interface {
	GetConfig(ctx context.Context, vin string) (*telemetry_stream.Config, error)
	Listen(ctx context.Context, vin string, handler func(telemetry_stream.Event)) error
}

// CommandFunc runs a write against the fleet API. It is built by an entity and
// executed by the actor owning the API client.
type CommandFunc func(ctx context.Context, api FleetAPI) error

// ensure interface compliance
var _ FleetAPI = (*fleet_api.Client)(nil)
var _ FleetAPI = (*fleet_api.TestClient)(nil)
var _ StreamAPI = (*telemetry_stream.Client)(nil)
var _ StreamAPI = (*telemetry_stream.TestClient)(nil)
