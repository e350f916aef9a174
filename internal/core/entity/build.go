package entity

import (
	"sort"

	"github.com/berfenger/teslemetry2mqtt/internal/core/domain"
	"github.com/berfenger/teslemetry2mqtt/internal/core/service"
)

type VehicleInput struct {
	VIN         string
	DisplayName string
	Data        map[string]any
}

type EnergySiteInput struct {
	SiteId   int64
	SiteName string
	// LiveData is the reshaped live status, InfoData the flattened site info.
	LiveData map[string]any
	InfoData map[string]any
}

type BuildInput struct {
	Scopes       []string
	BridgeDevice domain.Device
	Vehicles     []VehicleInput
	EnergySites  []EnergySiteInput
	Options      Options
}

// Build returns the entities of every product. Energy entities are only
// created when the site data shows the hardware they control.
func Build(in BuildInput) []Entity {
	var entities []Entity
	for _, vehicle := range in.Vehicles {
		entities = append(entities, buildVehicle(in, vehicle)...)
	}
	for _, site := range in.EnergySites {
		entities = append(entities, buildEnergySite(in, site)...)
	}
	return entities
}

func buildVehicle(in BuildInput, vehicle VehicleInput) []Entity {
	device := domain.VehicleDevice(vehicle.VIN, vehicle.DisplayName, in.BridgeDevice.Id)
	var entities []Entity
	for _, desc := range VehicleSensors {
		entities = append(entities, NewVehicleSensor(desc, device, vehicle.VIN))
	}
	for _, desc := range VehicleBinarySensors {
		entities = append(entities, NewVehicleBinarySensor(desc, device, vehicle.VIN))
	}
	for _, desc := range VehicleSwitches {
		entities = append(entities, NewVehicleSwitch(desc, device, vehicle.VIN, in.Scopes, in.Options))
	}
	for _, desc := range VehicleNumbers {
		entities = append(entities, NewVehicleNumber(desc, device, vehicle.VIN, in.Scopes, in.Options))
	}
	for _, desc := range SeatHeaters {
		entities = append(entities, NewSeatHeater(desc, device, vehicle.VIN, in.Scopes, in.Options))
	}
	return entities
}

func buildEnergySite(in BuildInput, site EnergySiteInput) []Entity {
	device := domain.EnergySiteDevice(site.SiteId, site.SiteName, in.BridgeDevice.Id)
	var entities []Entity

	for _, desc := range EnergyLiveSensors {
		if _, ok := site.LiveData[desc.Key]; ok {
			entities = append(entities, NewEnergyLiveSensor(desc, device, site.SiteId))
		}
	}
	for _, desc := range EnergyLiveBinarySensors {
		if _, ok := site.LiveData[desc.Key]; ok {
			entities = append(entities, NewEnergyLiveBinarySensor(desc, device, site.SiteId))
		}
	}

	connectors, _ := site.LiveData[service.KEY_WALL_CONNECTORS].(map[string]any)
	dins := make([]string, 0, len(connectors))
	for din := range connectors {
		dins = append(dins, din)
	}
	sort.Strings(dins)
	for _, din := range dins {
		wcDevice := domain.WallConnectorDevice(din, device.Id)
		for _, desc := range WallConnectorSensors {
			entities = append(entities, NewWallConnectorSensor(desc, wcDevice, site.SiteId, din))
		}
	}

	for _, desc := range EnergyInfoNumbers {
		if desc.Requires == "" || truthy(site.InfoData, desc.Requires) {
			entities = append(entities, NewEnergyInfoNumber(desc, device, site.SiteId, in.Scopes, in.Options))
		}
	}
	if truthy(site.InfoData, "components_battery") {
		entities = append(entities, NewOperationModeSelect(device, site.SiteId, in.Scopes))
		if truthy(site.InfoData, "components_solar") {
			entities = append(entities, NewExportRuleSelect(device, site.SiteId, in.Scopes))
		}
	}
	for _, desc := range EnergyInfoSwitches {
		if allTruthy(site.InfoData, desc.Requires) {
			entities = append(entities, NewEnergyInfoSwitch(desc, device, site.SiteId, in.Scopes))
		}
	}
	return entities
}

func allTruthy(data map[string]any, keys []string) bool {
	for _, key := range keys {
		if !truthy(data, key) {
			return false
		}
	}
	return true
}
