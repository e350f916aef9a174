package service

import (
	"fmt"

	"github.com/jeremywohl/flatten"
)

const (
	KEY_WALL_CONNECTORS = "wall_connectors"
	KEY_WALL_DIN        = "din"
	KEY_CACHED_DATA     = "cached_data"
	KEY_STATE           = "state"
)

// listValue hides a list from the flattener so it is kept as a single value.
type listValue []any

// Flatten joins nested object keys with underscores. Lists are leaf values and
// are not expanded.
func Flatten(data map[string]any) (map[string]any, error) {
	if data == nil {
		return map[string]any{}, nil
	}
	flat, err := flatten.Flatten(protectLists(data), "", flatten.UnderscoreStyle)
	if err != nil {
		return nil, err
	}
	for k, v := range flat {
		if list, ok := v.(listValue); ok {
			flat[k] = []any(list)
		}
	}
	return flat, nil
}

func protectLists(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		switch value := v.(type) {
		case map[string]any:
			out[k] = protectLists(value)
		case []any:
			out[k] = listValue(value)
		default:
			out[k] = v
		}
	}
	return out
}

// WallConnectorsByDIN replaces the wall_connectors list of an energy live
// status response with a map keyed by each connector's din. Records without a
// din are dropped. The input map is not modified.
func WallConnectorsByDIN(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}

	connectors := map[string]any{}
	if list, ok := data[KEY_WALL_CONNECTORS].([]any); ok {
		for _, item := range list {
			record, ok := item.(map[string]any)
			if !ok {
				continue
			}
			din, ok := record[KEY_WALL_DIN]
			if !ok || din == nil {
				continue
			}
			connectors[fmt.Sprint(din)] = record
		}
	}
	out[KEY_WALL_CONNECTORS] = connectors
	return out
}

// VehicleProductData returns the product record without its cached_data field,
// used as the initial data of a vehicle coordinator.
func VehicleProductData(product map[string]any) map[string]any {
	out := make(map[string]any, len(product))
	for k, v := range product {
		if k == KEY_CACHED_DATA {
			continue
		}
		out[k] = v
	}
	return out
}

// OfflineVehicleData keeps the previous data of a vehicle and marks it offline.
func OfflineVehicleData(previous map[string]any) map[string]any {
	out := make(map[string]any, len(previous)+1)
	for k, v := range previous {
		out[k] = v
	}
	out[KEY_STATE] = "offline"
	return out
}
