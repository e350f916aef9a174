package service

import (
	"errors"
	"fmt"

	"github.com/berfenger/teslemetry2mqtt/pkg/fleet_api"
	"github.com/mitchellh/mapstructure"
	"github.com/thoas/go-funk"
)

var (
	ErrSetupFatal    = errors.New("setup failed")
	ErrSetupNotReady = errors.New("setup not ready")
)

type VehicleProduct struct {
	VIN         string `mapstructure:"vin"`
	VehicleId   int64  `mapstructure:"vehicle_id"`
	DisplayName string `mapstructure:"display_name"`
	State       string `mapstructure:"state"`
	// Data is the product record without cached_data.
	Data map[string]any `mapstructure:"-"`
}

type EnergySiteProduct struct {
	SiteId       int64          `mapstructure:"energy_site_id"`
	SiteName     string         `mapstructure:"site_name"`
	ResourceType string         `mapstructure:"resource_type"`
	// Data is the flattened product record, keyed like a site_info refresh.
	Data map[string]any `mapstructure:"-"`
}

type Products struct {
	Vehicles    []VehicleProduct
	EnergySites []EnergySiteProduct
}

// PartitionProducts splits the product list in vehicles and energy sites. A
// product is only kept when the token holds the data scope of its kind.
func PartitionProducts(products []map[string]any, scopes []string) (*Products, error) {
	vehicleScope := HasScope(scopes, fleet_api.SCOPE_VEHICLE_DEVICE_DATA)
	energyScope := HasScope(scopes, fleet_api.SCOPE_ENERGY_DEVICE_DATA)

	result := &Products{}
	for _, product := range products {
		if _, ok := product["vin"]; ok && vehicleScope {
			var vehicle VehicleProduct
			if err := decodeProduct(product, &vehicle); err != nil {
				return nil, err
			}
			vehicle.Data = VehicleProductData(product)
			result.Vehicles = append(result.Vehicles, vehicle)
		} else if _, ok := product["energy_site_id"]; ok && energyScope {
			var site EnergySiteProduct
			if err := decodeProduct(product, &site); err != nil {
				return nil, err
			}
			data, err := Flatten(product)
			if err != nil {
				return nil, err
			}
			site.Data = data
			result.EnergySites = append(result.EnergySites, site)
		}
	}
	return result, nil
}

func decodeProduct(product map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(product); err != nil {
		return fmt.Errorf("%w: %v", fleet_api.ErrInvalidResponse, err)
	}
	return nil
}

func HasScope(scopes []string, scope string) bool {
	return funk.ContainsString(scopes, scope)
}

// HasAnyScope reports whether at least one of the wanted scopes was granted.
func HasAnyScope(scopes []string, wanted ...string) bool {
	for _, scope := range wanted {
		if HasScope(scopes, scope) {
			return true
		}
	}
	return false
}

// ClassifySetupError maps an error raised while setting up the bridge to
// ErrSetupFatal (the credential can never work) or ErrSetupNotReady (setup
// should be retried later). The returned error wraps both the class and err.
func ClassifySetupError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, fleet_api.ErrInvalidToken):
		return fmt.Errorf("%w: access token is invalid: %w", ErrSetupFatal, err)
	case errors.Is(err, fleet_api.ErrPaymentRequired):
		return fmt.Errorf("%w: subscription required: %w", ErrSetupFatal, err)
	default:
		return fmt.Errorf("%w: %w", ErrSetupNotReady, err)
	}
}

// AuthErrorKey returns the error key reported when validating an access token.
// Transport failures map to cannot_connect, any other API error to unknown.
func AuthErrorKey(err error) string {
	var fleetErr *fleet_api.FleetError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, fleet_api.ErrInvalidToken):
		return "invalid_access_token"
	case errors.Is(err, fleet_api.ErrSubscriptionRequired):
		return "subscription_required"
	case errors.Is(err, fleet_api.ErrLoginRequired):
		return "login_required"
	case errors.Is(err, fleet_api.ErrForbidden):
		return "forbidden"
	case errors.As(err, &fleetErr), errors.Is(err, fleet_api.ErrInvalidResponse):
		return "unknown"
	default:
		return "cannot_connect"
	}
}
