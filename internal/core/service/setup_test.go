package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/berfenger/teslemetry2mqtt/pkg/fleet_api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProducts() []map[string]any {
	return []map[string]any{
		{"vin": "5YJ3E1EA7KF000001", "vehicle_id": float64(11), "display_name": "Red", "cached_data": "x"},
		{"energy_site_id": float64(2233), "site_name": "Home", "resource_type": "battery",
			"components": map[string]any{"battery": true, "wall_connectors": []any{map[string]any{"din": "W1"}}}},
		{"energy_site_id": "4455", "site_name": "Cabin"},
		{"id": float64(1), "unknown_product": true},
	}
}

func TestPartitionProductsAllScopes(t *testing.T) {
	products, err := PartitionProducts(testProducts(), []string{
		fleet_api.SCOPE_VEHICLE_DEVICE_DATA,
		fleet_api.SCOPE_ENERGY_DEVICE_DATA,
	})
	require.NoError(t, err)

	require.Len(t, products.Vehicles, 1)
	assert.Equal(t, "5YJ3E1EA7KF000001", products.Vehicles[0].VIN)
	assert.Equal(t, "Red", products.Vehicles[0].DisplayName)
	assert.NotContains(t, products.Vehicles[0].Data, "cached_data")

	require.Len(t, products.EnergySites, 2)
	assert.Equal(t, int64(2233), products.EnergySites[0].SiteId)
	assert.Equal(t, int64(4455), products.EnergySites[1].SiteId)

	// site data is keyed like a site_info refresh from the start
	site := products.EnergySites[0].Data
	assert.Equal(t, true, site["components_battery"])
	assert.Equal(t, []any{map[string]any{"din": "W1"}}, site["components_wall_connectors"])
	assert.NotContains(t, site, "components")
}

func TestPartitionProductsByScope(t *testing.T) {
	products, err := PartitionProducts(testProducts(), []string{fleet_api.SCOPE_ENERGY_DEVICE_DATA})
	require.NoError(t, err)
	assert.Empty(t, products.Vehicles)
	assert.Len(t, products.EnergySites, 2)

	products, err = PartitionProducts(testProducts(), []string{fleet_api.SCOPE_VEHICLE_DEVICE_DATA})
	require.NoError(t, err)
	assert.Len(t, products.Vehicles, 1)
	assert.Empty(t, products.EnergySites)

	products, err = PartitionProducts(testProducts(), nil)
	require.NoError(t, err)
	assert.Empty(t, products.Vehicles)
	assert.Empty(t, products.EnergySites)
}

func TestPartitionProductsInvalid(t *testing.T) {
	_, err := PartitionProducts([]map[string]any{{"vin": map[string]any{"a": 1}}}, []string{fleet_api.SCOPE_VEHICLE_DEVICE_DATA})
	assert.ErrorIs(t, err, fleet_api.ErrInvalidResponse)
}

func TestClassifySetupError(t *testing.T) {
	assert.Nil(t, ClassifySetupError(nil))

	cases := []struct {
		err   error
		class error
	}{
		{&fleet_api.FleetError{Status: 401, Key: "invalid_token"}, ErrSetupFatal},
		{&fleet_api.FleetError{Status: 402, Key: "payment_required"}, ErrSetupFatal},
		{&fleet_api.FleetError{Status: 402, Key: "subscription_required"}, ErrSetupNotReady},
		{&fleet_api.FleetError{Status: 401, Key: "login_required"}, ErrSetupNotReady},
		{&fleet_api.FleetError{Status: 500, Key: "http_500"}, ErrSetupNotReady},
		{fmt.Errorf("%w: bad json", fleet_api.ErrInvalidResponse), ErrSetupNotReady},
		{errors.New("dial tcp: timeout"), ErrSetupNotReady},
	}
	for _, tc := range cases {
		classified := ClassifySetupError(tc.err)
		assert.ErrorIs(t, classified, tc.class, "%v", tc.err)
		assert.ErrorIs(t, classified, tc.err)
	}
}

func TestAuthErrorKey(t *testing.T) {
	assert.Equal(t, "", AuthErrorKey(nil))
	assert.Equal(t, "invalid_access_token", AuthErrorKey(&fleet_api.FleetError{Status: 401, Key: "invalid_token"}))
	assert.Equal(t, "subscription_required", AuthErrorKey(&fleet_api.FleetError{Status: 402, Key: "subscription_required"}))
	assert.Equal(t, "login_required", AuthErrorKey(&fleet_api.FleetError{Status: 401, Key: "login_required"}))
	assert.Equal(t, "forbidden", AuthErrorKey(&fleet_api.FleetError{Status: 403, Key: "forbidden"}))
	assert.Equal(t, "unknown", AuthErrorKey(&fleet_api.FleetError{Status: 500, Key: "http_500"}))
	assert.Equal(t, "cannot_connect", AuthErrorKey(errors.New("connection refused")))
}
