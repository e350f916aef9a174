package fleet_api

import (
	"context"
	"fmt"
	"net/http"
)

func energyPath(siteId int64, rest string) string {
	return fmt.Sprintf("/api/1/energy_sites/%d/%s", siteId, rest)
}

func (c *Client) LiveStatus(ctx context.Context, siteId int64) (map[string]any, error) {
	var resp Response[map[string]any]
	if err := c.do(ctx, http.MethodGet, energyPath(siteId, "live_status"), nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Response == nil {
		return nil, fmt.Errorf("%w: missing live status", ErrInvalidResponse)
	}
	return resp.Response, nil
}

func (c *Client) SiteInfo(ctx context.Context, siteId int64) (map[string]any, error) {
	var resp Response[map[string]any]
	if err := c.do(ctx, http.MethodGet, energyPath(siteId, "site_info"), nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Response == nil {
		return nil, fmt.Errorf("%w: missing site info", ErrInvalidResponse)
	}
	return resp.Response, nil
}

func (c *Client) energyCommand(ctx context.Context, siteId int64, command string, body any) error {
	var resp Response[EnergyCommandResult]
	if err := c.do(ctx, http.MethodPost, energyPath(siteId, command), nil, body, &resp); err != nil {
		return err
	}
	if resp.Response.Code != 0 && resp.Response.Code != http.StatusCreated && resp.Response.Code != http.StatusOK {
		return &CommandError{Command: command, Reason: resp.Response.Message}
	}
	return nil
}

func (c *Client) Backup(ctx context.Context, siteId int64, percent int) error {
	return c.energyCommand(ctx, siteId, "backup", map[string]any{"backup_reserve_percent": percent})
}

func (c *Client) OffGridVehicleChargingReserve(ctx context.Context, siteId int64, percent int) error {
	return c.energyCommand(ctx, siteId, "off_grid_vehicle_charging_reserve", map[string]any{"off_grid_vehicle_charging_reserve_percent": percent})
}

func (c *Client) Operation(ctx context.Context, siteId int64, mode string) error {
	return c.energyCommand(ctx, siteId, "operation", map[string]any{"default_real_mode": mode})
}

func (c *Client) GridImportExport(ctx context.Context, siteId int64, params GridImportExportParams) error {
	return c.energyCommand(ctx, siteId, "grid_import_export", params)
}

func (c *Client) StormMode(ctx context.Context, siteId int64, enabled bool) error {
	return c.energyCommand(ctx, siteId, "storm_mode", map[string]any{"enabled": enabled})
}
