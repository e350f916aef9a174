package fleet_api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

func vehiclePath(vin string, rest string) string {
	return fmt.Sprintf("/api/1/vehicles/%s/%s", url.PathEscape(vin), rest)
}

// VehicleData returns the raw vehicle_data response for the given VIN, with all
// data endpoints requested.
func (c *Client) VehicleData(ctx context.Context, vin string) (map[string]any, error) {
	query := url.Values{}
	query.Set("endpoints", strings.Join(VehicleDataEndpoints, ";"))

	var resp Response[map[string]any]
	if err := c.do(ctx, http.MethodGet, vehiclePath(vin, "vehicle_data"), query, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Response == nil {
		return nil, fmt.Errorf("%w: missing vehicle data", ErrInvalidResponse)
	}
	return resp.Response, nil
}

// WakeUp asks the vehicle to wake up and returns its reported state.
func (c *Client) WakeUp(ctx context.Context, vin string) (string, error) {
	var resp Response[struct {
		State string `json:"state"`
	}]
	if err := c.do(ctx, http.MethodPost, vehiclePath(vin, "wake_up"), nil, nil, &resp); err != nil {
		return "", err
	}
	return resp.Response.State, nil
}

func (c *Client) vehicleCommand(ctx context.Context, vin string, command string, body any) error {
	var resp Response[CommandResult]
	if err := c.do(ctx, http.MethodPost, vehiclePath(vin, "command/"+command), nil, body, &resp); err != nil {
		return err
	}
	if !resp.Response.Result {
		return &CommandError{Command: command, Reason: resp.Response.Reason}
	}
	return nil
}

func (c *Client) SetChargingAmps(ctx context.Context, vin string, amps int) error {
	return c.vehicleCommand(ctx, vin, "set_charging_amps", map[string]any{"charging_amps": amps})
}

func (c *Client) SetChargeLimit(ctx context.Context, vin string, percent int) error {
	return c.vehicleCommand(ctx, vin, "set_charge_limit", map[string]any{"percent": percent})
}

func (c *Client) SpeedLimitSetLimit(ctx context.Context, vin string, limitMph float64) error {
	return c.vehicleCommand(ctx, vin, "speed_limit_set_limit", map[string]any{"limit_mph": limitMph})
}

func (c *Client) RemoteSeatHeaterRequest(ctx context.Context, vin string, heater int, level int) error {
	return c.vehicleCommand(ctx, vin, "remote_seat_heater_request", map[string]any{"heater": heater, "level": level})
}

func (c *Client) AutoConditioningStart(ctx context.Context, vin string) error {
	return c.vehicleCommand(ctx, vin, "auto_conditioning_start", nil)
}

func (c *Client) AutoConditioningStop(ctx context.Context, vin string) error {
	return c.vehicleCommand(ctx, vin, "auto_conditioning_stop", nil)
}

func (c *Client) ChargeStart(ctx context.Context, vin string) error {
	return c.vehicleCommand(ctx, vin, "charge_start", nil)
}

func (c *Client) ChargeStop(ctx context.Context, vin string) error {
	return c.vehicleCommand(ctx, vin, "charge_stop", nil)
}

func (c *Client) SetSentryMode(ctx context.Context, vin string, on bool) error {
	return c.vehicleCommand(ctx, vin, "set_sentry_mode", map[string]any{"on": on})
}
