package entity

import (
	"context"
	"fmt"

	"github.com/avast/retry-go/v3"
	"github.com/berfenger/teslemetry2mqtt/internal/core/port"
	"github.com/berfenger/teslemetry2mqtt/pkg/fleet_api"
)

// wakeUpIfAsleep wakes the vehicle up when the last known state is not online
// and waits until it reports online, giving up after opts.WakeUpAttempts.
func wakeUpIfAsleep(ctx context.Context, api port.FleetAPI, vin string, state string, opts Options) error {
	if state == fleet_api.VEHICLE_STATE_ONLINE {
		return nil
	}
	err := retry.Do(func() error {
		state, err := api.WakeUp(ctx, vin)
		if err != nil {
			return retry.Unrecoverable(err)
		}
		if state != fleet_api.VEHICLE_STATE_ONLINE {
			return fmt.Errorf("%w: state %s", ErrNotAwake, state)
		}
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(opts.WakeUpAttempts),
		retry.Delay(opts.WakeUpDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	return err
}

// withWakeUp wraps a vehicle command so the vehicle is woken up first.
func withWakeUp(vin string, state string, opts Options, fn port.CommandFunc) port.CommandFunc {
	return func(ctx context.Context, api port.FleetAPI) error {
		if err := wakeUpIfAsleep(ctx, api, vin, state, opts); err != nil {
			return err
		}
		return fn(ctx, api)
	}
}

func vehicleState(data map[string]any) string {
	if v, ok := get(data, "state"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
