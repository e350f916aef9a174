package fleet_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// FleetError is an error returned by the Teslemetry/Fleet API. Two FleetErrors
// match with errors.Is when status and key match; zero fields act as wildcards.
type FleetError struct {
	Status  int
	Key     string
	Message string
}

func (e *FleetError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("fleet api error %d: %s", e.Status, e.Key)
	}
	return fmt.Sprintf("fleet api error %d: %s: %s", e.Status, e.Key, e.Message)
}

func (e *FleetError) Is(target error) bool {
	t, ok := target.(*FleetError)
	if !ok {
		return false
	}
	return (t.Status == 0 || t.Status == e.Status) && (t.Key == "" || t.Key == e.Key)
}

var (
	ErrUnauthorized         = &FleetError{Status: http.StatusUnauthorized}
	ErrInvalidToken         = &FleetError{Status: http.StatusUnauthorized, Key: "invalid_token"}
	ErrLoginRequired        = &FleetError{Status: http.StatusUnauthorized, Key: "login_required"}
	ErrPaymentRequired      = &FleetError{Status: http.StatusPaymentRequired, Key: "payment_required"}
	ErrSubscriptionRequired = &FleetError{Status: http.StatusPaymentRequired, Key: "subscription_required"}
	ErrForbidden            = &FleetError{Status: http.StatusForbidden}
	ErrVehicleOffline       = &FleetError{Status: http.StatusRequestTimeout}
	ErrRateLimited          = &FleetError{Status: http.StatusTooManyRequests}

	ErrInvalidResponse = errors.New("invalid response from fleet api")
)

// CommandError is returned when the vehicle accepted the request but refused to
// execute the command.
type CommandError struct {
	Command string
	Reason  string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %s", e.Command, e.Reason)
}

func parseError(status int, body []byte) error {
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	_ = json.Unmarshal(body, &payload)

	key := payload.Error
	if key == "" {
		key = defaultErrorKey(status)
	}
	return &FleetError{
		Status:  status,
		Key:     key,
		Message: payload.ErrorDescription,
	}
}

func defaultErrorKey(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "invalid_token"
	case http.StatusPaymentRequired:
		return "payment_required"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusRequestTimeout:
		return "vehicle_offline"
	case http.StatusTooManyRequests:
		return "rate_limited"
	default:
		return fmt.Sprintf("http_%d", status)
	}
}

func isRetryable(err error) bool {
	var fleetErr *FleetError
	if errors.As(err, &fleetErr) {
		return fleetErr.Status == http.StatusTooManyRequests || fleetErr.Status >= http.StatusInternalServerError
	}
	if errors.Is(err, ErrInvalidResponse) {
		return false
	}
	var cmdErr *CommandError
	return !errors.As(err, &cmdErr)
}
