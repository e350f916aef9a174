package entity

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/teslemetry2mqtt/internal/core/domain"
	"github.com/berfenger/teslemetry2mqtt/internal/core/port"
	"github.com/berfenger/teslemetry2mqtt/internal/core/service"
)

var (
	ErrMissingScope   = errors.New("missing required scope")
	ErrInvalidPayload = errors.New("invalid command payload")
	ErrNotAwake       = errors.New("could not wake up vehicle")
	ErrUnavailable    = errors.New("entity is unavailable")
)

// Entity is a single Home Assistant entity bound to a device and rendered from
// the latest data of one coordinator.
type Entity interface {
	Id() string
	Key() string
	Platform() string
	Name() string
	Device() domain.Device
	Source() domain.Source
	// Render returns the state events for the given coordinator data.
	Render(data map[string]any) Rendered
	// Discovery describes the entity for the given data. Presentation fields
	// such as min/max or icon may depend on it.
	Discovery(data map[string]any) domain.Discovery
}

// Commandable entities accept writes from Home Assistant.
type Commandable interface {
	Entity
	Command(data map[string]any, payload string) (*Command, error)
}

// Streamed entities also take their value from the telemetry stream.
type Streamed interface {
	Entity
	StreamField() string
}

type Rendered struct {
	Available bool
	Event     domain.SensorUpdateEvent
	// State is the textual state, used for listings.
	State string
}

// Command is a write ready to be executed against the fleet API. Updates are
// applied to the local data once Exec succeeds.
type Command struct {
	Description string
	Exec        port.CommandFunc
	Updates     map[string]any
}

// Target identifies the product a command is sent to.
type Target struct {
	VIN    string
	SiteId int64
}

func (t Target) String() string {
	if t.VIN != "" {
		return t.VIN
	}
	return fmt.Sprint(t.SiteId)
}

type Options struct {
	WakeUpAttempts uint
	WakeUpDelay    time.Duration
}

func DefaultOptions() Options {
	return Options{
		WakeUpAttempts: 4,
		WakeUpDelay:    5 * time.Second,
	}
}

type base struct {
	id               string
	key              string
	name             string
	platform         string
	device           domain.Device
	source           domain.Source
	target           Target
	scoped           bool
	enabledByDefault bool
	entityCategory   string
	icon             string
	valueOf          func(data map[string]any) (any, bool)
	availableFn      func(data map[string]any) bool
	options          Options
}

func newBase(platform string, key string, name string, device domain.Device, source domain.Source, target Target) base {
	return base{
		id:               domain.ObjectId(device.Id, key),
		key:              key,
		name:             name,
		platform:         platform,
		device:           device,
		source:           source,
		target:           target,
		enabledByDefault: true,
		options:          DefaultOptions(),
		valueOf: func(data map[string]any) (any, bool) {
			return get(data, key)
		},
	}
}

func (b *base) Id() string {
	return b.id
}

func (b *base) Key() string {
	return b.key
}

func (b *base) Platform() string {
	return b.platform
}

func (b *base) Name() string {
	return b.name
}

func (b *base) Device() domain.Device {
	return b.device
}

func (b *base) Source() domain.Source {
	return b.source
}

func (b *base) uniqueId() string {
	return domain.UniqueId(b.device.Id, b.key)
}

func (b *base) available(data map[string]any) bool {
	if b.availableFn == nil {
		return true
	}
	return b.availableFn(data)
}

func (b *base) enabledByDefaultPtr() *bool {
	if b.enabledByDefault {
		return nil
	}
	return domain.OptionalBool(false)
}

func (b *base) raiseForScope() error {
	if !b.scoped {
		return fmt.Errorf("%w: %s", ErrMissingScope, b.id)
	}
	return nil
}

func (b *base) mixin() domain.SensorUpdateEventMixIn {
	return domain.SensorUpdateEventMixIn{Id: b.id}
}

func (b *base) unknown(available bool) Rendered {
	return Rendered{
		Available: available,
		Event: domain.UnknownStateUpdateEvent{
			SensorUpdateEventMixIn: b.mixin(),
			Platform:               b.platform,
		},
		State: "unknown",
	}
}

func hasAnyScope(scopes []string, wanted []string) bool {
	return service.HasAnyScope(scopes, wanted...)
}
