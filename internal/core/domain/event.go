package domain

import (
	"fmt"
	"time"
)

type SensorUpdateEventMixIn struct {
	Id string
}

type SensorUpdateEvent interface {
	SensorUpdateEvent() string
	SensorId() string
}

func (e SensorUpdateEventMixIn) SensorUpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e SensorUpdateEventMixIn) SensorId() string {
	return e.Id
}

type FloatSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    float64
	Decimals uint
}

type BinarySensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

type SwitchSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

type TextSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value string
}

type BridgeStateUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

type InputNumberSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    float64
	Decimals uint
}

type SelectUpdateEvent struct {
	SensorUpdateEventMixIn
	Value string
}

// UnknownStateUpdateEvent clears the state of an entity whose value is missing
// from the latest data.
type UnknownStateUpdateEvent struct {
	SensorUpdateEventMixIn
	Platform string
}

type AvailabilityUpdateEvent struct {
	SensorUpdateEventMixIn
	Platform  string
	Available bool
}

// Coordinator and stream events

type CoordinatorUpdateEvent struct {
	Kind      CoordinatorKind
	SourceKey string
	Data      map[string]any
	Error     error
	At        time.Time
}

func (e CoordinatorUpdateEvent) Source() Source {
	return Source{Kind: e.Kind, Key: e.SourceKey}
}

func (e CoordinatorUpdateEvent) Failed() bool {
	return e.Error != nil
}

type StreamUpdateEvent struct {
	VIN  string
	Data map[string]any
	At   time.Time
}

// DiscoveryChangedEvent is published when the presentation of an entity
// changed and its discovery config has to be announced again.
type DiscoveryChangedEvent struct {
	Discovery Discovery
}
