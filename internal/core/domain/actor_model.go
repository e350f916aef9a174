package domain

import (
	"github.com/berfenger/teslemetry2mqtt/internal/core/port"
	"github.com/berfenger/teslemetry2mqtt/pkg/fleet_api"
	"github.com/berfenger/teslemetry2mqtt/pkg/telemetry_stream"
)

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_FLEET        = "fleet"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_ENTITIES     = "entities"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
	ACTOR_ID_COORDINATOR  = "coordinator"
	ACTOR_ID_STREAM       = "stream"
)

type CoordinatorKind string

const (
	COORDINATOR_VEHICLE     CoordinatorKind = "vehicle"
	COORDINATOR_ENERGY_LIVE CoordinatorKind = "energy_live"
	COORDINATOR_ENERGY_INFO CoordinatorKind = "energy_info"
)

// Source identifies the data an entity is rendered from: the coordinator kind
// and its product key (VIN or energy site id).
type Source struct {
	Kind CoordinatorKind
	Key  string
}

// Fleet API

type GetMetadataRequest struct {
	ActorRequestMixIn
}

type GetMetadataResponse struct {
	ActorResponseMixIn
	Metadata *fleet_api.Metadata
}

type GetProductsRequest struct {
	ActorRequestMixIn
}

type GetProductsResponse struct {
	ActorResponseMixIn
	Products []map[string]any
}

type GetVehicleDataRequest struct {
	ActorRequestMixIn
	VIN string
}

type GetVehicleDataResponse struct {
	ActorResponseMixIn
	VIN  string
	Data map[string]any
}

type GetLiveStatusRequest struct {
	ActorRequestMixIn
	SiteId int64
}

type GetLiveStatusResponse struct {
	ActorResponseMixIn
	SiteId int64
	Data   map[string]any
}

type GetSiteInfoRequest struct {
	ActorRequestMixIn
	SiteId int64
}

type GetSiteInfoResponse struct {
	ActorResponseMixIn
	SiteId int64
	Data   map[string]any
}

type GetStreamConfigRequest struct {
	ActorRequestMixIn
	VIN string
}

type GetStreamConfigResponse struct {
	ActorResponseMixIn
	VIN    string
	Config *telemetry_stream.Config
}

type ExecuteCommandRequest struct {
	ActorRequestMixIn
	CommandId   string
	Description string
	Fn          port.CommandFunc
}

type ExecuteCommandResponse struct {
	ActorResponseMixIn
	CommandId string
}

// Coordinators

type CoordinatorRefreshRequest struct {
	ActorRequestMixIn
}

type CoordinatorRefreshResponse struct {
	ActorResponseMixIn
	Kind      CoordinatorKind
	SourceKey string
	Data      map[string]any
}

// Entities

type EntityCommandRequest struct {
	ActorRequestMixIn
	Platform string
	EntityId string
	Payload  string
}

type EntityCommandResponse struct {
	ActorResponseMixIn
}

type EntityState struct {
	Id        string `json:"id"`
	Platform  string `json:"platform"`
	Name      string `json:"name"`
	DeviceId  string `json:"device_id"`
	Available bool   `json:"available"`
	State     string `json:"state"`
}

type ListEntitiesRequest struct {
	ActorRequestMixIn
}

type ListEntitiesResponse struct {
	ActorResponseMixIn
	Entities []EntityState
}

// MQTT

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Discovery Discovery
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

// Health

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
