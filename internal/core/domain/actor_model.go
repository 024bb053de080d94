package domain

import (
	"fmt"
	"time"

	"github.com/berfenger/plugwise2mqtt/pkg/plugwise"
)

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

func GatewayActorId(gatewayId string) string {
	return fmt.Sprintf("gateway_%s", gatewayId)
}

// CoordinatorId identifies the coordinator of one gateway scope. Smile
// gateways have a single, empty scope; stick gateways one scope per node.
func CoordinatorId(gatewayId, scope string) string {
	if scope == "" {
		return gatewayId
	}
	return Slug(fmt.Sprintf("%s_%s", gatewayId, scope))
}

// Scope is the part of a gateway a coordinator polls.
type Scope struct {
	Id   string
	Name string
}

type GetGatewayInfoRequest struct {
	ActorRequestMixIn
}

type GetGatewayInfoResponse struct {
	ActorResponseMixIn
	GatewayId string
	Variant   plugwise.Variant
	Device    Device
	Scopes    []Scope
}

type RefreshRequest struct {
	ActorRequestMixIn
	Scope   string
	Timeout time.Duration
}

type RefreshResponse struct {
	ActorResponseMixIn
	Devices   []plugwise.DeviceRef
	Snapshots plugwise.SnapshotSet
}

type SetSwitchRequest struct {
	ActorRequestMixIn
	Scope    string
	DeviceId string
	Field    string
	On       bool
	Timeout  time.Duration
}

type SetSwitchResponse struct {
	ActorResponseMixIn
}

// SwitchCommand is a switch command addressed by entity id.
type SwitchCommand struct {
	EntityId string
	On       bool
}

type GetCoordinatorStatusRequest struct {
	ActorRequestMixIn
}

type GetCoordinatorStatusResponse struct {
	ActorResponseMixIn
	Status CoordinatorStatus
}

type ListCoordinatorsRequest struct {
	ActorRequestMixIn
}

type ListCoordinatorsResponse struct {
	ActorResponseMixIn
	Coordinators []CoordinatorStatus
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
	Sensors  []GenericSensor
	Switches []GenericSwitch
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
