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

// AvailabilityUpdateEvent carries the outcome of a coordinator's last refresh.
// Id is the coordinator id.
type AvailabilityUpdateEvent struct {
	SensorUpdateEventMixIn
	Online bool
}

// CoordinatorStatusEvent is sent by a coordinator to its parent after every
// refresh attempt.
type CoordinatorStatusEvent struct {
	Status CoordinatorStatus
}

// EntitiesReadyEvent is sent by a coordinator to its parent once its entities
// have been projected.
type EntitiesReadyEvent struct {
	CoordinatorId string
	Sensors       []GenericSensor
	Switches      []GenericSwitch
}

type EntityStatus struct {
	Id        string `json:"id"`
	Name      string `json:"name"`
	Platform  string `json:"platform"`
	DeviceId  string `json:"device_id"`
	Available bool   `json:"available"`
	State     any    `json:"state"`
}

type CoordinatorStatus struct {
	Id                string         `json:"id"`
	GatewayId         string         `json:"gateway_id"`
	Scope             string         `json:"scope,omitempty"`
	Variant           string         `json:"variant"`
	ScanInterval      time.Duration  `json:"scan_interval_ns"`
	LastUpdateSuccess bool           `json:"last_update_success"`
	LastUpdate        time.Time      `json:"last_update"`
	LastSuccess       time.Time      `json:"last_success"`
	LastError         string         `json:"last_error,omitempty"`
	Devices           int            `json:"devices"`
	Entities          []EntityStatus `json:"entities"`
}
