package service

import (
	"fmt"
	"strings"

	"github.com/berfenger/plugwise2mqtt/internal/core/domain"
	"github.com/berfenger/plugwise2mqtt/pkg/plugwise"

	"github.com/spf13/cast"
)

// ProjectionContext names the gateway and coordinator entities are built for.
type ProjectionContext struct {
	GatewayId     string
	CoordinatorId string
	Gateway       domain.Device
}

// Entity is the presentation record of one capability of one device.
// It is created once at setup and only its value changes afterwards.
type Entity struct {
	Id         string
	Name       string
	DeviceId   string
	Device     domain.Device
	Capability domain.Capability

	value    any
	hasValue bool
}

func (e *Entity) State() (any, bool) {
	return e.value, e.hasValue
}

// Update copies the entity's field from the device snapshot. A missing
// snapshot, a missing or nil field, or a value the extractor rejects leaves
// the previous state in place.
func (e *Entity) Update(snapshots plugwise.SnapshotSet) bool {
	data, ok := snapshots[e.DeviceId]
	if !ok {
		return false
	}
	raw, ok := data.Field(e.Capability.Field)
	if !ok {
		return false
	}
	value, ok := e.Capability.Extract(raw)
	if !ok {
		return false
	}
	e.value = value
	e.hasValue = true
	return true
}

// UpdateEvent returns the state event for the entity, or nil before the
// first value.
func (e *Entity) UpdateEvent() domain.SensorUpdateEvent {
	if !e.hasValue {
		return nil
	}
	mixIn := domain.SensorUpdateEventMixIn{Id: e.Id}
	switch e.Capability.Platform {
	case domain.PlatformBinarySensor:
		return domain.BinarySensorUpdateEvent{SensorUpdateEventMixIn: mixIn, Value: cast.ToBool(e.value)}
	case domain.PlatformSwitch:
		return domain.SwitchSensorUpdateEvent{SensorUpdateEventMixIn: mixIn, Value: cast.ToBool(e.value)}
	}
	if f, err := cast.ToFloat64E(e.value); err == nil {
		return domain.FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: mixIn,
			Value:                  f,
			Decimals:               e.Capability.Descriptor.Decimals,
		}
	}
	return domain.TextSensorUpdateEvent{SensorUpdateEventMixIn: mixIn, Value: cast.ToString(e.value)}
}

// Status reports the entity as seen by consumers. Unavailable entities carry
// no state.
func (e *Entity) Status(available bool) domain.EntityStatus {
	st := domain.EntityStatus{
		Id:        e.Id,
		Name:      e.Name,
		Platform:  string(e.Capability.Platform),
		DeviceId:  e.DeviceId,
		Available: available,
	}
	if available && e.hasValue {
		st.State = e.value
	}
	return st
}

// ProjectEntities builds the entities of a coordinator from the devices and
// snapshots of its first successful refresh.
func ProjectEntities(variant plugwise.Variant, pc ProjectionContext, devices []plugwise.DeviceRef, snapshots plugwise.SnapshotSet) []*Entity {
	var entities []*Entity
	switch v := variant.(type) {
	case plugwise.ThermostatVariant:
		entities = projectPresent(domain.ThermostatCapabilities, pc, devices, snapshots)
	case plugwise.StickVariant:
		entities = projectPresent(domain.StickCapabilities, pc, devices, snapshots)
	case plugwise.PowerVariant:
		entities = projectPower(v, pc, devices, snapshots)
	}
	for _, e := range entities {
		e.Update(snapshots)
	}
	return entities
}

// projectPresent creates an entity for every capability whose field is
// present and non-nil at setup. Fields that show up later are ignored.
func projectPresent(capabilities []domain.Capability, pc ProjectionContext, devices []plugwise.DeviceRef, snapshots plugwise.SnapshotSet) []*Entity {
	var entities []*Entity
	for _, dev := range devices {
		data, ok := snapshots[dev.Id]
		if !ok {
			continue
		}
		device := deviceFor(pc, dev)
		for _, c := range capabilities {
			if _, ok := data.Field(c.Field); !ok {
				continue
			}
			entities = append(entities, newEntity(pc, device, dev, c))
		}
	}
	return entities
}

// projectPower exposes the whole power table on the controller, without the
// off-peak rows on single tariff meters.
func projectPower(v plugwise.PowerVariant, pc ProjectionContext, devices []plugwise.DeviceRef, snapshots plugwise.SnapshotSet) []*Entity {
	ctrlId := plugwise.ControllerId(v, devices)
	if ctrlId == "" {
		return nil
	}
	if _, ok := snapshots[ctrlId]; !ok {
		return nil
	}
	ctrl := plugwise.DeviceRef{Id: ctrlId, Name: plugwise.PowerControllerName}
	device := deviceFor(pc, ctrl)

	var entities []*Entity
	for _, c := range domain.PowerCapabilities {
		if v.SingleTariff() && strings.Contains(c.Key, "off") {
			continue
		}
		entities = append(entities, newEntity(pc, device, ctrl, c))
	}
	return entities
}

func newEntity(pc ProjectionContext, device domain.Device, dev plugwise.DeviceRef, c domain.Capability) *Entity {
	return &Entity{
		Id:         domain.EntityId(pc.GatewayId, dev.Id, c.Key),
		Name:       fmt.Sprintf("%s_%s", dev.Name, c.Key),
		DeviceId:   dev.Id,
		Device:     device,
		Capability: c,
	}
}

func deviceFor(pc ProjectionContext, dev plugwise.DeviceRef) domain.Device {
	d := domain.GatewayDevice(pc.GatewayId, dev.Id, dev.Name, pc.Gateway.Model, "")
	d.ViaDevice = pc.Gateway.Id
	return d
}
