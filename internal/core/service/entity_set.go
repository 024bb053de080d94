package service

import (
	"github.com/berfenger/plugwise2mqtt/internal/core/domain"
	"github.com/berfenger/plugwise2mqtt/pkg/plugwise"
)

// EntitySet holds the entities owned by one coordinator, in creation order.
type EntitySet struct {
	entities []*Entity
	byId     map[string]*Entity
}

func NewEntitySet(entities []*Entity) *EntitySet {
	byId := make(map[string]*Entity, len(entities))
	for _, e := range entities {
		byId[e.Id] = e
	}
	return &EntitySet{entities: entities, byId: byId}
}

func (s *EntitySet) Len() int {
	return len(s.entities)
}

func (s *EntitySet) Get(id string) (*Entity, bool) {
	e, ok := s.byId[id]
	return e, ok
}

// Apply updates every entity from the snapshot set, one after the other, and
// returns the state events of the entities that hold a value.
func (s *EntitySet) Apply(snapshots plugwise.SnapshotSet) []domain.SensorUpdateEvent {
	events := make([]domain.SensorUpdateEvent, 0, len(s.entities))
	for _, e := range s.entities {
		e.Update(snapshots)
		if ev := e.UpdateEvent(); ev != nil {
			events = append(events, ev)
		}
	}
	return events
}

func (s *EntitySet) Statuses(available bool) []domain.EntityStatus {
	statuses := make([]domain.EntityStatus, 0, len(s.entities))
	for _, e := range s.entities {
		statuses = append(statuses, e.Status(available))
	}
	return statuses
}

// Discovery describes the entities for Home Assistant MQTT discovery.
func (s *EntitySet) Discovery(coordinatorId string) ([]domain.GenericSensor, []domain.GenericSwitch) {
	var sensors []domain.GenericSensor
	var switches []domain.GenericSwitch
	for _, e := range s.entities {
		d := e.Capability.Descriptor
		if e.Capability.Platform == domain.PlatformSwitch {
			switches = append(switches, domain.GenericSwitch{
				Device:        e.Device,
				Id:            e.Id,
				Name:          d.Name,
				UniqueId:      domain.UniqueId(e.Device.Id, e.Capability.Key),
				Icon:          d.Icon,
				DeviceClass:   d.DeviceClass,
				CoordinatorId: coordinatorId,
			})
			continue
		}
		sensors = append(sensors, domain.GenericSensor{
			Device:            e.Device,
			Id:                e.Id,
			SensorType:        string(e.Capability.Platform),
			Name:              d.Name,
			UniqueId:          domain.UniqueId(e.Device.Id, e.Capability.Key),
			UnitOfMeasurement: d.UnitOfMeasurement,
			StateClass:        d.StateClass,
			DeviceClass:       d.DeviceClass,
			EnabledByDefault:  domain.OptionalBool(d.EnabledByDefault),
			Icon:              d.Icon,
			CoordinatorId:     coordinatorId,
		})
	}
	return sensors, switches
}
