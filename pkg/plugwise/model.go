package plugwise

import (
	"context"
	"errors"
	"fmt"
)

// gateway types as reported by a Smile
const (
	SmileTypePower      = "power"
	SmileTypeThermostat = "thermostat"
)

// device names the vendor uses for the main device of a gateway
const (
	ThermostatControllerName = "Controlled Device"
	PowerControllerName      = "Home"
)

const (
	TariffStructureKey    = "electricity_consumption_tariff_structure"
	TariffStructureSingle = "single"
)

// ErrConnection marks failures to reach or talk to a gateway.
var ErrConnection = errors.New("plugwise: connection error")

func ConnectionError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrConnection, op, err)
}

// Snapshot is the per-device state mapping returned by a gateway client.
// Its schema belongs to the vendor library.
type Snapshot map[string]any

// Field returns the value of a field. Absent and nil fields are both reported
// as not found.
func (s Snapshot) Field(name string) (any, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// SnapshotSet maps device ids to their snapshot.
type SnapshotSet map[string]Snapshot

type DeviceRef struct {
	Id   string
	Name string
}

type SmileInfo struct {
	SmileType   string
	Name        string
	Version     string
	PowerTariff map[string]string
}

type SmileClient interface {
	Connect(ctx context.Context) error
	FullUpdateDevice(ctx context.Context) error
	GetDevices(ctx context.Context) ([]DeviceRef, error)
	// GetDeviceData returns nil when the gateway has no data for the device.
	// An empty deviceId addresses the controller itself.
	GetDeviceData(deviceId, controllerId string) Snapshot
	Info() SmileInfo
	Disconnect(ctx context.Context) error
}

type StickClient interface {
	SetCacheFolder(path string)
	Connect(ctx context.Context) error
	Initialize(ctx context.Context) error
	Setup(ctx context.Context, discover, load bool) error
	Nodes() map[string]StickNode
	Disconnect(ctx context.Context) error
}

type StickNode interface {
	Mac() string
	Name() string
	Available() bool
	Load(ctx context.Context) error
	Update(ctx context.Context) (Snapshot, error)
	SetRelay(ctx context.Context, on bool) error
}
