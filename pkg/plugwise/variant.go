package plugwise

import (
	"fmt"
	"time"
)

type Kind int

const (
	KindPower Kind = iota + 1
	KindThermostat
	KindStick
)

func (k Kind) String() string {
	switch k {
	case KindPower:
		return "power"
	case KindThermostat:
		return "thermostat"
	case KindStick:
		return "stick"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Variant is the gateway flavour, chosen once at setup and carried through
// entity construction.
type Variant interface {
	Kind() Kind
	// DefaultScanInterval is the poll interval used when none is configured.
	// Power meters are polled close to their measurement rate, thermostats less often.
	DefaultScanInterval() time.Duration
}

type PowerVariant struct {
	TariffStructure string
}

type ThermostatVariant struct{}

type StickVariant struct{}

func (PowerVariant) Kind() Kind                         { return KindPower }
func (PowerVariant) DefaultScanInterval() time.Duration { return 10 * time.Second }

// SingleTariff reports whether off-peak readings are meaningless.
func (v PowerVariant) SingleTariff() bool {
	return v.TariffStructure == TariffStructureSingle
}

func (ThermostatVariant) Kind() Kind                         { return KindThermostat }
func (ThermostatVariant) DefaultScanInterval() time.Duration { return 60 * time.Second }

func (StickVariant) Kind() Kind                         { return KindStick }
func (StickVariant) DefaultScanInterval() time.Duration { return 30 * time.Second }

// SmileVariant maps the gateway info reported by a Smile to its variant.
func SmileVariant(info SmileInfo) (Variant, error) {
	switch info.SmileType {
	case SmileTypePower:
		return PowerVariant{TariffStructure: info.PowerTariff[TariffStructureKey]}, nil
	case SmileTypeThermostat:
		return ThermostatVariant{}, nil
	default:
		return nil, fmt.Errorf("unsupported smile type %q", info.SmileType)
	}
}

// ControllerId returns the id of the main device of a gateway, or "" when the
// device list has none. Stick networks have no controller.
func ControllerId(v Variant, devices []DeviceRef) string {
	var name string
	switch v.Kind() {
	case KindThermostat:
		name = ThermostatControllerName
	case KindPower:
		name = PowerControllerName
	default:
		return ""
	}
	for _, dev := range devices {
		if dev.Name == name {
			return dev.Id
		}
	}
	return ""
}

// CollectSnapshots fetches the snapshot of every listed device. The controller
// is addressed by controller id alone, other devices by their own id. Power
// gateways only expose the controller. Devices without data are left out.
func CollectSnapshots(v Variant, client SmileClient, devices []DeviceRef) SnapshotSet {
	ctrlId := ControllerId(v, devices)
	set := make(SnapshotSet, len(devices))
	for _, dev := range devices {
		var data Snapshot
		switch {
		case dev.Id == ctrlId && ctrlId != "":
			data = client.GetDeviceData("", ctrlId)
		case v.Kind() == KindPower:
			continue
		default:
			data = client.GetDeviceData(dev.Id, ctrlId)
		}
		if data == nil {
			continue
		}
		set[dev.Id] = data
	}
	return set
}
