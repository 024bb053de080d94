package domain

import (
	"strings"

	"github.com/spf13/cast"
)

type Platform string

const (
	PlatformSensor       Platform = "sensor"
	PlatformBinarySensor Platform = "binary_sensor"
	PlatformSwitch       Platform = "switch"
)

// SensorDescriptor is the static presentation of an entity.
type SensorDescriptor struct {
	Name              string
	UnitOfMeasurement string
	Icon              string
	DeviceClass       string
	StateClass        string
	EnabledByDefault  bool
	Decimals          uint
}

// Extractor turns a raw snapshot value into an entity state. ok is false when
// the value cannot be represented, in which case the state is left untouched.
type Extractor func(raw any) (value any, ok bool)

// Capability is one row of a capability table: which snapshot field feeds
// which entity, and how.
type Capability struct {
	Key        string
	Field      string
	Platform   Platform
	Descriptor SensorDescriptor
	Extract    Extractor
}

// Copy passes the raw value through.
func Copy(raw any) (any, bool) {
	return raw, true
}

// Thousandths divides a numeric value by 1000 (Wh to kWh, dm3 to m3).
func Thousandths(raw any) (any, bool) {
	f, err := cast.ToFloat64E(raw)
	if err != nil {
		return nil, false
	}
	return f / 1000, true
}

func Boolean(raw any) (any, bool) {
	b, err := cast.ToBoolE(raw)
	if err != nil {
		return nil, false
	}
	return b, true
}

// Extractors are picked from the key so that adding a row never needs code:
// cumulative counters are scaled, everything else is copied.
func extractorFor(key string, platform Platform) Extractor {
	switch {
	case platform != PlatformSensor:
		return Boolean
	case strings.Contains(key, "cumulative"):
		return Thousandths
	default:
		return Copy
	}
}

func sensor(key, field string, d SensorDescriptor) Capability {
	return Capability{
		Key:        key,
		Field:      field,
		Platform:   PlatformSensor,
		Descriptor: d,
		Extract:    extractorFor(key, PlatformSensor),
	}
}

func binarySensor(key string, d SensorDescriptor) Capability {
	return Capability{
		Key:        key,
		Field:      key,
		Platform:   PlatformBinarySensor,
		Descriptor: d,
		Extract:    extractorFor(key, PlatformBinarySensor),
	}
}

func switchCapability(key string, d SensorDescriptor) Capability {
	return Capability{
		Key:        key,
		Field:      key,
		Platform:   PlatformSwitch,
		Descriptor: d,
		Extract:    extractorFor(key, PlatformSwitch),
	}
}

func temperature(name string) SensorDescriptor {
	return SensorDescriptor{
		Name:              name,
		UnitOfMeasurement: "°C",
		Icon:              "mdi:thermometer",
		DeviceClass:       DEVICE_CLASS_TEMPERATURE,
		StateClass:        STATE_CLASS_MEASUREMENT,
		EnabledByDefault:  true,
		Decimals:          1,
	}
}

func power(name, icon string) SensorDescriptor {
	return SensorDescriptor{
		Name:              name,
		UnitOfMeasurement: "W",
		Icon:              icon,
		DeviceClass:       DEVICE_CLASS_POWER,
		StateClass:        STATE_CLASS_MEASUREMENT,
		EnabledByDefault:  true,
		Decimals:          1,
	}
}

func energy(name, icon string, enabled bool) SensorDescriptor {
	return SensorDescriptor{
		Name:              name,
		UnitOfMeasurement: "kWh",
		Icon:              icon,
		DeviceClass:       DEVICE_CLASS_ENERGY,
		StateClass:        STATE_CLASS_TOTAL_INCREASING,
		EnabledByDefault:  enabled,
		Decimals:          3,
	}
}

// meterReading is a cumulative energy meter. Values arrive in Wh and are
// reported in kWh.
func meterReading(name, icon string) SensorDescriptor {
	d := energy(name, icon, true)
	d.Decimals = 1
	return d
}

// ThermostatCapabilities are checked against the controller and every zone.
var ThermostatCapabilities = []Capability{
	sensor("boiler_temperature", "boiler_temp", temperature("Boiler temperature")),
	sensor("battery_charge", "battery", SensorDescriptor{
		Name:              "Battery charge",
		UnitOfMeasurement: "%",
		Icon:              "mdi:water-battery",
		DeviceClass:       DEVICE_CLASS_BATTERY,
		StateClass:        STATE_CLASS_MEASUREMENT,
		EnabledByDefault:  true,
	}),
	sensor("outdoor_temperature", "outdoor_temp", temperature("Outdoor temperature")),
	sensor("illuminance", "illuminance", SensorDescriptor{
		Name:              "Illuminance",
		UnitOfMeasurement: "lm",
		Icon:              "mdi:lightbulb-on-outline",
		DeviceClass:       DEVICE_CLASS_ILLUMINANCE,
		StateClass:        STATE_CLASS_MEASUREMENT,
		EnabledByDefault:  true,
		Decimals:          1,
	}),
	sensor("water_pressure", "water_pressure", SensorDescriptor{
		Name:              "Water pressure",
		UnitOfMeasurement: "bar",
		Icon:              "mdi:water",
		DeviceClass:       DEVICE_CLASS_PRESSURE,
		StateClass:        STATE_CLASS_MEASUREMENT,
		EnabledByDefault:  true,
		Decimals:          2,
	}),
}

// PowerCapabilities are read from the P1 controller. Keys carry the field name.
var PowerCapabilities = []Capability{
	sensor("electricity_consumed_off_peak_point", "electricity_consumed_off_peak_point", power("Current Consumed Power (off peak)", "mdi:flash")),
	sensor("electricity_consumed_peak_point", "electricity_consumed_peak_point", power("Current Consumed Power", "mdi:flash")),
	sensor("electricity_consumed_off_peak_cumulative", "electricity_consumed_off_peak_cumulative", meterReading("Cumulative Consumed Power (off peak)", "mdi:flash")),
	sensor("electricity_consumed_peak_cumulative", "electricity_consumed_peak_cumulative", meterReading("Cumulative Consumed Power", "mdi:flash")),
	sensor("electricity_produced_off_peak_point", "electricity_produced_off_peak_point", power("Current Produced Power (off peak)", "mdi:white-balance-sunny")),
	sensor("electricity_produced_peak_point", "electricity_produced_peak_point", power("Current Produced Power", "mdi:white-balance-sunny")),
	sensor("electricity_produced_off_peak_cumulative", "electricity_produced_off_peak_cumulative", meterReading("Cumulative Produced Power (off peak)", "mdi:white-balance-sunny")),
	sensor("electricity_produced_peak_cumulative", "electricity_produced_peak_cumulative", meterReading("Cumulative Produced Power", "mdi:white-balance-sunny")),
	sensor("gas_consumed_point_peak_point", "gas_consumed_point_peak_point", SensorDescriptor{
		Name:              "Current Consumed Gas",
		UnitOfMeasurement: "m³",
		Icon:              "mdi:gas-cylinder",
		DeviceClass:       DEVICE_CLASS_GAS,
		StateClass:        STATE_CLASS_MEASUREMENT,
		EnabledByDefault:  true,
		Decimals:          3,
	}),
	sensor("gas_consumed_point_peak_cumulative", "gas_consumed_point_peak_cumulative", SensorDescriptor{
		Name:              "Cumulative Consumed Gas",
		UnitOfMeasurement: "m³",
		Icon:              "mdi:gas-cylinder",
		DeviceClass:       DEVICE_CLASS_GAS,
		StateClass:        STATE_CLASS_TOTAL_INCREASING,
		EnabledByDefault:  true,
		Decimals:          1,
	}),
}

// StickCapabilities cover Circle, Scan and Sense nodes. Field names equal keys.
var StickCapabilities = []Capability{
	binarySensor("available", SensorDescriptor{
		Name:        "Available",
		Icon:        "mdi:signal-off",
		DeviceClass: DEVICE_CLASS_CONNECTIVITY,
	}),
	sensor("ping", "ping", SensorDescriptor{
		Name:              "Ping roundtrip",
		UnitOfMeasurement: "ms",
		Icon:              "mdi:speedometer",
		StateClass:        STATE_CLASS_MEASUREMENT,
	}),
	sensor("power_1s", "power_1s", power("Power usage", "")),
	sensor("power_8s", "power_8s", SensorDescriptor{
		Name:              "Power usage 8 seconds",
		UnitOfMeasurement: "W",
		DeviceClass:       DEVICE_CLASS_POWER,
		StateClass:        STATE_CLASS_MEASUREMENT,
		Decimals:          1,
	}),
	sensor("power_con_cur_hour", "power_con_cur_hour", energy("Power consumption current hour", "", true)),
	sensor("power_con_prev_hour", "power_con_prev_hour", energy("Power consumption previous hour", "", true)),
	sensor("power_con_today", "power_con_today", energy("Power consumption today", "", true)),
	sensor("power_con_yesterday", "power_con_yesterday", energy("Power consumption yesterday", "", true)),
	sensor("power_prod_cur_hour", "power_prod_cur_hour", energy("Power production current hour", "", false)),
	sensor("power_prod_prev_hour", "power_prod_prev_hour", energy("Power production previous hour", "", false)),
	sensor("rssi_in", "RSSI_in", SensorDescriptor{
		Name:              "Inbound RSSI",
		UnitOfMeasurement: "dBm",
		DeviceClass:       DEVICE_CLASS_SIGNAL_STRENGTH,
		StateClass:        STATE_CLASS_MEASUREMENT,
	}),
	sensor("rssi_out", "RSSI_out", SensorDescriptor{
		Name:              "Outbound RSSI",
		UnitOfMeasurement: "dBm",
		DeviceClass:       DEVICE_CLASS_SIGNAL_STRENGTH,
		StateClass:        STATE_CLASS_MEASUREMENT,
	}),
	binarySensor("motion", SensorDescriptor{
		Name:             "Motion",
		DeviceClass:      DEVICE_CLASS_MOTION,
		EnabledByDefault: true,
	}),
	switchCapability("relay", SensorDescriptor{
		Name:             "Relay state",
		DeviceClass:      DEVICE_CLASS_OUTLET,
		EnabledByDefault: true,
	}),
}
