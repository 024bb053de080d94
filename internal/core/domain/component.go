package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE       = "bridge"
	STATE_CLASS_MEASUREMENT      = "measurement"
	STATE_CLASS_TOTAL_INCREASING = "total_increasing"
	DEVICE_CLASS_BATTERY         = "battery"
	DEVICE_CLASS_CONNECTIVITY    = "connectivity"
	DEVICE_CLASS_ENERGY          = "energy"
	DEVICE_CLASS_GAS             = "gas"
	DEVICE_CLASS_ILLUMINANCE     = "illuminance"
	DEVICE_CLASS_MOTION          = "motion"
	DEVICE_CLASS_OUTLET          = "outlet"
	DEVICE_CLASS_POWER           = "power"
	DEVICE_CLASS_PRESSURE        = "pressure"
	DEVICE_CLASS_SIGNAL_STRENGTH = "signal_strength"
	DEVICE_CLASS_TEMPERATURE     = "temperature"
	ENTITY_CLASS_DIAGNOSTIC      = "diagnostic"
	MANUFACTURER_PLUGWISE        = "Plugwise"
)

type Device struct {
	Id           string
	Name         string
	Version      string
	Model        string
	Manufacturer string
	ViaDevice    string
}

type GenericSensor struct {
	Device            Device
	Id                string
	SensorType        string
	Name              string
	UniqueId          string
	UnitOfMeasurement string
	StateClass        string
	DeviceClass       string
	EntityCategory    string
	EnabledByDefault  *bool
	Icon              string
	// CoordinatorId is empty for entities that do not depend on a gateway poll.
	CoordinatorId string
}

type GenericSwitch struct {
	Device        Device
	Id            string
	Name          string
	UniqueId      string
	Icon          string
	DeviceClass   string
	CoordinatorId string
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("plugwise_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "plugwise2mqtt",
		Model:        "plugwise2mqtt",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Plugwise bridge %s", md5HashShort(baseTopic)),
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {
	return []GenericSensor{{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     string(PlatformBinarySensor),
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	}}
}

// GatewayDevice describes a device behind a gateway. The gateway's own device
// uses an empty deviceId.
func GatewayDevice(gatewayId, deviceId, name, model, version string) Device {
	id := fmt.Sprintf("plugwise_%s", gatewayId)
	if deviceId != "" {
		id = fmt.Sprintf("%s_%s", id, Slug(deviceId))
	}
	return Device{
		Id:           id,
		Name:         name,
		Model:        model,
		Version:      version,
		Manufacturer: MANUFACTURER_PLUGWISE,
	}
}

// EntityId builds the object id used in MQTT topics for an entity.
func EntityId(gatewayId, deviceId, key string) string {
	return Slug(fmt.Sprintf("%s_%s_%s", gatewayId, deviceId, key))
}

func UniqueId(baseId, id string) string {
	return uniqueId(baseId, id)
}

var slugInvalid = regexp.MustCompile("[^a-z0-9_]+")

// Slug lowercases s and replaces every run of characters outside [a-z0-9_] with "_".
func Slug(s string) string {
	return strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(s), "_"), "_")
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func OptionalBool(value bool) *bool {
	return &value
}
