package mqtt

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/berfenger/plugwise2mqtt/internal/config"
	"github.com/berfenger/plugwise2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() *MQTTClient {
	return newMQTTClient(nil, config.MQTTConfig{BaseTopic: "plugwise", HADiscoveryTopic: "ha"})
}

func TestSwitchCommandParse(t *testing.T) {

	assert := assert.New(t)

	cmd, err := testClient().parseCommand("plugwise/switch/stick_000d6f_relay/command", []byte("on"))
	require.NoError(t, err)

	assert.Equal("stick_000d6f_relay", cmd.EntityId, "entity extract")
	assert.Equal(COMMAND_SWITCH, cmd.Command)
	assert.True(cmd.On())
}

func TestSwitchCommandParseFail(t *testing.T) {

	assert := assert.New(t)
	c := testClient()

	_, err := c.parseCommand("plugwise/switch/my_device/state", []byte("on"))
	assert.True(errors.Is(err, ErrNotACommand))

	_, err = c.parseCommand("other/plugwise/switch/my_device/command", []byte("on"))
	assert.True(errors.Is(err, ErrNotACommand))

	_, err = c.parseCommand("plugwise/switch/my_device/command", []byte("toggle"))
	assert.True(errors.Is(err, ErrInvalidPayload))
}

func TestTopics(t *testing.T) {
	c := testClient()

	assert.Equal(t, "plugwise/bridge/state", c.BridgeStateTopic())
	assert.Equal(t, "plugwise/sensor/x/state", c.SensorStateTopic("x"))
	assert.Equal(t, "plugwise/coordinator/adam/availability", c.CoordinatorAvailabilityTopic("adam"))
	assert.Equal(t, "plugwise/switch/+/command", c.commandTopic())
}

func TestSensorDiscoveryMessage(t *testing.T) {
	c := testClient()
	sensor := domain.GenericSensor{
		Device:        domain.Device{Id: "plugwise_adam_ctrl01", Name: "Controlled Device", ViaDevice: "plugwise_adam"},
		Id:            "adam_ctrl01_boiler_temperature",
		SensorType:    string(domain.PlatformSensor),
		Name:          "Boiler temperature",
		UniqueId:      "uid_plugwise_adam_ctrl01_boiler_temperature",
		DeviceClass:   domain.DEVICE_CLASS_TEMPERATURE,
		CoordinatorId: "adam",
	}

	assert.Equal(t, "ha/sensor/plugwise_adam_ctrl01/adam_ctrl01_boiler_temperature/config", HADiscoverySensorTopic(c, sensor))

	msg := GenericSensorToHADiscoveryMessage(c, sensor)
	assert.Equal(t, "plugwise/sensor/adam_ctrl01_boiler_temperature/state", msg.StateTopic)
	assert.Equal(t, AVAILABILITY_MODE_ALL, msg.AvailabilityMode)
	require.Len(t, msg.Availability, 2)
	assert.Equal(t, "plugwise/bridge/state", msg.Availability[0].Topic)
	assert.Equal(t, "plugwise/coordinator/adam/availability", msg.Availability[1].Topic)

	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"via_device":"plugwise_adam"`)
	assert.NotContains(t, string(payload), "command_topic")
}

func TestBridgeDiscoveryMessage(t *testing.T) {
	c := testClient()
	bridge := domain.BridgeSensors(domain.BridgeDevice("plugwise"))[0]

	msg := GenericSensorToHADiscoveryMessage(c, bridge)

	assert.Equal(t, c.BridgeStateTopic(), msg.StateTopic)
	assert.Equal(t, MQTT_PAYLOAD_ONLINE, msg.PayloadOn)
	assert.Empty(t, msg.Availability)
}

func TestSwitchDiscoveryMessage(t *testing.T) {
	c := testClient()
	sw := domain.GenericSwitch{
		Device:        domain.Device{Id: "plugwise_stick_000d6f"},
		Id:            "stick_000d6f_relay",
		Name:          "Relay state",
		CoordinatorId: "stick_000d6f",
	}

	assert.Equal(t, "ha/switch/plugwise_stick_000d6f/stick_000d6f_relay/config", HADiscoverySwitchTopic(c, sw))
	msg := GenericSwitchToHADiscoveryMessage(c, sw)
	assert.Equal(t, "plugwise/switch/stick_000d6f_relay/command", msg.CommandTopic)
	assert.Equal(t, "plugwise/coordinator/stick_000d6f/availability", msg.Availability[1].Topic)
}
