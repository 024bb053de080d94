package service

import (
	"context"
	"testing"

	"github.com/berfenger/plugwise2mqtt/internal/core/domain"
	"github.com/berfenger/plugwise2mqtt/pkg/plugwise"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPC = ProjectionContext{
	GatewayId:     "gw",
	CoordinatorId: "gw",
	Gateway:       domain.GatewayDevice("gw", "", "Adam", "Smile", "3.0.15"),
}

func collect(t *testing.T, v plugwise.Variant, client plugwise.SmileClient) ([]plugwise.DeviceRef, plugwise.SnapshotSet) {
	devices, err := client.GetDevices(context.Background())
	require.NoError(t, err)
	return devices, plugwise.CollectSnapshots(v, client, devices)
}

func entityIds(entities []*Entity) []string {
	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		ids = append(ids, e.Id)
	}
	return ids
}

func TestProjectThermostatPresence(t *testing.T) {
	v := plugwise.ThermostatVariant{}
	devices, snaps := collect(t, v, plugwise.CreateTestThermostatClient())

	entities := ProjectEntities(v, testPC, devices, snaps)

	assert.Equal(t, []string{
		"gw_ctrl01_boiler_temperature",
		"gw_ctrl01_outdoor_temperature",
		"gw_ctrl01_water_pressure",
		"gw_zone01_battery_charge",
		"gw_zone01_illuminance",
	}, entityIds(entities))

	boiler := entities[0]
	assert.Equal(t, "Controlled Device_boiler_temperature", boiler.Name)
	assert.Equal(t, "ctrl01", boiler.DeviceId)
	assert.Equal(t, "plugwise_gw_ctrl01", boiler.Device.Id)
	assert.Equal(t, testPC.Gateway.Id, boiler.Device.ViaDevice)
	state, ok := boiler.State()
	require.True(t, ok)
	assert.Equal(t, 54.2, state)
}

func TestProjectThermostatSkipsNilAndMissingDevices(t *testing.T) {
	v := plugwise.ThermostatVariant{}
	devices := []plugwise.DeviceRef{
		{Id: "ctrl01", Name: plugwise.ThermostatControllerName},
		{Id: "zone01", Name: "Living"},
	}
	snaps := plugwise.SnapshotSet{
		"ctrl01": {"boiler_temp": nil, "water_pressure": 1.5},
	}

	entities := ProjectEntities(v, testPC, devices, snaps)

	assert.Equal(t, []string{"gw_ctrl01_water_pressure"}, entityIds(entities))
}

func TestEntityKeepsStateWhenFieldDisappears(t *testing.T) {
	v := plugwise.ThermostatVariant{}
	client := plugwise.CreateTestThermostatClient()
	devices, snaps := collect(t, v, client)
	set := NewEntitySet(ProjectEntities(v, testPC, devices, snaps))
	boiler, ok := set.Get("gw_ctrl01_boiler_temperature")
	require.True(t, ok)

	client.SetDeviceData("ctrl01", plugwise.Snapshot{"water_pressure": 1.6})
	_, snaps = collect(t, v, client)
	set.Apply(snaps)
	state, _ := boiler.State()
	assert.Equal(t, 54.2, state)

	client.SetDeviceData("ctrl01", plugwise.Snapshot{"boiler_temp": nil})
	_, snaps = collect(t, v, client)
	set.Apply(snaps)
	state, _ = boiler.State()
	assert.Equal(t, 54.2, state)

	client.SetDeviceData("ctrl01", plugwise.Snapshot{"boiler_temp": 55.0})
	_, snaps = collect(t, v, client)
	set.Apply(snaps)
	state, _ = boiler.State()
	assert.Equal(t, 55.0, state)
}

func TestEntityIgnoresFieldsAddedLater(t *testing.T) {
	v := plugwise.ThermostatVariant{}
	client := plugwise.CreateTestThermostatClient()
	devices, snaps := collect(t, v, client)
	set := NewEntitySet(ProjectEntities(v, testPC, devices, snaps))

	client.SetDeviceData("zone01", plugwise.Snapshot{"battery": 0.5, "boiler_temp": 20.0})
	_, snaps = collect(t, v, client)
	set.Apply(snaps)

	assert.Equal(t, 5, set.Len())
	_, ok := set.Get("gw_zone01_boiler_temperature")
	assert.False(t, ok)
}

func TestProjectPowerSingleTariff(t *testing.T) {
	client := plugwise.CreateTestPowerClient(plugwise.TariffStructureSingle)
	v, err := plugwise.SmileVariant(client.Info())
	require.NoError(t, err)
	devices, snaps := collect(t, v, client)

	entities := ProjectEntities(v, testPC, devices, snaps)

	require.Len(t, entities, 6)
	for _, e := range entities {
		assert.NotContains(t, e.Capability.Key, "off")
		assert.Equal(t, "home01", e.DeviceId)
	}
}

func TestProjectPowerDoubleTariff(t *testing.T) {
	client := plugwise.CreateTestPowerClient("double")
	v, err := plugwise.SmileVariant(client.Info())
	require.NoError(t, err)
	devices, snaps := collect(t, v, client)

	entities := ProjectEntities(v, testPC, devices, snaps)

	assert.Len(t, entities, len(domain.PowerCapabilities))
}

func TestPowerCumulativeIsScaled(t *testing.T) {
	client := plugwise.CreateTestPowerClient("double")
	v, _ := plugwise.SmileVariant(client.Info())
	devices, snaps := collect(t, v, client)
	set := NewEntitySet(ProjectEntities(v, testPC, devices, snaps))

	e, ok := set.Get("gw_home01_electricity_consumed_peak_cumulative")
	require.True(t, ok)
	state, _ := e.State()
	assert.Equal(t, 125.0, state)

	point, ok := set.Get("gw_home01_electricity_consumed_peak_point")
	require.True(t, ok)
	state, _ = point.State()
	assert.Equal(t, 412.0, state)

	// produced off peak is not reported by this meter
	missing, ok := set.Get("gw_home01_electricity_produced_off_peak_cumulative")
	require.True(t, ok)
	_, has := missing.State()
	assert.False(t, has)
	assert.Nil(t, missing.UpdateEvent())
}

func TestProjectPowerWithoutController(t *testing.T) {
	v := plugwise.PowerVariant{}
	devices := []plugwise.DeviceRef{{Id: "meter", Name: "Meter"}}
	snaps := plugwise.SnapshotSet{"meter": {"electricity_consumed_peak_point": 1.0}}

	assert.Empty(t, ProjectEntities(v, testPC, devices, snaps))
}

func TestProjectStickNode(t *testing.T) {
	v := plugwise.StickVariant{}
	devices := []plugwise.DeviceRef{{Id: "000D6F0000AABBCC", Name: "Circle+"}}
	snaps := plugwise.SnapshotSet{"000D6F0000AABBCC": {
		"available": true,
		"power_1s":  12.5,
		"RSSI_in":   -60,
		"relay":     true,
	}}

	set := NewEntitySet(ProjectEntities(v, testPC, devices, snaps))

	require.Equal(t, 4, set.Len())
	rssi, ok := set.Get("gw_000d6f0000aabbcc_rssi_in")
	require.True(t, ok)
	state, _ := rssi.State()
	assert.Equal(t, -60, state)

	sensors, switches := set.Discovery("gw_000d6f0000aabbcc")
	assert.Len(t, sensors, 3)
	require.Len(t, switches, 1)
	assert.Equal(t, "gw_000d6f0000aabbcc_relay", switches[0].Id)
	assert.Equal(t, "gw_000d6f0000aabbcc", switches[0].CoordinatorId)
}

func TestEntityUpdateEvents(t *testing.T) {
	v := plugwise.StickVariant{}
	devices := []plugwise.DeviceRef{{Id: "node", Name: "Scan"}}
	snaps := plugwise.SnapshotSet{"node": {
		"available": "true",
		"ping":      "n/a",
		"power_8s":  "7.25",
		"relay":     false,
	}}
	set := NewEntitySet(ProjectEntities(v, testPC, devices, snaps))

	events := set.Apply(snaps)

	require.Len(t, events, 4)
	assert.Equal(t, domain.BinarySensorUpdateEvent{SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: "gw_node_available"}, Value: true}, events[0])
	assert.Equal(t, domain.TextSensorUpdateEvent{SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: "gw_node_ping"}, Value: "n/a"}, events[1])
	assert.Equal(t, domain.FloatSensorUpdateEvent{SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: "gw_node_power_8s"}, Value: 7.25, Decimals: 1}, events[2])
	assert.Equal(t, domain.SwitchSensorUpdateEvent{SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: "gw_node_relay"}, Value: false}, events[3])
}

func TestEntityStatusWhenUnavailable(t *testing.T) {
	v := plugwise.ThermostatVariant{}
	devices, snaps := collect(t, v, plugwise.CreateTestThermostatClient())
	set := NewEntitySet(ProjectEntities(v, testPC, devices, snaps))

	for _, st := range set.Statuses(false) {
		assert.False(t, st.Available)
		assert.Nil(t, st.State)
	}
	st := set.Statuses(true)[0]
	assert.True(t, st.Available)
	assert.Equal(t, 54.2, st.State)
}
