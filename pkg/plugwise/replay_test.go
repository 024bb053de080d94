package plugwise

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const smileFixtureYAML = `
smile:
  type: power
  name: P1
  version: 3.3.9
  tariff: single
  devices:
    - id: home01
      name: Home
      data:
        electricity_consumed_peak_cumulative: 125000
        electricity_consumed_peak_point: 412.5
`

const stickFixtureYAML = `
stick:
  nodes:
    - mac: 000D6F0001A2B3C4
      name: Circle+
      available: true
      data:
        power_1s: 12.5
        relay: true
    - mac: 000D6F0001A2B3C5
      name: Scan
      available: false
`

func writeFixture(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReplaySmileClient(t *testing.T) {

	require := require.New(t)

	path := writeFixture(t, smileFixtureYAML)
	c := NewReplaySmileClient(path)
	require.NoError(c.Connect(t.Context()))

	info := c.Info()
	require.Equal(SmileTypePower, info.SmileType)
	require.Equal(TariffStructureSingle, info.PowerTariff[TariffStructureKey])

	devices, err := c.GetDevices(t.Context())
	require.NoError(err)
	require.Equal([]DeviceRef{{Id: "home01", Name: "Home"}}, devices)

	data := c.GetDeviceData("", "home01")
	require.Equal(125000, data["electricity_consumed_peak_cumulative"])
	require.Nil(c.GetDeviceData("missing", "home01"))

	// file changes are picked up on the next refresh
	require.NoError(os.WriteFile(path, []byte(`
smile:
  type: power
  devices:
    - id: home01
      name: Home
      data:
        electricity_consumed_peak_point: 99.5
`), 0o644))
	require.NoError(c.FullUpdateDevice(t.Context()))
	require.Equal(99.5, c.GetDeviceData("", "home01")["electricity_consumed_peak_point"])

	require.NoError(c.Disconnect(t.Context()))
	require.Nil(c.GetDeviceData("", "home01"))
}

func TestReplaySmileClientMissingFile(t *testing.T) {

	c := NewReplaySmileClient(filepath.Join(t.TempDir(), "nope.yaml"))
	err := c.Connect(t.Context())
	assert.True(t, errors.Is(err, ErrConnection), "connection error kind")
}

func TestReplayStickClient(t *testing.T) {

	require := require.New(t)

	path := writeFixture(t, stickFixtureYAML)
	c := NewReplayStickClient(path)
	cache := filepath.Join(t.TempDir(), "cache")
	c.SetCacheFolder(cache)

	require.Error(c.Initialize(t.Context()), "initialize before connect")
	require.NoError(c.Connect(t.Context()))
	require.NoError(c.Initialize(t.Context()))
	require.DirExists(cache)
	require.NoError(c.Setup(t.Context(), true, false))

	nodes := c.Nodes()
	require.Len(nodes, 2)
	circle := nodes["000D6F0001A2B3C4"]
	require.True(circle.Available())
	require.False(nodes["000D6F0001A2B3C5"].Available())

	_, err := circle.Update(t.Context())
	require.Error(err, "update before load")

	require.NoError(circle.Load(t.Context()))
	data, err := circle.Update(t.Context())
	require.NoError(err)
	require.Equal(12.5, data["power_1s"])
	require.Equal(true, data["relay"])

	require.NoError(circle.SetRelay(t.Context(), false))
	data, err = circle.Update(t.Context())
	require.NoError(err)
	require.Equal(false, data["relay"])
}

func TestGatewayFromEntry(t *testing.T) {

	assert := assert.New(t)

	entry := zeroconf.NewServiceEntry("smile123456", ServiceType, ServiceDomain)
	entry.HostName = "smile123456.local."
	entry.Port = 80
	entry.Text = []string{"product=smile_open_therm", "version=3.0.15"}

	gw := gatewayFromEntry(entry)
	if assert.NotNil(gw) {
		assert.Equal("Adam", gw.Model)
		assert.Equal("smile123456.local", gw.Host)
		assert.Equal("3.0.15", gw.Version)
	}

	entry.Text = []string{"product=unknown"}
	assert.Nil(gatewayFromEntry(entry), "unknown product")
}
