package plugwise

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"
)

// In-memory gateway clients for tests and local runs.

type TestDevice struct {
	Id   string
	Name string
	Data Snapshot
}

type TestSmileClient struct {
	mu          sync.Mutex
	info        SmileInfo
	devices     []TestDevice
	connectErr  error
	refreshErr  error
	delay       time.Duration
	refreshes   int
	connected   bool
	disconnects int
}

func NewTestSmileClient(info SmileInfo, devices ...TestDevice) *TestSmileClient {
	return &TestSmileClient{
		info:    info,
		devices: devices,
	}
}

func CreateTestThermostatClient() *TestSmileClient {
	return NewTestSmileClient(SmileInfo{SmileType: SmileTypeThermostat, Name: "Adam", Version: "3.0.15"},
		TestDevice{Id: "ctrl01", Name: ThermostatControllerName, Data: Snapshot{
			"boiler_temp":    54.2,
			"water_pressure": 1.7,
			"outdoor_temp":   "9.3",
		}},
		TestDevice{Id: "zone01", Name: "Living", Data: Snapshot{
			"battery":      0.84,
			"illuminance":  "0.8",
			"current_temp": 21.7,
		}},
	)
}

func CreateTestPowerClient(tariff string) *TestSmileClient {
	return NewTestSmileClient(SmileInfo{
		SmileType:   SmileTypePower,
		Name:        "P1",
		Version:     "3.3.9",
		PowerTariff: map[string]string{TariffStructureKey: tariff},
	},
		TestDevice{Id: "home01", Name: PowerControllerName, Data: Snapshot{
			"electricity_consumed_peak_point":          412.0,
			"electricity_consumed_off_peak_point":      0.0,
			"electricity_consumed_peak_cumulative":     125000.0,
			"electricity_consumed_off_peak_cumulative": 98000.0,
			"electricity_produced_peak_point":          0.0,
			"electricity_produced_peak_cumulative":     4500.0,
			"gas_consumed_point_peak_point":            0.0,
			"gas_consumed_point_peak_cumulative":       1432000.0,
		}},
	)
}

func (c *TestSmileClient) SetConnectError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectErr = err
}

func (c *TestSmileClient) SetRefreshError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshErr = err
}

// SetDelay makes every refresh take at least d.
func (c *TestSmileClient) SetDelay(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delay = d
}

func (c *TestSmileClient) SetDeviceData(id string, data Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.devices {
		if c.devices[i].Id == id {
			c.devices[i].Data = data
		}
	}
}

func (c *TestSmileClient) Refreshes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshes
}

func (c *TestSmileClient) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

func (c *TestSmileClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectErr != nil {
		return ConnectionError("connect", c.connectErr)
	}
	c.connected = true
	return nil
}

func (c *TestSmileClient) FullUpdateDevice(ctx context.Context) error {
	c.mu.Lock()
	delay, err := c.delay, c.refreshErr
	c.refreshes++
	c.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return ConnectionError("full update", err)
	}
	return nil
}

func (c *TestSmileClient) GetDevices(ctx context.Context) ([]DeviceRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	refs := make([]DeviceRef, 0, len(c.devices))
	for _, dev := range c.devices {
		refs = append(refs, DeviceRef{Id: dev.Id, Name: dev.Name})
	}
	return refs, nil
}

func (c *TestSmileClient) GetDeviceData(deviceId, controllerId string) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := deviceId
	if id == "" {
		id = controllerId
	}
	for _, dev := range c.devices {
		if dev.Id == id && dev.Data != nil {
			return maps.Clone(dev.Data)
		}
	}
	return nil
}

func (c *TestSmileClient) Info() SmileInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

func (c *TestSmileClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnects++
	return nil
}

// Stick

type TestStickClient struct {
	mu          sync.Mutex
	cacheFolder string
	nodes       map[string]StickNode
	initErr     error
	setupErr    error
	disconnects int
}

func NewTestStickClient(nodes ...*TestStickNode) *TestStickClient {
	c := &TestStickClient{nodes: map[string]StickNode{}}
	for _, n := range nodes {
		c.nodes[n.mac] = n
	}
	return c
}

func (c *TestStickClient) SetInitializeError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initErr = err
}

func (c *TestStickClient) SetSetupError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setupErr = err
}

func (c *TestStickClient) CacheFolder() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cacheFolder
}

func (c *TestStickClient) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

func (c *TestStickClient) SetCacheFolder(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheFolder = path
}

func (c *TestStickClient) Connect(ctx context.Context) error {
	return nil
}

func (c *TestStickClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initErr != nil {
		return ConnectionError("initialize", c.initErr)
	}
	return nil
}

func (c *TestStickClient) Setup(ctx context.Context, discover, load bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setupErr != nil {
		return ConnectionError("setup", c.setupErr)
	}
	return nil
}

func (c *TestStickClient) Nodes() map[string]StickNode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.nodes)
}

func (c *TestStickClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	return nil
}

type TestStickNode struct {
	mu         sync.Mutex
	mac        string
	name       string
	available  bool
	loaded     bool
	loadErr    error
	updateErr  error
	hang       bool
	relayDelay time.Duration
	data       Snapshot
}

func NewTestStickNode(mac, name string, available bool, data Snapshot) *TestStickNode {
	return &TestStickNode{
		mac:       mac,
		name:      name,
		available: available,
		data:      data,
	}
}

func (n *TestStickNode) SetUpdateError(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updateErr = err
}

// SetHang makes Update block until its context is done.
func (n *TestStickNode) SetHang(hang bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hang = hang
}

// SetRelayDelay makes SetRelay take d, or until its context is done.
func (n *TestStickNode) SetRelayDelay(d time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.relayDelay = d
}

func (n *TestStickNode) SetLoadError(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.loadErr = err
}

func (n *TestStickNode) Loaded() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.loaded
}

func (n *TestStickNode) Mac() string  { return n.mac }
func (n *TestStickNode) Name() string { return n.name }

func (n *TestStickNode) Available() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.available
}

func (n *TestStickNode) Load(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.loadErr != nil {
		return n.loadErr
	}
	n.loaded = true
	return nil
}

func (n *TestStickNode) Update(ctx context.Context) (Snapshot, error) {
	n.mu.Lock()
	hang := n.hang
	n.mu.Unlock()
	if hang {
		<-ctx.Done()
		return nil, ConnectionError("node update", ctx.Err())
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.updateErr != nil {
		return nil, ConnectionError("node update", n.updateErr)
	}
	return maps.Clone(n.data), nil
}

func (n *TestStickNode) SetRelay(ctx context.Context, on bool) error {
	n.mu.Lock()
	delay := n.relayDelay
	n.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ConnectionError("set relay", ctx.Err())
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.data["relay"]; !ok {
		return errors.New("node has no relay")
	}
	n.data["relay"] = on
	return nil
}
