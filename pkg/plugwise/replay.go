package plugwise

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Replay clients serve gateway state from a YAML fixture file. The file is read
// again on every refresh, so an external process can keep it current.
//
//	smile:
//	  type: thermostat
//	  tariff: single
//	  devices:
//	    - id: abc
//	      name: Controlled Device
//	      data: {boiler_temp: 54.2}
//	stick:
//	  nodes:
//	    - mac: 000D6F0001A2B3C4
//	      name: Circle+
//	      available: true
//	      data: {power_1s: 12.5, relay: true}

type fixtureFile struct {
	Smile *smileFixture `yaml:"smile"`
	Stick *stickFixture `yaml:"stick"`
}

type smileFixture struct {
	Type    string          `yaml:"type"`
	Name    string          `yaml:"name"`
	Version string          `yaml:"version"`
	Tariff  string          `yaml:"tariff"`
	Devices []deviceFixture `yaml:"devices"`
}

type deviceFixture struct {
	Id   string         `yaml:"id"`
	Name string         `yaml:"name"`
	Data map[string]any `yaml:"data"`
}

type stickFixture struct {
	Nodes []nodeFixture `yaml:"nodes"`
}

type nodeFixture struct {
	Mac       string         `yaml:"mac"`
	Name      string         `yaml:"name"`
	Available bool           `yaml:"available"`
	Data      map[string]any `yaml:"data"`
}

func readFixture(path string) (*fixtureFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fixtureFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// Smile

type ReplaySmileClient struct {
	path string

	mu      sync.Mutex
	current *smileFixture
}

func NewReplaySmileClient(path string) *ReplaySmileClient {
	return &ReplaySmileClient{path: path}
}

func (c *ReplaySmileClient) load() error {
	f, err := readFixture(c.path)
	if err != nil {
		return err
	}
	if f.Smile == nil {
		return fmt.Errorf("fixture %s has no smile section", c.path)
	}
	c.mu.Lock()
	c.current = f.Smile
	c.mu.Unlock()
	return nil
}

func (c *ReplaySmileClient) Connect(ctx context.Context) error {
	if err := c.load(); err != nil {
		return ConnectionError("connect", err)
	}
	return nil
}

func (c *ReplaySmileClient) FullUpdateDevice(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.load(); err != nil {
		return ConnectionError("full update", err)
	}
	return nil
}

func (c *ReplaySmileClient) GetDevices(ctx context.Context) ([]DeviceRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, ConnectionError("get devices", errors.New("not connected"))
	}
	refs := make([]DeviceRef, 0, len(c.current.Devices))
	for _, dev := range c.current.Devices {
		refs = append(refs, DeviceRef{Id: dev.Id, Name: dev.Name})
	}
	return refs, nil
}

func (c *ReplaySmileClient) GetDeviceData(deviceId, controllerId string) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	id := deviceId
	if id == "" {
		id = controllerId
	}
	for _, dev := range c.current.Devices {
		if dev.Id == id && dev.Data != nil {
			return Snapshot(maps.Clone(dev.Data))
		}
	}
	return nil
}

func (c *ReplaySmileClient) Info() SmileInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return SmileInfo{}
	}
	info := SmileInfo{
		SmileType: c.current.Type,
		Name:      c.current.Name,
		Version:   c.current.Version,
	}
	if c.current.Tariff != "" {
		info.PowerTariff = map[string]string{TariffStructureKey: c.current.Tariff}
	}
	return info
}

func (c *ReplaySmileClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
	return nil
}

// Stick

type ReplayStickClient struct {
	path string

	mu          sync.Mutex
	cacheFolder string
	nodes       map[string]StickNode
	relays      map[string]bool
	connected   bool
}

func NewReplayStickClient(path string) *ReplayStickClient {
	return &ReplayStickClient{
		path:   path,
		nodes:  map[string]StickNode{},
		relays: map[string]bool{},
	}
}

func (c *ReplayStickClient) SetCacheFolder(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheFolder = path
}

func (c *ReplayStickClient) Connect(ctx context.Context) error {
	if _, err := os.Stat(c.path); err != nil {
		return ConnectionError("connect", err)
	}
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

func (c *ReplayStickClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	connected, cacheFolder := c.connected, c.cacheFolder
	c.mu.Unlock()
	if !connected {
		return ConnectionError("initialize", errors.New("not connected"))
	}
	if cacheFolder != "" {
		if err := os.MkdirAll(cacheFolder, 0o755); err != nil {
			return fmt.Errorf("create cache folder: %w", err)
		}
	}
	return nil
}

func (c *ReplayStickClient) Setup(ctx context.Context, discover, load bool) error {
	f, err := readFixture(c.path)
	if err != nil {
		return ConnectionError("setup", err)
	}
	if f.Stick == nil {
		return fmt.Errorf("fixture %s has no stick section", c.path)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !discover {
		return nil
	}
	for _, n := range f.Stick.Nodes {
		c.nodes[n.Mac] = &replayStickNode{
			client:    c,
			mac:       n.Mac,
			name:      n.Name,
			available: n.Available,
			loaded:    load,
		}
	}
	return nil
}

func (c *ReplayStickClient) Nodes() map[string]StickNode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.nodes)
}

func (c *ReplayStickClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	return nil
}

func (c *ReplayStickClient) nodeData(mac string) (Snapshot, error) {
	f, err := readFixture(c.path)
	if err != nil {
		return nil, err
	}
	if f.Stick == nil {
		return nil, fmt.Errorf("fixture %s has no stick section", c.path)
	}
	for _, n := range f.Stick.Nodes {
		if n.Mac != mac {
			continue
		}
		data := Snapshot(maps.Clone(n.Data))
		if data == nil {
			data = Snapshot{}
		}
		c.mu.Lock()
		if on, ok := c.relays[mac]; ok {
			data["relay"] = on
		}
		c.mu.Unlock()
		return data, nil
	}
	return nil, fmt.Errorf("node %s not found", mac)
}

type replayStickNode struct {
	client    *ReplayStickClient
	mac       string
	name      string
	available bool
	loaded    bool
}

func (n *replayStickNode) Mac() string     { return n.mac }
func (n *replayStickNode) Name() string    { return n.name }
func (n *replayStickNode) Available() bool { return n.available }

func (n *replayStickNode) Load(ctx context.Context) error {
	if _, err := n.client.nodeData(n.mac); err != nil {
		return err
	}
	n.loaded = true
	return nil
}

func (n *replayStickNode) Update(ctx context.Context) (Snapshot, error) {
	if !n.loaded {
		return nil, fmt.Errorf("node %s not loaded", n.mac)
	}
	data, err := n.client.nodeData(n.mac)
	if err != nil {
		return nil, ConnectionError("node update", err)
	}
	return data, nil
}

func (n *replayStickNode) SetRelay(ctx context.Context, on bool) error {
	n.client.mu.Lock()
	defer n.client.mu.Unlock()
	n.client.relays[n.mac] = on
	return nil
}
