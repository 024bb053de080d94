package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

const (
	GATEWAY_KIND_SMILE = "smile"
	GATEWAY_KIND_STICK = "stick"
	DRIVER_REPLAY      = "replay"

	DEFAULT_TIMEOUT = 10 * time.Second
)

type Config struct {
	LogLevel  zapcore.Level
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Gateways  []GatewayConfig `mapstructure:"gateways"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	CacheDir  string          `mapstructure:"cache_dir"`
	Port      uint            `mapstructure:"port"`
	HttpLog   bool            `mapstructure:"http_log"`
}

// GatewayConfig describes one Smile or Stick. Driver selects the client
// implementation; Fixture feeds the replay driver, the only one available.
type GatewayConfig struct {
	Id                  string
	Kind                string
	Driver              string
	Fixture             string
	ScanIntervalSeconds uint32 `mapstructure:"scan_interval_seconds"`
	TimeoutMillis       uint32 `mapstructure:"timeout_millis"`
}

type DiscoveryConfig struct {
	TimeoutSeconds uint32 `mapstructure:"timeout_seconds"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

// ScanInterval returns the configured poll interval, or fallback when unset.
func (g GatewayConfig) ScanInterval(fallback time.Duration) time.Duration {
	if g.ScanIntervalSeconds == 0 {
		return fallback
	}
	return time.Duration(g.ScanIntervalSeconds) * time.Second
}

func (g GatewayConfig) Timeout() time.Duration {
	if g.TimeoutMillis == 0 {
		return DEFAULT_TIMEOUT
	}
	return time.Duration(g.TimeoutMillis) * time.Millisecond
}

func (d DiscoveryConfig) Timeout() time.Duration {
	if d.TimeoutSeconds == 0 {
		return 5 * time.Second
	}
	return time.Duration(d.TimeoutSeconds) * time.Second
}

func (c Config) Gateway(id string) (GatewayConfig, bool) {
	for _, g := range c.Gateways {
		if g.Id == id {
			return g, true
		}
	}
	return GatewayConfig{}, false
}

// Validate normalizes topics and gateway ids and checks gateway bounds.
func (c *Config) Validate() error {
	baseTopic, err := CheckMQTTTopic(c.MQTT.BaseTopic)
	if err != nil {
		return errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	c.MQTT.BaseTopic = baseTopic

	hadTopic, err := CheckMQTTTopic(c.MQTT.HADiscoveryTopic)
	if err != nil {
		return errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	c.MQTT.HADiscoveryTopic = hadTopic

	if len(c.Gateways) == 0 {
		return errors.New("at least one gateway must be configured")
	}
	seen := map[string]bool{}
	for i := range c.Gateways {
		g := &c.Gateways[i]
		id, err := CheckMQTTTopic(g.Id)
		if err != nil {
			return fmt.Errorf("gateways[%d]: invalid id %q: %w", i, g.Id, err)
		}
		if seen[id] {
			return fmt.Errorf("gateways[%d]: duplicated id %q", i, id)
		}
		seen[id] = true
		g.Id = id

		if g.Kind != GATEWAY_KIND_SMILE && g.Kind != GATEWAY_KIND_STICK {
			return fmt.Errorf("gateway %s: kind must be %q or %q", id, GATEWAY_KIND_SMILE, GATEWAY_KIND_STICK)
		}
		if g.Driver == "" {
			g.Driver = DRIVER_REPLAY
		}
		if g.Driver != DRIVER_REPLAY {
			return fmt.Errorf("gateway %s: unsupported driver %q", id, g.Driver)
		}
		if g.Fixture == "" {
			return fmt.Errorf("gateway %s: replay driver needs a fixture", id)
		}
		if g.ScanIntervalSeconds > 0 && g.ScanIntervalSeconds < 2 {
			return fmt.Errorf("gateway %s: scan_interval_seconds should be >= 2", id)
		}
		if g.TimeoutMillis > 0 && g.TimeoutMillis < 500 {
			return fmt.Errorf("gateway %s: timeout_millis should be >= 500", id)
		}
	}
	return nil
}

var topicRegexp = regexp.MustCompile("^[a-z0-9_]+$")

func CheckMQTTTopic(baseTopic string) (string, error) {
	lowerBaseTopic := strings.ToLower(baseTopic)
	if !topicRegexp.MatchString(lowerBaseTopic) {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
