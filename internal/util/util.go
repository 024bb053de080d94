package util

import (
	"github.com/berfenger/plugwise2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		MQTT: config.MQTTConfig{
			Host:              "localhost",
			Port:              1883,
			BaseTopic:         "plugwise",
			HADiscoveryEnable: true,
			HADiscoveryTopic:  "homeassistant",
		},
		Gateways: []config.GatewayConfig{{
			Id:                  "adam",
			Kind:                config.GATEWAY_KIND_SMILE,
			Driver:              config.DRIVER_REPLAY,
			Fixture:             "-",
			ScanIntervalSeconds: 60,
			TimeoutMillis:       1000,
		}},
		CacheDir: "/tmp",
		Port:     8080,
	}
}
