package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	adactor "github.com/berfenger/plugwise2mqtt/internal/adapter/actor"
	"github.com/berfenger/plugwise2mqtt/internal/config"
	"github.com/berfenger/plugwise2mqtt/internal/core/actor"
	"github.com/berfenger/plugwise2mqtt/internal/metrics"
	"github.com/berfenger/plugwise2mqtt/internal/server"
	"github.com/berfenger/plugwise2mqtt/internal/util/actorutil"
	"github.com/berfenger/plugwise2mqtt/pkg/plugwise"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		os.Exit(1)
	}
	safePrintConfig(*cfg)

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("plugwise2mqtt stopped", zap.Error(err))
		os.Exit(1)
	}
}

// run starts the actor tree and the HTTP server and blocks until ctx is done.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()
	root := as.Root

	collector := metrics.NewCollector("plugwise")
	master, err := root.SpawnNamed(actor.MasterProps(*cfg, gatewayActorProvider(cfg, logger), mqttActorProvider(cfg, logger), collector, logger), "master")
	if err != nil {
		return fmt.Errorf("start master actor: %w", err)
	}
	defer func() {
		// gateways disconnect their clients while stopping
		if err := root.StopFuture(master).Wait(); err != nil {
			logger.Warn("master did not stop cleanly", zap.Error(err))
		}
	}()

	httpServer := server.NewServer(*cfg, root, master, collector.Handler())
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down gracefully, press Ctrl+C again to force")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server forced to shutdown", zap.Error(err))
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	// alias PORT => PLUGWISE_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("PLUGWISE_PORT", port)
	}

	setConfigDefaults()
	viper.SetEnvPrefix("plugwise")
	viper.AutomaticEnv()

	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		slog.Info("Using config", "file", cfgFile)
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.LogLevel = parseLogLevel(viper.GetString("log_level"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// parseLogLevel accepts zap level names plus "trace"; anything else means info.
func parseLogLevel(s string) zapcore.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "trace" {
		return zapcore.DebugLevel
	}
	level, err := zapcore.ParseLevel(s)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

func gatewayActorProvider(cfg *config.Config, logger *zap.Logger) actor.GatewayActorProvider {
	return func(gw config.GatewayConfig) pactor.Actor {
		// replay is the only driver; Validate rejects the rest
		switch gw.Kind {
		case config.GATEWAY_KIND_STICK:
			return adactor.NewStickActor(gw.Id, plugwise.NewReplayStickClient(gw.Fixture), cfg.CacheDir, logger)
		default:
			return adactor.NewSmileActor(gw.Id, plugwise.NewReplaySmileClient(gw.Fixture), logger)
		}
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "plugwise")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("discovery.timeout_seconds", 5)
	viper.SetDefault("cache_dir", os.TempDir())
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	const redacted = "*redacted*"
	cfg.MQTT.Username = redacted
	cfg.MQTT.Password = redacted
	slog.Info("Using", "config", cfg)
}
