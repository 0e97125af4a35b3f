package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/bmsgateway/internal/adapter/actor"
	"github.com/berfenger/bmsgateway/internal/config"
	"github.com/berfenger/bmsgateway/internal/core/actor"
	"github.com/berfenger/bmsgateway/internal/core/domain"
	"github.com/berfenger/bmsgateway/internal/core/service"
	"github.com/berfenger/bmsgateway/internal/metrics"
	"github.com/berfenger/bmsgateway/internal/server"
	"github.com/berfenger/bmsgateway/internal/util/actorutil"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		os.Exit(1)
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	storage := domain.NewEnergyStorage(len(cfg.BMS))
	eventStream := &eventstream.EventStream{}
	bmsUnits := bmsUnitNames(cfg)

	gatewayMetrics := metrics.New(storage, bmsUnits)
	gatewayMetrics.Subscribe(eventStream)

	registry, err := buildPorts(cfg, gatewayMetrics, logger)
	if err != nil {
		logger.Fatal("could not create ports", zap.Error(err))
	}
	units, err := buildUnits(cfg, registry, storage, eventStream, logger)
	if err != nil {
		logger.Fatal("could not create units", zap.Error(err))
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterActor(units, storage, bmsUnits, eventStream, cfg.Monitor,
			mqttActorProvider(cfg, storage, bmsUnits, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		logger.Fatal("could not spawn master", zap.Error(err))
	}

	server := server.NewServer(*cfg, ctx, pid, gatewayMetrics.Registry)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	if err := ctx.StopFuture(pid).Wait(); err != nil {
		logger.Warn("master did not stop cleanly", zap.Error(err))
	}
	as.Shutdown()
	if err := registry.CloseAll(); err != nil {
		logger.Warn("closing ports", zap.Error(err))
	}
}

func initConfig() (*config.Config, error) {

	// alias PORT => BMSGATEWAY_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("BMSGATEWAY_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("bmsgateway")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	cfg.LogLevel = config.ParseLogLevel(viper.GetString("log_level"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func mqttActorProvider(cfg *config.Config, storage *domain.EnergyStorage, bmsUnits []string, logger *zap.Logger) actor.MQTTActorProvider {
	snapshots := func() domain.StorageSnapshot {
		return service.Snapshot(storage, bmsUnits)
	}
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		if !cfg.MQTT.Enable {
			return adactor.NewTestMQTTActor(cfg, logger)
		}
		return adactor.NewMQTTActor(cfg, es, snapshots, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("http_log", false)
	viper.SetDefault("mqtt.enable", false)
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.base_topic", "bmsgateway")
	viper.SetDefault("mqtt.payload_format", config.PAYLOAD_FORMAT_JSON)
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("monitor.watchdog_interval_seconds", 30)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	out, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		slog.Warn("could not print config", "error", err)
		return
	}
	slog.Info("Using config\n" + string(out))
}
