// ThingLink Core pairs and controls cloud-bound smart devices through a
// provider bridge reached over MQTT.
//
// This is the composition root: it loads configuration, opens the
// infrastructure connections, wires the pairing and control components
// together and serves the HTTP/WebSocket API until a shutdown signal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/thinglink-core/internal/api"
	"github.com/nerrad567/thinglink-core/internal/audit"
	"github.com/nerrad567/thinglink-core/internal/auth"
	"github.com/nerrad567/thinglink-core/internal/control"
	"github.com/nerrad567/thinglink-core/internal/datapoint"
	"github.com/nerrad567/thinglink-core/internal/device"
	"github.com/nerrad567/thinglink-core/internal/infrastructure/config"
	"github.com/nerrad567/thinglink-core/internal/infrastructure/database"
	"github.com/nerrad567/thinglink-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/thinglink-core/internal/infrastructure/logging"
	"github.com/nerrad567/thinglink-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/thinglink-core/internal/metrics"
	"github.com/nerrad567/thinglink-core/internal/pairing"
	"github.com/nerrad567/thinglink-core/internal/provider"
	"github.com/nerrad567/thinglink-core/internal/status"
	"github.com/nerrad567/thinglink-core/internal/subscription"
	"github.com/nerrad567/thinglink-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// seedLimit caps how many recent devices get an offline status entry on
// startup.
const seedLimit = 100

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Deferred cleanups unwind in reverse start order.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting ThingLink Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Device registry and session store
	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log.Component("device"))
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", registry.Len())

	trail := audit.NewTrail(audit.NewSQLiteRepository(db.DB))
	trail.SetLogger(log.Component("audit"))

	kv := device.NewKVStore(db.DB)
	if profileErr := kv.SetJSON(ctx, device.KeyProfile, cfg.Home); profileErr != nil {
		return fmt.Errorf("saving profile: %w", profileErr)
	}

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// MQTT
	topics := provider.NewTopics(cfg.Provider.TopicPrefix)
	mqttClient, err := mqtt.Connect(cfg.MQTT, topics.CoreStatus())
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
	mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"topic_prefix", topics.Prefix(),
	)

	// Provider client, plus the bridge sidecar when managed
	providerClient := provider.NewClient(mqttClient, topics, cfg.RequestTimeout())
	providerClient.SetLogger(log.Component("provider"))

	if cfg.Provider.Bridge.Managed {
		supervisor, supErr := startBridge(ctx, cfg, providerClient, log)
		if supErr != nil {
			return supErr
		}
		defer func() {
			log.Info("stopping provider bridge")
			if stopErr := supervisor.Stop(); stopErr != nil {
				log.Error("error stopping provider bridge", "error", stopErr)
			}
		}()
	}

	if startErr := providerClient.Start(); startErr != nil {
		return fmt.Errorf("starting provider client: %w", startErr)
	}
	defer func() {
		if closeErr := providerClient.Close(); closeErr != nil {
			log.Error("error closing provider client", "error", closeErr)
		}
	}()

	// Data points and status
	codec, err := buildCodec(cfg)
	if err != nil {
		return err
	}
	codec.SetLogger(log.Component("datapoint"))
	log.Info("data point registry loaded", "datapoints", codec.Registry().Len())

	statusOpts := []status.Option{status.WithLogger(log.Component("status"))}
	var attempts metrics.AttemptWriter
	if influxClient != nil {
		statusOpts = append(statusOpts, status.WithSink(influxClient))
		attempts = influxClient
	}
	store := status.NewStore(codec, statusOpts...)
	for _, d := range registry.Recent(seedLimit) {
		store.Seed(d.DevID)
	}
	log.Info("status store seeded", "devices", store.Len())

	// Pairing
	m := metrics.New(attempts)
	scan := pairing.NewScanSession(providerClient, pairing.WithScanLogger(log.Component("scan")))
	coordinator := pairing.NewCoordinator(providerClient, scan, pairing.Config{
		HomeID:        cfg.Home.ID,
		ScanTimeout:   cfg.ScanTimeout(),
		BLETimeout:    time.Duration(cfg.Pairing.BLETimeoutMS) * time.Millisecond,
		ComboTimeout:  time.Duration(cfg.Pairing.ComboTimeoutMS) * time.Millisecond,
		WifiEzTimeout: time.Duration(cfg.Pairing.WifiEzTimeoutMS) * time.Millisecond,
		CancelledTTL:  cfg.CancelledTTL(),
	},
		pairing.WithLogger(log.Component("pairing")),
		pairing.WithRecorder(m),
	)
	coordinator.OnResult(persistPaired(ctx, cfg.Home.ID, registry, store, log))
	coordinator.OnResult(func(res pairing.Result) { trail.PairingFinished(ctx, res) })

	// Provider events
	dispatcher, err := provider.NewDispatcher(provider.DispatcherDeps{
		Transport: mqttClient,
		Topics:    topics,
		Scan:      scan,
		Progress:  coordinator,
		Status:    store,
		Homes:     providerClient,
		OnDeviceRemoved: func(deviceID string) {
			registry.Forget(ctx, deviceID)
			trail.DeviceRemoved(ctx, deviceID, "", audit.SourceProvider)
		},
		Logger: log.Component("dispatcher"),
	})
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}
	homeSubs := subscription.NewManager(dispatcher.WatchHomes, dispatcher.UnwatchHomes)
	if startErr := dispatcher.Start(); startErr != nil {
		return fmt.Errorf("starting dispatcher: %w", startErr)
	}
	defer func() {
		log.Info("stopping dispatcher")
		if stopErr := dispatcher.Stop(); stopErr != nil {
			log.Error("error stopping dispatcher", "error", stopErr)
		}
	}()

	// Control
	controller := control.New(codec, providerClient, store)
	controller.SetLogger(log.Component("control"))

	// API
	issuer := auth.NewIssuer(cfg.Security.JWT.Secret, cfg.Security.APIKey,
		time.Duration(cfg.Security.JWT.AccessTokenTTL)*time.Minute)
	if cfg.Security.APIKey != "" {
		if kvErr := kv.Set(ctx, device.KeyLoginMethod, "api_key"); kvErr != nil {
			log.Warn("failed to record login method", "error", kvErr)
		}
	}

	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log.Component("api"),
		Coordinator: coordinator,
		Status:      store,
		Controller:  controller,
		Codec:       codec,
		Devices:     registry,
		Issuer:      issuer,
		HomeSubs:    homeSubs,
		HomeEvents:  dispatcher,
		Remover:     providerClient,
		Audit:       trail,
		Metrics:     m,
		HealthCheck: healthChecks(db, mqttClient, influxClient),
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if sessErr := kv.SetSessionActive(ctx, true); sessErr != nil {
		log.Warn("failed to mark session active", "error", sessErr)
	}
	defer func() {
		if sessErr := kv.SetSessionActive(context.Background(), false); sessErr != nil {
			log.Warn("failed to clear session flag", "error", sessErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: session flag, API, dispatcher,
	// provider client, bridge, MQTT, InfluxDB, database.
	return nil
}

// getConfigPath returns the configuration file path.
// Uses THINGLINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("THINGLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildCodec loads the DP registry file when configured and falls back
// to the built-in descriptors.
func buildCodec(cfg *config.Config) (*datapoint.Codec, error) {
	if cfg.DataPoints.RegistryFile == "" {
		return datapoint.NewCodec(nil), nil
	}
	reg, err := datapoint.LoadRegistry(cfg.DataPoints.RegistryFile)
	if err != nil {
		return nil, fmt.Errorf("loading data point registry: %w", err)
	}
	return datapoint.NewCodec(reg), nil
}

// startBridge launches the provider bridge under supervision. The
// watchdog pings the bridge through the provider client.
func startBridge(ctx context.Context, cfg *config.Config, client *provider.Client, log *logging.Logger) (*provider.Supervisor, error) {
	supCfg := provider.SupervisorConfigFrom(cfg.Provider.Bridge)
	supCfg.HealthCheck = client.Ping

	supervisor := provider.NewSupervisor(supCfg)
	supervisor.SetLogger(log.Component("bridge"))
	if err := supervisor.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting provider bridge: %w", err)
	}
	log.Info("provider bridge started", "binary", supCfg.Binary)
	return supervisor, nil
}

// persistPaired records successful activations and gives the new device
// a status entry.
func persistPaired(ctx context.Context, homeID string, registry *device.Registry, store *status.Store, log *logging.Logger) func(pairing.Result) {
	return func(res pairing.Result) {
		if res.Err != nil || res.Device == nil {
			return
		}
		d := device.FromPairing(*res.Device, homeID, res.Mode, time.Now())
		if err := registry.Record(ctx, d); err != nil {
			log.Error("failed to persist paired device", "dev_id", d.DevID, "error", err)
			return
		}
		store.Seed(d.DevID)
		if res.Device.IsOnline {
			store.ApplyStatusChanged(d.DevID, true)
		}
	}
}

// healthChecks builds the GET /health checks. InfluxDB is optional.
func healthChecks(db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{
		"database": db.HealthCheck,
		"mqtt":     mqttClient.HealthCheck,
	}
	if influxClient != nil {
		checks["influxdb"] = influxClient.HealthCheck
	}
	return checks
}
