// Gray Logic Lock Bridge
//
// This is the main entry point for the lock bridge. It acquires a vendor
// smart lock at startup and exposes it to the rest of Gray Logic:
//   - as a door_lock device in the local registry
//   - on the MQTT bus (commands, acks, retained state, bridge health)
//   - over the REST API and WebSocket
//
// Lock acquisition failure is fatal: run returns the error and the
// process exits non-zero.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-lockbridge/internal/api"
	"github.com/nerrad567/gray-logic-lockbridge/internal/bridges/smartlock"
	"github.com/nerrad567/gray-logic-lockbridge/internal/device"
	"github.com/nerrad567/gray-logic-lockbridge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-lockbridge/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-lockbridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-lockbridge/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-lockbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-lockbridge/internal/lock"
	"github.com/nerrad567/gray-logic-lockbridge/internal/lock/cloud"
	"github.com/nerrad567/gray-logic-lockbridge/internal/lock/simulator"
	"github.com/nerrad567/gray-logic-lockbridge/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	// historyRetention is how long state history rows are kept.
	historyRetention = 90 * 24 * time.Hour

	historyPruneInterval = 24 * time.Hour
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting Gray Logic Lock Bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // best-effort on exit
	log.Info("configuration loaded", "path", configPath, "lock", cfg.Lock.String())

	// Database
	db, err := database.Open(ctx, cfg.Database)
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

	deviceRegistry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	deviceRegistry.SetLogger(log)
	if refreshErr := deviceRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	stateHistory := device.NewSQLiteStateHistoryRepository(db.DB)
	log.Info("device registry initialised", "devices", deviceRegistry.GetDeviceCount())

	// MQTT
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
	mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	var metrics smartlock.Metrics
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
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
		metrics = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Lock bridge
	bridge, err := smartlock.NewBridge(smartlock.BridgeOptions{
		MQTTClient:     mqttClient,
		Registry:       deviceRegistry,
		History:        stateHistory,
		Metrics:        metrics,
		Logger:         log,
		DeviceIDs:      bridgeDeviceIDs(cfg.Lock),
		Backend:        cfg.Lock.Backend.Type,
		PollInterval:   cfg.Lock.GetPollInterval(),
		HealthInterval: cfg.Lock.GetHealthInterval(),
		Version:        version,
	})
	if err != nil {
		return fmt.Errorf("creating lock bridge: %w", err)
	}
	defer func() {
		log.Info("stopping lock bridge")
		bridge.Stop()
	}()

	if cfg.Lock.Enabled {
		service, err := newLockService(cfg.Lock)
		if err != nil {
			return fmt.Errorf("creating lock service: %w", err)
		}
		if err := initialiseLock(ctx, cfg.Lock, service, bridge, influxClient, log); err != nil {
			return err
		}
	} else {
		log.Info("lock disabled; bridge will manage no locks")
	}

	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting lock bridge: %w", err)
	}

	// REST API
	if cfg.API.Enabled {
		apiServer, err := api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Security: cfg.Security,
			Logger:   log,
			Locks:    bridge,
			Devices:  deviceRegistry,
			Version:  version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := apiServer.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	waitPruner := startHistoryPruner(ctx, stateHistory, log)

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// The pruner writes to the database, which closes in a deferred call.
	waitPruner()

	// Deferred calls run in reverse: API, bridge, InfluxDB, MQTT, database.
	return nil
}

// getConfigPath returns GRAYLOGIC_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// newLockService builds the vendor service selected by lock.backend.type.
func newLockService(cfg config.LockConfig) (lock.Service, error) {
	switch cfg.Backend.Type {
	case config.BackendCloud:
		return cloud.New(cloud.Options{
			URL:     cfg.Backend.URL,
			Timeout: cfg.GetBackendTimeout(),
		})
	case config.BackendSimulator:
		sim := simulator.New(cfg.Email, cfg.Password)
		sim.AddLock(cfg.LockID, "Simulated Lock", simulator.BoltUnlocked)
		return sim, nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.Backend.Type)
	}
}

// bridgeDeviceIDs returns the configured device ID override, if any.
// Without one the bridge derives the ID from the lock ID.
func bridgeDeviceIDs(cfg config.LockConfig) map[string]string {
	if cfg.DeviceID == "" {
		return nil
	}
	return map[string]string{cfg.LockID: cfg.DeviceID}
}

// lockConfig maps the YAML lock section onto lock.Config.
func lockConfig(cfg config.LockConfig) lock.Config {
	return lock.Config{
		Email:             cfg.Email,
		Password:          cfg.Password,
		LockID:            cfg.LockID,
		MaxRetries:        cfg.MaxRetries,
		RetryDelay:        cfg.GetRetryDelay(),
		Optimistic:        cfg.Optimistic,
		TrustCachedLocked: cfg.TrustCachedLocked,
	}
}

// initialiseLock acquires the configured lock and registers it with the
// bridge. The outcome and attempt count go to InfluxDB when enabled.
func initialiseLock(ctx context.Context, cfg config.LockConfig, service lock.Service, bridge *smartlock.Bridge, influxClient *influxdb.Client, log *logging.Logger) error {
	counted := &countingService{Service: service}

	initializer := lock.NewInitializer(lock.InitializerOptions{
		Service:   counted,
		Registrar: bridge,
		Logger:    log,
	})
	_, err := initializer.Initialize(ctx, lockConfig(cfg))

	if influxClient != nil {
		influxClient.WriteAcquisition(cfg.LockID, counted.Lookups(), err == nil)
	}
	if err != nil {
		return fmt.Errorf("initialising lock: %w", err)
	}
	return nil
}

// countingService counts lookups so acquisition attempts can be reported.
type countingService struct {
	lock.Service
	lookups atomic.Int64
}

func (c *countingService) FromLockID(ctx context.Context, lockID, email, password string) (lock.Handle, error) {
	c.lookups.Add(1)
	return c.Service.FromLockID(ctx, lockID, email, password)
}

func (c *countingService) Lookups() int {
	return int(c.lookups.Load())
}

// historyPruner is satisfied by the SQLite state history repository.
type historyPruner interface {
	PruneHistory(ctx context.Context, retention time.Duration) (int64, error)
}

// startHistoryPruner runs pruneHistoryLoop in the background. The
// returned function blocks until the loop has exited.
func startHistoryPruner(ctx context.Context, p historyPruner, log *logging.Logger) func() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		pruneHistoryLoop(ctx, p, log)
	}()
	return func() { <-done }
}

// pruneHistoryLoop deletes state history older than historyRetention once
// at startup and then daily until ctx is cancelled.
func pruneHistoryLoop(ctx context.Context, p historyPruner, log *logging.Logger) {
	ticker := time.NewTicker(historyPruneInterval)
	defer ticker.Stop()

	for {
		n, err := p.PruneHistory(ctx, historyRetention)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Warn("state history prune failed", "error", err)
		case n > 0:
			log.Info("state history pruned", "rows", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when InfluxDB is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
