// Deployment Core - IoT deployment lifecycle service
//
// deployd owns the lifecycle of deployment resources: sensors, platforms,
// permanent hosts, deployments, and their location history. It exposes
// every operation over the MQTT request bus and persists resources as
// JSON documents in SQLite.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/urbanfield/deployment-core/migrations"

	"github.com/urbanfield/deployment-core/internal/audit"
	"github.com/urbanfield/deployment-core/internal/deployment"
	"github.com/urbanfield/deployment-core/internal/dispatch"
	"github.com/urbanfield/deployment-core/internal/infrastructure/config"
	"github.com/urbanfield/deployment-core/internal/infrastructure/database"
	"github.com/urbanfield/deployment-core/internal/infrastructure/logging"
	"github.com/urbanfield/deployment-core/internal/infrastructure/mqtt"
	"github.com/urbanfield/deployment-core/internal/location"
	"github.com/urbanfield/deployment-core/internal/permanenthost"
	"github.com/urbanfield/deployment-core/internal/platform"
	"github.com/urbanfield/deployment-core/internal/sensor"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for
// testability. Returning an error lets main handle exit codes
// consistently.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting deployment core",
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
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

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
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Audit recording is optional; a disabled recorder just means
	// lifecycle events only reach the local log.
	recorder, err := audit.Connect(cfg.InfluxDB)
	if err != nil {
		if !errors.Is(err, audit.ErrDisabled) {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		log.Info("audit recording disabled")
		recorder = nil
	} else {
		defer func() {
			log.Info("closing audit recorder")
			if closeErr := recorder.Close(); closeErr != nil {
				log.Error("error closing audit recorder", "error", closeErr)
			}
		}()
		recorder.SetOnError(func(err error) {
			log.Error("audit write error", "error", err)
		})
		log.Info("audit recorder connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	services := buildServices(db, log)

	dispatcher := dispatch.NewDispatcher(ctx, mqttClient, recorder, byte(cfg.MQTT.QoS), log)
	mgr := dispatch.NewManager(log)
	dispatch.RegisterAll(dispatcher, mgr, services)

	// Bus callbacks keep the subscription set alive across broker
	// restarts: pending registrations retry, suspended ones resume.
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
		mgr.OnConnect()
	})
	mqttClient.SetOnDisconnect(func(err error) {
		mgr.OnDisconnect(err)
	})

	if err := mgr.Start(); err != nil {
		return fmt.Errorf("registering bus subscriptions: %w", err)
	}
	log.Info("bus subscriptions registered")

	if err := healthCheck(ctx, db, mqttClient, recorder); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("deployment core stopped")
	return nil
}

// directoryFunc adapts a closure to the single-method lookup interfaces
// the entity packages declare.
type directoryFunc func(ctx context.Context, id string) error

func (f directoryFunc) Live(ctx context.Context, id string) error { return f(ctx, id) }

// buildServices wires the entity services together. Sensors validate
// their placement against platforms and hosts while platforms, hosts and
// deployments consult sensors, so the sensor service is built first
// against late-bound lookups.
func buildServices(db *database.DB, log *logging.Logger) dispatch.Services {
	var platforms *platform.Service
	var hosts *permanenthost.Service

	sensors := sensor.NewService(
		sensor.NewStore(db.DB),
		directoryFunc(func(ctx context.Context, id string) error { return platforms.Live(ctx, id) }),
		directoryFunc(func(ctx context.Context, id string) error { return hosts.Live(ctx, id) }),
		log,
	)

	platforms = platform.NewService(db.DB, sensors, log)
	hosts = permanenthost.NewService(db.DB, sensors, log)
	deployments := deployment.NewService(db.DB, sensors, log)
	locations := location.NewStore(db.DB, log)

	return dispatch.Services{
		Sensors:     sensors,
		Platforms:   platforms,
		Hosts:       hosts,
		Deployments: deployments,
		Locations:   locations,
	}
}

// getConfigPath returns the configuration file path.
// Uses DEPLOYD_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("DEPLOYD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy. The
// audit recorder may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, recorder *audit.Recorder) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if recorder != nil {
		if err := recorder.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
