// Glove Link - Glove Core telemetry backend
//
// This is the main entry point for the Glove Core application. Glove Core
// is the backend for a fleet of sensor-equipped data gloves:
//   - Device registry and user-device binding lifecycle
//   - Telemetry ingest over MQTT and HTTP with per-user attribution
//   - Gesture learning aggregation per (user, gesture) pair
//   - REST API and live WebSocket feed for dashboards
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/glovelink/glove-core/migrations"

	"github.com/glovelink/glove-core/internal/api"
	"github.com/glovelink/glove-core/internal/auth"
	"github.com/glovelink/glove-core/internal/binding"
	"github.com/glovelink/glove-core/internal/device"
	"github.com/glovelink/glove-core/internal/gateway"
	"github.com/glovelink/glove-core/internal/infrastructure/config"
	"github.com/glovelink/glove-core/internal/infrastructure/database"
	"github.com/glovelink/glove-core/internal/infrastructure/influxdb"
	"github.com/glovelink/glove-core/internal/infrastructure/logging"
	"github.com/glovelink/glove-core/internal/infrastructure/mqtt"
	"github.com/glovelink/glove-core/internal/learning"
	"github.com/glovelink/glove-core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit // Linear wiring sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Glove Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
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

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Account store; seed the first admin on an empty install
	users := auth.NewUserRepository(db.DB)
	if _, seedErr := auth.SeedAdmin(ctx, users, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding admin account: %w", seedErr)
	}

	// Domain services
	bindings := binding.NewManager(db.DB, log)
	devices := device.NewService(device.NewSQLiteRepository(db.DB), bindings, log)
	engine := learning.NewEngine(db.DB, log)

	// Connect to InfluxDB (optional telemetry mirror)
	var influxClient *influxdb.Client
	var mirror telemetry.Mirror
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
		influxMirror := telemetry.NewInfluxMirror(influxClient)
		mirror = influxMirror
		devices.SetStatusMirror(influxMirror)
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// WebSocket hub is shared between the API server and the ingest
	// pipeline, so it is created here and injected into both.
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	telemetrySvc := telemetry.NewService(db.DB, bindings, devices, engine, mirror, hub, log)

	// Connect to MQTT broker and start the telemetry gateway (optional;
	// the HTTP ingest surface works without a broker)
	var mqttClient *mqtt.Client
	var gw *gateway.Gateway
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		gw = gateway.New(mqttClient, telemetrySvc, devices, byte(cfg.MQTT.QoS), log)
		if startErr := gw.Start(ctx); startErr != nil {
			return fmt.Errorf("starting telemetry gateway: %w", startErr)
		}
		log.Info("telemetry gateway started")
	} else {
		log.Info("MQTT disabled, HTTP ingest only")
	}

	// API server
	deps := api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log,
		DB:          db.DB,
		Users:       users,
		Devices:     devices,
		Bindings:    bindings,
		Telemetry:   telemetrySvc,
		Learning:    engine,
		MQTT:        mqttClient,
		ExternalHub: hub,
		Version:     version,
	}
	if gw != nil {
		deps.IngestMetrics = gw
	}
	apiServer, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Periodic raw-telemetry retention sweep
	if cfg.Retention.Enabled {
		go retentionLoop(ctx, cfg, telemetrySvc, log)
		log.Info("retention sweep enabled",
			"max_age_days", cfg.Retention.MaxAgeDays,
			"interval_hours", cfg.Retention.IntervalHours,
		)
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. MQTT (if enabled)
	// 3. InfluxDB (if enabled)
	// 4. Database

	log.Info("Glove Core stopped")
	return nil
}

// retentionLoop purges sensor events older than the configured age at the
// configured interval. Gesture results and learning records are never
// touched by retention.
func retentionLoop(ctx context.Context, cfg *config.Config, telemetrySvc *telemetry.Service, log *logging.Logger) {
	ticker := time.NewTicker(cfg.RetentionInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-cfg.RetentionMaxAge())
			deleted, err := telemetrySvc.PurgeSensorEventsOlderThan(ctx, cutoff)
			if err != nil {
				log.Error("retention sweep failed", "error", err)
				continue
			}
			log.Info("retention sweep complete", "deleted", deleted, "cutoff", cutoff.Format(time.RFC3339))
		}
	}
}

// getConfigPath returns the configuration file path.
// Uses GLOVECORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GLOVECORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
