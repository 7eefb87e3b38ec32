// Airsense backend - smart-building air quality control
//
// This is the main entry point for the Airsense backend. It:
//   - answers the MQTT broker's authentication and ACL hooks
//   - ingests sensor readings from the bus
//   - turns readings into fan speeds through per-room fan curves
//   - publishes fan speed commands and critical-value push notifications
//   - serves the device and curve admin HTTP API
//
// Admin commands run against the same configuration and exit:
//
//	airsense migrate up|down|status
//	echo "$PASSWORD" | airsense hash-secret -serial SN001
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/airsense-core/internal/api"
	"github.com/nerrad567/airsense-core/internal/audit"
	"github.com/nerrad567/airsense-core/internal/auth"
	"github.com/nerrad567/airsense-core/internal/device"
	"github.com/nerrad567/airsense-core/internal/fancurve"
	"github.com/nerrad567/airsense-core/internal/infrastructure/config"
	"github.com/nerrad567/airsense-core/internal/infrastructure/database"
	"github.com/nerrad567/airsense-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/airsense-core/internal/infrastructure/logging"
	"github.com/nerrad567/airsense-core/internal/infrastructure/metrics"
	"github.com/nerrad567/airsense-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/airsense-core/internal/ingest"
	"github.com/nerrad567/airsense-core/internal/location"
	"github.com/nerrad567/airsense-core/internal/notify"
	"github.com/nerrad567/airsense-core/migrations"
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

// influxMaxElapsed bounds the retries of the initial InfluxDB connection.
const influxMaxElapsed = 30 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := dispatch(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Airsense backend",
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
		Path:         cfg.Database.Path,
		WALMode:      cfg.Database.WALMode,
		BusyTimeout:  cfg.Database.BusyTimeout,
		MaxOpenConns: cfg.Database.MaxOpenConns,
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
	log.Info("database connected", "path", db.Path())

	applied, pending, err := db.GetMigrationStatus(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete",
		"previously_applied", len(applied),
		"newly_applied", len(pending),
	)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = connectInflux(ctx, cfg.InfluxDB, log)
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	notifier, err := newNotifier(ctx, cfg.Notifications, log)
	if err != nil {
		return fmt.Errorf("initialising notifications: %w", err)
	}

	// The bus credential lives only as long as this process.
	apiCred := auth.NewAPICredential()

	bus := mqtt.New(mqtt.OptionsFromConfig(cfg.MQTT, mqtt.Credentials{
		ClientID: auth.APIClientID,
		Username: apiCred.Username,
		Password: apiCred.Password,
	}), log.With("component", "mqtt"))

	var recorder ingest.Recorder
	if influxClient != nil {
		recorder = influxClient
	}
	handler := ingest.NewHandler(
		ingest.SQLiteScopes(db, bus, notifier, log.With("component", "fancurve")),
		recorder,
		cfg.GetHandlerTimeout(),
		log.With("component", "ingest"),
	)
	if regErr := bus.Register(mqtt.Topics{}.AllSensors(), handler.Handle); regErr != nil {
		return fmt.Errorf("registering sensor handler: %w", regErr)
	}

	// The broker calls the auth hooks while we connect, so the API has to be
	// up before the bus.
	devices := device.NewSQLiteRepository(db)
	identities := device.NewRegistry(devices, device.DefaultCacheTTL)
	if regErr := metrics.RegisterIdentityCache(prometheus.DefaultRegisterer, func() metrics.IdentityCacheStats {
		s := identities.GetStats()
		return metrics.IdentityCacheStats{Sensors: s.Sensors, Devices: s.Devices, Hits: s.Hits, Misses: s.Misses}
	}); regErr != nil {
		return fmt.Errorf("registering identity cache metrics: %w", regErr)
	}
	health := map[string]api.HealthChecker{
		"database": db,
		"mqtt":     bus,
	}
	if influxClient != nil {
		health["influxdb"] = influxClient
	}
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		Security: cfg.Security,
		Logger:   log.With("component", "api"),
		Bridge:   auth.NewBridge(identities, identities, apiCred),
		Devices:  devices,
		Curves:   fancurve.NewService(fancurve.NewSQLiteRepository(db), location.NewSQLiteRepository(db)),
		Audit:    audit.NewSQLiteRepository(db),
		Health:   health,
		Version:  version,
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

	startCtx, cancelStart := busStartContext(ctx, cfg.MQTT)
	err = bus.Start(startCtx)
	cancelStart()
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.GetShutdownGrace())
		defer cancel()
		log.Info("disconnecting from MQTT")
		if stopErr := bus.Stop(stopCtx); stopErr != nil {
			log.Error("error stopping MQTT", "error", stopErr)
		}
	}()

	if err := healthCheck(ctx, db, bus, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: MQTT (draining handlers), API,
	// InfluxDB, database.
	return nil
}

// getConfigPath returns the configuration file path.
// Uses AIRSENSE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("AIRSENSE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// busStartContext bounds the initial bus connection. With max_attempts unset
// the backend waits for the broker until shutdown.
func busStartContext(ctx context.Context, cfg config.MQTTConfig) (context.Context, context.CancelFunc) {
	if cfg.Reconnect.MaxAttempts <= 0 {
		return context.WithCancel(ctx)
	}
	perAttempt := time.Duration(cfg.ConnectTimeout+cfg.Reconnect.InitialDelay) * time.Second
	return context.WithTimeout(ctx, perAttempt*time.Duration(cfg.Reconnect.MaxAttempts))
}

// connectInflux retries the initial InfluxDB connection with exponential
// backoff. Disabled configurations are never retried.
func connectInflux(ctx context.Context, cfg config.InfluxDBConfig, log *logging.Logger) (*influxdb.Client, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = influxMaxElapsed

	var client *influxdb.Client
	err := backoff.RetryNotify(func() error {
		c, err := influxdb.Connect(ctx, cfg)
		if errors.Is(err, influxdb.ErrDisabled) {
			return backoff.Permanent(err)
		}
		if err != nil {
			return err
		}
		client = c
		return nil
	}, backoff.WithContext(bo, ctx), func(err error, next time.Duration) {
		log.Warn("InfluxDB not reachable, retrying", "error", err, "retry_in", next)
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// newNotifier returns the FCM notifier when push is enabled, otherwise one
// that only logs.
func newNotifier(ctx context.Context, cfg config.NotificationsConfig, log *logging.Logger) (fancurve.Notifier, error) {
	if !cfg.Enabled {
		log.Info("push notifications disabled")
		return notify.NewLogNotifier(log.With("component", "notify")), nil
	}
	fcm, err := notify.NewFCM(ctx, cfg, log.With("component", "notify"))
	if err != nil {
		return nil, err
	}
	log.Info("push notifications enabled", "credentials", cfg.CredentialsFile)
	return fcm, nil
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when InfluxDB is disabled.
func healthCheck(ctx context.Context, db *database.DB, bus *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := bus.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
