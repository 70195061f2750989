// PinCore - IoT Module Pin Control
//
// This is the main entry point for the PinCore service. PinCore owns the
// pins of networked IoT modules: it decides whether each output is on or
// off, either on a user's command or from an automation policy, and pushes
// every change to the devices over MQTT.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/wavehub/pincore/migrations"

	"github.com/wavehub/pincore/internal/api"
	"github.com/wavehub/pincore/internal/audit"
	"github.com/wavehub/pincore/internal/auth"
	"github.com/wavehub/pincore/internal/automation"
	"github.com/wavehub/pincore/internal/controller"
	"github.com/wavehub/pincore/internal/devicesink"
	"github.com/wavehub/pincore/internal/infrastructure/config"
	"github.com/wavehub/pincore/internal/infrastructure/database"
	"github.com/wavehub/pincore/internal/infrastructure/influxdb"
	"github.com/wavehub/pincore/internal/infrastructure/logging"
	"github.com/wavehub/pincore/internal/infrastructure/metrics"
	"github.com/wavehub/pincore/internal/infrastructure/mqtt"
	"github.com/wavehub/pincore/internal/module"
	"github.com/wavehub/pincore/internal/scheduler"
	"github.com/wavehub/pincore/internal/telemetry"
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

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence, splitting it hides the defer order
	log := logging.Default()
	log.Info("starting PinCore",
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

	location := time.UTC
	if cfg.Site.Timezone != "" {
		if location, err = time.LoadLocation(cfg.Site.Timezone); err != nil {
			return fmt.Errorf("loading site timezone: %w", err)
		}
	}

	// Open database
	db, err := database.Open(ctx, database.Config{
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

	// Identity
	users := auth.NewUserRepository(db)
	if _, seedErr := auth.SeedFirstUser(ctx, users, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding first user: %w", seedErr)
	}
	identity := auth.NewProvider(users, cfg.Security.JWT.Secret,
		time.Duration(cfg.Security.JWT.AccessTokenTTL)*time.Minute)

	// Metrics
	recorder := metrics.Discard()
	if cfg.Statsd.Enabled {
		recorder, err = metrics.New(cfg.Statsd, log.Component("metrics"))
		if err != nil {
			return fmt.Errorf("creating statsd client: %w", err)
		}
		defer func() {
			if closeErr := recorder.Close(); closeErr != nil {
				log.Error("error closing statsd client", "error", closeErr)
			}
		}()
		log.Info("statsd metrics enabled", "address", cfg.Statsd.Address)
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, log.Component("mqtt"))
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Warn("MQTT disabled, pin outputs will not reach devices")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB, cfg.Site.ID)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Module state
	store := module.NewSQLiteStore(db)
	history := module.NewSQLiteHistoryRepository(db)
	auditRepo := audit.NewSQLiteRepository(db)
	readings := automation.NewReadingCache(cfg.Automation.HistorySize)

	// The hub exists before the server so the sink can broadcast during
	// restore; the server runs it once started.
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))

	sinkDeps := devicesink.Deps{
		QoS:     byte(cfg.MQTT.QoS), // #nosec G115 -- validated to 0..2
		History: history,
		Hub:     hub,
	}
	if mqttClient != nil {
		sinkDeps.Publisher = mqttClient
	}
	if influxClient != nil {
		sinkDeps.TimeSeries = influxClient
	}

	sched := scheduler.New(scheduler.Config{
		WindowTick:             cfg.Automation.WindowTick,
		StalenessBound:         stalenessBound(cfg.Automation),
		StalenessCheckInterval: cfg.Automation.StalenessCheckInterval,
		QueueDepth:             cfg.Automation.QueueDepth,
		StoreRetryDelay:        cfg.Automation.StoreRetryDelay,
		Location:               location,
	}, scheduler.Deps{
		Store:    store,
		Readings: readings,
		Sink:     devicesink.New(sinkDeps),
		Metrics:  recorder,
		Logger:   log.Component("scheduler"),
	})
	defer func() {
		log.Info("stopping scheduler")
		sched.Close()
	}()

	ctrl := controller.New(controller.Deps{
		Identity:  identity,
		Users:     users,
		Scheduler: sched,
		Store:     store,
		History:   history,
		Audit:     auditRepo,
		Readings:  readings,
		Metrics:   recorder,
		Logger:    log.Component("controller"),
	})

	created, err := ctrl.Provision(ctx, inventory(cfg.Modules))
	if err != nil {
		return fmt.Errorf("provisioning modules: %w", err)
	}
	log.Info("module inventory provisioned",
		"configured", len(cfg.Modules.Inventory),
		"created", created,
	)

	// A module that fails to restore is logged; the rest keep running.
	if restoreErr := sched.Restore(ctx); restoreErr != nil {
		log.Error("restoring modules", "error", restoreErr)
	}

	// Sensor telemetry
	ingestDeps := telemetry.Deps{
		Handler:      sched,
		Metrics:      recorder,
		Logger:       log.Component("telemetry"),
		MaxClockSkew: cfg.Automation.MaxClockSkew,
	}
	if influxClient != nil {
		ingestDeps.Recorder = influxClient
	}
	ingest := telemetry.NewIngest(ingestDeps)

	if mqttClient != nil {
		source := telemetry.NewMQTTSource(mqttClient, byte(cfg.MQTT.QoS), ingest) // #nosec G115 -- validated to 0..2
		if startErr := source.Start(); startErr != nil {
			return fmt.Errorf("subscribing to telemetry: %w", startErr)
		}
		defer func() {
			if stopErr := source.Stop(); stopErr != nil {
				log.Warn("error unsubscribing from telemetry", "error", stopErr)
			}
		}()
		log.Info("MQTT telemetry subscribed", "topic", mqtt.Topics{}.AllTelemetry())
	}

	if cfg.Kafka.Enabled {
		kafkaSource, kafkaErr := telemetry.NewKafkaSource(cfg.Kafka, ingest, log.Component("kafka"))
		if kafkaErr != nil {
			return fmt.Errorf("creating Kafka consumer: %w", kafkaErr)
		}
		kafkaDone := make(chan struct{})
		go func() {
			defer close(kafkaDone)
			if runErr := kafkaSource.Run(ctx); runErr != nil {
				log.Error("Kafka consumer stopped", "error", runErr)
			}
		}()
		defer func() {
			log.Info("closing Kafka consumer")
			if closeErr := kafkaSource.Close(); closeErr != nil {
				log.Error("error closing Kafka consumer", "error", closeErr)
			}
			<-kafkaDone
		}()
		log.Info("Kafka telemetry consumer started",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
			"group_id", cfg.Kafka.GroupID,
		)
	}

	// HTTP API
	apiDeps := api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log.Component("api"),
		Modules: ctrl,
		Auth:    identity,
		Hub:     hub,
		DB:      db,
		Version: version,
	}
	if mqttClient != nil {
		apiDeps.MQTT = mqttClient
	}
	if influxClient != nil {
		apiDeps.Influx = influxClient
	}
	server, err := api.New(apiDeps)
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

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API, telemetry sources,
	// scheduler, InfluxDB, MQTT, metrics, database.

	log.Info("PinCore stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses PINCORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("PINCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// stalenessBound returns the configured bound, or twice the expected
// reading interval when unset.
func stalenessBound(cfg config.AutomationConfig) time.Duration {
	if cfg.StalenessBound > 0 {
		return cfg.StalenessBound
	}
	return 2 * cfg.ExpectedReadingInterval
}

// inventory converts configured modules, filling in the default pin limit.
func inventory(cfg config.ModulesConfig) []controller.InventoryModule {
	out := make([]controller.InventoryModule, 0, len(cfg.Inventory))
	for _, m := range cfg.Inventory {
		maxPins := m.MaxPins
		if maxPins == 0 {
			maxPins = cfg.DefaultMaxPins
		}
		out = append(out, controller.InventoryModule{
			ID:          m.ID,
			Name:        m.Name,
			Description: m.Description,
			MaxPins:     maxPins,
			Secret:      m.Secret,
		})
	}
	return out
}

// healthCheck verifies all infrastructure connections are healthy. The
// MQTT and InfluxDB clients are nil when disabled.
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
