// Gray Logic IR Learn
//
// irlearn captures IR/RF command codes through a controller, reconciles
// them against the learned-code files the teaching service writes, and
// generates entity configuration from the captured command sets.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	_ "github.com/nerrad567/gray-logic-irlearn/migrations"

	"github.com/nerrad567/gray-logic-irlearn/internal/capture"
	"github.com/nerrad567/gray-logic-irlearn/internal/codesource"
	"github.com/nerrad567/gray-logic-irlearn/internal/control"
	"github.com/nerrad567/gray-logic-irlearn/internal/emit"
	"github.com/nerrad567/gray-logic-irlearn/internal/history"
	"github.com/nerrad567/gray-logic-irlearn/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-irlearn/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-irlearn/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-irlearn/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-irlearn/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-irlearn/internal/reconcile"
	"github.com/nerrad567/gray-logic-irlearn/internal/store"
	"github.com/nerrad567/gray-logic-irlearn/internal/teaching"
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

// run is the application body, separated from main for testability.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting Gray Logic IR Learn",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("loading .env failed", "error", err)
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // shutdown
	log.Info("configuration loaded", "path", configPath, "site", cfg.Site.ID)

	// Device store
	devices, err := store.Open(store.Config{Path: cfg.Store.Path, CreateIfMissing: cfg.Store.CreateIfMissing})
	if err != nil {
		return fmt.Errorf("opening device store: %w", err)
	}
	devices.SetLogger(log)
	if _, err := devices.Load(ctx); err != nil {
		return fmt.Errorf("loading device store: %w", err)
	}
	log.Info("device store loaded", "path", devices.Path())

	// Capture history
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	historyRepo := history.NewSQLiteRepository(db.DB)
	log.Info("database ready", "path", cfg.Database.Path)

	// Metrics (optional)
	var (
		captureMetrics  reconcile.Metrics
		emissionMetrics control.EmissionMetrics
		influxClient    *influxdb.Client
	)
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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		captureMetrics, emissionMetrics = influxClient, influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Broker
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
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT connected")
	})
	qos := byte(cfg.MQTT.QoS) //nolint:gosec // validated to 0..2

	learner := teaching.New(mqttClient, qos)
	learner.SetLogger(log)
	if err := learner.Start(); err != nil {
		return fmt.Errorf("starting teaching client: %w", err)
	}
	defer learner.Stop() //nolint:errcheck // shutdown

	// Learned-code source
	source, err := codesource.New(cfg.CodeSource.Dir, cfg.CodeSource.FilePattern)
	if err != nil {
		return fmt.Errorf("opening code source: %w", err)
	}

	var wg sync.WaitGroup
	defer wg.Wait()
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	var changes <-chan struct{}
	if cfg.CodeSource.Watch {
		watcher, err := codesource.NewWatcher(source, cfg.Debounce())
		if err != nil {
			return fmt.Errorf("watching code source: %w", err)
		}
		watcher.SetLogger(log)
		changes = watcher.Changes()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := watcher.Run(runCtx); err != nil {
				log.Error("code source watcher stopped", "error", err)
			}
		}()
		log.Info("watching code source", "dir", source.Dir())
	}

	// Reconciliation
	poller, err := reconcile.New(reconcile.Options{
		Store:    devices,
		Source:   source,
		Interval: cfg.PollInterval(),
		Changes:  changes,
		History:  historyRepo,
		Metrics:  captureMetrics,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("creating poller: %w", err)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := poller.Run(runCtx); err != nil {
			log.Error("reconciliation poller stopped", "error", err)
		}
	}()

	coordinator, err := capture.New(capture.Options{
		Store:       devices,
		Learner:     learner,
		Poller:      poller,
		Source:      source,
		Controllers: cfg.Controllers,
		AckTimeout:  cfg.AckTimeout(),
		Deadline:    cfg.ReconcileDeadline(),
		History:     historyRepo,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("creating capture coordinator: %w", err)
	}

	generator, err := control.NewGenerator(control.GeneratorOptions{
		Store: devices,
		Emitter: emit.New(emit.Options{
			RemoteEntityPrefix: cfg.Emitter.RemoteEntityPrefix,
			UniqueIDPrefix:     cfg.Emitter.UniqueIDPrefix,
		}),
		OutputDir: cfg.Emitter.OutputDir,
		History:   historyRepo,
		Metrics:   emissionMetrics,
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("creating generator: %w", err)
	}

	router, err := control.New(control.Options{
		MQTT:       mqttClient,
		QoS:        qos,
		Capture:    coordinator,
		Reconciler: poller,
		Store:      devices,
		Generator:  generator,
		History:    historyRepo,
		Timeout:    cfg.AckTimeout() + control.DefaultTimeout,
		Logger:     log,
	})
	if err != nil {
		return fmt.Errorf("creating control router: %w", err)
	}
	if err := router.Start(runCtx); err != nil {
		return fmt.Errorf("starting control plane: %w", err)
	}
	defer func() {
		if stopErr := router.Stop(); stopErr != nil {
			log.Warn("stopping control plane", "error", stopErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: control plane, background loops,
	// teaching client, MQTT, InfluxDB, database.
	return nil
}

// getConfigPath returns GRAYLOGIC_CONFIG if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient is nil when metrics are disabled.
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
