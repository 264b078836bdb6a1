// pubsubd keeps one pub/sub session to a message broker and exposes it
// locally.
//
// It connects to the configured broker (provisioning trust first for secure
// addresses), keeps the configured topics subscribed across reconnects,
// journals lifecycle events to SQLite, optionally records telemetry in
// InfluxDB and relays events to local WebSocket clients.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/api"
	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/infrastructure/config"
	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/infrastructure/database"
	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/infrastructure/influxdb"
	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/infrastructure/logging"
	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/infrastructure/mqtt"
	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/journal"
	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/pubsub"
	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/trust"
	"github.com/thomas-kunnumpurath/openfin-solace-sample/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/pubsubd.yaml"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runToken(os.Stdout, os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the daemon and blocks until ctx is cancelled.
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting pubsubd",
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
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Lifecycle journal (optional)
	var repo journal.Repository
	if cfg.Journal.Enabled {
		db, openErr := openJournal(ctx, cfg.Journal, log)
		if openErr != nil {
			return openErr
		}
		defer func() {
			log.Info("closing journal database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing journal database", "error", closeErr)
			}
		}()
		repo = journal.NewSQLiteRepository(db.DB)
	} else {
		log.Info("journal disabled")
	}

	// Telemetry (optional)
	var telemetry *influxdb.Client
	if cfg.InfluxDB.Enabled {
		telemetry, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := telemetry.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		telemetry.SetOnError(func(err error) {
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

	provisioner, err := trust.New(trust.Config{
		CheckPath: cfg.Trust.CheckPath,
		CAFile:    cfg.Trust.CAFile,
		Timeout:   time.Duration(cfg.Trust.Timeout) * time.Second,
	}, log.Component("trust"))
	if err != nil {
		return fmt.Errorf("creating trust provisioner: %w", err)
	}

	transport, err := mqtt.NewTransport(mqtt.Options{
		ClientIDPrefix: cfg.Broker.ClientIDPrefix,
		ConnectTimeout: time.Duration(cfg.Broker.ConnectTimeout) * time.Second,
		KeepAlive:      time.Duration(cfg.Broker.KeepAlive) * time.Second,
		QoS:            byte(cfg.Subscriptions.QoS), // #nosec G115 -- validated 0..2
		TLSConfig:      provisioner.TLSConfig(),
	}, log.Component("mqtt"))
	if err != nil {
		return fmt.Errorf("creating MQTT transport: %w", err)
	}

	client := pubsub.New(transport, pubsub.Options{
		SubscribeTimeout: cfg.SubscribeTimeout(),
		SweepInterval:    cfg.SweepInterval(),
		Logger:           log.Component("pubsub"),
	})
	defer func() {
		log.Info("closing pub/sub session")
		if closeErr := client.Close(); closeErr != nil {
			log.Error("error closing pub/sub session", "error", closeErr)
		}
	}()

	broker := brokerConfig(cfg)

	server, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log.Component("api"),
		Session: client,
		Broker:  broker,
		Journal: repo,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	provisioning := &trustRunner{}

	router := &eventRouter{
		ctx:     gctx,
		log:     log.Component("events"),
		journal: repo,
		relay:   server,
		trust: func(address string) bool {
			return provisioning.start(func() {
				//nolint:errcheck // Outcome is reported to the client and logged
				provisioner.Provision(gctx, address, client)
			})
		},
		trustee: client,
	}
	if telemetry != nil {
		router.telemetry = telemetry
	}
	client.OnLifecycleEvent(router.handleLifecycle)
	client.OnMessage(router.handleMessage)

	if len(cfg.Subscriptions.Topics) > 0 {
		if err := client.Subscribe(cfg.Subscriptions.Topics...); err != nil {
			return fmt.Errorf("subscribing configured topics: %w", err)
		}
		log.Info("configured topics desired", "topics", cfg.Subscriptions.Topics)
	}

	if cfg.Broker.ConnectOnStart {
		if err := client.Connect(broker); err != nil {
			return fmt.Errorf("connecting to broker: %w", err)
		}
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, cleaning up")
		provisioning.stop()
		if err := client.Disconnect(); err != nil && !errors.Is(err, pubsub.ErrNotConnected) {
			log.Warn("disconnect on shutdown failed", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	// Deferred Close() calls run in reverse order:
	// API server, pub/sub session, InfluxDB, journal database.
	log.Info("pubsubd stopped")
	return nil
}

// openJournal opens and migrates the journal database.
func openJournal(ctx context.Context, cfg config.JournalConfig, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening journal database: %w", err)
	}

	applied, err := db.Migrate(ctx, migrations.FS)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("journal database ready", "path", cfg.Path, "migrations_applied", len(applied))
	return db, nil
}

// brokerConfig extracts the session connection settings.
func brokerConfig(cfg *config.Config) pubsub.Config {
	return pubsub.Config{
		Address:   cfg.Broker.Address,
		Namespace: cfg.Broker.Namespace,
		Username:  cfg.Auth.Username,
		Password:  cfg.Auth.Password,
	}
}

// getConfigPath returns the configuration file path.
// Uses PUBSUB_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("PUBSUB_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
