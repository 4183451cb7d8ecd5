// Package main is the entrypoint for devicectl.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/device-capabilities/internal/config"
	"github.com/morezero/device-capabilities/internal/server"
	"github.com/morezero/device-capabilities/pkg/apis"
	"github.com/morezero/device-capabilities/pkg/db"
	"github.com/morezero/device-capabilities/pkg/semver"
	"github.com/morezero/device-capabilities/pkg/session"
)

const defaultSnapshotLimit = 20

const usage = `Usage: devicectl [command]

Commands:
  serve                          (default) Serve the device on COMMS (NATS) with HTTP health.
  bridge                         Forward device MQTT events to COMMS.
  discover                       Query the device API list and print the capability set.
  resolve <id[@range]>           Check that the device advertises a capability in range.
  legacy                         Load the legacy parameter listing and print which APIs it lists.
  audio-params                   Print the audio parameter group.
  transmit <file>                Send an audio clip to the device speaker.
  mqtt-status                    Print the device MQTT client status.
  mqtt-configure <host> [port]   Point the device MQTT client at a broker.
  mqtt-activate                  Activate the device MQTT client.
  mqtt-deactivate                Deactivate the device MQTT client.
  mqtt-event-config              Print the event publication config.
  mqtt-configure-events [topic]  Publish events for the given topic filters (default: all).
  migrate up|status|down         Manage the snapshot schema.
  ensure-db [name]               Create database if missing (default name: devices_test).
  snapshots [limit]              Print the capability snapshot history of DEVICE_HOST.
  clear                          Delete the snapshot history of DEVICE_HOST (all devices when unset).

Environment: DEVICE_HOST, DEVICE_PORT, DEVICE_USERNAME, DEVICE_PASSWORD, DEVICE_CAPABILITIES_FILE,
COMMS_URL, MQTT_BROKER_URL, DATABASE_URL, MIGRATION_PATH.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("devicectl migrate: require subcommand (up, down, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("devicectl migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(); err != nil {
				log.Fatalf("devicectl migrate status: %v", err)
			}
		case "down":
			if err := runMigrateDown(); err != nil {
				log.Fatalf("devicectl migrate down: %v", err)
			}
		default:
			log.Fatalf("devicectl migrate: unknown subcommand %q (use up, down, status)", sub)
		}
		return
	case "ensure-db":
		dbName := "devices_test"
		if len(args) > 1 && args[1] != "" {
			dbName = args[1]
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("devicectl ensure-db: %v", err)
		}
		return
	case "snapshots":
		limit := defaultSnapshotLimit
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				log.Fatalf("devicectl snapshots: invalid limit %q", args[1])
			}
			limit = n
		}
		if err := runSnapshots(limit); err != nil {
			log.Fatalf("devicectl snapshots: %v", err)
		}
		return
	case "clear":
		if err := runClear(); err != nil {
			log.Fatalf("devicectl clear: %v", err)
		}
		return
	case "bridge":
		if err := server.RunBridge(); err != nil {
			log.Fatalf("devicectl bridge: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
		break
	default:
		op, ok := deviceCommand(cmd, args[1:])
		if !ok {
			fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
			os.Exit(1)
		}
		if err := runDevice(op); err != nil {
			log.Fatalf("devicectl %s: %v", cmd, err)
		}
		return
	}

	if err := server.Run(); err != nil {
		log.Fatalf("devicectl: %v", err)
	}
}

// deviceOp runs one operation against a session and returns what to print.
type deviceOp func(ctx context.Context, sess *session.Session) (interface{}, error)

// deviceCommand maps a device command and its arguments to an operation.
func deviceCommand(cmd string, args []string) (deviceOp, bool) {
	switch cmd {
	case "discover":
		return func(ctx context.Context, sess *session.Session) (interface{}, error) {
			if err := sess.Discover(ctx); err != nil {
				return nil, err
			}
			return sess.Capabilities(), nil
		}, true
	case "resolve":
		if len(args) < 1 {
			return nil, false
		}
		ref, err := semver.ParseCapabilityRef(args[0])
		if err != nil {
			return nil, false
		}
		return func(ctx context.Context, sess *session.Session) (interface{}, error) {
			return sess.Resolve(ctx, ref)
		}, true
	case "legacy":
		return func(ctx context.Context, sess *session.Session) (interface{}, error) {
			if err := sess.LoadLegacyParameters(ctx); err != nil {
				return nil, err
			}
			listed := make(map[string]bool)
			for id := range apis.Registrations {
				h, err := sess.Handler(id)
				if err != nil {
					return nil, err
				}
				listed[string(id)] = h.ListedInParameters()
			}
			return listed, nil
		}, true
	case "audio-params":
		return func(ctx context.Context, sess *session.Session) (interface{}, error) {
			return sess.Audio().GetParameters(ctx)
		}, true
	case "transmit":
		if len(args) < 1 {
			return nil, false
		}
		file := args[0]
		return func(ctx context.Context, sess *session.Session) (interface{}, error) {
			audio, err := os.ReadFile(file)
			if err != nil {
				return nil, fmt.Errorf("read audio: %w", err)
			}
			if err := sess.Audio().Transmit(ctx, audio); err != nil {
				return nil, err
			}
			return map[string]int{"transmittedBytes": len(audio)}, nil
		}, true
	case "mqtt-status":
		return func(ctx context.Context, sess *session.Session) (interface{}, error) {
			return sess.MQTTClient().GetClientStatus(ctx)
		}, true
	case "mqtt-configure":
		if len(args) < 1 {
			return nil, false
		}
		cfg := apis.ClientConfig{Server: apis.MQTTServer{Host: args[0]}, CleanSession: true, AutoReconnect: true}
		if len(args) > 1 {
			port, err := strconv.Atoi(args[1])
			if err != nil {
				return nil, false
			}
			cfg.Server.Port = port
		}
		return func(ctx context.Context, sess *session.Session) (interface{}, error) {
			return nil, sess.MQTTClient().ConfigureClient(ctx, cfg)
		}, true
	case "mqtt-activate":
		return func(ctx context.Context, sess *session.Session) (interface{}, error) {
			return nil, sess.MQTTClient().Activate(ctx)
		}, true
	case "mqtt-deactivate":
		return func(ctx context.Context, sess *session.Session) (interface{}, error) {
			return nil, sess.MQTTClient().Deactivate(ctx)
		}, true
	case "mqtt-event-config":
		return func(ctx context.Context, sess *session.Session) (interface{}, error) {
			return sess.MQTTClient().GetEventPublicationConfig(ctx)
		}, true
	case "mqtt-configure-events":
		var topics []string
		if len(args) > 0 {
			topics = args
		}
		return func(ctx context.Context, sess *session.Session) (interface{}, error) {
			return nil, sess.MQTTClient().ConfigureEventPublication(ctx, topics)
		}, true
	}
	return nil, false
}

// runDevice runs op against the configured device. Discovery snapshots are
// recorded when DATABASE_URL is set.
func runDevice(op deviceOp) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	server.SetupLogging(cfg.LogLevel)
	if err := cfg.ValidateForDevice(); err != nil {
		return err
	}
	tr, err := server.NewDeviceTransport(cfg)
	if err != nil {
		return fmt.Errorf("device transport: %w", err)
	}

	query, err := server.DeviceQuery(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestCeiling)
	defer cancel()

	params := session.Params{Device: cfg.DeviceHost, Transport: tr, ReadTimeout: cfg.ReadTimeout, Query: query}
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		params.Recorder = db.NewRepository(pool)
	}

	result, err := op(ctx, session.New(params))
	if err != nil {
		return err
	}
	if result == nil {
		fmt.Println("ok")
		return nil
	}
	return printJSON(result)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func openDB() (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return cfg, pool, nil
}

func runMigrateUp() error {
	cfg, pool, err := openDB()
	if err != nil {
		return err
	}
	defer pool.Close()

	migrationSQL, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := db.RunMigrations(context.Background(), pool, migrationSQL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runMigrateStatus() error {
	cfg, pool, err := openDB()
	if err != nil {
		return err
	}
	defer pool.Close()

	state, err := db.MigrationStatus(context.Background(), pool, cfg.MigrationPath)
	if err != nil {
		return err
	}
	fmt.Println(state)
	return nil
}

func runMigrateDown() error {
	cfg, pool, err := openDB()
	if err != nil {
		return err
	}
	defer pool.Close()

	return db.MigrationDown(context.Background(), pool, cfg.MigrationPath)
}

func runSnapshots(limit int) error {
	cfg, pool, err := openDB()
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.DeviceHost == "" {
		return fmt.Errorf("DEVICE_HOST is required")
	}
	snapshots, err := db.NewRepository(pool).ListSnapshots(context.Background(), cfg.DeviceHost, limit)
	if err != nil {
		return err
	}
	return printJSON(snapshots)
}

func runClear() error {
	cfg, pool, err := openDB()
	if err != nil {
		return err
	}
	defer pool.Close()

	n, err := db.ClearSnapshots(context.Background(), pool, cfg.DeviceHost)
	if err != nil {
		return fmt.Errorf("clear snapshots: %w", err)
	}
	fmt.Printf("Deleted %d snapshots.\n", n)
	return nil
}

func runEnsureDB(dbName string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	u, err := url.Parse(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	// Query (e.g. sslmode) is kept on u.RawQuery.
	u.Path = "/" + dbName
	if err := db.EnsureDatabase(context.Background(), u.String()); err != nil {
		return err
	}
	fmt.Printf("Database %q is ready.\n", dbName)
	return nil
}
