// Package server orchestrates all components: COMMS client, device session,
// request router, event bridge, snapshot store, HTTP health.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/device-capabilities/internal/config"
	"github.com/morezero/device-capabilities/pkg/bootstrap"
	"github.com/morezero/device-capabilities/pkg/capability"
	"github.com/morezero/device-capabilities/pkg/commsutil"
	"github.com/morezero/device-capabilities/pkg/db"
	"github.com/morezero/device-capabilities/pkg/events"
	"github.com/morezero/device-capabilities/pkg/mqttbridge"
	"github.com/morezero/device-capabilities/pkg/session"
	"github.com/morezero/device-capabilities/pkg/transport"
)

const (
	logPrefix = "server:server"

	queueGroup = "device-capabilities"
)

// Server is the device-capabilities orchestrator.
type Server struct {
	cfg        *config.Config
	sess       *session.Session
	httpServer *http.Server

	// health probes; nil means the component is not configured
	commsConnected  func() bool
	dbPing          func(ctx context.Context) error
	bridgeConnected func() bool
}

// SetupLogging installs the default slog text handler at level.
func SetupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

// NewDeviceTransport builds the HTTP transport for the configured device.
func NewDeviceTransport(cfg *config.Config) (*transport.HTTPTransport, error) {
	return transport.NewHTTPTransport(transport.HTTPConfig{
		BaseURL:        cfg.DeviceBaseURL(),
		Username:       cfg.DeviceUsername,
		Password:       cfg.DevicePassword,
		ConnectTimeout: cfg.ConnectTimeout,
		RequestCeiling: cfg.RequestCeiling,
	})
}

// DeviceQuery returns the pinned capability query when DEVICE_CAPABILITIES_FILE
// is set, nil otherwise.
func DeviceQuery(cfg *config.Config) (capability.DiscoveryQuery, error) {
	if cfg.CapabilitiesFile == "" {
		return nil, nil
	}
	f, err := bootstrap.Load(cfg.CapabilitiesFile)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to load pinned capabilities: %w", logPrefix, err)
	}
	return bootstrap.NewQuery(f), nil
}

// openSnapshotStore connects to DATABASE_URL and optionally runs migrations.
func openSnapshotStore(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.RunMigrations {
		migrationSQL, err := db.LoadMigrationFiles(cfg.MigrationPath)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if err := db.RunMigrations(ctx, pool, migrationSQL); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return pool, nil
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	SetupLogging(cfg.LogLevel)
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting device-capabilities for %s", logPrefix, cfg.DeviceBaseURL()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Server{cfg: cfg}

	// Step 1: Device transport
	tr, err := NewDeviceTransport(cfg)
	if err != nil {
		return fmt.Errorf("%s - failed to create device transport: %w", logPrefix, err)
	}

	query, err := DeviceQuery(cfg)
	if err != nil {
		return err
	}

	// Step 2: Connect to COMMS
	nc, err := commsutil.Connect(commsutil.ConnectParams{URL: cfg.COMMSURL, Name: cfg.COMMSName})
	if err != nil {
		return fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
	}
	s.commsConnected = nc.IsConnected

	// Step 3: Optional snapshot store
	var recorder session.Recorder
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = openSnapshotStore(ctx, cfg)
		if err != nil {
			nc.Close()
			return fmt.Errorf("%s - failed to open snapshot store: %w", logPrefix, err)
		}
		repo := db.NewRepository(pool)
		if last, err := repo.LatestSnapshot(ctx, cfg.DeviceHost); err == nil {
			slog.Info(fmt.Sprintf("%s - Last snapshot of %s: %d capabilities at %s",
				logPrefix, cfg.DeviceHost, len(last.Capabilities), last.RecordedAt.Format(time.RFC3339)))
		} else if !errors.Is(err, db.ErrNotFound) {
			slog.Warn(fmt.Sprintf("%s - failed to read last snapshot: %v", logPrefix, err))
		}
		recorder = repo
		s.dbPing = pool.Ping
	}

	// Step 4: Session
	publisher := events.NewCommsPublisher(nc, &events.CommsPublisherOpts{
		Device:             cfg.DeviceHost,
		GlobalEventSubject: cfg.EventSubject,
	})
	sess := session.New(session.Params{
		Device:      cfg.DeviceHost,
		Transport:   tr,
		ReadTimeout: cfg.ReadTimeout,
		Query:       query,
		Publisher:   publisher,
		Recorder:    recorder,
	})
	s.sess = sess

	discoverCtx, discoverCancel := context.WithTimeout(ctx, cfg.RequestCeiling)
	err = sess.Discover(discoverCtx)
	discoverCancel()
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - initial discovery failed, handlers will use defaults until rediscovery: %v", logPrefix, err))
	}

	// Step 5: Router subscription
	router := NewRouter(sess, cfg.RequestCeiling)
	subject := cfg.InvokeSubject()
	sub, err := nc.QueueSubscribe(subject, queueGroup, func(msg *comms.Msg) {
		if err := msg.Respond(router.HandleMessage(ctx, msg.Data)); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to respond on %s: %v", logPrefix, subject, err))
		}
	})
	if err != nil {
		closeAll(nc, pool)
		return fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, subject, err)
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, subject))

	// Step 6: Optional MQTT event bridge
	var bridge *mqttbridge.Bridge
	if cfg.MQTTBrokerURL != "" {
		bridge, err = startBridge(ctx, cfg, publisher)
		if err != nil {
			sub.Unsubscribe()
			closeAll(nc, pool)
			return err
		}
		s.bridgeConnected = bridge.IsConnected
	}

	// Step 7: HTTP health server
	s.httpServer = &http.Server{Addr: cfg.HTTPAddr(), Handler: s.newMux(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP health server listening on %s", logPrefix, cfg.HTTPAddr()))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - device-capabilities is ready", logPrefix))
	waitForSignal()

	sub.Unsubscribe()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HealthCheckTimeout)
	defer shutdownCancel()
	s.httpServer.Shutdown(shutdownCtx)
	if bridge != nil {
		bridge.Close()
	}
	nc.Drain()
	if pool != nil {
		pool.Close()
	}

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

// RunBridge runs only the MQTT event bridge until a shutdown signal.
func RunBridge() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	SetupLogging(cfg.LogLevel)
	if err := cfg.ValidateForBridge(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nc, err := commsutil.Connect(commsutil.ConnectParams{URL: cfg.COMMSURL, Name: cfg.COMMSName + "-bridge"})
	if err != nil {
		return fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
	}
	defer nc.Drain()

	publisher := events.NewCommsPublisher(nc, &events.CommsPublisherOpts{
		Device:             cfg.DeviceHost,
		GlobalEventSubject: cfg.EventSubject,
	})
	bridge, err := startBridge(ctx, cfg, publisher)
	if err != nil {
		return err
	}
	defer bridge.Close()

	waitForSignal()
	stats := bridge.Stats()
	slog.Info(fmt.Sprintf("%s - Bridge stopped (forwarded=%d dropped=%d)", logPrefix, stats.Forwarded, stats.Dropped))
	return nil
}

func startBridge(ctx context.Context, cfg *config.Config, publisher events.EventPublisher) (*mqttbridge.Bridge, error) {
	bridge, err := mqttbridge.New(mqttbridge.Config{
		BrokerURL: cfg.MQTTBrokerURL,
		ClientID:  cfg.MQTTClientID,
		Username:  cfg.MQTTUsername,
		Password:  cfg.MQTTPassword,
		Topic:     cfg.MQTTTopic,
		Device:    cfg.DeviceHost,
	}, publisher)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid bridge config: %w", logPrefix, err)
	}
	if err := bridge.Start(ctx); err != nil {
		return nil, fmt.Errorf("%s - failed to start bridge: %w", logPrefix, err)
	}
	return bridge, nil
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))
}

func closeAll(nc *comms.Conn, pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
	nc.Close()
}

// HealthChecks lists the state of each configured component.
type HealthChecks struct {
	Comms      bool  `json:"comms"`
	Discovered bool  `json:"discovered"`
	Database   *bool `json:"database,omitempty"`
	Bridge     *bool `json:"bridge,omitempty"`
}

// Health is the /health body.
type Health struct {
	Status    string       `json:"status"`
	Device    string       `json:"device"`
	Timestamp string       `json:"timestamp"`
	Checks    HealthChecks `json:"checks"`
}

// health reports unhealthy when COMMS, the database or the bridge is down.
// An undiscovered device alone does not make the service unhealthy.
func (s *Server) health(ctx context.Context) *Health {
	h := &Health{
		Status:    "healthy",
		Device:    s.sess.Device(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	h.Checks.Discovered = s.sess.Registry().Discovered()
	h.Checks.Comms = s.commsConnected != nil && s.commsConnected()
	if !h.Checks.Comms {
		h.Status = "unhealthy"
	}
	if s.dbPing != nil {
		ok := s.dbPing(ctx) == nil
		h.Checks.Database = &ok
		if !ok {
			h.Status = "unhealthy"
		}
	}
	if s.bridgeConnected != nil {
		ok := s.bridgeConnected()
		h.Checks.Bridge = &ok
		if !ok {
			h.Status = "unhealthy"
		}
	}
	return h
}

func (s *Server) newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/capabilities", s.handleCapabilities)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
	defer cancel()
	h := s.health(ctx)
	w.Header().Set("Content-Type", "application/json")
	if h.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(h)
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.commsConnected == nil || !s.commsConnected() {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "not ready"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&CapabilitiesResult{
		Device:       s.sess.Device(),
		Discovered:   s.sess.Registry().Discovered(),
		Capabilities: s.sess.Capabilities(),
	})
}
