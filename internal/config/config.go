// Package config provides configuration loaded from environment variables.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/morezero/device-capabilities/pkg/commsutil"
)

const logPrefix = "config:LoadConfig"

// Config holds device-capabilities configuration.
type Config struct {
	// Device
	DeviceHost     string        `envconfig:"DEVICE_HOST"`
	DevicePort     int           `envconfig:"DEVICE_PORT" default:"80"`
	DeviceScheme   string        `envconfig:"DEVICE_SCHEME" default:"http"`
	DeviceUsername string        `envconfig:"DEVICE_USERNAME" default:"root"`
	DevicePassword string        `envconfig:"DEVICE_PASSWORD"`
	ReadTimeout    time.Duration `envconfig:"DEVICE_READ_TIMEOUT" default:"10s"`
	ConnectTimeout time.Duration `envconfig:"DEVICE_CONNECT_TIMEOUT" default:"5s"`
	RequestCeiling time.Duration `envconfig:"DEVICE_REQUEST_CEILING" default:"30s"`

	// CapabilitiesFile pins the capability list instead of querying API discovery.
	CapabilitiesFile string `envconfig:"DEVICE_CAPABILITIES_FILE"`

	// COMMS: connect to standalone NATS at COMMSURL.
	COMMSURL  string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"device-capabilities"`

	// Subject overrides (empty = derive from DEVICE_HOST)
	DeviceSubject string `envconfig:"DEVICE_SUBJECT"`
	EventSubject  string `envconfig:"EVENT_SUBJECT"`

	// MQTT broker the device publishes events to
	MQTTBrokerURL string `envconfig:"MQTT_BROKER_URL"`
	MQTTClientID  string `envconfig:"MQTT_CLIENT_ID" default:"device-capabilities-bridge"`
	MQTTUsername  string `envconfig:"MQTT_USERNAME"`
	MQTTPassword  string `envconfig:"MQTT_PASSWORD"`
	MQTTTopic     string `envconfig:"MQTT_TOPIC" default:"#"`

	// Database (optional snapshot history)
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// HTTP health endpoint
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// DeviceBaseURL returns scheme://host:port of the device.
func (c *Config) DeviceBaseURL() string {
	return c.DeviceScheme + "://" + net.JoinHostPort(c.DeviceHost, strconv.Itoa(c.DevicePort))
}

// InvokeSubject returns DEVICE_SUBJECT or the subject derived from the device host.
func (c *Config) InvokeSubject() string {
	if c.DeviceSubject != "" {
		return c.DeviceSubject
	}
	return commsutil.BuildInvokeSubject(c.DeviceHost)
}

// HTTPAddr returns the listen address of the health endpoint.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// ValidateForDevice checks required config for any command talking to the device.
func (c *Config) ValidateForDevice() error {
	if c.DeviceHost == "" {
		return fmt.Errorf("%s - DEVICE_HOST is required", logPrefix)
	}
	if c.DeviceScheme != "http" && c.DeviceScheme != "https" {
		return fmt.Errorf("%s - DEVICE_SCHEME must be http or https, got %q", logPrefix, c.DeviceScheme)
	}
	if c.DevicePort <= 0 || c.DevicePort > 65535 {
		return fmt.Errorf("%s - DEVICE_PORT %d out of range", logPrefix, c.DevicePort)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("%s - DEVICE_READ_TIMEOUT must be positive", logPrefix)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("%s - DEVICE_CONNECT_TIMEOUT must be positive", logPrefix)
	}
	if c.RequestCeiling < c.ReadTimeout {
		return fmt.Errorf("%s - DEVICE_REQUEST_CEILING (%v) must not be below DEVICE_READ_TIMEOUT (%v)", logPrefix, c.RequestCeiling, c.ReadTimeout)
	}
	return nil
}

// ValidateForServe checks required config when running the COMMS service.
func (c *Config) ValidateForServe() error {
	if err := c.ValidateForDevice(); err != nil {
		return err
	}
	if c.COMMSURL == "" {
		return fmt.Errorf("%s - COMMS_URL is required for serve", logPrefix)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("%s - HTTP_PORT %d out of range", logPrefix, c.HTTPPort)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if c.RunMigrations && c.DatabaseURL == "" {
		return fmt.Errorf("%s - RUN_MIGRATIONS needs DATABASE_URL", logPrefix)
	}
	return nil
}

// ValidateForBridge checks required config when running the MQTT event bridge.
func (c *Config) ValidateForBridge() error {
	if c.MQTTBrokerURL == "" {
		return fmt.Errorf("%s - MQTT_BROKER_URL is required for bridge", logPrefix)
	}
	if c.COMMSURL == "" {
		return fmt.Errorf("%s - COMMS_URL is required for bridge", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, snapshots).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}
