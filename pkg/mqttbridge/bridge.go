// Package mqttbridge subscribes to the MQTT topics a device publishes its
// events on and forwards them, converted, to an events.EventPublisher.
package mqttbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/morezero/device-capabilities/pkg/events"
)

const logPrefix = "mqttbridge:bridge"

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultSubscribeTimeout  = 5 * time.Second
	defaultDisconnectQuiesce = 250 // milliseconds
	defaultKeepAlive         = 60 * time.Second
	defaultTopic             = "#"
	maxQoS                   = 2
)

var (
	// ErrConnectionFailed is returned when the broker cannot be reached.
	ErrConnectionFailed = errors.New("mqtt connection failed")
	// ErrSubscribeFailed is returned when the event topic subscription is refused.
	ErrSubscribeFailed = errors.New("mqtt subscribe failed")
	// ErrInvalidQoS is returned for a QoS outside 0..2.
	ErrInvalidQoS = errors.New("invalid qos")
)

// Config holds broker settings for the bridge.
type Config struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	// Topic is the subscription filter; defaults to "#".
	Topic string
	QoS   byte
	// Device names the source device on forwarded events.
	Device string
}

// Stats counts bridge traffic.
type Stats struct {
	Forwarded uint64
	Dropped   uint64
}

// Bridge forwards device MQTT events to a publisher.
type Bridge struct {
	cfg       Config
	publisher events.EventPublisher

	mu     sync.Mutex
	client pahomqtt.Client

	forwarded atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a Bridge. Call Start to connect.
func New(cfg Config, publisher events.EventPublisher) (*Bridge, error) {
	if cfg.BrokerURL == "" {
		return nil, fmt.Errorf("%s - broker URL is required", logPrefix)
	}
	if cfg.QoS > maxQoS {
		return nil, fmt.Errorf("%s - %w: %d", logPrefix, ErrInvalidQoS, cfg.QoS)
	}
	if cfg.Topic == "" {
		cfg.Topic = defaultTopic
	}
	if publisher == nil {
		publisher = &events.NoOpPublisher{}
	}
	return &Bridge{cfg: cfg, publisher: publisher}, nil
}

// buildClientOptions creates paho options from the bridge config.
func buildClientOptions(cfg Config) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	}
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	return opts
}

// Start connects to the broker and subscribes to the configured topic.
// Subscriptions are restored by the connect handler after a reconnect.
func (b *Bridge) Start(ctx context.Context) error {
	opts := buildClientOptions(b.cfg)
	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		if err := b.subscribe(c); err != nil {
			slog.Error(fmt.Sprintf("%s - %v", logPrefix, err))
		}
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		slog.Warn(fmt.Sprintf("%s - connection to %s lost: %v", logPrefix, b.cfg.BrokerURL, err))
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return fmt.Errorf("%s - %w: %w", logPrefix, ErrConnectionFailed, ctx.Err())
	case <-time.After(defaultConnectTimeout):
		client.Disconnect(0)
		return fmt.Errorf("%s - %w: timeout after %v", logPrefix, ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s - %w: %w", logPrefix, ErrConnectionFailed, err)
	}

	b.mu.Lock()
	b.client = client
	b.mu.Unlock()

	slog.Info(fmt.Sprintf("%s - Bridging %s topic %q", logPrefix, b.cfg.BrokerURL, b.cfg.Topic))
	return nil
}

func (b *Bridge) subscribe(c pahomqtt.Client) error {
	token := c.Subscribe(b.cfg.Topic, b.cfg.QoS, b.wrapHandler())
	if !token.WaitTimeout(defaultSubscribeTimeout) {
		return fmt.Errorf("%w: timeout on %s", ErrSubscribeFailed, b.cfg.Topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// Close disconnects from the broker.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		b.client.Disconnect(defaultDisconnectQuiesce)
		b.client = nil
	}
}

// IsConnected reports whether the broker connection is up.
func (b *Bridge) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client != nil && b.client.IsConnected()
}

// Stats returns forwarded and dropped message counts.
func (b *Bridge) Stats() Stats {
	return Stats{Forwarded: b.forwarded.Load(), Dropped: b.dropped.Load()}
}

// HandleMessage converts one MQTT payload and publishes it.
func (b *Bridge) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	event, err := events.FromMQTTMessage(payload)
	if err != nil {
		b.dropped.Add(1)
		return fmt.Errorf("%s - dropping message on %s: %w", logPrefix, topic, err)
	}
	event.Device = b.cfg.Device
	if err := b.publisher.PublishEvent(ctx, event); err != nil {
		b.dropped.Add(1)
		return fmt.Errorf("%s - failed to forward %s: %w", logPrefix, event.Topic, err)
	}
	b.forwarded.Add(1)
	return nil
}

// wrapHandler adapts HandleMessage to paho with panic recovery.
func (b *Bridge) wrapHandler() pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				b.dropped.Add(1)
				slog.Error(fmt.Sprintf("%s - handler panic on %s: %v", logPrefix, msg.Topic(), r))
			}
		}()
		if err := b.HandleMessage(context.Background(), msg.Topic(), msg.Payload()); err != nil {
			slog.Warn(err.Error())
		}
	}
}
