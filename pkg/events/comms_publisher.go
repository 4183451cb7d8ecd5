package events

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/device-capabilities/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// Device names the device in subjects when an event carries no device.
	Device string
	// GlobalEventSubject, when set, also receives every device event (e.g. from EVENT_SUBJECT).
	GlobalEventSubject string
}

// CommsPublisher publishes device events and capability changes to COMMS subjects.
type CommsPublisher struct {
	nc                 *comms.Conn
	device             string
	globalEventSubject string
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	p := &CommsPublisher{nc: nc}
	if opts != nil {
		p.device = opts.Device
		p.globalEventSubject = opts.GlobalEventSubject
	}
	return p
}

// PublishEvent publishes a DeviceEvent to its per-topic subject and, if
// configured, to the global event subject.
func (p *CommsPublisher) PublishEvent(_ context.Context, event *DeviceEvent) error {
	if event.Device == "" {
		event.Device = p.device
	}
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	subject := commsutil.BuildEventSubject(event.Device, event.Topic)
	if err := p.nc.Publish(subject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, subject, err))
		return err
	}

	if p.globalEventSubject != "" {
		if err := p.nc.Publish(p.globalEventSubject, data); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, p.globalEventSubject, err))
			return err
		}
	}

	slog.Debug(fmt.Sprintf("%s - Published device event %s", commsPublisherLogPrefix, subject))
	return nil
}

// PublishCapabilitiesChanged publishes a CapabilitiesChangedEvent to the device's change subject.
func (p *CommsPublisher) PublishCapabilitiesChanged(_ context.Context, event *CapabilitiesChangedEvent) error {
	if event.Device == "" {
		event.Device = p.device
	}
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode change event: %w", commsPublisherLogPrefix, err)
	}

	subject := commsutil.BuildChangedSubject(event.Device)
	if err := p.nc.Publish(subject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, subject, err))
		return err
	}

	slog.Debug(fmt.Sprintf("%s - Published capability change for %s (+%d -%d ~%d)",
		commsPublisherLogPrefix, event.Device, len(event.Added), len(event.Removed), len(event.Updated)))
	return nil
}
