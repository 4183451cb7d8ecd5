package events

import "context"

// EventPublisher is the interface for publishing device and capability events.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *DeviceEvent) error
	PublishCapabilitiesChanged(ctx context.Context, event *CapabilitiesChangedEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing (for in-process usage without events).
type NoOpPublisher struct{}

// PublishEvent is a no-op.
func (p *NoOpPublisher) PublishEvent(_ context.Context, _ *DeviceEvent) error {
	return nil
}

// PublishCapabilitiesChanged is a no-op.
func (p *NoOpPublisher) PublishCapabilitiesChanged(_ context.Context, _ *CapabilitiesChangedEvent) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls callback functions (for testing).
// A nil callback drops the corresponding event.
type CallbackPublisher struct {
	onEvent   func(ctx context.Context, event *DeviceEvent) error
	onChanged func(ctx context.Context, event *CapabilitiesChangedEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(
	onEvent func(ctx context.Context, event *DeviceEvent) error,
	onChanged func(ctx context.Context, event *CapabilitiesChangedEvent) error,
) *CallbackPublisher {
	return &CallbackPublisher{onEvent: onEvent, onChanged: onChanged}
}

// PublishEvent calls the event callback.
func (p *CallbackPublisher) PublishEvent(ctx context.Context, event *DeviceEvent) error {
	if p.onEvent == nil {
		return nil
	}
	return p.onEvent(ctx, event)
}

// PublishCapabilitiesChanged calls the change callback.
func (p *CallbackPublisher) PublishCapabilitiesChanged(ctx context.Context, event *CapabilitiesChangedEvent) error {
	if p.onChanged == nil {
		return nil
	}
	return p.onChanged(ctx, event)
}
