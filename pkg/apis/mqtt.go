package apis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/device-capabilities/pkg/dispatcher"
)

const (
	mqttLogPrefix = "apis:mqtt"

	mqttClientPath = "/axis-cgi/mqtt/client.cgi"
	mqttEventPath  = "/axis-cgi/mqtt/event.cgi"
)

// DefaultTopics publishes every device event.
var DefaultTopics = []string{"//."}

// MQTT client operations.
const (
	MethodConfigureClient           = "configureClient"
	MethodActivateClient            = "activateClient"
	MethodDeactivateClient          = "deactivateClient"
	MethodGetClientStatus           = "getClientStatus"
	MethodGetEventPublicationConfig = "getEventPublicationConfig"
	MethodConfigureEventPublication = "configureEventPublication"
)

var mqttEndpoints = map[string]string{
	MethodConfigureClient:           mqttClientPath,
	MethodActivateClient:            mqttClientPath,
	MethodDeactivateClient:          mqttClientPath,
	MethodGetClientStatus:           mqttClientPath,
	MethodGetEventPublicationConfig: mqttEventPath,
	MethodConfigureEventPublication: mqttEventPath,
}

// MQTTClientHandler configures the device's own MQTT client. It has no default
// version: every operation needs the capability to be discovered.
type MQTTClientHandler struct {
	Base
}

// NewMQTTClientHandler creates an MQTTClientHandler.
func NewMQTTClientHandler(base Base) *MQTTClientHandler {
	return &MQTTClientHandler{Base: base}
}

// BuildRequest builds one MQTT client call at the current version.
func (h *MQTTClientHandler) BuildRequest(method string, params, out interface{}) (*dispatcher.VersionedRequest, error) {
	version, err := h.ResolveVersion()
	if err != nil {
		return nil, err
	}
	return h.request(version, method, params, out)
}

func (h *MQTTClientHandler) request(version, method string, params, out interface{}) (*dispatcher.VersionedRequest, error) {
	endpoint, ok := mqttEndpoints[method]
	if !ok {
		return nil, fmt.Errorf("%s - unknown method %q", mqttLogPrefix, method)
	}
	return newJSONRequest(jsonRequestParams{
		Capability: h.ID(),
		Version:    version,
		Endpoint:   endpoint,
		Method:     method,
		Params:     params,
		Out:        out,
	})
}

func (h *MQTTClientHandler) call(ctx context.Context, method string, params, out interface{}) error {
	version, err := h.resolve(ctx)
	if err != nil {
		return err
	}
	req, err := h.request(version, method, params, out)
	if err != nil {
		return err
	}
	slog.Debug(fmt.Sprintf("%s - %s (v%s)", mqttLogPrefix, method, version))
	return h.Invoke(ctx, req)
}

// ConfigureClient sets the broker connection settings.
func (h *MQTTClientHandler) ConfigureClient(ctx context.Context, cfg ClientConfig) error {
	return h.call(ctx, MethodConfigureClient, cfg, nil)
}

// Activate starts the device MQTT client.
func (h *MQTTClientHandler) Activate(ctx context.Context) error {
	return h.call(ctx, MethodActivateClient, nil, nil)
}

// Deactivate stops the device MQTT client.
func (h *MQTTClientHandler) Deactivate(ctx context.Context) error {
	return h.call(ctx, MethodDeactivateClient, nil, nil)
}

// GetClientStatus returns the client state and configuration.
func (h *MQTTClientHandler) GetClientStatus(ctx context.Context) (*ClientConfigStatus, error) {
	var status ClientConfigStatus
	if err := h.call(ctx, MethodGetClientStatus, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

type eventPublicationData struct {
	EventPublicationConfig EventPublicationConfig `json:"eventPublicationConfig"`
}

// GetEventPublicationConfig returns which events the device publishes.
func (h *MQTTClientHandler) GetEventPublicationConfig(ctx context.Context) (*EventPublicationConfig, error) {
	var data eventPublicationData
	if err := h.call(ctx, MethodGetEventPublicationConfig, nil, &data); err != nil {
		return nil, err
	}
	return &data.EventPublicationConfig, nil
}

// ConfigureEventPublication publishes events matching topics; nil topics
// means DefaultTopics and an empty slice clears the filter list.
func (h *MQTTClientHandler) ConfigureEventPublication(ctx context.Context, topics []string) error {
	if topics == nil {
		topics = DefaultTopics
	}
	cfg := EventPublicationConfig{EventFilterList: EventFiltersFromTopics(topics)}
	return h.call(ctx, MethodConfigureEventPublication, cfg, nil)
}
