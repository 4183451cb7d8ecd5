package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/device-capabilities/pkg/apis"
	"github.com/morezero/device-capabilities/pkg/capability"
	"github.com/morezero/device-capabilities/pkg/dispatcher"
	"github.com/morezero/device-capabilities/pkg/semver"
	"github.com/morezero/device-capabilities/pkg/session"
)

const routerLogPrefix = "server:router"

// Router error codes not produced by the dispatcher.
const (
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeMethodNotFound  = "METHOD_NOT_FOUND"
	CodeInternalError   = "INTERNAL_ERROR"
)

// retryableCodes are failures a caller may retry unchanged.
var retryableCodes = map[string]bool{
	dispatcher.CodeConnectFailure:  true,
	dispatcher.CodeConnectTimeout:  true,
	dispatcher.CodeReadTimeout:     true,
	dispatcher.CodeIOFailure:       true,
	dispatcher.CodeDiscoveryFailed: true,
	CodeInternalError:              true,
}

// Router maps COMMS requests onto session operations.
type Router struct {
	sess           *session.Session
	requestTimeout time.Duration
}

// NewRouter creates a Router. requestTimeout bounds every request; zero means none.
func NewRouter(sess *session.Session, requestTimeout time.Duration) *Router {
	return &Router{sess: sess, requestTimeout: requestTimeout}
}

// HandleMessage decodes one raw request, dispatches it and encodes the response.
func (r *Router) HandleMessage(ctx context.Context, data []byte) []byte {
	var req DeviceRequest
	var resp *DeviceResponse
	if err := json.Unmarshal(data, &req); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to decode request: %v", routerLogPrefix, err))
		resp = errorResponse("", CodeInvalidRequest, "Failed to decode request", false)
	} else {
		reqCtx, cancel := r.requestContext(ctx, &req)
		resp = r.Dispatch(reqCtx, &req)
		cancel()
	}

	out, err := json.Marshal(resp)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode response: %v", routerLogPrefix, err))
		out, _ = json.Marshal(errorResponse(req.ID, CodeInternalError, "Failed to encode response", true))
	}
	return out
}

// requestContext applies the router timeout, shortened by the caller's timeoutMs.
func (r *Router) requestContext(ctx context.Context, req *DeviceRequest) (context.Context, context.CancelFunc) {
	timeout := r.requestTimeout
	if req.Ctx != nil && req.Ctx.TimeoutMs > 0 {
		callerTimeout := time.Duration(req.Ctx.TimeoutMs) * time.Millisecond
		if timeout <= 0 || callerTimeout < timeout {
			timeout = callerTimeout
		}
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// Dispatch routes a request to the matching session operation.
func (r *Router) Dispatch(ctx context.Context, req *DeviceRequest) *DeviceResponse {
	slog.Debug(fmt.Sprintf("%s - method=%s id=%s", routerLogPrefix, req.Method, req.ID))

	switch req.Method {
	case "discover":
		return r.handleDiscover(ctx, req)
	case "capabilities":
		return r.ok(req, r.capabilities())
	case "resolve":
		return r.handleResolve(ctx, req)
	case "legacy.load":
		return r.handleLegacyLoad(ctx, req)
	case "audio.parameters":
		result, err := r.sess.Audio().GetParameters(ctx)
		return r.result(req, result, err)
	case "audio.transmit":
		return r.handleTransmit(ctx, req)
	case "mqtt.configureClient":
		return r.handleConfigureClient(ctx, req)
	case "mqtt.activate":
		return r.result(req, nil, r.sess.MQTTClient().Activate(ctx))
	case "mqtt.deactivate":
		return r.result(req, nil, r.sess.MQTTClient().Deactivate(ctx))
	case "mqtt.status":
		result, err := r.sess.MQTTClient().GetClientStatus(ctx)
		return r.result(req, result, err)
	case "mqtt.eventConfig":
		result, err := r.sess.MQTTClient().GetEventPublicationConfig(ctx)
		return r.result(req, result, err)
	case "mqtt.configureEvents":
		return r.handleConfigureEvents(ctx, req)
	case "health":
		return r.ok(req, r.health())
	default:
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("Unknown method: %s", req.Method), false)
	}
}

// CapabilitiesResult is the result of discover and capabilities.
type CapabilitiesResult struct {
	Device       string              `json:"device"`
	Discovered   bool                `json:"discovered"`
	Capabilities []capability.Record `json:"capabilities"`
}

// HealthResult is the result of the health method.
type HealthResult struct {
	Status       string `json:"status"`
	Device       string `json:"device"`
	Discovered   bool   `json:"discovered"`
	Capabilities int    `json:"capabilities"`
	Timestamp    string `json:"timestamp"`
}

func (r *Router) capabilities() *CapabilitiesResult {
	return &CapabilitiesResult{
		Device:       r.sess.Device(),
		Discovered:   r.sess.Registry().Discovered(),
		Capabilities: r.sess.Capabilities(),
	}
}

func (r *Router) health() *HealthResult {
	return &HealthResult{
		Status:       "healthy",
		Device:       r.sess.Device(),
		Discovered:   r.sess.Registry().Discovered(),
		Capabilities: r.sess.Registry().Len(),
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
}

func (r *Router) handleDiscover(ctx context.Context, req *DeviceRequest) *DeviceResponse {
	if err := r.sess.Discover(ctx); err != nil {
		return errorToResponse(req.ID, err)
	}
	return r.ok(req, r.capabilities())
}

func (r *Router) handleResolve(ctx context.Context, req *DeviceRequest) *DeviceResponse {
	var params ResolveParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidArgument, "Failed to parse resolve params", false)
	}
	ref, err := semver.ParseCapabilityRef(params.Ref)
	if err != nil {
		return errorResponse(req.ID, CodeInvalidArgument, err.Error(), false)
	}
	rec, err := r.sess.Resolve(ctx, ref)
	return r.result(req, rec, err)
}

func (r *Router) handleLegacyLoad(ctx context.Context, req *DeviceRequest) *DeviceResponse {
	if err := r.sess.LoadLegacyParameters(ctx); err != nil {
		return errorToResponse(req.ID, err)
	}
	listed := make(map[capability.ID]bool)
	for id := range apis.Registrations {
		h, err := r.sess.Handler(id)
		if err != nil {
			continue
		}
		listed[id] = h.ListedInParameters()
	}
	return r.ok(req, listed)
}

func (r *Router) handleTransmit(ctx context.Context, req *DeviceRequest) *DeviceResponse {
	var params TransmitParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidArgument, "Failed to parse audio.transmit params", false)
	}
	if len(params.Audio) == 0 {
		return errorResponse(req.ID, CodeInvalidArgument, "audio is required", false)
	}
	return r.result(req, nil, r.sess.Audio().Transmit(ctx, params.Audio))
}

func (r *Router) handleConfigureClient(ctx context.Context, req *DeviceRequest) *DeviceResponse {
	var cfg apis.ClientConfig
	if err := json.Unmarshal(req.Params, &cfg); err != nil {
		return errorResponse(req.ID, CodeInvalidArgument, "Failed to parse mqtt.configureClient params", false)
	}
	if cfg.Server.Host == "" {
		return errorResponse(req.ID, CodeInvalidArgument, "server.host is required", false)
	}
	return r.result(req, nil, r.sess.MQTTClient().ConfigureClient(ctx, cfg))
}

func (r *Router) handleConfigureEvents(ctx context.Context, req *DeviceRequest) *DeviceResponse {
	var params ConfigureEventsParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, CodeInvalidArgument, "Failed to parse mqtt.configureEvents params", false)
		}
	}
	return r.result(req, nil, r.sess.MQTTClient().ConfigureEventPublication(ctx, params.Topics))
}

// --- helpers ---

func (r *Router) ok(req *DeviceRequest, result interface{}) *DeviceResponse {
	return &DeviceResponse{ID: req.ID, Ok: true, Result: result}
}

func (r *Router) result(req *DeviceRequest, result interface{}, err error) *DeviceResponse {
	if err != nil {
		return errorToResponse(req.ID, err)
	}
	return r.ok(req, result)
}

func errorResponse(id, code, message string, retryable bool) *DeviceResponse {
	return &DeviceResponse{
		ID: id,
		Ok: false,
		Error: &ErrorDetail{
			Code:      code,
			Message:   message,
			Retryable: retryable,
		},
	}
}

func errorToResponse(id string, err error) *DeviceResponse {
	var discErr *capability.DiscoveryError
	if errors.As(err, &discErr) {
		resp := errorResponse(id, dispatcher.CodeDiscoveryFailed, discErr.Error(), true)
		if cause := dispatcher.CodeOf(discErr.Err); cause != "" {
			resp.Error.Details = map[string]string{"cause": cause}
		}
		return resp
	}
	var de *dispatcher.DispatchError
	if errors.As(err, &de) {
		return &DeviceResponse{
			ID: id,
			Ok: false,
			Error: &ErrorDetail{
				Code:      de.Code,
				Message:   de.Message,
				Details:   de.Details,
				Retryable: retryableCodes[de.Code],
			},
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errorResponse(id, dispatcher.CodeIOFailure, err.Error(), true)
	}
	return errorResponse(id, CodeInternalError, err.Error(), true)
}
