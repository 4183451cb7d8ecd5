package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/morezero/device-capabilities/pkg/capability"
	"github.com/morezero/device-capabilities/pkg/dispatcher"
	"github.com/morezero/device-capabilities/pkg/transport"
)

func handle(t *testing.T, r *Router, raw string) *DeviceResponse {
	t.Helper()
	out := r.HandleMessage(context.Background(), []byte(raw))
	var resp DeviceResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("server:router_test - failed to decode response %s: %v", out, err)
	}
	return &resp
}

func TestRouter_InvalidRequest(t *testing.T) {
	r := NewRouter(newTestSession(newStubDevice(), fullQuery()), time.Second)
	resp := handle(t, r, `{not json`)
	if resp.Ok || resp.Error == nil || resp.Error.Code != CodeInvalidRequest {
		t.Fatalf("server:router_test - expected INVALID_REQUEST, got %+v", resp)
	}
}

func TestRouter_UnknownMethod(t *testing.T) {
	r := NewRouter(newTestSession(newStubDevice(), fullQuery()), time.Second)
	resp := handle(t, r, `{"id":"req-1","method":"nope"}`)
	if resp.ID != "req-1" {
		t.Errorf("server:router_test - id = %q, want req-1", resp.ID)
	}
	if resp.Ok || resp.Error.Code != CodeMethodNotFound || resp.Error.Retryable {
		t.Errorf("server:router_test - expected METHOD_NOT_FOUND, got %+v", resp.Error)
	}
}

func TestRouter_InvalidArguments(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "transmit without audio", raw: `{"id":"1","method":"audio.transmit","params":{}}`},
		{name: "transmit bad params", raw: `{"id":"1","method":"audio.transmit","params":[1]}`},
		{name: "configure client without host", raw: `{"id":"1","method":"mqtt.configureClient","params":{"server":{"port":1883}}}`},
		{name: "configure events bad params", raw: `{"id":"1","method":"mqtt.configureEvents","params":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := newStubDevice()
			r := NewRouter(newTestSession(device, fullQuery()), time.Second)
			resp := handle(t, r, tt.raw)
			if resp.Ok || resp.Error.Code != CodeInvalidArgument {
				t.Fatalf("server:router_test - expected INVALID_ARGUMENT, got %+v", resp.Error)
			}
			if device.lastCall() != nil {
				t.Errorf("server:router_test - device should not be called")
			}
		})
	}
}

func TestRouter_DiscoverAndCapabilities(t *testing.T) {
	r := NewRouter(newTestSession(newStubDevice(), fullQuery()), time.Second)

	resp := handle(t, r, `{"id":"d","method":"discover"}`)
	if !resp.Ok {
		t.Fatalf("server:router_test - discover failed: %+v", resp.Error)
	}

	resp = handle(t, r, `{"id":"c","method":"capabilities"}`)
	raw, _ := json.Marshal(resp.Result)
	var result CapabilitiesResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("server:router_test - bad result: %v", err)
	}
	if !result.Discovered || result.Device != "cam" || len(result.Capabilities) != 2 {
		t.Errorf("server:router_test - capabilities = %+v", result)
	}
	if result.Capabilities[0].ID != capability.AudioStreaming {
		t.Errorf("server:router_test - first record = %s, want sorted by id", result.Capabilities[0].ID)
	}
}

func TestRouter_DiscoverFailure(t *testing.T) {
	q := &stubQuery{err: &dispatcher.DispatchError{Code: dispatcher.CodeConnectFailure, Message: "refused"}}
	r := NewRouter(newTestSession(newStubDevice(), q), time.Second)

	resp := handle(t, r, `{"id":"d","method":"discover"}`)
	if resp.Ok || resp.Error.Code != dispatcher.CodeDiscoveryFailed || !resp.Error.Retryable {
		t.Fatalf("server:router_test - expected retryable DISCOVERY_FAILED, got %+v", resp.Error)
	}
	details, _ := resp.Error.Details.(map[string]interface{})
	if details["cause"] != dispatcher.CodeConnectFailure {
		t.Errorf("server:router_test - details = %v", resp.Error.Details)
	}
}

func TestRouter_Transmit(t *testing.T) {
	device := newStubDevice()
	device.setFailure(transmitPath, transport.KindReadTimeout)
	r := NewRouter(newTestSession(device, fullQuery()), time.Second)

	audio, _ := json.Marshal(TransmitParams{Audio: []byte{0x7f, 0xff}})
	resp := handle(t, r, fmt.Sprintf(`{"id":"t","method":"audio.transmit","params":%s}`, audio))
	if !resp.Ok {
		t.Fatalf("server:router_test - transmit should succeed on read timeout, got %+v", resp.Error)
	}
	call := device.lastCall()
	if call == nil || string(call.Body) != string([]byte{0x7f, 0xff}) {
		t.Errorf("server:router_test - transmit body = %v", call)
	}
}

func TestRouter_MQTTStatusErrors(t *testing.T) {
	tests := []struct {
		name          string
		kind          transport.Kind
		wantCode      string
		wantRetryable bool
	}{
		{name: "read timeout", kind: transport.KindReadTimeout, wantCode: dispatcher.CodeReadTimeout, wantRetryable: true},
		{name: "connect failure", kind: transport.KindConnect, wantCode: dispatcher.CodeConnectFailure, wantRetryable: true},
		{name: "http status", kind: transport.KindHTTPStatus, wantCode: dispatcher.CodeHTTPError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := newStubDevice()
			device.setFailure(mqttPath, tt.kind)
			r := NewRouter(newTestSession(device, fullQuery()), time.Second)

			resp := handle(t, r, `{"id":"s","method":"mqtt.status"}`)
			if resp.Ok || resp.Error.Code != tt.wantCode {
				t.Fatalf("server:router_test - expected %s, got %+v", tt.wantCode, resp.Error)
			}
			if resp.Error.Retryable != tt.wantRetryable {
				t.Errorf("server:router_test - retryable = %v, want %v", resp.Error.Retryable, tt.wantRetryable)
			}
		})
	}
}

func TestRouter_MQTTUnsupported(t *testing.T) {
	q := &stubQuery{list: []capability.Advertised{{ID: capability.AudioStreaming, Version: "1.0"}}}
	device := newStubDevice()
	r := NewRouter(newTestSession(device, q), time.Second)

	resp := handle(t, r, `{"id":"a","method":"mqtt.activate"}`)
	if resp.Ok || resp.Error.Code != dispatcher.CodeUnsupportedCapability || resp.Error.Retryable {
		t.Fatalf("server:router_test - expected UNSUPPORTED_CAPABILITY, got %+v", resp.Error)
	}
	if device.lastCall() != nil {
		t.Error("server:router_test - device should not be called")
	}
}

func TestRouter_Resolve(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantCode string
	}{
		{name: "satisfied", raw: `{"id":"r","method":"resolve","params":{"ref":"mqtt-client@^1.0"}}`},
		{name: "mismatch", raw: `{"id":"r","method":"resolve","params":{"ref":"mqtt-client@2"}}`, wantCode: dispatcher.CodeVersionMismatch},
		{name: "unsupported", raw: `{"id":"r","method":"resolve","params":{"ref":"param-cgi"}}`, wantCode: dispatcher.CodeUnsupportedCapability},
		{name: "invalid ref", raw: `{"id":"r","method":"resolve","params":{"ref":"Bad Id"}}`, wantCode: CodeInvalidArgument},
		{name: "missing params", raw: `{"id":"r","method":"resolve"}`, wantCode: CodeInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(newTestSession(newStubDevice(), fullQuery()), time.Second)
			resp := handle(t, r, tt.raw)
			if tt.wantCode == "" {
				if !resp.Ok {
					t.Fatalf("server:router_test - resolve failed: %+v", resp.Error)
				}
				result, _ := resp.Result.(map[string]interface{})
				if result["version"] != "1.4" {
					t.Errorf("server:router_test - result = %v", resp.Result)
				}
				return
			}
			if resp.Ok || resp.Error.Code != tt.wantCode {
				t.Errorf("server:router_test - expected %s, got %+v", tt.wantCode, resp.Error)
			}
		})
	}
}

func TestRouter_Health(t *testing.T) {
	r := NewRouter(newTestSession(newStubDevice(), fullQuery()), time.Second)
	resp := handle(t, r, `{"id":"h","method":"health"}`)
	if !resp.Ok {
		t.Fatalf("server:router_test - health failed: %+v", resp.Error)
	}
	result, _ := resp.Result.(map[string]interface{})
	if result["status"] != "healthy" || result["device"] != "cam" {
		t.Errorf("server:router_test - health = %v", resp.Result)
	}
}

func TestRouter_RequestContext(t *testing.T) {
	tests := []struct {
		name     string
		router   time.Duration
		callerMs int
		want     time.Duration
	}{
		{name: "router timeout", router: 5 * time.Second, want: 5 * time.Second},
		{name: "caller shorter", router: 5 * time.Second, callerMs: 1000, want: time.Second},
		{name: "caller longer is capped", router: time.Second, callerMs: 5000, want: time.Second},
		{name: "caller only", callerMs: 2000, want: 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(nil, tt.router)
			req := &DeviceRequest{}
			if tt.callerMs > 0 {
				req.Ctx = &InvocationContext{TimeoutMs: tt.callerMs}
			}
			start := time.Now()
			ctx, cancel := r.requestContext(context.Background(), req)
			defer cancel()
			deadline, ok := ctx.Deadline()
			if !ok {
				t.Fatal("server:router_test - expected a deadline")
			}
			got := deadline.Sub(start)
			if got > tt.want || got < tt.want-100*time.Millisecond {
				t.Errorf("server:router_test - timeout = %v, want ~%v", got, tt.want)
			}
		})
	}
}

func TestErrorToResponse(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  string
		retryable bool
	}{
		{name: "dispatch error", err: &dispatcher.DispatchError{Code: dispatcher.CodeDecodeFailure}, wantCode: dispatcher.CodeDecodeFailure},
		{name: "wrapped dispatch error", err: fmt.Errorf("x: %w", &dispatcher.DispatchError{Code: dispatcher.CodeIOFailure}), wantCode: dispatcher.CodeIOFailure, retryable: true},
		{name: "discovery error", err: &capability.DiscoveryError{Err: errors.New("down")}, wantCode: dispatcher.CodeDiscoveryFailed, retryable: true},
		{name: "deadline", err: context.DeadlineExceeded, wantCode: dispatcher.CodeIOFailure, retryable: true},
		{name: "other", err: errors.New("boom"), wantCode: CodeInternalError, retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := errorToResponse("id", tt.err)
			if resp.Ok || resp.ID != "id" || resp.Error.Code != tt.wantCode || resp.Error.Retryable != tt.retryable {
				t.Errorf("server:router_test - got %+v, want code %s retryable %v", resp.Error, tt.wantCode, tt.retryable)
			}
		})
	}
}
