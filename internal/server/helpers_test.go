package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/morezero/device-capabilities/pkg/capability"
	"github.com/morezero/device-capabilities/pkg/session"
	"github.com/morezero/device-capabilities/pkg/transport"
)

const (
	transmitPath  = "/axis-cgi/audio/transmit.cgi"
	mqttPath      = "/axis-cgi/mqtt/client.cgi"
	mqttEventPath = "/axis-cgi/mqtt/event.cgi"
)

// stubDevice answers transport requests by path.
type stubDevice struct {
	mu     sync.Mutex
	bodies map[string]string
	fails  map[string]transport.Kind
	calls  []*transport.Request
}

func newStubDevice() *stubDevice {
	return &stubDevice{bodies: make(map[string]string), fails: make(map[string]transport.Kind)}
}

func (d *stubDevice) Send(_ context.Context, req *transport.Request) (*transport.Response, error) {
	path, _, _ := strings.Cut(req.Path, "?")
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, req)
	if kind, ok := d.fails[path]; ok {
		return nil, &transport.Error{Kind: kind, Path: req.Path, Err: errors.New(kind.String())}
	}
	body, ok := d.bodies[path]
	if !ok {
		return nil, &transport.Error{Kind: transport.KindHTTPStatus, Path: req.Path, Status: http.StatusNotFound}
	}
	return &transport.Response{Status: http.StatusOK, Body: []byte(body)}, nil
}

func (d *stubDevice) setBody(path, body string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bodies[path] = body
}

func (d *stubDevice) setFailure(path string, kind transport.Kind) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fails[path] = kind
}

func (d *stubDevice) lastCall() *transport.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.calls) == 0 {
		return nil
	}
	return d.calls[len(d.calls)-1]
}

type stubQuery struct {
	list []capability.Advertised
	err  error
}

func (q *stubQuery) FetchAdvertisedCapabilities(context.Context) ([]capability.Advertised, error) {
	return q.list, q.err
}

func newTestSession(device *stubDevice, q *stubQuery) *session.Session {
	return session.New(session.Params{Device: "cam", Transport: device, Query: q})
}

func fullQuery() *stubQuery {
	return &stubQuery{list: []capability.Advertised{
		{ID: capability.AudioStreaming, Version: "1.0"},
		{ID: capability.MQTTClient, Version: "1.4"},
	}}
}
