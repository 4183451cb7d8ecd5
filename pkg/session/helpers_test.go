package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/morezero/device-capabilities/pkg/capability"
	"github.com/morezero/device-capabilities/pkg/transport"
)

type route func(req *transport.Request) (*transport.Response, error)

// fakeDevice answers transport requests by path.
type fakeDevice struct {
	mu     sync.Mutex
	routes map[string]route
	calls  []string
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{routes: make(map[string]route)}
}

func (f *fakeDevice) handle(path string, r route) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[path] = r
}

func (f *fakeDevice) Send(_ context.Context, req *transport.Request) (*transport.Response, error) {
	path, _, _ := strings.Cut(req.Path, "?")
	f.mu.Lock()
	f.calls = append(f.calls, req.Path)
	r, ok := f.routes[path]
	f.mu.Unlock()
	if !ok {
		return nil, &transport.Error{Kind: transport.KindHTTPStatus, Path: req.Path, Status: http.StatusNotFound}
	}
	return r(req)
}

func (f *fakeDevice) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeDevice) callsTo(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, path) {
			n++
		}
	}
	return n
}

func textResponse(body string) route {
	return func(*transport.Request) (*transport.Response, error) {
		return &transport.Response{Status: http.StatusOK, ContentType: "text/plain", Body: []byte(body)}, nil
	}
}

func jsonResponse(body string) route {
	return func(*transport.Request) (*transport.Response, error) {
		return &transport.Response{Status: http.StatusOK, ContentType: "application/json", Body: []byte(body)}, nil
	}
}

func failWith(kind transport.Kind) route {
	return func(req *transport.Request) (*transport.Response, error) {
		return nil, &transport.Error{Kind: kind, Path: req.Path, Err: errors.New(kind.String())}
	}
}

// fakeQuery is a DiscoveryQuery with an optional gate.
type fakeQuery struct {
	mu      sync.Mutex
	calls   int
	list    []capability.Advertised
	err     error
	entered chan struct{}
	release chan struct{}
}

func (q *fakeQuery) FetchAdvertisedCapabilities(ctx context.Context) ([]capability.Advertised, error) {
	q.mu.Lock()
	q.calls++
	list, err := q.list, q.err
	entered, release := q.entered, q.release
	q.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		<-release
	}
	return list, err
}

func (q *fakeQuery) set(list []capability.Advertised, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.list, q.err = list, err
}

func (q *fakeQuery) callCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

type recordedSnapshot struct {
	device  string
	records []capability.Record
}

type fakeRecorder struct {
	mu        sync.Mutex
	snapshots []recordedSnapshot
}

func (r *fakeRecorder) RecordSnapshot(_ context.Context, device string, records []capability.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, recordedSnapshot{device: device, records: records})
	return nil
}
