// Package session ties one device's capability registry, dispatcher and
// handlers together.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/morezero/device-capabilities/pkg/apis"
	"github.com/morezero/device-capabilities/pkg/capability"
	"github.com/morezero/device-capabilities/pkg/dispatcher"
	"github.com/morezero/device-capabilities/pkg/events"
	"github.com/morezero/device-capabilities/pkg/params"
	"github.com/morezero/device-capabilities/pkg/semver"
	"github.com/morezero/device-capabilities/pkg/transport"
)

const (
	logPrefix = "session:session"

	discoverKey = "discover"
)

// Recorder stores the capability set of a device after each successful discovery.
type Recorder interface {
	RecordSnapshot(ctx context.Context, device string, records []capability.Record) error
}

// Params holds parameters for New.
type Params struct {
	// Device names the device in events and snapshots.
	Device    string
	Transport transport.Transport
	// ReadTimeout bounds every device call; zero uses the dispatcher default.
	ReadTimeout time.Duration
	// Query overrides the device's API discovery service.
	Query     capability.DiscoveryQuery
	Publisher events.EventPublisher
	Recorder  Recorder
}

// Session is one client's view of one device.
type Session struct {
	device     string
	registry   *capability.Registry
	dispatcher *dispatcher.Dispatcher
	params     *params.Cache
	loader     *params.Loader
	publisher  events.EventPublisher
	recorder   Recorder

	flight singleflight.Group

	// lazy discovery state; autoDone closes when the first discovery finishes
	autoMu      sync.Mutex
	autoStarted bool
	attempted   bool
	autoErr     error
	autoDone    chan struct{}

	handlersMu sync.Mutex
	handlers   map[capability.ID]apis.Handler
}

// New creates a Session. No device call is made until a handler needs a version
// or Discover is called.
func New(p Params) *Session {
	d := dispatcher.NewDispatcher(p.Transport, dispatcher.Config{ReadTimeout: p.ReadTimeout})
	cache := params.NewCache()

	query := p.Query
	if query == nil {
		query = apis.NewDiscoveryQuery(d)
	}
	publisher := p.Publisher
	if publisher == nil {
		publisher = &events.NoOpPublisher{}
	}

	return &Session{
		device:     p.Device,
		dispatcher: d,
		params:     cache,
		loader:     params.NewLoader(p.Transport, cache),
		publisher:  publisher,
		recorder:   p.Recorder,
		registry: capability.NewRegistry(capability.RegistryParams{
			Query:        query,
			Legacy:       cache,
			LegacyFields: apis.LegacyFields(),
		}),
		handlers: make(map[capability.ID]apis.Handler),
		autoDone: make(chan struct{}),
	}
}

// Device returns the device name.
func (s *Session) Device() string { return s.device }

// Registry returns the session's capability registry.
func (s *Session) Registry() *capability.Registry { return s.registry }

// Params returns the session's parameter cache.
func (s *Session) Params() *params.Cache { return s.params }

// Discover queries the device and replaces the capability set. Concurrent
// callers share one query and observe the same result. A caller giving up
// through ctx does not cancel the query for the others.
func (s *Session) Discover(ctx context.Context) error {
	ch := s.flight.DoChan(discoverKey, func() (interface{}, error) {
		return nil, s.runDiscovery(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("%s - waiting for discovery: %w", logPrefix, ctx.Err())
	}
}

func (s *Session) runDiscovery(ctx context.Context) error {
	prev := s.registry.Snapshot()
	changes, err := s.registry.DiscoverWithChanges(ctx)

	s.autoMu.Lock()
	if !s.attempted {
		s.attempted = true
		close(s.autoDone)
	}
	if err == nil || s.registry.Discovered() {
		s.autoErr = nil
	} else {
		s.autoErr = err
	}
	s.autoMu.Unlock()

	if err != nil {
		return err
	}

	records := s.Capabilities()
	slog.Info(fmt.Sprintf("%s - %s: discovered %d capabilities", logPrefix, s.device, len(records)))
	s.warnDowngrades(prev, changes.Updated)

	if !changes.Empty() {
		s.publishChanges(ctx, changes, len(records))
	}
	if s.recorder != nil {
		if err := s.recorder.RecordSnapshot(ctx, s.device, records); err != nil {
			slog.Warn(fmt.Sprintf("%s - %s: failed to record snapshot: %v", logPrefix, s.device, err))
		}
	}
	return nil
}

func (s *Session) warnDowngrades(prev map[capability.ID]capability.Record, updated []capability.ID) {
	for _, id := range updated {
		old, ok := prev[id]
		if !ok {
			continue
		}
		cur, ok := s.registry.Get(id)
		if ok && semver.Compare(cur.Version, old.Version) < 0 {
			slog.Warn(fmt.Sprintf("%s - %s: %s went from %s back to %s", logPrefix, s.device, id, old.Version, cur.Version))
		}
	}
}

func (s *Session) publishChanges(ctx context.Context, changes capability.Changes, total int) {
	event := &events.CapabilitiesChangedEvent{
		Device:    s.device,
		Added:     idStrings(changes.Added),
		Removed:   idStrings(changes.Removed),
		Updated:   idStrings(changes.Updated),
		Total:     total,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.publisher.PublishCapabilitiesChanged(ctx, event); err != nil {
		slog.Warn(fmt.Sprintf("%s - %s: failed to publish capability change: %v", logPrefix, s.device, err))
	}
}

// discoverOnce runs discovery automatically at most once. Its failure is
// returned again to later callers until an explicit Discover succeeds.
// Only the first caller starts a query; the others wait for it to finish.
func (s *Session) discoverOnce(ctx context.Context) error {
	s.autoMu.Lock()
	if s.attempted {
		err := s.autoErr
		s.autoMu.Unlock()
		return err
	}
	lead := !s.autoStarted
	s.autoStarted = true
	s.autoMu.Unlock()

	if lead {
		return s.Discover(ctx)
	}
	select {
	case <-s.autoDone:
		s.autoMu.Lock()
		defer s.autoMu.Unlock()
		return s.autoErr
	case <-ctx.Done():
		return fmt.Errorf("%s - waiting for discovery: %w", logPrefix, ctx.Err())
	}
}

// Capabilities returns the current records sorted by id.
func (s *Session) Capabilities() []capability.Record {
	snap := s.registry.Snapshot()
	out := make([]capability.Record, 0, len(snap))
	for _, rec := range snap {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Resolve returns the record satisfying ref, discovering first if no automatic
// attempt was made yet. A missing capability is UNSUPPORTED_CAPABILITY and a
// version outside the range is VERSION_MISMATCH.
func (s *Session) Resolve(ctx context.Context, ref *semver.ParsedCapabilityRef) (capability.Record, error) {
	if err := s.discoverOnce(ctx); err != nil && !s.registry.Discovered() {
		return capability.Record{}, err
	}

	rec, ok := s.registry.Get(capability.ID(ref.ID))
	if !ok {
		return capability.Record{}, dispatcher.NewDispatchError(dispatcher.CodeUnsupportedCapability,
			fmt.Sprintf("%s does not advertise %s", s.device, ref.ID))
	}
	ok, err := semver.Satisfies(rec.Version, ref.Range)
	if err != nil {
		return capability.Record{}, dispatcher.Errorf(dispatcher.CodeVersionMismatch, "%s: %v", ref.Raw, err)
	}
	if !ok {
		return capability.Record{}, dispatcher.Errorf(dispatcher.CodeVersionMismatch, "%s advertises %s, want %s",
			s.device, semver.BuildCapabilityString(string(rec.ID), rec.Version), ref.Raw)
	}
	return rec, nil
}

// Handler returns the handler for id, building it on first use.
func (s *Session) Handler(id capability.ID) (apis.Handler, error) {
	reg, ok := apis.Registrations[id]
	if !ok {
		return nil, dispatcher.Errorf(dispatcher.CodeUnsupportedCapability, "no handler for %s", id)
	}

	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	if h, ok := s.handlers[id]; ok {
		return h, nil
	}

	base := apis.NewBase(apis.BaseParams{
		ID:             reg.ID,
		DefaultVersion: reg.DefaultVersion,
		Supported:      reg.Supported,
		Registry:       s.registry,
		Dispatcher:     s.dispatcher,
		Prepare:        s.discoverOnce,
	})
	h := reg.New(base, apis.Deps{Params: s.params})
	s.handlers[id] = h
	slog.Debug(fmt.Sprintf("%s - %s: built handler %s", logPrefix, s.device, id))
	return h, nil
}

// Audio returns the audio handler.
func (s *Session) Audio() *apis.AudioHandler {
	h, _ := s.Handler(capability.AudioStreaming)
	return h.(*apis.AudioHandler)
}

// MQTTClient returns the MQTT client handler.
func (s *Session) MQTTClient() *apis.MQTTClientHandler {
	h, _ := s.Handler(capability.MQTTClient)
	return h.(*apis.MQTTClientHandler)
}

// LoadLegacyParameters reads the device's property parameters, the fallback
// source for capabilities that predate API discovery.
func (s *Session) LoadLegacyParameters(ctx context.Context) error {
	if err := s.loader.Refresh(ctx, params.GroupProperties); err != nil {
		return fmt.Errorf("%s - %s: %w", logPrefix, s.device, err)
	}
	return nil
}

func idStrings(ids []capability.ID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
