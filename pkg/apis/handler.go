// Package apis implements one handler per device capability on top of the
// capability registry and the dispatcher.
package apis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/device-capabilities/pkg/capability"
	"github.com/morezero/device-capabilities/pkg/dispatcher"
	"github.com/morezero/device-capabilities/pkg/semver"
)

const logPrefix = "apis:handler"

// Handler is the part every capability handler shares.
type Handler interface {
	ID() capability.ID
	// ResolveVersion returns the version requests are built with right now.
	ResolveVersion() (string, error)
	// Supported runs discovery if needed and reports whether a usable version exists.
	Supported(ctx context.Context) bool
	ListedInParameters() bool
}

// PrepareFunc runs before version resolution; sessions use it for lazy discovery.
type PrepareFunc func(ctx context.Context) error

// Base resolves versions and invokes requests for one capability.
type Base struct {
	id             capability.ID
	defaultVersion string
	supported      string
	registry       *capability.Registry
	dispatcher     *dispatcher.Dispatcher
	prepare        PrepareFunc
}

// BaseParams holds parameters for NewBase.
type BaseParams struct {
	ID capability.ID
	// DefaultVersion is used when discovery has no record; empty means none.
	DefaultVersion string
	// Supported is the version range this client can speak; empty accepts any.
	Supported  string
	Registry   *capability.Registry
	Dispatcher *dispatcher.Dispatcher
	Prepare    PrepareFunc
}

// NewBase creates a Base.
func NewBase(params BaseParams) Base {
	return Base{
		id:             params.ID,
		defaultVersion: params.DefaultVersion,
		supported:      params.Supported,
		registry:       params.Registry,
		dispatcher:     params.Dispatcher,
		prepare:        params.Prepare,
	}
}

// ID returns the capability id.
func (b *Base) ID() capability.ID { return b.id }

// DefaultVersion returns the fallback version, possibly empty.
func (b *Base) DefaultVersion() string { return b.defaultVersion }

// ResolveVersion returns the discovered version, else the default.
func (b *Base) ResolveVersion() (string, error) {
	version := b.defaultVersion
	if rec, ok := b.registry.Get(b.id); ok {
		version = rec.Version
	}
	if version == "" {
		return "", dispatcher.Errorf(dispatcher.CodeUnsupportedCapability, "%s is not advertised by the device", b.id)
	}
	if b.supported == "" {
		return version, nil
	}
	ok, err := semver.Satisfies(version, b.supported)
	if err != nil || !ok {
		return "", &dispatcher.DispatchError{
			Code:    dispatcher.CodeVersionMismatch,
			Message: fmt.Sprintf("%s version %s is outside supported range %s", b.id, version, b.supported),
			Details: map[string]string{"version": version, "supported": b.supported},
			Cause:   err,
		}
	}
	return version, nil
}

// Supported reports whether the device lists the capability, in discovery or
// in the legacy parameters, at a version this client accepts. A default
// version alone does not make a capability supported.
func (b *Base) Supported(ctx context.Context) bool {
	if _, err := b.resolve(ctx); err != nil {
		return false
	}
	if _, ok := b.registry.Get(b.id); ok {
		return true
	}
	return b.ListedInParameters()
}

// ListedInParameters reports whether the legacy parameters flag the capability.
func (b *Base) ListedInParameters() bool {
	return b.registry.IsListedInLegacyParameters(b.id)
}

// Invoke executes req.
func (b *Base) Invoke(ctx context.Context, req *dispatcher.VersionedRequest) error {
	return b.dispatcher.Execute(ctx, req)
}

// resolve prepares (lazy discovery) and resolves the version. A failed
// discovery only matters when nothing else can supply a version.
func (b *Base) resolve(ctx context.Context) (string, error) {
	if b.prepare != nil {
		if err := b.prepare(ctx); err != nil {
			if _, ok := b.registry.Get(b.id); !ok && b.defaultVersion == "" {
				return "", &dispatcher.DispatchError{
					Code:    dispatcher.CodeDiscoveryFailed,
					Message: fmt.Sprintf("%s: discovery failed: %v", b.id, err),
					Cause:   err,
				}
			}
			slog.Warn(fmt.Sprintf("%s - %s: discovery failed, resolving without it: %v", logPrefix, b.id, err))
		}
	}
	return b.ResolveVersion()
}
