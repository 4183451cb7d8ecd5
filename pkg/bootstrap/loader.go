package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/morezero/device-capabilities/pkg/capability"
	"github.com/morezero/device-capabilities/pkg/semver"
)

const logPrefix = "bootstrap:loader"

// ErrNoFile is returned by Load when none of the paths can be read.
var ErrNoFile = errors.New("bootstrap: no capability file found")

// Load reads the first readable path. A file that exists but does not parse
// or validate is an error.
func Load(paths ...string) (*File, error) {
	for _, p := range paths {
		if p == "" {
			continue
		}

		data, err := os.ReadFile(p)
		if err != nil {
			slog.Debug(fmt.Sprintf("%s - Skipping %s: %v", logPrefix, p, err))
			continue
		}

		var f File
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("%s - failed to parse %s: %w", logPrefix, p, err)
		}
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("%s - invalid %s: %w", logPrefix, p, err)
		}

		slog.Info(fmt.Sprintf("%s - Loaded %d pinned capabilities from %s", logPrefix, len(f.Capabilities), p))
		return &f, nil
	}
	return nil, ErrNoFile
}

// Validate checks every pinned version and alias.
func (f *File) Validate() error {
	if len(f.Capabilities) == 0 {
		return errors.New("no capabilities")
	}
	for id, e := range f.Capabilities {
		if id == "" {
			return errors.New("empty capability id")
		}
		if _, err := semver.Parse(e.Version); err != nil {
			return fmt.Errorf("capability %s: %w", id, err)
		}
	}
	for alias, target := range f.Aliases {
		if alias == "" || target == "" {
			return fmt.Errorf("alias %q -> %q: empty id", alias, target)
		}
	}
	return nil
}

// Merge returns base with the capabilities and aliases of override applied.
func Merge(base, override *File) *File {
	merged := *base

	merged.Capabilities = make(map[string]Entry, len(base.Capabilities)+len(override.Capabilities))
	for id, e := range base.Capabilities {
		merged.Capabilities[id] = e
	}
	for id, e := range override.Capabilities {
		merged.Capabilities[id] = e
	}

	merged.Aliases = make(map[string]string, len(base.Aliases)+len(override.Aliases))
	for alias, target := range base.Aliases {
		merged.Aliases[alias] = target
	}
	for alias, target := range override.Aliases {
		merged.Aliases[alias] = target
	}

	if override.Device != "" {
		merged.Device = override.Device
	}
	return &merged
}

// Advertised returns the pinned list sorted by id, with aliases resolved.
// An entry under its canonical id wins over one under an alias.
func (f *File) Advertised() []capability.Advertised {
	keys := make([]string, 0, len(f.Capabilities))
	for key := range f.Capabilities {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	// A canonical entry wins over aliases; among aliases the first key in order wins.
	byID := make(map[capability.ID]capability.Advertised, len(f.Capabilities))
	for _, key := range keys {
		e := f.Capabilities[key]
		id := capability.ID(key)
		target, aliased := f.Aliases[key]
		if aliased {
			id = capability.ID(target)
			if _, taken := byID[id]; taken {
				continue
			}
		}
		byID[id] = capability.Advertised{ID: id, Version: e.Version, Name: e.Name, DocLink: e.DocLink, Status: e.Status}
	}

	out := make([]capability.Advertised, 0, len(byID))
	for _, a := range byID {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Query answers discovery from a pinned file without touching the device.
type Query struct {
	list []capability.Advertised
}

// NewQuery creates a Query over f.
func NewQuery(f *File) *Query {
	return &Query{list: f.Advertised()}
}

// FetchAdvertisedCapabilities returns a copy of the pinned list.
func (q *Query) FetchAdvertisedCapabilities(_ context.Context) ([]capability.Advertised, error) {
	out := make([]capability.Advertised, len(q.list))
	copy(out, q.list)
	return out, nil
}
