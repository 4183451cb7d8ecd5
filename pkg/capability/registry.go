package capability

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

const (
	logPrefix = "capability:registry"

	// legacyPropertyBlock is the property block holding capability flags.
	legacyPropertyBlock = "0"
)

// Registry is the set of capabilities a device advertised. Lookups are safe for
// concurrent use; Discover replaces the whole record set.
type Registry struct {
	mu         sync.RWMutex
	records    map[ID]Record
	discovered bool

	query        DiscoveryQuery
	legacy       LegacyParameterSource
	legacyFields map[ID]string
}

// RegistryParams holds parameters for NewRegistry.
type RegistryParams struct {
	Query DiscoveryQuery
	// Legacy is optional; without it no capability is listed in legacy parameters.
	Legacy LegacyParameterSource
	// LegacyFields maps a capability to its flag field in the legacy property block.
	LegacyFields map[ID]string
}

// NewRegistry creates an empty Registry.
func NewRegistry(params RegistryParams) *Registry {
	fields := make(map[ID]string, len(params.LegacyFields))
	for id, field := range params.LegacyFields {
		fields[id] = field
	}
	return &Registry{
		records:      make(map[ID]Record),
		query:        params.Query,
		legacy:       params.Legacy,
		legacyFields: fields,
	}
}

// Discover queries the device once and replaces all records.
func (r *Registry) Discover(ctx context.Context) error {
	_, err := r.DiscoverWithChanges(ctx)
	return err
}

// DiscoverWithChanges is Discover returning the difference to the previous records.
// On failure no record is touched.
func (r *Registry) DiscoverWithChanges(ctx context.Context) (Changes, error) {
	if r.query == nil {
		return Changes{}, &DiscoveryError{Err: fmt.Errorf("%s - no discovery query configured", logPrefix)}
	}

	advertised, err := r.query.FetchAdvertisedCapabilities(ctx)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - discovery failed, keeping %d prior records: %v", logPrefix, r.Len(), err))
		return Changes{}, &DiscoveryError{Err: err}
	}

	next := make(map[ID]Record, len(advertised))
	for _, a := range advertised {
		next[a.ID] = Record{
			ID:      a.ID,
			Version: a.Version,
			Name:    a.Name,
			DocLink: a.DocLink,
			Status:  a.Status,
		}
	}
	for id, rec := range next {
		rec.ListedInLegacyParameters = r.IsListedInLegacyParameters(id)
		next[id] = rec
	}

	r.mu.Lock()
	changes := diff(r.records, next)
	r.records = next
	r.discovered = true
	r.mu.Unlock()

	slog.Info(fmt.Sprintf("%s - discovered %d capabilities (added=%d removed=%d updated=%d)",
		logPrefix, len(next), len(changes.Added), len(changes.Removed), len(changes.Updated)))
	return changes, nil
}

// Get returns the record for id. It never performs I/O.
func (r *Registry) Get(id ID) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	return rec, ok
}

// Snapshot returns a copy of all records.
func (r *Registry) Snapshot() map[ID]Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[ID]Record, len(r.records))
	for id, rec := range r.records {
		out[id] = rec
	}
	return out
}

// Len returns the number of records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Discovered reports whether a discovery has ever succeeded.
func (r *Registry) Discovered() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.discovered
}

// IsListedInLegacyParameters checks the legacy property block for the flag
// registered for id. Missing source, block or field all mean false.
func (r *Registry) IsListedInLegacyParameters(id ID) bool {
	field, ok := r.legacyFields[id]
	if !ok || r.legacy == nil {
		return false
	}
	block, ok := r.legacy.PropertyBlock(legacyPropertyBlock)
	if !ok {
		return false
	}
	value, ok := block[field]
	if !ok {
		return false
	}
	return isTruthy(value)
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "true", "1":
		return true
	}
	return false
}

func diff(prev, next map[ID]Record) Changes {
	var c Changes
	for id, rec := range next {
		old, ok := prev[id]
		if !ok {
			c.Added = append(c.Added, id)
			continue
		}
		if old.Version != rec.Version {
			c.Updated = append(c.Updated, id)
		}
	}
	for id := range prev {
		if _, ok := next[id]; !ok {
			c.Removed = append(c.Removed, id)
		}
	}
	sortIDs(c.Added)
	sortIDs(c.Removed)
	sortIDs(c.Updated)
	return c
}

func sortIDs(ids []ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
