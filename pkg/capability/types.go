// Package capability holds the set of device capabilities learned through
// discovery and answers which capability is available at which version.
package capability

import "context"

// ID identifies one device capability. Ids are stable across firmware versions
// and join discovery results to handler implementations.
type ID string

// Known capability ids.
const (
	APIDiscovery   ID = "api-discovery"
	AudioStreaming ID = "audio-streaming-capabilities"
	MQTTClient     ID = "mqtt-client"
	ParamCGI       ID = "param-cgi"
)

// Record is one discovered capability. Records are values; the registry
// replaces them and never mutates one in place.
type Record struct {
	ID      ID     `json:"id"`
	Version string `json:"version"`
	Name    string `json:"name,omitempty"`
	DocLink string `json:"docLink,omitempty"`
	Status  string `json:"status,omitempty"`
	// ListedInLegacyParameters is set when the legacy parameter source also
	// flags this capability.
	ListedInLegacyParameters bool `json:"listedInLegacyParameters,omitempty"`
}

// Advertised is a single entry of a discovery answer.
type Advertised struct {
	ID      ID     `json:"id"`
	Version string `json:"version"`
	Name    string `json:"name,omitempty"`
	DocLink string `json:"docLink,omitempty"`
	Status  string `json:"status,omitempty"`
}

// DiscoveryQuery asks the device which capabilities it currently supports.
type DiscoveryQuery interface {
	FetchAdvertisedCapabilities(ctx context.Context) ([]Advertised, error)
}

// LegacyParameterSource exposes property blocks of capabilities that predate
// discovery. Fields are raw parameter values keyed by name.
type LegacyParameterSource interface {
	PropertyBlock(blockID string) (map[string]string, bool)
}

// Changes describes how a discovery answer differed from the previous records.
type Changes struct {
	Added   []ID `json:"added,omitempty"`
	Removed []ID `json:"removed,omitempty"`
	Updated []ID `json:"updated,omitempty"`
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Updated) == 0
}

// DiscoveryError is returned when the device did not answer the discovery query.
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string {
	return "DISCOVERY_FAILED: " + e.Err.Error()
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}
