// Package bootstrap loads a pinned capability list from JSON for devices
// that cannot answer API discovery.
package bootstrap

// File is the on-disk pinned capability list.
type File struct {
	Device       string           `json:"device,omitempty"`
	Description  string           `json:"description,omitempty"`
	Capabilities map[string]Entry `json:"capabilities"`
	// Aliases maps an alternative id to the capability id it stands for.
	Aliases map[string]string `json:"aliases,omitempty"`
}

// Entry pins one capability.
type Entry struct {
	Version string `json:"version"`
	Name    string `json:"name,omitempty"`
	DocLink string `json:"docLink,omitempty"`
	Status  string `json:"status,omitempty"`
}
