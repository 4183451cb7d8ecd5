package apis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/device-capabilities/pkg/capability"
	"github.com/morezero/device-capabilities/pkg/dispatcher"
)

const (
	discoveryLogPrefix = "apis:discovery"

	// DiscoveryAPIVersion is fixed: the discovery API cannot discover itself.
	DiscoveryAPIVersion = "1.0"

	discoveryPath    = "/axis-cgi/apidiscovery.cgi"
	methodGetAPIList = "getApiList"
)

type apiListData struct {
	APIList []capability.Advertised `json:"apiList"`
}

// DiscoveryQuery asks the device's API discovery service for its API list.
type DiscoveryQuery struct {
	dispatcher *dispatcher.Dispatcher
}

// NewDiscoveryQuery creates a DiscoveryQuery.
func NewDiscoveryQuery(d *dispatcher.Dispatcher) *DiscoveryQuery {
	return &DiscoveryQuery{dispatcher: d}
}

// FetchAdvertisedCapabilities implements capability.DiscoveryQuery.
func (q *DiscoveryQuery) FetchAdvertisedCapabilities(ctx context.Context) ([]capability.Advertised, error) {
	var data apiListData
	req, err := newJSONRequest(jsonRequestParams{
		Capability: capability.APIDiscovery,
		Version:    DiscoveryAPIVersion,
		Endpoint:   discoveryPath,
		Method:     methodGetAPIList,
		Out:        &data,
	})
	if err != nil {
		return nil, err
	}
	if err := q.dispatcher.Execute(ctx, req); err != nil {
		return nil, err
	}
	slog.Debug(fmt.Sprintf("%s - device lists %d APIs", discoveryLogPrefix, len(data.APIList)))
	return data.APIList, nil
}
