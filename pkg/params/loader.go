package params

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/morezero/device-capabilities/pkg/transport"
)

const loaderLogPrefix = "params:loader"

// Loader fetches parameter groups straight from the transport. param.cgi
// predates API discovery, so these requests carry no capability version.
type Loader struct {
	transport transport.Transport
	cache     *Cache
}

// NewLoader creates a Loader filling cache.
func NewLoader(t transport.Transport, cache *Cache) *Loader {
	return &Loader{transport: t, cache: cache}
}

// Refresh lists group and applies it to the cache.
func (l *Loader) Refresh(ctx context.Context, group string) error {
	slog.Debug(fmt.Sprintf("%s - refreshing %s", loaderLogPrefix, group))
	resp, err := l.transport.Send(ctx, &transport.Request{
		Method: http.MethodGet,
		Path:   ListPath(group),
	})
	if err != nil {
		return fmt.Errorf("%s - list %s: %w", loaderLogPrefix, group, err)
	}
	return l.cache.Apply(group, resp.Body)
}
