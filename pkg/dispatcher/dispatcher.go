package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/morezero/device-capabilities/pkg/transport"
)

const (
	logPrefix = "dispatcher:dispatch"

	// DefaultReadTimeout is kept below the transport's request ceiling.
	DefaultReadTimeout = 10 * time.Second
)

// Config holds dispatcher configuration.
type Config struct {
	ReadTimeout time.Duration
}

// DefaultConfig returns the default dispatcher configuration.
func DefaultConfig() Config {
	return Config{ReadTimeout: DefaultReadTimeout}
}

// Dispatcher sends versioned requests through a transport.
type Dispatcher struct {
	transport transport.Transport
	config    Config
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(t transport.Transport, cfg Config) *Dispatcher {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	return &Dispatcher{transport: t, config: cfg}
}

// ReadTimeout returns the configured read window.
func (d *Dispatcher) ReadTimeout() time.Duration {
	return d.config.ReadTimeout
}

// Execute sends req and decodes the response. A read timeout is reported as
// success only for requests marked DelayedResponse.
func (d *Dispatcher) Execute(ctx context.Context, req *VersionedRequest) error {
	method := req.Method()
	if method == "" {
		method = http.MethodPost
	}
	slog.Debug(fmt.Sprintf("%s - capability=%s version=%s %s %s", logPrefix, req.Capability(), req.Version(), method, req.Endpoint()))

	resp, err := d.transport.Send(ctx, &transport.Request{
		Method:      method,
		Path:        req.Endpoint(),
		ContentType: req.ContentType(),
		Body:        req.body,
		Timeout:     d.config.ReadTimeout,
	})

	switch Classify(err) {
	case Success:
	case AmbiguousTimeout:
		if req.DelayedResponse() {
			slog.Debug(fmt.Sprintf("%s - read timeout on delayed-response %s treated as success", logPrefix, req.Endpoint()))
			return nil
		}
		return fromTransport(req, err)
	default:
		return fromTransport(req, err)
	}

	if req.decode == nil {
		return nil
	}
	if err := req.decode(resp.Body); err != nil {
		var de *DispatchError
		if errors.As(err, &de) {
			return de
		}
		return &DispatchError{
			Code:    CodeDecodeFailure,
			Message: fmt.Sprintf("%s %s: %v", req.Capability(), req.Endpoint(), err),
			Cause:   err,
		}
	}
	return nil
}
