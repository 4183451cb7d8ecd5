// Package commsutil provides COMMS (NATS) connection helpers, subject naming and payload codecs.
package commsutil

import (
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"
)

const (
	logPrefix = "commsutil:connect"

	defaultConnectTimeout = 10 * time.Second
	defaultMaxReconnects  = 60
)

// ConnectParams holds parameters for Connect.
type ConnectParams struct {
	URL           string
	Name          string
	Timeout       time.Duration
	MaxReconnects int
}

// Connect creates a COMMS connection.
func Connect(params ConnectParams) (*comms.Conn, error) {
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	maxReconnects := params.MaxReconnects
	if maxReconnects == 0 {
		maxReconnects = defaultMaxReconnects
	}

	slog.Info(fmt.Sprintf("%s - Connecting to COMMS at %s as %s", logPrefix, params.URL, params.Name))
	nc, err := comms.Connect(params.URL,
		comms.Name(params.Name),
		comms.Timeout(timeout),
		comms.ReconnectWait(2*time.Second),
		comms.MaxReconnects(maxReconnects),
		comms.DisconnectErrHandler(func(_ *comms.Conn, err error) {
			slog.Warn(fmt.Sprintf("%s - COMMS disconnected: %v", logPrefix, err))
		}),
		comms.ReconnectHandler(func(nc *comms.Conn) {
			slog.Info(fmt.Sprintf("%s - COMMS reconnected to %s", logPrefix, nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Connected to COMMS at %s", logPrefix, nc.ConnectedUrl()))
	return nc, nil
}
