// Package transport sends raw requests to a device and reports failures as
// structured kinds so callers never have to inspect error strings.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind classifies a transport failure.
type Kind int

const (
	// KindConnect means no connection could be established.
	KindConnect Kind = iota + 1
	// KindConnectTimeout means establishing the connection timed out.
	KindConnectTimeout
	// KindReadTimeout means the connection was up but no complete response
	// arrived within the request's read window.
	KindReadTimeout
	// KindHTTPStatus means the device answered with an error status.
	KindHTTPStatus
	// KindIO covers every other failure, including caller cancellation.
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindConnectTimeout:
		return "connect timeout"
	case KindReadTimeout:
		return "read timeout"
	case KindHTTPStatus:
		return "http status"
	case KindIO:
		return "io"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Request is one raw request to the device.
type Request struct {
	Method      string
	Path        string
	ContentType string
	Body        []byte
	// Timeout bounds the wait for the response. Zero uses the transport ceiling.
	Timeout time.Duration
}

// Response is a raw successful response.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// Transport sends requests to one device.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// Error is the only error type returned by Transport implementations.
type Error struct {
	Kind   Kind
	Path   string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("%s %s: status %d", e.Kind, e.Path, e.Status)
	}
	if e.Err == nil {
		return fmt.Sprintf("%s %s", e.Kind, e.Path)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind carried by err.
func KindOf(err error) (Kind, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return 0, false
}
