package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptrace"
	"strings"
	"sync/atomic"
	"time"
)

const (
	logPrefix = "transport:http"

	defaultConnectTimeout = 5 * time.Second
	defaultRequestCeiling = 30 * time.Second
	maxErrorBody          = 512
)

var errReadWindowElapsed = errors.New("read window elapsed")

// HTTPConfig configures an HTTPTransport.
type HTTPConfig struct {
	// BaseURL is scheme://host[:port] of the device.
	BaseURL        string
	Username       string
	Password       string
	ConnectTimeout time.Duration
	// RequestCeiling bounds requests that do not set their own timeout.
	RequestCeiling time.Duration
}

// HTTPTransport implements Transport over net/http.
type HTTPTransport struct {
	baseURL  string
	username string
	password string
	ceiling  time.Duration
	client   *http.Client
}

// dialError marks failures that happened while connecting.
type dialError struct {
	err error
}

func (e *dialError) Error() string { return e.err.Error() }
func (e *dialError) Unwrap() error { return e.err }

// NewHTTPTransport creates an HTTPTransport.
func NewHTTPTransport(cfg HTTPConfig) (*HTTPTransport, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%s - base URL is required", logPrefix)
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.RequestCeiling <= 0 {
		cfg.RequestCeiling = defaultRequestCeiling
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	rt := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, &dialError{err: err}
			}
			return conn, nil
		},
		TLSHandshakeTimeout: cfg.ConnectTimeout,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}

	return &HTTPTransport{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		ceiling:  cfg.RequestCeiling,
		client:   &http.Client{Transport: rt},
	}, nil
}

// Send performs one request. The read window starts with the request, so a
// slow connect also eats into it; connect failures are reported separately.
func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = t.ceiling
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var connected atomic.Bool
	trace := &httptrace.ClientTrace{
		GotConn: func(httptrace.GotConnInfo) { connected.Store(true) },
	}

	reqCtx, cancel := context.WithTimeoutCause(ctx, timeout, errReadWindowElapsed)
	defer cancel()
	reqCtx = httptrace.WithClientTrace(reqCtx, trace)

	httpReq, err := http.NewRequestWithContext(reqCtx, method, t.baseURL+req.Path, bytes.NewReader(req.Body))
	if err != nil {
		return nil, &Error{Kind: KindIO, Path: req.Path, Err: err}
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	if t.username != "" {
		httpReq.SetBasicAuth(t.username, t.password)
	}

	slog.Debug(fmt.Sprintf("%s - %s %s timeout=%s", logPrefix, method, req.Path, timeout))

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, t.classify(reqCtx, ctx, req.Path, connected.Load(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, t.classify(reqCtx, ctx, req.Path, true, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		snippet := body
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, &Error{
			Kind:   KindHTTPStatus,
			Path:   req.Path,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%s", strings.TrimSpace(string(snippet))),
		}
	}

	return &Response{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (t *HTTPTransport) classify(reqCtx, callerCtx context.Context, path string, connected bool, err error) *Error {
	var de *dialError
	if errors.As(err, &de) {
		var ne net.Error
		if errors.As(de.err, &ne) && ne.Timeout() {
			return &Error{Kind: KindConnectTimeout, Path: path, Err: de.err}
		}
		if errors.Is(de.err, context.DeadlineExceeded) && context.Cause(reqCtx) == errReadWindowElapsed {
			return &Error{Kind: KindConnectTimeout, Path: path, Err: de.err}
		}
		return &Error{Kind: KindConnect, Path: path, Err: de.err}
	}

	if callerCtx.Err() != nil {
		return &Error{Kind: KindIO, Path: path, Err: callerCtx.Err()}
	}

	// TLS handshake timeouts happen after the dial, before the connection is handed over.
	var ne net.Error
	if !connected && errors.As(err, &ne) && ne.Timeout() {
		return &Error{Kind: KindConnectTimeout, Path: path, Err: err}
	}

	if context.Cause(reqCtx) == errReadWindowElapsed {
		if connected {
			return &Error{Kind: KindReadTimeout, Path: path, Err: err}
		}
		return &Error{Kind: KindConnectTimeout, Path: path, Err: err}
	}

	return &Error{Kind: KindIO, Path: path, Err: err}
}
