// Package dispatcher executes versioned device requests and classifies their failures.
package dispatcher

import (
	"github.com/morezero/device-capabilities/pkg/capability"
)

// Decoder consumes a successful response body.
type Decoder func(body []byte) error

// VersionedRequest describes one protocol operation. It is built once per call
// and never modified afterwards.
type VersionedRequest struct {
	capability      capability.ID
	version         string
	method          string
	endpoint        string
	contentType     string
	body            []byte
	decode          Decoder
	delayedResponse bool
}

// RequestParams holds parameters for NewVersionedRequest.
type RequestParams struct {
	Capability  capability.ID
	Version     string
	Method      string
	Endpoint    string
	ContentType string
	Body        []byte
	// Decode may be nil when the response body carries nothing of interest.
	Decode Decoder
	// DelayedResponse marks operations whose response is held back until a
	// device-side action finishes, so a read timeout means the action ran.
	DelayedResponse bool
}

// NewVersionedRequest builds a request. The body is copied.
func NewVersionedRequest(params RequestParams) *VersionedRequest {
	body := make([]byte, len(params.Body))
	copy(body, params.Body)
	return &VersionedRequest{
		capability:      params.Capability,
		version:         params.Version,
		method:          params.Method,
		endpoint:        params.Endpoint,
		contentType:     params.ContentType,
		body:            body,
		decode:          params.Decode,
		delayedResponse: params.DelayedResponse,
	}
}

// Capability returns the capability the request belongs to.
func (r *VersionedRequest) Capability() capability.ID { return r.capability }

// Version returns the protocol version the request was built for.
func (r *VersionedRequest) Version() string { return r.version }

// Method returns the HTTP method.
func (r *VersionedRequest) Method() string { return r.method }

// Endpoint returns the request path including any query.
func (r *VersionedRequest) Endpoint() string { return r.endpoint }

// ContentType returns the body content type.
func (r *VersionedRequest) ContentType() string { return r.contentType }

// Body returns a copy of the encoded payload.
func (r *VersionedRequest) Body() []byte {
	out := make([]byte, len(r.body))
	copy(out, r.body)
	return out
}

// DelayedResponse reports whether a read timeout on this request means success.
func (r *VersionedRequest) DelayedResponse() bool { return r.delayedResponse }
