package apis

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/morezero/device-capabilities/pkg/capability"
	"github.com/morezero/device-capabilities/pkg/commsutil"
	"github.com/morezero/device-capabilities/pkg/dispatcher"
)

const jsonContentType = "application/json"

// jsonRequest is the request envelope shared by the JSON CGI APIs.
type jsonRequest struct {
	APIVersion string      `json:"apiVersion"`
	Context    string      `json:"context,omitempty"`
	Method     string      `json:"method"`
	Params     interface{} `json:"params,omitempty"`
}

// jsonResponse is the matching response envelope.
type jsonResponse struct {
	APIVersion string          `json:"apiVersion"`
	Context    string          `json:"context,omitempty"`
	Method     string          `json:"method"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      *jsonError      `json:"error,omitempty"`
}

type jsonError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// jsonRequestParams holds parameters for newJSONRequest.
type jsonRequestParams struct {
	Capability capability.ID
	Version    string
	Endpoint   string
	Method     string
	Params     interface{}
	// Out receives the response "data" member; nil ignores it.
	Out interface{}
}

// newJSONRequest encodes a JSON API call as a VersionedRequest.
func newJSONRequest(p jsonRequestParams) (*dispatcher.VersionedRequest, error) {
	body, err := commsutil.EncodePayload(jsonRequest{
		APIVersion: p.Version,
		Context:    uuid.NewString(),
		Method:     p.Method,
		Params:     p.Params,
	})
	if err != nil {
		return nil, fmt.Errorf("%s - encode %s: %w", logPrefix, p.Method, err)
	}

	return dispatcher.NewVersionedRequest(dispatcher.RequestParams{
		Capability:  p.Capability,
		Version:     p.Version,
		Method:      http.MethodPost,
		Endpoint:    p.Endpoint,
		ContentType: jsonContentType,
		Body:        body,
		Decode:      decodeJSONResponse(p.Method, p.Out),
	}), nil
}

func decodeJSONResponse(method string, out interface{}) dispatcher.Decoder {
	return func(body []byte) error {
		var resp jsonResponse
		if err := commsutil.DecodePayload(body, &resp); err != nil {
			return err
		}
		if resp.Error != nil {
			return &dispatcher.DispatchError{
				Code:    dispatcher.CodeDeviceError,
				Message: fmt.Sprintf("%s: %d %s", method, resp.Error.Code, resp.Error.Message),
				Details: map[string]int{"code": resp.Error.Code},
			}
		}
		if out == nil || len(resp.Data) == 0 {
			return nil
		}
		return commsutil.DecodePayload(resp.Data, out)
	}
}
