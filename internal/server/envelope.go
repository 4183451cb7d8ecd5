package server

import "encoding/json"

// DeviceRequest is the JSON envelope for incoming COMMS device requests.
type DeviceRequest struct {
	ID     string             `json:"id"`
	Method string             `json:"method"`
	Params json.RawMessage    `json:"params,omitempty"`
	Ctx    *InvocationContext `json:"ctx,omitempty"`
}

// DeviceResponse is the JSON envelope for COMMS device responses.
type DeviceResponse struct {
	ID     string       `json:"id"`
	Ok     bool         `json:"ok"`
	Result interface{}  `json:"result,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail holds structured error information.
type ErrorDetail struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Retryable bool        `json:"retryable"`
}

// InvocationContext holds context from the caller.
type InvocationContext struct {
	RequestID     string `json:"requestId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	TimeoutMs     int    `json:"timeoutMs,omitempty"`
}

// TransmitParams carries audio for audio.transmit; Audio is base64 in JSON.
type TransmitParams struct {
	Audio []byte `json:"audio"`
}

// ConfigureEventsParams carries topic filters for mqtt.configureEvents.
type ConfigureEventsParams struct {
	Topics []string `json:"topics,omitempty"`
}

// ResolveParams are the params of resolve.
type ResolveParams struct {
	Ref string `json:"ref"`
}
