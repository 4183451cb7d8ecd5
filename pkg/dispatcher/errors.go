package dispatcher

import (
	"errors"
	"fmt"
)

// Error codes surfaced to callers.
const (
	CodeUnsupportedCapability = "UNSUPPORTED_CAPABILITY"
	CodeVersionMismatch       = "VERSION_MISMATCH"
	CodeDiscoveryFailed       = "DISCOVERY_FAILED"
	CodeConnectFailure        = "CONNECT_FAILURE"
	CodeConnectTimeout        = "CONNECT_TIMEOUT"
	CodeHTTPError             = "HTTP_ERROR"
	CodeReadTimeout           = "READ_TIMEOUT"
	CodeIOFailure             = "IO_FAILURE"
	CodeDecodeFailure         = "DECODE_FAILURE"
	CodeDeviceError           = "DEVICE_ERROR"
)

// DispatchError is a structured error from a device operation.
type DispatchError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Status  int         `json:"status,omitempty"`
	Details interface{} `json:"details,omitempty"`
	Cause   error       `json:"-"`
}

func (e *DispatchError) Error() string {
	return e.Code + ": " + e.Message
}

func (e *DispatchError) Unwrap() error {
	return e.Cause
}

// NewDispatchError creates a new DispatchError.
func NewDispatchError(code, message string) *DispatchError {
	return &DispatchError{Code: code, Message: message}
}

// Errorf creates a DispatchError with a formatted message.
func Errorf(code, format string, args ...interface{}) *DispatchError {
	return &DispatchError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of the first DispatchError in err's chain, or "".
func CodeOf(err error) string {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}
