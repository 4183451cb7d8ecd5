package commsutil

import (
	"strings"
)

// Subject roots.
const (
	SubjectDeviceRoot = "device"
	SubjectInvoke     = "invoke"
	SubjectEvents     = "events"
	SubjectChanged    = "capabilities.changed"
)

// SafeToken turns an arbitrary string (host name, IP) into a single subject token.
func SafeToken(s string) string {
	r := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_", ":", "_", "/", "_")
	s = r.Replace(strings.TrimSpace(s))
	if s == "" {
		return "_"
	}
	return s
}

// BuildInvokeSubject is the request subject for operations on one device.
func BuildInvokeSubject(device string) string {
	return SubjectDeviceRoot + "." + SafeToken(device) + "." + SubjectInvoke
}

// BuildChangedSubject is where capability changes of one device are published.
func BuildChangedSubject(device string) string {
	return SubjectDeviceRoot + "." + SafeToken(device) + "." + SubjectChanged
}

// BuildEventSubject maps a device event topic such as "tns1:Device/tnsaxis:IO/Port"
// to "device.<device>.events.tns1_Device.tnsaxis_IO.Port".
func BuildEventSubject(device, topic string) string {
	var tokens []string
	for _, part := range strings.Split(topic, "/") {
		if part == "" {
			continue
		}
		tokens = append(tokens, SafeToken(part))
	}
	subject := SubjectDeviceRoot + "." + SafeToken(device) + "." + SubjectEvents
	if len(tokens) == 0 {
		return subject
	}
	return subject + "." + strings.Join(tokens, ".")
}
