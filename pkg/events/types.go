// Package events defines device event types and publisher interfaces.
package events

// DeviceEvent is a device event received over MQTT, normalized to the
// namespace prefixes used by the device's event stream.
type DeviceEvent struct {
	Device    string `json:"device,omitempty"`
	Topic     string `json:"topic"`
	Source    string `json:"source"`
	SourceIdx string `json:"sourceIdx"`
	Type      string `json:"type"`
	Value     string `json:"value"`
}

// CapabilitiesChangedEvent is emitted when a rediscovery changes the
// capability set of a device.
type CapabilitiesChangedEvent struct {
	Device    string   `json:"device"`
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
	Updated   []string `json:"updated"`
	Total     int      `json:"total"`
	Timestamp string   `json:"timestamp"`
}
