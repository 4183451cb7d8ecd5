package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const mqttMessageLogPrefix = "events:mqtt_message"

var topicNamespaces = strings.NewReplacer("onvif", "tns1", "axis", "tnsaxis")

type mqttJSONMessage struct {
	Topic   string `json:"topic"`
	Message struct {
		Source json.RawMessage `json:"source"`
		Data   json.RawMessage `json:"data"`
	} `json:"message"`
}

// FromMQTTMessage converts a JSON event message published by the device's
// MQTT client into a DeviceEvent. The topic namespaces "onvif" and "axis" are
// rewritten to "tns1" and "tnsaxis". Only the first source and data pairs are
// kept; they are empty when the device sends none.
func FromMQTTMessage(payload []byte) (*DeviceEvent, error) {
	var msg mqttJSONMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("%s - invalid event message: %w", mqttMessageLogPrefix, err)
	}
	if msg.Topic == "" {
		return nil, fmt.Errorf("%s - event message has no topic", mqttMessageLogPrefix)
	}

	event := &DeviceEvent{Topic: topicNamespaces.Replace(msg.Topic)}

	var err error
	if event.Source, event.SourceIdx, err = firstPair(msg.Message.Source); err != nil {
		return nil, fmt.Errorf("%s - invalid source: %w", mqttMessageLogPrefix, err)
	}
	if event.Type, event.Value, err = firstPair(msg.Message.Data); err != nil {
		return nil, fmt.Errorf("%s - invalid data: %w", mqttMessageLogPrefix, err)
	}
	return event, nil
}

// firstPair returns the first key/value of a JSON object in document order.
// Non-string values are returned as their JSON text.
func firstPair(raw json.RawMessage) (string, string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", "", nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return "", "", err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return "", "", fmt.Errorf("expected object, got %v", tok)
	}
	if !dec.More() {
		return "", "", nil
	}

	keyTok, err := dec.Token()
	if err != nil {
		return "", "", err
	}
	key, _ := keyTok.(string)

	var value json.RawMessage
	if err := dec.Decode(&value); err != nil {
		return "", "", err
	}
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return key, s, nil
	}
	return key, string(value), nil
}
