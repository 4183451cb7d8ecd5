package apis

// MQTTServer is the broker the device connects to.
type MQTTServer struct {
	Host     string `json:"host"`
	Port     int    `json:"port,omitempty"`
	Protocol string `json:"protocol,omitempty"`
	BasePath string `json:"basepath,omitempty"`
}

// MQTTMessage is a connect, disconnect or last-will message.
type MQTTMessage struct {
	UseDefault bool   `json:"useDefault"`
	Type       string `json:"type,omitempty"`
	Topic      string `json:"topic,omitempty"`
	Message    string `json:"message,omitempty"`
	Retain     bool   `json:"retain,omitempty"`
	QoS        int    `json:"qos,omitempty"`
}

// MQTTSSL configures TLS between device and broker.
type MQTTSSL struct {
	ValidateServerCert bool   `json:"validateServerCert"`
	CACertID           string `json:"CACertID,omitempty"`
	ClientCertID       string `json:"clientCertID,omitempty"`
}

// ClientConfig is the device MQTT client configuration.
type ClientConfig struct {
	Server             MQTTServer   `json:"server"`
	Username           string       `json:"username,omitempty"`
	Password           string       `json:"password,omitempty"`
	ClientID           string       `json:"clientId,omitempty"`
	KeepAliveInterval  int          `json:"keepAliveInterval,omitempty"`
	ConnectTimeout     int          `json:"connectTimeout,omitempty"`
	CleanSession       bool         `json:"cleanSession"`
	AutoReconnect      bool         `json:"autoReconnect"`
	ActivateOnReboot   bool         `json:"activateOnReboot,omitempty"`
	LastWillTestament  *MQTTMessage `json:"lastWillTestament,omitempty"`
	ConnectMessage     *MQTTMessage `json:"connectMessage,omitempty"`
	DisconnectMessage  *MQTTMessage `json:"disconnectMessage,omitempty"`
	SSL                *MQTTSSL     `json:"ssl,omitempty"`
	DeviceTopicPrefix  string       `json:"deviceTopicPrefix,omitempty"`
	AutoReconnectDelay int          `json:"autoReconnectDelay,omitempty"`
}

// ClientStatus is the device MQTT client run state.
type ClientStatus struct {
	State            string `json:"state"`
	ConnectionStatus string `json:"connectionStatus"`
}

// ClientConfigStatus is the answer to getClientStatus.
type ClientConfigStatus struct {
	Status ClientStatus `json:"status"`
	Config ClientConfig `json:"config"`
}

// EventFilter selects events to publish.
type EventFilter struct {
	TopicFilter string `json:"topicFilter"`
	QoS         int    `json:"qos"`
	Retain      string `json:"retain"`
}

// EventPublicationConfig controls which device events reach the broker.
type EventPublicationConfig struct {
	TopicPrefix                  string        `json:"topicPrefix,omitempty"`
	CustomTopicPrefix            string        `json:"customTopicPrefix,omitempty"`
	AppendEventTopic             *bool         `json:"appendEventTopic,omitempty"`
	IncludeTopicNamespaces       *bool         `json:"includeTopicNamespaces,omitempty"`
	IncludeSerialNumberInPayload *bool         `json:"includeSerialNumberInPayload,omitempty"`
	EventFilterList              []EventFilter `json:"eventFilterList"`
}

// EventFiltersFromTopics builds one filter per topic with default qos and retain.
func EventFiltersFromTopics(topics []string) []EventFilter {
	filters := make([]EventFilter, 0, len(topics))
	for _, topic := range topics {
		filters = append(filters, EventFilter{TopicFilter: topic, QoS: 0, Retain: "none"})
	}
	return filters
}
