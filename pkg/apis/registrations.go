package apis

import (
	"github.com/morezero/device-capabilities/pkg/capability"
	"github.com/morezero/device-capabilities/pkg/params"
)

// Deps are the collaborators handlers may need besides their Base.
type Deps struct {
	Params *params.Cache
}

// Registration describes how a session builds the handler for one capability.
type Registration struct {
	ID             capability.ID
	DefaultVersion string
	Supported      string
	LegacyField    string
	New            func(base Base, deps Deps) Handler
}

// Registrations is the closed set of capabilities this client implements.
var Registrations = map[capability.ID]Registration{
	capability.AudioStreaming: {
		ID:             capability.AudioStreaming,
		DefaultVersion: AudioAPIVersion,
		Supported:      "^1",
		LegacyField:    AudioLegacyField,
		New: func(base Base, deps Deps) Handler {
			return NewAudioHandler(base, deps.Params)
		},
	},
	capability.MQTTClient: {
		ID:        capability.MQTTClient,
		Supported: "^1",
		New: func(base Base, _ Deps) Handler {
			return NewMQTTClientHandler(base)
		},
	},
}

// LegacyFields returns the legacy property field of every registration that has one.
func LegacyFields() map[capability.ID]string {
	out := make(map[capability.ID]string)
	for id, reg := range Registrations {
		if reg.LegacyField != "" {
			out[id] = reg.LegacyField
		}
	}
	return out
}
