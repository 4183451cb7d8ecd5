package apis

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/morezero/device-capabilities/pkg/dispatcher"
	"github.com/morezero/device-capabilities/pkg/params"
)

const (
	audioLogPrefix = "apis:audio"

	// AudioAPIVersion is used when discovery does not list audio.
	AudioAPIVersion = "1.0"
	// AudioLegacyField flags audio support in the legacy property block.
	AudioLegacyField = "Audio.Audio"

	audioTransmitPath        = "/axis-cgi/audio/transmit.cgi"
	audioTransmitContentType = "audio/basic"
)

// AudioHandler transmits audio to the device and reads its audio parameters.
type AudioHandler struct {
	Base
	cache *params.Cache
}

// NewAudioHandler creates an AudioHandler storing parameters in cache.
func NewAudioHandler(base Base, cache *params.Cache) *AudioHandler {
	return &AudioHandler{Base: base, cache: cache}
}

// BuildParametersRequest builds the audio parameter listing at the current version.
func (h *AudioHandler) BuildParametersRequest() (*dispatcher.VersionedRequest, error) {
	version, err := h.ResolveVersion()
	if err != nil {
		return nil, err
	}
	return h.parametersRequest(version), nil
}

func (h *AudioHandler) parametersRequest(version string) *dispatcher.VersionedRequest {
	return dispatcher.NewVersionedRequest(dispatcher.RequestParams{
		Capability: h.ID(),
		Version:    version,
		Method:     http.MethodGet,
		Endpoint:   params.ListPath(params.GroupAudio),
		Decode: func(body []byte) error {
			return h.cache.Apply(params.GroupAudio, body)
		},
	})
}

// GetParameters lists the audio parameters from the device on every call and
// returns them keyed by channel index.
func (h *AudioHandler) GetParameters(ctx context.Context) (map[string]params.AudioParam, error) {
	version, err := h.resolve(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.Invoke(ctx, h.parametersRequest(version)); err != nil {
		return nil, err
	}
	return h.cache.AudioParams(), nil
}

// BuildTransmitRequest builds a transmit request at the current version.
func (h *AudioHandler) BuildTransmitRequest(audio []byte) (*dispatcher.VersionedRequest, error) {
	version, err := h.ResolveVersion()
	if err != nil {
		return nil, err
	}
	return h.transmitRequest(version, audio), nil
}

// transmitRequest is marked DelayedResponse: the device answers only after
// playback ends, which may be well past the read timeout.
func (h *AudioHandler) transmitRequest(version string, audio []byte) *dispatcher.VersionedRequest {
	return dispatcher.NewVersionedRequest(dispatcher.RequestParams{
		Capability:      h.ID(),
		Version:         version,
		Method:          http.MethodPost,
		Endpoint:        audioTransmitPath,
		ContentType:     audioTransmitContentType,
		Body:            audio,
		DelayedResponse: true,
	})
}

// Transmit sends audio for playback on the device speaker.
func (h *AudioHandler) Transmit(ctx context.Context, audio []byte) error {
	version, err := h.resolve(ctx)
	if err != nil {
		return err
	}
	slog.Debug(fmt.Sprintf("%s - transmitting %d bytes (v%s)", audioLogPrefix, len(audio), version))
	return h.Invoke(ctx, h.transmitRequest(version, audio))
}
