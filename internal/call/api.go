package call

import (
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
)

// NewAPI returns a pion API with the default codecs and interceptors, plus a
// receiver-side interceptor that requests a keyframe every few seconds.
func NewAPI() (*webrtc.API, error) {
	return newAPI(webrtc.SettingEngine{})
}

func newAPI(se webrtc.SettingEngine) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, errors.Wrap(err, "register codecs")
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, errors.Wrap(err, "register interceptors")
	}

	pli, err := intervalpli.NewReceiverInterceptor()
	if err != nil {
		return nil, errors.Wrap(err, "create PLI interceptor")
	}
	registry.Add(pli)

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(se),
	), nil
}

// newPeerConnection creates a PeerConnection using the given STUN servers.
// ICE is left to gather host candidates only when the list is empty.
func newPeerConnection(api *webrtc.API, stun []string) (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{}
	if len(stun) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: stun}}
	}
	return api.NewPeerConnection(config)
}
