//go:build !linux || !cgo

package call

import (
	"log"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// initMediaPC builds a receive-only PeerConnection on non-Linux platforms.
// Camera/mic capture via pion/mediadevices needs platform drivers (V4L2 and
// malgo on Linux); elsewhere the call joins without sending local media.
func initMediaPC(kind Kind, stunURLs []string) (*webrtc.PeerConnection, []*localTrack, func(), error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, nil, nil, err
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, nil, nil, err
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
	)

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers(stunURLs)})
	if err != nil {
		return nil, nil, nil, err
	}

	// Valid m-lines with ICE credentials are still needed for offer/answer.
	addRecvOnlyTransceivers(pc, kind == KindVideo)

	log.Printf("CALL: peer connection ready (receive-only, no local media on this platform)")
	return pc, nil, nil, nil
}
