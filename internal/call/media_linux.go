//go:build linux && cgo

package call

import (
	"fmt"
	"log"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

// initMediaPC builds a PeerConnection with VP8+Opus codecs and captures local
// camera/mic via pion/mediadevices (V4L2 + malgo). An audio call captures the
// microphone only; a video call captures both. Capture failure is returned to
// the caller: the state machine aborts the transition and stays idle rather
// than placing a media-less call.
func initMediaPC(kind Kind, stunURLs []string) (*webrtc.PeerConnection, []*localTrack, func(), error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, nil, nil, err
	}
	vpxParams.BitRate = 1_500_000 // 1.5 Mbps

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, nil, nil, err
	}

	codecSelector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)

	mediaEngine := &webrtc.MediaEngine{}
	codecSelector.Populate(mediaEngine)

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, nil, nil, err
	}

	// Generous ICE timeouts so a brief NAT hiccup does not immediately
	// terminate the call. The default disconnectedTimeout of 5 s is far too
	// short for paths that see short outages during re-keying or failover.
	se := webrtc.SettingEngine{}
	se.SetICETimeouts(30*time.Second, 120*time.Second, 2*time.Second)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	)

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers(stunURLs)})
	if err != nil {
		return nil, nil, nil, err
	}

	constraints := mediadevices.MediaStreamConstraints{Codec: codecSelector}
	constraints.Audio = func(_ *mediadevices.MediaTrackConstraints) {}
	if kind == KindVideo {
		constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
			// Exclude MJPEG: some cameras expose an MJPEG V4L2 node producing
			// malformed JPEG frames that poison the VP8 encoder. Raw formats only.
			c.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			// Cap at 640×480 to keep VP8 encoding latency low.
			c.Width = prop.IntRanged{Max: 640}
			c.Height = prop.IntRanged{Max: 480}
		}
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		pc.Close()
		return nil, nil, nil, fmt.Errorf("media capture (%s): %w", kind, err)
	}

	tracks := stream.GetTracks()
	locals := make([]*localTrack, 0, len(tracks))
	for _, track := range tracks {
		track.OnEnded(func(err error) {
			if err != nil {
				log.Printf("CALL: local track ended: %v", err)
			}
		})
		sender, err := pc.AddTrack(track)
		if err != nil {
			log.Printf("CALL: AddTrack error: %v", err)
			continue
		}
		locals = append(locals, &localTrack{kind: track.Kind(), track: track, sender: sender})
	}
	if len(locals) == 0 {
		for _, t := range tracks {
			t.Close()
		}
		pc.Close()
		return nil, nil, nil, fmt.Errorf("media capture (%s): no usable tracks", kind)
	}

	// Receive remote video even when the local attempt is audio-only.
	if kind == KindVideo && !hasKind(locals, webrtc.RTPCodecTypeVideo) {
		addRecvOnlyTransceivers(pc, true)
	}

	log.Printf("CALL: local media captured (%s), %d tracks", kind, len(locals))
	stopFn := func() {
		for _, t := range tracks {
			t.Close()
		}
	}
	return pc, locals, stopFn, nil
}

func hasKind(tracks []*localTrack, kind webrtc.RTPCodecType) bool {
	for _, lt := range tracks {
		if lt.kind == kind {
			return true
		}
	}
	return false
}
