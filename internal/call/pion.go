package call

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/pion/webrtc/v4"
)

// Factory returns a LinkFactory producing Pion-backed peer links with local
// media captured for the requested call kind.
func Factory(stunURLs []string) LinkFactory {
	if len(stunURLs) == 0 {
		stunURLs = []string{"stun:stun.l.google.com:19302"}
	}
	return func(kind Kind) (PeerLink, error) {
		return newPionLink(kind, stunURLs)
	}
}

// localTrack pairs a captured track with its sender so toggling can swap the
// track out of the sender without renegotiating.
type localTrack struct {
	kind   webrtc.RTPCodecType
	track  webrtc.TrackLocal
	sender *webrtc.RTPSender
}

// pionLink adapts a Pion PeerConnection to the PeerLink interface.
type pionLink struct {
	pc        *webrtc.PeerConnection
	stopMedia func()

	mu     sync.Mutex
	tracks []*localTrack
	closed bool
}

func newPionLink(kind Kind, stunURLs []string) (*pionLink, error) {
	pc, tracks, stopMedia, err := initMediaPC(kind, stunURLs)
	if err != nil {
		return nil, err
	}
	return &pionLink{pc: pc, stopMedia: stopMedia, tracks: tracks}, nil
}

func (l *pionLink) CreateOffer() ([]byte, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return json.Marshal(offer)
}

func (l *pionLink) CreateAnswer(offer []byte) ([]byte, error) {
	var remote webrtc.SessionDescription
	if err := json.Unmarshal(offer, &remote); err != nil {
		return nil, fmt.Errorf("parse offer: %w", err)
	}
	if err := l.pc.SetRemoteDescription(remote); err != nil {
		return nil, fmt.Errorf("set remote description: %w", err)
	}
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return json.Marshal(answer)
}

func (l *pionLink) AcceptAnswer(answer []byte) error {
	var remote webrtc.SessionDescription
	if err := json.Unmarshal(answer, &remote); err != nil {
		return fmt.Errorf("parse answer: %w", err)
	}
	if err := l.pc.SetRemoteDescription(remote); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (l *pionLink) AddCandidate(cand []byte) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(cand, &init); err != nil {
		return fmt.Errorf("parse candidate: %w", err)
	}
	return l.pc.AddICECandidate(init)
}

func (l *pionLink) OnCandidate(fn func(cand []byte)) {
	l.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			// End-of-gathering marker; candidates are trickled, not batched.
			return
		}
		b, err := json.Marshal(c.ToJSON())
		if err != nil {
			log.Printf("CALL: marshal candidate: %v", err)
			return
		}
		fn(b)
	})
}

func (l *pionLink) OnConnected(fn func()) {
	l.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Printf("CALL: peer connection state %s", s)
		if s == webrtc.PeerConnectionStateConnected {
			fn()
		}
	})
}

// SetAudioEnabled swaps the audio track out of (or back into) its sender.
// The m-line stays up, so the counterparty receives silence instead of a
// renegotiated session without the track.
func (l *pionLink) SetAudioEnabled(on bool) { l.setEnabled(webrtc.RTPCodecTypeAudio, on) }

// SetVideoEnabled does the same for the video track (black frames).
func (l *pionLink) SetVideoEnabled(on bool) { l.setEnabled(webrtc.RTPCodecTypeVideo, on) }

func (l *pionLink) setEnabled(kind webrtc.RTPCodecType, on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	for _, lt := range l.tracks {
		if lt.kind != kind {
			continue
		}
		var err error
		if on {
			err = lt.sender.ReplaceTrack(lt.track)
		} else {
			err = lt.sender.ReplaceTrack(nil)
		}
		if err != nil {
			log.Printf("CALL: toggle %s track: %v", kind, err)
		}
	}
}

// Close releases the peer connection and stops local capture. Idempotent.
func (l *pionLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	stop := l.stopMedia
	l.stopMedia = nil
	l.mu.Unlock()

	err := l.pc.Close()
	if stop != nil {
		stop()
	}
	return err
}

// addRecvOnlyTransceivers ensures the SDP has valid m-lines with ICE
// credentials even when no matching local track exists.
func addRecvOnlyTransceivers(pc *webrtc.PeerConnection, video bool) {
	if video {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			log.Printf("CALL: AddTransceiver(video) error: %v", err)
		}
	}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		log.Printf("CALL: AddTransceiver(audio) error: %v", err)
	}
}

func iceServers(stunURLs []string) []webrtc.ICEServer {
	return []webrtc.ICEServer{{URLs: stunURLs}}
}
