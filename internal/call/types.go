package call

import (
	"errors"

	"github.com/campushub/realtime/internal/proto"
)

// State is the call lifecycle phase. Exactly one call session exists at a
// time; idle means no session.
type State string

const (
	StateIdle      State = "idle"
	StateCalling   State = "calling"   // offer sent, awaiting answer
	StateRinging   State = "ringing"   // offer received, awaiting accept/reject
	StateConnected State = "connected" // peer link reports connected
	StateEnded     State = "ended"     // terminal; auto-clears to idle
	StateRejected  State = "rejected"  // terminal; clears immediately
)

// Kind is the media kind of a call.
type Kind string

const (
	KindAudio Kind = Kind(proto.CallAudio)
	KindVideo Kind = Kind(proto.CallVideo)
)

var (
	// ErrCallInProgress rejects a start while any session exists.
	ErrCallInProgress = errors.New("call: another call is in progress")
	// ErrNoActiveCall rejects operations that need a live session.
	ErrNoActiveCall = errors.New("call: no active call")
	// ErrNotRinging rejects accept/reject outside the ringing state.
	ErrNotRinging = errors.New("call: no incoming call to answer")
)

// Signaler is the only surface the call package needs from the transport
// layer. Satisfied by *transport.Session.
type Signaler interface {
	Send(p proto.Payload) error
}

// PeerLink abstracts the peer media connection. The production implementation
// wraps a Pion PeerConnection with locally captured tracks; tests substitute
// a fake. Descriptions and candidates stay opaque JSON so the signaling layer
// never parses SDP.
type PeerLink interface {
	// CreateOffer produces and installs the local offer description.
	CreateOffer() ([]byte, error)
	// CreateAnswer installs the remote offer and produces the local answer.
	CreateAnswer(offer []byte) ([]byte, error)
	// AcceptAnswer installs the remote answer description.
	AcceptAnswer(answer []byte) error
	// AddCandidate applies one remote ICE candidate. Callers must not invoke
	// it before a remote description is installed.
	AddCandidate(cand []byte) error
	// OnCandidate registers the callback fired per locally discovered
	// candidate, as discovered, not batched.
	OnCandidate(fn func(cand []byte))
	// OnConnected registers the callback fired when the underlying link
	// itself reaches the connected state.
	OnConnected(fn func())
	// SetAudioEnabled / SetVideoEnabled toggle local tracks in place without
	// renegotiating; the counterparty keeps receiving a silent/black stream.
	SetAudioEnabled(on bool)
	SetVideoEnabled(on bool)
	// Close releases the peer connection and stops all local media tracks.
	Close() error
}

// LinkFactory acquires local media for the given kind and returns a ready
// link. A media-acquisition failure (permission denied, no device) returns an
// error and must leave nothing half-initialized.
type LinkFactory func(kind Kind) (PeerLink, error)

// Event is delivered to subscribers on every state change and once per
// second while connected.
type Event struct {
	State    State  `json:"state"`
	Kind     Kind   `json:"kind,omitempty"`
	PeerID   string `json:"peer_id,omitempty"`
	PeerName string `json:"peer_name,omitempty"`
	Duration int    `json:"duration,omitempty"` // seconds, connected only
	Reason   string `json:"reason,omitempty"`   // human-readable, failures only
}

// Status is a debug snapshot of the session.
type Status struct {
	State      State  `json:"state"`
	Kind       Kind   `json:"kind,omitempty"`
	PeerID     string `json:"peer_id,omitempty"`
	PeerName   string `json:"peer_name,omitempty"`
	Duration   int    `json:"duration"`
	AudioMuted bool   `json:"audio_muted"`
	VideoOff   bool   `json:"video_off"`
	Buffered   int    `json:"buffered_candidates"`
}
