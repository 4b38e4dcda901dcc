package app

import "github.com/campushub/realtime/internal/call"

// StartCall places an outgoing audio or video call to peerID.
func (c *Client) StartCall(peerID string, video bool) error {
	kind := call.KindAudio
	if video {
		kind = call.KindVideo
	}
	return c.calls.Start(peerID, kind)
}

// AcceptCall answers the ringing incoming call.
func (c *Client) AcceptCall() error { return c.calls.Accept() }

// RejectCall declines the ringing incoming call.
func (c *Client) RejectCall() error { return c.calls.Reject() }

// EndCall hangs up the current call in any phase.
func (c *Client) EndCall() error { return c.calls.End() }

// ToggleMute flips the microphone; returns true when now muted.
func (c *Client) ToggleMute() (bool, error) { return c.calls.ToggleAudio() }

// ToggleCamera flips the camera; returns true when now off.
func (c *Client) ToggleCamera() (bool, error) { return c.calls.ToggleVideo() }
