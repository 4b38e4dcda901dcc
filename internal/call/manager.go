// Package call implements the peer-call signaling state machine on top of
// the realtime channel: offer/answer/ICE exchange, call lifecycle, and media
// cleanup. Coupling to the rest of the client is via the Signaler and
// PeerLink interfaces only.
package call

import (
	"fmt"
	"log"
	"sync"
	"time"
)

const (
	// DefaultEndedDelay keeps the terminal ended state visible before the
	// machine auto-clears to idle. Rejected clears immediately.
	DefaultEndedDelay = 2 * time.Second

	// DefaultTickInterval is the duration counter resolution.
	DefaultTickInterval = time.Second
)

// Config wires a Manager.
type Config struct {
	Signaler Signaler
	SelfID   string
	SelfName string
	NewLink  LinkFactory

	// EndedDelay / TickInterval override the defaults when > 0 (tests).
	EndedDelay   time.Duration
	TickInterval time.Duration
}

// Manager owns the singleton call session. All mutations go through one
// mutex; late async callbacks (media acquisition, link events, timers) are
// guarded by a session generation counter so they cannot touch a session
// that has since been torn down.
type Manager struct {
	sig        Signaler
	selfID     string
	selfName   string
	newLink    LinkFactory
	endedDelay time.Duration
	tick       time.Duration

	mu       sync.Mutex
	gen      uint64
	state    State
	kind     Kind
	peerID   string
	peerName string
	link     PeerLink

	pendingOffer      []byte
	pendingCandidates [][]byte
	remoteDescSet     bool

	audioOn bool
	videoOn bool

	duration   int
	tickerStop chan struct{}
	endedTimer *time.Timer

	listenerMu sync.RWMutex
	listeners  map[chan Event]struct{}
}

// New creates an idle call manager.
func New(cfg Config) *Manager {
	m := &Manager{
		sig:        cfg.Signaler,
		selfID:     cfg.SelfID,
		selfName:   cfg.SelfName,
		newLink:    cfg.NewLink,
		endedDelay: cfg.EndedDelay,
		tick:       cfg.TickInterval,
		state:      StateIdle,
		listeners:  make(map[chan Event]struct{}),
	}
	if m.endedDelay <= 0 {
		m.endedDelay = DefaultEndedDelay
	}
	if m.tick <= 0 {
		m.tick = DefaultTickInterval
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Duration returns elapsed connected seconds.
func (m *Manager) Duration() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}

// Status returns a debug snapshot.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		State:      m.state,
		Kind:       m.kind,
		PeerID:     m.peerID,
		PeerName:   m.peerName,
		Duration:   m.duration,
		AudioMuted: m.link != nil && !m.audioOn,
		VideoOff:   m.link != nil && !m.videoOn,
		Buffered:   len(m.pendingCandidates),
	}
}

// Start places an outgoing call: acquire media, send the offer, forward
// locally discovered candidates as they appear. Fails and stays idle when a
// call already exists or media acquisition is denied.
func (m *Manager) Start(peerID string, kind Kind) error {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return ErrCallInProgress
	}
	m.gen++
	gen := m.gen
	m.state = StateCalling
	m.kind = kind
	m.peerID = peerID
	m.audioOn = true
	m.videoOn = kind == KindVideo
	m.mu.Unlock()
	m.emit(Event{State: StateCalling, Kind: kind, PeerID: peerID})

	link, err := m.newLink(kind)
	if err != nil {
		m.abortStart(gen, fmt.Sprintf("media unavailable: %v", err))
		return fmt.Errorf("acquire media: %w", err)
	}

	m.mu.Lock()
	if m.gen != gen || m.state != StateCalling {
		// Torn down while media was being acquired.
		m.mu.Unlock()
		link.Close()
		return ErrNoActiveCall
	}
	m.link = link
	m.mu.Unlock()

	m.wireLink(link, gen)

	offer, err := link.CreateOffer()
	if err != nil {
		m.abortStart(gen, fmt.Sprintf("offer failed: %v", err))
		return fmt.Errorf("create offer: %w", err)
	}
	if err := m.sendOffer(peerID, kind, offer); err != nil {
		m.abortStart(gen, fmt.Sprintf("signaling unavailable: %v", err))
		return err
	}
	log.Printf("CALL [%s]: offer sent (%s)", peerID, kind)
	return nil
}

// HandleOffer processes an incoming call-offer. From idle the machine moves
// to ringing without acquiring media; media is acquired lazily on accept, so
// a ringing call holds no devices. While non-idle, the caller is busy: the
// offer is answered with an immediate reject.
func (m *Manager) HandleOffer(senderID, callerName string, kind Kind, offer []byte) {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		log.Printf("CALL [%s]: busy, rejecting offer", senderID)
		m.sendReject(senderID)
		return
	}
	m.gen++
	m.state = StateRinging
	m.kind = kind
	m.peerID = senderID
	m.peerName = callerName
	m.pendingOffer = offer
	m.mu.Unlock()

	m.emit(Event{State: StateRinging, Kind: kind, PeerID: senderID, PeerName: callerName})
}

// Accept answers the ringing call: acquire media for the offer's kind, apply
// the remote offer, send the answer, start forwarding local candidates.
// A media failure reverts to idle and leaves no half-initialized session.
func (m *Manager) Accept() error {
	m.mu.Lock()
	if m.state != StateRinging {
		m.mu.Unlock()
		return ErrNotRinging
	}
	gen := m.gen
	kind := m.kind
	peerID := m.peerID
	offer := m.pendingOffer
	m.audioOn = true
	m.videoOn = kind == KindVideo
	m.mu.Unlock()

	link, err := m.newLink(kind)
	if err != nil {
		m.failToIdle(gen, fmt.Sprintf("media unavailable: %v", err))
		return fmt.Errorf("acquire media: %w", err)
	}

	// ICE gathering starts inside CreateAnswer, as soon as the local
	// description is set. The forwarder must already be registered or
	// candidates surfacing in that window are lost for good; they are not
	// replayed to a handler installed later.
	m.wireCandidates(link, gen)

	answer, err := link.CreateAnswer(offer)
	if err != nil {
		link.Close()
		m.failToIdle(gen, fmt.Sprintf("answer failed: %v", err))
		return fmt.Errorf("create answer: %w", err)
	}

	m.mu.Lock()
	if m.gen != gen || m.state != StateRinging {
		m.mu.Unlock()
		link.Close()
		return ErrNoActiveCall
	}
	m.link = link
	m.remoteDescSet = true
	m.pendingOffer = nil
	buffered := m.pendingCandidates
	m.pendingCandidates = nil
	m.mu.Unlock()

	m.wireConnected(link, gen)
	m.flush(link, buffered)

	if err := m.sig.Send(answerMsg(m.selfID, peerID, answer)); err != nil {
		m.mu.Lock()
		if m.gen == gen {
			m.link = nil
			m.mu.Unlock()
			link.Close()
		} else {
			m.mu.Unlock()
		}
		m.failToIdle(gen, fmt.Sprintf("signaling unavailable: %v", err))
		return err
	}
	log.Printf("CALL [%s]: answer sent", peerID)
	return nil
}

// HandleAnswer applies the remote answer to an outgoing call.
func (m *Manager) HandleAnswer(answer []byte) {
	m.mu.Lock()
	if m.state != StateCalling || m.link == nil {
		m.mu.Unlock()
		return
	}
	link := m.link
	gen := m.gen
	m.mu.Unlock()

	if err := link.AcceptAnswer(answer); err != nil {
		log.Printf("CALL [%s]: apply answer: %v", m.peerLabel(), err)
		return
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.remoteDescSet = true
	buffered := m.pendingCandidates
	m.pendingCandidates = nil
	m.mu.Unlock()

	m.flush(link, buffered)
}

// HandleCandidate applies one remote ICE candidate. Candidates can outrun
// the offer/answer they belong to; until the remote description is installed
// they are buffered in arrival order and flushed afterwards, so an early
// candidate is never silently lost.
func (m *Manager) HandleCandidate(cand []byte) {
	m.mu.Lock()
	if m.state == StateIdle || m.state == StateEnded || m.state == StateRejected {
		m.mu.Unlock()
		return
	}
	if m.link == nil || !m.remoteDescSet {
		m.pendingCandidates = append(m.pendingCandidates, cand)
		m.mu.Unlock()
		return
	}
	link := m.link
	m.mu.Unlock()

	if err := link.AddCandidate(cand); err != nil {
		log.Printf("CALL [%s]: add candidate: %v", m.peerLabel(), err)
	}
}

// End terminates the session from any non-idle state: notify the
// counterparty, release everything, show ended briefly, then clear to idle.
func (m *Manager) End() error {
	m.mu.Lock()
	if m.state == StateIdle {
		m.mu.Unlock()
		return ErrNoActiveCall
	}
	peerID := m.peerID
	m.mu.Unlock()

	if peerID != "" {
		if err := m.sig.Send(endMsg(m.selfID, peerID)); err != nil {
			log.Printf("CALL [%s]: end signal dropped: %v", peerID, err)
		}
	}
	m.terminate(StateEnded, "")
	return nil
}

// Reject declines the ringing call and clears to idle immediately.
func (m *Manager) Reject() error {
	m.mu.Lock()
	if m.state != StateRinging {
		m.mu.Unlock()
		return ErrNotRinging
	}
	peerID := m.peerID
	m.mu.Unlock()

	m.sendReject(peerID)
	m.terminate(StateRejected, "")
	return nil
}

// HandleRemoteEnd applies a call-end from the counterparty. Termination is
// always accepted for a live call; repeats while already settled are no-ops,
// so a duplicate end cannot re-arm the ended display timer.
func (m *Manager) HandleRemoteEnd() {
	if m.settled() {
		return
	}
	m.terminate(StateEnded, "")
}

// HandleRemoteReject applies a call-reject from the counterparty.
func (m *Manager) HandleRemoteReject() {
	if m.settled() {
		return
	}
	m.terminate(StateRejected, "")
}

// settled reports whether no live session exists: idle or parked in a
// terminal state waiting for its display delay.
func (m *Manager) settled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateIdle || m.state == StateEnded || m.state == StateRejected
}

// ToggleAudio flips the local audio track in place. Returns the new muted
// state (true = muted).
func (m *Manager) ToggleAudio() (bool, error) {
	m.mu.Lock()
	if m.link == nil {
		m.mu.Unlock()
		return false, ErrNoActiveCall
	}
	m.audioOn = !m.audioOn
	on := m.audioOn
	link := m.link
	m.mu.Unlock()

	link.SetAudioEnabled(on)
	log.Printf("CALL [%s]: audio muted=%v", m.peerLabel(), !on)
	return !on, nil
}

// ToggleVideo flips the local video track in place. Returns the new disabled
// state (true = camera off).
func (m *Manager) ToggleVideo() (bool, error) {
	m.mu.Lock()
	if m.link == nil {
		m.mu.Unlock()
		return false, ErrNoActiveCall
	}
	m.videoOn = !m.videoOn
	on := m.videoOn
	link := m.link
	m.mu.Unlock()

	link.SetVideoEnabled(on)
	log.Printf("CALL [%s]: video disabled=%v", m.peerLabel(), !on)
	return !on, nil
}

// Subscribe returns a channel of call events and a cancel func.
func (m *Manager) Subscribe() (ch chan Event, cancel func()) {
	ch = make(chan Event, 32)

	m.listenerMu.Lock()
	m.listeners[ch] = struct{}{}
	m.listenerMu.Unlock()

	cancel = func() {
		m.listenerMu.Lock()
		if _, ok := m.listeners[ch]; ok {
			delete(m.listeners, ch)
			close(ch)
		}
		m.listenerMu.Unlock()
	}
	return ch, cancel
}

// Close ends any active call and drops all listeners.
func (m *Manager) Close() {
	_ = m.End()

	m.mu.Lock()
	if m.endedTimer != nil {
		m.endedTimer.Stop()
		m.endedTimer = nil
	}
	m.state = StateIdle
	m.mu.Unlock()

	m.listenerMu.Lock()
	for ch := range m.listeners {
		close(ch)
	}
	m.listeners = make(map[chan Event]struct{})
	m.listenerMu.Unlock()
}

// wireLink registers candidate/connected callbacks, generation-guarded so a
// link outliving its session cannot signal or mutate state.
func (m *Manager) wireLink(link PeerLink, gen uint64) {
	m.wireCandidates(link, gen)
	m.wireConnected(link, gen)
}

func (m *Manager) wireCandidates(link PeerLink, gen uint64) {
	link.OnCandidate(func(cand []byte) {
		m.mu.Lock()
		stale := m.gen != gen
		peerID := m.peerID
		m.mu.Unlock()
		if stale {
			return
		}
		if err := m.sig.Send(candidateMsg(m.selfID, peerID, cand)); err != nil {
			log.Printf("CALL [%s]: candidate dropped: %v", peerID, err)
		}
	})
}

// wireConnected is registered only once the link is installed, otherwise the
// m.link == nil guard in onLinkConnected would swallow the transition.
func (m *Manager) wireConnected(link PeerLink, gen uint64) {
	link.OnConnected(func() {
		m.onLinkConnected(gen)
	})
}

// onLinkConnected moves to connected once the peer link itself reports a
// connected state (not merely after the answer exchange) and starts the
// duration counter.
func (m *Manager) onLinkConnected(gen uint64) {
	m.mu.Lock()
	if m.gen != gen || m.state == StateConnected || m.link == nil {
		m.mu.Unlock()
		return
	}
	m.state = StateConnected
	m.duration = 0
	stop := make(chan struct{})
	m.tickerStop = stop
	evt := m.eventLocked()
	m.mu.Unlock()

	m.emit(evt)
	log.Printf("CALL [%s]: connected", m.peerLabel())
	go m.runTicker(gen, stop)
}

func (m *Manager) runTicker(gen uint64, stop chan struct{}) {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			if m.gen != gen || m.state != StateConnected {
				m.mu.Unlock()
				return
			}
			m.duration++
			evt := m.eventLocked()
			m.mu.Unlock()
			m.emit(evt)
		}
	}
}

// terminate runs the shared cleanup path and parks the machine in the given
// terminal state. Ended lingers for the display delay; rejected clears
// immediately.
func (m *Manager) terminate(terminal State, reason string) {
	m.mu.Lock()
	link := m.link
	m.link = nil
	if m.tickerStop != nil {
		close(m.tickerStop)
		m.tickerStop = nil
	}
	if m.endedTimer != nil {
		m.endedTimer.Stop()
		m.endedTimer = nil
	}
	m.gen++
	gen := m.gen
	m.pendingOffer = nil
	m.pendingCandidates = nil
	m.remoteDescSet = false
	m.state = terminal
	evt := m.eventLocked()
	evt.Reason = reason
	m.mu.Unlock()

	if link != nil {
		if err := link.Close(); err != nil {
			log.Printf("CALL [%s]: link close: %v", m.peerLabel(), err)
		}
	}
	m.emit(evt)

	if terminal == StateRejected {
		m.clearToIdle(gen)
		return
	}
	m.mu.Lock()
	m.endedTimer = time.AfterFunc(m.endedDelay, func() { m.clearToIdle(gen) })
	m.mu.Unlock()
}

// clearToIdle resets session fields after a terminal state.
func (m *Manager) clearToIdle(gen uint64) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.state = StateIdle
	m.kind = ""
	m.peerID = ""
	m.peerName = ""
	m.duration = 0
	m.endedTimer = nil
	m.mu.Unlock()

	m.emit(Event{State: StateIdle})
}

// abortStart reverts a failed outgoing-call setup back to idle.
func (m *Manager) abortStart(gen uint64, reason string) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	link := m.link
	m.link = nil
	m.state = StateIdle
	m.kind = ""
	m.peerID = ""
	m.mu.Unlock()

	if link != nil {
		link.Close()
	}
	m.emit(Event{State: StateIdle, Reason: reason})
}

// failToIdle reverts a failed accept back to idle with a visible reason.
func (m *Manager) failToIdle(gen uint64, reason string) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.gen++
	m.state = StateIdle
	m.kind = ""
	m.peerID = ""
	m.peerName = ""
	m.pendingOffer = nil
	m.pendingCandidates = nil
	m.remoteDescSet = false
	m.mu.Unlock()

	m.emit(Event{State: StateIdle, Reason: reason})
}

func (m *Manager) flush(link PeerLink, buffered [][]byte) {
	for _, cand := range buffered {
		if err := link.AddCandidate(cand); err != nil {
			log.Printf("CALL [%s]: flush candidate: %v", m.peerLabel(), err)
		}
	}
	if len(buffered) > 0 {
		log.Printf("CALL [%s]: flushed %d buffered candidates", m.peerLabel(), len(buffered))
	}
}

func (m *Manager) sendOffer(peerID string, kind Kind, offer []byte) error {
	return m.sig.Send(offerMsg(m.selfID, peerID, kind, m.selfName, offer))
}

func (m *Manager) sendReject(peerID string) {
	if err := m.sig.Send(rejectMsg(m.selfID, peerID)); err != nil {
		log.Printf("CALL [%s]: reject signal dropped: %v", peerID, err)
	}
}

// eventLocked builds an event from current fields; caller holds the lock.
func (m *Manager) eventLocked() Event {
	return Event{
		State:    m.state,
		Kind:     m.kind,
		PeerID:   m.peerID,
		PeerName: m.peerName,
		Duration: m.duration,
	}
}

func (m *Manager) peerLabel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.peerID != "" {
		return m.peerID
	}
	return "-"
}

func (m *Manager) emit(evt Event) {
	m.listenerMu.RLock()
	for ch := range m.listeners {
		select {
		case ch <- evt:
		default:
		}
	}
	m.listenerMu.RUnlock()
}
