// Package transport maintains the single persistent websocket session to the
// portal server. One session exists per logged-in identity; the server routes
// by the userId query parameter on the connect URL.
package transport

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/campushub/realtime/internal/proto"
	"github.com/campushub/realtime/internal/util"
)

const (
	// DefaultReconnectDelay separates reconnect attempts. There is no backoff
	// growth and no retry cap: every close, clean or not, schedules another
	// attempt after this delay.
	DefaultReconnectDelay = 3 * time.Second

	maxFrameSize = 1 << 20

	recentFrameCap = 64
)

// ErrNotConnected is returned by Send while the socket is down. Envelopes are
// dropped, never queued; callers must not apply send side effects on this error.
var ErrNotConnected = errors.New("transport: not connected")

// Config describes one session.
type Config struct {
	// BaseURL is the portal server base (http(s) or ws(s) scheme).
	BaseURL string
	// UserID identifies this client; sent as the userId query parameter.
	UserID string
	// ReconnectDelay overrides DefaultReconnectDelay when > 0.
	ReconnectDelay time.Duration
	// Path overrides the default "/ws" endpoint path.
	Path string
}

// FrameInfo records one inbound frame for the debug snapshot.
type FrameInfo struct {
	Size int       `json:"size"`
	At   time.Time `json:"at"`
}

// Status is a point-in-time snapshot of the session for debugging.
type Status struct {
	Connected   bool        `json:"connected"`
	Attempts    int         `json:"attempts"`
	LastError   string      `json:"last_error,omitempty"`
	LastFrameAt time.Time   `json:"last_frame_at"`
	Recent      []FrameInfo `json:"recent_frames"`
}

// dialer bounds the websocket handshake so a black-holed server cannot stall
// the reconnect loop. Reads have no deadline; the session stays open as long
// as the server holds it.
var dialer = &websocket.Dialer{HandshakeTimeout: util.DefaultConnectTimeout}

// Session owns the websocket connection and its reconnect loop. Inbound
// frames fan out to subscribers; outbound sends interleave onto the one open
// connection under a write lock.
type Session struct {
	url   string
	delay time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	writeMu sync.Mutex

	listenerMu sync.RWMutex
	listeners  map[chan []byte]struct{}

	statMu   sync.Mutex
	attempts int
	lastErr  error

	recent *util.Ring[FrameInfo]
	done   chan struct{}
	loopWG sync.WaitGroup
}

// New builds a session. The connection is not opened until Start.
func New(cfg Config) (*Session, error) {
	if cfg.UserID == "" {
		return nil, errors.New("transport: user id is required")
	}
	path := cfg.Path
	if path == "" {
		path = "/ws"
	}
	q := url.Values{}
	q.Set("userId", cfg.UserID)
	wsURL, err := util.SocketURL(cfg.BaseURL, path, q)
	if err != nil {
		return nil, fmt.Errorf("transport: bad base url: %w", err)
	}
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	return &Session{
		url:       wsURL,
		delay:     delay,
		listeners: make(map[chan []byte]struct{}),
		recent:    util.NewRing[FrameInfo](recentFrameCap),
		done:      make(chan struct{}),
	}, nil
}

// Start launches the connect/reconnect loop.
func (s *Session) Start() {
	s.loopWG.Add(1)
	go s.run()
}

// run dials, pumps frames until the connection drops, then retries after the
// fixed delay. Exactly one connection is live at a time: the previous one is
// force-closed before a new dial, so stale read pumps never deliver twice.
func (s *Session) run() {
	defer s.loopWG.Done()
	for {
		select {
		case <-s.done:
			return
		default:
		}

		conn, _, err := dialer.Dial(s.url, nil)
		s.statMu.Lock()
		s.attempts++
		s.lastErr = err
		s.statMu.Unlock()
		if err != nil {
			log.Printf("TRANSPORT: connect failed: %v (retry in %s)", err, s.delay)
			if !s.sleep() {
				return
			}
			continue
		}

		conn.SetReadLimit(maxFrameSize)
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conn = conn
		s.mu.Unlock()
		log.Printf("TRANSPORT: connected to %s", s.url)

		s.readPump(conn)

		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
		conn.Close()

		select {
		case <-s.done:
			return
		default:
			log.Printf("TRANSPORT: connection lost (retry in %s)", s.delay)
		}
		if !s.sleep() {
			return
		}
	}
}

// sleep waits one reconnect delay; false means the session was closed.
func (s *Session) sleep() bool {
	select {
	case <-s.done:
		return false
	case <-time.After(s.delay):
		return true
	}
}

// readPump delivers frames until a read error. Errors and clean closes are
// treated identically: return and let run reconnect.
func (s *Session) readPump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.statMu.Lock()
			s.lastErr = err
			s.statMu.Unlock()
			return
		}
		s.recent.Push(FrameInfo{Size: len(data), At: time.Now()})

		s.listenerMu.RLock()
		for ch := range s.listeners {
			select {
			case ch <- data:
			default:
				// Listener buffer full, skip
			}
		}
		s.listenerMu.RUnlock()
	}
}

// Send encodes the payload and writes it to the open connection. Returns
// ErrNotConnected while the socket is down; nothing is buffered.
func (s *Session) Send(p proto.Payload) error {
	b, err := proto.Encode(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, b)
	s.writeMu.Unlock()
	if err != nil {
		// Force the pump off this connection; run() reconnects.
		conn.Close()
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

// Connected reports whether a connection is currently open.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Subscribe returns a channel receiving raw inbound frames and a cancel func.
func (s *Session) Subscribe() (ch chan []byte, cancel func()) {
	ch = make(chan []byte, 64)

	s.listenerMu.Lock()
	s.listeners[ch] = struct{}{}
	s.listenerMu.Unlock()

	cancel = func() {
		s.listenerMu.Lock()
		if _, ok := s.listeners[ch]; ok {
			delete(s.listeners, ch)
			close(ch)
		}
		s.listenerMu.Unlock()
	}
	return ch, cancel
}

// Status returns a debug snapshot.
func (s *Session) Status() Status {
	s.statMu.Lock()
	attempts := s.attempts
	lastErr := ""
	if s.lastErr != nil {
		lastErr = s.lastErr.Error()
	}
	s.statMu.Unlock()
	st := Status{
		Connected: s.Connected(),
		Attempts:  attempts,
		LastError: lastErr,
		Recent:    s.recent.Snapshot(),
	}
	if last, ok := s.recent.Last(); ok {
		st.LastFrameAt = last.At
	}
	return st
}

// Close tears the session down. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	close(s.done)
	if conn != nil {
		conn.Close()
	}
	s.loopWG.Wait()

	s.listenerMu.Lock()
	for ch := range s.listeners {
		close(ch)
	}
	s.listeners = make(map[chan []byte]struct{})
	s.listenerMu.Unlock()
}
