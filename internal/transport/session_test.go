package transport

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/campushub/realtime/internal/proto"
)

var upgrader = websocket.Upgrader{}

func newSession(t *testing.T, baseURL string) *Session {
	t.Helper()
	s, err := New(Config{BaseURL: baseURL, UserID: "me", ReconnectDelay: 30 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func waitFrame(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case b := <-ch:
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("no frame delivered")
		return nil
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{BaseURL: "http://x"}); err == nil {
		t.Fatal("expected error for missing user id")
	}
	if _, err := New(Config{BaseURL: "://bad", UserID: "me"}); err == nil {
		t.Fatal("expected error for bad base url")
	}
}

func TestReceiveFanout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("userId"); got != "me" {
			t.Errorf("expected userId=me, got %q", got)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"user-status","data":{"userId":"u2","status":"online"}}`))
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	s := newSession(t, srv.URL)
	defer s.Close()

	ch, cancel := s.Subscribe()
	defer cancel()
	s.Start()

	frame := waitFrame(t, ch)
	p, err := proto.Decode(frame)
	if err != nil {
		t.Fatal(err)
	}
	if p.Kind() != proto.KindUserStatus {
		t.Fatalf("expected user-status, got %s", p.Kind())
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	s := newSession(t, "http://127.0.0.1:1") // never started, nothing listening
	defer s.Close()

	err := s.Send(&proto.Typing{ReceiverID: "u2"})
	if err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestSendRoundtrip(t *testing.T) {
	received := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- data
	}))
	defer srv.Close()

	s := newSession(t, srv.URL)
	defer s.Close()
	s.Start()

	// Wait for the dial to land.
	deadline := time.Now().Add(2 * time.Second)
	for !s.Connected() {
		if time.Now().After(deadline) {
			t.Fatal("session never connected")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := s.Send(&proto.Typing{ReceiverID: "u2", ConversationID: "c1"}); err != nil {
		t.Fatal(err)
	}

	select {
	case data := <-received:
		p, err := proto.Decode(data)
		if err != nil {
			t.Fatal(err)
		}
		if p.Kind() != proto.KindTyping {
			t.Fatalf("expected typing frame, got %s", p.Kind())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the frame")
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := conns.Add(1)
		if n == 1 {
			// First connection dies immediately; the session must redial.
			conn.Close()
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"online-users","data":{"users":["u2"]}}`))
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	s := newSession(t, srv.URL)
	defer s.Close()

	ch, cancel := s.Subscribe()
	defer cancel()
	s.Start()

	frame := waitFrame(t, ch)
	p, err := proto.Decode(frame)
	if err != nil {
		t.Fatal(err)
	}
	if p.Kind() != proto.KindOnlineUsers {
		t.Fatalf("expected online-users after reconnect, got %s", p.Kind())
	}
	if conns.Load() < 2 {
		t.Fatalf("expected a second connection, got %d", conns.Load())
	}

	st := s.Status()
	if st.Attempts < 2 {
		t.Fatalf("expected at least 2 attempts recorded, got %d", st.Attempts)
	}
	if len(st.Recent) == 0 {
		t.Fatal("expected recent frame recorded")
	}
	if st.LastFrameAt.IsZero() {
		t.Fatal("expected last frame time recorded")
	}
}

func TestCloseIdempotent(t *testing.T) {
	s := newSession(t, "http://127.0.0.1:1")
	s.Start()
	s.Close()
	s.Close()
}
