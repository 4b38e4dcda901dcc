package presence

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/campushub/realtime/internal/proto"
)

var errDown = errors.New("socket down")

type captureSender struct {
	mu   sync.Mutex
	sent []proto.Payload
	err  error
}

func (c *captureSender) Send(p proto.Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, p)
	return nil
}

func (c *captureSender) kinds() []proto.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]proto.Kind, len(c.sent))
	for i, p := range c.sent {
		out[i] = p.Kind()
	}
	return out
}

func TestKeystrokeThenDebouncedStop(t *testing.T) {
	sender := &captureSender{}
	n := NewNotifier(sender, 50*time.Millisecond)
	defer n.Close()

	tg := Target{ReceiverID: "u2", ConversationID: "c1"}
	n.Keystroke(tg)
	n.Keystroke(tg)

	time.Sleep(120 * time.Millisecond)

	kinds := sender.kinds()
	if len(kinds) != 3 {
		t.Fatalf("expected typing,typing,stop-typing, got %v", kinds)
	}
	if kinds[0] != proto.KindTyping || kinds[1] != proto.KindTyping || kinds[2] != proto.KindStopTyping {
		t.Fatalf("unexpected sequence %v", kinds)
	}
}

func TestKeystrokeResetsStopTimer(t *testing.T) {
	sender := &captureSender{}
	n := NewNotifier(sender, 60*time.Millisecond)
	defer n.Close()

	tg := Target{ReceiverID: "u2", ConversationID: "c1"}

	// Keystrokes every 30ms for 150ms: only one stop, after the last one.
	for i := 0; i < 5; i++ {
		n.Keystroke(tg)
		time.Sleep(30 * time.Millisecond)
	}

	stops := 0
	for _, k := range sender.kinds() {
		if k == proto.KindStopTyping {
			stops++
		}
	}
	if stops != 0 {
		t.Fatalf("stop fired while still typing (%d stops)", stops)
	}

	time.Sleep(120 * time.Millisecond)
	stops = 0
	for _, k := range sender.kinds() {
		if k == proto.KindStopTyping {
			stops++
		}
	}
	if stops != 1 {
		t.Fatalf("expected exactly one stop after the last keystroke, got %d", stops)
	}
}

func TestExplicitStopCancelsTimer(t *testing.T) {
	sender := &captureSender{}
	n := NewNotifier(sender, 50*time.Millisecond)
	defer n.Close()

	tg := Target{GroupID: "g1", MemberIDs: []string{"u2", "u3"}}
	n.Keystroke(tg)
	n.Stop(tg)

	time.Sleep(100 * time.Millisecond)

	kinds := sender.kinds()
	if len(kinds) != 2 {
		t.Fatalf("expected typing,stop only, got %v", kinds)
	}
	if kinds[0] != proto.KindGroupTyping || kinds[1] != proto.KindGroupStopTyping {
		t.Fatalf("unexpected sequence %v", kinds)
	}
}

func TestGroupTargetCarriesMembers(t *testing.T) {
	sender := &captureSender{}
	n := NewNotifier(sender, time.Minute)
	defer n.Close()

	n.Keystroke(Target{GroupID: "g1", MemberIDs: []string{"u2", "u3"}})

	sender.mu.Lock()
	defer sender.mu.Unlock()
	gt, ok := sender.sent[0].(*proto.GroupTyping)
	if !ok {
		t.Fatalf("expected *proto.GroupTyping, got %T", sender.sent[0])
	}
	if gt.GroupID != "g1" || len(gt.MemberIDs) != 2 {
		t.Fatalf("bad fanout fields: %+v", gt)
	}
}

func TestSendFailureDoesNotArmTimer(t *testing.T) {
	sender := &captureSender{err: errDown}
	n := NewNotifier(sender, 30*time.Millisecond)
	defer n.Close()

	n.Keystroke(Target{ReceiverID: "u2"})
	sender.mu.Lock()
	sender.err = nil
	sender.mu.Unlock()

	time.Sleep(80 * time.Millisecond)
	if kinds := sender.kinds(); len(kinds) != 0 {
		t.Fatalf("expected no stop for a dropped keystroke, got %v", kinds)
	}
}
