package presence

import (
	"log"
	"sync"
	"time"

	"github.com/campushub/realtime/internal/proto"
)

// DefaultStopDelay is how long after the last keystroke the stop-typing
// signal fires. Unlike the receiver-side eviction timer, this is a true
// debounce: every keystroke resets it.
const DefaultStopDelay = 2 * time.Second

// Sender is the outbound side of the realtime channel. Satisfied by
// *transport.Session.
type Sender interface {
	Send(p proto.Payload) error
}

// Target describes where a typing signal goes: a 1:1 counterpart or a group.
type Target struct {
	ReceiverID     string
	ConversationID string
	GroupID        string
	MemberIDs      []string
}

func (tg Target) key() string {
	if tg.GroupID != "" {
		return "g:" + tg.GroupID
	}
	return "u:" + tg.ReceiverID
}

// Notifier is the sender-side typing signaller: a typing envelope goes out on
// every keystroke, the stop-typing envelope 2 s after the last one. Send
// failures are invisible; the entry expires on the receiver regardless.
type Notifier struct {
	sender Sender
	delay  time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// NewNotifier creates a notifier. delay <= 0 uses DefaultStopDelay.
func NewNotifier(sender Sender, delay time.Duration) *Notifier {
	if delay <= 0 {
		delay = DefaultStopDelay
	}
	return &Notifier{
		sender: sender,
		delay:  delay,
		timers: make(map[string]*time.Timer),
	}
}

// SetDelay changes the stop-typing debounce for timers armed after the call.
func (n *Notifier) SetDelay(delay time.Duration) {
	if delay <= 0 {
		return
	}
	n.mu.Lock()
	n.delay = delay
	n.mu.Unlock()
}

// Keystroke signals typing to the target and arms/resets its stop timer.
func (n *Notifier) Keystroke(tg Target) {
	var err error
	if tg.GroupID != "" {
		err = n.sender.Send(&proto.GroupTyping{GroupID: tg.GroupID, MemberIDs: tg.MemberIDs})
	} else {
		err = n.sender.Send(&proto.Typing{ReceiverID: tg.ReceiverID, ConversationID: tg.ConversationID})
	}
	if err != nil {
		log.Printf("PRESENCE: typing signal dropped: %v", err)
		return
	}

	key := tg.key()
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	if timer, ok := n.timers[key]; ok {
		timer.Stop()
	}
	n.timers[key] = time.AfterFunc(n.delay, func() { n.stop(tg) })
	n.mu.Unlock()
}

// Stop sends the stop-typing signal immediately (message sent, input cleared).
func (n *Notifier) Stop(tg Target) {
	n.mu.Lock()
	if timer, ok := n.timers[tg.key()]; ok {
		timer.Stop()
		delete(n.timers, tg.key())
	}
	n.mu.Unlock()
	n.sendStop(tg)
}

func (n *Notifier) stop(tg Target) {
	n.mu.Lock()
	delete(n.timers, tg.key())
	closed := n.closed
	n.mu.Unlock()
	if closed {
		return
	}
	n.sendStop(tg)
}

func (n *Notifier) sendStop(tg Target) {
	var err error
	if tg.GroupID != "" {
		err = n.sender.Send(&proto.GroupStopTyping{GroupID: tg.GroupID, MemberIDs: tg.MemberIDs})
	} else {
		err = n.sender.Send(&proto.StopTyping{ReceiverID: tg.ReceiverID, ConversationID: tg.ConversationID})
	}
	if err != nil {
		log.Printf("PRESENCE: stop-typing signal dropped: %v", err)
	}
}

// Close cancels all pending stop timers.
func (n *Notifier) Close() {
	n.mu.Lock()
	n.closed = true
	for key, timer := range n.timers {
		timer.Stop()
		delete(n.timers, key)
	}
	n.mu.Unlock()
}
