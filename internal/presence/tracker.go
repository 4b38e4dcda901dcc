// Package presence answers "is user X online" and "who is typing in scope Y".
// Presence follows the server (snapshot plus incremental updates); typing
// entries self-expire on a per-(scope, user) timer.
package presence

import (
	"sort"
	"sync"
	"time"
)

// DefaultTypingTTL is how long a typing entry stays visible after the most
// recent typing event with no stop event.
const DefaultTypingTTL = 3 * time.Second

// EventType labels tracker notifications.
type EventType string

const (
	EventOnline     EventType = "online"
	EventOffline    EventType = "offline"
	EventSnapshot   EventType = "snapshot"
	EventTyping     EventType = "typing"
	EventStopTyping EventType = "stop-typing"
)

// Event is delivered to subscribers on presence or typing changes.
type Event struct {
	Type   EventType `json:"type"`
	UserID string    `json:"user_id,omitempty"`
	Scope  string    `json:"scope,omitempty"`
	Users  []string  `json:"users,omitempty"`
}

type typingKey struct {
	scope string
	user  string
}

// Tracker tracks the online set and per-scope typing sets.
type Tracker struct {
	ttl time.Duration

	mu     sync.Mutex
	online map[string]struct{}
	typing map[string]map[string]struct{} // scope → users typing
	timers map[typingKey]*time.Timer
	closed bool

	listenerMu sync.RWMutex
	listeners  map[chan Event]struct{}
}

// NewTracker creates a tracker. ttl <= 0 uses DefaultTypingTTL.
func NewTracker(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &Tracker{
		ttl:       ttl,
		online:    make(map[string]struct{}),
		typing:    make(map[string]map[string]struct{}),
		timers:    make(map[typingKey]*time.Timer),
		listeners: make(map[chan Event]struct{}),
	}
}

// SetTTL changes the eviction TTL for entries armed after the call.
func (t *Tracker) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	t.mu.Lock()
	t.ttl = ttl
	t.mu.Unlock()
}

// SetOnline replaces the presence set wholesale (online-users snapshot).
// Snapshot and incremental events carry no ordering guarantee; last write wins.
func (t *Tracker) SetOnline(users []string) {
	t.mu.Lock()
	t.online = make(map[string]struct{}, len(users))
	for _, id := range users {
		t.online[id] = struct{}{}
	}
	t.mu.Unlock()

	t.notify(Event{Type: EventSnapshot, Users: append([]string(nil), users...)})
}

// SetStatus applies one user-status update. Idempotent: re-adding a present
// user or removing an absent one changes nothing and emits nothing.
func (t *Tracker) SetStatus(userID string, online bool) {
	t.mu.Lock()
	_, present := t.online[userID]
	if online == present {
		t.mu.Unlock()
		return
	}
	if online {
		t.online[userID] = struct{}{}
	} else {
		delete(t.online, userID)
	}
	t.mu.Unlock()

	typ := EventOffline
	if online {
		typ = EventOnline
	}
	t.notify(Event{Type: typ, UserID: userID})
}

// IsOnline reports whether the user is currently online.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.online[userID]
	return ok
}

// Online returns the sorted online set.
func (t *Tracker) Online() []string {
	t.mu.Lock()
	out := make([]string, 0, len(t.online))
	for id := range t.online {
		out = append(out, id)
	}
	t.mu.Unlock()
	sort.Strings(out)
	return out
}

// StartTyping marks the user typing in scope and (re)arms the eviction timer.
// One timer exists per (scope, user): each event reschedules it, so the entry
// stays visible continuously until ttl after the most recent event, with no
// flicker from overlapping timers.
func (t *Tracker) StartTyping(scope, userID string) {
	key := typingKey{scope: scope, user: userID}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	set, ok := t.typing[scope]
	if !ok {
		set = make(map[string]struct{})
		t.typing[scope] = set
	}
	_, already := set[userID]
	set[userID] = struct{}{}

	if timer, ok := t.timers[key]; ok {
		timer.Stop()
	}
	t.timers[key] = time.AfterFunc(t.ttl, func() { t.evict(key) })
	t.mu.Unlock()

	if !already {
		t.notify(Event{Type: EventTyping, Scope: scope, UserID: userID})
	}
}

// StopTyping removes the entry immediately (explicit stop event).
func (t *Tracker) StopTyping(scope, userID string) {
	t.evict(typingKey{scope: scope, user: userID})
}

// evict removes one typing entry and its timer.
func (t *Tracker) evict(key typingKey) {
	t.mu.Lock()
	if timer, ok := t.timers[key]; ok {
		timer.Stop()
		delete(t.timers, key)
	}
	set, ok := t.typing[key.scope]
	if !ok {
		t.mu.Unlock()
		return
	}
	if _, present := set[key.user]; !present {
		t.mu.Unlock()
		return
	}
	delete(set, key.user)
	if len(set) == 0 {
		delete(t.typing, key.scope)
	}
	t.mu.Unlock()

	t.notify(Event{Type: EventStopTyping, Scope: key.scope, UserID: key.user})
}

// Typing returns the sorted set of users typing in scope.
func (t *Tracker) Typing(scope string) []string {
	t.mu.Lock()
	set := t.typing[scope]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	t.mu.Unlock()
	sort.Strings(out)
	return out
}

// Subscribe returns a channel of tracker events and a cancel func.
func (t *Tracker) Subscribe() (ch chan Event, cancel func()) {
	ch = make(chan Event, 32)

	t.listenerMu.Lock()
	t.listeners[ch] = struct{}{}
	t.listenerMu.Unlock()

	cancel = func() {
		t.listenerMu.Lock()
		if _, ok := t.listeners[ch]; ok {
			delete(t.listeners, ch)
			close(ch)
		}
		t.listenerMu.Unlock()
	}
	return ch, cancel
}

// Close stops all pending eviction timers.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	for key, timer := range t.timers {
		timer.Stop()
		delete(t.timers, key)
	}
	t.mu.Unlock()

	t.listenerMu.Lock()
	for ch := range t.listeners {
		close(ch)
	}
	t.listeners = make(map[chan Event]struct{})
	t.listenerMu.Unlock()
}

func (t *Tracker) notify(evt Event) {
	t.listenerMu.RLock()
	for ch := range t.listeners {
		select {
		case ch <- evt:
		default:
		}
	}
	t.listenerMu.RUnlock()
}
