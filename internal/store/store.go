// Package store holds the in-memory realtime view of conversations: message
// lists, summaries with unread counters, and the mutations the dispatcher
// applies. Every mutation is a single complete transition under one lock;
// readers never observe a partially-applied envelope.
package store

import (
	"log"
	"sort"
	"sync"
	"time"
)

// DefaultScopeCap bounds how many messages are kept per conversation/group.
const DefaultScopeCap = 500

// EventType labels store change notifications.
type EventType string

const (
	EventAppend    EventType = "append"
	EventReconcile EventType = "reconcile"
	EventEdit      EventType = "edit"
	EventDelete    EventType = "delete"
	EventSeen      EventType = "seen"
	EventReaction  EventType = "reaction"
	EventSummaries EventType = "summaries"
)

// Event is delivered to subscribers after each applied mutation.
type Event struct {
	Type    EventType `json:"type"`
	Scope   Scope     `json:"scope,omitempty"`
	Message *Message  `json:"message,omitempty"`
}

// Summary is one row of the conversation/group overview list.
type Summary struct {
	Scope       Scope     `json:"scope"`
	Title       string    `json:"title,omitempty"`
	LastPreview string    `json:"last_preview,omitempty"`
	LastAt      time.Time `json:"last_at,omitempty"`
	Unread      int       `json:"unread"`
}

// Store is the in-memory message store.
type Store struct {
	selfID string
	cap    int

	mu        sync.RWMutex
	messages  map[Scope][]*Message
	byID      map[string]*Message // server id → message
	byLocalID map[string]*Message // optimistic id → message
	summaries map[Scope]*Summary

	listenerMu sync.RWMutex
	listeners  map[chan Event]struct{}
}

// New creates a store for the given local user. scopeCap <= 0 uses the default.
func New(selfID string, scopeCap int) *Store {
	if scopeCap <= 0 {
		scopeCap = DefaultScopeCap
	}
	return &Store{
		selfID:    selfID,
		cap:       scopeCap,
		messages:  make(map[Scope][]*Message),
		byID:      make(map[string]*Message),
		byLocalID: make(map[string]*Message),
		summaries: make(map[Scope]*Summary),
		listeners: make(map[chan Event]struct{}),
	}
}

// Append adds a confirmed message iff no message with its server id is
// already present. Returns false on a duplicate; replayed envelopes are
// no-ops. Unread count bumps only for messages from other users.
func (s *Store) Append(msg *Message) bool {
	if msg.ID == "" {
		return false
	}

	s.mu.Lock()
	if _, dup := s.byID[msg.ID]; dup {
		s.mu.Unlock()
		return false
	}
	m := msg.clone()
	if m.LocalID == "" {
		m.LocalID = m.ID
	}
	s.insertLocked(m)
	sum := s.summaryLocked(m.Scope)
	sum.LastPreview = m.Content
	sum.LastAt = m.CreatedAt
	if m.SenderID != s.selfID {
		sum.Unread++
	}
	s.mu.Unlock()

	s.notify(Event{Type: EventAppend, Scope: m.Scope, Message: m.clone()})
	return true
}

// AppendLocal stores an optimistic draft and returns its copy. The draft has
// no server id yet and is invisible to dedup until Reconcile assigns one.
func (s *Store) AppendLocal(draft *Message) *Message {
	s.mu.Lock()
	m := draft.clone()
	s.insertLocked(m)
	sum := s.summaryLocked(m.Scope)
	sum.LastPreview = m.Content
	sum.LastAt = m.CreatedAt
	s.mu.Unlock()

	s.notify(Event{Type: EventAppend, Scope: m.Scope, Message: m.clone()})
	return m.clone()
}

// Reconcile binds the server-confirmed id (and authoritative timestamp) to an
// optimistic draft. After this the realtime copy of the same message dedups
// against it. Returns false when the draft is gone (deleted meanwhile).
func (s *Store) Reconcile(localID, serverID string, sentAt time.Time) bool {
	s.mu.Lock()
	m, ok := s.byLocalID[localID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if _, taken := s.byID[serverID]; taken && s.byID[serverID] != m {
		// Realtime copy arrived before the REST response: drop the draft.
		s.removeLocked(m)
		s.mu.Unlock()
		s.notify(Event{Type: EventDelete, Scope: m.Scope, Message: m.clone()})
		return false
	}
	m.ID = serverID
	if !sentAt.IsZero() {
		m.CreatedAt = sentAt
	}
	s.byID[serverID] = m
	s.mu.Unlock()

	s.notify(Event{Type: EventReconcile, Scope: m.Scope, Message: m.clone()})
	return true
}

// DropLocal removes a draft whose REST send failed; no-op once reconciled or
// already gone.
func (s *Store) DropLocal(localID string) bool {
	s.mu.Lock()
	m, ok := s.byLocalID[localID]
	if !ok || m.ID != "" {
		s.mu.Unlock()
		return false
	}
	s.removeLocked(m)
	s.mu.Unlock()

	s.notify(Event{Type: EventDelete, Scope: m.Scope, Message: m.clone()})
	return true
}

// ApplyEdit replaces content by server id. Messages not loaded locally are
// silently skipped, not retried.
func (s *Store) ApplyEdit(serverID, content string) bool {
	s.mu.Lock()
	m, ok := s.byID[serverID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	m.Content = content
	m.Edited = true
	sum := s.summaryLocked(m.Scope)
	if last := s.lastLocked(m.Scope); last == m {
		sum.LastPreview = content
	}
	s.mu.Unlock()

	s.notify(Event{Type: EventEdit, Scope: m.Scope, Message: m.clone()})
	return true
}

// ApplyDelete removes by server id; no-op if absent.
func (s *Store) ApplyDelete(serverID string) bool {
	s.mu.Lock()
	m, ok := s.byID[serverID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.removeLocked(m)
	s.mu.Unlock()

	s.notify(Event{Type: EventDelete, Scope: m.Scope, Message: m.clone()})
	return true
}

// MarkSeen sets the read flag by server id; no-op if absent.
func (s *Store) MarkSeen(serverID string) bool {
	s.mu.Lock()
	m, ok := s.byID[serverID]
	if !ok || m.Read {
		s.mu.Unlock()
		return false
	}
	m.Read = true
	s.mu.Unlock()

	s.notify(Event{Type: EventSeen, Scope: m.Scope, Message: m.clone()})
	return true
}

// ToggleReaction adds the (user, emoji) reaction, or removes it when already
// present. Applying the same pair twice restores the original state.
func (s *Store) ToggleReaction(serverID, userID, emoji string) bool {
	s.mu.Lock()
	m, ok := s.byID[serverID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if m.HasReaction(userID, emoji) {
		kept := m.Reactions[:0]
		for _, r := range m.Reactions {
			if r.UserID != userID || r.Emoji != emoji {
				kept = append(kept, r)
			}
		}
		m.Reactions = kept
	} else {
		m.Reactions = append(m.Reactions, Reaction{UserID: userID, Emoji: emoji})
	}
	s.mu.Unlock()

	s.notify(Event{Type: EventReaction, Scope: m.Scope, Message: m.clone()})
	return true
}

// MarkScopeRead clears the unread counter for a scope.
func (s *Store) MarkScopeRead(scope Scope) {
	s.mu.Lock()
	if sum, ok := s.summaries[scope]; ok {
		sum.Unread = 0
	}
	s.mu.Unlock()
}

// Messages returns a copy of the scope's message list, oldest first.
func (s *Store) Messages(scope Scope) []*Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.messages[scope]
	out := make([]*Message, len(list))
	for i, m := range list {
		out[i] = m.clone()
	}
	return out
}

// Get returns a message copy by server id.
func (s *Store) Get(serverID string) (*Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[serverID]
	if !ok {
		return nil, false
	}
	return m.clone(), true
}

// SetSummaries replaces the overview list wholesale (REST refresh). Unread
// counters from the server win over locally accumulated ones.
func (s *Store) SetSummaries(rows []Summary) {
	s.mu.Lock()
	s.summaries = make(map[Scope]*Summary, len(rows))
	for i := range rows {
		row := rows[i]
		s.summaries[row.Scope] = &row
	}
	s.mu.Unlock()

	s.notify(Event{Type: EventSummaries})
}

// Summaries returns overview rows, most recent activity first.
func (s *Store) Summaries() []Summary {
	s.mu.RLock()
	rows := make([]Summary, 0, len(s.summaries))
	for _, sum := range s.summaries {
		rows = append(rows, *sum)
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].LastAt.After(rows[j].LastAt) })
	return rows
}

// Subscribe returns a channel of store events and a cancel func.
func (s *Store) Subscribe() (ch chan Event, cancel func()) {
	ch = make(chan Event, 64)

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

func (s *Store) notify(evt Event) {
	s.listenerMu.RLock()
	for ch := range s.listeners {
		select {
		case ch <- evt:
		default:
			// Listener buffer full, skip
		}
	}
	s.listenerMu.RUnlock()
}

// insertLocked appends and trims the scope list to cap, evicting oldest.
func (s *Store) insertLocked(m *Message) {
	list := append(s.messages[m.Scope], m)
	for len(list) > s.cap {
		old := list[0]
		list = list[1:]
		if old.ID != "" {
			delete(s.byID, old.ID)
		}
		delete(s.byLocalID, old.LocalID)
		log.Printf("STORE: evicted %s from %s/%s (cap %d)", old.LocalID, m.Scope.Kind, m.Scope.ID, s.cap)
	}
	s.messages[m.Scope] = list
	if m.ID != "" {
		s.byID[m.ID] = m
	}
	s.byLocalID[m.LocalID] = m
}

func (s *Store) removeLocked(m *Message) {
	list := s.messages[m.Scope]
	for i, cur := range list {
		if cur == m {
			s.messages[m.Scope] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if m.ID != "" {
		delete(s.byID, m.ID)
	}
	delete(s.byLocalID, m.LocalID)
}

func (s *Store) summaryLocked(scope Scope) *Summary {
	sum, ok := s.summaries[scope]
	if !ok {
		sum = &Summary{Scope: scope}
		s.summaries[scope] = sum
	}
	return sum
}

func (s *Store) lastLocked(scope Scope) *Message {
	list := s.messages[scope]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}
