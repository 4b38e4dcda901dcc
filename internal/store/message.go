package store

import (
	"time"

	"github.com/google/uuid"
)

// ScopeKind says whether a scope is a 1:1 conversation or a group.
type ScopeKind string

const (
	ScopeConversation ScopeKind = "conversation"
	ScopeGroup        ScopeKind = "group"
)

// Scope identifies the one conversation or group a message belongs to.
// A message never belongs to both; the pair is the map key for all lists.
type Scope struct {
	Kind ScopeKind `json:"kind"`
	ID   string    `json:"id"`
}

// Conversation returns a 1:1 scope.
func Conversation(id string) Scope { return Scope{Kind: ScopeConversation, ID: id} }

// Group returns a group scope.
func Group(id string) Scope { return Scope{Kind: ScopeGroup, ID: id} }

// MessageType is the content kind of a message.
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
	TypeFile  MessageType = "file"
)

// Reaction is one (user, emoji) pair on a message. Uniqueness per
// (message, user, emoji): re-applying the same pair removes it.
type Reaction struct {
	UserID string `json:"user_id"`
	Emoji  string `json:"emoji"`
}

// Message is one chat message held in memory. ID is the server-assigned id
// and is empty on an optimistic draft until Reconcile confirms it; LocalID
// is always set and identifies the draft during reconciliation.
type Message struct {
	ID        string      `json:"id,omitempty"`
	LocalID   string      `json:"local_id"`
	Scope     Scope       `json:"scope"`
	SenderID  string      `json:"sender_id"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	CreatedAt time.Time   `json:"created_at"`
	Edited    bool        `json:"edited"`
	Read      bool        `json:"read"`
	ReplyTo   string      `json:"reply_to,omitempty"`
	Reactions []Reaction  `json:"reactions,omitempty"`
}

// NewDraft creates an optimistic local message awaiting server confirmation.
func NewDraft(scope Scope, senderID, content string, typ MessageType) *Message {
	if typ == "" {
		typ = TypeText
	}
	return &Message{
		LocalID:   uuid.NewString(),
		Scope:     scope,
		SenderID:  senderID,
		Content:   content,
		Type:      typ,
		CreatedAt: time.Now(),
	}
}

// clone returns a copy safe to hand out of the store.
func (m *Message) clone() *Message {
	cp := *m
	if len(m.Reactions) > 0 {
		cp.Reactions = append([]Reaction(nil), m.Reactions...)
	}
	return &cp
}

// HasReaction reports whether user already reacted with emoji.
func (m *Message) HasReaction(userID, emoji string) bool {
	for _, r := range m.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			return true
		}
	}
	return false
}
