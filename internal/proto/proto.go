// Package proto defines the envelope kinds exchanged over the realtime
// channel. Wire format: JSON objects with a "type" tag and a "data" object
// carrying the kind-specific fields.
package proto

import (
	"encoding/json"
	"fmt"
)

// Kind tags every envelope on the wire.
type Kind string

const (
	KindOnlineUsers     Kind = "online-users"
	KindUserStatus      Kind = "user-status"
	KindMessage         Kind = "message"
	KindGroupMessage    Kind = "group-message"
	KindTyping          Kind = "typing"
	KindStopTyping      Kind = "stop-typing"
	KindGroupTyping     Kind = "group-typing"
	KindGroupStopTyping Kind = "group-stop-typing"
	KindUserTyping      Kind = "user-typing"
	KindUserStopTyping  Kind = "user-stop-typing"
	KindMessageEdited   Kind = "message-edited"
	KindMessageDeleted  Kind = "message-deleted"
	KindMessageSeen     Kind = "message-seen"
	KindCallOffer       Kind = "call-offer"
	KindCallAnswer      Kind = "call-answer"
	KindCallReject      Kind = "call-reject"
	KindCallEnd         Kind = "call-end"
	KindICECandidate    Kind = "ice-candidate"
)

// UserStatus.Status values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Message content types.
const (
	ContentText  = "text"
	ContentImage = "image"
	ContentFile  = "file"
)

// Call types.
const (
	CallAudio = "audio"
	CallVideo = "video"
)

// Payload is the closed set of envelope payloads. Decode returns exactly one
// of the concrete types below; dispatchers switch on the concrete type.
type Payload interface {
	Kind() Kind
}

// OnlineUsers replaces the presence set wholesale.
type OnlineUsers struct {
	Users []string `json:"users"`
}

// UserStatus adds or removes a single user from the presence set.
type UserStatus struct {
	UserID string `json:"userId"`
	Status string `json:"status"` // online|offline
}

// Message is a 1:1 chat message. The server assigns MessageID before pushing
// a realtime copy, so receivers can dedup against an optimistic local copy.
type Message struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	ReceiverID     string `json:"receiverId"`
	Content        string `json:"content"`
	MessageType    string `json:"messageType"` // text|image|file
	ReplyTo        string `json:"replyTo,omitempty"`
	SentAt         int64  `json:"sentAt"` // unix millis
}

// GroupMessage is a group chat message, fanned out to MemberIDs by the server.
type GroupMessage struct {
	MessageID   string   `json:"messageId"`
	GroupID     string   `json:"groupId"`
	SenderID    string   `json:"senderId"`
	Content     string   `json:"content"`
	MessageType string   `json:"messageType"`
	MemberIDs   []string `json:"memberIds,omitempty"`
	ReplyTo     string   `json:"replyTo,omitempty"`
	SentAt      int64    `json:"sentAt"`
}

// Typing is the outbound 1:1 typing signal.
type Typing struct {
	ReceiverID     string `json:"receiverId"`
	ConversationID string `json:"conversationId,omitempty"`
}

// StopTyping is the outbound 1:1 stop-typing signal.
type StopTyping struct {
	ReceiverID     string `json:"receiverId"`
	ConversationID string `json:"conversationId,omitempty"`
}

// GroupTyping is the group typing signal. Outbound it carries MemberIDs for
// server fanout; inbound it carries the UserID of the typist.
type GroupTyping struct {
	UserID    string   `json:"userId,omitempty"`
	GroupID   string   `json:"groupId"`
	MemberIDs []string `json:"memberIds,omitempty"`
}

// GroupStopTyping is the group stop-typing signal.
type GroupStopTyping struct {
	UserID    string   `json:"userId,omitempty"`
	GroupID   string   `json:"groupId"`
	MemberIDs []string `json:"memberIds,omitempty"`
}

// UserTyping is the inbound typing notification.
type UserTyping struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId,omitempty"`
	GroupID        string `json:"groupId,omitempty"`
}

// UserStopTyping is the inbound stop-typing notification.
type UserStopTyping struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId,omitempty"`
	GroupID        string `json:"groupId,omitempty"`
}

// MessageEdited replaces the content of an existing message.
type MessageEdited struct {
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

// MessageDeleted removes a message by id.
type MessageDeleted struct {
	MessageID string `json:"messageId"`
}

// MessageSeen marks a message read.
type MessageSeen struct {
	MessageID string `json:"messageId"`
}

// CallOffer starts call negotiation. Offer is an opaque session description
// produced by the caller's peer connection.
type CallOffer struct {
	SenderID   string          `json:"senderId"`
	ReceiverID string          `json:"receiverId"`
	CallType   string          `json:"callType"` // audio|video
	CallerName string          `json:"callerName,omitempty"`
	Offer      json.RawMessage `json:"offer"`
}

// CallAnswer completes negotiation.
type CallAnswer struct {
	SenderID   string          `json:"senderId"`
	ReceiverID string          `json:"receiverId"`
	Answer     json.RawMessage `json:"answer"`
}

// CallReject terminates a ringing call.
type CallReject struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

// CallEnd terminates an active or outgoing call.
type CallEnd struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

// ICECandidate carries one discovered candidate, forwarded as discovered.
type ICECandidate struct {
	SenderID   string          `json:"senderId"`
	ReceiverID string          `json:"receiverId"`
	Candidate  json.RawMessage `json:"candidate"`
}

// Unknown is returned by Decode for kinds this client does not understand.
// Dispatchers drop it without error.
type Unknown struct {
	Type Kind
}

func (OnlineUsers) Kind() Kind     { return KindOnlineUsers }
func (UserStatus) Kind() Kind      { return KindUserStatus }
func (Message) Kind() Kind         { return KindMessage }
func (GroupMessage) Kind() Kind    { return KindGroupMessage }
func (Typing) Kind() Kind          { return KindTyping }
func (StopTyping) Kind() Kind      { return KindStopTyping }
func (GroupTyping) Kind() Kind     { return KindGroupTyping }
func (GroupStopTyping) Kind() Kind { return KindGroupStopTyping }
func (UserTyping) Kind() Kind      { return KindUserTyping }
func (UserStopTyping) Kind() Kind  { return KindUserStopTyping }
func (MessageEdited) Kind() Kind   { return KindMessageEdited }
func (MessageDeleted) Kind() Kind  { return KindMessageDeleted }
func (MessageSeen) Kind() Kind     { return KindMessageSeen }
func (CallOffer) Kind() Kind       { return KindCallOffer }
func (CallAnswer) Kind() Kind      { return KindCallAnswer }
func (CallReject) Kind() Kind      { return KindCallReject }
func (CallEnd) Kind() Kind         { return KindCallEnd }
func (ICECandidate) Kind() Kind    { return KindICECandidate }
func (u Unknown) Kind() Kind       { return u.Type }

// frame is the outer wire shape.
type frame struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode marshals a payload into its wire frame.
func Encode(p Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", p.Kind(), err)
	}
	return json.Marshal(frame{Type: p.Kind(), Data: data})
}

// Decode parses one wire frame. Unrecognized kinds decode to Unknown with a
// nil error; only malformed JSON is an error.
func Decode(b []byte) (Payload, error) {
	var f frame
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	var p Payload
	switch f.Type {
	case KindOnlineUsers:
		p = &OnlineUsers{}
	case KindUserStatus:
		p = &UserStatus{}
	case KindMessage:
		p = &Message{}
	case KindGroupMessage:
		p = &GroupMessage{}
	case KindTyping:
		p = &Typing{}
	case KindStopTyping:
		p = &StopTyping{}
	case KindGroupTyping:
		p = &GroupTyping{}
	case KindGroupStopTyping:
		p = &GroupStopTyping{}
	case KindUserTyping:
		p = &UserTyping{}
	case KindUserStopTyping:
		p = &UserStopTyping{}
	case KindMessageEdited:
		p = &MessageEdited{}
	case KindMessageDeleted:
		p = &MessageDeleted{}
	case KindMessageSeen:
		p = &MessageSeen{}
	case KindCallOffer:
		p = &CallOffer{}
	case KindCallAnswer:
		p = &CallAnswer{}
	case KindCallReject:
		p = &CallReject{}
	case KindCallEnd:
		p = &CallEnd{}
	case KindICECandidate:
		p = &ICECandidate{}
	default:
		return Unknown{Type: f.Type}, nil
	}

	if len(f.Data) > 0 {
		if err := json.Unmarshal(f.Data, p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", f.Type, err)
		}
	}
	return p, nil
}
