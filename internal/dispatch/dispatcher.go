// Package dispatch routes decoded realtime envelopes to the store, the
// presence tracker, and the call manager. Each envelope produces exactly one
// state transition (or none, for duplicates and unknown kinds), so a replayed
// frame can never double-apply.
package dispatch

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/campushub/realtime/internal/call"
	"github.com/campushub/realtime/internal/presence"
	"github.com/campushub/realtime/internal/proto"
	"github.com/campushub/realtime/internal/store"
	"github.com/campushub/realtime/internal/util"
)

// CallHandler receives the call-* envelope kinds. Implemented by call.Manager.
type CallHandler interface {
	HandleOffer(senderID, callerName string, kind call.Kind, offer []byte)
	HandleAnswer(answer []byte)
	HandleCandidate(cand []byte)
	HandleRemoteEnd()
	HandleRemoteReject()
}

// OverviewFetcher refreshes summary rows after an append. Implemented by
// rest.Client.
type OverviewFetcher interface {
	Overview(ctx context.Context) ([]store.Summary, error)
}

// Archiver persists applied message mutations. Implemented by
// history.Archive. Archive failures are logged, never fatal.
type Archiver interface {
	Record(m *store.Message) error
	Delete(id string) error
	MarkRead(id string) error
	SetContent(id, content string) error
}

// Config wires a Dispatcher. Overview and Archive may be nil.
type Config struct {
	SelfID   string
	Store    *store.Store
	Presence *presence.Tracker
	Calls    CallHandler
	Overview OverviewFetcher
	Archive  Archiver
}

// Dispatcher consumes raw frames from a transport subscription.
type Dispatcher struct {
	selfID   string
	store    *store.Store
	presence *presence.Tracker
	calls    CallHandler
	overview OverviewFetcher
	archive  Archiver

	refreshing atomic.Bool
}

// New creates a dispatcher.
func New(cfg Config) *Dispatcher {
	return &Dispatcher{
		selfID:   cfg.SelfID,
		store:    cfg.Store,
		presence: cfg.Presence,
		calls:    cfg.Calls,
		overview: cfg.Overview,
		archive:  cfg.Archive,
	}
}

// Run decodes and applies frames until the channel closes. Malformed frames
// are logged and dropped; decoding never stops the loop.
func (d *Dispatcher) Run(frames <-chan []byte) {
	for raw := range frames {
		p, err := proto.Decode(raw)
		if err != nil {
			log.Printf("DISPATCH: drop malformed frame: %v", err)
			continue
		}
		d.Apply(p)
	}
	log.Printf("DISPATCH: frame channel closed")
}

// Apply routes one decoded payload to its single owner.
func (d *Dispatcher) Apply(p proto.Payload) {
	switch v := p.(type) {
	case *proto.OnlineUsers:
		d.presence.SetOnline(v.Users)

	case *proto.UserStatus:
		d.presence.SetStatus(v.UserID, v.Status == proto.StatusOnline)

	case *proto.Message:
		d.applyMessage(directMessage(v))

	case *proto.GroupMessage:
		d.applyMessage(groupMessage(v))

	case *proto.UserTyping:
		if v.UserID != d.selfID {
			d.presence.StartTyping(typingScope(v.ConversationID, v.GroupID, v.UserID), v.UserID)
		}

	case *proto.UserStopTyping:
		d.presence.StopTyping(typingScope(v.ConversationID, v.GroupID, v.UserID), v.UserID)

	case *proto.GroupTyping:
		if v.UserID != "" && v.UserID != d.selfID {
			d.presence.StartTyping(presence.GroupScope(v.GroupID), v.UserID)
		}

	case *proto.GroupStopTyping:
		if v.UserID != "" {
			d.presence.StopTyping(presence.GroupScope(v.GroupID), v.UserID)
		}

	case *proto.MessageEdited:
		if d.store.ApplyEdit(v.MessageID, v.Content) && d.archive != nil {
			if err := d.archive.SetContent(v.MessageID, v.Content); err != nil {
				log.Printf("DISPATCH: archive edit %s: %v", v.MessageID, err)
			}
		}

	case *proto.MessageDeleted:
		if d.store.ApplyDelete(v.MessageID) && d.archive != nil {
			if err := d.archive.Delete(v.MessageID); err != nil {
				log.Printf("DISPATCH: archive delete %s: %v", v.MessageID, err)
			}
		}

	case *proto.MessageSeen:
		if d.store.MarkSeen(v.MessageID) && d.archive != nil {
			if err := d.archive.MarkRead(v.MessageID); err != nil {
				log.Printf("DISPATCH: archive seen %s: %v", v.MessageID, err)
			}
		}

	case *proto.CallOffer:
		d.calls.HandleOffer(v.SenderID, v.CallerName, callKind(v.CallType), v.Offer)

	case *proto.CallAnswer:
		d.calls.HandleAnswer(v.Answer)

	case *proto.CallReject:
		d.calls.HandleRemoteReject()

	case *proto.CallEnd:
		d.calls.HandleRemoteEnd()

	case *proto.ICECandidate:
		d.calls.HandleCandidate(v.Candidate)

	case *proto.Typing, *proto.StopTyping:
		// Outbound-only kinds; a server should not echo them back.

	case proto.Unknown:
		log.Printf("DISPATCH: ignoring unknown kind %q", v.Type)
	}
}

// applyMessage appends one realtime message. Duplicates (the realtime copy of
// an already reconciled optimistic send, or a replayed frame) are no-ops and
// trigger neither archive writes nor a summary refresh.
func (d *Dispatcher) applyMessage(m *store.Message) {
	if !d.store.Append(m) {
		return
	}
	if d.archive != nil {
		if err := d.archive.Record(m); err != nil {
			log.Printf("DISPATCH: archive %s: %v", m.ID, err)
		}
	}
	d.refreshSummaries()
}

// refreshSummaries re-fetches overview rows in the background. At most one
// refresh runs at a time; appends landing during a refresh ride on it.
func (d *Dispatcher) refreshSummaries() {
	if d.overview == nil || !d.refreshing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer d.refreshing.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), util.DefaultFetchTimeout)
		defer cancel()

		rows, err := d.overview.Overview(ctx)
		if err != nil {
			log.Printf("DISPATCH: summary refresh failed: %v", err)
			return
		}
		d.store.SetSummaries(rows)
	}()
}

func directMessage(v *proto.Message) *store.Message {
	return &store.Message{
		ID:        v.MessageID,
		Scope:     store.Conversation(v.ConversationID),
		SenderID:  v.SenderID,
		Content:   v.Content,
		Type:      messageType(v.MessageType),
		CreatedAt: time.UnixMilli(v.SentAt),
		ReplyTo:   v.ReplyTo,
	}
}

func groupMessage(v *proto.GroupMessage) *store.Message {
	return &store.Message{
		ID:        v.MessageID,
		Scope:     store.Group(v.GroupID),
		SenderID:  v.SenderID,
		Content:   v.Content,
		Type:      messageType(v.MessageType),
		CreatedAt: time.UnixMilli(v.SentAt),
		ReplyTo:   v.ReplyTo,
	}
}

func callKind(s string) call.Kind {
	if s == proto.CallVideo {
		return call.KindVideo
	}
	return call.KindAudio
}

func messageType(s string) store.MessageType {
	switch s {
	case proto.ContentImage:
		return store.TypeImage
	case proto.ContentFile:
		return store.TypeFile
	default:
		return store.TypeText
	}
}

// typingScope picks the scope key for an inbound typing event: conversation
// if set, then group, else the sender themselves (server omitted both).
func typingScope(conversationID, groupID, userID string) string {
	switch {
	case conversationID != "":
		return presence.ConversationScope(conversationID)
	case groupID != "":
		return presence.GroupScope(groupID)
	default:
		return presence.UserScope(userID)
	}
}
