package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/campushub/realtime/internal/presence"
	"github.com/campushub/realtime/internal/store"
)

// SendTarget names the recipient of a message or typing signal. Exactly one
// of ReceiverID (with ConversationID) or GroupID (with MemberIDs) is set.
type SendTarget struct {
	ReceiverID     string
	ConversationID string
	GroupID        string
	MemberIDs      []string
}

func (t SendTarget) scope() store.Scope {
	if t.GroupID != "" {
		return store.Group(t.GroupID)
	}
	return store.Conversation(t.ConversationID)
}

func (t SendTarget) typing() presence.Target {
	return presence.Target{
		ReceiverID:     t.ReceiverID,
		ConversationID: t.ConversationID,
		GroupID:        t.GroupID,
		MemberIDs:      t.MemberIDs,
	}
}

// SendMessage sends optimistically: the draft appears in the store at once,
// the REST call confirms it in the background of the caller's context, and
// Reconcile binds the server id so the realtime echo dedups. A failed REST
// call removes the draft again.
func (c *Client) SendMessage(ctx context.Context, target SendTarget, content string, typ store.MessageType) (*store.Message, error) {
	draft := store.NewDraft(target.scope(), c.cfg.Identity.UserID, content, typ)
	local := c.store.AppendLocal(draft)
	c.notifier.Stop(target.typing())

	res, err := c.rest.SendMessage(ctx, local, target.ReceiverID, target.MemberIDs)
	if err != nil {
		c.store.DropLocal(local.LocalID)
		return nil, fmt.Errorf("send message: %w", err)
	}
	c.store.Reconcile(local.LocalID, res.MessageID, time.UnixMilli(res.SentAt))

	// Either the reconciled draft or, if the realtime copy won the race, that
	// copy. Both carry the server id.
	confirmed, _ := c.store.Get(res.MessageID)
	if confirmed != nil {
		if err := c.archive.Record(confirmed); err != nil {
			log.Printf("APP: archive send %s: %v", res.MessageID, err)
		}
	}
	return confirmed, nil
}

// EditMessage edits on the server first, then applies locally. The realtime
// message-edited echo re-applies the same content, which is harmless.
func (c *Client) EditMessage(ctx context.Context, messageID, content string) error {
	if err := c.rest.EditMessage(ctx, messageID, content); err != nil {
		return err
	}
	c.store.ApplyEdit(messageID, content)
	if err := c.archive.SetContent(messageID, content); err != nil {
		log.Printf("APP: archive edit %s: %v", messageID, err)
	}
	return nil
}

// DeleteMessage deletes on the server first, then locally.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	if err := c.rest.DeleteMessage(ctx, messageID); err != nil {
		return err
	}
	c.store.ApplyDelete(messageID)
	if err := c.archive.Delete(messageID); err != nil {
		log.Printf("APP: archive delete %s: %v", messageID, err)
	}
	return nil
}

// MarkRead clears the scope's unread counter locally and on the server.
func (c *Client) MarkRead(ctx context.Context, scope store.Scope) error {
	c.store.MarkScopeRead(scope)
	return c.rest.MarkRead(ctx, scope)
}

// ToggleReaction toggles locally first so the UI flips at once, then
// confirms on the server; a REST failure toggles back.
func (c *Client) ToggleReaction(ctx context.Context, messageID, emoji string) error {
	if !c.store.ToggleReaction(messageID, c.cfg.Identity.UserID, emoji) {
		return fmt.Errorf("toggle reaction: message %s not loaded", messageID)
	}
	if err := c.rest.ToggleReaction(ctx, messageID, emoji); err != nil {
		c.store.ToggleReaction(messageID, c.cfg.Identity.UserID, emoji)
		return err
	}
	return nil
}

// History returns older messages for a scope, oldest first. The server is
// authoritative; the local archive answers when the server is unreachable.
func (c *Client) History(ctx context.Context, scope store.Scope, before time.Time, limit int) ([]*store.Message, error) {
	msgs, err := c.rest.History(ctx, scope, before, limit)
	if err == nil {
		return msgs, nil
	}
	log.Printf("APP: history fetch failed, falling back to archive: %v", err)
	return c.archive.Recent(scope, limit)
}

// Keystroke signals typing for the target; call it on every input keystroke.
func (c *Client) Keystroke(target SendTarget) {
	c.notifier.Keystroke(target.typing())
}

// StopTyping signals an explicit stop (input cleared or focus lost).
func (c *Client) StopTyping(target SendTarget) {
	c.notifier.Stop(target.typing())
}
