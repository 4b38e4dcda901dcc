// Package rest is the client for the portal's conversation-store API: the
// external collaborator holding conversations, groups, and message history.
// The realtime core reads from it and writes confirmed messages through it;
// it is never the source of truth for realtime state, and a failed call here
// must never take the realtime path down.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/campushub/realtime/internal/store"
	"github.com/campushub/realtime/internal/util"
)

// Client talks to the conversation-store API. All endpoints are idempotent
// and safe to call redundantly after optimistic local updates.
type Client struct {
	baseURL string
	selfID  string
	client  *http.Client
}

// New creates a client for the given portal base URL.
func New(baseURL, selfID string) *Client {
	return &Client{
		baseURL: util.NormalizeURL(baseURL),
		selfID:  selfID,
		client:  &http.Client{Timeout: util.DefaultFetchTimeout},
	}
}

// SendResult is the confirmation for an optimistically sent message.
type SendResult struct {
	MessageID string `json:"messageId"`
	SentAt    int64  `json:"sentAt"` // unix millis
}

// summaryRow is the wire shape of one overview entry.
type summaryRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	LastMessage string `json:"lastMessage"`
	LastAt      int64  `json:"lastAt"`
	Unread      int    `json:"unread"`
}

// messageRow is the wire shape of one history entry.
type messageRow struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId,omitempty"`
	GroupID        string        `json:"groupId,omitempty"`
	SenderID       string        `json:"senderId"`
	Content        string        `json:"content"`
	MessageType    string        `json:"messageType"`
	CreatedAt      int64         `json:"createdAt"`
	Edited         bool          `json:"edited"`
	Read           bool          `json:"read"`
	ReplyTo        string        `json:"replyTo,omitempty"`
	Reactions      []reactionRow `json:"reactions,omitempty"`
}

type reactionRow struct {
	UserID string `json:"userId"`
	Emoji  string `json:"emoji"`
}

// Conversations lists the user's 1:1 conversations as summary rows.
func (c *Client) Conversations(ctx context.Context) ([]store.Summary, error) {
	return c.summaries(ctx, "/api/conversations", store.ScopeConversation)
}

// Groups lists the user's groups as summary rows.
func (c *Client) Groups(ctx context.Context) ([]store.Summary, error) {
	return c.summaries(ctx, "/api/groups", store.ScopeGroup)
}

// Overview fetches conversations and groups in one pass.
func (c *Client) Overview(ctx context.Context) ([]store.Summary, error) {
	convs, err := c.Conversations(ctx)
	if err != nil {
		return nil, err
	}
	groups, err := c.Groups(ctx)
	if err != nil {
		return nil, err
	}
	return append(convs, groups...), nil
}

func (c *Client) summaries(ctx context.Context, path string, kind store.ScopeKind) ([]store.Summary, error) {
	q := url.Values{}
	q.Set("userId", c.selfID)
	var rows []summaryRow
	if err := c.do(ctx, http.MethodGet, path, q, nil, &rows); err != nil {
		return nil, err
	}
	out := make([]store.Summary, 0, len(rows))
	for _, r := range rows {
		out = append(out, store.Summary{
			Scope:       store.Scope{Kind: kind, ID: r.ID},
			Title:       r.Title,
			LastPreview: r.LastMessage,
			LastAt:      time.UnixMilli(r.LastAt),
			Unread:      r.Unread,
		})
	}
	return out, nil
}

// History fetches one page of messages for a scope, newest last. A zero
// before time means the latest page.
func (c *Client) History(ctx context.Context, scope store.Scope, before time.Time, limit int) ([]*store.Message, error) {
	q := url.Values{}
	q.Set("userId", c.selfID)
	switch scope.Kind {
	case store.ScopeGroup:
		q.Set("groupId", scope.ID)
	default:
		q.Set("conversationId", scope.ID)
	}
	if !before.IsZero() {
		q.Set("before", strconv.FormatInt(before.UnixMilli(), 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var rows []messageRow
	if err := c.do(ctx, http.MethodGet, "/api/messages", q, nil, &rows); err != nil {
		return nil, err
	}
	out := make([]*store.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToMessage(r))
	}
	return out, nil
}

// SendMessage posts a draft and returns the server-assigned id for
// reconciliation. receiverID applies to 1:1 sends, memberIDs to groups.
func (c *Client) SendMessage(ctx context.Context, draft *store.Message, receiverID string, memberIDs []string) (SendResult, error) {
	body := map[string]any{
		"senderId":    draft.SenderID,
		"content":     draft.Content,
		"messageType": string(draft.Type),
	}
	if draft.ReplyTo != "" {
		body["replyTo"] = draft.ReplyTo
	}
	switch draft.Scope.Kind {
	case store.ScopeGroup:
		body["groupId"] = draft.Scope.ID
		body["memberIds"] = memberIDs
	default:
		body["conversationId"] = draft.Scope.ID
		body["receiverId"] = receiverID
	}

	var res SendResult
	if err := c.do(ctx, http.MethodPost, "/api/messages", nil, body, &res); err != nil {
		return SendResult{}, err
	}
	return res, nil
}

// EditMessage replaces a message's content.
func (c *Client) EditMessage(ctx context.Context, messageID, content string) error {
	return c.do(ctx, http.MethodPut, "/api/messages/"+url.PathEscape(messageID), nil,
		map[string]any{"content": content}, nil)
}

// DeleteMessage removes a message.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodDelete, "/api/messages/"+url.PathEscape(messageID), nil, nil, nil)
}

// MarkRead marks a whole scope read for this user.
func (c *Client) MarkRead(ctx context.Context, scope store.Scope) error {
	body := map[string]any{"userId": c.selfID}
	switch scope.Kind {
	case store.ScopeGroup:
		body["groupId"] = scope.ID
	default:
		body["conversationId"] = scope.ID
	}
	return c.do(ctx, http.MethodPost, "/api/messages/read", nil, body, nil)
}

// ToggleReaction adds or removes this user's (emoji) reaction on a message;
// the server applies the same toggle semantics as the local store.
func (c *Client) ToggleReaction(ctx context.Context, messageID, emoji string) error {
	return c.do(ctx, http.MethodPost, "/api/messages/"+url.PathEscape(messageID)+"/reactions", nil,
		map[string]any{"userId": c.selfID, "emoji": emoji}, nil)
}

func rowToMessage(r messageRow) *store.Message {
	scope := store.Conversation(r.ConversationID)
	if r.GroupID != "" {
		scope = store.Group(r.GroupID)
	}
	m := &store.Message{
		ID:        r.ID,
		LocalID:   r.ID,
		Scope:     scope,
		SenderID:  r.SenderID,
		Content:   r.Content,
		Type:      store.MessageType(r.MessageType),
		CreatedAt: time.UnixMilli(r.CreatedAt),
		Edited:    r.Edited,
		Read:      r.Read,
		ReplyTo:   r.ReplyTo,
	}
	for _, rr := range r.Reactions {
		m.Reactions = append(m.Reactions, store.Reaction{UserID: rr.UserID, Emoji: rr.Emoji})
	}
	return m
}

// do runs one JSON request. Non-2xx statuses are errors; out may be nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
