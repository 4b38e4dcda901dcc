package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/campushub/realtime/internal/store"
)

func TestOverview(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("userId"); got != "me" {
			t.Errorf("expected userId=me, got %q", got)
		}
		switch r.URL.Path {
		case "/api/conversations":
			json.NewEncoder(w).Encode([]map[string]any{
				{"id": "c1", "title": "Bea", "lastMessage": "hi", "lastAt": 1700000000000, "unread": 2},
			})
		case "/api/groups":
			json.NewEncoder(w).Encode([]map[string]any{
				{"id": "g1", "title": "CS101", "lastMessage": "hw due", "lastAt": 1700000000001, "unread": 0},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(404)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "me")
	rows, err := c.Overview(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Scope != store.Conversation("c1") || rows[0].Unread != 2 {
		t.Fatalf("bad conversation row %+v", rows[0])
	}
	if rows[1].Scope != store.Group("g1") || rows[1].Title != "CS101" {
		t.Fatalf("bad group row %+v", rows[1])
	}
}

func TestHistoryQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("groupId") != "g1" || q.Get("limit") != "25" || q.Get("before") == "" {
			t.Errorf("bad query %v", q)
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": "m1", "groupId": "g1", "senderId": "u2", "content": "old", "messageType": "text", "createdAt": 1700000000000,
				"reactions": []map[string]any{{"userId": "u3", "emoji": "👍"}}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "me")
	msgs, err := c.History(context.Background(), store.Group("g1"), time.UnixMilli(1700000001000), 25)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	m := msgs[0]
	if m.Scope != store.Group("g1") || m.ID != "m1" {
		t.Fatalf("bad message %+v", m)
	}
	if !m.HasReaction("u3", "👍") {
		t.Fatal("reactions not mapped")
	}
}

func TestSendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/messages" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["conversationId"] != "c1" || body["receiverId"] != "u2" || body["content"] != "hello" {
			t.Errorf("bad body %v", body)
		}
		json.NewEncoder(w).Encode(map[string]any{"messageId": "srv-1", "sentAt": 1700000000000})
	}))
	defer srv.Close()

	c := New(srv.URL, "me")
	draft := store.NewDraft(store.Conversation("c1"), "me", "hello", store.TypeText)
	res, err := c.SendMessage(context.Background(), draft, "u2", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.MessageID != "srv-1" || res.SentAt != 1700000000000 {
		t.Fatalf("bad result %+v", res)
	}
}

func TestSendGroupMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["groupId"] != "g1" {
			t.Errorf("expected groupId, got %v", body)
		}
		members, _ := body["memberIds"].([]any)
		if len(members) != 2 {
			t.Errorf("expected 2 member ids, got %v", body["memberIds"])
		}
		json.NewEncoder(w).Encode(map[string]any{"messageId": "srv-2", "sentAt": 1})
	}))
	defer srv.Close()

	c := New(srv.URL, "me")
	draft := store.NewDraft(store.Group("g1"), "me", "hi all", store.TypeText)
	if _, err := c.SendMessage(context.Background(), draft, "", []string{"u2", "u3"}); err != nil {
		t.Fatal(err)
	}
}

func TestMutationEndpoints(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
	}))
	defer srv.Close()

	c := New(srv.URL, "me")
	ctx := context.Background()

	if err := c.EditMessage(ctx, "m1", "new"); err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodPut || gotPath != "/api/messages/m1" {
		t.Fatalf("edit hit %s %s", gotMethod, gotPath)
	}

	if err := c.DeleteMessage(ctx, "m1"); err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/api/messages/m1" {
		t.Fatalf("delete hit %s %s", gotMethod, gotPath)
	}

	if err := c.MarkRead(ctx, store.Conversation("c1")); err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodPost || gotPath != "/api/messages/read" {
		t.Fatalf("markread hit %s %s", gotMethod, gotPath)
	}

	if err := c.ToggleReaction(ctx, "m1", "👍"); err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodPost || gotPath != "/api/messages/m1/reactions" {
		t.Fatalf("reaction hit %s %s", gotMethod, gotPath)
	}
}

func TestNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(srv.URL, "me")
	if _, err := c.Conversations(context.Background()); err == nil {
		t.Fatal("expected error for 403")
	}
}
