package history

import (
	"testing"
	"time"

	"github.com/campushub/realtime/internal/store"
)

func openArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func msg(id string, at int64) *store.Message {
	return &store.Message{
		ID:        id,
		LocalID:   id,
		Scope:     store.Conversation("c1"),
		SenderID:  "u2",
		Content:   "msg " + id,
		Type:      store.TypeText,
		CreatedAt: time.UnixMilli(at),
	}
}

func TestRecordAndRecent(t *testing.T) {
	a := openArchive(t)

	for i, id := range []string{"m1", "m2", "m3"} {
		if err := a.Record(msg(id, int64(1000+i))); err != nil {
			t.Fatal(err)
		}
	}

	out, err := a.Recent(store.Conversation("c1"), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(out))
	}
	// Oldest first for display.
	if out[0].ID != "m1" || out[2].ID != "m3" {
		t.Fatalf("bad order: %s..%s", out[0].ID, out[2].ID)
	}
	if out[0].Content != "msg m1" || out[0].SenderID != "u2" {
		t.Fatalf("bad fields %+v", out[0])
	}
}

func TestRecentLimitKeepsNewest(t *testing.T) {
	a := openArchive(t)
	for i := 0; i < 5; i++ {
		a.Record(msg(string(rune('a'+i)), int64(1000+i)))
	}

	out, err := a.Recent(store.Conversation("c1"), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2, got %d", len(out))
	}
	// The limit trims the oldest, not the newest.
	if out[0].ID != "d" || out[1].ID != "e" {
		t.Fatalf("expected d,e got %s,%s", out[0].ID, out[1].ID)
	}
}

func TestDraftsNotRecorded(t *testing.T) {
	a := openArchive(t)

	draft := store.NewDraft(store.Conversation("c1"), "me", "pending", store.TypeText)
	if err := a.Record(draft); err != nil {
		t.Fatal(err)
	}
	out, _ := a.Recent(store.Conversation("c1"), 10)
	if len(out) != 0 {
		t.Fatalf("draft hit disk: %d rows", len(out))
	}
}

func TestRecordUpsert(t *testing.T) {
	a := openArchive(t)

	a.Record(msg("m1", 1000))
	updated := msg("m1", 1000)
	updated.Content = "changed"
	updated.Edited = true
	if err := a.Record(updated); err != nil {
		t.Fatal(err)
	}

	out, _ := a.Recent(store.Conversation("c1"), 10)
	if len(out) != 1 {
		t.Fatalf("upsert duplicated row: %d", len(out))
	}
	if out[0].Content != "changed" || !out[0].Edited {
		t.Fatalf("upsert did not update: %+v", out[0])
	}
}

func TestMutations(t *testing.T) {
	a := openArchive(t)
	a.Record(msg("m1", 1000))

	if err := a.SetContent("m1", "edited"); err != nil {
		t.Fatal(err)
	}
	if err := a.MarkRead("m1"); err != nil {
		t.Fatal(err)
	}
	out, _ := a.Recent(store.Conversation("c1"), 10)
	if out[0].Content != "edited" || !out[0].Edited || !out[0].Read {
		t.Fatalf("mutations not applied: %+v", out[0])
	}

	if err := a.Delete("m1"); err != nil {
		t.Fatal(err)
	}
	out, _ = a.Recent(store.Conversation("c1"), 10)
	if len(out) != 0 {
		t.Fatal("delete not applied")
	}
}

func TestScopesIsolated(t *testing.T) {
	a := openArchive(t)
	a.Record(msg("m1", 1000))

	g := msg("m2", 1001)
	g.Scope = store.Group("g1")
	a.Record(g)

	conv, _ := a.Recent(store.Conversation("c1"), 10)
	grp, _ := a.Recent(store.Group("g1"), 10)
	if len(conv) != 1 || len(grp) != 1 {
		t.Fatalf("scope bleed: conv=%d group=%d", len(conv), len(grp))
	}
}

func TestReopenPersists(t *testing.T) {
	dir := t.TempDir()
	a, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	a.Record(msg("m1", 1000))
	a.Close()

	b, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	out, _ := b.Recent(store.Conversation("c1"), 10)
	if len(out) != 1 {
		t.Fatalf("archive lost data across reopen: %d", len(out))
	}
}
