package presence

import (
	"reflect"
	"testing"
	"time"
)

func TestOnlineSnapshot(t *testing.T) {
	tr := NewTracker(0)
	defer tr.Close()

	tr.SetOnline([]string{"u2", "u1"})
	if got := tr.Online(); !reflect.DeepEqual(got, []string{"u1", "u2"}) {
		t.Fatalf("expected sorted online set, got %v", got)
	}

	// A later snapshot replaces wholesale.
	tr.SetOnline([]string{"u3"})
	if tr.IsOnline("u1") {
		t.Fatal("u1 should be gone after replacement snapshot")
	}
	if !tr.IsOnline("u3") {
		t.Fatal("u3 should be online")
	}
}

func TestStatusIdempotent(t *testing.T) {
	tr := NewTracker(0)
	defer tr.Close()

	ch, cancel := tr.Subscribe()
	defer cancel()

	tr.SetStatus("u1", true)
	tr.SetStatus("u1", true) // repeat must emit nothing
	tr.SetStatus("u1", false)
	tr.SetStatus("u1", false)

	var events []EventType
	timeout := time.After(time.Second)
	for len(events) < 2 {
		select {
		case evt := <-ch:
			events = append(events, evt.Type)
		case <-timeout:
			t.Fatalf("expected 2 events, got %v", events)
		}
	}
	select {
	case evt := <-ch:
		t.Fatalf("unexpected extra event %s", evt.Type)
	case <-time.After(50 * time.Millisecond):
	}
	if events[0] != EventOnline || events[1] != EventOffline {
		t.Fatalf("expected online then offline, got %v", events)
	}
}

func TestTypingExpiry(t *testing.T) {
	tr := NewTracker(40 * time.Millisecond)
	defer tr.Close()

	scope := ConversationScope("c1")
	tr.StartTyping(scope, "u2")
	if got := tr.Typing(scope); !reflect.DeepEqual(got, []string{"u2"}) {
		t.Fatalf("expected u2 typing, got %v", got)
	}

	time.Sleep(100 * time.Millisecond)
	if got := tr.Typing(scope); len(got) != 0 {
		t.Fatalf("expected typing entry expired, got %v", got)
	}
}

func TestTypingRearmExtends(t *testing.T) {
	tr := NewTracker(60 * time.Millisecond)
	defer tr.Close()

	scope := GroupScope("g1")

	// Keystroke events arrive faster than the TTL; the entry must stay
	// visible the whole time without dropping out between timers.
	tr.StartTyping(scope, "u2")
	for i := 0; i < 4; i++ {
		time.Sleep(30 * time.Millisecond)
		if got := tr.Typing(scope); len(got) != 1 {
			t.Fatalf("entry flickered out at step %d: %v", i, got)
		}
		tr.StartTyping(scope, "u2")
	}

	time.Sleep(150 * time.Millisecond)
	if got := tr.Typing(scope); len(got) != 0 {
		t.Fatalf("expected expiry after events stopped, got %v", got)
	}
}

func TestStopTypingImmediate(t *testing.T) {
	tr := NewTracker(time.Minute)
	defer tr.Close()

	scope := ConversationScope("c1")
	tr.StartTyping(scope, "u2")
	tr.StopTyping(scope, "u2")
	if got := tr.Typing(scope); len(got) != 0 {
		t.Fatalf("expected immediate removal, got %v", got)
	}

	// Stop for an absent entry emits nothing.
	ch, cancel := tr.Subscribe()
	defer cancel()
	tr.StopTyping(scope, "ghost")
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event %s", evt.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTypingPerScope(t *testing.T) {
	tr := NewTracker(time.Minute)
	defer tr.Close()

	tr.StartTyping(ConversationScope("c1"), "u2")
	tr.StartTyping(GroupScope("g1"), "u2")
	tr.StopTyping(ConversationScope("c1"), "u2")

	if got := tr.Typing(GroupScope("g1")); len(got) != 1 {
		t.Fatalf("group entry must survive conversation stop, got %v", got)
	}
}
