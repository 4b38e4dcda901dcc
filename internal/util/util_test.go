package util

import (
	"net/url"
	"reflect"
	"testing"
)

func TestNormalizeURL(t *testing.T) {
	cases := map[string]string{
		"":                             "",
		"  http://x.edu/  ":            "http://x.edu",
		"portal.campus.edu:8080":       "http://portal.campus.edu:8080",
		"https://portal.campus.edu///": "https://portal.campus.edu",
	}
	for in, want := range cases {
		if got := NormalizeURL(in); got != want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSocketURL(t *testing.T) {
	q := url.Values{}
	q.Set("userId", "me")

	got, err := SocketURL("http://portal.campus.edu:8080", "/ws", q)
	if err != nil {
		t.Fatal(err)
	}
	if got != "ws://portal.campus.edu:8080/ws?userId=me" {
		t.Fatalf("unexpected url %q", got)
	}

	got, err = SocketURL("https://portal.campus.edu", "/socket", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "wss://portal.campus.edu/socket" {
		t.Fatalf("expected wss scheme, got %q", got)
	}
}

func TestRing(t *testing.T) {
	r := NewRing[int](3)

	if _, ok := r.Last(); ok {
		t.Fatal("empty ring reported a last element")
	}

	r.Push(1)
	r.Push(2)
	if got := r.Snapshot(); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("partial snapshot %v", got)
	}

	r.Push(3)
	r.Push(4) // evicts 1
	if got := r.Snapshot(); !reflect.DeepEqual(got, []int{2, 3, 4}) {
		t.Fatalf("wrapped snapshot %v", got)
	}
	if r.Len() != 3 {
		t.Fatalf("expected len 3, got %d", r.Len())
	}
	if last, _ := r.Last(); last != 4 {
		t.Fatalf("expected last 4, got %d", last)
	}
}
