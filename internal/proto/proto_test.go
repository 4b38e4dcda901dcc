package proto

import (
	"strings"
	"testing"
)

func TestEncodeDecodeRoundtrip(t *testing.T) {
	cases := []Payload{
		&OnlineUsers{Users: []string{"u1", "u2"}},
		&UserStatus{UserID: "u1", Status: StatusOnline},
		&Message{MessageID: "m1", ConversationID: "c1", SenderID: "u1", ReceiverID: "u2", Content: "hello", MessageType: ContentText, SentAt: 1700000000000},
		&GroupMessage{MessageID: "m2", GroupID: "g1", SenderID: "u1", Content: "hi all", MessageType: ContentText, MemberIDs: []string{"u2", "u3"}, SentAt: 1700000000001},
		&UserTyping{UserID: "u2", ConversationID: "c1"},
		&MessageEdited{MessageID: "m1", Content: "edited"},
		&CallOffer{SenderID: "u1", ReceiverID: "u2", CallType: CallVideo, CallerName: "Ann", Offer: []byte(`{"sdp":"x"}`)},
		&ICECandidate{SenderID: "u1", ReceiverID: "u2", Candidate: []byte(`{"candidate":"c"}`)},
	}

	for _, in := range cases {
		t.Run(string(in.Kind()), func(t *testing.T) {
			b, err := Encode(in)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(string(b), `"type":"`+string(in.Kind())+`"`) {
				t.Fatalf("frame missing type tag: %s", b)
			}
			out, err := Decode(b)
			if err != nil {
				t.Fatal(err)
			}
			if out.Kind() != in.Kind() {
				t.Fatalf("expected kind %s, got %s", in.Kind(), out.Kind())
			}
		})
	}
}

func TestDecodeFields(t *testing.T) {
	raw := []byte(`{"type":"message","data":{"messageId":"m1","conversationId":"c1","senderId":"u2","content":"yo","messageType":"text","sentAt":1700000000000}}`)
	p, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := p.(*Message)
	if !ok {
		t.Fatalf("expected *Message, got %T", p)
	}
	if m.MessageID != "m1" || m.ConversationID != "c1" || m.SenderID != "u2" {
		t.Fatalf("bad fields: %+v", m)
	}
	if m.SentAt != 1700000000000 {
		t.Fatalf("expected sentAt to survive, got %d", m.SentAt)
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	p, err := Decode([]byte(`{"type":"server-motd","data":{"text":"welcome"}}`))
	if err != nil {
		t.Fatalf("unknown kind must not error: %v", err)
	}
	u, ok := p.(Unknown)
	if !ok {
		t.Fatalf("expected Unknown, got %T", p)
	}
	if u.Type != "server-motd" {
		t.Fatalf("expected kind server-motd, got %s", u.Type)
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, err := Decode([]byte(`{"type":`)); err == nil {
		t.Fatal("expected error for truncated frame")
	}
	if _, err := Decode([]byte(`{"type":"message","data":{"sentAt":"not-a-number"}}`)); err == nil {
		t.Fatal("expected error for bad payload field")
	}
}
