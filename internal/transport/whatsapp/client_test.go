package whatsapp

import (
	"testing"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"
)

func TestParseIndividualTarget(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		target string
		ok     bool
		user   string
	}{
		{"bare phone", "962790001122", true, "962790001122"},
		{"full jid", "962790001122@s.whatsapp.net", true, "962790001122"},
		{"group jid", "120363041234567890@g.us", false, ""},
		{"broadcast", "status@broadcast", false, ""},
		{"empty", "  ", false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			jid, ok := parseIndividualTarget(tc.target)
			if ok != tc.ok {
				t.Fatalf("parseIndividualTarget(%q) ok = %v, want %v", tc.target, ok, tc.ok)
			}
			if ok && jid.User != tc.user {
				t.Fatalf("unexpected user: %s", jid.User)
			}
		})
	}
}

func TestExtractText(t *testing.T) {
	t.Parallel()

	plain := &waE2E.Message{Conversation: proto.String("مرحبا")}
	if got := extractText(plain); got != "مرحبا" {
		t.Fatalf("unexpected text: %q", got)
	}

	extended := &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("quoted reply")},
	}
	if got := extractText(extended); got != "quoted reply" {
		t.Fatalf("unexpected text: %q", got)
	}

	ephemeral := &waE2E.Message{
		EphemeralMessage: &waE2E.FutureProofMessage{
			Message: &waE2E.Message{Conversation: proto.String("disappearing")},
		},
	}
	if got := extractText(ephemeral); got != "disappearing" {
		t.Fatalf("unexpected text: %q", got)
	}

	caption := &waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{Caption: proto.String("see photo")},
	}
	if got := extractText(caption); got != "see photo" {
		t.Fatalf("unexpected text: %q", got)
	}

	if got := extractText(&waE2E.Message{}); got != "" {
		t.Fatalf("expected empty text, got %q", got)
	}
}
