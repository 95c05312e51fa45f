package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/tahakhatip2-tech/hakeem-backend/internal/chatlog"
	"github.com/tahakhatip2-tech/hakeem-backend/internal/transport"
)

type fakeChatStore struct {
	records []chatlog.Record
	seen    map[string]bool
}

func (f *fakeChatStore) Append(ctx context.Context, rec chatlog.Record) (chatlog.Message, bool, error) {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	key := rec.TenantID + "/" + rec.ExternalID
	if rec.ExternalID != "" && f.seen[key] {
		return chatlog.Message{}, false, nil
	}
	f.seen[key] = true
	f.records = append(f.records, rec)
	return chatlog.Message{ID: "m-1", Body: rec.Body, Direction: rec.Direction}, true, nil
}

func liveEvent() transport.InboundEvent {
	return transport.InboundEvent{
		ExternalID: "3EB0ABCDEF",
		Sender:     "962790001122@s.whatsapp.net",
		PushName:   "Ahmad",
		Text:       "مرحبا",
		Timestamp:  time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC),
	}
}

func TestIngestPersistsCanonicalRecord(t *testing.T) {
	t.Parallel()

	store := &fakeChatStore{}
	p := NewPipeline(nil, store)

	res, err := p.Ingest(context.Background(), "clinic-1", liveEvent())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res == nil {
		t.Fatalf("expected a result")
	}
	if res.Phone != "962790001122" {
		t.Fatalf("unexpected phone: %s", res.Phone)
	}
	if len(store.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(store.records))
	}
	if store.records[0].Direction != chatlog.DirectionInbound {
		t.Fatalf("unexpected direction: %s", store.records[0].Direction)
	}
}

func TestIngestDuplicateExternalID(t *testing.T) {
	t.Parallel()

	store := &fakeChatStore{}
	p := NewPipeline(nil, store)

	if _, err := p.Ingest(context.Background(), "clinic-1", liveEvent()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	res, err := p.Ingest(context.Background(), "clinic-1", liveEvent())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res != nil {
		t.Fatalf("expected duplicate to be dropped")
	}
	if len(store.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(store.records))
	}
}

func TestIngestFilters(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*transport.InboundEvent)
	}{
		{"self echo", func(e *transport.InboundEvent) { e.IsFromMe = true }},
		{"history sync", func(e *transport.InboundEvent) { e.IsHistory = true }},
		{"group sender", func(e *transport.InboundEvent) { e.IsGroup = true }},
		{"broadcast", func(e *transport.InboundEvent) { e.IsBroadcast = true }},
		{"empty body", func(e *transport.InboundEvent) { e.Text = "   " }},
		{"status sender", func(e *transport.InboundEvent) {
			e.Sender = "status@broadcast"
			e.SenderAlt = ""
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeChatStore{}
			p := NewPipeline(nil, store)
			evt := liveEvent()
			tc.mutate(&evt)
			res, err := p.Ingest(context.Background(), "clinic-1", evt)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if res != nil || len(store.records) != 0 {
				t.Fatalf("expected event to be dropped")
			}
		})
	}
}

func TestCanonicalPhonePrefersResolvedAlt(t *testing.T) {
	t.Parallel()

	phone, ok := CanonicalPhone("123456789012345@lid", "962795556677@s.whatsapp.net")
	if !ok {
		t.Fatalf("expected canonical identity")
	}
	if phone != "962795556677" {
		t.Fatalf("expected phone identity, got %s", phone)
	}

	// Subsequent lookups with the direct phone form hit the same identity.
	direct, ok := CanonicalPhone("962795556677:3@s.whatsapp.net", "")
	if !ok || direct != phone {
		t.Fatalf("expected %s, got %s", phone, direct)
	}
}

func TestCanonicalPhoneAliasOnly(t *testing.T) {
	t.Parallel()

	phone, ok := CanonicalPhone("123456789012345@lid", "")
	if !ok || phone != "123456789012345" {
		t.Fatalf("unexpected alias identity: %s", phone)
	}
}

func TestCanonicalPhoneRejectsNonIndividual(t *testing.T) {
	t.Parallel()

	if _, ok := CanonicalPhone("120363041234567890@g.us", ""); ok {
		t.Fatalf("expected group jid to be rejected")
	}
	if _, ok := CanonicalPhone("", ""); ok {
		t.Fatalf("expected empty sender to be rejected")
	}
}
