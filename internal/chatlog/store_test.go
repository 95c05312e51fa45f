package chatlog

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// testStore connects to the database named by TEST_DATABASE_URL; without it
// the store tests are skipped. Each test works under its own tenant id so
// runs never interfere.
func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), url)
	if err != nil {
		t.Fatalf("connect test database: %v", err)
	}
	t.Cleanup(pool.Close)

	store := NewStore(pool)
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return store
}

func inboundRecord(tenantID, externalID string, ts time.Time) Record {
	return Record{
		TenantID:    tenantID,
		Phone:       "962790001122",
		DisplayName: "Ahmad",
		ExternalID:  externalID,
		Body:        "مرحبا " + externalID,
		Timestamp:   ts,
		Direction:   DirectionInbound,
	}
}

func TestAppendCountsUnreadPerStoredMessage(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	ctx := context.Background()
	tenantID := "t-" + uuid.NewString()
	base := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		rec := inboundRecord(tenantID, fmt.Sprintf("EXT-%d", i), base.Add(time.Duration(i)*time.Minute))
		if _, created, err := store.Append(ctx, rec); err != nil || !created {
			t.Fatalf("append %d: created=%v err=%v", i, created, err)
		}
	}
	chat, err := store.GetChat(ctx, tenantID, "962790001122")
	if err != nil {
		t.Fatalf("get chat: %v", err)
	}
	if chat.Unread != 3 {
		t.Fatalf("expected unread 3, got %d", chat.Unread)
	}

	// Outbound messages never bump the counter.
	out := inboundRecord(tenantID, "EXT-OUT", base.Add(10*time.Minute))
	out.Direction = DirectionOutbound
	if _, created, err := store.Append(ctx, out); err != nil || !created {
		t.Fatalf("append outbound: created=%v err=%v", created, err)
	}
	chat, err = store.GetChat(ctx, tenantID, "962790001122")
	if err != nil {
		t.Fatalf("get chat: %v", err)
	}
	if chat.Unread != 3 {
		t.Fatalf("expected unread to stay 3, got %d", chat.Unread)
	}

	if err := store.MarkRead(ctx, tenantID, chat.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	chat, err = store.GetChat(ctx, tenantID, "962790001122")
	if err != nil {
		t.Fatalf("get chat: %v", err)
	}
	if chat.Unread != 0 {
		t.Fatalf("expected unread 0 after mark read, got %d", chat.Unread)
	}
}

func TestAppendDuplicateExternalIDDoesNotBump(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	ctx := context.Background()
	tenantID := "t-" + uuid.NewString()
	rec := inboundRecord(tenantID, "EXT-DUP", time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))

	if _, created, err := store.Append(ctx, rec); err != nil || !created {
		t.Fatalf("first append: created=%v err=%v", created, err)
	}
	_, created, err := store.Append(ctx, rec)
	if err != nil {
		t.Fatalf("second append: %v", err)
	}
	if created {
		t.Fatalf("expected duplicate external id to be ignored")
	}

	chat, err := store.GetChat(ctx, tenantID, "962790001122")
	if err != nil {
		t.Fatalf("get chat: %v", err)
	}
	if chat.Unread != 1 {
		t.Fatalf("expected unread 1 after duplicate delivery, got %d", chat.Unread)
	}
	messages, err := store.ListMessages(ctx, tenantID, chat.ID, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 stored message, got %d", len(messages))
	}
}

func TestAppendKeepsLastMessageAtMonotonic(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	ctx := context.Background()
	tenantID := "t-" + uuid.NewString()
	newer := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)

	if _, created, err := store.Append(ctx, inboundRecord(tenantID, "EXT-NEW", newer)); err != nil || !created {
		t.Fatalf("append newer: created=%v err=%v", created, err)
	}
	// A delayed delivery with an older timestamp still stores the message but
	// must not move the chat backwards in the inbox ordering.
	if _, created, err := store.Append(ctx, inboundRecord(tenantID, "EXT-OLD", older)); err != nil || !created {
		t.Fatalf("append older: created=%v err=%v", created, err)
	}

	chat, err := store.GetChat(ctx, tenantID, "962790001122")
	if err != nil {
		t.Fatalf("get chat: %v", err)
	}
	if !chat.LastMessageAt.Equal(newer) {
		t.Fatalf("expected last_message_at %s, got %s", newer, chat.LastMessageAt)
	}
	if chat.Unread != 2 {
		t.Fatalf("expected unread 2, got %d", chat.Unread)
	}
}
