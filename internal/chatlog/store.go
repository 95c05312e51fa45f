// Package chatlog persists chats and messages per clinic.
package chatlog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS chats (
	id UUID PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	phone TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	last_message TEXT NOT NULL DEFAULT '',
	last_message_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	unread INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'active',
	UNIQUE (tenant_id, phone)
);
CREATE TABLE IF NOT EXISTS messages (
	id UUID PRIMARY KEY,
	chat_id UUID NOT NULL REFERENCES chats(id),
	direction TEXT NOT NULL,
	external_id TEXT,
	body TEXT NOT NULL,
	ts TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL DEFAULT 'delivered'
);
CREATE UNIQUE INDEX IF NOT EXISTS messages_chat_external_idx
	ON messages (chat_id, external_id) WHERE external_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS messages_chat_ts_idx ON messages (chat_id, ts);
`

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("ensure chatlog schema: %w", err)
	}
	return nil
}

// Append persists one message. The chat row is created on first contact and
// its preview fields updated on every stored message; inbound messages bump
// the unread counter, outbound ones do not. A message whose external id was
// already stored for the chat is a duplicate: nothing is written and created
// is false, so redelivered events cannot double-count unread.
func (s *Store) Append(ctx context.Context, rec Record) (Message, bool, error) {
	if strings.TrimSpace(rec.TenantID) == "" {
		return Message{}, false, fmt.Errorf("tenant id is required")
	}
	phone := strings.TrimSpace(rec.Phone)
	if phone == "" {
		return Message{}, false, fmt.Errorf("phone is required")
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Message{}, false, err
	}
	defer tx.Rollback(ctx)

	var chatID string
	err = tx.QueryRow(ctx, `
		INSERT INTO chats (id, tenant_id, phone, display_name, last_message_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, phone) DO UPDATE
			SET display_name = CASE
				WHEN chats.display_name = '' THEN EXCLUDED.display_name
				ELSE chats.display_name
			END
		RETURNING id`,
		uuid.NewString(), rec.TenantID, phone, strings.TrimSpace(rec.DisplayName), ts,
	).Scan(&chatID)
	if err != nil {
		return Message{}, false, fmt.Errorf("upsert chat: %w", err)
	}

	msg := Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Direction: rec.Direction,
		Body:      rec.Body,
		Timestamp: ts,
		Status:    "delivered",
	}
	externalID := strings.TrimSpace(rec.ExternalID)
	var inserted string
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (id, chat_id, direction, external_id, body, ts)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
		ON CONFLICT (chat_id, external_id) WHERE external_id IS NOT NULL DO NOTHING
		RETURNING id`,
		msg.ID, chatID, string(rec.Direction), externalID, rec.Body, ts,
	).Scan(&inserted)
	if err == pgx.ErrNoRows {
		// Duplicate delivery of a known external id.
		return Message{}, false, tx.Commit(ctx)
	}
	if err != nil {
		return Message{}, false, fmt.Errorf("insert message: %w", err)
	}
	msg.ExternalID = externalID

	unreadDelta := 0
	if rec.Direction == DirectionInbound {
		unreadDelta = 1
	}
	_, err = tx.Exec(ctx, `
		UPDATE chats SET
			last_message = $2,
			last_message_at = GREATEST(last_message_at, $3),
			unread = unread + $4
		WHERE id = $1`,
		chatID, rec.Body, ts, unreadDelta,
	)
	if err != nil {
		return Message{}, false, fmt.Errorf("update chat preview: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Message{}, false, err
	}
	return msg, true, nil
}

func (s *Store) GetChat(ctx context.Context, tenantID, phone string) (Chat, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, phone, display_name, last_message, last_message_at, unread, status
		FROM chats WHERE tenant_id = $1 AND phone = $2`,
		tenantID, strings.TrimSpace(phone),
	)
	return scanChat(row)
}

func (s *Store) ListChats(ctx context.Context, tenantID string) ([]Chat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, phone, display_name, last_message, last_message_at, unread, status
		FROM chats WHERE tenant_id = $1 ORDER BY last_message_at DESC`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chats := make([]Chat, 0)
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

func (s *Store) ListMessages(ctx context.Context, tenantID, chatID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT m.id, m.chat_id, m.direction, COALESCE(m.external_id, ''), m.body, m.ts, m.status
		FROM messages m JOIN chats c ON c.id = m.chat_id
		WHERE c.tenant_id = $1 AND m.chat_id = $2
		ORDER BY m.ts ASC LIMIT $3`,
		tenantID, chatID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

// History returns the chat's most recent messages in oldest-first order, for
// building the reply-generation context.
func (s *Store) History(ctx context.Context, tenantID, phone string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT m.id, m.chat_id, m.direction, COALESCE(m.external_id, ''), m.body, m.ts, m.status
		FROM messages m JOIN chats c ON c.id = m.chat_id
		WHERE c.tenant_id = $1 AND c.phone = $2
		ORDER BY m.ts DESC LIMIT $3`,
		tenantID, strings.TrimSpace(phone), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *Store) MarkRead(ctx context.Context, tenantID, chatID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE chats SET unread = 0 WHERE tenant_id = $1 AND id = $2`,
		tenantID, chatID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chat not found")
	}
	return nil
}

func scanChat(row pgx.Row) (Chat, error) {
	var chat Chat
	var status string
	err := row.Scan(&chat.ID, &chat.TenantID, &chat.Phone, &chat.DisplayName,
		&chat.LastMessage, &chat.LastMessageAt, &chat.Unread, &status)
	if err == pgx.ErrNoRows {
		return Chat{}, fmt.Errorf("chat not found")
	}
	if err != nil {
		return Chat{}, err
	}
	chat.Status = ChatStatus(status)
	return chat, nil
}

func collectMessages(rows pgx.Rows) ([]Message, error) {
	messages := make([]Message, 0)
	for rows.Next() {
		var msg Message
		var direction string
		if err := rows.Scan(&msg.ID, &msg.ChatID, &direction, &msg.ExternalID,
			&msg.Body, &msg.Timestamp, &msg.Status); err != nil {
			return nil, err
		}
		msg.Direction = Direction(direction)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
