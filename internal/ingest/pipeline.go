// Package ingest converts raw inbound WhatsApp events into persisted chat
// and message records.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tahakhatip2-tech/hakeem-backend/internal/chatlog"
	"github.com/tahakhatip2-tech/hakeem-backend/internal/transport"
)

const (
	serverUser  = "s.whatsapp.net"
	serverAlias = "lid"
)

// ChatStore persists normalized records; satisfied by *chatlog.Store.
type ChatStore interface {
	Append(ctx context.Context, rec chatlog.Record) (chatlog.Message, bool, error)
}

// Result describes a successfully ingested message.
type Result struct {
	Message     chatlog.Message
	Phone       string
	DisplayName string
}

type Pipeline struct {
	store  ChatStore
	logger *slog.Logger
}

func NewPipeline(log *slog.Logger, store ChatStore) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		store:  store,
		logger: log.With(slog.String("component", "ingest")),
	}
}

// Ingest filters, canonicalizes, and persists one inbound event. A nil result
// with nil error means the event was dropped (self-echo, history sync, group
// or broadcast sender, empty body) or was a duplicate delivery.
func (p *Pipeline) Ingest(ctx context.Context, tenantID string, evt transport.InboundEvent) (*Result, error) {
	if evt.IsFromMe || evt.IsHistory || evt.IsGroup || evt.IsBroadcast {
		return nil, nil
	}
	body := strings.TrimSpace(evt.Text)
	if body == "" {
		return nil, nil
	}
	phone, ok := CanonicalPhone(evt.Sender, evt.SenderAlt)
	if !ok {
		p.logger.Debug("dropping event from non-individual sender",
			slog.String("tenant_id", tenantID), slog.String("sender", evt.Sender))
		return nil, nil
	}

	msg, created, err := p.store.Append(ctx, chatlog.Record{
		TenantID:    tenantID,
		Phone:       phone,
		DisplayName: strings.TrimSpace(evt.PushName),
		ExternalID:  evt.ExternalID,
		Body:        body,
		Timestamp:   evt.Timestamp,
		Direction:   chatlog.DirectionInbound,
	})
	if err != nil {
		return nil, fmt.Errorf("persist inbound message: %w", err)
	}
	if !created {
		p.logger.Debug("duplicate inbound message",
			slog.String("tenant_id", tenantID), slog.String("external_id", evt.ExternalID))
		return nil, nil
	}
	return &Result{
		Message:     msg,
		Phone:       phone,
		DisplayName: strings.TrimSpace(evt.PushName),
	}, nil
}

// CanonicalPhone resolves the stable identity for a sender. WhatsApp may
// report the same contact as a privacy alias ("...@lid") alongside the real
// phone JID; the phone form wins whenever it is present so one human never
// produces two chats.
func CanonicalPhone(sender, senderAlt string) (string, bool) {
	if user, ok := phoneUser(senderAlt); ok {
		return user, true
	}
	if user, ok := phoneUser(sender); ok {
		return user, true
	}
	// Alias-only observation: key by the alias user until a phone form shows up.
	if user, server, ok := splitJID(sender); ok && server == serverAlias {
		return user, true
	}
	return "", false
}

func phoneUser(jid string) (string, bool) {
	user, server, ok := splitJID(jid)
	if !ok || server != serverUser {
		return "", false
	}
	return user, true
}

func splitJID(jid string) (user, server string, ok bool) {
	trimmed := strings.TrimSpace(jid)
	if trimmed == "" {
		return "", "", false
	}
	at := strings.IndexRune(trimmed, '@')
	if at <= 0 {
		return "", "", false
	}
	user = trimmed[:at]
	// Strip the device part of "phone:device@server".
	if colon := strings.IndexRune(user, ':'); colon > 0 {
		user = user[:colon]
	}
	return user, trimmed[at+1:], user != ""
}
