// Package session owns the per-tenant messaging session lifecycle: pairing,
// resume, reconnect tracking, logout, and routing of inbound traffic into
// the processing pipeline.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tahakhatip2-tech/hakeem-backend/internal/chatlog"
	"github.com/tahakhatip2-tech/hakeem-backend/internal/ingest"
	"github.com/tahakhatip2-tech/hakeem-backend/internal/transport"
)

// ErrNotConnected reports a send attempted before the tenant's session is
// paired and online.
var ErrNotConnected = errors.New("session: not connected")

// ErrNotAddressable reports a send target the transport refused to deliver
// to, such as a group or broadcast identity. Nothing was sent.
var ErrNotAddressable = errors.New("session: target is not an individual chat")

// CredentialStore is the persistence seam for pairing state.
type CredentialStore interface {
	Save(tenantID string, blob []byte) error
	Purge(tenantID string) error
	List() ([]string, error)
}

// Ingestor persists an inbound event and reports the canonical result.
type Ingestor interface {
	Ingest(ctx context.Context, tenantID string, evt transport.InboundEvent) (*ingest.Result, error)
}

// Replier produces the auto-reply text for an ingested message, or "".
type Replier interface {
	Reply(ctx context.Context, tenantID, phone, pushName string) string
}

// ChatStore records outbound messages next to the inbound log.
type ChatStore interface {
	Append(ctx context.Context, rec chatlog.Record) (chatlog.Message, bool, error)
}

// Status is the dashboard view of one tenant's session.
type Status struct {
	Connected bool   `json:"connected"`
	QRCode    string `json:"qr_code,omitempty"`
}

type tenantSession struct {
	session   transport.Session
	connected bool
	qr        string
}

type Manager struct {
	dialer      transport.Dialer
	creds       CredentialStore
	ingestor    Ingestor
	replier     Replier
	chats       ChatStore
	logger      *slog.Logger
	sendTimeout time.Duration
	replyCtx    context.Context

	mu       sync.Mutex
	sessions map[string]*tenantSession
}

func NewManager(
	log *slog.Logger,
	dialer transport.Dialer,
	creds CredentialStore,
	ingestor Ingestor,
	replier Replier,
	chats ChatStore,
	sendTimeout time.Duration,
) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		dialer:      dialer,
		creds:       creds,
		ingestor:    ingestor,
		replier:     replier,
		chats:       chats,
		logger:      log.With(slog.String("component", "session")),
		sendTimeout: sendTimeout,
		replyCtx:    context.Background(),
		sessions:    map[string]*tenantSession{},
	}
}

// Start dials and connects the tenant's session. Calling Start for a tenant
// that already has a live session is a no-op; the dashboard polls Status for
// the QR code once pairing begins.
//
// The dial and connect happen outside the lock, so a concurrent Logout can
// remove the map entry mid-start. Ownership is re-checked by pointer identity
// after each blocking step: a session whose entry is gone gets disconnected
// instead of kept, so a logout always wins and no untracked transport
// survives.
func (m *Manager) Start(ctx context.Context, tenantID string) error {
	m.mu.Lock()
	if existing := m.sessions[tenantID]; existing != nil {
		m.mu.Unlock()
		m.logger.Debug("session already running", slog.String("tenant_id", tenantID))
		return nil
	}
	entry := &tenantSession{}
	m.sessions[tenantID] = entry
	m.mu.Unlock()

	events := m.eventsFor(tenantID)
	sess, err := m.dialer.Dial(ctx, tenantID, events)
	if err != nil {
		m.dropEntry(tenantID, entry)
		return fmt.Errorf("dial session for %s: %w", tenantID, err)
	}

	m.mu.Lock()
	if m.sessions[tenantID] != entry {
		m.mu.Unlock()
		sess.Disconnect()
		m.logger.Warn("session discarded, logged out during start", slog.String("tenant_id", tenantID))
		return nil
	}
	entry.session = sess
	m.mu.Unlock()

	if err := sess.Connect(ctx); err != nil {
		m.dropEntry(tenantID, entry)
		return fmt.Errorf("connect session for %s: %w", tenantID, err)
	}

	m.mu.Lock()
	kept := m.sessions[tenantID] == entry
	m.mu.Unlock()
	if !kept {
		sess.Disconnect()
		m.logger.Warn("session discarded, logged out during start", slog.String("tenant_id", tenantID))
		return nil
	}
	m.logger.Info("session started", slog.String("tenant_id", tenantID))
	return nil
}

// ResumeAll restarts sessions for every tenant with stored credentials. A
// single tenant failing to resume never blocks the others.
func (m *Manager) ResumeAll(ctx context.Context) {
	tenants, err := m.creds.List()
	if err != nil {
		m.logger.Error("list stored sessions failed", slog.Any("error", err))
		return
	}
	for _, tenantID := range tenants {
		if err := m.Start(ctx, tenantID); err != nil {
			m.logger.Error("session resume failed",
				slog.String("tenant_id", tenantID),
				slog.Any("error", err),
			)
		}
	}
	m.logger.Info("session resume complete", slog.Int("tenants", len(tenants)))
}

func (m *Manager) Status(tenantID string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := m.sessions[tenantID]
	if entry == nil {
		return Status{}
	}
	return Status{Connected: entry.connected, QRCode: entry.qr}
}

// Logout unpairs the device, purges stored credentials, and forgets the
// session. The tenant must scan a fresh QR code to reconnect.
func (m *Manager) Logout(ctx context.Context, tenantID string) error {
	m.mu.Lock()
	entry := m.sessions[tenantID]
	delete(m.sessions, tenantID)
	m.mu.Unlock()

	if entry != nil && entry.session != nil {
		if err := entry.session.Logout(ctx); err != nil {
			m.logger.Warn("transport logout failed",
				slog.String("tenant_id", tenantID),
				slog.Any("error", err),
			)
		}
	}
	if err := m.creds.Purge(tenantID); err != nil {
		return fmt.Errorf("purge credentials for %s: %w", tenantID, err)
	}
	m.logger.Info("session logged out", slog.String("tenant_id", tenantID))
	return nil
}

// SendText delivers a dashboard-initiated message and records it in the chat
// log. A non-addressable target surfaces as ErrNotAddressable.
func (m *Manager) SendText(ctx context.Context, tenantID, phone, text string) (*chatlog.Message, error) {
	return m.send(ctx, tenantID, phone, transport.Message{Text: text})
}

// SendMedia delivers an image or document with an optional caption.
func (m *Manager) SendMedia(ctx context.Context, tenantID, phone string, msg transport.Message) (*chatlog.Message, error) {
	return m.send(ctx, tenantID, phone, msg)
}

func (m *Manager) send(ctx context.Context, tenantID, phone string, msg transport.Message) (*chatlog.Message, error) {
	m.mu.Lock()
	entry := m.sessions[tenantID]
	m.mu.Unlock()
	if entry == nil || entry.session == nil || !entry.session.Connected() {
		return nil, ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, m.sendTimeout)
	defer cancel()

	result, err := entry.session.Send(ctx, phone, msg)
	if err != nil {
		return nil, fmt.Errorf("send to %s: %w", phone, err)
	}
	if result == nil {
		return nil, ErrNotAddressable
	}

	body := msg.Text
	if body == "" && msg.Filename != "" {
		body = msg.Filename
	}
	rec := chatlog.Record{
		TenantID:   tenantID,
		Phone:      phone,
		Direction:  chatlog.DirectionOutbound,
		ExternalID: result.ExternalID,
		Body:       body,
		Timestamp:  result.Timestamp,
	}
	logged, _, err := m.chats.Append(ctx, rec)
	if err != nil {
		// The message is already on the wire; report the delivery even
		// though the log write failed.
		m.logger.Error("record outbound failed",
			slog.String("tenant_id", tenantID),
			slog.Any("error", err),
		)
		return &chatlog.Message{
			Direction:  chatlog.DirectionOutbound,
			ExternalID: result.ExternalID,
			Body:       body,
			Timestamp:  result.Timestamp,
		}, nil
	}
	return &logged, nil
}

// Shutdown disconnects every session without unpairing; stored credentials
// let ResumeAll bring them back on the next boot.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	entries := make(map[string]*tenantSession, len(m.sessions))
	for id, entry := range m.sessions {
		entries[id] = entry
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for tenantID, entry := range entries {
		if entry.session != nil {
			entry.session.Disconnect()
		}
		m.logger.Info("session disconnected", slog.String("tenant_id", tenantID))
	}
}

// dropEntry forgets the tenant's session only if the map still holds this
// exact entry, so a failed or superseded Start never removes a newer session.
func (m *Manager) dropEntry(tenantID string, entry *tenantSession) {
	m.mu.Lock()
	if m.sessions[tenantID] == entry {
		delete(m.sessions, tenantID)
	}
	m.mu.Unlock()
}

func (m *Manager) eventsFor(tenantID string) transport.Events {
	return transport.Events{
		QR: func(code string) {
			m.mu.Lock()
			if entry := m.sessions[tenantID]; entry != nil {
				entry.qr = code
			}
			m.mu.Unlock()
			m.logger.Info("pairing code issued", slog.String("tenant_id", tenantID))
		},
		Connected: func() {
			m.mu.Lock()
			if entry := m.sessions[tenantID]; entry != nil {
				entry.connected = true
				entry.qr = ""
			}
			m.mu.Unlock()
			m.logger.Info("session connected", slog.String("tenant_id", tenantID))
		},
		Disconnected: func(loggedOut bool) {
			m.mu.Lock()
			if entry := m.sessions[tenantID]; entry != nil {
				entry.connected = false
			}
			m.mu.Unlock()
			if !loggedOut {
				// Transient drop. The transport reconnects on its own; the
				// status endpoint just shows offline meanwhile.
				m.logger.Warn("session disconnected, awaiting reconnect", slog.String("tenant_id", tenantID))
				return
			}
			m.logger.Warn("device logged out remotely", slog.String("tenant_id", tenantID))
			m.mu.Lock()
			delete(m.sessions, tenantID)
			m.mu.Unlock()
			if err := m.creds.Purge(tenantID); err != nil {
				m.logger.Error("purge after remote logout failed",
					slog.String("tenant_id", tenantID),
					slog.Any("error", err),
				)
			}
		},
		Credentials: func(blob []byte) {
			if err := m.creds.Save(tenantID, blob); err != nil {
				m.logger.Error("save credentials failed",
					slog.String("tenant_id", tenantID),
					slog.Any("error", err),
				)
			}
		},
		Message: func(evt transport.InboundEvent) {
			m.handleInbound(tenantID, evt)
		},
	}
}

// handleInbound persists the event synchronously, preserving per-chat order,
// then hands the auto-reply work to a goroutine so a slow model call never
// stalls the transport's event loop.
func (m *Manager) handleInbound(tenantID string, evt transport.InboundEvent) {
	ctx, cancel := context.WithTimeout(m.replyCtx, 30*time.Second)
	defer cancel()

	res, err := m.ingestor.Ingest(ctx, tenantID, evt)
	if err != nil {
		m.logger.Error("ingest failed",
			slog.String("tenant_id", tenantID),
			slog.Any("error", err),
		)
		return
	}
	if res == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(m.replyCtx, 2*time.Minute)
		defer cancel()

		reply := m.replier.Reply(ctx, tenantID, res.Phone, res.DisplayName)
		if reply == "" {
			return
		}
		if _, err := m.SendText(ctx, tenantID, res.Phone, reply); err != nil {
			m.logger.Error("send auto-reply failed",
				slog.String("tenant_id", tenantID),
				slog.Any("error", err),
			)
		}
	}()
}
