// Package whatsapp backs the transport seam with a whatsmeow client. Each
// clinic gets its own session container inside its credential namespace.
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/tahakhatip2-tech/hakeem-backend/internal/credstore"
	"github.com/tahakhatip2-tech/hakeem-backend/internal/transport"
)

type Dialer struct {
	creds  *credstore.Store
	logger *slog.Logger
}

func NewDialer(log *slog.Logger, creds *credstore.Store) *Dialer {
	if log == nil {
		log = slog.Default()
	}
	return &Dialer{
		creds:  creds,
		logger: log.With(slog.String("component", "whatsapp")),
	}
}

func (d *Dialer) Dial(ctx context.Context, tenantID string, ev transport.Events) (transport.Session, error) {
	dir, err := d.creds.Dir(tenantID)
	if err != nil {
		return nil, err
	}
	dbURI := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(dir, "whatsapp.db"))
	container, err := sqlstore.New(ctx, "sqlite3", dbURI, waLog.Noop)
	if err != nil {
		return nil, fmt.Errorf("open session container: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}

	client := whatsmeow.NewClient(device, waLog.Noop)
	client.EnableAutoReconnect = true
	client.AutoTrustIdentity = true

	session := &waSession{
		tenantID: tenantID,
		client:   client,
		events:   ev,
		logger:   d.logger.With(slog.String("tenant_id", tenantID)),
	}
	client.AddEventHandler(session.handleEvent)
	return session, nil
}

type waSession struct {
	tenantID string
	client   *whatsmeow.Client
	events   transport.Events
	logger   *slog.Logger
}

// Connect starts the session. A device without stored credentials goes
// through QR pairing; the QR codes are surfaced through the event hooks.
func (s *waSession) Connect(ctx context.Context) error {
	if s.client.Store.ID == nil {
		qrChan, err := s.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("open qr channel: %w", err)
		}
		go s.consumeQR(qrChan)
	}
	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (s *waSession) consumeQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			if s.events.QR != nil {
				s.events.QR(item.Code)
			}
		case "timeout":
			s.logger.Warn("qr pairing timed out")
		}
	}
}

func (s *waSession) Connected() bool {
	return s.client.IsConnected() && s.client.IsLoggedIn()
}

func (s *waSession) Disconnect() {
	s.client.Disconnect()
}

func (s *waSession) Logout(ctx context.Context) error {
	if err := s.client.Logout(ctx); err != nil {
		// Disconnect regardless; the caller purges credentials either way.
		s.client.Disconnect()
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Send delivers a text or media message. Targets that are not individually
// addressable chats are dropped with a log line and a nil result.
func (s *waSession) Send(ctx context.Context, target string, msg transport.Message) (*transport.SendResult, error) {
	jid, ok := parseIndividualTarget(target)
	if !ok {
		s.logger.Warn("send target is not an individual chat, dropping", slog.String("target", target))
		return nil, nil
	}

	payload, err := s.buildMessage(ctx, msg)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.SendMessage(ctx, jid, payload)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &transport.SendResult{
		ExternalID: string(resp.ID),
		Timestamp:  resp.Timestamp,
	}, nil
}

func (s *waSession) buildMessage(ctx context.Context, msg transport.Message) (*waE2E.Message, error) {
	if len(msg.Media) == 0 {
		return &waE2E.Message{Conversation: proto.String(msg.Text)}, nil
	}

	mediaType := whatsmeow.MediaDocument
	if msg.MediaKind == transport.MediaImage {
		mediaType = whatsmeow.MediaImage
	}
	uploaded, err := s.client.Upload(ctx, msg.Media, mediaType)
	if err != nil {
		return nil, fmt.Errorf("upload media: %w", err)
	}
	if msg.MediaKind == transport.MediaImage {
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Caption:       proto.String(msg.Text),
			Mimetype:      proto.String(msg.MimeType),
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
		}}, nil
	}
	return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
		Caption:       proto.String(msg.Text),
		FileName:      proto.String(msg.Filename),
		Mimetype:      proto.String(msg.MimeType),
		URL:           proto.String(uploaded.URL),
		DirectPath:    proto.String(uploaded.DirectPath),
		MediaKey:      uploaded.MediaKey,
		FileEncSHA256: uploaded.FileEncSHA256,
		FileSHA256:    uploaded.FileSHA256,
		FileLength:    proto.Uint64(uploaded.FileLength),
	}}, nil
}

func (s *waSession) handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.PairSuccess:
		s.snapshotCredentials()
	case *events.PushNameSetting:
		s.snapshotCredentials()
	case *events.Connected:
		if s.events.Connected != nil {
			s.events.Connected()
		}
	case *events.Disconnected:
		if s.events.Disconnected != nil {
			s.events.Disconnected(false)
		}
	case *events.LoggedOut:
		if s.events.Disconnected != nil {
			s.events.Disconnected(true)
		}
	case *events.StreamReplaced:
		s.logger.Warn("stream replaced by another device")
		if s.events.Disconnected != nil {
			s.events.Disconnected(false)
		}
	case *events.Message:
		s.handleMessage(evt)
	}
}

// snapshotCredentials forwards a pairing snapshot upward. The signal keys
// themselves live in the session container; the snapshot records which device
// this namespace is paired to.
func (s *waSession) snapshotCredentials() {
	if s.events.Credentials == nil || s.client.Store.ID == nil {
		return
	}
	blob, err := json.Marshal(map[string]interface{}{
		"device_id": s.client.Store.ID.String(),
		"push_name": s.client.Store.PushName,
		"paired_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	s.events.Credentials(blob)
}

func (s *waSession) handleMessage(evt *events.Message) {
	if s.events.Message == nil {
		return
	}
	senderAlt := ""
	if !evt.Info.SenderAlt.IsEmpty() {
		senderAlt = evt.Info.SenderAlt.String()
	}
	s.events.Message(transport.InboundEvent{
		ExternalID:  string(evt.Info.ID),
		Sender:      evt.Info.Sender.String(),
		SenderAlt:   senderAlt,
		PushName:    evt.Info.PushName,
		Text:        extractText(evt.Message),
		Timestamp:   evt.Info.Timestamp,
		IsFromMe:    evt.Info.IsFromMe,
		IsGroup:     evt.Info.IsGroup,
		IsBroadcast: evt.Info.IsIncomingBroadcast(),
	})
}

// extractText pulls the text body out of the supported message shapes,
// unwrapping view-once and ephemeral envelopes first.
func extractText(msg *waE2E.Message) string {
	unwrap := func(m *waE2E.Message) *waE2E.Message {
		if inner := m.GetViewOnceMessage().GetMessage(); inner != nil {
			return inner
		}
		if inner := m.GetViewOnceMessageV2().GetMessage(); inner != nil {
			return inner
		}
		if inner := m.GetEphemeralMessage().GetMessage(); inner != nil {
			return inner
		}
		return nil
	}
	for i := 0; i < 3 && msg != nil; i++ {
		inner := unwrap(msg)
		if inner == nil {
			break
		}
		msg = inner
	}
	if msg == nil {
		return ""
	}
	if text := msg.GetConversation(); text != "" {
		return text
	}
	if text := msg.GetExtendedTextMessage().GetText(); text != "" {
		return text
	}
	if caption := msg.GetImageMessage().GetCaption(); caption != "" {
		return caption
	}
	if caption := msg.GetDocumentMessage().GetCaption(); caption != "" {
		return caption
	}
	return ""
}

// parseIndividualTarget resolves a phone number or JID string to an
// individual-chat JID. Group, broadcast, status, and newsletter identities
// are rejected.
func parseIndividualTarget(target string) (types.JID, bool) {
	trimmed := strings.TrimSpace(target)
	if trimmed == "" {
		return types.EmptyJID, false
	}
	if !strings.ContainsRune(trimmed, '@') {
		return types.NewJID(trimmed, types.DefaultUserServer), true
	}
	jid, err := types.ParseJID(trimmed)
	if err != nil {
		return types.EmptyJID, false
	}
	if jid.Server != types.DefaultUserServer {
		return types.EmptyJID, false
	}
	return jid, true
}
