// Package transport defines the seam between the session manager and the
// WhatsApp network. The wire protocol stays behind this interface.
package transport

import (
	"context"
	"time"
)

// MediaKind classifies an outbound attachment.
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaDocument MediaKind = "document"
)

// Message is an outbound payload: plain text, or text plus one attachment.
type Message struct {
	Text      string
	Media     []byte
	MediaKind MediaKind
	MimeType  string
	Filename  string
}

// SendResult reports the transport-assigned id and timestamp of a delivered
// message.
type SendResult struct {
	ExternalID string
	Timestamp  time.Time
}

// InboundEvent is one live message notification, normalized from the raw
// network event. SenderAlt carries the resolved phone identity when Sender is
// a privacy alias.
type InboundEvent struct {
	ExternalID  string
	Sender      string
	SenderAlt   string
	PushName    string
	Text        string
	Timestamp   time.Time
	IsFromMe    bool
	IsGroup     bool
	IsBroadcast bool
	IsHistory   bool
}

// Events are the hooks a transport surfaces upward. Each hook is optional.
type Events struct {
	QR           func(code string)
	Connected    func()
	Disconnected func(loggedOut bool)
	Credentials  func(blob []byte)
	Message      func(evt InboundEvent)
}

// Session is one live connection to the WhatsApp network for a single clinic.
type Session interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, target string, msg Message) (*SendResult, error)
	Connected() bool
	Disconnect()
	Logout(ctx context.Context) error
}

// Dialer creates a Session for a clinic, wiring its event hooks.
type Dialer interface {
	Dial(ctx context.Context, tenantID string, events Events) (Session, error)
}
