// Package autoreply decides whether and how to answer an inbound patient
// message, and executes any booking directives the model emits.
package autoreply

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/tahakhatip2-tech/hakeem-backend/internal/appointments"
	"github.com/tahakhatip2-tech/hakeem-backend/internal/chatlog"
	"github.com/tahakhatip2-tech/hakeem-backend/internal/contacts"
	"github.com/tahakhatip2-tech/hakeem-backend/internal/llm"
	"github.com/tahakhatip2-tech/hakeem-backend/internal/settings"
)

const historyLimit = 10

const msgServiceDown = "عذراً، الخدمة غير متاحة مؤقتاً. الرجاء المحاولة بعد قليل."

// Collaborator seams, defined here so tests can fake them.

type SettingsStore interface {
	Get(ctx context.Context, tenantID, key string) (string, bool, error)
	GetAll(ctx context.Context, tenantID string) (map[string]string, error)
}

type HistoryStore interface {
	History(ctx context.Context, tenantID, phone string, limit int) ([]chatlog.Message, error)
}

type BookingBook interface {
	IsSlotAvailable(ctx context.Context, tenantID string, start time.Time) (bool, error)
	AvailableSlots(ctx context.Context, tenantID string, day time.Time) ([]time.Time, error)
	CreateBooking(ctx context.Context, tenantID, patientID string, start time.Time, notes string) (appointments.Booking, error)
}

type PatientDirectory interface {
	FindOrCreate(ctx context.Context, tenantID, phone, displayName string) (contacts.Patient, error)
}

type Generator interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
}

type Orchestrator struct {
	settings   SettingsStore
	history    HistoryStore
	bookings   BookingBook
	patients   PatientDirectory
	generator  Generator
	logger     *slog.Logger
	loc        *time.Location
	now        func() time.Time
	defaultKey string
}

type Option func(*Orchestrator)

// WithDefaultAPIKey sets a shared key used for tenants that have not
// configured one of their own.
func WithDefaultAPIKey(key string) Option {
	return func(o *Orchestrator) { o.defaultKey = strings.TrimSpace(key) }
}

func NewOrchestrator(
	logger *slog.Logger,
	settingsStore SettingsStore,
	history HistoryStore,
	bookings BookingBook,
	patients PatientDirectory,
	generator Generator,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		settings:  settingsStore,
		history:   history,
		bookings:  bookings,
		patients:  patients,
		generator: generator,
		logger:    logger.With(slog.String("component", "autoreply")),
		loc:       time.Local,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Reply produces the outbound text for an inbound message, or "" when no
// reply should be sent. It never returns an error: every collaborator
// failure is logged and swallowed so the ingestion path stays alive.
func (o *Orchestrator) Reply(ctx context.Context, tenantID, phone, pushName string) string {
	raw, present, err := o.settings.Get(ctx, tenantID, settings.KeyAIEnabled)
	if err != nil {
		o.logger.Error("read ai_enabled failed", slog.String("tenant_id", tenantID), slog.Any("error", err))
		return ""
	}
	if settings.ResolveAIMode(raw, present) == settings.AIDisabled {
		return ""
	}

	values, err := o.settings.GetAll(ctx, tenantID)
	if err != nil {
		o.logger.Error("read settings failed", slog.String("tenant_id", tenantID), slog.Any("error", err))
		return ""
	}
	apiKey := strings.TrimSpace(values[settings.KeyAIAPIKey])
	if apiKey == "" {
		apiKey = o.defaultKey
	}
	if apiKey == "" {
		o.logger.Debug("no api key configured, skipping reply", slog.String("tenant_id", tenantID))
		return ""
	}

	history, err := o.history.History(ctx, tenantID, phone, historyLimit)
	if err != nil {
		o.logger.Error("read history failed", slog.String("tenant_id", tenantID), slog.Any("error", err))
		return ""
	}
	if len(history) == 0 {
		return ""
	}

	now := o.now().In(o.loc)
	today, err := o.bookings.AvailableSlots(ctx, tenantID, now)
	if err != nil {
		o.logger.Error("availability lookup failed", slog.String("tenant_id", tenantID), slog.Any("error", err))
		return ""
	}
	tomorrow, err := o.bookings.AvailableSlots(ctx, tenantID, now.AddDate(0, 0, 1))
	if err != nil {
		o.logger.Error("availability lookup failed", slog.String("tenant_id", tenantID), slog.Any("error", err))
		return ""
	}

	req := llm.Request{
		APIKey:            apiKey,
		SystemInstruction: buildSystemInstruction(values, today, tomorrow, now),
		Messages:          historyMessages(history),
	}
	generated, err := o.generator.Generate(ctx, req)
	if err != nil {
		if llm.IsTransient(err) {
			// Every model in the chain was rate limited or down. Answer with
			// something rather than leaving the patient on read.
			o.logger.Warn("generation exhausted", slog.String("tenant_id", tenantID), slog.Any("error", err))
			return msgServiceDown
		}
		o.logger.Error("generation failed", slog.String("tenant_id", tenantID), slog.Any("error", err))
		return ""
	}

	return o.executeDirectives(ctx, tenantID, phone, pushName, generated)
}

// historyMessages maps the persisted chat tail, oldest first, onto model
// conversation turns. The just-ingested message is the last inbound row.
func historyMessages(history []chatlog.Message) []llm.Message {
	msgs := make([]llm.Message, 0, len(history))
	for _, m := range history {
		role := "user"
		if m.Direction == chatlog.DirectionOutbound {
			role = "model"
		}
		msgs = append(msgs, llm.Message{Role: role, Text: m.Body})
	}
	return msgs
}

func isSlotTaken(err error) bool {
	return errors.Is(err, appointments.ErrSlotTaken)
}
