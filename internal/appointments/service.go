// Package appointments manages the clinic booking book.
package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSlotTaken reports a confirmed booking already occupying the slot.
var ErrSlotTaken = errors.New("appointments: slot already taken")

const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
	StatusDone      = "done"
)

// Clinic working window. Slots start on the hour; the last one begins an
// hour before closing so it finishes inside the window.
const (
	openHour  = 9
	closeHour = 21

	SlotDuration = time.Hour
)

type Booking struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	PatientID string    `json:"patient_id"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	Status    string    `json:"status"`
	Notes     string    `json:"notes"`
}

const schema = `
CREATE TABLE IF NOT EXISTS bookings (
	id UUID PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	patient_id UUID NOT NULL,
	starts_at TIMESTAMPTZ NOT NULL,
	ends_at TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL DEFAULT 'confirmed',
	notes TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS bookings_slot_uniq
	ON bookings (tenant_id, starts_at) WHERE status = 'confirmed';
CREATE INDEX IF NOT EXISTS bookings_tenant_day_idx
	ON bookings (tenant_id, starts_at);
`

type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

func (s *Service) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure bookings schema: %w", err)
	}
	return nil
}

// WithinWorkingHours reports whether a slot starting at start fits inside the
// clinic's 09:00-21:00 window, end inclusive.
func WithinWorkingHours(start time.Time) bool {
	end := start.Add(SlotDuration)
	dayOpen := time.Date(start.Year(), start.Month(), start.Day(), openHour, 0, 0, 0, start.Location())
	dayClose := time.Date(start.Year(), start.Month(), start.Day(), closeHour, 0, 0, 0, start.Location())
	return !start.Before(dayOpen) && !end.After(dayClose)
}

// IsSlotAvailable checks the working window and then looks for an active
// booking overlapping the candidate slot. Cancelled and no-show bookings do
// not block the slot.
func (s *Service) IsSlotAvailable(ctx context.Context, tenantID string, start time.Time) (bool, error) {
	if !WithinWorkingHours(start) {
		return false, nil
	}
	end := start.Add(SlotDuration)
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE tenant_id = $1
			  AND status NOT IN ($2, $3)
			  AND starts_at < $5 AND ends_at > $4
		)`,
		tenantID, StatusCancelled, StatusNoShow, start, end,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check slot: %w", err)
	}
	return !exists, nil
}

// AvailableSlots lists the free hourly slot starts for the given day.
func (s *Service) AvailableSlots(ctx context.Context, tenantID string, day time.Time) ([]time.Time, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	rows, err := s.pool.Query(ctx, `
		SELECT starts_at, ends_at FROM bookings
		WHERE tenant_id = $1
		  AND status NOT IN ($2, $3)
		  AND starts_at < $5 AND ends_at > $4
		ORDER BY starts_at`,
		tenantID, StatusCancelled, StatusNoShow, dayStart, dayStart.AddDate(0, 0, 1),
	)
	if err != nil {
		return nil, fmt.Errorf("list day bookings: %w", err)
	}
	defer rows.Close()

	type span struct{ start, end time.Time }
	var taken []span
	for rows.Next() {
		var sp span
		if err := rows.Scan(&sp.start, &sp.end); err != nil {
			return nil, err
		}
		taken = append(taken, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var free []time.Time
	for hour := openHour; hour < closeHour; hour++ {
		start := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, day.Location())
		end := start.Add(SlotDuration)
		blocked := false
		for _, sp := range taken {
			if sp.start.Before(end) && sp.end.After(start) {
				blocked = true
				break
			}
		}
		if !blocked {
			free = append(free, start)
		}
	}
	return free, nil
}

// CreateBooking inserts a confirmed booking. The partial unique index on
// (tenant_id, starts_at) closes the check-then-insert race: a concurrent
// booking of the same slot surfaces as ErrSlotTaken, never as a double book.
func (s *Service) CreateBooking(ctx context.Context, tenantID, patientID string, start time.Time, notes string) (Booking, error) {
	if !WithinWorkingHours(start) {
		return Booking{}, ErrSlotTaken
	}
	b := Booking{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		PatientID: patientID,
		StartsAt:  start,
		EndsAt:    start.Add(SlotDuration),
		Status:    StatusConfirmed,
		Notes:     notes,
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bookings (id, tenant_id, patient_id, starts_at, ends_at, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.ID, b.TenantID, b.PatientID, b.StartsAt, b.EndsAt, b.Status, b.Notes,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Booking{}, ErrSlotTaken
		}
		return Booking{}, fmt.Errorf("insert booking: %w", err)
	}
	return b, nil
}

// ListForDay returns the tenant's bookings starting within the given day.
func (s *Service) ListForDay(ctx context.Context, tenantID string, day time.Time) ([]Booking, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, patient_id, starts_at, ends_at, status, notes
		FROM bookings
		WHERE tenant_id = $1 AND starts_at >= $2 AND starts_at < $3
		ORDER BY starts_at`,
		tenantID, dayStart, dayStart.AddDate(0, 0, 1),
	)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		var b Booking
		if err := rows.Scan(&b.ID, &b.TenantID, &b.PatientID, &b.StartsAt, &b.EndsAt, &b.Status, &b.Notes); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// UpdateStatus transitions a booking, e.g. to cancelled, which frees its slot.
func (s *Service) UpdateStatus(ctx context.Context, tenantID, bookingID, status string) error {
	switch status {
	case StatusConfirmed, StatusCancelled, StatusNoShow, StatusDone:
	default:
		return fmt.Errorf("unknown booking status %q", status)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE bookings SET status = $3 WHERE tenant_id = $1 AND id = $2`,
		tenantID, bookingID, status,
	)
	if err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
