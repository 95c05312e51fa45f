package autoreply

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

// directivePattern matches the booking token the model is instructed to emit:
// [[APPOINTMENT: date | time | patientName | notes]]. Fields are
// pipe-separated; trailing fields may be empty or missing.
var directivePattern = regexp.MustCompile(`\[\[APPOINTMENT:([^\]]*)\]\]`)

var dateTimeLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 3:04 PM",
}

const (
	msgSlotTaken    = "عذراً، هذا الموعد غير متاح. الرجاء اختيار وقت آخر."
	msgBookingError = "عذراً، حدث خطأ أثناء إنشاء الحجز: %s"
)

type directive struct {
	startsAt    time.Time
	patientName string
	notes       string
}

// parseDirective splits the token body and resolves date+time into a single
// instant. A missing or unparsable date/time is a parse failure; name and
// notes are optional.
func parseDirective(body string, loc *time.Location) (directive, bool) {
	fields := strings.Split(body, "|")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	if len(fields) < 2 || fields[0] == "" || fields[1] == "" {
		return directive{}, false
	}
	stamp := fields[0] + " " + fields[1]
	var startsAt time.Time
	parsed := false
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, stamp, loc); err == nil {
			startsAt = t
			parsed = true
			break
		}
	}
	if !parsed {
		return directive{}, false
	}
	d := directive{startsAt: startsAt}
	if len(fields) > 2 {
		d.patientName = fields[2]
	}
	if len(fields) > 3 {
		d.notes = strings.Join(fields[3:], " | ")
	}
	return d, true
}

// executeDirectives processes every booking token in the generated text, in
// order, and returns the text to actually send. Each directive re-queries
// availability at execution time; two directives for the same slot in one
// reply race on purpose, the second losing to the uniqueness constraint.
func (o *Orchestrator) executeDirectives(ctx context.Context, tenantID, phone, fallbackName, text string) string {
	out := directivePattern.ReplaceAllStringFunc(text, func(token string) string {
		body := directivePattern.FindStringSubmatch(token)[1]
		d, ok := parseDirective(body, o.loc)
		if !ok {
			o.logger.Warn("dropping malformed booking directive",
				slog.String("tenant_id", tenantID),
				slog.String("token", token),
			)
			return ""
		}

		available, err := o.bookings.IsSlotAvailable(ctx, tenantID, d.startsAt)
		if err != nil {
			o.logger.Error("availability check failed",
				slog.String("tenant_id", tenantID),
				slog.Any("error", err),
			)
			return fmt.Sprintf(msgBookingError, err)
		}
		if !available {
			return msgSlotTaken
		}

		name := d.patientName
		if name == "" {
			name = fallbackName
		}
		patient, err := o.patients.FindOrCreate(ctx, tenantID, phone, name)
		if err != nil {
			o.logger.Error("patient upsert failed",
				slog.String("tenant_id", tenantID),
				slog.Any("error", err),
			)
			return fmt.Sprintf(msgBookingError, err)
		}

		notes := d.notes
		if d.patientName != "" {
			// Third-party bookings keep the named patient in the notes so the
			// clinic sees who the visit is for.
			notes = strings.TrimSpace(d.patientName + " - " + notes)
			notes = strings.TrimSuffix(notes, " -")
		}
		booking, err := o.bookings.CreateBooking(ctx, tenantID, patient.ID, d.startsAt, notes)
		if err != nil {
			if isSlotTaken(err) {
				return msgSlotTaken
			}
			o.logger.Error("booking insert failed",
				slog.String("tenant_id", tenantID),
				slog.Any("error", err),
			)
			return fmt.Sprintf(msgBookingError, err)
		}

		o.logger.Info("booking created from reply directive",
			slog.String("tenant_id", tenantID),
			slog.String("booking_id", booking.ID),
			slog.Time("starts_at", d.startsAt),
		)
		return ""
	})
	return strings.TrimSpace(out)
}
