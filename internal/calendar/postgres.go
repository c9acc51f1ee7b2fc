package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-booking-assistant/internal/availability"
)

var tracer = otel.Tracer("clinic-booking-assistant/internal/calendar")

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresCalendar reads working hours from practitioner_shifts and booked
// intervals from appointments.
type PostgresCalendar struct {
	db  queryer
	loc *time.Location
}

// NewPostgresCalendar builds a calendar over a pgx pool. Appointment times are
// converted to loc before being split into date and clock.
func NewPostgresCalendar(pool *pgxpool.Pool, loc *time.Location) *PostgresCalendar {
	if pool == nil {
		panic("calendar: pgx pool required")
	}
	return newPostgresCalendar(pool, loc)
}

func newPostgresCalendar(db queryer, loc *time.Location) *PostgresCalendar {
	if db == nil {
		panic("calendar: queryer required")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &PostgresCalendar{db: db, loc: loc}
}

// WorkingHours returns the configured shifts. A practitioner without rows gets
// an empty template; the availability service substitutes the default.
func (c *PostgresCalendar) WorkingHours(ctx context.Context, practitionerID string) (availability.WorkingHoursTemplate, error) {
	ctx, span := tracer.Start(ctx, "calendar.working_hours", trace.WithAttributes(
		attribute.String("practitioner_id", practitionerID),
	))
	defer span.End()

	query := `
		SELECT weekday, start_time, end_time
		FROM practitioner_shifts
		WHERE practitioner_id = $1
		ORDER BY weekday, start_time
	`
	rows, err := c.db.Query(ctx, query, practitionerID)
	if err != nil {
		span.RecordError(err)
		return availability.WorkingHoursTemplate{}, fmt.Errorf("calendar: query shifts: %w", err)
	}
	defer rows.Close()

	tmpl := availability.WorkingHoursTemplate{PractitionerID: practitionerID}
	for rows.Next() {
		var (
			weekday    int
			start, end string
		)
		if err := rows.Scan(&weekday, &start, &end); err != nil {
			span.RecordError(err)
			return availability.WorkingHoursTemplate{}, fmt.Errorf("calendar: scan shift: %w", err)
		}
		if weekday < 0 || weekday > 6 {
			continue
		}
		tmpl.Shifts = append(tmpl.Shifts, availability.Shift{
			Weekday: time.Weekday(weekday),
			Start:   start,
			End:     end,
		})
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return availability.WorkingHoursTemplate{}, fmt.Errorf("calendar: iterate shifts: %w", err)
	}
	return tmpl, nil
}

// BusyIntervals returns booked appointments starting in [from, to).
func (c *PostgresCalendar) BusyIntervals(ctx context.Context, practitionerID string, from, to time.Time) ([]availability.BusyInterval, error) {
	ctx, span := tracer.Start(ctx, "calendar.busy_intervals", trace.WithAttributes(
		attribute.String("practitioner_id", practitionerID),
	))
	defer span.End()

	query := `
		SELECT starts_at, ends_at
		FROM appointments
		WHERE practitioner_id = $1
		  AND status <> 'cancelled'
		  AND starts_at >= $2
		  AND starts_at < $3
		ORDER BY starts_at
	`
	rows, err := c.db.Query(ctx, query, practitionerID, from, to)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("calendar: query appointments: %w", err)
	}
	defer rows.Close()

	var busy []availability.BusyInterval
	for rows.Next() {
		var start, end time.Time
		if err := rows.Scan(&start, &end); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("calendar: scan appointment: %w", err)
		}
		busy = append(busy, toBusy(start.In(c.loc), end.In(c.loc)))
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("calendar: iterate appointments: %w", err)
	}
	return busy, nil
}

func toBusy(start, end time.Time) availability.BusyInterval {
	endClock := end.Format(availability.ClockLayout)
	if end.Format(availability.DateLayout) != start.Format(availability.DateLayout) {
		endClock = "24:00"
	}
	return availability.BusyInterval{
		Date:  start.Format(availability.DateLayout),
		Start: start.Format(availability.ClockLayout),
		End:   endClock,
	}
}
