// Package calendar holds the calendar collaborators used by the availability
// service: a Postgres-backed calendar, a Google Calendar free/busy adapter and
// a timeout guard shared by both.
package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/clinic-booking-assistant/internal/availability"
	"github.com/wolfman30/clinic-booking-assistant/pkg/logging"
)

// ErrorRecorder receives collaborator failures (metrics).
type ErrorRecorder interface {
	ObserveCollaboratorError(collaborator string)
}

// Guarded bounds every calendar call with a timeout and reports failures as
// availability.ErrCalendarUnavailable.
type Guarded struct {
	inner   availability.Calendar
	timeout time.Duration
	logger  *logging.Logger
	errors  ErrorRecorder
}

// GuardOption customizes a Guarded calendar.
type GuardOption func(*Guarded)

// WithErrorRecorder reports failures to r.
func WithErrorRecorder(r ErrorRecorder) GuardOption {
	return func(g *Guarded) {
		g.errors = r
	}
}

// NewGuarded wraps inner. A non-positive timeout disables the deadline.
func NewGuarded(inner availability.Calendar, timeout time.Duration, logger *logging.Logger, opts ...GuardOption) *Guarded {
	if inner == nil {
		panic("calendar: inner calendar cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	g := &Guarded{inner: inner, timeout: timeout, logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guarded) BusyIntervals(ctx context.Context, practitionerID string, from, to time.Time) ([]availability.BusyInterval, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	busy, err := g.inner.BusyIntervals(ctx, practitionerID, from, to)
	if err != nil {
		return nil, g.fail(ctx, "busy_intervals", practitionerID, err)
	}
	return busy, nil
}

func (g *Guarded) WorkingHours(ctx context.Context, practitionerID string) (availability.WorkingHoursTemplate, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	tmpl, err := g.inner.WorkingHours(ctx, practitionerID)
	if err != nil {
		return availability.WorkingHoursTemplate{}, g.fail(ctx, "working_hours", practitionerID, err)
	}
	return tmpl, nil
}

func (g *Guarded) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

func (g *Guarded) fail(ctx context.Context, op, practitionerID string, err error) error {
	g.logger.Warn("calendar call failed",
		"op", op,
		"practitioner_id", practitionerID,
		"error", err,
		"deadline_exceeded", ctx.Err() != nil,
	)
	if g.errors != nil {
		g.errors.ObserveCollaboratorError("calendar")
	}
	return fmt.Errorf("%w: %s: %v", availability.ErrCalendarUnavailable, op, err)
}
