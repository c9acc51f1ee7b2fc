package availability

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCalendarUnavailable means free/busy data could not be read. Callers must
// fail closed: never treat a slot as free or busy without fresh data.
var ErrCalendarUnavailable = errors.New("availability: calendar unavailable")

// Calendar is the calendar collaborator.
type Calendar interface {
	BusyIntervals(ctx context.Context, practitionerID string, from, to time.Time) ([]BusyInterval, error)
	WorkingHours(ctx context.Context, practitionerID string) (WorkingHoursTemplate, error)
}

// Service answers availability questions with fresh calendar data on every call.
type Service struct {
	calendar    Calendar
	engine      Engine
	horizonDays int
	loc         *time.Location
	now         func() time.Time
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithHorizonDays sets how many days ahead slots are searched.
func WithHorizonDays(days int) ServiceOption {
	return func(s *Service) {
		if days > 0 {
			s.horizonDays = days
		}
	}
}

// WithLocation sets the clinic time zone used for "today".
func WithLocation(loc *time.Location) ServiceOption {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService builds an availability service on top of a calendar collaborator.
func NewService(calendar Calendar, engine Engine, opts ...ServiceOption) *Service {
	if calendar == nil {
		panic("availability: calendar cannot be nil")
	}
	s := &Service{
		calendar:    calendar,
		engine:      engine,
		horizonDays: 14,
		loc:         time.UTC,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the current time in the clinic time zone.
func (s *Service) Now() time.Time {
	return s.now().In(s.loc)
}

// FreeSlots returns the free slots for a practitioner over the horizon, or for
// a single date when date is not empty.
func (s *Service) FreeSlots(ctx context.Context, practitionerID, date string) ([]FreeSlot, error) {
	now := s.Now()
	w, err := s.window(now, date)
	if err != nil {
		return nil, err
	}
	w.Date = date
	tmpl, busy, err := s.load(ctx, practitionerID, w)
	if err != nil {
		return nil, err
	}
	return s.engine.FreeSlots(tmpl, busy, w, now), nil
}

// CheckSlot validates an exact (date, time) against fresh calendar data.
func (s *Service) CheckSlot(ctx context.Context, practitionerID, date, clock string) (SlotCheck, error) {
	now := s.Now()
	w, err := s.window(now, date)
	if err != nil {
		return SlotCheck{}, err
	}
	tmpl, busy, err := s.load(ctx, practitionerID, w)
	if err != nil {
		return SlotCheck{}, err
	}
	return s.engine.CheckSlot(tmpl, busy, date, clock, w, now), nil
}

// window spans from today to the horizon, extended so that a requested date
// beyond the horizon still has room for alternatives after it.
func (s *Service) window(now time.Time, date string) (Window, error) {
	today := dateOnly(now, s.loc)
	days := s.horizonDays
	if date != "" {
		d, err := time.ParseInLocation(DateLayout, date, s.loc)
		if err != nil {
			return Window{}, fmt.Errorf("availability: invalid date %q: %w", date, err)
		}
		if ahead := int(d.Sub(today).Hours()/24+0.5) + s.horizonDays; ahead > days {
			days = ahead
		}
	}
	return Window{From: today, Days: days}, nil
}

func (s *Service) load(ctx context.Context, practitionerID string, w Window) (WorkingHoursTemplate, []BusyInterval, error) {
	tmpl, err := s.calendar.WorkingHours(ctx, practitionerID)
	if err != nil {
		return WorkingHoursTemplate{}, nil, fmt.Errorf("%w: working hours: %v", ErrCalendarUnavailable, err)
	}
	if len(tmpl.Shifts) == 0 {
		tmpl = DefaultTemplate(practitionerID)
	}
	to := w.From.AddDate(0, 0, w.Days)
	busy, err := s.calendar.BusyIntervals(ctx, practitionerID, w.From, to)
	if err != nil {
		return WorkingHoursTemplate{}, nil, fmt.Errorf("%w: busy intervals: %v", ErrCalendarUnavailable, err)
	}
	return tmpl, busy, nil
}
