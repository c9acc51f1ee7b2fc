package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/wolfman30/clinic-booking-assistant/internal/availability"
)

// FreeBusyFunc runs a free/busy query. It is satisfied by the Google Calendar
// client and replaced by fakes in tests.
type FreeBusyFunc func(ctx context.Context, req *gcal.FreeBusyRequest) (*gcal.FreeBusyResponse, error)

// HoursSource provides working-hour templates. Google Calendar only knows busy
// periods, so working hours come from elsewhere (catalog, Postgres).
type HoursSource interface {
	WorkingHours(ctx context.Context, practitionerID string) (availability.WorkingHoursTemplate, error)
}

// GoogleCalendar reads busy periods through the Google Calendar free/busy API.
type GoogleCalendar struct {
	freeBusy    FreeBusyFunc
	hours       HoursSource
	calendarIDs func(practitionerID string) string
	loc         *time.Location
}

// NewGoogleCalendarService builds the free/busy function from a service account
// credentials file.
func NewGoogleCalendarService(ctx context.Context, credentialsFile string) (FreeBusyFunc, error) {
	var opts []option.ClientOption
	if strings.TrimSpace(credentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar: create google calendar service: %w", err)
	}
	return func(ctx context.Context, req *gcal.FreeBusyRequest) (*gcal.FreeBusyResponse, error) {
		return svc.Freebusy.Query(req).Context(ctx).Do()
	}, nil
}

// NewGoogleCalendar builds the adapter. calendarIDs maps a practitioner id to
// its Google calendar id; when nil or empty the practitioner id is used as is.
func NewGoogleCalendar(freeBusy FreeBusyFunc, hours HoursSource, calendarIDs func(string) string, loc *time.Location) *GoogleCalendar {
	if freeBusy == nil {
		panic("calendar: free/busy function required")
	}
	if hours == nil {
		panic("calendar: hours source required")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &GoogleCalendar{freeBusy: freeBusy, hours: hours, calendarIDs: calendarIDs, loc: loc}
}

func (c *GoogleCalendar) WorkingHours(ctx context.Context, practitionerID string) (availability.WorkingHoursTemplate, error) {
	return c.hours.WorkingHours(ctx, practitionerID)
}

func (c *GoogleCalendar) BusyIntervals(ctx context.Context, practitionerID string, from, to time.Time) ([]availability.BusyInterval, error) {
	ctx, span := tracer.Start(ctx, "calendar.google_freebusy")
	defer span.End()

	calendarID := practitionerID
	if c.calendarIDs != nil {
		if id := c.calendarIDs(practitionerID); id != "" {
			calendarID = id
		}
	}

	resp, err := c.freeBusy(ctx, &gcal.FreeBusyRequest{
		TimeMin:  from.Format(time.RFC3339),
		TimeMax:  to.Format(time.RFC3339),
		TimeZone: c.loc.String(),
		Items:    []*gcal.FreeBusyRequestItem{{Id: calendarID}},
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("calendar: google freebusy: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("calendar: google freebusy: empty response")
	}
	cal, ok := resp.Calendars[calendarID]
	if !ok {
		return nil, fmt.Errorf("calendar: google freebusy: calendar %s missing from response", calendarID)
	}
	if len(cal.Errors) > 0 {
		return nil, fmt.Errorf("calendar: google freebusy: %s", cal.Errors[0].Reason)
	}

	busy := make([]availability.BusyInterval, 0, len(cal.Busy))
	for _, period := range cal.Busy {
		start, err := time.Parse(time.RFC3339, period.Start)
		if err != nil {
			return nil, fmt.Errorf("calendar: parse busy start %q: %w", period.Start, err)
		}
		end, err := time.Parse(time.RFC3339, period.End)
		if err != nil {
			return nil, fmt.Errorf("calendar: parse busy end %q: %w", period.End, err)
		}
		busy = append(busy, splitByDay(start.In(c.loc), end.In(c.loc))...)
	}
	return busy, nil
}

// splitByDay breaks a busy period spanning midnight into one interval per day.
func splitByDay(start, end time.Time) []availability.BusyInterval {
	var out []availability.BusyInterval
	for start.Before(end) {
		midnight := time.Date(start.Year(), start.Month(), start.Day()+1, 0, 0, 0, 0, start.Location())
		if !end.After(midnight) {
			out = append(out, toBusy(start, end))
			break
		}
		out = append(out, availability.BusyInterval{
			Date:  start.Format(availability.DateLayout),
			Start: start.Format(availability.ClockLayout),
			End:   "24:00",
		})
		start = midnight
	}
	return out
}

// StaticHours serves working hours from an in-memory map, typically loaded
// from the catalog seed file.
type StaticHours map[string][]availability.Shift

func (h StaticHours) WorkingHours(_ context.Context, practitionerID string) (availability.WorkingHoursTemplate, error) {
	shifts := h[practitionerID]
	out := make([]availability.Shift, len(shifts))
	copy(out, shifts)
	return availability.WorkingHoursTemplate{PractitionerID: practitionerID, Shifts: out}, nil
}
