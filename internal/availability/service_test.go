package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCalendar struct {
	template  WorkingHoursTemplate
	busy      []BusyInterval
	hoursErr  error
	busyErr   error
	busyCalls int
	lastFrom  time.Time
	lastTo    time.Time
}

func (f *fakeCalendar) BusyIntervals(_ context.Context, _ string, from, to time.Time) ([]BusyInterval, error) {
	f.busyCalls++
	f.lastFrom, f.lastTo = from, to
	if f.busyErr != nil {
		return nil, f.busyErr
	}
	return f.busy, nil
}

func (f *fakeCalendar) WorkingHours(_ context.Context, _ string) (WorkingHoursTemplate, error) {
	if f.hoursErr != nil {
		return WorkingHoursTemplate{}, f.hoursErr
	}
	return f.template, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestServiceQueriesCalendarOnEveryCall(t *testing.T) {
	cal := &fakeCalendar{template: mondayTemplate()}
	svc := NewService(cal, NewEngine(), WithClock(fixedClock(sundayEvening())))

	first, err := svc.CheckSlot(context.Background(), "dr-silva", "2025-09-15", "09:00")
	require.NoError(t, err)
	assert.True(t, first.Available)

	// the slot is booked by someone else between the two checks
	cal.busy = []BusyInterval{{Date: "2025-09-15", Start: "09:00", End: "09:30"}}
	second, err := svc.CheckSlot(context.Background(), "dr-silva", "2025-09-15", "09:00")
	require.NoError(t, err)
	assert.False(t, second.Available)
	assert.Equal(t, []string{"09:30", "14:00"}, second.SameDay)
	assert.Equal(t, 2, cal.busyCalls)
}

func TestServiceFailsClosedOnCalendarErrors(t *testing.T) {
	svc := NewService(&fakeCalendar{busyErr: errors.New("boom")}, NewEngine(), WithClock(fixedClock(sundayEvening())))

	_, err := svc.CheckSlot(context.Background(), "p1", "2025-09-15", "09:00")
	assert.ErrorIs(t, err, ErrCalendarUnavailable)

	_, err = svc.FreeSlots(context.Background(), "p1", "")
	assert.ErrorIs(t, err, ErrCalendarUnavailable)

	svc = NewService(&fakeCalendar{hoursErr: context.DeadlineExceeded}, NewEngine())
	_, err = svc.FreeSlots(context.Background(), "p1", "")
	assert.ErrorIs(t, err, ErrCalendarUnavailable)
}

func TestServiceUsesDefaultTemplateWhenEmpty(t *testing.T) {
	cal := &fakeCalendar{}
	svc := NewService(cal, NewEngine(), WithClock(fixedClock(sundayEvening())), WithHorizonDays(7))

	slots, err := svc.FreeSlots(context.Background(), "p1", "")
	require.NoError(t, err)
	require.Len(t, slots, 5)
	assert.Equal(t, "2025-09-15", slots[0].Date)
	assert.Equal(t, "2025-09-19", slots[4].Date)
	assert.Equal(t, time.Date(2025, 9, 21, 0, 0, 0, 0, time.UTC), cal.lastTo)
}

func TestServiceExtendsWindowForFarDates(t *testing.T) {
	cal := &fakeCalendar{}
	svc := NewService(cal, NewEngine(), WithClock(fixedClock(sundayEvening())), WithHorizonDays(3))

	slots, err := svc.FreeSlots(context.Background(), "p1", "2025-10-01")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "2025-10-01", slots[0].Date)
}

func TestServiceRejectsMalformedDate(t *testing.T) {
	svc := NewService(&fakeCalendar{}, NewEngine())
	_, err := svc.FreeSlots(context.Background(), "p1", "15/09")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrCalendarUnavailable))
}

func TestServiceLocation(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	// 01:00 UTC is still the previous evening in the clinic
	svc := NewService(&fakeCalendar{}, NewEngine(),
		WithLocation(loc),
		WithClock(fixedClock(time.Date(2025, 9, 16, 1, 0, 0, 0, time.UTC))))

	assert.Equal(t, "2025-09-15", svc.Now().Format(DateLayout))
}
