package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mondayTemplate() WorkingHoursTemplate {
	return WorkingHoursTemplate{
		PractitionerID: "dr-silva",
		Shifts: []Shift{
			{Weekday: time.Monday, Start: "14:00", End: "14:30"},
			{Weekday: time.Monday, Start: "09:00", End: "10:00"},
		},
	}
}

func sundayEvening() time.Time {
	return time.Date(2025, 9, 14, 20, 0, 0, 0, time.UTC)
}

func TestFreeSlotsRemovesBusyStarts(t *testing.T) {
	e := NewEngine()
	busy := []BusyInterval{{Date: "2025-09-15", Start: "09:00", End: "09:30"}}

	slots := e.FreeSlots(mondayTemplate(), busy, Window{Date: "2025-09-15", Days: 7}, sundayEvening())

	require.Len(t, slots, 1)
	assert.Equal(t, "2025-09-15", slots[0].Date)
	assert.Equal(t, time.Monday, slots[0].Weekday)
	assert.Equal(t, []string{"09:30", "14:00"}, slots[0].Times)
}

func TestCheckSlotOffersSameDayAlternatives(t *testing.T) {
	e := NewEngine()
	busy := []BusyInterval{{Date: "2025-09-15", Start: "09:00", End: "09:30"}}
	now := sundayEvening()

	check := e.CheckSlot(mondayTemplate(), busy, "2025-09-15", "09:00", Window{From: now, Days: 14}, now)

	assert.False(t, check.Available)
	assert.Equal(t, []string{"09:30", "14:00"}, check.SameDay)
	assert.Empty(t, check.OtherDays)
	assert.True(t, check.HasAlternatives())

	ok := e.CheckSlot(mondayTemplate(), busy, "2025-09-15", "09:30", Window{From: now, Days: 14}, now)
	assert.True(t, ok.Available)
	assert.False(t, ok.HasAlternatives())
}

func TestFreeSlotsIsDeterministic(t *testing.T) {
	e := NewEngine()
	now := sundayEvening()
	busy := []BusyInterval{
		{Date: "2025-09-16", Start: "10:00", End: "10:30"},
		{Date: "2025-09-15", Start: "14:00", End: "14:30"},
	}
	w := Window{From: now, Days: 10}

	first := e.FreeSlots(DefaultTemplate("p1"), busy, w, now)
	second := e.FreeSlots(DefaultTemplate("p1"), busy, w, now)
	assert.Equal(t, first, second)

	for _, day := range first {
		assert.NotEqual(t, time.Saturday, day.Weekday)
		assert.NotEqual(t, time.Sunday, day.Weekday)
		for i := 1; i < len(day.Times); i++ {
			assert.Less(t, day.Times[i-1], day.Times[i])
		}
	}
}

func TestFreeSlotsDropsPastTimesToday(t *testing.T) {
	e := NewEngine()
	now := time.Date(2025, 9, 15, 10, 0, 0, 0, time.UTC)

	slots := e.FreeSlots(DefaultTemplate("p1"), nil, Window{From: now, Days: 1}, now)

	require.Len(t, slots, 1)
	assert.Equal(t, "10:30", slots[0].Times[0])
	assert.NotContains(t, slots[0].Times, "10:00")
	assert.Equal(t, "17:30", slots[0].Times[len(slots[0].Times)-1])
}

func TestFreeSlotsNeverReturnsPastDays(t *testing.T) {
	e := NewEngine()
	now := time.Date(2025, 9, 17, 8, 0, 0, 0, time.UTC)
	from := time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)

	slots := e.FreeSlots(DefaultTemplate("p1"), nil, Window{From: from, Days: 3}, now)

	require.NotEmpty(t, slots)
	assert.Equal(t, "2025-09-17", slots[0].Date)
}

func TestCheckSlotAfterClosingMovesToFutureDays(t *testing.T) {
	e := NewEngine()
	now := time.Date(2025, 9, 15, 18, 5, 0, 0, time.UTC)

	today := e.FreeSlots(DefaultTemplate("p1"), nil, Window{From: now, Days: 1}, now)
	assert.Empty(t, today)

	check := e.CheckSlot(DefaultTemplate("p1"), nil, "2025-09-15", "17:30", Window{From: now, Days: 14}, now)
	assert.False(t, check.Available)
	assert.Empty(t, check.SameDay)
	require.Len(t, check.OtherDays, 3)
	assert.Equal(t, "2025-09-16", check.OtherDays[0].Date)
	assert.Equal(t, "2025-09-17", check.OtherDays[1].Date)
	assert.Equal(t, "2025-09-18", check.OtherDays[2].Date)
}

func TestCheckSlotLimitsSameDayAlternatives(t *testing.T) {
	e := Engine{SameDayAlternatives: 2}
	now := sundayEvening()

	check := e.CheckSlot(DefaultTemplate("p1"), nil, "2025-09-15", "12:00", Window{From: now, Days: 7}, now)

	assert.False(t, check.Available)
	assert.Equal(t, []string{"09:00", "09:30"}, check.SameDay)
}

func TestBlockOverlapsRemovesSlotsInsideBusyInterval(t *testing.T) {
	now := sundayEvening()
	busy := []BusyInterval{{Date: "2025-09-15", Start: "09:00", End: "10:30"}}

	loose := NewEngine().FreeSlots(DefaultTemplate("p1"), busy, Window{Date: "2025-09-15", Days: 2}, now)
	require.Len(t, loose, 1)
	assert.Contains(t, loose[0].Times, "09:30")

	strict := NewEngine()
	strict.BlockOverlaps = true
	blocked := strict.FreeSlots(DefaultTemplate("p1"), busy, Window{Date: "2025-09-15", Days: 2}, now)
	require.Len(t, blocked, 1)
	assert.NotContains(t, blocked[0].Times, "09:30")
	assert.NotContains(t, blocked[0].Times, "10:00")
	assert.Contains(t, blocked[0].Times, "10:30")
}

func TestEveryFreeSlotPassesCheckSlot(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	// Tuesday 11:10 local, inside the morning shift.
	now := time.Date(2025, 9, 16, 11, 10, 0, 0, loc)
	window := Window{From: now, Days: 7}

	tmpl := DefaultTemplate("dr-silva")
	tmpl.Shifts = append(tmpl.Shifts, Shift{Weekday: time.Saturday, Start: "08:00", End: "10:15"})
	busy := []BusyInterval{
		{Date: "2025-09-16", Start: "11:30", End: "12:00"},
		{Date: "2025-09-16", Start: "14:00", End: "15:00"},
		{Date: "2025-09-17", Start: "09:00", End: "09:30"},
		{Date: "2025-09-18", Start: "10:00", End: "11:00"},
		{Date: "2025-09-20", Start: "08:30", End: "09:00"},
	}

	for _, blockOverlaps := range []bool{false, true} {
		e := NewEngine()
		e.BlockOverlaps = blockOverlaps

		slots := e.FreeSlots(tmpl, busy, window, now)
		require.NotEmpty(t, slots)
		assert.Equal(t, "2025-09-16", slots[0].Date)
		first := "14:30"
		if blockOverlaps {
			first = "15:00"
		}
		assert.Equal(t, first, slots[0].Times[0])

		total := 0
		for _, day := range slots {
			for _, clock := range day.Times {
				check := e.CheckSlot(tmpl, busy, day.Date, clock, window, now)
				assert.True(t, check.Available, "%s %s block overlaps %v", day.Date, clock, blockOverlaps)
				total++
			}
		}
		assert.Greater(t, total, 40)
	}
}

func TestClosingTime(t *testing.T) {
	tmpl := DefaultTemplate("p1")

	closing, ok := tmpl.ClosingTime(time.Wednesday)
	assert.True(t, ok)
	assert.Equal(t, "18:00", closing)

	_, ok = tmpl.ClosingTime(time.Sunday)
	assert.False(t, ok)
}
