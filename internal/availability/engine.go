// Package availability turns practitioner working hours and booked intervals
// into bookable free slots and validates caller-requested slots.
package availability

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// DateLayout is the wire format for dates (preferred_date, BusyInterval.Date).
	DateLayout = "2006-01-02"
	// ClockLayout is the wire format for times of day.
	ClockLayout = "15:04"

	defaultStep                 = 30 * time.Minute
	defaultSameDayAlternatives  = 8
	defaultOtherDayAlternatives = 3
)

// Shift is one working interval on a weekday, e.g. Monday 09:00-12:00.
type Shift struct {
	Weekday time.Weekday `json:"weekday" yaml:"weekday"`
	Start   string       `json:"start" yaml:"start"`
	End     string       `json:"end" yaml:"end"`
}

// WorkingHoursTemplate lists the shifts a practitioner works each week.
type WorkingHoursTemplate struct {
	PractitionerID string  `json:"practitioner_id"`
	Shifts         []Shift `json:"shifts"`
}

// DefaultTemplate is used when the calendar has no template for a practitioner:
// Monday to Friday, 09:00-12:00 and 14:00-18:00.
func DefaultTemplate(practitionerID string) WorkingHoursTemplate {
	tmpl := WorkingHoursTemplate{PractitionerID: practitionerID}
	for wd := time.Monday; wd <= time.Friday; wd++ {
		tmpl.Shifts = append(tmpl.Shifts,
			Shift{Weekday: wd, Start: "09:00", End: "12:00"},
			Shift{Weekday: wd, Start: "14:00", End: "18:00"},
		)
	}
	return tmpl
}

// ShiftsFor returns the shifts configured for a weekday ordered by start.
func (t WorkingHoursTemplate) ShiftsFor(wd time.Weekday) []Shift {
	var out []Shift
	for _, s := range t.Shifts {
		if s.Weekday == wd {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// ClosingTime returns the end of the last shift on a weekday. The same-day
// cutoff follows this value rather than a fixed clinic-wide hour.
func (t WorkingHoursTemplate) ClosingTime(wd time.Weekday) (string, bool) {
	closing := -1
	for _, s := range t.ShiftsFor(wd) {
		end, err := clockMinutes(s.End)
		if err != nil {
			continue
		}
		if end > closing {
			closing = end
		}
	}
	if closing < 0 {
		return "", false
	}
	return formatMinutes(closing), true
}

// BusyInterval is a booked interval sourced from the calendar.
type BusyInterval struct {
	Date  string `json:"date"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// FreeSlot lists the free start times on one day.
type FreeSlot struct {
	Date    string       `json:"date"`
	Weekday time.Weekday `json:"weekday"`
	Times   []string     `json:"times"`
}

// Window selects the days to enumerate. When Date is set only that day is returned.
type Window struct {
	From time.Time
	Days int
	Date string
}

// SlotCheck is the answer to "is this slot free".
type SlotCheck struct {
	Date      string
	Time      string
	Available bool
	// SameDay holds other free times on the requested date.
	SameDay []string
	// OtherDays is filled only when the requested date has nothing left.
	OtherDays []FreeSlot
}

// HasAlternatives reports whether any alternative was found.
func (c SlotCheck) HasAlternatives() bool {
	return len(c.SameDay) > 0 || len(c.OtherDays) > 0
}

// Engine computes free slots. The zero value uses 30 minute slots and 8/3 alternatives.
type Engine struct {
	Step                 time.Duration
	SameDayAlternatives  int
	OtherDayAlternatives int
	// BlockOverlaps also removes slots starting inside a busy interval, not only
	// slots whose start equals a busy start.
	BlockOverlaps bool
}

// NewEngine returns an engine with default settings.
func NewEngine() Engine {
	return Engine{
		Step:                 defaultStep,
		SameDayAlternatives:  defaultSameDayAlternatives,
		OtherDayAlternatives: defaultOtherDayAlternatives,
	}
}

func (e Engine) stepMinutes() int {
	step := int(e.Step / time.Minute)
	if step <= 0 {
		return int(defaultStep / time.Minute)
	}
	return step
}

func (e Engine) sameDayLimit() int {
	if e.SameDayAlternatives <= 0 {
		return defaultSameDayAlternatives
	}
	return e.SameDayAlternatives
}

func (e Engine) otherDayLimit() int {
	if e.OtherDayAlternatives <= 0 {
		return defaultOtherDayAlternatives
	}
	return e.OtherDayAlternatives
}

// FreeSlots enumerates the free slots per working day in the window, ordered
// by date then time. Days without free slots are omitted. On the current day
// slots at or before now are dropped. Days before today are never returned.
func (e Engine) FreeSlots(tmpl WorkingHoursTemplate, busy []BusyInterval, w Window, now time.Time) []FreeSlot {
	loc := now.Location()
	today := dateOnly(now, loc)
	start := today
	if !w.From.IsZero() {
		start = dateOnly(w.From, loc)
	}
	if start.Before(today) {
		start = today
	}
	days := w.Days
	if days <= 0 {
		days = 1
	}

	busyByDate := make(map[string][]BusyInterval)
	for _, b := range busy {
		busyByDate[b.Date] = append(busyByDate[b.Date], b)
	}

	todayStr := today.Format(DateLayout)
	nowMinutes := now.In(loc).Hour()*60 + now.In(loc).Minute()

	var out []FreeSlot
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i)
		ds := day.Format(DateLayout)
		if w.Date != "" && ds != w.Date {
			continue
		}
		cutoff := -1
		if ds == todayStr {
			cutoff = nowMinutes
		}
		times := e.dayTimes(tmpl.ShiftsFor(day.Weekday()), busyByDate[ds], cutoff)
		if len(times) == 0 {
			continue
		}
		out = append(out, FreeSlot{Date: ds, Weekday: day.Weekday(), Times: times})
	}
	return out
}

func (e Engine) dayTimes(shifts []Shift, busy []BusyInterval, cutoff int) []string {
	if len(shifts) == 0 {
		return nil
	}
	step := e.stepMinutes()

	busyStarts := make(map[int]struct{}, len(busy))
	type span struct{ start, end int }
	var spans []span
	for _, b := range busy {
		bs, err := clockMinutes(b.Start)
		if err != nil {
			continue
		}
		busyStarts[bs] = struct{}{}
		if be, err := clockMinutes(b.End); err == nil && be > bs {
			spans = append(spans, span{bs, be})
		}
	}

	seen := make(map[int]struct{})
	var minutes []int
	for _, sh := range shifts {
		from, err := clockMinutes(sh.Start)
		if err != nil {
			continue
		}
		to, err := clockMinutes(sh.End)
		if err != nil {
			continue
		}
		for m := from; m+step <= to; m += step {
			if cutoff >= 0 && m <= cutoff {
				continue
			}
			if _, ok := busyStarts[m]; ok {
				continue
			}
			if e.BlockOverlaps {
				inside := false
				for _, sp := range spans {
					if m > sp.start && m < sp.end {
						inside = true
						break
					}
				}
				if inside {
					continue
				}
			}
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			minutes = append(minutes, m)
		}
	}
	sort.Ints(minutes)

	times := make([]string, 0, len(minutes))
	for _, m := range minutes {
		times = append(times, formatMinutes(m))
	}
	return times
}

// CheckSlot reports whether clock is free on date. When it is not, up to
// SameDayAlternatives other times on that date are returned; if the date has
// none left, up to OtherDayAlternatives later days within w are returned.
func (e Engine) CheckSlot(tmpl WorkingHoursTemplate, busy []BusyInterval, date, clock string, w Window, now time.Time) SlotCheck {
	check := SlotCheck{Date: date, Time: clock}
	loc := now.Location()

	day, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		day = dateOnly(now, loc)
	}

	sameDay := e.FreeSlots(tmpl, busy, Window{From: day, Days: 1, Date: date}, now)
	if len(sameDay) > 0 {
		for _, t := range sameDay[0].Times {
			if t == clock {
				check.Available = true
				return check
			}
		}
		check.SameDay = limitStrings(sameDay[0].Times, e.sameDayLimit())
		return check
	}

	from := day.AddDate(0, 0, 1)
	days := w.Days
	if !w.From.IsZero() {
		// keep the window end fixed when searching past the requested day
		end := dateOnly(w.From, loc).AddDate(0, 0, w.Days)
		days = int(end.Sub(from).Hours()/24 + 0.5)
	}
	if days <= 0 {
		days = 1
	}
	later := e.FreeSlots(tmpl, busy, Window{From: from, Days: days}, now)
	if len(later) > e.otherDayLimit() {
		later = later[:e.otherDayLimit()]
	}
	check.OtherDays = later
	return check
}

func limitStrings(in []string, n int) []string {
	if len(in) > n {
		in = in[:n]
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func dateOnly(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func clockMinutes(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 {
		return 0, fmt.Errorf("availability: invalid clock %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("availability: invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("availability: invalid minute in %q", s)
	}
	return h*60 + m, nil
}

func formatMinutes(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}
