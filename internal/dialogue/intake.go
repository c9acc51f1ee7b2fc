package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/wolfman30/clinic-booking-assistant/internal/availability"
	"github.com/wolfman30/clinic-booking-assistant/internal/handoff"
	"github.com/wolfman30/clinic-booking-assistant/internal/nlu"
	"github.com/wolfman30/clinic-booking-assistant/internal/session"
)

var notNames = map[string]struct{}{
	"hi": {}, "hello": {}, "hey": {}, "yes": {}, "no": {}, "ok": {}, "okay": {}, "thanks": {},
	"oi": {}, "olá": {}, "ola": {}, "sim": {}, "não": {}, "nao": {}, "obrigado": {}, "obrigada": {},
}

func (t *turn) nameFlow() {
	s := t.s
	if s.NameConfirmed && strings.TrimSpace(s.PatientName) != "" {
		return
	}
	intent := t.analysis.Intent
	candidate := cleanName(t.analysis.Entities.Name)

	if s.CurrentState == session.StateConfirmingName && s.PendingName != "" {
		switch {
		case candidate != "" && !sameName(candidate, s.PendingName) && intent != nlu.IntentAffirm:
			s.PendingName = candidate
		case intent == nlu.IntentAffirm || intent == nlu.IntentConfirm:
			s.PatientName = s.PendingName
			s.NameConfirmed = true
			s.PendingName = ""
			t.affirmUsed = true
			t.notes = append(t.notes, fmt.Sprintf("Thank you, %s.", firstName(s.PatientName)))
		case intent == nlu.IntentDeny:
			s.PendingName = ""
			t.affirmUsed = true
			t.notes = append(t.notes, "Sorry about that.")
		}
		return
	}

	if candidate == "" && s.CurrentState == session.StateCollectingIdentity && !t.analysis.Entities.HasBooking() &&
		(intent == nlu.IntentProvideInfo || intent == nlu.IntentUnknown) && looksLikeName(t.text) {
		candidate = cleanName(t.text)
	}
	if candidate != "" {
		s.PendingName = candidate
		s.CurrentState = session.StateConfirmingName
	}
}

// intake validates specialty, practitioner, date and time entities. Date and
// time are accepted only once specialty and practitioner are both known.
func (t *turn) intake() {
	s := t.s
	e := t.analysis.Entities

	if e.Specialty != "" {
		if name, ok := t.reg.ResolveSpecialty(e.Specialty); ok {
			if name != s.SelectedSpecialty {
				t.setSpecialty(name)
			}
		} else {
			t.drop(session.SlotSpecialty, e.Specialty)
			t.notes = append(t.notes, fmt.Sprintf("Sorry, we don't offer %s.", e.Specialty))
		}
	}
	if e.Practitioner != "" {
		t.intakePractitioner(e.Practitioner)
	}

	if e.Date == "" && e.Time == "" {
		return
	}
	if s.SelectedSpecialty == "" || s.SelectedPractitioner == "" {
		if e.Date != "" {
			t.drop(session.SlotDate, e.Date)
		}
		if e.Time != "" {
			t.drop(session.SlotTime, e.Time)
		}
		need := "practitioner"
		if s.SelectedSpecialty == "" {
			need = "specialty"
		}
		t.notes = append(t.notes, fmt.Sprintf("Before we pick a date and time I need to know the %s.", need))
		return
	}

	if e.Date != "" {
		date, err := availability.ResolveDate(e.Date, t.m.avail.Now())
		switch {
		case errors.Is(err, availability.ErrPastDate):
			t.drop(session.SlotDate, e.Date)
			t.notes = append(t.notes, "That date has already passed.")
		case err != nil:
			t.drop(session.SlotDate, e.Date)
			t.notes = append(t.notes, fmt.Sprintf("Sorry, I couldn't understand the date %q.", e.Date))
		default:
			t.newDate = date
		}
	}
	if e.Time != "" {
		clock, err := availability.ParseClock(e.Time)
		if err != nil {
			t.drop(session.SlotTime, e.Time)
			t.notes = append(t.notes, fmt.Sprintf("Sorry, I couldn't understand the time %q.", e.Time))
		} else {
			t.newTime = clock
		}
	}
}

// setSpecialty switches specialty and drops a practitioner who does not attend it.
func (t *turn) setSpecialty(name string) {
	s := t.s
	if s.SelectedPractitioner != "" {
		p, ok := t.reg.Catalog().Practitioner(s.SelectedPractitioner)
		if !ok || !p.HasSpecialty(name) {
			s.SelectedPractitioner = ""
			s.ClearSchedule()
		}
	}
	s.SelectedSpecialty = name
	t.bookingChanged()
}

func (t *turn) intakePractitioner(text string) {
	s := t.s
	match := t.reg.ResolvePractitioner(text, s.SelectedSpecialty, t.pronouns())
	switch {
	case match.Resolved():
		if s.SelectedSpecialty == "" {
			if sole, ok := t.reg.SoleSpecialty(match.Name); ok {
				s.SelectedSpecialty = sole
			}
		}
		if match.Name != s.SelectedPractitioner {
			s.SelectedPractitioner = match.Name
			t.bookingChanged()
			t.recheck = s.PreferredDate != "" && s.PreferredTime != ""
		}
	case len(match.Candidates) > 0:
		t.drop(session.SlotPractitioner, text)
		s.Suggest(match.Candidates...)
		t.prompt = fmt.Sprintf("Did you mean %s?", joinOr(match.Candidates))
	case match.WrongSpecialty:
		t.drop(session.SlotPractitioner, text)
		t.notes = append(t.notes, fmt.Sprintf("%s is not available for %s.", text, s.SelectedSpecialty))
	default:
		t.drop(session.SlotPractitioner, text)
		t.notes = append(t.notes, fmt.Sprintf("Sorry, I couldn't find %s.", text))
	}
}

// schedule applies accepted date/time values and checks them against the calendar.
func (t *turn) schedule(ctx context.Context) error {
	s := t.s
	if t.newDate == "" && t.newTime == "" && !t.recheck {
		return nil
	}
	changed := false
	if t.newDate != "" && t.newDate != s.PreferredDate {
		s.PreferredDate = t.newDate
		changed = true
		t.bookingChanged()
	}
	if t.newTime != "" && t.newTime != s.PreferredTime {
		s.PreferredTime = t.newTime
		changed = true
		t.bookingChanged()
	}
	// A handed-off booking restated with the same date and time keeps its link.
	if !changed && !t.recheck && s.CurrentState == session.StateConfirming && s.HandoffLink != "" {
		return nil
	}

	switch {
	case s.PreferredDate != "" && s.PreferredTime != "":
		ok, err := t.checkSlot(ctx)
		if err != nil {
			return err
		}
		if ok {
			t.prompt = fmt.Sprintf("%s at %s with %s is available. Shall I confirm the appointment?",
				availability.FormatDate(s.PreferredDate), s.PreferredTime, s.SelectedPractitioner)
		}
	case s.PreferredDate != "":
		slots, err := t.m.avail.FreeSlots(ctx, t.practitionerID(), s.PreferredDate)
		if err != nil {
			return err
		}
		if len(slots) == 0 || len(slots[0].Times) == 0 {
			day := s.PreferredDate
			s.PreferredDate = ""
			t.out.SlotRejected = true
			others, err := t.otherDays(ctx, day)
			if err != nil {
				return err
			}
			t.prompt = noDayPrompt(s.SelectedPractitioner, day, others)
			return nil
		}
		t.prompt = fmt.Sprintf("On %s %s has these times free: %s. Which one works for you?",
			availability.FormatDate(s.PreferredDate), s.SelectedPractitioner, strings.Join(limit(slots[0].Times, t.m.listLimit), ", "))
	default:
		t.prompt = fmt.Sprintf("Which day would you like at %s?", s.PreferredTime)
	}
	return nil
}

// checkSlot validates the exact requested slot. A busy slot clears the time
// (and the date when nothing is left that day) and offers alternatives.
func (t *turn) checkSlot(ctx context.Context) (bool, error) {
	s := t.s
	check, err := t.m.avail.CheckSlot(ctx, t.practitionerID(), s.PreferredDate, s.PreferredTime)
	if err != nil {
		return false, err
	}
	if check.Available {
		t.verified = true
		return true, nil
	}

	t.m.logger.Debug("dialogue: requested slot unavailable", "session_id", s.ID, "date", s.PreferredDate, "time", s.PreferredTime)
	t.out.SlotRejected = true
	date, clock := s.PreferredDate, s.PreferredTime
	s.PreferredTime = ""
	if len(check.SameDay) == 0 {
		s.PreferredDate = ""
	}
	t.bookingChanged()
	t.prompt = alternativesPrompt(s.SelectedPractitioner, date, clock, check, t.m.listLimit)
	return false, nil
}

// otherDays lists free days after day within the availability horizon.
func (t *turn) otherDays(ctx context.Context, day string) ([]availability.FreeSlot, error) {
	slots, err := t.m.avail.FreeSlots(ctx, t.practitionerID(), "")
	if err != nil {
		return nil, err
	}
	var out []availability.FreeSlot
	for _, fs := range slots {
		if fs.Date <= day {
			continue
		}
		out = append(out, fs)
		if len(out) == t.m.otherDayLimit {
			break
		}
	}
	return out, nil
}

func (t *turn) confirm(ctx context.Context) error {
	s := t.s
	if s.CurrentState == session.StateConfirming && s.HandoffLink != "" {
		t.out.Handoff = &handoff.Result{Summary: s.HandoffSummary, Link: s.HandoffLink, Cached: true}
		t.prompt = confirmedPrompt(s.HandoffSummary, s.HandoffLink, true)
		return nil
	}

	if missing := s.Missing(); !missing.Complete() {
		t.incomplete(missing)
		return nil
	}
	if !t.verified {
		ok, err := t.checkSlot(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	res, err := t.m.confirmer.Confirm(ctx, s)
	if err != nil {
		var incomplete *handoff.IncompleteError
		if errors.As(err, &incomplete) {
			t.incomplete(incomplete.Missing)
			return nil
		}
		return fmt.Errorf("dialogue: confirm booking: %w", err)
	}
	t.out.Handoff = &res
	t.prompt = confirmedPrompt(res.Summary, res.Link, res.Cached)
	return nil
}

func (t *turn) incomplete(missing session.Missing) {
	t.out.Incomplete = missing
	t.notes = append(t.notes, fmt.Sprintf("I can't confirm yet, I still need your %s.", humanList(missing)))
}

func cleanName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	return strings.Trim(name, ".,!?;:")
}

func sameName(a, b string) bool {
	return strings.EqualFold(cleanName(a), cleanName(b))
}

func firstName(name string) string {
	if f := strings.Fields(name); len(f) > 0 {
		return f[0]
	}
	return name
}

// looksLikeName accepts one to four alphabetic words that are not a common
// reply such as "yes" or "hello".
func looksLikeName(text string) bool {
	words := strings.Fields(cleanName(text))
	if len(words) == 0 || len(words) > 4 {
		return false
	}
	if _, ok := notNames[strings.ToLower(strings.Join(words, " "))]; ok {
		return false
	}
	for _, w := range words {
		for _, r := range w {
			if !unicode.IsLetter(r) && r != '\'' && r != '-' {
				return false
			}
		}
	}
	return true
}
