package dialogue

import (
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-booking-assistant/internal/availability"
	"github.com/wolfman30/clinic-booking-assistant/internal/session"
)

const promptParked = "Whenever you're ready, say \"continue\" and we'll pick up your booking where we left off."

// nextQuestion asks for the first missing piece of the booking.
func (t *turn) nextQuestion() string {
	s := t.s
	cat := t.reg.Catalog()
	switch s.CurrentState {
	case session.StateIdle:
		return "If you'd like to book an appointment, just tell me your full name."
	case session.StateCollectingIdentity:
		return "To get started, could you tell me your full name?"
	case session.StateConfirmingName:
		return fmt.Sprintf("Just to confirm, your name is %s?", s.PendingName)
	case session.StateSelectingSpecialty:
		if s.SelectedPractitioner != "" {
			if p, ok := cat.Practitioner(s.SelectedPractitioner); ok {
				return fmt.Sprintf("Which specialty is this for? %s attends %s.", p.Name, joinOr(p.Specialties))
			}
		}
		return fmt.Sprintf("Which specialty would you like to book? We offer %s.", joinOr(cat.SpecialtyNames()))
	case session.StateSelectingPractitioner:
		names := cat.PractitionerNames(s.SelectedSpecialty)
		if len(names) == 0 {
			return fmt.Sprintf("No practitioner is taking %s bookings right now. Would you like another specialty?", s.SelectedSpecialty)
		}
		s.Suggest(names...)
		return fmt.Sprintf("Which practitioner would you like to see for %s? Available: %s.", s.SelectedSpecialty, joinOr(names))
	case session.StateChoosingSchedule:
		switch {
		case s.PreferredDate == "" && s.PreferredTime == "":
			return fmt.Sprintf("What day would you like to see %s?", s.SelectedPractitioner)
		case s.PreferredDate == "":
			return fmt.Sprintf("Which day would you like at %s?", s.PreferredTime)
		case s.PreferredTime == "":
			return fmt.Sprintf("What time works for you on %s?", availability.FormatDate(s.PreferredDate))
		}
		return fmt.Sprintf("Shall I confirm %s at %s with %s?",
			availability.FormatDate(s.PreferredDate), s.PreferredTime, s.SelectedPractitioner)
	case session.StateConfirming:
		return "Your request is with our scheduling team. Is there anything else I can help you with?"
	case session.StateAnsweringQuestion:
		return promptParked
	}
	return ""
}

func confirmedPrompt(summary, link string, cached bool) string {
	lead := "Your appointment request is ready and our scheduling team has been notified."
	if cached {
		lead = "Your appointment request was already sent to our scheduling team."
	}
	return fmt.Sprintf("%s\n\n%s\n\n%s", lead, summary, link)
}

func alternativesPrompt(practitioner, date, clock string, check availability.SlotCheck, n int) string {
	day := availability.FormatDate(date)
	switch {
	case len(check.SameDay) > 0:
		return fmt.Sprintf("%s is not available at %s on %s. Free times that day: %s. Which one would you like?",
			practitioner, clock, day, strings.Join(limit(check.SameDay, n), ", "))
	case len(check.OtherDays) > 0:
		return fmt.Sprintf("%s has no free times left on %s. Next availability: %s. Which day works for you?",
			practitioner, day, formatDays(check.OtherDays))
	}
	return fmt.Sprintf("%s has no availability on or after %s. Would you like another practitioner?", practitioner, day)
}

func noDayPrompt(practitioner, date string, others []availability.FreeSlot) string {
	day := availability.FormatDate(date)
	if len(others) == 0 {
		return fmt.Sprintf("%s has no free times on %s and nothing else soon. Would you like another practitioner?", practitioner, day)
	}
	return fmt.Sprintf("%s has no free times on %s. Next availability: %s. Which day works for you?", practitioner, day, formatDays(others))
}

// formatDays renders "Tue 16/09 (09:00, 09:30, 10:00); Wed 17/09 (...)".
func formatDays(days []availability.FreeSlot) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, fmt.Sprintf("%s (%s)", availability.FormatDate(d.Date), strings.Join(limit(d.Times, 3), ", ")))
	}
	return strings.Join(parts, "; ")
}

func limit(in []string, n int) []string {
	if n > 0 && len(in) > n {
		return in[:n]
	}
	return in
}

func joinOr(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " or " + items[len(items)-1]
}

func humanList(missing session.Missing) string {
	parts := make([]string, len(missing))
	for i, slot := range missing {
		parts[i] = string(slot)
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
}
