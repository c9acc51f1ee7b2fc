package availability

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrPastDate is returned when a caller names a date that already passed.
	ErrPastDate = errors.New("availability: date is in the past")
	// ErrUnrecognizedDate is returned when no date can be read from the text.
	ErrUnrecognizedDate = errors.New("availability: unrecognized date")
	// ErrUnrecognizedTime is returned when no time of day can be read from the text.
	ErrUnrecognizedTime = errors.New("availability: unrecognized time")
)

var (
	isoDatePattern  = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	dayMonthPattern = regexp.MustCompile(`\b(\d{1,2})[/.-](\d{1,2})(?:[/.-](\d{2,4}))?\b`)
	clockPattern    = regexp.MustCompile(`\b(\d{1,2})(?:[:h.](\d{2}))?\s*(am|pm|h)?\b`)
	// minutesClockPattern matches the unambiguous "10:30" / "10h30" forms.
	minutesClockPattern = regexp.MustCompile(`\b(\d{1,2})[:h](\d{2})\s*(am|pm)?\b`)
	// dateTokenPattern strips dates so their digits are not read as hours.
	dateTokenPattern = regexp.MustCompile(`\d{1,4}[/-]\d{1,2}(?:[/-]\d{1,4})?`)
	relativeDayWords = []struct {
		words  []string
		offset int
	}{
		// longest phrases first: "day after tomorrow" contains "tomorrow"
		{[]string{"day after tomorrow", "depois de amanhã", "depois de amanha"}, 2},
		{[]string{"tomorrow", "amanhã", "amanha"}, 1},
		{[]string{"today", "hoje"}, 0},
	}
	weekdayWords = map[string]time.Weekday{
		"sunday": time.Sunday, "domingo": time.Sunday,
		"monday": time.Monday, "segunda": time.Monday,
		"tuesday": time.Tuesday, "terça": time.Tuesday, "terca": time.Tuesday,
		"wednesday": time.Wednesday, "quarta": time.Wednesday,
		"thursday": time.Thursday, "quinta": time.Thursday,
		"friday": time.Friday, "sexta": time.Friday,
		"saturday": time.Saturday, "sábado": time.Saturday, "sabado": time.Saturday,
	}
)

// ResolveDate reads a caller date reference relative to now and returns it in
// DateLayout. Relative references (weekday names, "tomorrow") resolve to the
// next occurrence on or after today; explicit dates in the past are rejected.
func ResolveDate(text string, now time.Time) (string, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return "", ErrUnrecognizedDate
	}
	loc := now.Location()
	today := dateOnly(now, loc)

	if m := isoDatePattern.FindStringSubmatch(s); m != nil {
		return explicitDate(atoi(m[1]), atoi(m[2]), atoi(m[3]), today)
	}

	for _, rel := range relativeDayWords {
		for _, w := range rel.words {
			if strings.Contains(s, w) {
				return today.AddDate(0, 0, rel.offset).Format(DateLayout), nil
			}
		}
	}

	if m := dayMonthPattern.FindStringSubmatch(s); m != nil {
		day, month := atoi(m[1]), atoi(m[2])
		if m[3] != "" {
			year := atoi(m[3])
			if year < 100 {
				year += 2000
			}
			return explicitDate(year, month, day, today)
		}
		candidate, err := buildDate(today.Year(), month, day, loc)
		if err != nil {
			return "", err
		}
		if candidate.Before(today) {
			candidate, err = buildDate(today.Year()+1, month, day, loc)
			if err != nil {
				return "", err
			}
		}
		return candidate.Format(DateLayout), nil
	}

	for _, token := range strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '-' || r == '.'
	}) {
		if wd, ok := weekdayWords[token]; ok {
			offset := (int(wd) - int(today.Weekday()) + 7) % 7
			return today.AddDate(0, 0, offset).Format(DateLayout), nil
		}
	}
	return "", ErrUnrecognizedDate
}

func explicitDate(year, month, day int, today time.Time) (string, error) {
	d, err := buildDate(year, month, day, today.Location())
	if err != nil {
		return "", err
	}
	if d.Before(today) {
		return "", ErrPastDate
	}
	return d.Format(DateLayout), nil
}

func buildDate(year, month, day int, loc *time.Location) (time.Time, error) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, ErrUnrecognizedDate
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	// reject rollovers such as 31/02
	if d.Day() != day || int(d.Month()) != month {
		return time.Time{}, ErrUnrecognizedDate
	}
	return d, nil
}

// ParseClock reads a time of day ("10", "10:30", "10h30", "2pm") and returns it
// in ClockLayout.
func ParseClock(text string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	m := minutesClockPattern.FindStringSubmatch(s)
	if m == nil {
		m = clockPattern.FindStringSubmatch(dateTokenPattern.ReplaceAllString(s, " "))
	}
	if m == nil {
		return "", ErrUnrecognizedTime
	}
	hour := atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute = atoi(m[2])
	}
	switch m[3] {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	if hour > 23 || minute > 59 {
		return "", fmt.Errorf("%w: %q", ErrUnrecognizedTime, text)
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), nil
}

// FormatDate renders a stored date for callers, e.g. "Mon 15/09".
func FormatDate(date string) string {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return date
	}
	return d.Format("Mon 02/01")
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}

// DatePhrase returns the fragment of text that ResolveDate would read, or ""
// when the text holds no date reference.
func DatePhrase(text string) string {
	s := strings.ToLower(text)
	if m := isoDatePattern.FindString(s); m != "" {
		return m
	}
	for _, rel := range relativeDayWords {
		for _, w := range rel.words {
			if strings.Contains(s, w) {
				return w
			}
		}
	}
	if m := dayMonthPattern.FindString(s); m != "" {
		return m
	}
	for _, token := range strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '-' || r == '.' || r == '?' || r == '!'
	}) {
		if _, ok := weekdayWords[token]; ok {
			return token
		}
	}
	return ""
}
