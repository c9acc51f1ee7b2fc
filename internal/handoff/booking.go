// Package handoff turns a completed booking into a pre-booking link for the
// human scheduler and notifies staff once per booking.
package handoff

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/wolfman30/clinic-booking-assistant/internal/availability"
	"github.com/wolfman30/clinic-booking-assistant/internal/session"
)

// Booking is the data handed to the scheduler.
type Booking struct {
	SessionID    string
	ClinicName   string
	PatientName  string
	Specialty    string
	Practitioner string
	Date         string
	Time         string
	CollectedAt  time.Time
}

// BookingFromSession copies the booking slots out of a session.
func BookingFromSession(s *session.Session, clinicName string, now time.Time) Booking {
	return Booking{
		SessionID:    s.ID,
		ClinicName:   clinicName,
		PatientName:  s.PatientName,
		Specialty:    s.SelectedSpecialty,
		Practitioner: s.SelectedPractitioner,
		Date:         s.PreferredDate,
		Time:         s.PreferredTime,
		CollectedAt:  now,
	}
}

// Fingerprint identifies the booking for deduplication. It changes whenever
// any booked slot changes.
func (b Booking) Fingerprint() string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		b.SessionID, b.PatientName, b.Specialty, b.Practitioner, b.Date, b.Time,
	}, "\x1f")))
	return hex.EncodeToString(sum[:16])
}

// FormatSummary renders the plain-text summary sent to the scheduler and
// echoed to the caller.
func FormatSummary(b Booking) string {
	var sb strings.Builder
	sb.WriteString("Appointment request\n")
	sb.WriteString(fmt.Sprintf("Patient: %s\n", valueOrNA(b.PatientName)))
	sb.WriteString(fmt.Sprintf("Contact: %s\n", valueOrNA(b.SessionID)))
	sb.WriteString(fmt.Sprintf("Specialty: %s\n", valueOrNA(b.Specialty)))
	sb.WriteString(fmt.Sprintf("Practitioner: %s\n", valueOrNA(b.Practitioner)))
	sb.WriteString(fmt.Sprintf("Date: %s\n", dateLabel(b.Date)))
	sb.WriteString(fmt.Sprintf("Time: %s", valueOrNA(b.Time)))
	return sb.String()
}

// FormatSummaryHTML renders the summary for email.
func FormatSummaryHTML(b Booking, link string) string {
	row := func(label, value string) string {
		return fmt.Sprintf(`<tr><td style="padding:6px 12px;font-weight:bold;">%s</td><td style="padding:6px 12px;">%s</td></tr>`,
			label, html.EscapeString(value))
	}
	var linkRow string
	if link != "" {
		linkRow = fmt.Sprintf(`<p><a href="%s">Open the pre-filled conversation</a></p>`, html.EscapeString(link))
	}
	clinic := b.ClinicName
	if clinic == "" {
		clinic = "the clinic"
	}
	return fmt.Sprintf(`<div style="font-family:sans-serif;max-width:600px;">
<h2 style="color:#333;">Appointment request for %s</h2>
<table style="border-collapse:collapse;width:100%%;">
%s
%s
%s
%s
%s
%s
</table>
%s
<p style="color:#666;font-size:12px;">Collected by the booking assistant on %s. Please confirm the appointment with the patient.</p>
</div>`,
		html.EscapeString(clinic),
		row("Patient", valueOrNA(b.PatientName)),
		row("Contact", valueOrNA(b.SessionID)),
		row("Specialty", valueOrNA(b.Specialty)),
		row("Practitioner", valueOrNA(b.Practitioner)),
		row("Date", dateLabel(b.Date)),
		row("Time", valueOrNA(b.Time)),
		linkRow,
		b.CollectedAt.Format(time.RFC1123),
	)
}

func dateLabel(date string) string {
	if date == "" {
		return "N/A"
	}
	return fmt.Sprintf("%s (%s)", availability.FormatDate(date), date)
}

func valueOrNA(v string) string {
	if strings.TrimSpace(v) == "" {
		return "N/A"
	}
	return v
}
