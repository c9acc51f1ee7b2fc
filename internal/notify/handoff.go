package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-booking-assistant/internal/handoff"
	"github.com/wolfman30/clinic-booking-assistant/pkg/logging"
)

// handoffTag labels booking hand-off emails in provider reporting.
const handoffTag = "booking-handoff"

// HandoffEmailNotifier emails the scheduler a summary of each confirmed booking.
type HandoffEmailNotifier struct {
	sender     EmailSender
	recipients []string
	replyTo    string
	logger     *logging.Logger
}

// HandoffOption customizes HandoffEmailNotifier.
type HandoffOption func(*HandoffEmailNotifier)

// WithReplyTo routes staff replies to the given inbox.
func WithReplyTo(addr string) HandoffOption {
	return func(n *HandoffEmailNotifier) {
		n.replyTo = strings.TrimSpace(addr)
	}
}

// NewHandoffEmailNotifier builds a notifier for a comma separated recipient
// list. Blank entries and duplicates are dropped.
func NewHandoffEmailNotifier(sender EmailSender, recipients string, logger *logging.Logger, opts ...HandoffOption) *HandoffEmailNotifier {
	if sender == nil {
		panic("notify: email sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	n := &HandoffEmailNotifier{sender: sender, recipients: splitRecipients(recipients), logger: logger}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func splitRecipients(list string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range strings.Split(list, ",") {
		r = strings.TrimSpace(r)
		key := strings.ToLower(r)
		if r == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// NotifyHandoff mails every recipient. A failed recipient does not stop the
// others; all failures are joined into the returned error.
func (n *HandoffEmailNotifier) NotifyHandoff(ctx context.Context, b handoff.Booking, summary, link string) error {
	if len(n.recipients) == 0 {
		n.logger.Debug("notify: no handoff recipients configured", "session_id", b.SessionID)
		return nil
	}
	msg := n.message(b, summary, link)

	var errs []error
	for _, to := range n.recipients {
		msg.To = to
		if err := n.sender.Send(ctx, msg); err != nil {
			n.logger.Warn("notify: handoff email failed", "to", to, "session_id", b.SessionID, "error", err)
			errs = append(errs, fmt.Errorf("notify: handoff email to %s: %w", to, err))
		}
	}
	return errors.Join(errs...)
}

func (n *HandoffEmailNotifier) message(b handoff.Booking, summary, link string) EmailMessage {
	patient := strings.TrimSpace(b.PatientName)
	if patient == "" {
		patient = "patient"
	}
	text := summary
	if link != "" {
		text += "\n\n" + link
	}
	return EmailMessage{
		ReplyTo: n.replyTo,
		Subject: fmt.Sprintf("Appointment request: %s with %s", patient, b.Practitioner),
		Body:    text,
		HTML:    handoff.FormatSummaryHTML(b, link),
		Tag:     handoffTag,
	}
}

var _ handoff.Notifier = (*HandoffEmailNotifier)(nil)
