package handoff

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/clinic-booking-assistant/internal/ledger"
	"github.com/wolfman30/clinic-booking-assistant/internal/session"
	"github.com/wolfman30/clinic-booking-assistant/pkg/logging"
)

// IncompleteError lists the slots still missing when a confirmation is requested.
type IncompleteError struct {
	Missing session.Missing
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("handoff: booking incomplete: missing %s", e.Missing)
}

// Notifier tells clinic staff about a confirmed booking.
type Notifier interface {
	NotifyHandoff(ctx context.Context, b Booking, summary, link string) error
}

// Result is the outcome of a confirmation.
type Result struct {
	Summary string
	Link    string
	// Cached is set when the booking was already handed off and the stored
	// result was returned without building a new link.
	Cached   bool
	Notified bool
}

// Coordinator hands completed bookings over to the human scheduler.
type Coordinator struct {
	links      LinkBuilder
	notifier   Notifier
	ledger     ledger.Ledger
	clinicName string
	logger     *logging.Logger
	now        func() time.Time
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithNotifier sends staff notifications through n.
func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) {
		c.notifier = n
	}
}

// WithLedger deduplicates notifications through l.
func WithLedger(l ledger.Ledger) Option {
	return func(c *Coordinator) {
		c.ledger = l
	}
}

// WithClinicName sets the clinic name used in summaries.
func WithClinicName(name string) Option {
	return func(c *Coordinator) {
		c.clinicName = name
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCoordinator builds a hand-off coordinator.
func NewCoordinator(links LinkBuilder, logger *logging.Logger, opts ...Option) *Coordinator {
	if links == nil {
		panic("handoff: link builder cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &Coordinator{links: links, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Confirm hands the session's booking off. A session already confirming
// returns its stored result without building a new link. On success the
// session is moved to confirming with the link and summary recorded.
func (c *Coordinator) Confirm(ctx context.Context, s *session.Session) (Result, error) {
	if s.CurrentState == session.StateConfirming && s.HandoffLink != "" {
		return Result{Summary: s.HandoffSummary, Link: s.HandoffLink, Cached: true}, nil
	}
	if missing := s.Missing(); !missing.Complete() {
		return Result{}, &IncompleteError{Missing: missing}
	}

	booking := BookingFromSession(s, c.clinicName, c.now())
	link, err := c.links.BuildLink(ctx, booking)
	if err != nil {
		return Result{}, fmt.Errorf("handoff: build link: %w", err)
	}
	summary := FormatSummary(booking)

	s.HandoffLink = link
	s.HandoffSummary = summary
	s.PreviousState = ""
	s.CurrentState = session.StateConfirming

	return Result{Summary: summary, Link: link, Notified: c.notifyOnce(ctx, booking, summary, link)}, nil
}

// notifyOnce sends at most one notification per booking fingerprint. A
// notification failure never fails the confirmation; it is logged and left
// unmarked.
func (c *Coordinator) notifyOnce(ctx context.Context, b Booking, summary, link string) bool {
	if c.notifier == nil {
		return false
	}
	fp := b.Fingerprint()
	if c.ledger != nil {
		done, err := c.ledger.AlreadyProcessed(ctx, ledger.ScopeHandoff, fp)
		if err != nil {
			c.logger.Warn("handoff ledger check failed", "session_id", b.SessionID, "error", err)
			return false
		}
		if done {
			c.logger.Info("handoff already notified", "session_id", b.SessionID, "fingerprint", fp)
			return false
		}
	}
	if err := c.notifier.NotifyHandoff(ctx, b, summary, link); err != nil {
		c.logger.Error("handoff notification failed", "session_id", b.SessionID, "error", err)
		return false
	}
	if c.ledger != nil {
		if _, err := c.ledger.MarkProcessed(ctx, ledger.ScopeHandoff, fp); err != nil {
			c.logger.Error("handoff ledger mark failed", "session_id", b.SessionID, "fingerprint", fp, "error", err)
		}
	}
	c.logger.Info("handoff notified", "session_id", b.SessionID, "practitioner", b.Practitioner, "date", b.Date, "time", b.Time)
	return true
}
