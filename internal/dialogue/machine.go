// Package dialogue implements the booking state machine: one caller message
// in, one mutated session and reply out.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-booking-assistant/internal/availability"
	"github.com/wolfman30/clinic-booking-assistant/internal/catalog"
	"github.com/wolfman30/clinic-booking-assistant/internal/handoff"
	"github.com/wolfman30/clinic-booking-assistant/internal/nlu"
	"github.com/wolfman30/clinic-booking-assistant/internal/session"
	"github.com/wolfman30/clinic-booking-assistant/pkg/logging"
)

// Availability answers schedule questions against fresh calendar data.
type Availability interface {
	Now() time.Time
	FreeSlots(ctx context.Context, practitionerID, date string) ([]availability.FreeSlot, error)
	CheckSlot(ctx context.Context, practitionerID, date, clock string) (availability.SlotCheck, error)
}

// Confirmer hands a completed booking off to the human scheduler.
type Confirmer interface {
	Confirm(ctx context.Context, s *session.Session) (handoff.Result, error)
}

// Turn is one caller message with its NLU analysis.
type Turn struct {
	Text     string
	Analysis nlu.Analysis
}

// Outcome describes what a Step did besides mutating the session.
type Outcome struct {
	Reply string
	// Parked is set when the booking was parked to answer a question.
	Parked bool
	// Resumed is set when a parked booking was restored.
	Resumed bool
	// Handoff is set on a confirmation, cached or new.
	Handoff *handoff.Result
	// Incomplete lists what was missing when a confirmation was refused.
	Incomplete session.Missing
	// Dropped lists entities that failed validation and were discarded.
	Dropped []session.Slot
	// Stale lists persisted slots cleared because they are no longer valid.
	Stale []session.Slot
	// SlotRejected is set when a requested or confirmed slot turned out busy.
	SlotRejected bool
}

// Machine is the dialogue state machine. It is stateless between calls and
// safe for concurrent use; callers serialize turns per session.
type Machine struct {
	catalogs      catalog.Provider
	avail         Availability
	confirmer     Confirmer
	answerer      Answerer
	logger        *logging.Logger
	listLimit     int
	otherDayLimit int
}

// Option customizes a Machine.
type Option func(*Machine)

// WithAnswerer replaces the catalog answerer used for off-topic questions.
func WithAnswerer(a Answerer) Option {
	return func(m *Machine) {
		if a != nil {
			m.answerer = a
		}
	}
}

// WithListLimits bounds how many times and alternative days a reply lists.
func WithListLimits(times, days int) Option {
	return func(m *Machine) {
		if times > 0 {
			m.listLimit = times
		}
		if days > 0 {
			m.otherDayLimit = days
		}
	}
}

// NewMachine wires the state machine to its collaborators.
func NewMachine(catalogs catalog.Provider, avail Availability, confirmer Confirmer, logger *logging.Logger, opts ...Option) *Machine {
	if catalogs == nil {
		panic("dialogue: catalog provider cannot be nil")
	}
	if avail == nil {
		panic("dialogue: availability cannot be nil")
	}
	if confirmer == nil {
		panic("dialogue: confirmer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	m := &Machine{
		catalogs:      catalogs,
		avail:         avail,
		confirmer:     confirmer,
		answerer:      CatalogAnswerer{},
		logger:        logger,
		listLimit:     8,
		otherDayLimit: 3,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Step applies one turn to s. s is mutated in place and must be a working
// copy: on error its contents are unspecified and must be discarded.
// Calendar failures are returned wrapping availability.ErrCalendarUnavailable.
func (m *Machine) Step(ctx context.Context, s *session.Session, in Turn) (Outcome, error) {
	if s == nil {
		return Outcome{}, errors.New("dialogue: nil session")
	}
	cat, err := m.catalogs.Load(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("dialogue: load catalog: %w", err)
	}

	t := &turn{
		m:        m,
		s:        s,
		reg:      catalog.NewRegistry(cat),
		text:     strings.TrimSpace(in.Text),
		analysis: in.Analysis,
	}
	t.revalidate()
	if err := t.run(ctx); err != nil {
		return Outcome{}, err
	}
	t.settle()
	if t.prompt == "" {
		t.prompt = t.nextQuestion()
	}
	t.out.Reply = t.reply()
	return t.out, nil
}

// turn is the working state of a single Step.
type turn struct {
	m        *Machine
	s        *session.Session
	reg      *catalog.Registry
	text     string
	analysis nlu.Analysis

	notes  []string
	prompt string
	out    Outcome

	// keepState leaves current_state untouched at the end of the turn.
	keepState bool
	// affirmUsed is set once an affirm/deny has been consumed by a sub-flow.
	affirmUsed bool
	// verified is set when this turn already checked the exact slot.
	verified bool
	// recheck asks the schedule step to re-validate an existing slot.
	recheck bool
	newDate string
	newTime string
}

func (t *turn) run(ctx context.Context) error {
	s := t.s
	intent := t.analysis.Intent

	if s.CurrentState == session.StateAnsweringQuestion && s.PreviousState == "" {
		s.Resume()
		t.out.Resumed = true
		t.m.logger.Warn("dialogue: parked session without snapshot repaired", "session_id", s.ID, "state", s.CurrentState)
	}

	if s.CurrentState == session.StateAnsweringQuestion {
		resume, err := t.parked(ctx)
		if err != nil || !resume {
			return err
		}
	} else if intent.IsQuestion() {
		t.answer(ctx)
		if s.CurrentState.Pausable() {
			s.Park()
			t.out.Parked = true
			t.prompt = promptParked
			return nil
		}
		t.keepState = true
		return nil
	}

	startState := s.CurrentState
	switch intent {
	case nlu.IntentRestart:
		s.ResetBooking()
		t.notes = append(t.notes, "No problem, let's start over.")
	case nlu.IntentGreeting:
		if startState == session.StateIdle {
			t.notes = append(t.notes, fmt.Sprintf("Hello! I can help you book an appointment at %s.", t.clinicName()))
		}
	}

	t.nameFlow()
	t.intake()
	if err := t.schedule(ctx); err != nil {
		return err
	}

	complete := s.Missing().Complete()
	switch {
	case intent == nlu.IntentConfirm && !t.affirmUsed,
		intent == nlu.IntentAffirm && !t.affirmUsed && complete &&
			(startState == session.StateChoosingSchedule || startState == session.StateConfirming):
		return t.confirm(ctx)
	case intent == nlu.IntentDeny && !t.affirmUsed && complete && startState == session.StateChoosingSchedule:
		s.ClearSchedule()
		t.notes = append(t.notes, "No problem, let's find another time.")
	}
	return nil
}

// parked handles a turn while the booking is parked and reports whether the
// booking was resumed and normal processing should continue.
func (t *turn) parked(ctx context.Context) (bool, error) {
	s := t.s
	intent := t.analysis.Intent
	fresh := t.hasNewEntities()
	if intent.IsQuestion() {
		t.answer(ctx)
		if !fresh {
			t.prompt = promptParked
			return false, nil
		}
	} else if !fresh && !resumesParked(intent) {
		t.prompt = promptParked
		return false, nil
	}

	s.Resume()
	t.out.Resumed = true
	if intent == nlu.IntentContinue || intent == nlu.IntentAffirm {
		t.affirmUsed = true
		t.notes = append(t.notes, "Great, let's get back to your booking.")
	}
	return true, nil
}

func resumesParked(intent nlu.Intent) bool {
	switch intent {
	case nlu.IntentContinue, nlu.IntentAffirm, nlu.IntentConfirm, nlu.IntentRestart:
		return true
	}
	return false
}

// hasNewEntities reports whether the turn carries booking entities that differ
// from what the session already holds.
func (t *turn) hasNewEntities() bool {
	s := t.s
	e := t.analysis.Entities
	if e.Specialty != "" {
		if name, ok := t.reg.ResolveSpecialty(e.Specialty); !ok || name != s.SelectedSpecialty {
			return true
		}
	}
	if e.Practitioner != "" {
		if match := t.reg.ResolvePractitioner(e.Practitioner, s.SelectedSpecialty, t.pronouns()); match.Name != s.SelectedPractitioner {
			return true
		}
	}
	if e.Date != "" {
		if date, err := availability.ResolveDate(e.Date, t.m.avail.Now()); err != nil || date != s.PreferredDate {
			return true
		}
	}
	if e.Time != "" {
		if clock, err := availability.ParseClock(e.Time); err != nil || clock != s.PreferredTime {
			return true
		}
	}
	if e.Name != "" && !s.NameConfirmed && !sameName(e.Name, s.PendingName) {
		return true
	}
	return false
}

func (t *turn) answer(ctx context.Context) {
	if a := t.m.answerer.Answer(ctx, t.text, t.reg); a != "" {
		t.notes = append(t.notes, a)
	}
}

// revalidate clears persisted slots the catalog no longer supports and
// repairs states that cannot hold with the remaining fields.
func (t *turn) revalidate() {
	s := t.s
	spec, prac := t.reg.Revalidate(s.SelectedSpecialty, s.SelectedPractitioner)

	stale := false
	if s.SelectedPractitioner != "" && prac == "" {
		t.m.logger.Debug("dialogue: stale practitioner cleared", "session_id", s.ID, "practitioner", s.SelectedPractitioner)
		t.notes = append(t.notes, fmt.Sprintf("%s is no longer available for booking.", s.SelectedPractitioner))
		t.out.Stale = append(t.out.Stale, session.SlotPractitioner)
		stale = true
	}
	if s.SelectedSpecialty != "" && spec == "" {
		t.m.logger.Debug("dialogue: stale specialty cleared", "session_id", s.ID, "specialty", s.SelectedSpecialty)
		t.notes = append(t.notes, fmt.Sprintf("We no longer offer %s.", s.SelectedSpecialty))
		t.out.Stale = append(t.out.Stale, session.SlotSpecialty)
		stale = true
		if prac != "" {
			if sole, ok := t.reg.SoleSpecialty(prac); ok {
				spec = sole
			}
		}
	}
	s.SelectedSpecialty = spec
	s.SelectedPractitioner = prac

	if (spec == "" || prac == "") && (s.PreferredDate != "" || s.PreferredTime != "") {
		s.ClearSchedule()
	}
	if stale || (s.CurrentState == session.StateConfirming && s.HandoffLink == "") {
		s.ClearHandoff()
	}
	if s.CurrentState != session.StateAnsweringQuestion && s.PreviousState != "" {
		s.PreviousState = ""
	}
}

// settle derives current_state from the collected slots.
func (t *turn) settle() {
	s := t.s
	if t.keepState || s.CurrentState == session.StateAnsweringQuestion {
		return
	}
	if s.CurrentState == session.StateConfirming && s.HandoffLink != "" {
		return
	}
	switch {
	case !s.NameConfirmed && s.PendingName != "":
		s.CurrentState = session.StateConfirmingName
	case !s.NameConfirmed || strings.TrimSpace(s.PatientName) == "":
		s.CurrentState = session.StateCollectingIdentity
	default:
		s.CurrentState = s.Missing().NextState()
	}
}

func (t *turn) reply() string {
	parts := make([]string, 0, len(t.notes)+1)
	for _, n := range append(t.notes, t.prompt) {
		if n = strings.TrimSpace(n); n != "" {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, " ")
}

func (t *turn) drop(slot session.Slot, value string) {
	t.out.Dropped = append(t.out.Dropped, slot)
	t.m.logger.Debug("dialogue: entity dropped", "session_id", t.s.ID, "slot", string(slot), "value", value)
}

// bookingChanged resets a hand-off made for the previous slot values.
func (t *turn) bookingChanged() {
	s := t.s
	if s.HandoffLink != "" || s.CurrentState == session.StateConfirming {
		s.ClearHandoff()
		t.m.logger.Info("dialogue: booking changed after handoff", "session_id", s.ID)
	}
}

func (t *turn) pronouns() catalog.PronounContext {
	return catalog.PronounContext{
		Confirmed:     t.s.SelectedPractitioner,
		LastSuggested: t.s.LastSuggestedPractitioner,
		Suggestions:   t.s.LastSuggestedPractitioners,
	}
}

func (t *turn) practitionerID() string {
	if id, ok := t.reg.PractitionerID(t.s.SelectedPractitioner); ok {
		return id
	}
	return t.s.SelectedPractitioner
}

func (t *turn) clinicName() string {
	if name := t.reg.Catalog().ClinicName; name != "" {
		return name
	}
	return "the clinic"
}
