// Package session holds the per-caller booking session and its storage.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// State is the dialogue state of a session.
type State string

const (
	StateIdle                  State = "idle"
	StateCollectingIdentity    State = "collecting_identity"
	StateConfirmingName        State = "confirming_name"
	StateSelectingSpecialty    State = "selecting_specialty"
	StateSelectingPractitioner State = "selecting_practitioner"
	StateChoosingSchedule      State = "choosing_schedule"
	StateConfirming            State = "confirming"
	StateAnsweringQuestion     State = "answering_question"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateIdle, StateCollectingIdentity, StateConfirmingName, StateSelectingSpecialty,
		StateSelectingPractitioner, StateChoosingSchedule, StateConfirming, StateAnsweringQuestion:
		return true
	}
	return false
}

// Pausable reports whether an off-topic question in this state parks the booking.
func (s State) Pausable() bool {
	switch s {
	case StateCollectingIdentity, StateSelectingSpecialty, StateSelectingPractitioner,
		StateChoosingSchedule, StateConfirmingName:
		return true
	}
	return false
}

// ErrInvariant is returned by Validate when a session is internally inconsistent.
var ErrInvariant = errors.New("session: invariant violated")

// Session is the persisted booking conversation for one caller. JSON field
// names double as column and attribute names.
type Session struct {
	ID                         string    `json:"id" dynamodbav:"id"`
	CurrentState               State     `json:"current_state" dynamodbav:"current_state"`
	PreviousState              State     `json:"previous_state,omitempty" dynamodbav:"previous_state,omitempty"`
	PatientName                string    `json:"patient_name,omitempty" dynamodbav:"patient_name,omitempty"`
	PendingName                string    `json:"pending_name,omitempty" dynamodbav:"pending_name,omitempty"`
	NameConfirmed              bool      `json:"name_confirmed" dynamodbav:"name_confirmed"`
	SelectedSpecialty          string    `json:"selected_specialty,omitempty" dynamodbav:"selected_specialty,omitempty"`
	SelectedPractitioner       string    `json:"selected_practitioner,omitempty" dynamodbav:"selected_practitioner,omitempty"`
	PreferredDate              string    `json:"preferred_date,omitempty" dynamodbav:"preferred_date,omitempty"`
	PreferredTime              string    `json:"preferred_time,omitempty" dynamodbav:"preferred_time,omitempty"`
	LastSuggestedPractitioner  string    `json:"last_suggested_practitioner,omitempty" dynamodbav:"last_suggested_practitioner,omitempty"`
	LastSuggestedPractitioners []string  `json:"last_suggested_practitioners,omitempty" dynamodbav:"last_suggested_practitioners,omitempty"`
	HandoffLink                string    `json:"handoff_link,omitempty" dynamodbav:"handoff_link,omitempty"`
	HandoffSummary             string    `json:"handoff_summary,omitempty" dynamodbav:"handoff_summary,omitempty"`
	Version                    int64     `json:"version" dynamodbav:"version"`
	CreatedAt                  time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt                  time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

// New returns the initial session for an identity.
func New(id string, now time.Time) *Session {
	now = now.UTC()
	return &Session{
		ID:           id,
		CurrentState: StateIdle,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.LastSuggestedPractitioners != nil {
		c.LastSuggestedPractitioners = append([]string(nil), s.LastSuggestedPractitioners...)
	}
	return &c
}

// Slot names a piece of booking information.
type Slot string

const (
	SlotName         Slot = "name"
	SlotSpecialty    Slot = "specialty"
	SlotPractitioner Slot = "practitioner"
	SlotDate         Slot = "date"
	SlotTime         Slot = "time"
)

// Missing is the set of slots a session still lacks, in collection order.
type Missing []Slot

// Missing computes the slots that still need to be collected.
func (s *Session) Missing() Missing {
	var m Missing
	if !s.NameConfirmed || strings.TrimSpace(s.PatientName) == "" {
		m = append(m, SlotName)
	}
	if s.SelectedSpecialty == "" {
		m = append(m, SlotSpecialty)
	}
	if s.SelectedPractitioner == "" {
		m = append(m, SlotPractitioner)
	}
	if s.PreferredDate == "" {
		m = append(m, SlotDate)
	}
	if s.PreferredTime == "" {
		m = append(m, SlotTime)
	}
	return m
}

// Has reports whether slot is missing.
func (m Missing) Has(slot Slot) bool {
	for _, s := range m {
		if s == slot {
			return true
		}
	}
	return false
}

// First returns the next slot to ask for, or "" when nothing is missing.
func (m Missing) First() Slot {
	if len(m) == 0 {
		return ""
	}
	return m[0]
}

// Complete reports whether every slot is filled.
func (m Missing) Complete() bool {
	return len(m) == 0
}

// NextState is the collection state that asks for the first missing slot.
func (m Missing) NextState() State {
	switch m.First() {
	case SlotName:
		return StateCollectingIdentity
	case SlotSpecialty:
		return StateSelectingSpecialty
	case SlotPractitioner:
		return StateSelectingPractitioner
	default:
		return StateChoosingSchedule
	}
}

func (m Missing) String() string {
	parts := make([]string, len(m))
	for i, s := range m {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}

// Validate checks the cross-field invariants that must hold before a save.
func (s *Session) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil session", ErrInvariant)
	}
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvariant)
	}
	if !s.CurrentState.Valid() {
		return fmt.Errorf("%w: unknown state %q", ErrInvariant, s.CurrentState)
	}
	if (s.PreferredDate != "" || s.PreferredTime != "") && (s.SelectedSpecialty == "" || s.SelectedPractitioner == "") {
		return fmt.Errorf("%w: schedule set without specialty and practitioner", ErrInvariant)
	}
	if s.CurrentState == StateConfirming && s.HandoffLink == "" {
		return fmt.Errorf("%w: confirming without handoff link", ErrInvariant)
	}
	if (s.CurrentState == StateAnsweringQuestion) != (s.PreviousState != "") {
		return fmt.Errorf("%w: previous_state %q with state %q", ErrInvariant, s.PreviousState, s.CurrentState)
	}
	if s.PreviousState != "" && (!s.PreviousState.Valid() || s.PreviousState == StateAnsweringQuestion) {
		return fmt.Errorf("%w: invalid previous_state %q", ErrInvariant, s.PreviousState)
	}
	return nil
}

// ResetBooking clears booking slots and hand-off fields but keeps the caller's
// confirmed identity.
func (s *Session) ResetBooking() {
	s.SelectedSpecialty = ""
	s.SelectedPractitioner = ""
	s.LastSuggestedPractitioner = ""
	s.LastSuggestedPractitioners = nil
	s.PendingName = ""
	s.PreviousState = ""
	s.ClearSchedule()
	s.ClearHandoff()
	s.CurrentState = s.Missing().NextState()
	if s.CurrentState == StateCollectingIdentity && s.PatientName == "" {
		s.CurrentState = StateIdle
	}
}

// ClearSchedule drops the requested date and time.
func (s *Session) ClearSchedule() {
	s.PreferredDate = ""
	s.PreferredTime = ""
}

// ClearHandoff drops the hand-off result and leaves the confirming state.
func (s *Session) ClearHandoff() {
	s.HandoffLink = ""
	s.HandoffSummary = ""
	if s.CurrentState == StateConfirming {
		s.CurrentState = StateChoosingSchedule
	}
	if s.PreviousState == StateConfirming {
		s.PreviousState = StateChoosingSchedule
	}
}

// Park snapshots the current state and moves to answering_question.
func (s *Session) Park() {
	if s.CurrentState == StateAnsweringQuestion {
		return
	}
	s.PreviousState = s.CurrentState
	s.CurrentState = StateAnsweringQuestion
}

// Resume restores the parked state. A parked session without a snapshot
// resumes to the state its missing slots dictate.
func (s *Session) Resume() {
	if s.CurrentState != StateAnsweringQuestion {
		return
	}
	prev := s.PreviousState
	if !prev.Valid() || prev == StateAnsweringQuestion {
		prev = s.Missing().NextState()
	}
	if prev == StateConfirming && s.HandoffLink == "" {
		prev = s.Missing().NextState()
	}
	s.CurrentState = prev
	s.PreviousState = ""
}

// Suggest records practitioners offered to the caller for pronoun resolution.
func (s *Session) Suggest(names ...string) {
	if len(names) == 0 {
		return
	}
	s.LastSuggestedPractitioners = append([]string(nil), names...)
	s.LastSuggestedPractitioner = names[0]
}
