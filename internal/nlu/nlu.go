// Package nlu defines the natural-language understanding contract used by the
// dialogue engine and the oracles that implement it.
package nlu

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrOracleUnavailable is returned when the oracle fails or its answer cannot
// be understood. The caller is asked to rephrase and nothing is saved.
var ErrOracleUnavailable = errors.New("nlu: oracle unavailable")

// Intent classifies one caller message.
type Intent string

const (
	IntentGreeting      Intent = "greeting"
	IntentProvideInfo   Intent = "provide_info"
	IntentAffirm        Intent = "affirm"
	IntentDeny          Intent = "deny"
	IntentConfirm       Intent = "confirm"
	IntentQuestion      Intent = "question"
	IntentClarification Intent = "clarification"
	IntentContinue      Intent = "continue"
	IntentRestart       Intent = "restart"
	IntentUnknown       Intent = "unknown"
)

var knownIntents = map[Intent]struct{}{
	IntentGreeting: {}, IntentProvideInfo: {}, IntentAffirm: {}, IntentDeny: {}, IntentConfirm: {},
	IntentQuestion: {}, IntentClarification: {}, IntentContinue: {}, IntentRestart: {}, IntentUnknown: {},
}

// ParseIntent maps a label to an Intent; unknown labels map to IntentUnknown.
func ParseIntent(label string) Intent {
	i := Intent(strings.ToLower(strings.TrimSpace(label)))
	if _, ok := knownIntents[i]; ok {
		return i
	}
	return IntentUnknown
}

// IsQuestion reports whether the intent is an off-topic question.
func (i Intent) IsQuestion() bool {
	return i == IntentQuestion || i == IntentClarification
}

// Entities are the optional values extracted from a message. An empty string
// means the entity is absent. Date and Time carry the caller's wording; the
// dialogue engine resolves them.
type Entities struct {
	Name         string `json:"name,omitempty"`
	Specialty    string `json:"specialty,omitempty"`
	Practitioner string `json:"practitioner,omitempty"`
	Date         string `json:"date,omitempty"`
	Time         string `json:"time,omitempty"`
}

// Empty reports whether no entity is present.
func (e Entities) Empty() bool {
	return e == Entities{}
}

// HasBooking reports whether any booking entity (not the name) is present.
func (e Entities) HasBooking() bool {
	return e.Specialty != "" || e.Practitioner != "" || e.Date != "" || e.Time != ""
}

// Analysis is the oracle's reading of one message.
type Analysis struct {
	Intent     Intent   `json:"intent"`
	Entities   Entities `json:"entities"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning,omitempty"`
}

// Snapshot is the session context handed to the oracle.
type Snapshot struct {
	State                  string   `json:"state"`
	PreviousState          string   `json:"previous_state,omitempty"`
	PatientName            string   `json:"patient_name,omitempty"`
	PendingName            string   `json:"pending_name,omitempty"`
	Specialty              string   `json:"specialty,omitempty"`
	Practitioner           string   `json:"practitioner,omitempty"`
	Date                   string   `json:"date,omitempty"`
	Time                   string   `json:"time,omitempty"`
	SuggestedPractitioners []string `json:"suggested_practitioners,omitempty"`
	Missing                []string `json:"missing,omitempty"`
}

// Message is one entry of the recent conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CatalogView lists the names the oracle may extract.
type CatalogView struct {
	Specialties   []string `json:"specialties"`
	Practitioners []string `json:"practitioners"`
}

// Request is everything an oracle may use to analyze a message.
type Request struct {
	Text     string
	Snapshot Snapshot
	History  []Message
	Catalog  CatalogView
	Now      time.Time
}

// Oracle analyzes caller messages.
type Oracle interface {
	Analyze(ctx context.Context, req Request) (Analysis, error)
}
