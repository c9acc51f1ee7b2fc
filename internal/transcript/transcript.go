// Package transcript is the append-only message log of booking sessions.
package transcript

import (
	"context"
	"time"

	"github.com/wolfman30/clinic-booking-assistant/internal/nlu"
)

// Entry is one logged message. Entries are never modified after Append.
type Entry struct {
	ID         string       `json:"id"`
	SessionID  string       `json:"session_id"`
	Role       string       `json:"role"`
	Content    string       `json:"content"`
	Intent     nlu.Intent   `json:"intent,omitempty"`
	Confidence float64      `json:"confidence,omitempty"`
	Entities   nlu.Entities `json:"entities"`
	Timestamp  time.Time    `json:"timestamp"`
}

// Log stores entries and serves the recent window fed to the oracle.
type Log interface {
	Append(ctx context.Context, e Entry) error
	Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error)
}

// History converts entries (oldest first) into oracle history messages.
func History(entries []Entry) []nlu.Message {
	out := make([]nlu.Message, 0, len(entries))
	for _, e := range entries {
		role := nlu.RoleUser
		if e.Role == nlu.RoleAssistant {
			role = nlu.RoleAssistant
		}
		out = append(out, nlu.Message{Role: role, Content: e.Content})
	}
	return out
}
