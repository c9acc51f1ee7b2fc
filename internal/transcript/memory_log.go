package transcript

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLog is an in-process Log.
type MemoryLog struct {
	mu      sync.Mutex
	entries map[string][]Entry
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{entries: make(map[string][]Entry)}
}

func (l *MemoryLog) Append(_ context.Context, e Entry) error {
	if e.SessionID == "" {
		return errors.New("transcript: session id required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[e.SessionID] = append(l.entries[e.SessionID], e)
	return nil
}

func (l *MemoryLog) Recent(_ context.Context, sessionID string, limit int) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	all := l.entries[sessionID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]Entry, len(all))
	copy(out, all)
	return out, nil
}
