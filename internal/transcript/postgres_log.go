package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/clinic-booking-assistant/internal/nlu"
)

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresLog persists every entry in session_messages.
type PostgresLog struct {
	db pgQuerier
}

// NewPostgresLog creates a Postgres message log.
func NewPostgresLog(pool *pgxpool.Pool) *PostgresLog {
	if pool == nil {
		panic("transcript: pgx pool required")
	}
	return &PostgresLog{db: pool}
}

func newPostgresLogWithExec(db pgQuerier) *PostgresLog {
	if db == nil {
		panic("transcript: exec required")
	}
	return &PostgresLog{db: db}
}

func (l *PostgresLog) Append(ctx context.Context, e Entry) error {
	if e.SessionID == "" {
		return errors.New("transcript: session id required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	entities, err := json.Marshal(e.Entities)
	if err != nil {
		return fmt.Errorf("transcript: marshal entities: %w", err)
	}
	query := `
		INSERT INTO session_messages (id, session_id, role, content, intent, confidence, entities, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := l.db.Exec(ctx, query, e.ID, e.SessionID, e.Role, e.Content, string(e.Intent), e.Confidence, entities, e.Timestamp); err != nil {
		return fmt.Errorf("transcript: insert entry: %w", err)
	}
	return nil
}

// Recent returns the last limit entries, oldest first.
func (l *PostgresLog) Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, session_id, role, content, COALESCE(intent, ''), COALESCE(confidence, 0), entities, created_at
		FROM (
			SELECT * FROM session_messages
			WHERE session_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`
	rows, err := l.db.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("transcript: query entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e        Entry
			intent   string
			entities []byte
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Role, &e.Content, &intent, &e.Confidence, &entities, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("transcript: scan entry: %w", err)
		}
		e.Intent = nlu.Intent(intent)
		if len(entities) > 0 {
			if err := json.Unmarshal(entities, &e.Entities); err != nil {
				return nil, fmt.Errorf("transcript: decode entities: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transcript: iterate entries: %w", err)
	}
	return out, nil
}
