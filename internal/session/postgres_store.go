package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is the durable session copy in the booking_sessions table.
type PostgresStore struct {
	db pgExecutor
}

// NewPostgresStore creates a durable store backed by Postgres.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("session: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func newPostgresStoreWithExec(db pgExecutor) *PostgresStore {
	if db == nil {
		panic("session: exec required")
	}
	return &PostgresStore{db: db}
}

const selectSessionSQL = `
	SELECT id, current_state, COALESCE(previous_state, ''), COALESCE(patient_name, ''),
	       COALESCE(pending_name, ''), name_confirmed, COALESCE(selected_specialty, ''),
	       COALESCE(selected_practitioner, ''), COALESCE(preferred_date, ''), COALESCE(preferred_time, ''),
	       COALESCE(last_suggested_practitioner, ''), COALESCE(last_suggested_practitioners, '{}'),
	       COALESCE(handoff_link, ''), COALESCE(handoff_summary, ''), version, created_at, updated_at
	FROM booking_sessions
	WHERE id = $1
`

// Load reads a session by id.
func (s *PostgresStore) Load(ctx context.Context, id string) (*Session, error) {
	var (
		sess          Session
		current, prev string
		suggestions   []string
	)
	err := s.db.QueryRow(ctx, selectSessionSQL, id).Scan(
		&sess.ID, &current, &prev, &sess.PatientName,
		&sess.PendingName, &sess.NameConfirmed, &sess.SelectedSpecialty,
		&sess.SelectedPractitioner, &sess.PreferredDate, &sess.PreferredTime,
		&sess.LastSuggestedPractitioner, &suggestions,
		&sess.HandoffLink, &sess.HandoffSummary, &sess.Version, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session: load %s: %w", id, err)
	}
	sess.CurrentState = State(current)
	sess.PreviousState = State(prev)
	if len(suggestions) > 0 {
		sess.LastSuggestedPractitioners = suggestions
	}
	return &sess, nil
}

const upsertSessionSQL = `
	INSERT INTO booking_sessions (
		id, current_state, previous_state, patient_name, pending_name, name_confirmed,
		selected_specialty, selected_practitioner, preferred_date, preferred_time,
		last_suggested_practitioner, last_suggested_practitioners,
		handoff_link, handoff_summary, version, created_at, updated_at
	) VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	ON CONFLICT (id) DO UPDATE SET
		current_state = EXCLUDED.current_state,
		previous_state = EXCLUDED.previous_state,
		patient_name = EXCLUDED.patient_name,
		pending_name = EXCLUDED.pending_name,
		name_confirmed = EXCLUDED.name_confirmed,
		selected_specialty = EXCLUDED.selected_specialty,
		selected_practitioner = EXCLUDED.selected_practitioner,
		preferred_date = EXCLUDED.preferred_date,
		preferred_time = EXCLUDED.preferred_time,
		last_suggested_practitioner = EXCLUDED.last_suggested_practitioner,
		last_suggested_practitioners = EXCLUDED.last_suggested_practitioners,
		handoff_link = EXCLUDED.handoff_link,
		handoff_summary = EXCLUDED.handoff_summary,
		version = EXCLUDED.version,
		updated_at = EXCLUDED.updated_at
	WHERE booking_sessions.version < EXCLUDED.version
`

// Save upserts the session. Older versions never overwrite newer ones.
func (s *PostgresStore) Save(ctx context.Context, sess *Session) error {
	suggestions := sess.LastSuggestedPractitioners
	if suggestions == nil {
		suggestions = []string{}
	}
	created := sess.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	tag, err := s.db.Exec(ctx, upsertSessionSQL,
		sess.ID, string(sess.CurrentState), string(sess.PreviousState), sess.PatientName, sess.PendingName, sess.NameConfirmed,
		sess.SelectedSpecialty, sess.SelectedPractitioner, sess.PreferredDate, sess.PreferredTime,
		sess.LastSuggestedPractitioner, suggestions,
		sess.HandoffLink, sess.HandoffSummary, sess.Version, created, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("session: upsert %s: %w", sess.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session: upsert %s version %d: %w", sess.ID, sess.Version, ErrConflict)
	}
	return nil
}
