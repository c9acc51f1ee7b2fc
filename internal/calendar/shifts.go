package calendar

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/clinic-booking-assistant/internal/availability"
)

type txStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ShiftSync writes catalog shifts into practitioner_shifts.
type ShiftSync struct {
	db txStarter
}

// NewShiftSync builds a shift writer over a pgx pool.
func NewShiftSync(pool *pgxpool.Pool) *ShiftSync {
	if pool == nil {
		panic("calendar: pgx pool required")
	}
	return &ShiftSync{db: pool}
}

// Replace swaps the stored shifts of every practitioner in shifts inside one
// transaction. Practitioners absent from the map keep their rows.
func (s *ShiftSync) Replace(ctx context.Context, shifts map[string][]availability.Shift) error {
	ctx, span := tracer.Start(ctx, "calendar.replace_shifts")
	defer span.End()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("calendar: begin shift sync: %w", err)
	}
	for _, id := range slices.Sorted(maps.Keys(shifts)) {
		if err := replaceShifts(ctx, tx, id, shifts[id]); err != nil {
			span.RecordError(err)
			_ = tx.Rollback(ctx)
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("calendar: commit shift sync: %w", err)
	}
	return nil
}

func replaceShifts(ctx context.Context, tx pgx.Tx, practitionerID string, shifts []availability.Shift) error {
	if _, err := tx.Exec(ctx, `DELETE FROM practitioner_shifts WHERE practitioner_id = $1`, practitionerID); err != nil {
		return fmt.Errorf("calendar: clear shifts for %s: %w", practitionerID, err)
	}
	for _, sh := range shifts {
		_, err := tx.Exec(ctx,
			`INSERT INTO practitioner_shifts (practitioner_id, weekday, start_time, end_time) VALUES ($1, $2, $3, $4)`,
			practitionerID, int(sh.Weekday), sh.Start, sh.End,
		)
		if err != nil {
			return fmt.Errorf("calendar: insert shift for %s: %w", practitionerID, err)
		}
	}
	return nil
}
