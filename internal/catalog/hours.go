package catalog

import (
	"context"
	"fmt"

	"github.com/wolfman30/clinic-booking-assistant/internal/availability"
)

// Hours serves working-hour templates from the practitioners' catalog shifts.
// It backs calendars that only know busy periods.
type Hours struct {
	provider Provider
}

// NewHours wraps a catalog provider.
func NewHours(p Provider) *Hours {
	if p == nil {
		panic("catalog: provider cannot be nil")
	}
	return &Hours{provider: p}
}

// WorkingHours returns the practitioner's shifts; an empty template means the
// practitioner has none configured.
func (h *Hours) WorkingHours(ctx context.Context, practitionerID string) (availability.WorkingHoursTemplate, error) {
	c, err := h.provider.Load(ctx)
	if err != nil {
		return availability.WorkingHoursTemplate{}, fmt.Errorf("catalog: load for working hours: %w", err)
	}
	return availability.WorkingHoursTemplate{
		PractitionerID: practitionerID,
		Shifts:         c.ShiftsByID()[practitionerID],
	}, nil
}

// CalendarID maps a practitioner id to its external calendar id, or "" when
// none is configured or the catalog cannot be read.
func (h *Hours) CalendarID(practitionerID string) string {
	c, err := h.provider.Load(context.Background())
	if err != nil {
		return ""
	}
	return c.CalendarIDs()[practitionerID]
}
