// Package catalog holds the clinic reference data (specialties and
// practitioners) and the registry that resolves caller references to it.
package catalog

import (
	"sort"
	"strings"

	"github.com/wolfman30/clinic-booking-assistant/internal/availability"
)

// Specialty is a bookable medical specialty.
type Specialty struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description"`
	Aliases     []string `json:"aliases,omitempty" yaml:"aliases"`
}

// Practitioner is a bookable professional.
type Practitioner struct {
	ID          string               `json:"id" yaml:"id"`
	Name        string               `json:"name" yaml:"name"`
	Specialties []string             `json:"specialties" yaml:"specialties"`
	CalendarID  string               `json:"calendar_id,omitempty" yaml:"calendar_id"`
	Bio         string               `json:"bio,omitempty" yaml:"bio"`
	Shifts      []availability.Shift `json:"shifts,omitempty" yaml:"shifts"`
}

// HasSpecialty reports whether the practitioner attends the named specialty.
func (p Practitioner) HasSpecialty(specialty string) bool {
	key := normalize(specialty)
	for _, s := range p.Specialties {
		if normalize(s) == key {
			return true
		}
	}
	return false
}

// Catalog is the clinic reference data.
type Catalog struct {
	ClinicName    string         `json:"clinic_name" yaml:"clinic_name"`
	Address       string         `json:"address,omitempty" yaml:"address"`
	Phone         string         `json:"phone,omitempty" yaml:"phone"`
	Specialties   []Specialty    `json:"specialties" yaml:"specialties"`
	Practitioners []Practitioner `json:"practitioners" yaml:"practitioners"`
}

// DefaultCatalog is served when no catalog has been configured.
func DefaultCatalog() *Catalog {
	return &Catalog{
		ClinicName: "Clinic",
		Specialties: []Specialty{
			{Name: "Cardiology", Aliases: []string{"cardiologia", "heart"}},
			{Name: "Dermatology", Aliases: []string{"dermatologia", "skin"}},
			{Name: "Pediatrics", Aliases: []string{"pediatria", "children"}},
		},
		Practitioners: []Practitioner{
			{ID: "dr-silva", Name: "Dr. Ana Silva", Specialties: []string{"Cardiology"}},
			{ID: "dr-costa", Name: "Dr. Bruno Costa", Specialties: []string{"Cardiology", "Pediatrics"}},
			{ID: "dr-souza", Name: "Dr. Carla Souza", Specialties: []string{"Dermatology"}},
		},
	}
}

// SpecialtyNames returns the canonical specialty names in catalog order.
func (c *Catalog) SpecialtyNames() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.Specialties))
	for _, s := range c.Specialties {
		names = append(names, s.Name)
	}
	return names
}

// Specialty looks up a specialty by canonical name.
func (c *Catalog) Specialty(name string) (Specialty, bool) {
	if c == nil {
		return Specialty{}, false
	}
	key := normalize(name)
	for _, s := range c.Specialties {
		if normalize(s.Name) == key {
			return s, true
		}
	}
	return Specialty{}, false
}

// Practitioner looks up a practitioner by canonical name.
func (c *Catalog) Practitioner(name string) (Practitioner, bool) {
	if c == nil {
		return Practitioner{}, false
	}
	key := normalize(name)
	for _, p := range c.Practitioners {
		if normalize(p.Name) == key {
			return p, true
		}
	}
	return Practitioner{}, false
}

// PractitionerNames returns the names of practitioners attending specialty,
// or every practitioner when specialty is empty, sorted by name.
func (c *Catalog) PractitionerNames(specialty string) []string {
	if c == nil {
		return nil
	}
	var names []string
	for _, p := range c.Practitioners {
		if specialty == "" || p.HasSpecialty(specialty) {
			names = append(names, p.Name)
		}
	}
	sort.Strings(names)
	return names
}

// ShiftsByID maps practitioner ids to their configured shifts.
func (c *Catalog) ShiftsByID() map[string][]availability.Shift {
	out := make(map[string][]availability.Shift)
	if c == nil {
		return out
	}
	for _, p := range c.Practitioners {
		if len(p.Shifts) > 0 {
			out[p.ID] = p.Shifts
		}
	}
	return out
}

// CalendarIDs maps practitioner ids to external calendar ids.
func (c *Catalog) CalendarIDs() map[string]string {
	out := make(map[string]string)
	if c == nil {
		return out
	}
	for _, p := range c.Practitioners {
		if strings.TrimSpace(p.CalendarID) != "" {
			out[p.ID] = p.CalendarID
		}
	}
	return out
}
