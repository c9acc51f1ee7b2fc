package catalog

import (
	"strings"
)

var anaphoraMarkers = []string{
	"the same doctor", "same doctor", "the same one", "same one", "the same",
	"that one", "o mesmo", "a mesma", "him", "her", "them", "ele", "ela",
}

// PronounContext carries what "him"/"the same one" may refer to, in priority
// order: the confirmed practitioner, the most recent single suggestion, then
// the first entry of the last suggestion list.
type PronounContext struct {
	Confirmed     string
	LastSuggested string
	Suggestions   []string
}

func (p PronounContext) referent() string {
	switch {
	case p.Confirmed != "":
		return p.Confirmed
	case p.LastSuggested != "":
		return p.LastSuggested
	case len(p.Suggestions) > 0:
		return p.Suggestions[0]
	}
	return ""
}

// PractitionerMatch is the outcome of resolving a practitioner reference.
type PractitionerMatch struct {
	// Name is the canonical name when resolution succeeded.
	Name string
	// Candidates lists the possible practitioners when the reference was ambiguous.
	Candidates []string
	// WrongSpecialty is set when the practitioner exists but does not attend
	// the selected specialty.
	WrongSpecialty bool
	// Anaphoric is set when the text referred back to an earlier practitioner.
	Anaphoric bool
}

// Resolved reports whether a single canonical practitioner was found.
func (m PractitionerMatch) Resolved() bool {
	return m.Name != ""
}

// Registry resolves caller references against a catalog snapshot.
type Registry struct {
	catalog *Catalog
}

// NewRegistry builds a registry. A nil catalog falls back to DefaultCatalog.
func NewRegistry(c *Catalog) *Registry {
	if c == nil {
		c = DefaultCatalog()
	}
	return &Registry{catalog: c}
}

// Catalog returns the snapshot the registry resolves against.
func (r *Registry) Catalog() *Catalog {
	return r.catalog
}

// ResolveSpecialty maps free text to a canonical specialty: exact match on the
// name or an alias first, then substring in either direction. Ambiguous
// substring matches are unresolved.
func (r *Registry) ResolveSpecialty(text string) (string, bool) {
	key := normalize(text)
	if key == "" {
		return "", false
	}
	for _, s := range r.catalog.Specialties {
		if normalize(s.Name) == key {
			return s.Name, true
		}
		for _, alias := range s.Aliases {
			if normalize(alias) == key {
				return s.Name, true
			}
		}
	}

	var matches []string
	for _, s := range r.catalog.Specialties {
		terms := append([]string{s.Name}, s.Aliases...)
		for _, term := range terms {
			if containsEither(key, normalize(term)) {
				matches = append(matches, s.Name)
				break
			}
		}
	}
	if len(matches) == 1 {
		return matches[0], true
	}
	return "", false
}

// ResolvePractitioner maps free text to a canonical practitioner. When
// specialty is not empty the practitioner must attend it.
func (r *Registry) ResolvePractitioner(text, specialty string, pronouns PronounContext) PractitionerMatch {
	if isAnaphora(text) {
		ref := pronouns.referent()
		if ref == "" {
			return PractitionerMatch{Anaphoric: true}
		}
		m := r.matchName(ref, specialty)
		m.Anaphoric = true
		return m
	}
	return r.matchName(text, specialty)
}

func (r *Registry) matchName(text, specialty string) PractitionerMatch {
	key := normalizeName(text)
	if key == "" {
		return PractitionerMatch{}
	}

	for _, p := range r.catalog.Practitioners {
		if normalizeName(p.Name) == key || normalize(p.ID) == normalize(text) {
			if specialty != "" && !p.HasSpecialty(specialty) {
				return PractitionerMatch{WrongSpecialty: true}
			}
			return PractitionerMatch{Name: p.Name}
		}
	}

	var inSpecialty, elsewhere []string
	for _, p := range r.catalog.Practitioners {
		if !nameMatches(key, normalizeName(p.Name)) {
			continue
		}
		if specialty == "" || p.HasSpecialty(specialty) {
			inSpecialty = append(inSpecialty, p.Name)
		} else {
			elsewhere = append(elsewhere, p.Name)
		}
	}
	switch {
	case len(inSpecialty) == 1:
		return PractitionerMatch{Name: inSpecialty[0]}
	case len(inSpecialty) > 1:
		return PractitionerMatch{Candidates: inSpecialty}
	case len(elsewhere) > 0:
		return PractitionerMatch{WrongSpecialty: true}
	}
	return PractitionerMatch{}
}

// Revalidate checks persisted selections against the current catalog and
// returns the values that are still valid ("" for stale ones). A practitioner
// is stale when it left the catalog or no longer attends the specialty.
func (r *Registry) Revalidate(specialty, practitioner string) (string, string) {
	validSpecialty := ""
	if specialty != "" {
		if s, ok := r.catalog.Specialty(specialty); ok {
			validSpecialty = s.Name
		}
	}
	validPractitioner := ""
	if practitioner != "" {
		if p, ok := r.catalog.Practitioner(practitioner); ok {
			if validSpecialty == "" || p.HasSpecialty(validSpecialty) {
				validPractitioner = p.Name
			}
		}
	}
	return validSpecialty, validPractitioner
}

// SoleSpecialty returns the specialty of a practitioner who attends exactly one.
func (r *Registry) SoleSpecialty(practitioner string) (string, bool) {
	p, ok := r.catalog.Practitioner(practitioner)
	if !ok || len(p.Specialties) != 1 {
		return "", false
	}
	if s, ok := r.catalog.Specialty(p.Specialties[0]); ok {
		return s.Name, true
	}
	return p.Specialties[0], true
}

// PractitionerID returns the catalog id for a canonical practitioner name.
func (r *Registry) PractitionerID(practitioner string) (string, bool) {
	p, ok := r.catalog.Practitioner(practitioner)
	if !ok {
		return "", false
	}
	return p.ID, true
}

func isAnaphora(text string) bool {
	s := " " + normalize(text) + " "
	s = strings.NewReplacer(".", " ", ",", " ", "?", " ", "!", " ").Replace(s)
	for _, marker := range anaphoraMarkers {
		if strings.Contains(s, " "+marker+" ") {
			return true
		}
	}
	return false
}

func containsEither(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// nameMatches matches a partial reference ("silva", "ana") against a full name
// on whole words.
func nameMatches(ref, name string) bool {
	if ref == "" || name == "" {
		return false
	}
	if strings.Contains(" "+name+" ", " "+ref+" ") {
		return true
	}
	return strings.Contains(" "+ref+" ", " "+name+" ")
}
