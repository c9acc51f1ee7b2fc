package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testCatalog() *Catalog {
	return &Catalog{
		ClinicName: "Clínica Centro",
		Specialties: []Specialty{
			{Name: "Cardiology", Aliases: []string{"cardiologia"}},
			{Name: "Dermatology", Aliases: []string{"dermatologia"}},
			{Name: "Pediatric Dermatology"},
		},
		Practitioners: []Practitioner{
			{ID: "dr-silva", Name: "Dr. Ana Silva", Specialties: []string{"Cardiology"}},
			{ID: "dr-silva-b", Name: "Dr. Bruno Silva", Specialties: []string{"Cardiology"}},
			{ID: "dr-souza", Name: "Dra. Carla Souza", Specialties: []string{"Dermatology", "Pediatric Dermatology"}},
			{ID: "dr-lima", Name: "Dr. João Lima", Specialties: []string{"Dermatology"}},
		},
	}
}

func TestResolveSpecialty(t *testing.T) {
	r := NewRegistry(testCatalog())

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"cardiology", "Cardiology", true},
		{"  CARDIOLOGIA ", "Cardiology", true},
		{"cardio", "Cardiology", true},
		{"dermatológia", "Dermatology", true},
		{"pediatric dermatology", "Pediatric Dermatology", true},
		{"derm", "", false},
		{"neurology", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := r.ResolveSpecialty(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestResolvePractitioner(t *testing.T) {
	r := NewRegistry(testCatalog())

	m := r.ResolvePractitioner("Dra. Ana Silva", "", PronounContext{})
	assert.Equal(t, "Dr. Ana Silva", m.Name)

	m = r.ResolvePractitioner("joao lima", "Dermatology", PronounContext{})
	assert.Equal(t, "Dr. João Lima", m.Name)

	m = r.ResolvePractitioner("Silva", "Cardiology", PronounContext{})
	assert.False(t, m.Resolved())
	assert.ElementsMatch(t, []string{"Dr. Ana Silva", "Dr. Bruno Silva"}, m.Candidates)

	m = r.ResolvePractitioner("Souza", "Cardiology", PronounContext{})
	assert.False(t, m.Resolved())
	assert.True(t, m.WrongSpecialty)

	m = r.ResolvePractitioner("Dr. House", "", PronounContext{})
	assert.False(t, m.Resolved())
	assert.Empty(t, m.Candidates)
	assert.False(t, m.WrongSpecialty)
}

func TestResolvePractitionerPronouns(t *testing.T) {
	r := NewRegistry(testCatalog())

	m := r.ResolvePractitioner("I'd like him", "Cardiology", PronounContext{LastSuggested: "Dr. Ana Silva"})
	assert.True(t, m.Anaphoric)
	assert.Equal(t, "Dr. Ana Silva", m.Name)

	m = r.ResolvePractitioner("the same one", "", PronounContext{
		Confirmed:     "Dr. João Lima",
		LastSuggested: "Dr. Ana Silva",
	})
	assert.Equal(t, "Dr. João Lima", m.Name)

	m = r.ResolvePractitioner("ela", "", PronounContext{Suggestions: []string{"Dra. Carla Souza", "Dr. João Lima"}})
	assert.Equal(t, "Dra. Carla Souza", m.Name)

	m = r.ResolvePractitioner("him", "Dermatology", PronounContext{LastSuggested: "Dr. Ana Silva"})
	assert.False(t, m.Resolved())
	assert.True(t, m.WrongSpecialty)

	m = r.ResolvePractitioner("her", "", PronounContext{})
	assert.True(t, m.Anaphoric)
	assert.False(t, m.Resolved())
}

func TestRevalidate(t *testing.T) {
	r := NewRegistry(testCatalog())

	s, p := r.Revalidate("cardiology", "Dr. Ana Silva")
	assert.Equal(t, "Cardiology", s)
	assert.Equal(t, "Dr. Ana Silva", p)

	s, p = r.Revalidate("Cardiology", "Dra. Carla Souza")
	assert.Equal(t, "Cardiology", s)
	assert.Empty(t, p)

	s, p = r.Revalidate("Oncology", "Dr. Ana Silva")
	assert.Empty(t, s)
	assert.Equal(t, "Dr. Ana Silva", p)

	s, p = r.Revalidate("", "Dr. Retired")
	assert.Empty(t, s)
	assert.Empty(t, p)
}

func TestSoleSpecialtyAndID(t *testing.T) {
	r := NewRegistry(testCatalog())

	s, ok := r.SoleSpecialty("Dr. Ana Silva")
	assert.True(t, ok)
	assert.Equal(t, "Cardiology", s)

	_, ok = r.SoleSpecialty("Dra. Carla Souza")
	assert.False(t, ok)

	id, ok := r.PractitionerID("Dr. João Lima")
	assert.True(t, ok)
	assert.Equal(t, "dr-lima", id)
}
