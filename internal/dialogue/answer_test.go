package dialogue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wolfman30/clinic-booking-assistant/internal/catalog"
)

func TestCatalogAnswerer(t *testing.T) {
	cat := catalog.DefaultCatalog()
	cat.ClinicName = "Clínica Vida"
	cat.Address = "Rua das Flores, 100"
	cat.Phone = "+55 11 4000-0000"
	cat.Specialties[0].Description = "Heart and blood vessels."
	reg := catalog.NewRegistry(cat)

	cases := []struct {
		question string
		want     string
	}{
		{"Who is Dr. Bruno Costa?", "Dr. Bruno Costa attends Cardiology or Pediatrics."},
		{"do you treat skin problems?", "Yes, we offer Dermatology."},
		{"do you have cardiology?", "Heart and blood vessels. Practitioners: Dr. Ana Silva, Dr. Bruno Costa."},
		{"what's your address?", "Clínica Vida is at Rua das Flores, 100."},
		{"what is your phone?", "You can reach Clínica Vida at +55 11 4000-0000."},
		{"which doctors work there?", "Our practitioners are Dr. Ana Silva, Dr. Bruno Costa or Dr. Carla Souza."},
		{"do you accept my insurance?", "our staff can help at +55 11 4000-0000"},
	}
	for _, tc := range cases {
		t.Run(tc.question, func(t *testing.T) {
			assert.Contains(t, CatalogAnswerer{}.Answer(context.Background(), tc.question, reg), tc.want)
		})
	}
}

func TestLooksLikeName(t *testing.T) {
	assert.True(t, looksLikeName("Maria Lima"))
	assert.True(t, looksLikeName("João D'Ávila"))
	assert.False(t, looksLikeName("yes"))
	assert.False(t, looksLikeName("I want to book an appointment please"))
	assert.False(t, looksLikeName("10:30"))
}
