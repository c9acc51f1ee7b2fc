package dialogue

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-booking-assistant/internal/catalog"
)

// Answerer replies to off-topic questions asked mid-booking.
type Answerer interface {
	Answer(ctx context.Context, question string, reg *catalog.Registry) string
}

// questionTopic groups the keywords of a question the catalog can answer.
type questionTopic string

const (
	topicAddress       questionTopic = "address"
	topicPhone         questionTopic = "phone"
	topicSpecialties   questionTopic = "specialties"
	topicPractitioners questionTopic = "practitioners"
	topicOther         questionTopic = "other"
)

var topicKeywords = []struct {
	topic    questionTopic
	keywords []string
}{
	{topicAddress, []string{"address", "where are you", "located", "location", "endereço", "endereco", "onde fica"}},
	{topicPhone, []string{"phone", "call you", "telephone", "telefone", "contact"}},
	{topicSpecialties, []string{"specialt", "what do you offer", "services", "especialidade"}},
	{topicPractitioners, []string{"doctors", "practitioners", "médicos", "medicos", "who works"}},
}

// CatalogAnswerer answers questions about the clinic from the catalog and
// defers everything else to staff.
type CatalogAnswerer struct{}

func classifyQuestion(question string) questionTopic {
	q := strings.ToLower(question)
	for _, tk := range topicKeywords {
		for _, kw := range tk.keywords {
			if strings.Contains(q, kw) {
				return tk.topic
			}
		}
	}
	return topicOther
}

func (CatalogAnswerer) Answer(_ context.Context, question string, reg *catalog.Registry) string {
	cat := reg.Catalog()

	if match := reg.ResolvePractitioner(question, "", catalog.PronounContext{}); match.Resolved() {
		if p, ok := cat.Practitioner(match.Name); ok {
			answer := fmt.Sprintf("%s attends %s.", p.Name, joinOr(p.Specialties))
			if p.Bio != "" {
				answer += " " + p.Bio
			}
			return answer
		}
	}
	if name, ok := reg.ResolveSpecialty(question); ok {
		spec, _ := cat.Specialty(name)
		answer := fmt.Sprintf("Yes, we offer %s.", spec.Name)
		if spec.Description != "" {
			answer += " " + spec.Description
		}
		if names := cat.PractitionerNames(spec.Name); len(names) > 0 {
			answer += fmt.Sprintf(" Practitioners: %s.", strings.Join(names, ", "))
		}
		return answer
	}

	switch classifyQuestion(question) {
	case topicAddress:
		if cat.Address != "" {
			return fmt.Sprintf("%s is at %s.", clinicLabel(cat), cat.Address)
		}
	case topicPhone:
		if cat.Phone != "" {
			return fmt.Sprintf("You can reach %s at %s.", clinicLabel(cat), cat.Phone)
		}
	case topicSpecialties:
		return fmt.Sprintf("We offer %s.", joinOr(cat.SpecialtyNames()))
	case topicPractitioners:
		var names []string
		for _, p := range cat.Practitioners {
			names = append(names, p.Name)
		}
		return fmt.Sprintf("Our practitioners are %s.", joinOr(names))
	}

	if cat.Phone != "" {
		return fmt.Sprintf("I can't answer that here, but our staff can help at %s.", cat.Phone)
	}
	return "I can't answer that here, but our staff will be happy to help."
}

func clinicLabel(cat *catalog.Catalog) string {
	if cat.ClinicName != "" {
		return cat.ClinicName
	}
	return "The clinic"
}
