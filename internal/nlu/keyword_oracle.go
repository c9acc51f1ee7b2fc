package nlu

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/wolfman30/clinic-booking-assistant/internal/availability"
)

var (
	namePattern = regexp.MustCompile(`\b(?i:my name is|i am|i'm|this is|meu nome é|meu nome e|me chamo|sou o|sou a|sou)\s+(\p{Lu}[\p{L}'-]*(?:\s+\p{Lu}[\p{L}'-]*){0,2})`)
	timePattern = regexp.MustCompile(`(?i)(?:\b(?:at|às|as)\s+(\d{1,2}(?::\d{2}|h\d{0,2})?\s*(?:am|pm)?)\b)|\b(\d{1,2}(?::\d{2}|h\d{2}|h|\s?(?:am|pm)))\b`)

	restartWords  = []string{"start over", "restart", "from scratch", "recomeçar", "recomecar", "começar de novo", "comecar de novo"}
	confirmWords  = []string{"confirm", "book it", "please book", "go ahead and book", "confirmo", "pode marcar", "pode agendar", "confirmar"}
	continueWords = []string{"continue", "go on", "back to the booking", "let's go back", "where were we", "continuar", "voltar ao agendamento"}
	affirmWords   = []string{"yes", "yeah", "yep", "correct", "right", "sure", "ok", "okay", "sim", "isso", "certo", "exato", "claro"}
	denyWords     = []string{"no", "nope", "wrong", "not", "não", "nao", "errado"}
	greetWords    = []string{"hi", "hello", "hey", "good morning", "good afternoon", "olá", "ola", "oi", "bom dia", "boa tarde", "boa noite"}
	questionLeads = []string{"what", "how", "where", "when does", "do you", "does", "is there", "are you", "can i", "qual", "quais", "como", "onde", "quanto", "vocês", "voces", "aceita"}
	clarifyWords  = []string{"what do you mean", "i don't understand", "i dont understand", "não entendi", "nao entendi", "como assim"}
	anaphoraWords = []string{"the same one", "same one", "the same doctor", "same doctor", "that one", "o mesmo", "a mesma", "him", "her", "ele", "ela"}
)

// KeywordOracle is an offline heuristic oracle for development and tests.
type KeywordOracle struct{}

// NewKeywordOracle returns a keyword oracle.
func NewKeywordOracle() *KeywordOracle {
	return &KeywordOracle{}
}

func (KeywordOracle) Analyze(_ context.Context, req Request) (Analysis, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Analysis{Intent: IntentUnknown, Confidence: 0}, nil
	}
	lower := strings.ToLower(text)
	padded := " " + strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) && r != '\'' && r != ':' && r != '/' {
			return ' '
		}
		return r
	}, lower) + " "

	entities := extractEntities(text, lower, padded, req)
	a := Analysis{Entities: entities, Confidence: 0.85}

	switch {
	case containsAny(padded, restartWords):
		a.Intent = IntentRestart
	case containsAny(padded, clarifyWords):
		a.Intent = IntentClarification
	case strings.HasSuffix(text, "?") || startsWithAny(lower, questionLeads):
		a.Intent = IntentQuestion
	case containsAny(padded, confirmWords):
		a.Intent = IntentConfirm
	case containsAny(padded, continueWords):
		a.Intent = IntentContinue
	case !entities.Empty():
		a.Intent = IntentProvideInfo
	case containsAny(padded, affirmWords):
		a.Intent = IntentAffirm
	case containsAny(padded, denyWords):
		a.Intent = IntentDeny
	case containsAny(padded, greetWords):
		a.Intent = IntentGreeting
	default:
		a.Intent = IntentUnknown
		a.Confidence = 0.3
	}
	a.Reasoning = "keyword match"
	return a, nil
}

func extractEntities(text, lower, padded string, req Request) Entities {
	var e Entities

	if m := namePattern.FindStringSubmatch(text); m != nil {
		e.Name = strings.TrimSpace(m[1])
	}

	for _, s := range req.Catalog.Specialties {
		if s != "" && strings.Contains(lower, strings.ToLower(s)) {
			e.Specialty = s
			break
		}
	}

	// the caller's own name must not be read as a practitioner
	scan := padded
	if e.Name != "" {
		scan = strings.Replace(scan, " "+strings.ToLower(e.Name)+" ", "  ", 1)
	}
	for _, p := range req.Catalog.Practitioners {
		if practitionerMentioned(scan, p) {
			e.Practitioner = p
			break
		}
	}
	if e.Practitioner == "" {
		for _, w := range anaphoraWords {
			if strings.Contains(scan, " "+w+" ") {
				e.Practitioner = w
				break
			}
		}
	}

	rest := lower
	if loc := timePattern.FindStringSubmatchIndex(lower); loc != nil {
		for _, g := range []int{1, 2} {
			if loc[2*g] >= 0 {
				e.Time = strings.TrimSpace(lower[loc[2*g]:loc[2*g+1]])
				break
			}
		}
		rest = lower[:loc[0]] + " " + lower[loc[1]:]
	}

	e.Date = availability.DatePhrase(rest)
	return e
}

// practitionerMentioned matches on the surname so "Silva" finds "Dr. Ana Silva".
func practitionerMentioned(padded, name string) bool {
	fields := strings.Fields(strings.ToLower(name))
	if len(fields) == 0 {
		return false
	}
	surname := strings.Trim(fields[len(fields)-1], ".,")
	if len(surname) < 3 {
		return false
	}
	return strings.Contains(padded, " "+surname+" ")
}

func containsAny(padded string, words []string) bool {
	for _, w := range words {
		if strings.Contains(padded, " "+w+" ") {
			return true
		}
	}
	return false
}

func startsWithAny(s string, words []string) bool {
	for _, w := range words {
		if strings.HasPrefix(s, w+" ") {
			return true
		}
	}
	return false
}
