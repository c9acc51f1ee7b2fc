package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-booking-assistant/pkg/logging"
)

const analysisSystemPrompt = `You classify messages sent to a medical clinic booking assistant.
Reply with a single JSON object and nothing else:
{"intent": "...", "entities": {"name": "", "specialty": "", "practitioner": "", "date": "", "time": ""}, "confidence": 0.0, "reasoning": "..."}

Intents:
- greeting: hello or small talk opening the conversation
- provide_info: the caller gives booking details (name, specialty, practitioner, date or time)
- affirm: yes, correct, that's right
- deny: no, that's wrong
- confirm: the caller asks to finalize the booking
- question: an off-topic question (prices, address, insurance, what a specialty treats)
- clarification: the caller asks what the assistant meant
- continue: the caller wants to get back to the booking after a question
- restart: the caller wants to start over
- unknown: anything else

Rules:
- Only extract values that appear in the message. Leave absent entities empty.
- specialty and practitioner should use the catalog names when the caller refers to one.
- Pronouns for a practitioner ("him", "her", "the same one") go into practitioner verbatim.
- date and time keep the caller's wording ("tomorrow", "friday", "15/09", "10:30").
- confidence is between 0 and 1.`

// LLMOracle analyzes messages with a chat model.
type LLMOracle struct {
	client      LLMClient
	model       string
	maxTokens   int32
	temperature float32
	logger      *logging.Logger
}

// LLMOracleOption customizes an LLMOracle.
type LLMOracleOption func(*LLMOracle)

// WithMaxTokens caps the completion size.
func WithMaxTokens(n int32) LLMOracleOption {
	return func(o *LLMOracle) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

// NewLLMOracle builds an oracle over client. model is passed through to the
// client and may be empty for clients bound to a model (Gemini).
func NewLLMOracle(client LLMClient, model string, logger *logging.Logger, opts ...LLMOracleOption) *LLMOracle {
	if client == nil {
		panic("nlu: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	o := &LLMOracle{client: client, model: model, maxTokens: 400, temperature: 0, logger: logger}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *LLMOracle) Analyze(ctx context.Context, req Request) (Analysis, error) {
	system, err := buildContextPrompt(req)
	if err != nil {
		return Analysis{}, fmt.Errorf("%w: build prompt: %v", ErrOracleUnavailable, err)
	}

	messages := make([]ChatMessage, 0, len(req.History)+1)
	for _, m := range req.History {
		role := ChatRoleUser
		if m.Role == RoleAssistant {
			role = ChatRoleAssistant
		}
		messages = append(messages, ChatMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: req.Text})

	resp, err := o.client.Complete(ctx, LLMRequest{
		Model:       o.model,
		System:      []string{analysisSystemPrompt, system},
		Messages:    messages,
		MaxTokens:   o.maxTokens,
		Temperature: o.temperature,
	})
	if err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}

	analysis, err := ParseAnalysis(resp.Text)
	if err != nil {
		o.logger.Warn("unparseable oracle response", "error", err, "stop_reason", resp.StopReason)
		return Analysis{}, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	o.logger.Debug("message analyzed",
		"intent", analysis.Intent,
		"confidence", analysis.Confidence,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)
	return analysis, nil
}

func buildContextPrompt(req Request) (string, error) {
	snapshot, err := json.Marshal(req.Snapshot)
	if err != nil {
		return "", err
	}
	catalog, err := json.Marshal(req.Catalog)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if !req.Now.IsZero() {
		fmt.Fprintf(&b, "Current date and time: %s (%s).\n", req.Now.Format("2006-01-02 15:04"), req.Now.Weekday())
	}
	fmt.Fprintf(&b, "Booking session: %s\n", snapshot)
	fmt.Fprintf(&b, "Catalog: %s", catalog)
	return b.String(), nil
}

type rawAnalysis struct {
	Intent     string         `json:"intent"`
	Entities   map[string]any `json:"entities"`
	Confidence json.Number    `json:"confidence"`
	Reasoning  string         `json:"reasoning"`
}

// ParseAnalysis decodes a model reply. Markdown code fences and text around
// the JSON object are tolerated; unknown intents become IntentUnknown and the
// confidence is clamped to [0, 1].
func ParseAnalysis(text string) (Analysis, error) {
	body := extractJSONObject(text)
	if body == "" {
		return Analysis{}, fmt.Errorf("nlu: no json object in response")
	}
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var raw rawAnalysis
	if err := dec.Decode(&raw); err != nil {
		return Analysis{}, fmt.Errorf("nlu: decode analysis: %w", err)
	}

	out := Analysis{
		Intent:    ParseIntent(raw.Intent),
		Reasoning: strings.TrimSpace(raw.Reasoning),
		Entities: Entities{
			Name:         entityString(raw.Entities["name"]),
			Specialty:    entityString(raw.Entities["specialty"]),
			Practitioner: entityString(raw.Entities["practitioner"]),
			Date:         entityString(raw.Entities["date"]),
			Time:         entityString(raw.Entities["time"]),
		},
	}
	if c, err := raw.Confidence.Float64(); err == nil {
		out.Confidence = clamp01(c)
	}
	return out, nil
}

func extractJSONObject(text string) string {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func entityString(v any) string {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	default:
		return ""
	}
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "null", "none", "n/a", "unknown":
		return ""
	}
	return s
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
