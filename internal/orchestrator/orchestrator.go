// Package orchestrator runs one booking turn end to end: serialize on the
// caller identity, load the session, analyze the message, step the dialogue
// machine and commit the result.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-booking-assistant/internal/availability"
	"github.com/wolfman30/clinic-booking-assistant/internal/catalog"
	"github.com/wolfman30/clinic-booking-assistant/internal/dialogue"
	"github.com/wolfman30/clinic-booking-assistant/internal/handoff"
	"github.com/wolfman30/clinic-booking-assistant/internal/ledger"
	"github.com/wolfman30/clinic-booking-assistant/internal/nlu"
	"github.com/wolfman30/clinic-booking-assistant/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking-assistant/internal/session"
	"github.com/wolfman30/clinic-booking-assistant/internal/transcript"
	"github.com/wolfman30/clinic-booking-assistant/pkg/logging"
)

var (
	// ErrTurnTimeout is returned when a turn ran out of time. Nothing was saved
	// and the message can be retried.
	ErrTurnTimeout = errors.New("orchestrator: turn timed out")
	// ErrBusy is returned when another turn for the same identity held the lock
	// for too long.
	ErrBusy = errors.New("orchestrator: session busy")
	// ErrInvalidInput is returned for an empty identity or message.
	ErrInvalidInput = errors.New("orchestrator: invalid input")
)

const (
	replyRephrase        = "Sorry, I didn't quite catch that. Could you say it another way?"
	replyCalendarTrouble = "Sorry, I can't check the schedule right now. Please try again in a few minutes."
)

// Outcome labels how a turn ended.
type Outcome string

const (
	OutcomeOK                  Outcome = "ok"
	OutcomeDuplicate           Outcome = "duplicate"
	OutcomeOracleUnavailable   Outcome = "oracle_unavailable"
	OutcomeCalendarUnavailable Outcome = "calendar_unavailable"
	OutcomeTimeout             Outcome = "timeout"
	OutcomeBusy                Outcome = "busy"
	OutcomeError               Outcome = "error"
)

// Inbound is one caller message as delivered by a transport.
type Inbound struct {
	Identity string
	Text     string
	// MessageID is the transport's delivery id, used to drop redeliveries.
	MessageID string
}

// Result is what a transport sends back to the caller.
type Result struct {
	Reply   string
	Session *session.Session
	Outcome Outcome
	Intent  nlu.Intent
	Handoff *handoff.Result
}

// Sessions loads and commits sessions.
type Sessions interface {
	GetOrCreate(ctx context.Context, id string) (*session.Session, error)
	Save(ctx context.Context, s *session.Session) error
}

// Stepper advances the dialogue by one turn.
type Stepper interface {
	Step(ctx context.Context, s *session.Session, in dialogue.Turn) (dialogue.Outcome, error)
}

type config struct {
	turnTimeout   time.Duration
	nluTimeout    time.Duration
	lockWait      time.Duration
	historyWindow int
}

// Orchestrator is the single entry point for booking turns.
type Orchestrator struct {
	sessions   Sessions
	machine    Stepper
	oracle     nlu.Oracle
	locker     session.Locker
	catalogs   catalog.Provider
	transcript transcript.Log
	ledger     ledger.Ledger
	metrics    *metrics.BookingMetrics
	logger     *logging.Logger
	tracer     trace.Tracer
	now        func() time.Time
	cfg        config
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTranscript logs every turn and feeds recent history to the oracle.
func WithTranscript(log transcript.Log) Option {
	return func(o *Orchestrator) {
		o.transcript = log
	}
}

// WithLedger drops redelivered inbound messages.
func WithLedger(l ledger.Ledger) Option {
	return func(o *Orchestrator) {
		o.ledger = l
	}
}

// WithMetrics records turn metrics.
func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTimeouts bounds the whole turn, the oracle call and the lock wait.
// Zero values keep the defaults.
func WithTimeouts(turn, nluCall, lockWait time.Duration) Option {
	return func(o *Orchestrator) {
		if turn > 0 {
			o.cfg.turnTimeout = turn
		}
		if nluCall > 0 {
			o.cfg.nluTimeout = nluCall
		}
		if lockWait > 0 {
			o.cfg.lockWait = lockWait
		}
	}
}

// WithHistoryWindow sets how many logged messages are sent to the oracle.
func WithHistoryWindow(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.cfg.historyWindow = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New wires an orchestrator.
func New(sessions Sessions, machine Stepper, oracle nlu.Oracle, locker session.Locker, catalogs catalog.Provider, logger *logging.Logger, opts ...Option) *Orchestrator {
	if sessions == nil {
		panic("orchestrator: sessions cannot be nil")
	}
	if machine == nil {
		panic("orchestrator: machine cannot be nil")
	}
	if oracle == nil {
		panic("orchestrator: oracle cannot be nil")
	}
	if locker == nil {
		panic("orchestrator: locker cannot be nil")
	}
	if catalogs == nil {
		panic("orchestrator: catalog provider cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	o := &Orchestrator{
		sessions: sessions,
		machine:  machine,
		oracle:   oracle,
		locker:   locker,
		catalogs: catalogs,
		logger:   logger,
		tracer:   otel.Tracer("clinic-booking-assistant/internal/orchestrator"),
		now:      time.Now,
		cfg: config{
			turnTimeout:   20 * time.Second,
			nluTimeout:    8 * time.Second,
			lockWait:      10 * time.Second,
			historyWindow: 10,
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HandleTurn processes one message from identity.
func (o *Orchestrator) HandleTurn(ctx context.Context, identity, text string) (*Result, error) {
	return o.HandleInbound(ctx, Inbound{Identity: identity, Text: text})
}

// HandleInbound processes one delivered message. Retryable failures are
// ErrTurnTimeout, ErrBusy and session.ErrStoreUnavailable; in every failure
// case the stored session is left as it was.
func (o *Orchestrator) HandleInbound(ctx context.Context, in Inbound) (*Result, error) {
	start := o.now()
	id := strings.TrimSpace(in.Identity)
	text := strings.TrimSpace(in.Text)
	if id == "" || text == "" {
		return nil, fmt.Errorf("%w: identity and text are required", ErrInvalidInput)
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.handle_turn", trace.WithAttributes(attribute.String("session_id", id)))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, o.cfg.turnTimeout)
	defer cancel()

	res, err := o.handle(ctx, id, text, in.MessageID)
	outcome := OutcomeError
	switch {
	case err == nil:
		outcome = res.Outcome
	case errors.Is(err, ErrTurnTimeout):
		outcome = OutcomeTimeout
	case errors.Is(err, ErrBusy):
		outcome = OutcomeBusy
	}
	if err != nil {
		span.RecordError(err)
		o.logger.Warn("turn failed", "session_id", id, "outcome", string(outcome), "error", err)
	}
	span.SetAttributes(attribute.String("outcome", string(outcome)))
	o.metrics.ObserveTurn(string(outcome), o.now().Sub(start).Seconds())
	return res, err
}

func (o *Orchestrator) handle(ctx context.Context, id, text, messageID string) (*Result, error) {
	lockCtx, cancelLock := context.WithTimeout(ctx, o.cfg.lockWait)
	unlock, err := o.locker.Lock(lockCtx, id)
	cancelLock()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: waiting for lock", ErrTurnTimeout)
		}
		if errors.Is(err, session.ErrLockTimeout) {
			return nil, fmt.Errorf("%w: %v", ErrBusy, err)
		}
		return nil, fmt.Errorf("orchestrator: lock %s: %w", id, err)
	}
	defer unlock()
	log := o.logger.WithSession(id)

	if o.duplicate(ctx, messageID) {
		current, err := o.sessions.GetOrCreate(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: load session: %w", err)
		}
		log.Info("duplicate inbound message dropped", "message_id", messageID)
		return &Result{Session: current, Outcome: OutcomeDuplicate}, nil
	}

	current, err := o.sessions.GetOrCreate(ctx, id)
	if err != nil {
		return nil, o.timeoutOr(ctx, fmt.Errorf("orchestrator: load session: %w", err))
	}
	working := current.Clone()

	analysis, err := o.analyze(ctx, text, working)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: oracle", ErrTurnTimeout)
		}
		o.metrics.ObserveCollaboratorError("nlu")
		log.Warn("nlu oracle unavailable", "error", err)
		return &Result{Reply: replyRephrase, Session: current, Outcome: OutcomeOracleUnavailable}, nil
	}

	step, err := o.machine.Step(ctx, working, dialogue.Turn{Text: text, Analysis: analysis})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: dialogue step", ErrTurnTimeout)
		}
		if errors.Is(err, availability.ErrCalendarUnavailable) {
			o.metrics.ObserveCollaboratorError("calendar")
			log.Warn("calendar unavailable", "error", err)
			return &Result{Reply: replyCalendarTrouble, Session: current, Outcome: OutcomeCalendarUnavailable, Intent: analysis.Intent}, nil
		}
		return nil, fmt.Errorf("orchestrator: dialogue step: %w", err)
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: before save", ErrTurnTimeout)
	}
	if err := working.Validate(); err != nil {
		log.Error("session invariant violated", "state", string(working.CurrentState), "error", err)
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	if err := o.sessions.Save(ctx, working); err != nil {
		return nil, o.timeoutOr(ctx, fmt.Errorf("orchestrator: save session: %w", err))
	}

	o.metrics.ObserveTransition(string(current.CurrentState), string(working.CurrentState))
	if step.Handoff != nil {
		o.metrics.ObserveHandoff(step.Handoff.Cached)
	}
	o.record(ctx, id, text, step.Reply, analysis)
	o.markProcessed(ctx, id, messageID)

	log.Info("turn handled",
		"intent", string(analysis.Intent),
		"from_state", string(current.CurrentState),
		"state", string(working.CurrentState),
		"missing", working.Missing().String(),
	)
	return &Result{
		Reply:   step.Reply,
		Session: working,
		Outcome: OutcomeOK,
		Intent:  analysis.Intent,
		Handoff: step.Handoff,
	}, nil
}

// Reset clears the booking of an existing session under the identity lock
// and saves it. Unknown identities return session.ErrNotFound.
func (o *Orchestrator) Reset(ctx context.Context, identity string) (*session.Session, error) {
	id := strings.TrimSpace(identity)
	if id == "" {
		return nil, fmt.Errorf("%w: identity is required", ErrInvalidInput)
	}
	ctx, span := o.tracer.Start(ctx, "orchestrator.reset", trace.WithAttributes(attribute.String("session_id", id)))
	defer span.End()

	lockCtx, cancel := context.WithTimeout(ctx, o.cfg.lockWait)
	unlock, err := o.locker.Lock(lockCtx, id)
	cancel()
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, session.ErrLockTimeout) {
			return nil, fmt.Errorf("%w: %v", ErrBusy, err)
		}
		return nil, fmt.Errorf("orchestrator: lock %s: %w", id, err)
	}
	defer unlock()

	s, err := o.sessions.GetOrCreate(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("orchestrator: load session: %w", err)
	}
	if s.Version == 0 {
		return nil, session.ErrNotFound
	}
	from := s.CurrentState
	s.ResetBooking()
	if err := o.sessions.Save(ctx, s); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("orchestrator: save session: %w", err)
	}
	o.metrics.ObserveTransition(string(from), string(s.CurrentState))
	o.logger.Info("session reset", "session_id", id, "from_state", string(from))
	return s, nil
}

func (o *Orchestrator) analyze(ctx context.Context, text string, s *session.Session) (nlu.Analysis, error) {
	cat, err := o.catalogs.Load(ctx)
	if err != nil {
		return nlu.Analysis{}, fmt.Errorf("orchestrator: load catalog: %w", err)
	}
	req := nlu.Request{
		Text:     text,
		Snapshot: snapshot(s),
		History:  o.history(ctx, s.ID),
		Catalog:  nlu.CatalogView{Specialties: cat.SpecialtyNames(), Practitioners: cat.PractitionerNames("")},
		Now:      o.now(),
	}

	nluCtx, cancel := context.WithTimeout(ctx, o.cfg.nluTimeout)
	defer cancel()
	analysis, err := o.oracle.Analyze(nluCtx, req)
	if err != nil {
		return nlu.Analysis{}, err
	}
	return analysis, nil
}

func (o *Orchestrator) history(ctx context.Context, id string) []nlu.Message {
	if o.transcript == nil || o.cfg.historyWindow == 0 {
		return nil
	}
	entries, err := o.transcript.Recent(ctx, id, o.cfg.historyWindow)
	if err != nil {
		o.logger.Warn("load transcript history failed", "session_id", id, "error", err)
		return nil
	}
	return transcript.History(entries)
}

// record appends the turn to the transcript. Failures are logged only; the
// session is already committed.
func (o *Orchestrator) record(ctx context.Context, id, text, reply string, analysis nlu.Analysis) {
	if o.transcript == nil {
		return
	}
	now := o.now().UTC()
	entries := []transcript.Entry{
		{
			ID:         uuid.NewString(),
			SessionID:  id,
			Role:       nlu.RoleUser,
			Content:    text,
			Intent:     analysis.Intent,
			Confidence: analysis.Confidence,
			Entities:   analysis.Entities,
			Timestamp:  now,
		},
		{
			ID:        uuid.NewString(),
			SessionID: id,
			Role:      nlu.RoleAssistant,
			Content:   reply,
			Timestamp: now,
		},
	}
	for _, e := range entries {
		if err := o.transcript.Append(ctx, e); err != nil {
			o.logger.Warn("append transcript failed", "session_id", id, "role", e.Role, "error", err)
			return
		}
	}
}

// duplicate reports whether messageID was already processed. Ledger errors
// fail open: the message is processed.
func (o *Orchestrator) duplicate(ctx context.Context, messageID string) bool {
	if o.ledger == nil || messageID == "" {
		return false
	}
	done, err := o.ledger.AlreadyProcessed(ctx, ledger.ScopeInbound, messageID)
	if err != nil {
		o.logger.Warn("inbound dedupe check failed", "message_id", messageID, "error", err)
		return false
	}
	return done
}

func (o *Orchestrator) markProcessed(ctx context.Context, id, messageID string) {
	if o.ledger == nil || messageID == "" {
		return
	}
	if _, err := o.ledger.MarkProcessed(ctx, ledger.ScopeInbound, messageID); err != nil {
		o.logger.Warn("mark inbound processed failed", "session_id", id, "message_id", messageID, "error", err)
	}
}

func (o *Orchestrator) timeoutOr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrTurnTimeout, err)
	}
	return err
}

func snapshot(s *session.Session) nlu.Snapshot {
	missing := s.Missing()
	names := make([]string, len(missing))
	for i, slot := range missing {
		names[i] = string(slot)
	}
	return nlu.Snapshot{
		State:                  string(s.CurrentState),
		PreviousState:          string(s.PreviousState),
		PatientName:            s.PatientName,
		PendingName:            s.PendingName,
		Specialty:              s.SelectedSpecialty,
		Practitioner:           s.SelectedPractitioner,
		Date:                   s.PreferredDate,
		Time:                   s.PreferredTime,
		SuggestedPractitioners: s.LastSuggestedPractitioners,
		Missing:                names,
	}
}
