package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-booking-assistant/internal/orchestrator"
	"github.com/wolfman30/clinic-booking-assistant/internal/session"
	"github.com/wolfman30/clinic-booking-assistant/pkg/logging"
)

// TurnProcessor runs booking turns and admin resets.
type TurnProcessor interface {
	HandleInbound(ctx context.Context, in orchestrator.Inbound) (*orchestrator.Result, error)
	Reset(ctx context.Context, identity string) (*session.Session, error)
}

// SessionReader loads stored sessions for inspection.
type SessionReader interface {
	Get(ctx context.Context, id string) (*session.Session, error)
}

// TurnEnqueuer hands a message to the turn worker.
type TurnEnqueuer interface {
	EnqueueTurn(ctx context.Context, identity, text, messageID string) (string, error)
}

// TurnRequest is the body of POST /v1/turns and POST /v1/messages.
type TurnRequest struct {
	Identity  string `json:"identity"`
	Text      string `json:"text"`
	MessageID string `json:"message_id,omitempty"`
}

// TurnResponse is returned for a processed turn.
type TurnResponse struct {
	Reply       string           `json:"reply"`
	Outcome     string           `json:"outcome"`
	Intent      string           `json:"intent,omitempty"`
	State       string           `json:"state"`
	Missing     []string         `json:"missing"`
	HandoffLink string           `json:"handoff_link,omitempty"`
	Session     *session.Session `json:"session"`
}

// EnqueueResponse is returned when a message was queued.
type EnqueueResponse struct {
	JobID string `json:"job_id"`
}

// TurnHandler exposes the booking assistant over HTTP.
type TurnHandler struct {
	turns      TurnProcessor
	sessions   SessionReader
	enqueuer   TurnEnqueuer
	logger     *logging.Logger
	retryAfter time.Duration
}

// TurnHandlerOption customizes a TurnHandler.
type TurnHandlerOption func(*TurnHandler)

// WithEnqueuer enables POST /v1/messages.
func WithEnqueuer(e TurnEnqueuer) TurnHandlerOption {
	return func(h *TurnHandler) {
		h.enqueuer = e
	}
}

// WithRetryAfter sets the Retry-After hint on retryable failures.
func WithRetryAfter(d time.Duration) TurnHandlerOption {
	return func(h *TurnHandler) {
		if d > 0 {
			h.retryAfter = d
		}
	}
}

// NewTurnHandler creates the booking HTTP handler.
func NewTurnHandler(turns TurnProcessor, sessions SessionReader, logger *logging.Logger, opts ...TurnHandlerOption) *TurnHandler {
	if turns == nil {
		panic("handlers: turn processor cannot be nil")
	}
	if sessions == nil {
		panic("handlers: session reader cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	h := &TurnHandler{
		turns:      turns,
		sessions:   sessions,
		logger:     logger,
		retryAfter: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// PostTurn handles POST /v1/turns.
func (h *TurnHandler) PostTurn(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	res, err := h.turns.HandleInbound(r.Context(), orchestrator.Inbound{
		Identity:  req.Identity,
		Text:      req.Text,
		MessageID: req.MessageID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := TurnResponse{
		Reply:   res.Reply,
		Outcome: string(res.Outcome),
		Intent:  string(res.Intent),
		Session: res.Session,
	}
	if res.Session != nil {
		resp.State = string(res.Session.CurrentState)
		resp.Missing = missingNames(res.Session)
		resp.HandoffLink = res.Session.HandoffLink
	}
	writeJSON(w, http.StatusOK, resp)
}

// PostMessage handles POST /v1/messages: the turn is queued for the worker.
func (h *TurnHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		jsonError(w, "queue disabled", http.StatusNotFound)
		return
	}
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	jobID, err := h.enqueuer.EnqueueTurn(r.Context(), req.Identity, req.Text, req.MessageID)
	if err != nil {
		h.logger.Error("failed to enqueue turn", "error", err, "session_id", req.Identity)
		h.retryLater(w)
		jsonError(w, "failed to enqueue message", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, EnqueueResponse{JobID: jobID})
}

// GetSession handles GET /v1/sessions/{id}.
func (h *TurnHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		jsonError(w, "missing session id", http.StatusBadRequest)
		return
	}
	s, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(s))
}

// ResetSession handles POST /v1/sessions/{id}/reset.
func (h *TurnHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		jsonError(w, "missing session id", http.StatusBadRequest)
		return
	}
	s, err := h.turns.Reset(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.logger.Info("session reset via admin api", "session_id", id)
	writeJSON(w, http.StatusOK, sessionView(s))
}

// HealthCheck handles GET /health.
func (h *TurnHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *TurnHandler) decode(w http.ResponseWriter, r *http.Request) (TurnRequest, bool) {
	var req TurnRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		h.logger.Debug("failed to decode turn request", "error", err)
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return req, false
	}
	req.Identity = strings.TrimSpace(req.Identity)
	req.Text = strings.TrimSpace(req.Text)
	if req.Identity == "" || req.Text == "" {
		jsonError(w, "identity and text are required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func (h *TurnHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrInvalidInput):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, session.ErrNotFound):
		jsonError(w, "session not found", http.StatusNotFound)
	case errors.Is(err, orchestrator.ErrTurnTimeout),
		errors.Is(err, orchestrator.ErrBusy),
		errors.Is(err, session.ErrStoreUnavailable):
		h.retryLater(w)
		jsonError(w, "temporarily unavailable, retry later", http.StatusServiceUnavailable)
	default:
		h.logger.Error("request failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *TurnHandler) retryLater(w http.ResponseWriter) {
	secs := int(h.retryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
}

type sessionResponse struct {
	*session.Session
	Missing []string `json:"missing"`
}

func sessionView(s *session.Session) sessionResponse {
	return sessionResponse{Session: s, Missing: missingNames(s)}
}

func missingNames(s *session.Session) []string {
	missing := s.Missing()
	out := make([]string, len(missing))
	for i, slot := range missing {
		out[i] = string(slot)
	}
	return out
}
