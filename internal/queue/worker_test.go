package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking-assistant/internal/orchestrator"
	"github.com/wolfman30/clinic-booking-assistant/internal/session"
)

type scriptedQueue struct {
	mu      sync.Mutex
	ch      chan Message
	sent    []string
	deleted []string
}

func newScriptedQueue() *scriptedQueue {
	return &scriptedQueue{ch: make(chan Message, 10)}
}

func (s *scriptedQueue) enqueue(t *testing.T, job TurnJob) {
	t.Helper()
	body, err := json.Marshal(job)
	require.NoError(t, err)
	s.ch <- Message{ID: "msg-" + job.ID, Body: string(body), ReceiptHandle: "rh-" + job.ID}
}

func (s *scriptedQueue) Send(_ context.Context, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, body)
	return nil
}

func (s *scriptedQueue) Receive(ctx context.Context, _ int, _ int) ([]Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-s.ch:
		return []Message{msg}, nil
	case <-time.After(50 * time.Millisecond):
		return nil, nil
	}
}

func (s *scriptedQueue) Delete(_ context.Context, receiptHandle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, receiptHandle)
	return nil
}

func (s *scriptedQueue) snapshot() (sent, deleted []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...), append([]string(nil), s.deleted...)
}

type stubTurns struct {
	mu     sync.Mutex
	calls  []orchestrator.Inbound
	result *orchestrator.Result
	err    error
	// errs are returned, in order, before falling back to result and err.
	errs []error
}

func (s *stubTurns) HandleInbound(_ context.Context, in orchestrator.Inbound) (*orchestrator.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, in)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	return s.result, s.err
}

func (s *stubTurns) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type recordingReplies struct {
	mu      sync.Mutex
	replies []Reply
}

func (r *recordingReplies) SendReply(_ context.Context, reply Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, reply)
	return nil
}

func (r *recordingReplies) all() []Reply {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Reply(nil), r.replies...)
}

func runWorker(t *testing.T, q *scriptedQueue, turns TurnHandler, replies ReplySender, until func() bool) {
	t.Helper()
	w := NewWorker(turns, q, replies, nil, WithWorkerCount(1), WithReceiveBatchSize(1), WithReceiveWaitSeconds(0), WithRetryBackoff(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	waitFor(t, until, time.Second)
	cancel()
	w.Wait()
}

func waitFor(t *testing.T, cond func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestWorkerSendsReply(t *testing.T) {
	q := newScriptedQueue()
	turns := &stubTurns{result: &orchestrator.Result{Reply: "Hello! What's your full name?", Outcome: orchestrator.OutcomeOK}}
	replies := &recordingReplies{}
	q.enqueue(t, TurnJob{ID: "job-1", Identity: "+5511999990000", Text: "hi", MessageID: "wamid-1"})

	runWorker(t, q, turns, replies, func() bool { return len(replies.all()) == 1 })

	require.Equal(t, 1, turns.count())
	assert.Equal(t, orchestrator.Inbound{Identity: "+5511999990000", Text: "hi", MessageID: "wamid-1"}, turns.calls[0])
	assert.Equal(t, Reply{Identity: "+5511999990000", Text: "Hello! What's your full name?", JobID: "job-1"}, replies.all()[0])
	_, deleted := q.snapshot()
	assert.Equal(t, []string{"rh-job-1"}, deleted)
}

func TestWorkerUsesJobIDForDedupe(t *testing.T) {
	q := newScriptedQueue()
	turns := &stubTurns{result: &orchestrator.Result{Outcome: orchestrator.OutcomeDuplicate}}
	replies := &recordingReplies{}
	q.enqueue(t, TurnJob{ID: "job-2", Identity: "+5511999990000", Text: "hi"})

	runWorker(t, q, turns, replies, func() bool {
		_, deleted := q.snapshot()
		return len(deleted) == 1
	})

	assert.Equal(t, "job-2", turns.calls[0].MessageID)
	assert.Empty(t, replies.all(), "duplicates get no reply")
}

func TestWorkerRetriesRetryableFailuresInPlace(t *testing.T) {
	q := newScriptedQueue()
	turns := &stubTurns{
		errs:   []error{fmt.Errorf("orchestrator: save session: %w", session.ErrStoreUnavailable)},
		result: &orchestrator.Result{Reply: "Thanks, Maria.", Outcome: orchestrator.OutcomeOK},
	}
	replies := &recordingReplies{}
	q.enqueue(t, TurnJob{ID: "job-3", Identity: "+5511999990000", Text: "Maria Souza"})

	runWorker(t, q, turns, replies, func() bool { return len(replies.all()) == 1 })

	require.Equal(t, 2, turns.count())
	assert.Equal(t, "job-3", turns.calls[1].MessageID)
	assert.Equal(t, "Thanks, Maria.", replies.all()[0].Text)
	sent, deleted := q.snapshot()
	assert.Empty(t, sent, "retries never go back on the queue")
	assert.Equal(t, []string{"rh-job-3"}, deleted)
}

func TestWorkerKeepsCallerOrderAcrossRetries(t *testing.T) {
	q := newScriptedQueue()
	turns := &stubTurns{
		errs:   []error{orchestrator.ErrBusy},
		result: &orchestrator.Result{Reply: "ok", Outcome: orchestrator.OutcomeOK},
	}
	replies := &recordingReplies{}
	q.enqueue(t, TurnJob{ID: "job-a", Identity: "+5511999990000", Text: "Dermatology"})
	q.enqueue(t, TurnJob{ID: "job-b", Identity: "+5511999990000", Text: "Tuesday at 10"})

	runWorker(t, q, turns, replies, func() bool { return len(replies.all()) == 2 })

	var order []string
	for _, call := range turns.calls {
		order = append(order, call.MessageID)
	}
	assert.Equal(t, []string{"job-a", "job-a", "job-b"}, order)
	sent, deleted := q.snapshot()
	assert.Empty(t, sent)
	assert.Equal(t, []string{"rh-job-a", "rh-job-b"}, deleted)
}

func TestWorkerGivesUpAfterMaxAttempts(t *testing.T) {
	q := newScriptedQueue()
	turns := &stubTurns{err: orchestrator.ErrBusy}
	replies := &recordingReplies{}
	q.enqueue(t, TurnJob{ID: "job-4", Identity: "+5511999990000", Text: "hi", Attempt: defaultMaxAttempts - 1})

	runWorker(t, q, turns, replies, func() bool { return len(replies.all()) == 1 })

	assert.Equal(t, 1, turns.count())
	assert.Equal(t, fallbackReply, replies.all()[0].Text)
	sent, deleted := q.snapshot()
	assert.Empty(t, sent)
	assert.Equal(t, []string{"rh-job-4"}, deleted)
}

func TestWorkerStopsRetryingAtMaxAttempts(t *testing.T) {
	q := newScriptedQueue()
	turns := &stubTurns{err: orchestrator.ErrTurnTimeout}
	replies := &recordingReplies{}
	q.enqueue(t, TurnJob{ID: "job-6", Identity: "+5511999990000", Text: "hi"})

	runWorker(t, q, turns, replies, func() bool { return len(replies.all()) == 1 })

	assert.Equal(t, defaultMaxAttempts, turns.count())
	assert.Equal(t, fallbackReply, replies.all()[0].Text)
	sent, _ := q.snapshot()
	assert.Empty(t, sent)
}

func TestWorkerRepliesOnPermanentFailure(t *testing.T) {
	q := newScriptedQueue()
	turns := &stubTurns{err: errors.New("orchestrator: session: invariant violated")}
	replies := &recordingReplies{}
	q.enqueue(t, TurnJob{ID: "job-5", Identity: "+5511999990000", Text: "hi"})

	runWorker(t, q, turns, replies, func() bool { return len(replies.all()) == 1 })

	assert.Equal(t, fallbackReply, replies.all()[0].Text)
	sent, _ := q.snapshot()
	assert.Empty(t, sent)
}

func TestWorkerDropsUndecodableJobs(t *testing.T) {
	q := newScriptedQueue()
	turns := &stubTurns{}
	q.ch <- Message{ID: "msg-x", Body: "{", ReceiptHandle: "rh-x"}

	runWorker(t, q, turns, &recordingReplies{}, func() bool {
		_, deleted := q.snapshot()
		return len(deleted) == 1
	})
	assert.Zero(t, turns.count())
}

func TestNewWorkerPanicsWithoutHandler(t *testing.T) {
	assert.Panics(t, func() { NewWorker(nil, newScriptedQueue(), nil, nil) })
}
