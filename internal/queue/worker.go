package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/clinic-booking-assistant/internal/orchestrator"
	"github.com/wolfman30/clinic-booking-assistant/internal/session"
	"github.com/wolfman30/clinic-booking-assistant/pkg/logging"
)

// TurnHandler processes one inbound caller message.
type TurnHandler interface {
	HandleInbound(ctx context.Context, in orchestrator.Inbound) (*orchestrator.Result, error)
}

// Reply is an outbound message to a caller.
type Reply struct {
	Identity string
	Text     string
	JobID    string
}

// ReplySender delivers replies back to the caller's channel.
type ReplySender interface {
	SendReply(ctx context.Context, reply Reply) error
}

// LogReplySender writes replies to the log. Used when no channel is wired.
type LogReplySender struct {
	logger *logging.Logger
}

// NewLogReplySender creates a reply sender that only logs.
func NewLogReplySender(logger *logging.Logger) *LogReplySender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogReplySender{logger: logger}
}

func (s *LogReplySender) SendReply(_ context.Context, reply Reply) error {
	s.logger.Info("reply", "session_id", reply.Identity, "job_id", reply.JobID, "text", reply.Text)
	return nil
}

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	defaultMaxAttempts   = 3
	defaultRetryBackoff  = 250 * time.Millisecond
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
	replyTimeout         = 5 * time.Second

	fallbackReply = "Sorry, I'm having trouble responding right now. Please send your message again in a moment."
)

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	maxAttempts      int
	retryBackoff     time.Duration
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithMaxAttempts bounds how often a retryable turn is attempted.
func WithMaxAttempts(n int) WorkerOption {
	return func(cfg *workerConfig) {
		if n > 0 {
			cfg.maxAttempts = n
		}
	}
}

// WithRetryBackoff sets the base delay between attempts of a retryable turn.
func WithRetryBackoff(d time.Duration) WorkerOption {
	return func(cfg *workerConfig) {
		if d > 0 {
			cfg.retryBackoff = d
		}
	}
}

// Worker consumes turn jobs and sends the replies.
type Worker struct {
	turns   TurnHandler
	queue   Client
	replies ReplySender
	logger  *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

// NewWorker constructs a queue consumer around the turn handler.
func NewWorker(turns TurnHandler, queue Client, replies ReplySender, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if turns == nil {
		panic("queue: turn handler cannot be nil")
	}
	if queue == nil {
		panic("queue: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if replies == nil {
		replies = NewLogReplySender(logger)
	}
	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
		maxAttempts:      defaultMaxAttempts,
		retryBackoff:     defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{
		turns:   turns,
		queue:   queue,
		replies: replies,
		logger:  logger,
		cfg:     cfg,
	}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("turn worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("turn worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive turn jobs", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg Message) {
	job, err := decodeJob(msg.Body)
	if err != nil {
		w.logger.Error("dropping undecodable turn job", "error", err, "msg_id", msg.ID)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	messageID := job.MessageID
	if messageID == "" {
		messageID = job.ID
	}
	in := orchestrator.Inbound{Identity: job.Identity, Text: job.Text, MessageID: messageID}

	// Retries stay on this worker so a caller's later messages never overtake
	// the one that failed.
	res, err := w.turns.HandleInbound(ctx, in)
	for attempt := job.Attempt + 1; err != nil && retryable(err) && attempt < w.cfg.maxAttempts; attempt++ {
		w.logger.Warn("turn job failed, retrying", "error", err, "job_id", job.ID, "attempt", attempt)
		if !w.sleep(ctx, time.Duration(attempt)*w.cfg.retryBackoff) {
			// leave the message for the transport to redeliver
			return
		}
		res, err = w.turns.HandleInbound(ctx, in)
	}

	if err != nil {
		if ctx.Err() != nil && retryable(err) {
			return
		}
		w.logger.Error("turn job failed", "error", err, "job_id", job.ID, "session_id", job.Identity)
		w.sendReply(ctx, Reply{Identity: job.Identity, Text: fallbackReply, JobID: job.ID})
	} else if res != nil && res.Reply != "" {
		w.sendReply(ctx, Reply{Identity: job.Identity, Text: res.Reply, JobID: job.ID})
	}

	w.deleteMessage(context.Background(), msg.ReceiptHandle)
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (w *Worker) sendReply(ctx context.Context, reply Reply) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), replyTimeout)
	defer cancel()
	if err := w.replies.SendReply(sendCtx, reply); err != nil {
		w.logger.Error("failed to send reply", "error", err, "job_id", reply.JobID, "session_id", reply.Identity)
	}
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete turn job", "error", err)
	}
}

func retryable(err error) bool {
	return errors.Is(err, orchestrator.ErrTurnTimeout) ||
		errors.Is(err, orchestrator.ErrBusy) ||
		errors.Is(err, session.ErrStoreUnavailable)
}
