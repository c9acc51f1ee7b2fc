package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-booking-assistant/pkg/logging"
)

// Publisher enqueues caller messages for the turn worker.
type Publisher struct {
	queue  Client
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue Client, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("queue: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, logger: logger}
}

// EnqueueTurn publishes one caller message and returns the job id.
func (p *Publisher) EnqueueTurn(ctx context.Context, identity, text, messageID string) (string, error) {
	if strings.TrimSpace(identity) == "" || strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("queue: identity and text are required")
	}
	return p.publish(ctx, TurnJob{Identity: identity, Text: text, MessageID: messageID})
}

func (p *Publisher) publish(ctx context.Context, job TurnJob) (string, error) {
	job, body, err := encodeJob(job)
	if err != nil {
		return "", err
	}
	if err := p.queue.Send(ctx, body); err != nil {
		return "", fmt.Errorf("queue: enqueue turn: %w", err)
	}
	p.logger.Debug("turn job enqueued", "job_id", job.ID, "session_id", job.Identity, "attempt", job.Attempt)
	return job.ID, nil
}
