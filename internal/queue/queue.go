// Package queue carries booking turns between the API and the turn worker
// over SQS or an in-process channel.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Client is the turn queue transport.
type Client interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Message is a received queue entry.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// TurnJob is the queued form of one caller message.
type TurnJob struct {
	ID        string `json:"id"`
	Identity  string `json:"identity"`
	Text      string `json:"text"`
	MessageID string `json:"message_id,omitempty"`
	Attempt   int    `json:"attempt,omitempty"`
}

func encodeJob(job TurnJob) (TurnJob, string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return TurnJob{}, "", fmt.Errorf("queue: encode job: %w", err)
	}
	return job, string(body), nil
}

func decodeJob(body string) (TurnJob, error) {
	var job TurnJob
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return TurnJob{}, fmt.Errorf("queue: decode job: %w", err)
	}
	if strings.TrimSpace(job.Identity) == "" {
		return TurnJob{}, fmt.Errorf("queue: job %s has no identity", job.ID)
	}
	return job, nil
}
