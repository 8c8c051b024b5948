package suggestions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// errCoalesced is returned by a queue that folded the job into one already waiting for the
// same user.
var errCoalesced = errors.New("suggestions: job coalesced with a pending one")

type queueClient interface {
	Send(ctx context.Context, job Job) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// queueMessage is one received job. UserID and Trigger come from message attributes and
// are empty when the sender did not set them.
type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
	UserID        string
	Trigger       Trigger
}

// Job asks for one regeneration of a user's suggestions.
type Job struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Trigger     Trigger   `json:"type"`
	RequestedAt time.Time `json:"requested_at"`
}

func (j Job) withDefaults() Job {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.RequestedAt.IsZero() {
		j.RequestedAt = time.Now().UTC()
	}
	return j
}

func encodeJob(job Job) (Job, string, error) {
	job = job.withDefaults()
	body, err := json.Marshal(job)
	if err != nil {
		return Job{}, "", fmt.Errorf("suggestions: failed to encode job: %w", err)
	}
	return job, string(body), nil
}
