package suggestions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is the in-process job queue behind AsyncDispatcher. It holds at most one
// waiting job per user: a regeneration reads the user's data when it runs, so a second job
// queued behind the first would produce the same result.
type MemoryQueue struct {
	ch      chan queueMessage
	mu      sync.Mutex
	pending map[string]struct{}
}

// NewMemoryQueue creates a MemoryQueue with the provided buffer capacity.
func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 128
	}
	return &MemoryQueue{ch: make(chan queueMessage, buffer), pending: make(map[string]struct{})}
}

// Send enqueues job, or returns errCoalesced when the user already has one waiting. It
// blocks while the buffer is full until ctx is done.
func (q *MemoryQueue) Send(ctx context.Context, job Job) error {
	job, body, err := encodeJob(job)
	if err != nil {
		return err
	}

	q.mu.Lock()
	if _, waiting := q.pending[job.UserID]; waiting {
		q.mu.Unlock()
		return errCoalesced
	}
	q.pending[job.UserID] = struct{}{}
	q.mu.Unlock()

	msg := queueMessage{
		ID:            job.ID,
		Body:          body,
		ReceiptHandle: uuid.NewString(),
		UserID:        job.UserID,
		Trigger:       job.Trigger,
	}
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		q.release(msg)
		return ctx.Err()
	}
}

// Receive blocks until a message is available, ctx is done, or waitSeconds elapses.
// A zero wait blocks until a message or cancellation.
func (q *MemoryQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}

	var timeout <-chan time.Time
	if waitSeconds > 0 {
		timer := time.NewTimer(time.Duration(waitSeconds) * time.Second)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, nil
	case msg := <-q.ch:
		return q.collect(msg, maxMessages), nil
	}
}

// Delete is a no-op: a received job is already off the queue.
func (q *MemoryQueue) Delete(_ context.Context, _ string) error {
	return nil
}

// Len reports the number of waiting jobs.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

func (q *MemoryQueue) collect(first queueMessage, max int) []queueMessage {
	messages := []queueMessage{first}
	q.release(first)
	for len(messages) < max {
		select {
		case msg := <-q.ch:
			q.release(msg)
			messages = append(messages, msg)
		default:
			return messages
		}
	}
	return messages
}

// release lets the user queue a new job once msg has left the buffer.
func (q *MemoryQueue) release(msg queueMessage) {
	q.mu.Lock()
	delete(q.pending, msg.UserID)
	q.mu.Unlock()
}
