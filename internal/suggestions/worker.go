package suggestions

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/medrecord-ai/pkg/logging"
)

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 10
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

// Worker consumes regeneration jobs from a queue and runs them one at a time per goroutine.
type Worker struct {
	regen  Regenerator
	queue  queueClient
	logger *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	jobTimeout       time.Duration
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

// WithReceiveWaitSeconds sets the SQS long-poll wait duration.
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

// WithJobTimeout bounds a single regeneration. Zero means no bound.
func WithJobTimeout(d time.Duration) WorkerOption {
	return func(cfg *workerConfig) {
		if d >= 0 {
			cfg.jobTimeout = d
		}
	}
}

func NewWorker(regen Regenerator, queue queueClient, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if regen == nil {
		panic("suggestions: regenerator cannot be nil")
	}
	if queue == nil {
		panic("suggestions: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{regen: regen, queue: queue, logger: logger, cfg: cfg}
}

// Start launches the consumer goroutines.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all consumers have exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("suggestions worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("suggestions worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive suggestions jobs", "error", err, "worker_id", workerID)
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

// handleMessage runs one job. The message is deleted whatever the outcome; failed
// regenerations are not retried.
func (w *Worker) handleMessage(ctx context.Context, msg queueMessage) {
	defer w.deleteMessage(context.WithoutCancel(ctx), msg.ReceiptHandle)

	var job Job
	if err := json.Unmarshal([]byte(msg.Body), &job); err != nil {
		w.logger.Error("failed to decode suggestions job",
			"error", err,
			"msg_id", msg.ID,
			"user_id", msg.UserID,
			"trigger", msg.Trigger,
		)
		return
	}

	jobCtx := ctx
	if w.cfg.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.cfg.jobTimeout)
		defer cancel()
	}

	result, err := w.regen.Regenerate(jobCtx, job.UserID, job.Trigger)
	if err != nil {
		w.logger.Error("suggestions job failed",
			"job_id", job.ID,
			"user_id", job.UserID,
			"trigger", job.Trigger,
			"error", err,
		)
		return
	}
	w.logger.Info("suggestions job completed",
		"job_id", job.ID,
		"user_id", job.UserID,
		"trigger", job.Trigger,
		"count", result.Count,
		"queued_ms", time.Since(job.RequestedAt).Milliseconds(),
	)
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete suggestions job", "error", err)
	}
}
