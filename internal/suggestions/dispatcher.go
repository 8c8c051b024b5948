package suggestions

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/medrecord-ai/internal/observability/metrics"
	"github.com/wolfman30/medrecord-ai/pkg/logging"
)

const defaultSendTimeout = 5 * time.Second

// Regenerator is satisfied by *Synthesizer.
type Regenerator interface {
	Regenerate(ctx context.Context, userID string, trigger Trigger) (Result, error)
}

// Dispatcher submits regeneration work without waiting for it. Failures are logged, never
// returned, so callers can fire and move on.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job)
}

// QueueDispatcher enqueues jobs from a detached goroutine.
type QueueDispatcher struct {
	queue       queueClient
	sendTimeout time.Duration
	metrics     *metrics.PipelineMetrics
	logger      *logging.Logger
	wg          sync.WaitGroup
}

func NewQueueDispatcher(queue queueClient, m *metrics.PipelineMetrics, logger *logging.Logger) *QueueDispatcher {
	if queue == nil {
		panic("suggestions: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &QueueDispatcher{
		queue:       queue,
		sendTimeout: defaultSendTimeout,
		metrics:     m,
		logger:      logger,
	}
}

// Dispatch returns immediately. The send outlives ctx cancellation but keeps its values.
func (d *QueueDispatcher) Dispatch(ctx context.Context, job Job) {
	if strings.TrimSpace(job.UserID) == "" || !job.Trigger.Valid() {
		d.metrics.ObserveDispatch("rejected")
		d.logger.Warn("suggestions dispatch rejected", "user_id", job.UserID, "trigger", job.Trigger)
		return
	}
	job = job.withDefaults()

	detached := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		sendCtx, cancel := context.WithTimeout(detached, d.sendTimeout)
		defer cancel()

		err := d.queue.Send(sendCtx, job)
		if errors.Is(err, errCoalesced) {
			d.metrics.ObserveDispatch("coalesced")
			d.logger.Debug("suggestions job coalesced", "job_id", job.ID, "user_id", job.UserID, "trigger", job.Trigger)
			return
		}
		if err != nil {
			d.metrics.ObserveDispatch("error")
			d.logger.Error("suggestions job not enqueued",
				"job_id", job.ID,
				"user_id", job.UserID,
				"trigger", job.Trigger,
				"error", err,
			)
			return
		}
		d.metrics.ObserveDispatch("enqueued")
		d.logger.Debug("suggestions job enqueued", "job_id", job.ID, "user_id", job.UserID, "trigger", job.Trigger)
	}()
}

// Wait blocks until every in-flight send has finished.
func (d *QueueDispatcher) Wait() {
	d.wg.Wait()
}

// AsyncDispatcher runs jobs in-process: a bounded worker pool drains a MemoryQueue.
type AsyncDispatcher struct {
	*QueueDispatcher
	worker *Worker
}

func NewAsyncDispatcher(regen Regenerator, buffer int, m *metrics.PipelineMetrics, logger *logging.Logger, opts ...WorkerOption) *AsyncDispatcher {
	queue := NewMemoryQueue(buffer)
	opts = append([]WorkerOption{WithReceiveWaitSeconds(0)}, opts...)
	return &AsyncDispatcher{
		QueueDispatcher: NewQueueDispatcher(queue, m, logger),
		worker:          NewWorker(regen, queue, logger, opts...),
	}
}

// Start launches the worker pool; it stops when ctx is cancelled.
func (d *AsyncDispatcher) Start(ctx context.Context) {
	d.worker.Start(ctx)
}

// Wait blocks until pending sends are done and the pool has stopped.
func (d *AsyncDispatcher) Wait() {
	d.QueueDispatcher.Wait()
	d.worker.Wait()
}

// NoopDispatcher drops every job.
type NoopDispatcher struct{}

func (NoopDispatcher) Dispatch(context.Context, Job) {}
