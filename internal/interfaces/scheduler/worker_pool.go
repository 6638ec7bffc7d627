package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const defaultJobTimeout = 5 * time.Minute

var (
	jobTracer = otel.Tracer("ledgersync/scheduler")
	jobMeter  = otel.Meter("ledgersync/scheduler")

	jobDuration, _ = jobMeter.Float64Histogram("ledgersync.jobs.duration",
		metric.WithDescription("Job execution time"),
		metric.WithUnit("s"),
	)
	jobTotal, _ = jobMeter.Int64Counter("ledgersync.jobs.executed",
		metric.WithDescription("Jobs executed by status"),
	)
	jobRejected, _ = jobMeter.Int64Counter("ledgersync.jobs.rejected",
		metric.WithDescription("Jobs refused by Submit by reason"),
	)
)

var (
	// ErrQueueFull is returned by Submit when the job buffer is at capacity.
	ErrQueueFull = errors.New("job queue full")
	// ErrPoolClosed is returned by Submit after shutdown has begun.
	ErrPoolClosed = errors.New("worker pool is shut down")
	// ErrDuplicateJob is returned by Submit when a job with the same key is pending.
	ErrDuplicateJob = errors.New("job already pending")
)

// WorkerPool runs jobs on a fixed number of goroutines fed from a buffered queue.
type WorkerPool struct {
	workerCount int
	jobDelay    time.Duration
	jobTimeout  time.Duration
	jobs        chan Job
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc

	mu      sync.Mutex
	closed  bool
	pending map[string]struct{}
}

// NewWorkerPool creates a pool. jobDelay spaces out jobs on each worker so the
// provider's rate limits are not hit in bursts.
func NewWorkerPool(workerCount int, jobDelay time.Duration, queueSize int) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())

	wp := &WorkerPool{
		workerCount: workerCount,
		jobDelay:    jobDelay,
		jobTimeout:  defaultJobTimeout,
		jobs:        make(chan Job, queueSize),
		ctx:         ctx,
		cancel:      cancel,
		pending:     make(map[string]struct{}),
	}

	_, err := jobMeter.Int64ObservableGauge("ledgersync.jobs.queued",
		metric.WithDescription("Jobs waiting for a worker"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(len(wp.jobs)))
			return nil
		}),
	)
	if err != nil {
		log.Printf("Worker pool: queue gauge not registered: %v", err)
	}
	return wp
}

// SetJobTimeout bounds each job's execution. Call before Start.
func (wp *WorkerPool) SetJobTimeout(d time.Duration) {
	if d > 0 {
		wp.jobTimeout = d
	}
}

func (wp *WorkerPool) Start() {
	log.Printf("Starting worker pool with %d workers", wp.workerCount)

	for i := 1; i <= wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.ctx.Done():
			return

		case job, ok := <-wp.jobs:
			if !ok {
				return
			}

			wp.processJob(id, job)
			wp.release(job)

			if wp.jobDelay > 0 {
				select {
				case <-time.After(wp.jobDelay):
				case <-wp.ctx.Done():
					return
				}
			}
		}
	}
}

func (wp *WorkerPool) processJob(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(wp.ctx, wp.jobTimeout)
	defer cancel()

	ctx, span := jobTracer.Start(ctx, "job.execute",
		trace.WithAttributes(
			attribute.Int("worker.id", workerID),
			attribute.String("job.description", job.Description()),
			attribute.Int64("job.owner_id", job.OwnerID()),
		),
	)
	defer span.End()

	start := time.Now()
	err := job.Execute(ctx)
	jobDuration.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		jobTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "error")))
		log.Printf("Worker %d: %s failed: %v", workerID, job.Description(), err)
		return
	}

	jobTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "success")))
	log.Printf("Worker %d: %s completed in %v", workerID, job.Description(), time.Since(start).Round(time.Millisecond))
}

// Submit enqueues a job without blocking. A full queue drops the job, and a
// Keyed job whose key is already pending is refused.
func (wp *WorkerPool) Submit(job Job) error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.closed {
		return ErrPoolClosed
	}

	key := jobKey(job)
	if key != "" {
		if _, dup := wp.pending[key]; dup {
			jobRejected.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", "duplicate")))
			return fmt.Errorf("%w: %s", ErrDuplicateJob, job.Description())
		}
	}

	select {
	case <-wp.ctx.Done():
		return wp.ctx.Err()
	case wp.jobs <- job:
		if key != "" {
			wp.pending[key] = struct{}{}
		}
		return nil
	default:
		jobRejected.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", "queue_full")))
		log.Printf("Warning: job queue full, dropping %s", job.Description())
		return fmt.Errorf("%w: dropping %s", ErrQueueFull, job.Description())
	}
}

func (wp *WorkerPool) release(job Job) {
	key := jobKey(job)
	if key == "" {
		return
	}
	wp.mu.Lock()
	delete(wp.pending, key)
	wp.mu.Unlock()
}

func jobKey(job Job) string {
	if k, ok := job.(Keyed); ok {
		return k.Key()
	}
	return ""
}

// SubmitBatch enqueues jobs and returns how many were accepted.
func (wp *WorkerPool) SubmitBatch(jobs []Job) int {
	submitted := 0
	for _, job := range jobs {
		if err := wp.Submit(job); err != nil {
			continue
		}
		submitted++
	}
	log.Printf("Submitted %d/%d jobs to worker pool", submitted, len(jobs))
	return submitted
}

func (wp *WorkerPool) close() bool {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.closed {
		return false
	}
	wp.closed = true
	close(wp.jobs)
	return true
}

// Shutdown stops accepting jobs and waits for queued ones to drain.
func (wp *WorkerPool) Shutdown() {
	if !wp.close() {
		return
	}
	wp.wg.Wait()
	wp.cancel()
	log.Println("Worker pool: shutdown complete")
}

// ShutdownWithTimeout is Shutdown with a deadline. On timeout the running jobs' contexts are cancelled.
func (wp *WorkerPool) ShutdownWithTimeout(timeout time.Duration) {
	if !wp.close() {
		return
	}

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Worker pool: all workers finished")
	case <-time.After(timeout):
		log.Println("Worker pool: timeout reached, cancelling running jobs")
	}
	wp.cancel()
}
