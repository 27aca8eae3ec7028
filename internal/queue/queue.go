package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/call-engine/internal/metrics"
	"github.com/snarg/call-engine/internal/model"
)

// Kind identifies which pipeline stage a task drives.
type Kind string

const (
	KindTranscribe Kind = "transcribe"
	KindAnalyze    Kind = "analyze"
)

// Task is one unit of pipeline work. Delivery is at-least-once: a
// handler may see the same task twice and must no-op on duplicates.
type Task struct {
	Kind        Kind
	RecordingID uuid.UUID
}

// Handler executes a task. Returning a TransportError triggers a
// bounded retry with backoff; ContentError and any other error stop
// retrying immediately.
type Handler func(ctx context.Context, task Task) error

// ExhaustedFunc runs after a task has failed its final attempt.
type ExhaustedFunc func(ctx context.Context, task Task, err error)

// Stats reports the current state of the queue.
type Stats struct {
	Pending   int   `json:"pending"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Options configures the worker pool.
type Options struct {
	Workers        int
	QueueSize      int
	MaxAttempts    uint64        // total attempts per task, including the first
	InitialBackoff time.Duration // first retry delay; doubles per attempt
	Handler        Handler
	OnExhausted    ExhaustedFunc
	Log            zerolog.Logger
}

// Queue is a channel-backed worker pool executing pipeline tasks with
// bounded retry. It is the at-least-once execution substrate for the
// orchestrator.
type Queue struct {
	tasks  chan Task
	opts   Options
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	completed atomic.Int64
	failed    atomic.Int64
}

// New creates a queue. Call Start to launch the workers.
func New(opts Options) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		tasks:  make(chan Task, opts.QueueSize),
		opts:   opts,
		log:    opts.Log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the worker goroutines.
func (q *Queue) Start() {
	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.log.Info().
		Int("workers", q.opts.Workers).
		Int("queue_size", q.opts.QueueSize).
		Uint64("max_attempts", q.opts.MaxAttempts).
		Msg("processing queue started")
}

// Stop signals workers to drain and waits for completion.
func (q *Queue) Stop() {
	if q.closed.Swap(true) {
		return
	}
	close(q.tasks)
	q.wg.Wait()
	q.cancel()
	q.log.Info().
		Int64("completed", q.completed.Load()).
		Int64("failed", q.failed.Load()).
		Msg("processing queue stopped")
}

// Enqueue adds a task. Returns false if the queue is full or stopped.
func (q *Queue) Enqueue(t Task) bool {
	if q.closed.Load() {
		return false
	}
	select {
	case q.tasks <- t:
		metrics.QueuePending.Inc()
		return true
	default:
		return false
	}
}

// Stats returns current queue statistics.
func (q *Queue) Stats() Stats {
	return Stats{
		Pending:   len(q.tasks),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
	}
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	log := q.log.With().Int("worker", id).Logger()

	for task := range q.tasks {
		metrics.QueuePending.Dec()
		if err := q.execute(task); err != nil {
			q.failed.Add(1)
			log.Warn().Err(err).
				Str("kind", string(task.Kind)).
				Str("recording_id", task.RecordingID.String()).
				Msg("task failed")
			if q.opts.OnExhausted != nil {
				q.opts.OnExhausted(q.ctx, task, err)
			}
		} else {
			q.completed.Add(1)
		}
	}
}

// execute runs one task through the retry policy: transport errors are
// retried with exponential backoff up to MaxAttempts total attempts;
// everything else is permanent.
func (q *Queue) execute(task Task) error {
	attempt := 0
	stage := string(task.Kind)

	op := func() error {
		attempt++
		if attempt > 1 {
			metrics.StageRetriesTotal.WithLabelValues(stage).Inc()
		}

		start := time.Now()
		err := q.opts.Handler(q.ctx, task)
		metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())

		if err == nil {
			return nil
		}
		if model.IsTransport(err) {
			q.log.Debug().Err(err).
				Str("kind", stage).
				Str("recording_id", task.RecordingID.String()).
				Int("attempt", attempt).
				Msg("transport error, will retry")
			return err
		}
		// Content and precondition errors don't consume retry budget.
		return backoff.Permanent(err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = q.opts.InitialBackoff
	bo.MaxElapsedTime = 0 // attempts bound, not time bound

	err := backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(bo, q.opts.MaxAttempts-1), q.ctx))
	if err != nil {
		class := "transport"
		if model.IsContent(err) {
			class = "content"
		}
		metrics.StageFailuresTotal.WithLabelValues(stage, class).Inc()
	}
	return err
}
