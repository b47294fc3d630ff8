// Package jobqueue serializes background work: one job runs at a time and
// the rest wait in FIFO order.
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"sync"
	"time"
)

// DefaultHistoryLimit is how many terminal jobs are retained.
const DefaultHistoryLimit = 100

var (
	// ErrDuplicateJob is returned when a job id is already known.
	ErrDuplicateJob = errors.New("job already exists")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("job queue closed")
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether the job has finished.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Processor does the work of a job.
type Processor func(ctx context.Context) (any, error)

// Job is a snapshot of a queued job.
type Job struct {
	ID          string         `json:"id"`
	Status      Status         `json:"status"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Result      any            `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// EventType names a job lifecycle event.
type EventType string

const (
	EventJobStart    EventType = "job:start"
	EventJobComplete EventType = "job:complete"
	EventJobError    EventType = "job:error"
)

// Event is delivered to the listener from the processing goroutine.
type Event struct {
	Type EventType
	Job  Job
	Err  error
}

// Listener receives job events.
type Listener func(Event)

type entry struct {
	job       Job
	processor Processor
}

// Queue runs jobs one at a time.
type Queue struct {
	mu       sync.Mutex
	jobs     map[string]*entry
	pending  []string
	finished []string
	running  bool
	closed   bool

	historyLimit int
	listener     Listener
	now          func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	idle   *sync.Cond
}

// Option configures a Queue.
type Option func(*Queue)

// WithHistoryLimit sets how many finished jobs are kept for status queries.
func WithHistoryLimit(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.historyLimit = n
		}
	}
}

// WithListener sets the event listener.
func WithListener(l Listener) Option {
	return func(q *Queue) { q.listener = l }
}

// New creates a queue.
func New(opts ...Option) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		jobs:         make(map[string]*entry),
		historyLimit: DefaultHistoryLimit,
		now:          time.Now,
		ctx:          ctx,
		cancel:       cancel,
	}
	q.idle = sync.NewCond(&q.mu)
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// AddJob enqueues a job and starts processing if the queue is idle.
func (q *Queue) AddJob(id string, p Processor, metadata map[string]any) error {
	if p == nil {
		return fmt.Errorf("job %s: nil processor", id)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if _, exists := q.jobs[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, id)
	}
	q.jobs[id] = &entry{
		job:       Job{ID: id, Status: StatusPending, Metadata: maps.Clone(metadata), CreatedAt: q.now()},
		processor: p,
	}
	q.pending = append(q.pending, id)
	if !q.running {
		q.running = true
		go q.drain()
	}
	return nil
}

// GetJobStatus returns a snapshot of the job.
func (q *Queue) GetJobStatus(id string) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.jobs[id]
	if !ok {
		return Job{}, false
	}
	return e.job, true
}

// Stats returns the number of pending jobs and whether one is running.
func (q *Queue) Stats() (pending int, processing bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending), q.running
}

// Wait blocks until no job is pending or running.
func (q *Queue) Wait() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.running {
		q.idle.Wait()
	}
}

// Close rejects new jobs, cancels the running one and waits for the queue
// to drain. Pending jobs still run with a cancelled context.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cancel()
	q.Wait()
}

func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.idle.Broadcast()
			q.mu.Unlock()
			return
		}
		id := q.pending[0]
		q.pending = q.pending[1:]
		e := q.jobs[id]
		started := q.now()
		e.job.Status = StatusProcessing
		e.job.StartedAt = &started
		snap := e.job
		q.mu.Unlock()

		q.emit(Event{Type: EventJobStart, Job: snap})
		result, err := q.run(e.processor)

		q.mu.Lock()
		done := q.now()
		e.job.CompletedAt = &done
		if err != nil {
			e.job.Status = StatusFailed
			e.job.Error = err.Error()
		} else {
			e.job.Status = StatusCompleted
			e.job.Result = result
		}
		snap = e.job
		q.finished = append(q.finished, id)
		q.evictLocked()
		q.mu.Unlock()

		if err != nil {
			log.Printf("WARN: job %s failed: %v", id, err)
			q.emit(Event{Type: EventJobError, Job: snap, Err: err})
		} else {
			q.emit(Event{Type: EventJobComplete, Job: snap})
		}
	}
}

func (q *Queue) run(p Processor) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return p(q.ctx)
}

func (q *Queue) evictLocked() {
	for len(q.finished) > q.historyLimit {
		delete(q.jobs, q.finished[0])
		q.finished = q.finished[1:]
	}
}

func (q *Queue) emit(e Event) {
	if q.listener == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: job queue listener panicked on %s: %v", e.Type, r)
		}
	}()
	q.listener(e)
}
