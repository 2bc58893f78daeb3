// Package worker runs GitHub profile lookups for queued enrichment jobs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/tinymerit/internal/adapters/mq/queue"
	"github.com/okian/tinymerit/internal/domain/model"
	"github.com/okian/tinymerit/pkg/logger"
	"github.com/okian/tinymerit/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	metricsUpdateInterval   = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// ErrBadSubject is returned for records whose GitHub id is not numeric.
var ErrBadSubject = errors.New("payment record has no numeric github id")

// Resolver looks up GitHub profiles by numeric id.
type Resolver interface {
	UserByID(ctx context.Context, id int64) (model.UserProfile, error)
	RepoByID(ctx context.Context, id int64) (model.RepoProfile, error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes enrichment jobs.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue    Queue
	resolver Resolver
	name     string

	shutdown chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	processed atomic.Int64

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, resolver Resolver, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		resolver: resolver,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			w.process(ctx, j)
		}
	}
}

// Shutdown gracefully stops the worker. It is safe to call more than once.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Processed returns how many jobs this worker has answered.
func (w *InMemoryWorker) Processed() int64 { return w.processed.Load() }

func (w *InMemoryWorker) process(ctx context.Context, j queue.Job) { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	start := time.Now()
	metrics.AddWorkerBusy(1)
	defer metrics.AddWorkerBusy(-1)

	jobCtx := ctx
	if j.Ctx != nil {
		jobCtx = j.Ctx
	}

	res := w.resolve(jobCtx, j)
	res.JobID = j.ID

	outcome := metrics.OutcomeOK
	if res.Err != nil {
		outcome = metrics.OutcomeError
		metrics.RecordErrorByComponent("worker", "lookup_failed")
		w.logger.Warn(ctx, "github lookup failed",
			logger.String("job", j.ID),
			logger.String("type", string(j.Record.Type)),
			logger.String("subject", j.Record.SubjectID()),
			logger.Error(res.Err),
		)
	}
	metrics.RecordEnrichJob(outcome, metrics.Since(start))
	w.processed.Add(1)

	if j.Done != nil {
		j.Done(res)
	}
}

func (w *InMemoryWorker) resolve(ctx context.Context, j queue.Job) queue.Result { //nolint:gocritic // hugeParam
	if err := ctx.Err(); err != nil {
		return queue.Result{Err: err}
	}

	id, err := strconv.ParseInt(j.Record.SubjectID(), 10, 64)
	if err != nil || id <= 0 {
		return queue.Result{Err: fmt.Errorf("%w: %q", ErrBadSubject, j.Record.SubjectID())}
	}

	if j.Record.IsRepo() {
		repo, err := w.resolver.RepoByID(ctx, id)
		if err != nil {
			return queue.Result{Err: err}
		}
		return queue.Result{Repo: &repo}
	}

	user, err := w.resolver.UserByID(ctx, id)
	if err != nil {
		return queue.Result{Err: err}
	}
	return queue.Result{User: &user}
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	shutdown  chan struct{}
	closeOnce sync.Once

	logger logger.Logger
}

// NewPool creates a new worker pool. A count below one uses a multiple of
// the CPU count.
func NewPool(workerCount int, q Queue, resolver Resolver) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    q,
		shutdown: make(chan struct{}),
		logger:   logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(
			q,
			resolver,
			WithName("worker-"+strconv.Itoa(i)),
		)
	}

	metrics.UpdateWorkerCount(workerCount)

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns the total number of jobs answered by the pool.
func (p *Pool) Processed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Processed()
	}
	return n
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}

	go p.startMetricsUpdater(ctx)
}

// startMetricsUpdater refreshes the queue depth gauge while the pool runs.
func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	lener, _ := p.queue.(interface{ Len(context.Context) int })
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			if lener != nil {
				metrics.UpdateQueueSize(lener.Len(ctx))
			}
		}
	}
}

// Shutdown closes the queue so workers drain it, then waits for them.
// Later calls only wait.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.closeOnce.Do(func() {
		if closer, ok := p.queue.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				p.logger.Error(ctx, "error closing queue", logger.Error(err))
			}
		}
		close(p.shutdown)
	})

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("worker %d: %w", i, shutdownCtx.Err())
		}
	}

	return nil
}
