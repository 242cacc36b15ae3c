// Package worker implements the fixed-size goroutine pool the runner
// dispatches ready tasks to. Thread id 0 is reserved for the runner
// itself; pool workers are assigned ids 1..N. N is capped by the 15-bit
// reader/pending fields of the core semaphore word, so a pool can never
// carry more workers than the semaphore protocol can address.
package worker

import (
	"context"
	"fmt"
	"reflect"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/sbl8/arcsys/core"
	"github.com/sbl8/arcsys/schedule"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"
)

// MaxWorkers is the largest pool size the semaphore protocol can
// address, leaving thread id 0 for the runner.
const MaxWorkers = core.MaxThreads - 1

// ErrTooManyWorkers is returned by NewPool when asked for more workers
// than the semaphore protocol's thread-id space can address.
var ErrTooManyWorkers = fmt.Errorf("worker: pool size exceeds the maximum of %d addressable workers", MaxWorkers)

// job is the (task, query) pair a worker is dispatched, per the
// runner's tick loop handing each idle worker a task id, its function,
// and the cached query the task was registered against.
type job struct {
	id    string
	fn    schedule.TaskFunc
	tag   reflect.Type
	query any
}

// Completion reports that a dispatched task finished.
type Completion struct {
	ThreadID int
	TaskID   string
	Outcome  schedule.TickOutcome
	Err      error
	// Fatal distinguishes a recovered task panic from an ordinary
	// returned error: the former means the worker goroutine itself
	// nearly died and the runner must stop rather than keep ticking.
	Fatal bool
}

// Pool is a fixed set of worker goroutines, each with its own inbound
// job channel and a shared, buffered completion channel the runner
// drains non-blockingly each tick.
type Pool struct {
	size     int
	inbound  []chan job
	complete chan Completion
	group    *errgroup.Group
	logger   zerolog.Logger
}

// DefaultWorkerCount applies automaxprocs (so a container's CPU quota,
// not the host's full core count, bounds the default) and returns a
// worker count clamped to [1, MaxWorkers].
func DefaultWorkerCount(logger zerolog.Logger) int {
	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		logger.Debug().Msgf(format, args...)
	}))
	if err == nil {
		defer undo()
	}
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		n = 1
	}
	if n > MaxWorkers {
		n = MaxWorkers
	}
	return n
}

// NewPool constructs a pool of the given size without starting it.
func NewPool(size int, logger zerolog.Logger) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("worker: pool size must be positive, got %d", size)
	}
	if size > MaxWorkers {
		return nil, ErrTooManyWorkers
	}
	inbound := make([]chan job, size)
	for i := range inbound {
		inbound[i] = make(chan job)
	}
	return &Pool{
		size:     size,
		inbound:  inbound,
		complete: make(chan Completion, size*4),
		logger:   logger,
	}, nil
}

// Size returns the number of workers in the pool.
func (p *Pool) Size() int { return p.size }

// Start launches one goroutine per worker, each assigned thread id
// i+1. Start returns immediately; each worker runs until ctx is cancelled
// or its inbound channel is closed by Shutdown.
func (p *Pool) Start(ctx context.Context) {
	p.group, ctx = errgroup.WithContext(ctx)
	for i := 0; i < p.size; i++ {
		threadID := i + 1
		ch := p.inbound[i]
		p.group.Go(func() error {
			p.run(ctx, threadID, ch)
			return nil
		})
	}
}

func (p *Pool) run(ctx context.Context, threadID int, ch <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-ch:
			if !ok {
				return
			}
			c := p.runJob(threadID, j)
			select {
			case p.complete <- c:
			case <-ctx.Done():
				return
			}
		}
	}
}

// runJob executes a single task, recovering a panic rather than letting
// it crash the worker goroutine outright. A recovered panic is reported
// as a Fatal completion so the runner stops ticking instead of silently
// losing a worker.
func (p *Pool) runJob(threadID int, j job) (c Completion) {
	c = Completion{ThreadID: threadID, TaskID: j.id}
	defer func() {
		if rec := recover(); rec != nil {
			c.Err = fmt.Errorf("worker: task %q panicked on thread %d: %v", j.id, threadID, rec)
			c.Fatal = true
			p.logger.Error().Str("task", j.id).Int("thread", threadID).Interface("panic", rec).Msg("worker task panicked")
		}
	}()
	outcome, err := j.fn(threadID, j.query)
	c.Outcome = outcome
	if err != nil {
		c.Err = err
		p.logger.Error().Err(err).Str("task", j.id).Int("thread", threadID).Msg("task failed")
	}
	return c
}

// Dispatch assigns the (id, fn, tag, query) unit to the worker at the
// given zero-based index (thread id index+1). It blocks until that
// worker is ready to accept it, matching the original thread pool's
// synchronous handoff.
func (p *Pool) Dispatch(workerIndex int, id string, fn schedule.TaskFunc, tag reflect.Type, query any) {
	p.inbound[workerIndex] <- job{id: id, fn: fn, tag: tag, query: query}
}

// PollCompletions drains every completion currently buffered without
// blocking, the non-blocking polling the runner performs on every pass
// of its tick loop.
func (p *Pool) PollCompletions() []Completion {
	var out []Completion
	for {
		select {
		case c := <-p.complete:
			out = append(out, c)
		default:
			return out
		}
	}
}

// Shutdown closes every worker's inbound channel and waits for the
// worker goroutines to exit.
func (p *Pool) Shutdown() error {
	for _, ch := range p.inbound {
		close(ch)
	}
	if p.group == nil {
		return nil
	}
	return p.group.Wait()
}
