// Package runner drives the tick loop: each tick it prepares the
// schedule, hands ready tasks to idle workers, polls for completions
// non-blockingly, and once every task has completed, invokes the
// caller's render callback before starting the next tick. The runner
// itself never allocates; under the arena's single-owner contract,
// allocation (and so arena growth) belongs on the runner's goroutine
// between ticks.
package runner

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/sbl8/arcsys/arena"
	"github.com/sbl8/arcsys/ecs"
	"github.com/sbl8/arcsys/metrics"
	"github.com/sbl8/arcsys/schedule"
	"github.com/sbl8/arcsys/worker"
)

// AppSignal is returned by a RenderFunc to tell the runner whether to
// keep ticking.
type AppSignal int

const (
	// Continue advances to the next tick.
	Continue AppSignal = iota
	// Stop ends Run after the current tick.
	Stop
)

// RenderFunc is invoked once per tick after every scheduled task has
// completed, with the runner's spawner so it can read back, through
// ecs.QueryFor or ecs.QueryDissolved, whatever components the tick just
// wrote. A panicking RenderFunc is
// treated as fatal: Run recovers it, wraps it with a stack trace via
// pkg/errors, and returns it rather than letting the panic escape and
// take down the worker pool uncleanly.
type RenderFunc func(tick uint64, s *ecs.Spawner) AppSignal

// Options configures a Runner. The zero value is not usable; use
// DefaultOptions and override fields as needed.
type Options struct {
	Logger           zerolog.Logger
	Workers          int
	ArenaInitialSize int
	Registry         prometheus.Registerer
}

// DefaultOptions returns sensible defaults: a no-op logger, a worker
// count derived from automaxprocs-adjusted GOMAXPROCS, a one-page arena,
// and a fresh private metrics registry.
func DefaultOptions() Options {
	logger := zerolog.Nop()
	return Options{
		Logger:           logger,
		Workers:          worker.DefaultWorkerCount(logger),
		ArenaInitialSize: 4096,
		Registry:         prometheus.NewRegistry(),
	}
}

// Runner owns an arena, a schedule, a worker pool, and the metrics
// collectors that track them.
type Runner struct {
	opts     Options
	arena    *arena.Arena
	spawner  *ecs.Spawner
	schedule *schedule.Schedule
	pool     *worker.Pool
	metrics  *metrics.Collectors
	tick     uint64
	started  bool
}

// New constructs a Runner. The returned Runner's schedule is empty; call
// AddTask to populate it before Build and Run.
func New(opts Options) (*Runner, error) {
	a, err := arena.New(opts.ArenaInitialSize)
	if err != nil {
		return nil, errors.Wrap(err, "runner: creating arena")
	}
	a.SetLogger(opts.Logger)
	pool, err := worker.NewPool(opts.Workers, opts.Logger)
	if err != nil {
		return nil, errors.Wrap(err, "runner: creating worker pool")
	}
	m, err := metrics.NewCollectors(opts.Registry)
	if err != nil {
		return nil, errors.Wrap(err, "runner: registering metrics")
	}
	return &Runner{
		opts:     opts,
		arena:    a,
		spawner:  ecs.NewSpawner(a),
		schedule: schedule.New(),
		pool:     pool,
		metrics:  m,
	}, nil
}

// Arena exposes the runner's arena, for components that need to allocate
// into it directly rather than through Spawner.
func (r *Runner) Arena() *arena.Arena { return r.arena }

// Spawner exposes the runner's spawner, whose QueryFor/QueryDissolved
// supply the queries callers pass to AddTask and which the render
// callback receives to read back whatever the tick just wrote.
func (r *Runner) Spawner() *ecs.Spawner { return r.spawner }

// AddTask registers a task with the runner's schedule under componentTag.
// The task is handed query, exactly as passed here, on every invocation;
// neither the runner nor the scheduler looks a query up by componentTag,
// which is only carried alongside the task. Must be called before Build.
func (r *Runner) AddTask(id string, fn schedule.TaskFunc, componentTag reflect.Type, query any, dependsOn ...string) error {
	return r.schedule.AddTask(id, fn, componentTag, query, dependsOn...)
}

// Build validates and freezes the schedule. Must be called exactly once
// before Run or Tick.
func (r *Runner) Build() error {
	return r.schedule.Build()
}

// Start launches the worker pool. Run calls it automatically if it has
// not already been called; exposed separately so Tick can be driven by
// hand (as tests do) without going through Run.
func (r *Runner) Start(ctx context.Context) {
	if r.started {
		return
	}
	r.pool.Start(ctx)
	r.started = true
}

// Run drives ticks until a tick returns Stop (render returned Stop or a
// task returned RequestClose), ctx is cancelled, or a tick returns a
// fatal error.
func (r *Runner) Run(ctx context.Context, render RenderFunc) (err error) {
	r.Start(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		sig, tickErr := r.Tick(ctx, render)
		if tickErr != nil {
			return tickErr
		}
		if sig == Stop {
			return nil
		}
	}
}

// Tick runs exactly one tick: prepare, dispatch, drain, render.
func (r *Runner) Tick(ctx context.Context, render RenderFunc) (sig AppSignal, err error) {
	if err := r.schedule.PrepareTick(); err != nil {
		return Continue, errors.Wrap(err, "runner: preparing tick")
	}
	r.opts.Logger.Debug().Uint64("tick", r.tick).Msg("tick start")
	r.metrics.TicksTotal.Inc()

	idle := make([]bool, r.pool.Size())
	for i := range idle {
		idle[i] = true
	}
	busy := func() int {
		n := 0
		for _, free := range idle {
			if !free {
				n++
			}
		}
		return n
	}

	requestedClose := false
	for !r.schedule.Done() {
		select {
		case <-ctx.Done():
			return Continue, ctx.Err()
		default:
		}

		dispatched := false
		for i, free := range idle {
			if !free {
				continue
			}
			id, fn, tag, query, ok := r.schedule.Next()
			if !ok {
				break
			}
			idle[i] = false
			r.pool.Dispatch(i, id, fn, tag, query)
			dispatched = true
		}
		r.metrics.WorkerBusy.Set(float64(busy()))

		completions := r.pool.PollCompletions()
		if len(completions) == 0 {
			if !dispatched {
				time.Sleep(time.Microsecond)
			}
			continue
		}
		for _, c := range completions {
			idle[c.ThreadID-1] = true
			if c.Err != nil {
				r.metrics.TaskFailuresTotal.Inc()
			} else {
				r.metrics.TasksCompletedTotal.Inc()
			}
			if c.Fatal {
				r.opts.Logger.Error().Err(c.Err).Str("task", c.TaskID).Msg("worker disconnected, stopping")
				return Continue, errors.Wrap(c.Err, "runner: worker disconnected")
			}
			if c.Outcome == schedule.RequestClose {
				requestedClose = true
			}
			r.schedule.Complete(c.TaskID)
		}
	}

	r.metrics.ArenaBytesUsed.Set(float64(r.arena.BytesUsed()))
	r.metrics.ArenaBytesCapacity.Set(float64(r.arena.Capacity()))

	sig, err = r.renderTick(render)
	if err != nil {
		return Continue, err
	}
	if requestedClose {
		sig = Stop
		r.opts.Logger.Info().Uint64("tick", r.tick).Msg("task requested close")
	} else if sig == Stop {
		r.opts.Logger.Info().Uint64("tick", r.tick).Msg("render requested close")
	}
	r.opts.Logger.Debug().Uint64("tick", r.tick).Msg("tick end")
	r.tick++
	return sig, nil
}

// renderTick invokes render, converting a panic into a fatal,
// stack-traced error instead of letting it unwind through the runner.
func (r *Runner) renderTick(render RenderFunc) (sig AppSignal, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.opts.Logger.Error().Interface("panic", rec).Msg("render callback panicked")
			err = errors.WithStack(fmt.Errorf("runner: render callback panicked: %v", rec))
		}
	}()
	if render == nil {
		return Continue, nil
	}
	return render(r.tick, r.spawner), nil
}

// Shutdown stops the worker pool. Call after Run returns.
func (r *Runner) Shutdown() error {
	return r.pool.Shutdown()
}
