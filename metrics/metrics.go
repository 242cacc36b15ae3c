// Package metrics exposes Prometheus instrumentation for the runner: tick
// throughput, task completion counts, worker occupancy, and arena memory
// pressure. Every collector is registered against a caller-supplied
// registry rather than the global default, so embedding applications can
// run more than one runner without metric name collisions.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors bundles every metric the runner updates once per tick.
type Collectors struct {
	TicksTotal          prometheus.Counter
	TasksCompletedTotal prometheus.Counter
	TaskFailuresTotal   prometheus.Counter
	WorkerBusy          prometheus.Gauge
	ArenaBytesUsed      prometheus.Gauge
	ArenaBytesCapacity  prometheus.Gauge
}

// NewCollectors creates and registers a fresh set of collectors against
// reg. Passing a prometheus.NewRegistry() per runner instance keeps
// metrics from multiple runners in the same process independent.
func NewCollectors(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arcsys",
			Name:      "ticks_total",
			Help:      "Number of runner ticks completed.",
		}),
		TasksCompletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arcsys",
			Name:      "tasks_completed_total",
			Help:      "Number of tasks that completed successfully.",
		}),
		TaskFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arcsys",
			Name:      "task_failures_total",
			Help:      "Number of tasks that returned an error.",
		}),
		WorkerBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arcsys",
			Name:      "worker_busy",
			Help:      "Number of workers currently executing a task.",
		}),
		ArenaBytesUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arcsys",
			Name:      "arena_bytes_used",
			Help:      "Bytes currently committed to live arena allocations.",
		}),
		ArenaBytesCapacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arcsys",
			Name:      "arena_bytes_capacity",
			Help:      "Total size of the arena's backing buffer.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		c.TicksTotal, c.TasksCompletedTotal, c.TaskFailuresTotal,
		c.WorkerBusy, c.ArenaBytesUsed, c.ArenaBytesCapacity,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}
