// Package arcsys implements a general-purpose entity-component-system
// runtime: a growable heterogeneous memory arena, handle-based access
// control, component queries, and a dependency-DAG task scheduler driven
// by a fixed worker pool.
//
// arcsys is a library, not a standalone binary: it has no CLI, no
// persisted state, and no wire format. Embedding applications register
// component types, spawn components, build a task schedule, and drive
// ticks through a runner.
//
// # Architecture Overview
//
// The runtime consists of several layered components:
//
//   - core: the per-cell semaphore protocol, boxed-cell layout, stable
//     indirection records, and the best-fit coalescing chunk list
//   - arena: the growable backing buffer that allocates and frees cells,
//     rebasing indirection records (never moving them) on growth
//   - handle: Ref/Mut handles that cross goroutine boundaries freely, and
//     the thread-pinned DataAccess/DataAccessMut scoped accesses that
//     actually hold a semaphore lease
//   - query: cursor-based iteration over an append-only handle set, including
//     type-erased DynQuery for heterogeneous component storage
//   - ecs: component registration, spawning, entity grouping with a
//     post-commit hook, and double-buffered per-tick state
//   - schedule: the dependency-DAG of tasks for a tick, with a
//     last-in-first-out ready stack and build-time cycle detection
//   - worker: the fixed goroutine pool workers run on, thread ids capped
//     by the semaphore's 15-bit reader/pending fields
//   - runner: the tick driver tying schedule, worker pool, and arena
//     growth together, with Prometheus metrics and structured logging
//   - metrics: Prometheus collectors for tick, task, and arena health
//
// # Concurrency Model
//
// Thread id 0 is reserved for the runner; worker threads are assigned
// ids 1..N. Arena allocation, freeing, and growth happen only on the
// runner thread, only between ticks. Component access from any thread
// goes through the semaphore protocol in core, which is a hand-rolled
// atomic bitmask rather than a mutex: readers and a single writer are
// tracked in one 32-bit word with no blocking syscall in the common
// case.
//
// # Package Structure
//
//   - core: semaphore, boxed cell, indirection record, chunk list
//   - arena: growable allocator built on core
//   - handle: Ref/Mut/DataAccess/DataAccessMut/DynRef
//   - query: Query/DynQuery
//   - ecs: Spawner, Entity, DoubleBuffered
//   - schedule: Schedule
//   - worker: Pool
//   - runner: Runner
//   - metrics: Collectors
package arcsys
