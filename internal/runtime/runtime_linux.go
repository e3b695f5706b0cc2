//go:build linux

// Explicit runtime bootstrap: construct a Builder, configure it, Build, then BlockOn
// the program's root future. Each worker thread owns exactly one driver and one run
// queue - tasks never migrate between workers after spawn, and a driver is only ever
// touched by its owning thread.
package runtime

import (
	"log/slog"
	goruntime "runtime"
	"sync"
	"sync/atomic"

	"lumio/internal/aio"
	"lumio/internal/driver"
	"lumio/internal/task"
)

type Builder struct {
	numThreads int
}

func NewBuilder() *Builder {
	return &Builder{numThreads: 1}
}

func (b *Builder) NumThreads(n int) *Builder {
	b.numThreads = n
	return b
}

// Build allocates one driver + run queue pair per worker. Worker 0 has no goroutine
// of its own: it runs inline inside BlockOn, on the calling thread. The rest free-run
// until Shutdown.
func (b *Builder) Build() (*Runtime, error) {
	n := b.numThreads
	if n < 1 { n = 1 }

	rt := &Runtime {
		log: 	*slog.With("src", "Runtime"),
		stop: 	make(chan struct{}),
	}

	for i := range n {
		drv, err := driver.Create()
		if err != nil {
			// nothing is running yet, tear the rings down directly
			for _, w := range rt.workers {
				w.drv.Close()
			}
			return nil, err
		}
		rt.workers = append(rt.workers, &worker {
			id: 	i,
			drv: 	drv,
			rq: 	task.CreateRunQueue(),
		})
	}

	for _, w := range rt.workers[1:] {
		go w.run(rt.stop)
	}
	return rt, nil
}

type Runtime struct {
	log			slog.Logger
	workers		[]*worker
	stop		chan struct{}
	stopOnce	sync.Once
	next		atomic.Uint32
}

func (rt *Runtime) Shutdown() {
	rt.stopOnce.Do(func() {
		close(rt.stop)
		if len(rt.workers) > 0 {
			// worker 0 is inline, nobody else will close its ring
			rt.workers[0].drv.Close()
		}
	})
}

// Driver exposes worker 0's driver: the one BlockOn services. Op futures must be
// built against the driver of the worker that will poll them, and worker 0 is where
// BlockOn-driven futures live.
func (rt *Runtime) Driver() *driver.Driver {
	return rt.workers[0].drv
}

type worker struct {
	id	int
	drv	*driver.Driver
	rq	*task.RunQueue
}

// One scheduler turn: run everything currently queued, then service the ring. With
// nothing runnable, park on the ring for up to a tick so completions and cross-thread
// wakes are both picked up promptly.
func (w *worker) turn() {
	if w.rq.Drain() == 0 {
		w.drv.DriveAndWait()
	} else {
		w.drv.Drive()
	}
}

func (w *worker) run(stop chan struct{}) {
	goruntime.LockOSThread()
	defer goruntime.UnlockOSThread()
	defer w.drv.Close()

	for {
		select {
		case <-stop:
			return
		default:
		}
		w.turn()
	}
}

// BlockOn drives fut to completion on the calling goroutine, using worker 0's driver
// and queue. The loop interleaves task polls with driver turns, so io submitted by
// any task on this worker makes progress while the root future is suspended.
func BlockOn[T any](rt *Runtime, fut aio.Future[T]) (T, error) {
	w := rt.workers[0]

	var out T
	var outErr error
	done := false

	t := task.Create(w.rq, func(wk task.Waker) bool {
		v, ready, err := fut.Poll(wk)
		if ready {
			out, outErr = v, err
			done = true
		}
		return ready
	})
	w.rq.Schedule(t)

	for !done {
		w.turn()
	}
	return out, outErr
}

// Spawn hands fut to a worker as its own task and returns a handle the spawner can
// await. The task is bound to that worker for life.
func Spawn[T any](rt *Runtime, fut aio.Future[T]) *Join[T] {
	w := rt.pick()
	j := &Join[T]{}

	t := task.Create(w.rq, func(wk task.Waker) bool {
		v, ready, err := fut.Poll(wk)
		if ready {
			j.complete(v, err)
		}
		return ready
	})
	w.rq.Schedule(t)
	return j
}

func (rt *Runtime) pick() *worker {
	if len(rt.workers) == 1 {
		return rt.workers[0]
	}
	// worker 0 only runs while someone is blocked on it - spawns go to the
	// free-running workers
	i := 1 + int(rt.next.Add(1)-1)%(len(rt.workers)-1)
	return rt.workers[i]
}

// Join resolves to a spawned task's result. Unlike op futures it may be woken from
// another worker thread, hence the lock.
type Join[T any] struct {
	mu		sync.Mutex
	done	bool
	v		T
	err		error
	w		task.Waker
}

func (j *Join[T]) complete(v T, err error) {
	j.mu.Lock()
	j.v, j.err, j.done = v, err, true
	w := j.w
	j.w = nil
	j.mu.Unlock()

	if w != nil {
		w.Wake()
	}
}

func (j *Join[T]) Poll(w task.Waker) (T, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.done {
		return j.v, true, j.err
	}
	j.w = w
	var zero T
	return zero, false, nil
}
