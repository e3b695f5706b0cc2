package task

import (
	"sync/atomic"
)

// Waker is handed to a future on every poll. Wake hands the owning task back to its
// scheduler after an external event (an io completion); Yield requeues it voluntarily.
// Either way the task ends up at the BACK of a fifo queue, so a woken task never
// starves tasks scheduled before it.
type Waker interface {
	Wake()
	Yield()
}

// Scheduler is the contract between op-future wakers and whatever executor is driving
// tasks. Schedule enqueues a runnable task fifo; YieldNow requeues a task that gave up
// control without being woken, with bounded delay relative to later arrivals.
type Scheduler interface {
	Schedule(t *Task)
	YieldNow(t *Task)
}

// Task is one schedulable unit: a top-level future being driven to completion.
// poll returns true once the future resolved - the task must not run again after that.
type Task struct {
	poll	func(Waker) bool
	sched	Scheduler
	queued	atomic.Bool
	done	atomic.Bool
}

func Create(sched Scheduler, poll func(Waker) bool) *Task {
	return &Task {
		poll: 	poll,
		sched: 	sched,
	}
}

func (t *Task) Done() bool {
	return t.done.Load()
}

// Runs one poll. Safe to call on a finished task (no-op), since a stale wake may
// still be sitting in the queue when the task resolves.
func (t *Task) Run() {
	if t.done.Load() { return }
	if t.poll(waker{t}) {
		t.done.Store(true)
	}
}

type waker struct {
	t *Task
}

func (w waker) Wake()  { w.t.sched.Schedule(w.t) }
func (w waker) Yield() { w.t.sched.YieldNow(w.t) }
