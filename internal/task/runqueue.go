package task

import (
	"sync"

	"github.com/eapache/queue"
)

// RunQueue is the fifo Scheduler used by the runtime workers. Each worker owns exactly
// one; the mutex is only there so wakes arriving from another worker (join handles)
// don't tear the queue - the owning worker is the only popper.
type RunQueue struct {
	mu	sync.Mutex
	q 	*queue.Queue
}

func CreateRunQueue() *RunQueue {
	return &RunQueue {
		q: queue.New(),
	}
}

func (rq *RunQueue) push(t *Task) {
	if t.done.Load() { return }
	if t.queued.Swap(true) { return } // already queued, wakes coalesce
	rq.mu.Lock()
	rq.q.Add(t)
	rq.mu.Unlock()
}

func (rq *RunQueue) Schedule(t *Task) {
	rq.push(t)
}

// Yielding and being woken land in the same queue: a yielded task runs again only
// after everything queued ahead of it has had its turn.
func (rq *RunQueue) YieldNow(t *Task) {
	rq.push(t)
}

func (rq *RunQueue) Cnt() int {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return rq.q.Length()
}

// Runs every task queued at entry, exactly once each. Tasks that wake or yield
// during the drain go to the back and wait for the next drain.
func (rq *RunQueue) Drain() int {
	rq.mu.Lock()
	n := rq.q.Length()
	rq.mu.Unlock()

	for range n {
		rq.mu.Lock()
		if rq.q.Length() == 0 {
			rq.mu.Unlock()
			break
		}
		t := rq.q.Remove().(*Task)
		rq.mu.Unlock()

		t.queued.Store(false)
		t.Run()
	}
	return n
}
