package aio

import (
	"lumio/internal/task"
)

// Future is the polling contract every async value in this module follows.
// Poll returns (value, ready, err):
//   - ready=false: not resolved yet; the future registered w and the task must suspend.
//     A later poll MUST pass the current waker again - registration replaces.
//   - ready=true: resolved; value/err are final. Polling again after that is misuse
//     and panics in the op layer.
type Future[T any] interface {
	Poll(w task.Waker) (T, bool, error)
}

type mapped[A any, B any] struct {
	inner	Future[A]
	fn		func(A) (B, error)
}

func (m *mapped[A, B]) Poll(w task.Waker) (B, bool, error) {
	var zero B
	v, ready, err := m.inner.Poll(w)
	if !ready {
		return zero, false, nil
	}
	if err != nil {
		return zero, true, err
	}
	out, err := m.fn(v)
	return out, true, err
}

// Map derives a future that resolves to fn applied to f's result. Errors pass through.
func Map[A any, B any](f Future[A], fn func(A) (B, error)) Future[B] {
	return &mapped[A, B]{inner: f, fn: fn}
}

// Yield returns a future that suspends exactly once, putting the task at the back of
// its run queue. Useful after a capacity error from submit: give completions a chance
// to drain, then retry.
func Yield() Future[struct{}] {
	return &yieldFuture{}
}

type yieldFuture struct {
	polled bool
}

func (f *yieldFuture) Poll(w task.Waker) (struct{}, bool, error) {
	if !f.polled {
		f.polled = true
		w.Yield()
		return struct{}{}, false, nil
	}
	return struct{}{}, true, nil
}
