//go:build linux

// Typed op constructors plus the per-op future protocol. Every constructor takes the
// driver explicitly - there is no ambient ring, callers thread the handle through.
package op

import (
	"fmt"

	"lumio/internal/aio"
	"lumio/internal/driver"
	"lumio/internal/sockaddr"
	"lumio/internal/task"

	"github.com/aethne0/giouring"
	"golang.org/x/sys/unix"
)

var ErrorInvalidFilename = fmt.Errorf("Op: path contains an embedded NUL")

type state uint8

const (
	stNotSubmitted state = iota
	stPending
	stConsumed
)

// Untyped half of the op future state machine:
//
//	NotSubmitted -> Pending -> (result stored by driver) -> Consumed
//
// First poll submits and suspends, later polls re-register the waker until the driver
// stored a result, the resolving poll frees the slot. Polling after that panics.
// A synchronous ErrorExhausted from submit leaves the state at NotSubmitted so the
// caller can poll again after yielding.
type rawOp struct {
	drv		*driver.Driver
	desc	driver.Descriptor
	tk		driver.Ticket
	st		state
	early	error // pre-submission failure, resolved without touching the driver
}

func (o *rawOp) poll(w task.Waker) (int32, bool, error) {
	switch o.st {
	case stNotSubmitted:
		if o.early != nil {
			o.st = stConsumed
			return 0, true, o.early
		}
		tk, err := o.drv.Submit(&o.desc)
		if err != nil {
			return 0, true, err
		}
		o.tk = tk
		o.st = stPending
		o.tk.SetWaker(w)
		return 0, false, nil

	case stPending:
		if res, done := o.tk.Result(); done {
			o.tk.Consume()
			o.st = stConsumed
			return res, true, nil
		}
		o.tk.SetWaker(w)
		return 0, false, nil

	default:
		panic("Op: polled after it already resolved")
	}
}

func (o *rawOp) cancel() {
	switch o.st {
	case stNotSubmitted:
		o.st = stConsumed
	case stPending:
		// the kernel may still write to our buffers - hand them to the driver
		o.tk.Detach()
		o.st = stConsumed
	}
}

// Negative raw results carry an OS error code. EINTR becomes the retryable
// sentinel the exact-read loops absorb.
func opErr(res int32) error {
	e := unix.Errno(-res)
	if e == unix.EINTR {
		return aio.ErrorInterrupted
	}
	return e
}

// Op is a single-use future resolving to one operation's typed result.
type Op[T any] struct {
	raw	rawOp
	m	func(int32) (T, error)
}

func (o *Op[T]) Poll(w task.Waker) (T, bool, error) {
	var zero T
	res, ready, err := o.raw.poll(w)
	if !ready {
		return zero, false, nil
	}
	if err != nil {
		return zero, true, err
	}
	if res < 0 {
		return zero, true, opErr(res)
	}
	v, err := o.m(res)
	return v, true, err
}

// Cancel abandons the op. If it is in flight, its buffers stay with the driver until
// the kernel confirms completion; the result is discarded. Safe in any state, but the
// future is spent afterwards.
func (o *Op[T]) Cancel() {
	o.raw.cancel()
}

func unitMap(int32) (struct{}, error) { return struct{}{}, nil }
func intMap(res int32) (int, error)   { return int(res), nil }

func create[T any](d *driver.Driver, desc driver.Descriptor, m func(int32) (T, error)) *Op[T] {
	return &Op[T]{raw: rawOp{drv: d, desc: desc}, m: m}
}

// Nop submits a no-op that completes immediately in the kernel. Handy for tests and
// for probing ring liveness.
func Nop(d *driver.Driver) *Op[struct{}] {
	return create(d, driver.Descriptor{Code: driver.OpNop}, unitMap)
}

// Read at the fd's cursor. Resolves to bytes transferred; 0 is end-of-stream.
func Read(d *driver.Driver, fd int, buf []byte) *Op[int] {
	return create(d, driver.Descriptor{
		Code:	driver.OpRead,
		Fd:		fd,
		Buf:	buf,
		Off:	driver.NO_OFFSET,
	}, intMap)
}

// Pread reads at an explicit offset, leaving the fd cursor alone.
func Pread(d *driver.Driver, fd int, buf []byte, off uint64) *Op[int] {
	return create(d, driver.Descriptor{
		Code:	driver.OpRead,
		Fd:		fd,
		Buf:	buf,
		Off:	off,
	}, intMap)
}

func Write(d *driver.Driver, fd int, buf []byte) *Op[int] {
	return create(d, driver.Descriptor{
		Code:	driver.OpWrite,
		Fd:		fd,
		Buf:	buf,
		Off:	driver.NO_OFFSET,
	}, intMap)
}

func Pwrite(d *driver.Driver, fd int, buf []byte, off uint64) *Op[int] {
	return create(d, driver.Descriptor{
		Code:	driver.OpWrite,
		Fd:		fd,
		Buf:	buf,
		Off:	off,
	}, intMap)
}

// Open resolves to a new fd. The path is converted to null-terminated bytes up front;
// an embedded NUL fails the future with ErrorInvalidFilename before anything reaches
// the ring.
func Open(d *driver.Driver, path string, flags uint32, mode uint32) *Op[int] {
	o := create(d, driver.Descriptor{
		Code:	driver.OpOpen,
		Flags:	flags,
		Mode:	mode,
	}, intMap)

	p, err := unix.BytePtrFromString(path)
	if err != nil {
		o.raw.early = ErrorInvalidFilename
	} else {
		o.raw.desc.Path = p
	}
	return o
}

func Close(d *driver.Driver, fd int) *Op[struct{}] {
	return create(d, driver.Descriptor{Code: driver.OpClose, Fd: fd}, unitMap)
}

// Accepted is accept's result: the new connection's fd plus the kernel-filled
// peer address buffer.
type Accepted struct {
	Fd		int
	Peer	*sockaddr.Storage
}

func Accept(d *driver.Driver, fd int) *Op[Accepted] {
	sa := sockaddr.ForAccept()
	return create(d, driver.Descriptor{
		Code:	driver.OpAccept,
		Fd:		fd,
		Sa:		sa,
	}, func(res int32) (Accepted, error) {
		return Accepted{Fd: int(res), Peer: sa}, nil
	})
}

// Connect takes ownership of sa until the op resolves; callers must not reuse it for
// a concurrent op.
func Connect(d *driver.Driver, fd int, sa *sockaddr.Storage) *Op[struct{}] {
	return create(d, driver.Descriptor{
		Code:	driver.OpConnect,
		Fd:		fd,
		Sa:		sa,
	}, unitMap)
}

var emptyPath, _ = unix.BytePtrFromString("")

func Fstat(d *driver.Driver, fd int) *Op[*unix.Statx_t] {
	st := new(unix.Statx_t)
	return create(d, driver.Descriptor{
		Code:	driver.OpStat,
		Fd:		fd,
		Path:	emptyPath,
		Stat:	st,
	}, func(int32) (*unix.Statx_t, error) {
		return st, nil
	})
}

func Fsync(d *driver.Driver, fd int) *Op[struct{}] {
	return create(d, driver.Descriptor{Code: driver.OpSync, Fd: fd}, unitMap)
}

// Fdatasync is fsync minus the metadata flush: same opcode, data-only flag set.
func Fdatasync(d *driver.Driver, fd int) *Op[struct{}] {
	return create(d, driver.Descriptor{
		Code:	driver.OpSync,
		Fd:		fd,
		Flags:	giouring.FsyncDatasync,
	}, unitMap)
}
