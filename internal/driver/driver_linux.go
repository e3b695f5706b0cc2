//go:build linux

package driver

import (
	"fmt"
	"log/slog"
	"syscall"
	"unsafe"

	"lumio/internal/task"
	"lumio/internal/util"

	"github.com/aethne0/giouring"
	"github.com/negrel/assert"
	"golang.org/x/sys/unix"
)

const RING_ENTRIES	= 0x80
const SLOT_CNT 		= RING_ENTRIES
const TICK_NSEC		= 1_000_000

var ErrorExhausted = fmt.Errorf("Driver: submission capacity exhausted")

const (
	slotPending uint8 = iota
	slotDone
	slotDetached
)

// One outstanding submission. Holding desc here is what keeps kernel-visible buffers
// alive for the whole pending interval, including after a Detach.
type slot struct {
	state	uint8
	res		int32
	waker	task.Waker
	desc	*Descriptor
}

// Driver multiplexes one io_uring instance across many logical ops. Strictly
// single-threaded: Submit and Drive are only ever called from the worker thread
// that owns this driver, so there is no locking anywhere in here.
type Driver struct {
	log			slog.Logger
	ring 		*giouring.Ring
	slots		util.TicketQueue[slot]
	unsubmitted	int
	sigset		unix.Sigset_t
}

func Create() (*Driver, error) {
	log := *slog.With("src", "Driver")

	ring, err := giouring.CreateRing(RING_ENTRIES)
	if err != nil { return nil, err }

	d := Driver {
		log: 	log,
		ring: 	ring,
		slots: 	util.CreateTicketQueue[slot](SLOT_CNT),
	}
	return &d, nil
}

func (d *Driver) Close() {
	d.ring.QueueExit()
}

// Slots currently owned by in-flight or not-yet-consumed ops.
func (d *Driver) Outstanding() int {
	return SLOT_CNT - d.slots.Free()
}

// Ticket is an op future's handle to its completion slot.
type Ticket struct {
	d	*Driver
	idx	int
}

// Submit registers a completion slot for desc and enqueues the SQE. Fails
// synchronously with ErrorExhausted when no slot (or SQE) is available; callers
// retry after yielding so the reap loop can free capacity.
func (d *Driver) Submit(desc *Descriptor) (Ticket, error) {
	if d.slots.Free() == 0 {
		return Ticket{}, ErrorExhausted
	}
	sqe := d.ring.GetSQE()
	if sqe == nil {
		// SQ ring clogged with unsubmitted entries - flush once and retry
		d.flush()
		if sqe = d.ring.GetSQE(); sqe == nil {
			return Ticket{}, ErrorExhausted
		}
	}

	idx, s := d.slots.Acq()
	*s = slot{state: slotPending, desc: desc}

	d.prepSQE(sqe, desc)
	sqe.UserData = uint64(idx)
	d.unsubmitted++

	return Ticket{d: d, idx: idx}, nil
}

func bufPtr(buf []byte) uintptr {
	if len(buf) == 0 { return 0 }
	return uintptr(unsafe.Pointer(&buf[0]))
}

// Mirror of the library's internal prep. The exported openat/statx helpers take the
// pathname as a []byte and store the address of the SLICE HEADER in the SQE, so the
// kernel would read header bytes as the path - for those two we set the fields
// ourselves, with the actual pathname pointer in Addr.
func prepRaw(sqe *giouring.SubmissionQueueEntry, opcode uint8, fd int, addr uint64, length uint32, off uint64) {
	sqe.OpCode = opcode
	sqe.Flags = 0
	sqe.IoPrio = 0
	sqe.Fd = int32(fd)
	sqe.Off = off
	sqe.Addr = addr
	sqe.Len = length
	sqe.OpcodeFlags = 0
	sqe.UserData = 0
	sqe.BufIG = 0
	sqe.Personality = 0
	sqe.SpliceFdIn = 0
}

func (d *Driver) prepSQE(sqe *giouring.SubmissionQueueEntry, desc *Descriptor) {
	switch desc.Code {
	case OpNop:
		sqe.PrepareNop()

	case OpAccept:
		// addrLen is the kernel-written length field, passed by address
		sqe.PrepareAccept(desc.Fd,
			uintptr(unsafe.Pointer(&desc.Sa.Raw)),
			uint64(uintptr(unsafe.Pointer(&desc.Sa.Len))), 0)

	case OpConnect:
		sqe.PrepareConnect(desc.Fd,
			(*syscall.Sockaddr)(unsafe.Pointer(&desc.Sa.Raw)), uint64(desc.Sa.Len))

	case OpOpen:
		prepRaw(sqe, giouring.OpOpenat, unix.AT_FDCWD,
			uint64(uintptr(unsafe.Pointer(desc.Path))), desc.Mode, 0)
		sqe.OpcodeFlags = desc.Flags

	case OpClose:
		sqe.PrepareClose(desc.Fd)

	case OpRead:
		sqe.PrepareRead(desc.Fd, bufPtr(desc.Buf), uint32(len(desc.Buf)), desc.Off)

	case OpWrite:
		sqe.PrepareWrite(desc.Fd, bufPtr(desc.Buf), uint32(len(desc.Buf)), desc.Off)

	case OpStat:
		prepRaw(sqe, giouring.OpStatx, desc.Fd,
			uint64(uintptr(unsafe.Pointer(desc.Path))), unix.STATX_BASIC_STATS,
			uint64(uintptr(unsafe.Pointer(desc.Stat))))
		sqe.OpcodeFlags = unix.AT_EMPTY_PATH

	case OpSync:
		sqe.PrepareFsync(desc.Fd, desc.Flags)

	default:
		d.log.Warn("Invalid opcode", "opcode", desc.Code)
		sqe.PrepareNop()
	}
}

func (d *Driver) flush() {
	if d.unsubmitted == 0 { return }

	n, err := d.ring.Submit()
	if err != nil && err != unix.ETIME && err != unix.EINTR {
		d.log.Error("Submit", "err", err)
	}
	d.unsubmitted -= int(n)
	if d.unsubmitted < 0 { d.unsubmitted = 0 }
}

// Drive flushes pending submissions and reaps every completion the kernel has ready,
// storing each raw result in its slot and firing the registered waker exactly once.
// The owning worker calls this between task polls; the driver never loops on its own.
func (d *Driver) Drive() {
	d.flush()
	d.reap()
}

// Like Drive, but parks for up to one tick waiting for a completion first. For idle
// workers with nothing runnable.
func (d *Driver) DriveAndWait() {
	stime := syscall.Timespec { Sec: 0, Nsec: TICK_NSEC }
	_, err := d.ring.SubmitAndWaitTimeout(1, &stime, &d.sigset)
	if err != nil && err != unix.ETIME && err != unix.EINTR {
		d.log.Error("SubmitAndWaitTimeout", "err", err)
	}
	d.unsubmitted = 0
	d.reap()
}

func (d *Driver) reap() {
	for {
		cqe, err := d.ring.PeekCQE()
		if err == unix.EAGAIN || err == unix.EINTR || err == unix.ETIME {
			break
		} else if err != nil {
			d.log.Error("Peek cqe fatal error", "err", err)
			panic("Something wrong with your IO_URING!")
		}

		if cqe == nil {
			// im pretty sure this should never happen
			d.log.Warn("cqe == nil but we didnt get an err (eagain)?")
			break
		}

		d.complete(int(cqe.UserData), cqe.Res)
		d.ring.CQESeen(cqe)
	}
}

func (d *Driver) complete(idx int, res int32) {
	s := d.slots.Get(idx)
	assert.NotEqual(s.state, slotDone, "second completion for one submission")

	if s.state == slotDetached {
		// the future bailed early; we were holding the buffers for the kernel,
		// now that its done with them they can go
		s.desc = nil
		d.slots.Rel(idx)
		return
	}

	s.res = res
	s.state = slotDone
	if s.waker != nil {
		w := s.waker
		s.waker = nil
		w.Wake()
	}
}

// SetWaker (re)registers the callback fired on completion. At most one is active:
// registering replaces whatever a previous poll left here.
func (t Ticket) SetWaker(w task.Waker) {
	t.d.slots.Get(t.idx).waker = w
}

// Result reports the raw completion value, once there is one.
func (t Ticket) Result() (int32, bool) {
	s := t.d.slots.Get(t.idx)
	if s.state != slotDone {
		return 0, false
	}
	return s.res, true
}

// Consume releases the slot after its result has been read out.
func (t Ticket) Consume() {
	s := t.d.slots.Get(t.idx)
	assert.Equal(s.state, slotDone, "consumed a slot with no result")
	s.desc = nil
	s.waker = nil
	t.d.slots.Rel(t.idx)
}

// Detach transfers buffer custody to the driver. The slot - and with it the
// descriptor's buffers - outlives the discarded future until the completion shows
// up, at which point both are dropped silently.
func (t Ticket) Detach() {
	s := t.d.slots.Get(t.idx)
	if s.state == slotDone {
		s.desc = nil
		s.waker = nil
		t.d.slots.Rel(t.idx)
		return
	}
	s.state = slotDetached
	s.waker = nil
}
