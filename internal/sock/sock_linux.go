//go:build linux

// TCP listener/connection built on the accept/connect/read/write ops. Socket setup
// (socket/bind/listen) is plain syscalls - only the operations that can actually
// block go through the ring.
package sock

import (
	"net/netip"

	"lumio/internal/aio"
	"lumio/internal/driver"
	"lumio/internal/op"
	"lumio/internal/sockaddr"
	"lumio/internal/task"

	"golang.org/x/sys/unix"
)

const LISTEN_BACKLOG = 0x80

func family(ap netip.AddrPort) int {
	if ap.Addr().Is4() || ap.Addr().Is4In6() {
		return unix.AF_INET
	}
	return unix.AF_INET6
}

func bindSockaddr(ap netip.AddrPort) unix.Sockaddr {
	if family(ap) == unix.AF_INET {
		return &unix.SockaddrInet4 {
			Port: int(ap.Port()),
			Addr: ap.Addr().As4(),
		}
	}
	return &unix.SockaddrInet6 {
		Port: int(ap.Port()),
		Addr: ap.Addr().As16(),
	}
}

type Listener struct {
	drv	*driver.Driver
	fd	int
}

func Listen(d *driver.Driver, ap netip.AddrPort) (*Listener, error) {
	fd, err := unix.Socket(family(ap), unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil { return nil, err }

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Bind(fd, bindSockaddr(ap)); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Listen(fd, LISTEN_BACKLOG); err != nil {
		unix.Close(fd)
		return nil, err
	}

	return &Listener{drv: d, fd: fd}, nil
}

// Accept resolves to the next inbound connection, peer address decoded from the
// kernel-filled buffer.
func (l *Listener) Accept() aio.Future[*Conn] {
	return aio.Map(op.Accept(l.drv, l.fd), func(a op.Accepted) (*Conn, error) {
		peer, err := a.Peer.AddrPort()
		if err != nil {
			unix.Close(a.Fd)
			return nil, err
		}
		return &Conn{drv: l.drv, fd: a.Fd, peer: peer}, nil
	})
}

// The locally bound address - mostly interesting after binding port 0.
func (l *Listener) Addr() (netip.AddrPort, error) {
	sa, err := unix.Getsockname(l.fd)
	if err != nil { return netip.AddrPort{}, err }

	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port)), nil
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(sa.Addr).Unmap(), uint16(sa.Port)), nil
	}
	return netip.AddrPort{}, sockaddr.ErrorFamily
}

func (l *Listener) Close() aio.Future[struct{}] {
	return op.Close(l.drv, l.fd)
}

type Conn struct {
	drv		*driver.Driver
	fd		int
	peer	netip.AddrPort
}

var _ aio.Reader = (*Conn)(nil)
var _ aio.Writer = (*Conn)(nil)

// Dial resolves to a connected Conn. The connect target buffer stays pinned by the
// driver until the kernel answers.
func Dial(d *driver.Driver, ap netip.AddrPort) aio.Future[*Conn] {
	fd, err := unix.Socket(family(ap), unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return &dialFailed{err: err}
	}
	return &dialFuture {
		inner:	op.Connect(d, fd, sockaddr.FromAddrPort(ap)),
		drv:	d,
		fd:		fd,
		peer:	ap,
	}
}

type dialFuture struct {
	inner	*op.Op[struct{}]
	drv		*driver.Driver
	fd		int
	peer	netip.AddrPort
}

func (f *dialFuture) Poll(w task.Waker) (*Conn, bool, error) {
	_, ready, err := f.inner.Poll(w)
	if !ready {
		return nil, false, nil
	}
	if err != nil {
		unix.Close(f.fd)
		return nil, true, err
	}
	return &Conn{drv: f.drv, fd: f.fd, peer: f.peer}, true, nil
}

type dialFailed struct {
	err error
}

func (f *dialFailed) Poll(task.Waker) (*Conn, bool, error) {
	return nil, true, f.err
}

func (c *Conn) Fd() int {
	return c.fd
}

func (c *Conn) Peer() netip.AddrPort {
	return c.peer
}

func (c *Conn) Read(buf []byte) aio.Future[int] {
	return op.Read(c.drv, c.fd, buf)
}

func (c *Conn) Write(buf []byte) aio.Future[int] {
	return op.Write(c.drv, c.fd, buf)
}

func (c *Conn) Close() aio.Future[struct{}] {
	return op.Close(c.drv, c.fd)
}
