//go:build linux

// Byte-level peer address encoding for the accept/connect ops. The driver treats a
// Storage like any other bound buffer: pointer + length handed to the kernel for the
// whole pending interval.
package sockaddr

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"unsafe"

	"golang.org/x/sys/unix"
)

var ErrorFamily = fmt.Errorf("Sockaddr: unsupported address family")

// Storage is a kernel-writable sockaddr buffer plus its length field. For accept the
// kernel fills both; for connect we fill both before submission.
type Storage struct {
	Raw	unix.RawSockaddrAny
	Len	uint32
}

// Empty storage sized for anything the kernel may write (accept's address buffer).
func ForAccept() *Storage {
	return &Storage{Len: unix.SizeofSockaddrAny}
}

// Ports live in the raw struct in network byte order.
func putPort(dst *uint16, port uint16) {
	binary.BigEndian.PutUint16((*[2]byte)(unsafe.Pointer(dst))[:], port)
}

func getPort(src *uint16) uint16 {
	return binary.BigEndian.Uint16((*[2]byte)(unsafe.Pointer(src))[:])
}

// FromAddrPort encodes ap into a fresh Storage (connect's target buffer).
func FromAddrPort(ap netip.AddrPort) *Storage {
	s := &Storage{}
	addr := ap.Addr()

	if addr.Is4() || addr.Is4In6() {
		sa := (*unix.RawSockaddrInet4)(unsafe.Pointer(&s.Raw))
		sa.Family = unix.AF_INET
		putPort(&sa.Port, ap.Port())
		sa.Addr = addr.As4()
		s.Len = unix.SizeofSockaddrInet4
	} else {
		sa := (*unix.RawSockaddrInet6)(unsafe.Pointer(&s.Raw))
		sa.Family = unix.AF_INET6
		putPort(&sa.Port, ap.Port())
		sa.Addr = addr.As16()
		sa.Scope_id = 0
		s.Len = unix.SizeofSockaddrInet6
	}
	return s
}

// AddrPort decodes a kernel-filled Storage.
func (s *Storage) AddrPort() (netip.AddrPort, error) {
	switch s.Raw.Addr.Family {
	case unix.AF_INET:
		sa := (*unix.RawSockaddrInet4)(unsafe.Pointer(&s.Raw))
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), getPort(&sa.Port)), nil

	case unix.AF_INET6:
		sa := (*unix.RawSockaddrInet6)(unsafe.Pointer(&s.Raw))
		return netip.AddrPortFrom(netip.AddrFrom16(sa.Addr).Unmap(), getPort(&sa.Port)), nil

	default:
		return netip.AddrPort{}, ErrorFamily
	}
}
