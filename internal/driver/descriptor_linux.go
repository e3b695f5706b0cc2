//go:build linux

package driver

import (
	"lumio/internal/sockaddr"

	"golang.org/x/sys/unix"
)

type Opcode uint16

const (
	OpNop 	Opcode = iota
	OpAccept
	OpConnect
	OpOpen
	OpClose
	OpRead
	OpWrite
	OpStat
	OpSync
)

// Read/write at the fd's own cursor instead of an explicit offset.
const NO_OFFSET = ^uint64(0)

// Descriptor is one opcode-tagged request, built by an op constructor and immutable
// after Submit. The Go references in here double as the buffer binding: the driver's
// slot pins the whole Descriptor until the kernel has reported back, so nothing the
// kernel may still write to can be collected out from under it.
type Descriptor struct {
	Code	Opcode
	Fd		int
	Buf		[]byte				// read destination / write source
	Off		uint64				// read/write offset, or NO_OFFSET
	Path	*byte				// open: null-terminated path bytes
	Flags	uint32				// open flags, or fsync flags
	Mode	uint32				// open mode
	Sa		*sockaddr.Storage	// accept: kernel-filled; connect: caller-filled
	Stat	*unix.Statx_t		// stat destination
}
