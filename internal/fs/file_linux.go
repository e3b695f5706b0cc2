//go:build linux

package fs

import (
	"lumio/internal/aio"
	"lumio/internal/driver"
	"lumio/internal/op"

	"golang.org/x/sys/unix"
)

// File is a thin handle over the raw op constructors. One File may have several ops
// in flight at once (each with its own buffer); the kernel serializes them, not us.
type File struct {
	drv	*driver.Driver
	fd	int
}

var _ aio.Reader = (*File)(nil)
var _ aio.ReaderAt = (*File)(nil)
var _ aio.Writer = (*File)(nil)

// Open resolves to an open File. flags/mode are the usual unix.O_* / permission bits.
func Open(d *driver.Driver, path string, flags uint32, mode uint32) aio.Future[*File] {
	return aio.Map(op.Open(d, path, flags, mode), func(fd int) (*File, error) {
		return &File{drv: d, fd: fd}, nil
	})
}

// Wraps an fd opened elsewhere (stdin, an inherited socketpair end, ...).
func FromFd(d *driver.Driver, fd int) *File {
	return &File{drv: d, fd: fd}
}

func (f *File) Fd() int {
	return f.fd
}

func (f *File) Read(buf []byte) aio.Future[int] {
	return op.Read(f.drv, f.fd, buf)
}

func (f *File) ReadAt(buf []byte, pos uint64) aio.Future[int] {
	return op.Pread(f.drv, f.fd, buf, pos)
}

func (f *File) Write(buf []byte) aio.Future[int] {
	return op.Write(f.drv, f.fd, buf)
}

func (f *File) WriteAt(buf []byte, pos uint64) aio.Future[int] {
	return op.Pwrite(f.drv, f.fd, buf, pos)
}

func (f *File) Stat() aio.Future[*unix.Statx_t] {
	return op.Fstat(f.drv, f.fd)
}

func (f *File) Sync() aio.Future[struct{}] {
	return op.Fsync(f.drv, f.fd)
}

func (f *File) Datasync() aio.Future[struct{}] {
	return op.Fdatasync(f.drv, f.fd)
}

func (f *File) Close() aio.Future[struct{}] {
	return op.Close(f.drv, f.fd)
}
