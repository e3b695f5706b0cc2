package aio

import (
	"errors"
	"io"

	"lumio/internal/task"
)

// Reader is the single-shot read capability: one attempt, resolving to the bytes
// transferred. 0 means end-of-stream (or a zero-length request). Everything else
// in this file is built purely on top of it.
type Reader interface {
	Read(buf []byte) Future[int]
}

// ReaderAt is the positional flavor. Positional reads carry no implicit cursor;
// pos is explicit on every call.
type ReaderAt interface {
	ReadAt(buf []byte, pos uint64) Future[int]
}

// Writer is the single-shot write capability.
type Writer interface {
	Write(buf []byte) Future[int]
}

// ReadFull reads until buf is completely filled. Resolves to the byte count actually
// written into buf, which equals len(buf) iff err is nil.
//   - a 0-byte sub-read with bytes still missing resolves to io.ErrUnexpectedEOF
//   - ErrorInterrupted sub-reads retry the same window, nothing lost or duplicated
//   - any other error propagates immediately, buf filled up to the last good sub-read
func ReadFull(r Reader, buf []byte) Future[int] {
	return &fullRead{r: r, buf: buf}
}

type fullRead struct {
	r	Reader
	buf	[]byte
	n	int
	cur	Future[int]
}

func (f *fullRead) Poll(w task.Waker) (int, bool, error) {
	for len(f.buf) > 0 {
		if f.cur == nil {
			f.cur = f.r.Read(f.buf)
		}
		n, ready, err := f.cur.Poll(w)
		if !ready {
			return f.n, false, nil
		}
		f.cur = nil
		if err != nil {
			if errors.Is(err, ErrorInterrupted) { continue }
			return f.n, true, err
		}
		if n == 0 {
			return f.n, true, io.ErrUnexpectedEOF
		}
		f.n += n
		f.buf = f.buf[n:]
	}
	return f.n, true, nil
}

// ReadFullAt is ReadFull against a ReaderAt: the same loop, with the position advanced
// by each sub-read so iteration i reads at pos+n1+..+n(i-1).
func ReadFullAt(r ReaderAt, buf []byte, pos uint64) Future[int] {
	return &fullReadAt{r: r, buf: buf, pos: pos}
}

type fullReadAt struct {
	r	ReaderAt
	buf	[]byte
	pos	uint64
	n	int
	cur	Future[int]
}

func (f *fullReadAt) Poll(w task.Waker) (int, bool, error) {
	for len(f.buf) > 0 {
		if f.cur == nil {
			f.cur = f.r.ReadAt(f.buf, f.pos)
		}
		n, ready, err := f.cur.Poll(w)
		if !ready {
			return f.n, false, nil
		}
		f.cur = nil
		if err != nil {
			if errors.Is(err, ErrorInterrupted) { continue }
			return f.n, true, err
		}
		if n == 0 {
			return f.n, true, io.ErrUnexpectedEOF
		}
		f.n += n
		f.pos += uint64(n)
		f.buf = f.buf[n:]
	}
	return f.n, true, nil
}

// WriteAll writes every byte of buf, retrying short writes and absorbing
// ErrorInterrupted the same way ReadFull does. A 0-byte sub-write resolves to
// io.ErrShortWrite.
func WriteAll(w Writer, buf []byte) Future[int] {
	return &allWrite{w: w, buf: buf}
}

type allWrite struct {
	w	Writer
	buf	[]byte
	n	int
	cur	Future[int]
}

func (f *allWrite) Poll(w task.Waker) (int, bool, error) {
	for len(f.buf) > 0 {
		if f.cur == nil {
			f.cur = f.w.Write(f.buf)
		}
		n, ready, err := f.cur.Poll(w)
		if !ready {
			return f.n, false, nil
		}
		f.cur = nil
		if err != nil {
			if errors.Is(err, ErrorInterrupted) { continue }
			return f.n, true, err
		}
		if n == 0 {
			return f.n, true, io.ErrShortWrite
		}
		f.n += n
		f.buf = f.buf[n:]
	}
	return f.n, true, nil
}
