package aio_test

import (
	"io"
	"testing"

	"lumio/internal/aio"
	"lumio/internal/task"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

type nopWaker struct{}

func (nopWaker) Wake()  {}
func (nopWaker) Yield() {}

// drives a future to resolution; every sub-future suspends once before resolving, so
// the outer loops hit their suspension points
func poll[T any](t *testing.T, f aio.Future[T]) (T, error) {
	for range 1000 {
		v, ready, err := f.Poll(nopWaker{})
		if ready {
			return v, err
		}
	}
	t.Fatal("future never resolved")
	panic("unreachable")
}

type step struct {
	n	int
	err	error
}

// ready-after-one-suspension future
type stepFuture struct {
	step 	step
	polled	bool
}

func (f *stepFuture) Poll(task.Waker) (int, bool, error) {
	if !f.polled {
		f.polled = true
		return 0, false, nil
	}
	return f.step.n, true, f.step.err
}

// scripted single-shot reader. Each successful sub-read writes consecutive bytes
// starting from 0, so the final buffer contents prove nothing was lost, duplicated,
// or misplaced across retries.
type scriptReader struct {
	steps	[]step
	lens	[]int // window length per call
	next	byte
}

func (r *scriptReader) Read(buf []byte) aio.Future[int] {
	r.lens = append(r.lens, len(buf))
	s := r.steps[0]
	r.steps = r.steps[1:]
	if s.err == nil {
		for i := range s.n {
			buf[i] = r.next
			r.next++
		}
	}
	return &stepFuture{step: s}
}

type scriptReaderAt struct {
	scriptReader
	positions []uint64
}

func (r *scriptReaderAt) ReadAt(buf []byte, pos uint64) aio.Future[int] {
	r.positions = append(r.positions, pos)
	return r.scriptReader.Read(buf)
}

func sentinel(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = 0xee
	}
	return buf
}

// expected buffer contents: prefix placed bytes, rest untouched sentinel
func filled(prefix int, total int) []byte {
	out := sentinel(total)
	for i := range prefix {
		out[i] = byte(i)
	}
	return out
}

// 3 bytes, 2 bytes, then eof into a 6-byte buffer: UnexpectedEOF with 5 bytes
// placed and the 6th untouched
func Test_ReadFull_Underrun(t *testing.T) {
	r := &scriptReader{steps: []step{{n: 3}, {n: 2}, {n: 0}}}
	buf := sentinel(6)

	n, err := poll(t, aio.ReadFull(r, buf))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, n, 5)
	assert.Equal(t, buf, filled(5, 6))
	assert.Equal(t, r.lens, []int{6, 3, 1})
}

// interrupted then 4 bytes into a 4-byte buffer: success, the error never surfaces,
// and the retry reuses the identical window
func Test_ReadFull_Interrupted_Retry(t *testing.T) {
	r := &scriptReader{steps: []step{{err: aio.ErrorInterrupted}, {n: 4}}}
	buf := sentinel(4)

	n, err := poll(t, aio.ReadFull(r, buf))
	assert.NoError(t, err)
	assert.Equal(t, n, 4)
	assert.Equal(t, buf, []byte{0, 1, 2, 3})
	assert.Equal(t, r.lens, []int{4, 4})
}

func Test_ReadFull_Interrupted_Mid_Stream(t *testing.T) {
	r := &scriptReader{steps: []step{{n: 2}, {err: aio.ErrorInterrupted}, {n: 2}}}
	buf := sentinel(4)

	n, err := poll(t, aio.ReadFull(r, buf))
	assert.NoError(t, err)
	assert.Equal(t, n, 4)
	assert.Equal(t, buf, []byte{0, 1, 2, 3})
	// the retry window starts exactly where the interrupted one did
	assert.Equal(t, r.lens, []int{4, 2, 2})
}

func Test_ReadFull_Other_Errors_Propagate(t *testing.T) {
	r := &scriptReader{steps: []step{{n: 2}, {err: unix.EIO}}}
	buf := sentinel(6)

	n, err := poll(t, aio.ReadFull(r, buf))
	assert.ErrorIs(t, err, unix.EIO)
	assert.Equal(t, n, 2)
	assert.Equal(t, buf, filled(2, 6))
	assert.Equal(t, r.lens, []int{6, 4})
}

func Test_ReadFull_Empty_Buffer(t *testing.T) {
	r := &scriptReader{}

	n, err := poll(t, aio.ReadFull(r, nil))
	assert.NoError(t, err)
	assert.Equal(t, n, 0)
	assert.Empty(t, r.lens)
}

// sub-reads land at pos, pos+n1, pos+n1+n2, ... and interrupted retries do not
// advance the position
func Test_ReadFullAt_Positions(t *testing.T) {
	r := &scriptReaderAt{scriptReader: scriptReader{
		steps: []step{{n: 3}, {err: aio.ErrorInterrupted}, {n: 2}, {n: 1}},
	}}
	buf := sentinel(6)

	n, err := poll(t, aio.ReadFullAt(r, buf, 100))
	assert.NoError(t, err)
	assert.Equal(t, n, 6)
	assert.Equal(t, buf, []byte{0, 1, 2, 3, 4, 5})
	assert.Equal(t, r.positions, []uint64{100, 103, 103, 105})
	assert.Equal(t, r.lens, []int{6, 3, 3, 1})
}

func Test_ReadFullAt_Underrun(t *testing.T) {
	r := &scriptReaderAt{scriptReader: scriptReader{
		steps: []step{{n: 4}, {n: 0}},
	}}
	buf := sentinel(8)

	n, err := poll(t, aio.ReadFullAt(r, buf, 0))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, n, 4)
	assert.Equal(t, r.positions, []uint64{0, 4})
}

type scriptWriter struct {
	scriptReader
}

func (w *scriptWriter) Write(buf []byte) aio.Future[int] {
	w.lens = append(w.lens, len(buf))
	s := w.steps[0]
	w.steps = w.steps[1:]
	return &stepFuture{step: s}
}

func Test_WriteAll_Retries_Short_Writes(t *testing.T) {
	w := &scriptWriter{scriptReader{steps: []step{{n: 3}, {err: aio.ErrorInterrupted}, {n: 5}}}}

	n, err := poll(t, aio.WriteAll(w, make([]byte, 8)))
	assert.NoError(t, err)
	assert.Equal(t, n, 8)
	assert.Equal(t, w.lens, []int{8, 5, 5})
}

func Test_WriteAll_Zero_Progress(t *testing.T) {
	w := &scriptWriter{scriptReader{steps: []step{{n: 2}, {n: 0}}}}

	n, err := poll(t, aio.WriteAll(w, make([]byte, 4)))
	assert.ErrorIs(t, err, io.ErrShortWrite)
	assert.Equal(t, n, 2)
}

func Test_Map(t *testing.T) {
	r := &scriptReader{steps: []step{{n: 2}}}
	buf := make([]byte, 2)

	f := aio.Map(r.Read(buf), func(n int) (string, error) {
		return string(buf[:n]), nil
	})
	s, err := poll(t, f)
	assert.NoError(t, err)
	assert.Equal(t, s, "\x00\x01")
}
