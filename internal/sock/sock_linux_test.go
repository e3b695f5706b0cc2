//go:build linux

package sock_test

import (
	"log/slog"
	"net/netip"
	"os"
	"testing"
	"time"

	"lumio/internal/aio"
	"lumio/internal/driver"
	"lumio/internal/sock"
	"lumio/internal/util"

	"github.com/lmittmann/tint"
	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.TimeOnly,
	})))
	os.Exit(m.Run())
}

type nopWaker struct{}

func (nopWaker) Wake()  {}
func (nopWaker) Yield() {}

func await[T any](t *testing.T, d *driver.Driver, f aio.Future[T]) (T, error) {
	for range 1000 {
		v, ready, err := f.Poll(nopWaker{})
		if ready {
			return v, err
		}
		d.DriveAndWait()
	}
	t.Fatal("future never resolved")
	panic("unreachable")
}

func newDriver(t *testing.T) *driver.Driver {
	d, err := driver.Create()
	assert.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

// accept and dial share one driver, so they have to be interleaved by hand here -
// under the runtime they would be two tasks on one worker
func acceptAndDial(t *testing.T, d *driver.Driver, l *sock.Listener,
	target netip.AddrPort) (*sock.Conn, *sock.Conn) {

	acceptFut := l.Accept()
	dialFut := sock.Dial(d, target)

	var srv, cli *sock.Conn
	srvDone, cliDone := false, false

	for range 1000 {
		if !srvDone {
			v, ready, err := acceptFut.Poll(nopWaker{})
			if ready {
				assert.NoError(t, err)
				srv, srvDone = v, true
			}
		}
		if !cliDone {
			v, ready, err := dialFut.Poll(nopWaker{})
			if ready {
				assert.NoError(t, err)
				cli, cliDone = v, true
			}
		}
		if srvDone && cliDone {
			return srv, cli
		}
		d.DriveAndWait()
	}
	t.Fatal("accept/dial never finished")
	panic("unreachable")
}

func Test_Loopback_Roundtrip(t *testing.T) {
	d := newDriver(t)

	l, err := sock.Listen(d, netip.MustParseAddrPort("127.0.0.1:0"))
	assert.NoError(t, err)

	addr, err := l.Addr()
	assert.NoError(t, err)
	assert.Equal(t, addr.Addr(), netip.MustParseAddr("127.0.0.1"))
	assert.NotZero(t, addr.Port())

	srv, cli := acceptAndDial(t, d, l, addr)

	// the accept-side peer is the client's ephemeral port on loopback
	assert.Equal(t, cli.Peer(), addr)
	assert.Equal(t, srv.Peer().Addr(), netip.MustParseAddr("127.0.0.1"))

	payload := make([]byte, 0x800)
	util.FillPattern(payload, 3)

	n, err := await(t, d, aio.WriteAll(cli, payload))
	assert.NoError(t, err)
	assert.Equal(t, n, len(payload))

	got := make([]byte, len(payload))
	n, err = await(t, d, aio.ReadFull(srv, got))
	assert.NoError(t, err)
	assert.Equal(t, n, len(payload))
	assert.Equal(t, got, payload)

	// close the write side; the read side then sees end-of-stream
	_, err = await(t, d, cli.Close())
	assert.NoError(t, err)
	n, err = await(t, d, srv.Read(got))
	assert.NoError(t, err)
	assert.Equal(t, n, 0)

	_, err = await(t, d, srv.Close())
	assert.NoError(t, err)
	_, err = await(t, d, l.Close())
	assert.NoError(t, err)
}

func Test_Dial_Refused(t *testing.T) {
	d := newDriver(t)

	// grab a port, then free it so nothing is listening there
	l, err := sock.Listen(d, netip.MustParseAddrPort("127.0.0.1:0"))
	assert.NoError(t, err)
	addr, err := l.Addr()
	assert.NoError(t, err)
	_, err = await(t, d, l.Close())
	assert.NoError(t, err)

	_, err = await(t, d, sock.Dial(d, addr))
	assert.ErrorIs(t, err, unix.ECONNREFUSED)
}

func Test_Loopback_V6(t *testing.T) {
	d := newDriver(t)

	l, err := sock.Listen(d, netip.MustParseAddrPort("[::1]:0"))
	if err != nil {
		t.Skipf("no v6 loopback here: %v", err)
	}
	addr, err := l.Addr()
	assert.NoError(t, err)

	srv, cli := acceptAndDial(t, d, l, addr)

	n, err := await(t, d, aio.WriteAll(cli, []byte("ping")))
	assert.NoError(t, err)
	assert.Equal(t, n, 4)

	got := make([]byte, 4)
	_, err = await(t, d, aio.ReadFull(srv, got))
	assert.NoError(t, err)
	assert.Equal(t, got, []byte("ping"))

	for _, c := range []*sock.Conn{srv, cli} {
		_, err = await(t, d, c.Close())
		assert.NoError(t, err)
	}
	_, err = await(t, d, l.Close())
	assert.NoError(t, err)
}
