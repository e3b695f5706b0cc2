//go:build linux

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"lumio/internal/aio"
	"lumio/internal/fs"
	"lumio/internal/runtime"
	"lumio/internal/util"

	"github.com/cespare/xxhash"
	"github.com/lmittmann/tint"
	"golang.org/x/sys/unix"
)

const DEMO_LEN = 0x40000

func main() {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.TimeOnly,
	})))

	rt, err := runtime.NewBuilder().NumThreads(1).Build()
	if err != nil {
		slog.Error("Build", "err", err)
		os.Exit(1)
	}
	defer rt.Shutdown()

	path := filepath.Join(os.TempDir(), fmt.Sprintf("lumio%08x.bin", os.Getpid()))
	defer os.Remove(path)

	if err := demo(rt, path); err != nil {
		slog.Error("demo", "err", err)
		os.Exit(1)
	}
}

// Round-trips a pattern through a file with the async ops and checks the digest.
// Every await here is a BlockOn turn on the calling thread.
func demo(rt *runtime.Runtime, path string) error {
	drv := rt.Driver()

	f, err := runtime.BlockOn(rt, fs.Open(drv, path,
		unix.O_RDWR|unix.O_CREAT|unix.O_TRUNC, 0o640))
	if err != nil { return err }

	data := make([]byte, DEMO_LEN)
	util.FillPattern(data, uint64(os.Getpid()))
	sum := xxhash.Sum64(data)

	n, err := runtime.BlockOn(rt, aio.WriteAll(f, data))
	if err != nil { return err }
	slog.Info("wrote", "path", path, "bytes", n, "xxhash", fmt.Sprintf("%016x", sum))

	if _, err := runtime.BlockOn(rt, f.Sync()); err != nil { return err }

	st, err := runtime.BlockOn(rt, f.Stat())
	if err != nil { return err }
	slog.Info("stat", "size", st.Size)

	back := make([]byte, DEMO_LEN)
	if _, err := runtime.BlockOn(rt, aio.ReadFullAt(f, back, 0)); err != nil {
		return err
	}

	if got := xxhash.Sum64(back); got != sum {
		return fmt.Errorf("digest mismatch: %016x != %016x", got, sum)
	}
	slog.Info("read back ok", "bytes", len(back))

	_, err = runtime.BlockOn(rt, f.Close())
	return err
}
