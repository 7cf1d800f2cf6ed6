package transfer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/holtzy/go-tftp/pkg/tftp"
)

// Progress is the mutable snapshot handed to a caller-supplied progress
// callback (spec §6). TotalBytes is 0 when the size is unknown.
type Progress struct {
	TotalBytes       int64
	TransferredBytes int64
}

// TransferActive reports whether the transfer has more bytes to go; it is
// meaningless when TotalBytes is 0 (unknown size).
func (p *Progress) TransferActive() bool {
	return p.TransferredBytes < p.TotalBytes
}

// ProgressFunc is invoked on its own goroutine at the configured interval.
// Implementations must not panic (spec §6); a panic is recovered and
// silently dropped rather than taking the whole transfer down with it.
type ProgressFunc func(*Progress)

// TransferFunc receives the full TransferInfo, used by the server's
// per-session callback.
type TransferFunc func(tftp.TransferInfo)

// counters holds the driver's single-writer, atomically-read-by-others byte
// totals (spec §5's "written only by the driver; read-only on the progress
// thread").
type counters struct {
	total       atomic.Int64
	transferred atomic.Int64
}

func (c *counters) snapshot() Progress {
	return Progress{TotalBytes: c.total.Load(), TransferredBytes: c.transferred.Load()}
}

// runProgressLoop starts the progress goroutine (spec §5 item 3) and
// returns a stop function. It is a no-op if cb is nil.
func runProgressLoop(ctx context.Context, cb ProgressFunc, interval time.Duration, c *counters) (stop func()) {
	if cb == nil {
		return func() {}
	}

	if interval <= 0 {
		interval = time.Second
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				invokeProgress(cb, c)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func invokeProgress(cb ProgressFunc, c *counters) {
	defer func() {
		_ = recover()
	}()

	snap := c.snapshot()
	cb(&snap)
}
