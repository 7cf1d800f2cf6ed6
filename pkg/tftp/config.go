package tftp

import "time"

// Config is the process-wide tuning knob set (spec §3/§6). It is an
// explicit value passed to every driver entrypoint rather than a mutable
// singleton — see DESIGN.md for why the source's Config::getInstance()
// pattern was dropped.
type Config struct {
	// BlockSizeCap is the largest blksize this side will ever propose or
	// accept (a client cap on what it asks for; a server cap on what it
	// will grant).
	BlockSizeCap uint16
	// Timeout is the per-packet retry timeout.
	Timeout time.Duration
	// MaxRetries is the retry budget for a stalled block (spec §3 inv. 5).
	MaxRetries int
	// MaxQueueBytes bounds the I/O pipeline's in-flight buffered bytes.
	MaxQueueBytes int64
	// ParallelIO enables the producer/consumer pipeline; it is forced off
	// automatically for block sizes below 2048 regardless of this flag
	// (spec §4.4).
	ParallelIO bool
}

// DefaultConfig returns the documented defaults: 4096-byte blocks, 5s
// timeout, 5 retries, 300MiB queue, parallel I/O enabled.
func DefaultConfig() Config {
	return Config{
		BlockSizeCap:  4096,
		Timeout:       5 * time.Second,
		MaxRetries:    5,
		MaxQueueBytes: 300 * 1 << 20,
		ParallelIO:    true,
	}
}
