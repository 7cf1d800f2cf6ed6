// Package pipeline implements the bounded producer/consumer queue that
// decouples disk I/O from network I/O (spec §4.4), plus an inline fallback
// for small block sizes where the handoff overhead would dominate.
package pipeline

import (
	"context"
)

// Chunk is one buffer moving through the pipeline: up to BlockSize bytes,
// with Last set on the terminal (possibly short) chunk.
type Chunk struct {
	Data []byte
	Last bool
}

// Source hands chunks of exactly blockSize bytes (the final one possibly
// short) to a consumer, one at a time, in order.
type Source interface {
	// Next blocks until a chunk is available, ctx is cancelled, or the
	// stream is exhausted (io.EOF itself, unwrapped, is returned).
	Next(ctx context.Context) (Chunk, error)
	Close() error
}

// Sink accepts chunks from a producer and writes them to the underlying
// stream in order.
type Sink interface {
	Push(ctx context.Context, chunk Chunk) error
	// Close waits for any buffered chunks to drain to the sink and
	// releases pipeline resources.
	Close() error
}

// queueDepth returns how many blockSize buffers fit within maxQueueBytes,
// with a floor of 1 so a pipeline is always usable even under a very tight
// byte budget.
func queueDepth(maxQueueBytes int64, blockSize int) int {
	if blockSize <= 0 {
		return 1
	}

	depth := int(maxQueueBytes / int64(blockSize))
	if depth < 1 {
		depth = 1
	}

	return depth
}

// UseInline reports whether spec §4.4's inline-mode rule applies: block
// sizes below 2048 bytes make thread-handoff overhead dominate per-packet
// cost, so the pipeline is skipped even if parallelIO was requested.
func UseInline(parallelIO bool, blockSize int) bool {
	return !parallelIO || blockSize < 2048
}
